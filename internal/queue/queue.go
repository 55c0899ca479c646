// Package queue hands emitted signals to the execution collaborator exactly
// once per opportunity. Jobs are deduplicated by signal ID, ordered by a
// confidence-derived priority, dispatched by a bounded worker pool behind a
// rate limiter, and retried with exponential backoff on transient failure.
//
// Job state machine: queued → active → {completed | retrying → queued | failed}.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"tradebotv1/internal/metrics"
	"tradebotv1/internal/model"
)

// State is the lifecycle state of a trade job.
type State string

const (
	StateQueued    State = "QUEUED"
	StateActive    State = "ACTIVE"
	StateRetrying  State = "RETRYING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// TradeJob wraps a signal with queue bookkeeping. The job ID is the signal
// ID, which doubles as the dedup key.
type TradeJob struct {
	ID         string       `json:"id"`
	Signal     model.Signal `json:"signal"`
	Priority   int          `json:"priority"` // lower dispatches first
	State      State        `json:"state"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"last_error,omitempty"`
	ResultRef  string       `json:"result_ref,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`

	seq       uint64 // FIFO tie-breaker within a priority bucket
	heapIndex int
}

// PriorityFor maps confidence to a priority bucket. Numerically lower
// priority dispatches first.
func PriorityFor(confidence float64) int {
	switch {
	case confidence >= 90:
		return 1
	case confidence >= 80:
		return 2
	case confidence >= 70:
		return 3
	case confidence >= 60:
		return 5
	default:
		return 10
	}
}

// ExecResult is the execution collaborator's verdict on a dispatch.
// A returned Success=false is terminal (non-retryable); only an error
// return is retried.
type ExecResult struct {
	Success   bool
	ResultRef string
	Message   string
}

// Executor is the external execution collaborator.
type Executor interface {
	Execute(ctx context.Context, sig model.Signal) (ExecResult, error)
}

// Config holds queue tuning knobs.
type Config struct {
	Workers            int           // max simultaneous dispatches
	RatePerSecond      float64       // max dispatch starts per second
	MaxAttempts        int           // total attempts incl. the first
	BackoffBase        time.Duration // first retry delay; doubles per attempt
	CompletedRetention int           // completed jobs kept for observability
	FailedRetention    int           // failed jobs kept (longer window)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 100
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = 500
	}
	return c
}

// Stats is a snapshot of queue occupancy by state.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Retrying  int `json:"retrying"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Queue is the priority job queue between the strategy engine and the
// execution collaborator.
type Queue struct {
	cfg  Config
	exec Executor
	prom *metrics.Metrics

	mu      sync.Mutex
	heap    jobHeap
	jobs    map[string]*TradeJob // every non-evicted job by signal ID
	seq     uint64
	paused  bool
	active  int
	retired struct {
		completed []string // eviction order, oldest first
		failed    []string
	}

	wake chan struct{}

	// OnFailed, if set, is called with a copy of every job that reaches the
	// terminal failed state. Invoked from its own goroutine.
	OnFailed func(job TradeJob)
}

// New creates a trading queue. prom may be nil. Call Run to start dispatch.
func New(exec Executor, cfg Config, prom *metrics.Metrics) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:  cfg,
		exec: exec,
		prom: prom,
		jobs: make(map[string]*TradeJob),
		wake: make(chan struct{}, cfg.Workers),
	}
}

// Enqueue adds a signal as a new job. Never blocks. Returns false if a job
// with the same signal ID already exists (queued, in flight, or retained).
func (q *Queue) Enqueue(sig model.Signal) bool {
	q.mu.Lock()
	if _, exists := q.jobs[sig.ID]; exists {
		q.mu.Unlock()
		if q.prom != nil {
			q.prom.QueueDuplicates.Inc()
		}
		return false
	}

	q.seq++
	job := &TradeJob{
		ID:         sig.ID,
		Signal:     sig,
		Priority:   PriorityFor(sig.Confidence),
		State:      StateQueued,
		EnqueuedAt: time.Now(),
		seq:        q.seq,
	}
	q.jobs[job.ID] = job
	heap.Push(&q.heap, job)
	q.updateGauges()
	q.mu.Unlock()

	q.wakeOne()
	return true
}

// Pause stops new dispatches without losing queued or in-flight jobs.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts dispatch after a pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	for i := 0; i < q.cfg.Workers; i++ {
		q.wakeOne()
	}
}

// Paused reports whether dispatch is currently paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Stats returns a snapshot of queue occupancy.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	for _, job := range q.jobs {
		switch job.State {
		case StateQueued:
			s.Waiting++
		case StateActive:
			s.Active++
		case StateRetrying:
			s.Retrying++
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		}
	}
	return s
}

// Job returns a copy of the job for the given signal ID.
func (q *Queue) Job(id string) (TradeJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return TradeJob{}, false
	}
	return *job, true
}

// wakeOne rouses an idle worker without blocking.
func (q *Queue) wakeOne() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next pops the highest-priority queued job, or nil when paused or empty.
func (q *Queue) next() *TradeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused || q.heap.Len() == 0 {
		return nil
	}
	job := heap.Pop(&q.heap).(*TradeJob)
	job.State = StateActive
	q.active++
	q.updateGauges()
	return job
}

// requeue puts a retrying job back into the dispatch heap. The original
// sequence number is kept so retries do not jump their bucket's FIFO order.
func (q *Queue) requeue(job *TradeJob) {
	q.mu.Lock()
	if _, exists := q.jobs[job.ID]; !exists {
		// Evicted while waiting for backoff; drop.
		q.mu.Unlock()
		return
	}
	job.State = StateQueued
	heap.Push(&q.heap, job)
	q.updateGauges()
	q.mu.Unlock()
	q.wakeOne()
}

// retire moves a job to a terminal state and evicts the oldest retained
// terminal jobs beyond the retention window. Caller must hold q.mu.
func (q *Queue) retire(job *TradeJob, state State) {
	job.State = state
	job.FinishedAt = time.Now()

	var ring *[]string
	var limit int
	if state == StateCompleted {
		ring, limit = &q.retired.completed, q.cfg.CompletedRetention
	} else {
		ring, limit = &q.retired.failed, q.cfg.FailedRetention
	}
	*ring = append(*ring, job.ID)
	for len(*ring) > limit {
		evicted := (*ring)[0]
		*ring = (*ring)[1:]
		delete(q.jobs, evicted)
	}
	q.updateGauges()
}

// updateGauges refreshes prometheus queue gauges. Caller must hold q.mu.
func (q *Queue) updateGauges() {
	if q.prom == nil {
		return
	}
	q.prom.QueueWaiting.Set(float64(q.heap.Len()))
	q.prom.QueueActive.Set(float64(q.active))
}

// jobHeap is a min-heap ordered by (priority, enqueue sequence).
type jobHeap []*TradeJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *jobHeap) Push(x interface{}) {
	job := x.(*TradeJob)
	job.heapIndex = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	job.heapIndex = -1
	return job
}
