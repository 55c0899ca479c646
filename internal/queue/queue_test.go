package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradebotv1/internal/model"
)

// scriptedExec records dispatch order and fails on script.
type scriptedExec struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]int  // fail this many times with an error
	rejects  map[string]bool // terminal Success=false
}

func newScriptedExec() *scriptedExec {
	return &scriptedExec{
		failures: make(map[string]int),
		rejects:  make(map[string]bool),
	}
}

func (e *scriptedExec) Execute(ctx context.Context, sig model.Signal) (ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, sig.ID)
	if e.failures[sig.ID] > 0 {
		e.failures[sig.ID]--
		return ExecResult{}, errors.New("transient broker error")
	}
	if e.rejects[sig.ID] {
		return ExecResult{Success: false, Message: "order rejected"}, nil
	}
	return ExecResult{Success: true, ResultRef: "ORDER-" + sig.ID}, nil
}

func (e *scriptedExec) callOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.calls))
	copy(cp, e.calls)
	return cp
}

func testSig(id string, confidence float64) model.Signal {
	return model.Signal{
		ID:         id,
		StrategyID: "s1",
		Pair:       "SOL/USDC",
		Direction:  model.DirectionBuy,
		Price:      100,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}
}

func fastConfig() Config {
	return Config{
		Workers:       1,
		RatePerSecond: 1000,
		MaxAttempts:   3,
		BackoffBase:   5 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       int
	}{
		{95, 1}, {90, 1}, {85, 2}, {80, 2}, {75, 3}, {70, 3}, {65, 5}, {60, 5}, {59, 10}, {0, 10},
	}
	for _, c := range cases {
		if got := PriorityFor(c.confidence); got != c.want {
			t.Errorf("PriorityFor(%.0f) = %d, want %d", c.confidence, got, c.want)
		}
	}
}

func TestQueue_EnqueueDeduplicates(t *testing.T) {
	q := New(newScriptedExec(), fastConfig(), nil)
	if !q.Enqueue(testSig("a", 80)) {
		t.Fatal("first enqueue rejected")
	}
	if q.Enqueue(testSig("a", 80)) {
		t.Fatal("duplicate enqueue accepted")
	}
	if s := q.Stats(); s.Waiting != 1 {
		t.Errorf("waiting = %d, want 1", s.Waiting)
	}
}

func TestQueue_HigherConfidenceDispatchesFirst(t *testing.T) {
	exec := newScriptedExec()
	q := New(exec, fastConfig(), nil)

	// Low confidence enqueued first, high confidence second.
	q.Enqueue(testSig("low", 65))
	q.Enqueue(testSig("high", 95))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return len(exec.callOrder()) == 2 })
	order := exec.callOrder()
	if order[0] != "high" || order[1] != "low" {
		t.Errorf("dispatch order = %v, want [high low]", order)
	}
}

func TestQueue_SamePriorityIsFIFO(t *testing.T) {
	exec := newScriptedExec()
	q := New(exec, fastConfig(), nil)

	q.Enqueue(testSig("first", 85))
	q.Enqueue(testSig("second", 85))
	q.Enqueue(testSig("third", 85))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return len(exec.callOrder()) == 3 })
	order := exec.callOrder()
	if order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("dispatch order = %v, want FIFO", order)
	}
}

func TestQueue_RetriesTransientFailureThenCompletes(t *testing.T) {
	exec := newScriptedExec()
	exec.failures["a"] = 2 // fail twice, succeed on the third attempt
	q := New(exec, fastConfig(), nil)
	q.Enqueue(testSig("a", 80))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		job, ok := q.Job("a")
		return ok && job.State == StateCompleted
	})

	job, _ := q.Job("a")
	if job.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", job.Attempts)
	}
	if job.ResultRef != "ORDER-a" {
		t.Errorf("result ref = %q, want ORDER-a", job.ResultRef)
	}
	if calls := exec.callOrder(); len(calls) != 3 {
		t.Errorf("executor called %d times, want 3", len(calls))
	}
	if s := q.Stats(); s.Completed != 1 || s.Failed != 0 {
		t.Errorf("stats = %+v, want one completed", s)
	}
}

func TestQueue_ExhaustedRetriesFail(t *testing.T) {
	exec := newScriptedExec()
	exec.failures["a"] = 10 // more than MaxAttempts
	q := New(exec, fastConfig(), nil)

	var failedMu sync.Mutex
	var failed []TradeJob
	q.OnFailed = func(job TradeJob) {
		failedMu.Lock()
		failed = append(failed, job)
		failedMu.Unlock()
	}

	q.Enqueue(testSig("a", 80))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		job, ok := q.Job("a")
		return ok && job.State == StateFailed
	})

	job, _ := q.Job("a")
	if job.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", job.Attempts)
	}
	if job.LastError == "" {
		t.Error("expected last error to be recorded")
	}
	waitFor(t, time.Second, func() bool {
		failedMu.Lock()
		defer failedMu.Unlock()
		return len(failed) == 1
	})
}

func TestQueue_ExecutorRejectionIsTerminal(t *testing.T) {
	exec := newScriptedExec()
	exec.rejects["a"] = true
	q := New(exec, fastConfig(), nil)
	q.Enqueue(testSig("a", 80))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		job, ok := q.Job("a")
		return ok && job.State == StateFailed
	})

	job, _ := q.Job("a")
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (rejection is not retried)", job.Attempts)
	}
	if job.LastError != "order rejected" {
		t.Errorf("last error = %q, want the rejection message", job.LastError)
	}
}

func TestQueue_PauseHoldsDispatch(t *testing.T) {
	exec := newScriptedExec()
	q := New(exec, fastConfig(), nil)
	q.Pause()
	q.Enqueue(testSig("a", 80))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if calls := exec.callOrder(); len(calls) != 0 {
		t.Fatalf("dispatched %d jobs while paused, want 0", len(calls))
	}
	if !q.Paused() {
		t.Fatal("Paused() = false, want true")
	}

	q.Resume()
	waitFor(t, 2*time.Second, func() bool { return len(exec.callOrder()) == 1 })
}

func TestQueue_DedupSpansRetainedTerminalJobs(t *testing.T) {
	exec := newScriptedExec()
	q := New(exec, fastConfig(), nil)
	q.Enqueue(testSig("a", 80))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		job, ok := q.Job("a")
		return ok && job.State == StateCompleted
	})

	// Completed jobs stay in the dedup set until retention evicts them.
	if q.Enqueue(testSig("a", 80)) {
		t.Fatal("re-enqueue of a completed signal accepted")
	}
}

func TestQueue_RetentionEvictsOldestCompleted(t *testing.T) {
	exec := newScriptedExec()
	cfg := fastConfig()
	cfg.CompletedRetention = 2
	q := New(exec, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for _, id := range []string{"a", "b", "c"} {
		q.Enqueue(testSig(id, 80))
	}
	waitFor(t, 2*time.Second, func() bool {
		return q.Stats().Completed == 2
	})

	// The oldest completed job was evicted, so its ID is reusable.
	waitFor(t, time.Second, func() bool {
		_, ok := q.Job("a")
		return !ok
	})
	if !q.Enqueue(testSig("a", 80)) {
		t.Fatal("enqueue after eviction rejected")
	}
}
