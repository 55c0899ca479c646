package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

// idlePoll is how often an idle worker re-checks the heap; covers wakeups
// lost while all workers were busy.
const idlePoll = 200 * time.Millisecond

// Run starts the worker pool and blocks until ctx is cancelled. Dispatch
// concurrency is capped by cfg.Workers and dispatch starts are paced by the
// rate limiter regardless of concurrency headroom.
func (q *Queue) Run(ctx context.Context) {
	limiter := newRateLimiter(q.cfg.RatePerSecond)

	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx, limiter)
		}()
	}
	wg.Wait()
}

func (q *Queue) worker(ctx context.Context, limiter *rateLimiter) {
	timer := time.NewTimer(idlePoll)
	defer timer.Stop()

	for {
		job := q.next()
		if job == nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idlePoll)
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			case <-timer.C:
			}
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			// Shutting down; hand the slot back so nothing is lost.
			q.requeue(job)
			return
		}
		q.dispatch(ctx, job)
	}
}

// dispatch executes one job and applies the retry/terminal transition.
func (q *Queue) dispatch(ctx context.Context, job *TradeJob) {
	start := time.Now()
	res, err := q.exec.Execute(ctx, job.Signal)
	if q.prom != nil {
		q.prom.DispatchDur.Observe(time.Since(start).Seconds())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	job.Attempts++

	switch {
	case err != nil:
		job.LastError = err.Error()
		if job.Attempts >= q.cfg.MaxAttempts {
			q.retire(job, StateFailed)
			if q.prom != nil {
				q.prom.DispatchFailures.Inc()
			}
			q.notifyFailed(job)
			log.Printf("[queue] job %s failed after %d attempts: %v", job.ID, job.Attempts, err)
			return
		}
		// Transient failure: back off exponentially, then requeue.
		delay := q.cfg.BackoffBase << (job.Attempts - 1)
		job.State = StateRetrying
		q.updateGauges()
		if q.prom != nil {
			q.prom.DispatchRetries.Inc()
		}
		log.Printf("[queue] job %s attempt %d failed, retrying in %v: %v", job.ID, job.Attempts, delay, err)
		time.AfterFunc(delay, func() { q.requeue(job) })

	case !res.Success:
		// Returned failure is non-retryable and terminal.
		job.LastError = res.Message
		q.retire(job, StateFailed)
		if q.prom != nil {
			q.prom.DispatchFailures.Inc()
		}
		q.notifyFailed(job)
		log.Printf("[queue] job %s rejected by executor: %s", job.ID, res.Message)

	default:
		job.ResultRef = res.ResultRef
		q.retire(job, StateCompleted)
		if q.prom != nil {
			q.prom.DispatchCompleted.Inc()
		}
		log.Printf("[queue] job %s completed (attempts=%d ref=%s)", job.ID, job.Attempts, res.ResultRef)
	}
}

// notifyFailed hands a copy of a terminally failed job to the OnFailed hook.
// Caller holds q.mu; the hook runs in its own goroutine.
func (q *Queue) notifyFailed(job *TradeJob) {
	if q.OnFailed == nil {
		return
	}
	cp := *job
	go q.OnFailed(cp)
}

// rateLimiter paces dispatch starts to a fixed rate. Each Wait claims the
// next slot on a monotonic schedule, so bursts are spread out even when all
// workers are free.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newRateLimiter(perSecond float64) *rateLimiter {
	return &rateLimiter{
		interval: time.Duration(float64(time.Second) / perSecond),
	}
}

// Wait blocks until the caller's slot arrives or ctx is cancelled.
func (l *rateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
