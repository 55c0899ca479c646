// Package engine owns the set of active (pair, composite-strategy) bindings,
// throttles evaluation per binding, and turns qualifying composite decisions
// into persisted, emitted signals.
//
// Bindings are immutable values: a reload builds a complete replacement and
// swaps it in, so an in-flight evaluation never observes a partially built
// composite.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"tradebotv1/internal/metrics"
	"tradebotv1/internal/model"
	"tradebotv1/internal/strategy"
)

// DefaultMinInterval is the default throttle between evaluations of the same
// strategy binding. A fast-ticking feed would otherwise re-evaluate and
// re-emit on every tick.
const DefaultMinInterval = 5 * time.Second

// StatusActive marks a strategy configuration that should be evaluated.
const StatusActive = "ACTIVE"

// StrategyConfig is one strategy configuration as stored upstream.
type StrategyConfig struct {
	ID            string                   `json:"id"`
	Pair          string                   `json:"pair"`
	Status        string                   `json:"status"`
	MinConfidence float64                  `json:"min_confidence"`
	Composite     strategy.CompositeConfig `json:"composite"`
}

// ConfigStore is the external configuration collaborator.
type ConfigStore interface {
	// ListActive returns every strategy configuration with status ACTIVE.
	ListActive(ctx context.Context) ([]StrategyConfig, error)

	// Get returns one strategy configuration by ID for point reloads.
	Get(ctx context.Context, id string) (StrategyConfig, error)
}

// SignalStore persists signals before they are handed to the queue.
type SignalStore interface {
	PersistSignal(ctx context.Context, sig model.Signal) error
}

// Enqueuer is the trading-queue boundary. Enqueue never blocks; it returns
// false when the signal is a duplicate.
type Enqueuer interface {
	Enqueue(sig model.Signal) bool
}

// binding is one live strategy entry in the active set. The composite is
// immutable; lastEval is guarded by the engine mutex.
type binding struct {
	cfg      StrategyConfig
	comp     *strategy.Composite
	lastEval time.Time
}

// DefaultWindowSize is how many recent candles the engine retains per pair
// for strategy evaluation.
const DefaultWindowSize = 200

// Engine routes candle batches to the active strategies bound to each pair.
// It maintains a sliding window of recent candles per pair; strategies are
// evaluated against that window, not the raw batch.
type Engine struct {
	mu       sync.RWMutex
	bindings map[string]*binding

	windows    map[string][]model.Candle
	windowSize int

	minInterval time.Duration
	configs     ConfigStore
	signals     SignalStore
	queue       Enqueuer
	prom        *metrics.Metrics

	// OnEmit, if set, is called after a signal is persisted and enqueued.
	// Used for notifications and pub/sub fan-out.
	OnEmit func(model.Signal)

	now func() time.Time
}

// New creates a strategy engine. prom may be nil.
func New(configs ConfigStore, signals SignalStore, queue Enqueuer, minInterval time.Duration, prom *metrics.Metrics) *Engine {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Engine{
		bindings:    make(map[string]*binding),
		windows:     make(map[string][]model.Candle),
		windowSize:  DefaultWindowSize,
		minInterval: minInterval,
		configs:     configs,
		signals:     signals,
		queue:       queue,
		prom:        prom,
		now:         time.Now,
	}
}

// Start loads every ACTIVE strategy configuration and builds its composite.
// A broken configuration is logged and skipped; it does not block the rest.
func (e *Engine) Start(ctx context.Context) error {
	cfgs, err := e.configs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("engine: list active strategies: %w", err)
	}
	loaded := 0
	for _, cfg := range cfgs {
		if err := e.install(cfg); err != nil {
			log.Printf("[engine] skipping strategy %s: %v", cfg.ID, err)
			continue
		}
		loaded++
	}
	log.Printf("[engine] loaded %d active strategies", loaded)
	return nil
}

// install builds a fresh binding for cfg and swaps it into the active set.
func (e *Engine) install(cfg StrategyConfig) error {
	comp, err := strategy.Build(cfg.ID, cfg.Composite)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.bindings[cfg.ID] = &binding{cfg: cfg, comp: comp}
	e.mu.Unlock()
	return nil
}

// Reload re-fetches one strategy configuration and atomically replaces (or
// removes) only that entry. Other bindings are untouched.
func (e *Engine) Reload(ctx context.Context, id string) error {
	cfg, err := e.configs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: reload %s: %w", id, err)
	}
	if cfg.Status != StatusActive {
		e.Remove(id)
		log.Printf("[engine] strategy %s unloaded (status=%s)", id, cfg.Status)
		return nil
	}
	if err := e.install(cfg); err != nil {
		return fmt.Errorf("engine: reload %s: %w", id, err)
	}
	log.Printf("[engine] strategy %s reloaded (pair=%s mode=%s members=%d)",
		id, cfg.Pair, cfg.Composite.Mode, len(cfg.Composite.Members))
	return nil
}

// Remove drops a strategy from the active set. No-op if absent.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	delete(e.bindings, id)
	e.mu.Unlock()
}

// ActiveCount returns the number of live strategy bindings.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.bindings)
}

// ActiveIDs returns the IDs of live strategy bindings, sorted.
func (e *Engine) ActiveIDs() []string {
	e.mu.RLock()
	ids := make([]string, 0, len(e.bindings))
	for id := range e.bindings {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// OnCandleBatch extends the pair's sliding window with the new candles and
// evaluates every active strategy bound to pair against it. One strategy's
// failure never aborts its siblings.
func (e *Engine) OnCandleBatch(ctx context.Context, pair string, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	now := e.now()

	// Extend the window and claim throttle slots under the lock,
	// evaluate outside it.
	type job struct {
		cfg  StrategyConfig
		comp *strategy.Composite
	}
	var jobs []job

	e.mu.Lock()
	window := append(e.windows[pair], candles...)
	if len(window) > e.windowSize {
		window = window[len(window)-e.windowSize:]
	}
	e.windows[pair] = window

	for _, b := range e.bindings {
		if b.cfg.Pair != pair {
			continue
		}
		if now.Sub(b.lastEval) < e.minInterval {
			if e.prom != nil {
				e.prom.ThrottledEvals.Inc()
			}
			continue
		}
		b.lastEval = now
		jobs = append(jobs, job{cfg: b.cfg, comp: b.comp})
	}
	e.mu.Unlock()

	for _, j := range jobs {
		e.evaluate(ctx, j.cfg, j.comp, window, now)
	}
}

// evaluate runs one composite and emits a signal if the result qualifies.
func (e *Engine) evaluate(ctx context.Context, cfg StrategyConfig, comp *strategy.Composite, candles []model.Candle, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] strategy %s panicked: %v", cfg.ID, r)
			if e.prom != nil {
				e.prom.EvalErrors.Inc()
			}
		}
	}()

	if e.prom != nil {
		e.prom.EvaluationsTotal.Inc()
	}

	res, err := comp.Analyze(candles)
	if err != nil {
		log.Printf("[engine] strategy %s evaluation failed: %v", cfg.ID, err)
		if e.prom != nil {
			e.prom.EvalErrors.Inc()
		}
		return
	}
	if res.Signal == model.DirectionNeutral || res.Confidence < cfg.MinConfidence {
		return
	}

	last := candles[len(candles)-1]
	sig := model.Signal{
		ID:         model.NewSignalID(cfg.ID, cfg.Pair, now),
		StrategyID: cfg.ID,
		Pair:       cfg.Pair,
		Direction:  res.Signal,
		Price:      last.Close,
		Confidence: res.Confidence,
		Indicators: res.Indicators,
		Reason:     res.Reason,
		CreatedAt:  now,
	}

	start := time.Now()
	if err := e.signals.PersistSignal(ctx, sig); err != nil {
		// Persistence failure aborts emission for this tick only.
		log.Printf("[engine] persist signal %s failed: %v", sig.ID, err)
		return
	}
	if e.prom != nil {
		e.prom.SignalPersistDur.Observe(time.Since(start).Seconds())
	}

	if !e.queue.Enqueue(sig) {
		log.Printf("[engine] signal %s already queued, skipping", sig.ID)
		return
	}
	if e.prom != nil {
		e.prom.SignalsEmitted.WithLabelValues(sig.Pair, string(sig.Direction)).Inc()
	}
	log.Printf("[engine] emitted %s %s conf=%.1f price=%.6f strategy=%s",
		sig.Direction, sig.Pair, sig.Confidence, sig.Price, sig.StrategyID)

	if e.OnEmit != nil {
		e.OnEmit(sig)
	}
}

// Run consumes candle batches from the feed and routes them through
// OnCandleBatch. Blocks until ctx is cancelled or batchCh is closed.
func (e *Engine) Run(ctx context.Context, batchCh <-chan model.CandleBatch) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batchCh:
			if !ok {
				return
			}
			if e.prom != nil {
				e.prom.CandlesTotal.Add(float64(len(batch.Candles)))
			}
			e.OnCandleBatch(ctx, batch.Pair, batch.Candles)
		}
	}
}
