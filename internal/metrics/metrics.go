// Package metrics exposes Prometheus metrics and health reporting for the
// signal pipeline.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Market data
	CandlesTotal prometheus.Counter
	WSReconnects prometheus.Counter
	FanoutDrops  *prometheus.CounterVec // labels: subscriber

	// Strategy engine
	EvaluationsTotal prometheus.Counter
	ThrottledEvals   prometheus.Counter
	EvalErrors       prometheus.Counter
	SignalsEmitted   *prometheus.CounterVec // labels: pair, direction
	SignalPersistDur prometheus.Histogram

	// Trading queue
	QueueWaiting      prometheus.Gauge
	QueueActive       prometheus.Gauge
	QueueDuplicates   prometheus.Counter
	DispatchDur       prometheus.Histogram
	DispatchRetries   prometheus.Counter
	DispatchFailures  prometheus.Counter
	DispatchCompleted prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_total",
			Help: "Total candles received from the market-data feed",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ws_reconnects_total",
			Help: "Total feed WebSocket reconnection attempts",
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_fanout_drops_total",
			Help: "Candle batches dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),

		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_strategy_evaluations_total",
			Help: "Total composite strategy evaluations",
		}),
		ThrottledEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_strategy_throttled_total",
			Help: "Evaluations skipped by the per-strategy throttle",
		}),
		EvalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_strategy_eval_errors_total",
			Help: "Strategy evaluations that failed",
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_emitted_total",
			Help: "Signals persisted and handed to the trading queue",
		}, []string{"pair", "direction"}),
		SignalPersistDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_signal_persist_duration_seconds",
			Help:    "Signal persistence latency",
			Buckets: prometheus.DefBuckets,
		}),

		QueueWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_queue_waiting",
			Help: "Jobs waiting for dispatch",
		}),
		QueueActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_queue_active",
			Help: "Jobs currently dispatching",
		}),
		QueueDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_queue_duplicates_total",
			Help: "Enqueue attempts rejected as duplicates",
		}),
		DispatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_dispatch_duration_seconds",
			Help:    "Execution collaborator call latency",
			Buckets: prometheus.DefBuckets,
		}),
		DispatchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_dispatch_retries_total",
			Help: "Dispatch attempts scheduled for retry",
		}),
		DispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_dispatch_failures_total",
			Help: "Jobs that reached the terminal failed state",
		}),
		DispatchCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_dispatch_completed_total",
			Help: "Jobs that reached the terminal completed state",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.WSReconnects,
		m.FanoutDrops,
		m.EvaluationsTotal,
		m.ThrottledEvals,
		m.EvalErrors,
		m.SignalsEmitted,
		m.SignalPersistDur,
		m.QueueWaiting,
		m.QueueActive,
		m.QueueDuplicates,
		m.DispatchDur,
		m.DispatchRetries,
		m.DispatchFailures,
		m.DispatchCompleted,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected      bool      `json:"ws_connected"`
	LastCandleTime   time.Time `json:"last_candle_time"`
	RedisConnected   bool      `json:"redis_connected"`
	SQLiteOK         bool      `json:"sqlite_ok"`
	ActiveStrategies int       `json:"active_strategies"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetActiveStrategies(n int) {
	h.mu.Lock()
	h.ActiveStrategies = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		WSConnected      bool    `json:"ws_connected"`
		LastCandleTime   string  `json:"last_candle_time"`
		CandleAge        string  `json:"candle_age"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		SQLiteOK         bool    `json:"sqlite_ok"`
		SQLiteLatencyMs  float64 `json:"sqlite_latency_ms"`
		ActiveStrategies int     `json:"active_strategies"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:      h.WSConnected,
		LastCandleTime:   h.LastCandleTime.Format(time.RFC3339),
		CandleAge:        candleAge,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
		ActiveStrategies: h.ActiveStrategies,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
