// botd runs the live signal pipeline: feed -> fan-out -> strategy engine ->
// trading queue -> paper executor, with SQLite persistence, Redis pub/sub,
// Prometheus metrics, and an HTTP control API.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"tradebotv1/config"
	"tradebotv1/internal/api"
	"tradebotv1/internal/engine"
	"tradebotv1/internal/execution"
	"tradebotv1/internal/logger"
	"tradebotv1/internal/marketdata/bus"
	"tradebotv1/internal/marketdata/feed"
	"tradebotv1/internal/metrics"
	"tradebotv1/internal/model"
	"tradebotv1/internal/notification"
	"tradebotv1/internal/queue"
	redisstore "tradebotv1/internal/store/redis"
	sqlitestore "tradebotv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[botd] starting...")

	cfg := config.Load()
	pairs := cfg.ParsePairs()
	log.Printf("[botd] trading pairs: %v", pairs)

	// Structured audit log for signal events, alongside the plain pipeline log.
	auditLog := logger.Init("botd", slog.LevelInfo)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite (strategies, signals, candles) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[botd] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis (signal pub/sub + live reload), optional ----
	var rds *redisstore.Store
	rds, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[botd] WARNING: redis init failed: %v (continuing without redis)", err)
		rds = nil
	} else {
		defer rds.Close()
		health.SetRedisConnected(true)
	}

	if rds != nil {
		health.StartLivenessChecker(ctx, rds.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Notifications ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
	}

	// ---- Execution (paper) + fill journal ----
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[botd] journal init failed: %v", err)
	}
	defer journal.Close()
	exec := execution.NewPaperExecutor(cfg.SlippageBps, journal)

	// ---- Trading queue ----
	tq := queue.New(exec, queue.Config{
		Workers:       cfg.QueueWorkers,
		RatePerSecond: float64(cfg.QueueRatePerSecond),
		MaxAttempts:   cfg.QueueMaxAttempts,
	}, prom)
	tq.OnFailed = func(job queue.TradeJob) {
		alertCtx, alertCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer alertCancel()
		if err := notifier.Send(alertCtx, notification.DispatchFailureAlert(job.ID, job.LastError)); err != nil {
			log.Printf("[botd] failure alert not delivered: %v", err)
		}
	}
	go tq.Run(ctx)

	// ---- Strategy engine ----
	eng := engine.New(store, store, tq, cfg.EvalMinInterval, prom)
	eng.OnEmit = func(sig model.Signal) {
		emitCtx, emitCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer emitCancel()
		emitCtx = logger.WithTraceID(emitCtx, logger.GenerateTraceID(sig.Pair, sig.CreatedAt))

		attrs := append([]any{
			slog.String("signal_id", sig.ID),
			slog.String("strategy", sig.StrategyID),
			slog.String("pair", sig.Pair),
			slog.String("direction", string(sig.Direction)),
			slog.Float64("confidence", sig.Confidence),
			slog.Float64("price", sig.Price),
		}, logger.LogWithTrace(emitCtx)...)
		auditLog.Info("signal emitted", attrs...)

		if rds != nil {
			rds.PublishSignal(emitCtx, sig)
		}
		if err := notifier.Send(emitCtx, notification.SignalAlert(sig)); err != nil {
			log.Printf("[botd] signal alert not delivered: %v", err)
		}
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("[botd] engine start failed: %v", err)
	}
	health.SetActiveStrategies(eng.ActiveCount())

	// ---- Live strategy reload via Redis pub/sub ----
	if rds != nil {
		go rds.RunReloadSubscriber(ctx, func(rctx context.Context, id string) error {
			err := eng.Reload(rctx, id)
			health.SetActiveStrategies(eng.ActiveCount())
			return err
		})
	}

	// ---- Market data: feed -> fan-out -> engine + candle writer ----
	batchCh := make(chan model.CandleBatch, 5000)

	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}
	engineCh := fanout.Subscribe()
	candleWriterCh := fanout.Subscribe()
	go fanout.Run(ctx, batchCh)

	go eng.Run(ctx, engineCh)
	go store.RunCandleWriter(ctx, candleWriterCh)

	fd := feed.New(feed.Config{URL: cfg.FeedWSURL, Pairs: pairs})
	fd.OnConnect = func() { health.SetWSConnected(true) }
	fd.OnReconnect = func() {
		health.SetWSConnected(false)
		prom.WSReconnects.Inc()
	}
	// Candle counting happens in the engine consumer; the feed hook only
	// tracks freshness for /healthz.
	fd.OnBatch = func(batch model.CandleBatch) {
		if n := len(batch.Candles); n > 0 {
			health.SetLastCandleTime(batch.Candles[n-1].TS)
		}
	}
	go func() {
		if err := fd.Run(ctx, batchCh); err != nil && ctx.Err() == nil {
			log.Printf("[botd] feed stopped: %v", err)
		}
	}()

	// ---- Control API ----
	apiSrv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: api.NewRouter(api.Deps{Engine: eng, Queue: tq, Store: store}),
	}
	go func() {
		log.Printf("[api] server listening on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	log.Println("[botd] pipeline running")
	<-sigCh
	log.Println("[botd] shutdown signal received, draining...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[botd] stopped")
}
