// Package sqlite persists strategy configurations, emitted signals, and
// candle history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradebotv1/internal/engine"
	"tradebotv1/internal/model"
	"tradebotv1/internal/strategy"
)

// Store wraps the SQLite database. It implements the engine's ConfigStore
// and SignalStore boundaries.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database with WAL mode and the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer keeps WAL contention away.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS strategies (
			id             TEXT PRIMARY KEY,
			pair           TEXT    NOT NULL,
			status         TEXT    NOT NULL DEFAULT 'ACTIVE',
			min_confidence REAL    NOT NULL DEFAULT 70,
			composite      TEXT    NOT NULL,
			updated_at     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signals (
			id          TEXT PRIMARY KEY,
			strategy_id TEXT    NOT NULL,
			pair        TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			price       REAL    NOT NULL,
			confidence  REAL    NOT NULL,
			indicators  TEXT,
			reason      TEXT,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_id, created_at);

		CREATE TABLE IF NOT EXISTS candles (
			pair   TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (pair, ts)
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveStrategy inserts or replaces a strategy configuration.
func (s *Store) SaveStrategy(ctx context.Context, cfg engine.StrategyConfig) error {
	composite, err := json.Marshal(cfg.Composite)
	if err != nil {
		return fmt.Errorf("sqlite: marshal composite: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO strategies (id, pair, status, min_confidence, composite, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Pair, cfg.Status, cfg.MinConfidence, string(composite), time.Now().Unix(),
	)
	return err
}

// ListActive returns every strategy configuration with status ACTIVE.
func (s *Store) ListActive(ctx context.Context) ([]engine.StrategyConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pair, status, min_confidence, composite FROM strategies WHERE status = ?`,
		engine.StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list strategies: %w", err)
	}
	defer rows.Close()

	var out []engine.StrategyConfig
	for rows.Next() {
		cfg, err := scanStrategy(rows)
		if err != nil {
			log.Printf("[sqlite] skipping unreadable strategy row: %v", err)
			continue
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Get returns one strategy configuration by ID.
func (s *Store) Get(ctx context.Context, id string) (engine.StrategyConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pair, status, min_confidence, composite FROM strategies WHERE id = ?`, id)
	return scanStrategy(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (engine.StrategyConfig, error) {
	var cfg engine.StrategyConfig
	var composite string
	if err := row.Scan(&cfg.ID, &cfg.Pair, &cfg.Status, &cfg.MinConfidence, &composite); err != nil {
		return engine.StrategyConfig{}, err
	}
	var cc strategy.CompositeConfig
	if err := json.Unmarshal([]byte(composite), &cc); err != nil {
		return engine.StrategyConfig{}, fmt.Errorf("strategy %s: bad composite config: %w", cfg.ID, err)
	}
	cfg.Composite = cc
	return cfg, nil
}

// PersistSignal records an emitted signal. Must succeed before the signal is
// handed to the queue.
func (s *Store) PersistSignal(ctx context.Context, sig model.Signal) error {
	indicators, _ := json.Marshal(sig.Indicators)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (id, strategy_id, pair, direction, price, confidence, indicators, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.StrategyID, sig.Pair, string(sig.Direction), sig.Price,
		sig.Confidence, string(indicators), sig.Reason, sig.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: persist signal %s: %w", sig.ID, err)
	}
	return nil
}

// RecentSignals returns the last N signals, newest first.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, pair, direction, price, confidence, indicators, reason, created_at
		 FROM signals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		var direction, indicators string
		var createdAt int64
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Pair, &direction, &sig.Price,
			&sig.Confidence, &indicators, &sig.Reason, &createdAt); err != nil {
			continue
		}
		sig.Direction = model.Direction(direction)
		sig.CreatedAt = time.Unix(0, createdAt).UTC()
		json.Unmarshal([]byte(indicators), &sig.Indicators)
		out = append(out, sig)
	}
	return out, rows.Err()
}
