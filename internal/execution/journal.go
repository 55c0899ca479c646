package execution

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists order fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		signal_id   TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		pair        TEXT NOT NULL,
		direction   TEXT NOT NULL,
		fill_price  REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		confidence  REAL NOT NULL,
		indicators  TEXT,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_strategy ON fills(strategy_id);
	CREATE INDEX IF NOT EXISTS idx_fills_pair ON fills(pair);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened fill journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	indicators, _ := json.Marshal(fill.Signal.Indicators)
	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, signal_id, strategy_id, pair, direction, fill_price, slippage, confidence, indicators, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Signal.ID,
		fill.Signal.StrategyID,
		fill.Signal.Pair,
		string(fill.Signal.Direction),
		fill.FillPrice,
		fill.Slippage,
		fill.Signal.Confidence,
		string(indicators),
		fill.Signal.Reason,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// FillRecord represents a row from the fills table.
type FillRecord struct {
	ID         int64   `json:"id"`
	OrderID    string  `json:"order_id"`
	SignalID   string  `json:"signal_id"`
	StrategyID string  `json:"strategy_id"`
	Pair       string  `json:"pair"`
	Direction  string  `json:"direction"`
	FillPrice  float64 `json:"fill_price"`
	Slippage   float64 `json:"slippage"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	FilledAt   string  `json:"filled_at"`
}

// Fills returns the last N fills, newest first.
func (j *Journal) Fills(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, signal_id, strategy_id, pair, direction, fill_price, slippage, confidence, reason, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		if err := rows.Scan(&f.ID, &f.OrderID, &f.SignalID, &f.StrategyID, &f.Pair,
			&f.Direction, &f.FillPrice, &f.Slippage, &f.Confidence, &f.Reason, &f.FilledAt); err != nil {
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
