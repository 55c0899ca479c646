package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradebotv1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// RunCandleWriter consumes candle batches and inserts them in batched
// transactions. Flushes every defaultBatchSize candles OR every
// defaultFlushDelay, whichever comes first. Blocks until ctx is cancelled or
// batchCh is closed. This is what builds the history the backtester reads.
func (s *Store) RunCandleWriter(ctx context.Context, batchCh <-chan model.CandleBatch) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertCandles(batch); err != nil {
			log.Printf("[sqlite] candle batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case cb, ok := <-batchCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, cb.Candles...)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertCandles inserts a batch of candles in a single transaction.
func (s *Store) insertCandles(candles []model.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (pair, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Pair, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Candles loads the candle history for a pair in [from, to], ordered by
// timestamp. Zero time bounds mean unbounded.
func (s *Store) Candles(ctx context.Context, pair string, from, to time.Time) ([]model.Candle, error) {
	fromTS := int64(0)
	if !from.IsZero() {
		fromTS = from.Unix()
	}
	toTS := int64(1<<62 - 1)
	if !to.IsZero() {
		toTS = to.Unix()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pair, ts, open, high, low, close, volume
		 FROM candles WHERE pair = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`,
		pair, fromTS, toTS,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		var ts int64
		if err := rows.Scan(&c.Pair, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.TS = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastCandleTS returns the newest stored candle timestamp for a pair, or
// zero if none exist.
func (s *Store) LastCandleTS(ctx context.Context, pair string) (time.Time, error) {
	var ts *int64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE pair = ?`, pair,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return time.Unix(*ts, 0).UTC(), nil
}
