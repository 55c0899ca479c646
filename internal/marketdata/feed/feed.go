// Package feed connects to the market-data WebSocket and pushes ordered
// candle batches into the pipeline. Only the output contract matters to the
// core: at most one batch per closed candle per pair, candles in
// non-decreasing timestamp order.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"tradebotv1/internal/model"
)

const (
	reconnectBase = 2 * time.Second
	reconnectMax  = 60 * time.Second
	readTimeout   = 90 * time.Second
)

// Config holds configuration for the feed client.
type Config struct {
	URL   string   // WebSocket endpoint, e.g. "wss://feed.example.com/v1/candles"
	Pairs []string // pairs to subscribe, e.g. ["SOL/USDC", "BONK/SOL"]
}

// subscribeMsg is the subscription request sent after connecting.
type subscribeMsg struct {
	Op    string   `json:"op"`
	Pairs []string `json:"pairs"`
}

// candleMsg is one inbound feed message.
type candleMsg struct {
	Type    string         `json:"type"`
	Pair    string         `json:"pair"`
	Candles []model.Candle `json:"candles"`
}

// Feed streams candle batches from the market-data WebSocket with automatic
// reconnection.
type Feed struct {
	cfg Config

	// Optional hooks for health/metrics.
	OnConnect   func()
	OnReconnect func()
	OnBatch     func(batch model.CandleBatch)
}

// New creates a feed client.
func New(cfg Config) *Feed {
	return &Feed{cfg: cfg}
}

// Run connects and streams batches into out until ctx is cancelled.
// Connection loss triggers reconnection with capped exponential backoff.
func (f *Feed) Run(ctx context.Context, out chan<- model.CandleBatch) error {
	backoff := reconnectBase
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := f.stream(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[feed] connection lost: %v (reconnecting in %v)", err, backoff)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// stream runs one connection: dial, subscribe, read until failure.
func (f *Feed) stream(ctx context.Context, out chan<- model.CandleBatch) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed dial %s: %w", f.cfg.URL, err)
	}
	defer conn.Close()

	// Unblock the read loop on shutdown.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Pairs: f.cfg.Pairs}); err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	log.Printf("[feed] connected to %s, subscribed %d pairs", f.cfg.URL, len(f.cfg.Pairs))
	if f.OnConnect != nil {
		f.OnConnect()
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed read: %w", err)
		}

		var msg candleMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[feed] bad message, skipping: %v", err)
			continue
		}
		if msg.Type != "candles" || len(msg.Candles) == 0 {
			continue
		}

		batch := model.CandleBatch{Pair: msg.Pair, Candles: msg.Candles}
		if f.OnBatch != nil {
			f.OnBatch(batch)
		}
		select {
		case out <- batch:
		default:
			log.Printf("[feed] output channel full, dropping batch for %s", msg.Pair)
		}
	}
}
