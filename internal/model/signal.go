package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the action a signal recommends.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Signal is an actionable trading decision produced by the strategy engine.
// It is created exactly once per qualifying evaluation and handed to the
// trading queue; terminal execution states are recorded downstream.
type Signal struct {
	ID         string             `json:"id"`
	StrategyID string             `json:"strategy_id"`
	Pair       string             `json:"pair"`
	Direction  Direction          `json:"direction"` // BUY or SELL only
	Price      float64            `json:"price"`
	Confidence float64            `json:"confidence"` // 0..100
	Indicators map[string]float64 `json:"indicators"`
	Reason     string             `json:"reason"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewSignalID builds a stable signal identifier from its origin strategy,
// pair and evaluation time. Same evaluation → same ID, so a re-emit is
// deduplicated by the queue.
func NewSignalID(strategyID, pair string, ts time.Time) string {
	return fmt.Sprintf("%s:%s:%d", strategyID, pair, ts.UnixNano())
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
