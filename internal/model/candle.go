package model

import (
	"encoding/json"
	"time"
)

// Candle represents one closed OHLCV candle for a trading pair.
// Candles arrive from the market-data feed in non-decreasing timestamp
// order per pair and are immutable once closed.
type Candle struct {
	Pair   string    `json:"pair"`
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// CandleBatch is the unit the market-data feed delivers: one pair plus its
// newly closed candles, ordered by timestamp.
type CandleBatch struct {
	Pair    string   `json:"pair"`
	Candles []Candle `json:"candles"`
}

// Closes extracts the close prices of a candle window, in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
