// Package strategy provides the per-indicator decision logic and the
// composite decision algorithm of the signal pipeline.
//
// An indicator Strategy is a stateless function from a candle window to a
// directional signal with a confidence score. The Composite strategy combines
// several weighted indicator outputs into one decision using a selectable
// conflict-resolution mode. All strategies are side-effect-free and safe to
// call concurrently with shared immutable candle data.
package strategy

import (
	"fmt"

	"tradebotv1/internal/model"
)

// Result is the outcome of one strategy evaluation. It is an immutable value,
// created fresh on every Analyze call.
type Result struct {
	Signal     model.Direction    `json:"signal"`
	Confidence float64            `json:"confidence"` // always in [0,100]
	Indicators map[string]float64 `json:"indicators"`
	Reason     string             `json:"reason"`
}

// Neutral returns a NEUTRAL result with zero confidence.
func Neutral(reason string) Result {
	return Result{
		Signal:     model.DirectionNeutral,
		Confidence: 0,
		Indicators: map[string]float64{},
		Reason:     reason,
	}
}

// Strategy is the capability shared by all indicator strategies: analyze a
// candle window and return a directional decision.
type Strategy interface {
	// Name returns the unique strategy name (e.g. "RSI_14").
	Name() string

	// RequiredWindow returns the minimum number of candles Analyze needs.
	RequiredWindow() int

	// Analyze evaluates an ordered candle window. Returns an
	// InsufficientDataError if the window is shorter than RequiredWindow.
	Analyze(candles []model.Candle) (Result, error)
}

// InsufficientDataError reports a candle window too short for an indicator.
// It is non-fatal: callers treat the strategy as NEUTRAL for that tick.
type InsufficientDataError struct {
	Strategy string
	Need     int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d candles, got %d", e.Strategy, e.Need, e.Got)
}

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	_, ok := err.(*InsufficientDataError)
	return ok
}

// clampConfidence bounds a confidence score to [0,100].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// ema computes an exponential moving average series over values with the
// given period. The first EMA value is seeded with the SMA of the first
// period values. Returned series has len(values)-period+1 entries, aligned
// so the last entry corresponds to the last input value.
func ema(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out = append(out, prev)

	k := 2.0 / (float64(period) + 1.0)
	for _, v := range values[period:] {
		prev = (v-prev)*k + prev
		out = append(out, prev)
	}
	return out
}
