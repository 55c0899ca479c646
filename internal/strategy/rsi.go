package strategy

import (
	"fmt"

	"tradebotv1/internal/model"
)

// rsiConfidenceScale converts distance past an RSI threshold into confidence.
const rsiConfidenceScale = 3.0

// RSI is a momentum oscillator strategy. It emits BUY when the RSI drops
// below the oversold threshold and SELL when it rises above the overbought
// threshold, with confidence scaled linearly by the distance past the
// threshold.
type RSI struct {
	name       string
	period     int
	oversold   float64
	overbought float64
}

// NewRSI creates an RSI strategy. Typical config: period 14, oversold 30,
// overbought 70.
func NewRSI(period int, oversold, overbought float64) *RSI {
	return &RSI{
		name:       fmt.Sprintf("RSI_%d", period),
		period:     period,
		oversold:   oversold,
		overbought: overbought,
	}
}

func (s *RSI) Name() string { return s.name }

// RequiredWindow needs period+1 closes for the first period changes.
func (s *RSI) RequiredWindow() int { return s.period + 1 }

func (s *RSI) Analyze(candles []model.Candle) (Result, error) {
	if len(candles) < s.RequiredWindow() {
		return Result{}, &InsufficientDataError{Strategy: s.name, Need: s.RequiredWindow(), Got: len(candles)}
	}

	rsi := computeRSI(model.Closes(candles), s.period)

	res := Result{
		Signal:     model.DirectionNeutral,
		Confidence: 0,
		Indicators: map[string]float64{"rsi": rsi},
		Reason:     fmt.Sprintf("RSI %.1f within neutral range", rsi),
	}

	switch {
	case rsi <= s.oversold:
		res.Signal = model.DirectionBuy
		res.Confidence = clampConfidence((s.oversold - rsi) * rsiConfidenceScale)
		res.Reason = fmt.Sprintf("RSI %.1f below oversold %.0f", rsi, s.oversold)
	case rsi >= s.overbought:
		res.Signal = model.DirectionSell
		res.Confidence = clampConfidence((rsi - s.overbought) * rsiConfidenceScale)
		res.Reason = fmt.Sprintf("RSI %.1f above overbought %.0f", rsi, s.overbought)
	}
	return res, nil
}

// computeRSI calculates the Wilder-smoothed RSI over the full window,
// using the last `period` changes for the seed averages and smoothing the
// remainder. closes must have at least period+1 entries.
func computeRSI(closes []float64, period int) float64 {
	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	n := float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain = (avgGain*(n-1) + change) / n
			avgLoss = (avgLoss * (n - 1)) / n
		} else {
			avgGain = (avgGain * (n - 1)) / n
			avgLoss = (avgLoss*(n-1) - change) / n
		}
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
