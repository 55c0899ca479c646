package strategy

import (
	"fmt"
	"math"

	"tradebotv1/internal/model"
)

const (
	bollingerBuyThreshold  = 0.1
	bollingerSellThreshold = 0.9
	// bollingerFloor is the minimum confidence once %B crosses a threshold.
	bollingerFloor = 60.0
	// bollingerScale converts distance past the threshold into confidence
	// points on top of the floor.
	bollingerScale = 400.0
)

// Bollinger is a mean-reversion strategy on %B: the position of the close
// between the lower and upper bands. %B at or below 0.1 emits BUY, at or
// above 0.9 emits SELL, with confidence scaled by the distance past the
// threshold. The 0.4-0.6 band is explicitly neutral.
type Bollinger struct {
	name   string
	period int
	stdDev float64
}

// NewBollinger creates a Bollinger %B strategy. Typical config: period 20,
// stdDev 2.
func NewBollinger(period int, stdDev float64) *Bollinger {
	return &Bollinger{
		name:   fmt.Sprintf("BB_%d", period),
		period: period,
		stdDev: stdDev,
	}
}

func (s *Bollinger) Name() string { return s.name }

func (s *Bollinger) RequiredWindow() int { return s.period }

func (s *Bollinger) Analyze(candles []model.Candle) (Result, error) {
	if len(candles) < s.RequiredWindow() {
		return Result{}, &InsufficientDataError{Strategy: s.name, Need: s.RequiredWindow(), Got: len(candles)}
	}

	closes := model.Closes(candles)
	window := closes[len(closes)-s.period:]

	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(s.period)

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(s.period))

	upper := mean + s.stdDev*sd
	lower := mean - s.stdDev*sd
	price := closes[len(closes)-1]

	// Degenerate band (flat prices): %B is undefined, treat as mid-band.
	pctB := 0.5
	if upper != lower {
		pctB = (price - lower) / (upper - lower)
	}

	res := Result{
		Signal:     model.DirectionNeutral,
		Confidence: 0,
		Indicators: map[string]float64{
			"percent_b": pctB,
			"upper":     upper,
			"middle":    mean,
			"lower":     lower,
		},
		Reason: fmt.Sprintf("%%B %.2f between bands", pctB),
	}

	switch {
	case pctB <= bollingerBuyThreshold:
		res.Signal = model.DirectionBuy
		res.Confidence = clampConfidence(bollingerFloor + (bollingerBuyThreshold-pctB)*bollingerScale)
		res.Reason = fmt.Sprintf("price at lower band (%%B %.2f)", pctB)
	case pctB >= bollingerSellThreshold:
		res.Signal = model.DirectionSell
		res.Confidence = clampConfidence(bollingerFloor + (pctB-bollingerSellThreshold)*bollingerScale)
		res.Reason = fmt.Sprintf("price at upper band (%%B %.2f)", pctB)
	case pctB >= 0.4 && pctB <= 0.6:
		res.Reason = fmt.Sprintf("%%B %.2f in neutral band", pctB)
	}
	return res, nil
}
