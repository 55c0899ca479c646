package strategy

import (
	"fmt"
	"math"

	"tradebotv1/internal/model"
)

const (
	// macdCrossoverFloor is the minimum confidence on a line crossover.
	macdCrossoverFloor = 50.0
	// macdHistScale converts the histogram's size relative to price
	// (in percent) into confidence points.
	macdHistScale = 25.0
)

// MACD detects trend shifts from the fast/slow EMA difference and its signal
// line. A crossover of the MACD line through the signal line emits a BUY or
// SELL with confidence floored at 50; while the line stays on one side of the
// signal, a weaker momentum signal is emitted with confidence derived from
// the histogram magnitude.
type MACD struct {
	name         string
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a MACD strategy. Typical config: 12/26/9.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		name:         fmt.Sprintf("MACD_%d_%d_%d", fast, slow, signal),
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (s *MACD) Name() string { return s.name }

// RequiredWindow needs slow EMA warmup plus signal-line warmup plus one
// extra point for crossover detection.
func (s *MACD) RequiredWindow() int { return s.slowPeriod + s.signalPeriod + 1 }

func (s *MACD) Analyze(candles []model.Candle) (Result, error) {
	if len(candles) < s.RequiredWindow() {
		return Result{}, &InsufficientDataError{Strategy: s.name, Need: s.RequiredWindow(), Got: len(candles)}
	}

	closes := model.Closes(candles)
	fast := ema(closes, s.fastPeriod)
	slow := ema(closes, s.slowPeriod)

	// Align: slow series starts later; both end at the last candle.
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signalLine := ema(macdLine, s.signalPeriod)
	if len(signalLine) < 2 {
		return Result{}, &InsufficientDataError{Strategy: s.name, Need: s.RequiredWindow(), Got: len(candles)}
	}

	macdNow := macdLine[len(macdLine)-1]
	macdPrev := macdLine[len(macdLine)-2]
	sigNow := signalLine[len(signalLine)-1]
	sigPrev := signalLine[len(signalLine)-2]
	hist := macdNow - sigNow

	price := closes[len(closes)-1]
	histPct := 0.0
	if price != 0 {
		histPct = math.Abs(hist) / price * 100
	}

	res := Result{
		Signal:     model.DirectionNeutral,
		Confidence: 0,
		Indicators: map[string]float64{
			"macd":      macdNow,
			"signal":    sigNow,
			"histogram": hist,
		},
		Reason: "MACD flat against signal line",
	}

	crossedUp := macdPrev <= sigPrev && macdNow > sigNow
	crossedDown := macdPrev >= sigPrev && macdNow < sigNow

	switch {
	case crossedUp:
		res.Signal = model.DirectionBuy
		res.Confidence = clampConfidence(macdCrossoverFloor + histPct*macdHistScale)
		res.Reason = "MACD bullish crossover"
	case crossedDown:
		res.Signal = model.DirectionSell
		res.Confidence = clampConfidence(macdCrossoverFloor + histPct*macdHistScale)
		res.Reason = "MACD bearish crossover"
	case macdNow > sigNow:
		res.Signal = model.DirectionBuy
		res.Confidence = clampConfidence(histPct * macdHistScale)
		res.Reason = "MACD above signal line (bullish momentum)"
	case macdNow < sigNow:
		res.Signal = model.DirectionSell
		res.Confidence = clampConfidence(histPct * macdHistScale)
		res.Reason = "MACD below signal line (bearish momentum)"
	}
	return res, nil
}
