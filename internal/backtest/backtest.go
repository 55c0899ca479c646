// Package backtest replays a composite strategy over historical candles with
// a fee/slippage model, producing a trade ledger, an equity curve, and
// aggregate risk metrics.
//
// The simulator is single-threaded and deterministic: identical inputs always
// yield identical ledgers and metrics, which is what makes it usable as a
// strategy-comparison tool.
package backtest

import (
	"log"
	"time"

	"tradebotv1/internal/model"
	"tradebotv1/internal/strategy"
)

// Config holds simulation parameters.
type Config struct {
	WindowSize     int     // candles per evaluation window
	MinConfidence  float64 // act only at or above this confidence
	InitialBalance float64
	FeeRate        float64 // e.g. 0.001 = 0.1% per trade
	SlippageRate   float64 // e.g. 0.0005 = 5 bps against the trade
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 100
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 70
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = 10000
	}
	return c
}

// Trade is one append-only ledger entry. BUY entries carry zero PnL; the
// realized PnL lands on the closing SELL.
type Trade struct {
	TS            time.Time       `json:"ts"`
	Type          model.Direction `json:"type"`
	Price         float64         `json:"price"` // effective price incl. slippage
	Amount        float64         `json:"amount"`
	BalanceAfter  float64         `json:"balance_after"`
	PositionAfter float64         `json:"position_after"`
	PnL           float64         `json:"pnl"`
	Confidence    float64         `json:"confidence"`
	Reason        string          `json:"reason"`
}

// Result bundles everything one run produces.
type Result struct {
	Trades      []Trade   `json:"trades"`
	EquityCurve []float64 `json:"equity_curve"`
	Metrics     Metrics   `json:"metrics"`
}

// Run slides a fixed-size window across the candle history one candle at a
// time and trades an all-in/all-out long-only position on qualifying
// composite decisions. A per-candle evaluation error skips that candle.
func Run(comp *strategy.Composite, candles []model.Candle, cfg Config) *Result {
	cfg = cfg.withDefaults()

	res := &Result{
		Trades:      []Trade{},
		EquityCurve: make([]float64, 0, len(candles)),
	}

	balance := cfg.InitialBalance
	position := 0.0  // units of the asset held
	costBasis := 0.0 // cash spent (net of fee) on the open position

	for i := cfg.WindowSize; i <= len(candles); i++ {
		window := candles[i-cfg.WindowSize : i]
		last := window[len(window)-1]

		decision, err := comp.Analyze(window)
		if err != nil {
			log.Printf("[backtest] candle %s evaluation error, skipping: %v", last.TS.Format(time.RFC3339), err)
			res.EquityCurve = append(res.EquityCurve, balance+position*last.Close)
			continue
		}

		if decision.Signal != model.DirectionNeutral && decision.Confidence >= cfg.MinConfidence {
			switch decision.Signal {
			case model.DirectionBuy:
				if position == 0 && balance > 0 {
					fee := balance * cfg.FeeRate
					spend := balance - fee
					price := last.Close * (1 + cfg.SlippageRate)
					position = spend / price
					costBasis = spend
					balance = 0
					res.Trades = append(res.Trades, Trade{
						TS:            last.TS,
						Type:          model.DirectionBuy,
						Price:         price,
						Amount:        position,
						BalanceAfter:  balance,
						PositionAfter: position,
						Confidence:    decision.Confidence,
						Reason:        decision.Reason,
					})
				}
			case model.DirectionSell:
				if position > 0 {
					price := last.Close * (1 - cfg.SlippageRate)
					proceeds := position * price
					fee := proceeds * cfg.FeeRate
					net := proceeds - fee
					pnl := net - costBasis
					amount := position
					balance = net
					position = 0
					costBasis = 0
					res.Trades = append(res.Trades, Trade{
						TS:            last.TS,
						Type:          model.DirectionSell,
						Price:         price,
						Amount:        amount,
						BalanceAfter:  balance,
						PositionAfter: 0,
						PnL:           pnl,
						Confidence:    decision.Confidence,
						Reason:        decision.Reason,
					})
				}
			}
		}

		// One equity point per processed candle, trade or not; drawdown and
		// Sharpe need the full curve, not just trade events.
		res.EquityCurve = append(res.EquityCurve, balance+position*last.Close)
	}

	res.Metrics = computeMetrics(res.Trades, res.EquityCurve, cfg.InitialBalance)
	return res
}
