package backtest

import (
	"math"

	"tradebotv1/internal/model"
)

// annualization factor for the simplified Sharpe ratio: each candle step is
// treated as one period, 252 periods per year.
const sharpeAnnualization = 252

// Metrics are the aggregate performance numbers of one backtest run. Every
// rate-based metric is 0 (never NaN) when its subset of trades is empty.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"` // closed round trips
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalReturn   float64 `json:"total_return"`
	PercentReturn float64 `json:"percent_return"`
	MaxDrawdown   float64 `json:"max_drawdown"` // largest peak-to-trough %
	SharpeRatio   float64 `json:"sharpe_ratio"`
	ProfitFactor  float64 `json:"profit_factor"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	FinalBalance  float64 `json:"final_balance"`
}

func computeMetrics(trades []Trade, equity []float64, initialBalance float64) Metrics {
	var m Metrics

	var grossWin, grossLoss float64
	for _, t := range trades {
		if t.Type != model.DirectionSell {
			continue
		}
		m.TotalTrades++
		if t.PnL > 0 {
			m.WinningTrades++
			grossWin += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		} else {
			m.LosingTrades++
			grossLoss += -t.PnL
			if -t.PnL > m.LargestLoss {
				m.LargestLoss = -t.PnL
			}
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLoss / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}

	final := initialBalance
	if len(equity) > 0 {
		final = equity[len(equity)-1]
	}
	m.FinalBalance = final
	m.TotalReturn = final - initialBalance
	if initialBalance > 0 {
		m.PercentReturn = m.TotalReturn / initialBalance * 100
	}

	m.MaxDrawdown = maxDrawdown(equity)
	m.SharpeRatio = sharpe(equity)
	return m
}

// maxDrawdown returns the largest peak-to-trough percentage drop in the
// equity curve.
func maxDrawdown(equity []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			dd := (peak - eq) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpe computes mean(per-step return)/stddev(per-step return) annualized
// by sqrt(252). Returns 0 when the stddev is 0.
func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(variance / float64(len(returns)))
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(sharpeAnnualization)
}
