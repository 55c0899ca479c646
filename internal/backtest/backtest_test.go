package backtest

import (
	"math"
	"reflect"
	"testing"
	"time"

	"tradebotv1/internal/model"
	"tradebotv1/internal/strategy"
)

// scripted signals on marker closes: 101 is BUY, 120 is SELL.
type scripted struct {
	conf float64
}

func (s scripted) Name() string        { return "scripted" }
func (s scripted) RequiredWindow() int { return 1 }
func (s scripted) Analyze(candles []model.Candle) (strategy.Result, error) {
	last := candles[len(candles)-1].Close
	switch last {
	case 101:
		return strategy.Result{Signal: model.DirectionBuy, Confidence: s.conf, Reason: "marker buy"}, nil
	case 120:
		return strategy.Result{Signal: model.DirectionSell, Confidence: s.conf, Reason: "marker sell"}, nil
	}
	return strategy.Neutral("no marker"), nil
}

func scriptedComposite(conf float64) *strategy.Composite {
	return strategy.NewComposite("bt", strategy.ModeUnanimous,
		[]strategy.WeightedStrategy{{Strategy: scripted{conf: conf}, Weight: 1}}, 0)
}

func candleSeries(closes ...float64) []model.Candle {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Pair:  "SOL/USDC",
			TS:    base.Add(time.Duration(i) * time.Minute),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return out
}

func TestRun_BuySellRoundTrip(t *testing.T) {
	candles := candleSeries(100, 101, 110, 120)
	cfg := Config{
		WindowSize:     2,
		MinConfidence:  70,
		InitialBalance: 10000,
		FeeRate:        0.001,
	}
	res := Run(scriptedComposite(90), candles, cfg)

	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(res.Trades))
	}
	buy, sell := res.Trades[0], res.Trades[1]
	if buy.Type != model.DirectionBuy || sell.Type != model.DirectionSell {
		t.Fatalf("trade types = %s/%s, want BUY/SELL", buy.Type, sell.Type)
	}

	// Fee comes out of the balance before conversion on the BUY, and out of
	// the proceeds on the SELL.
	spend := 10000 * (1 - 0.001)
	pos := spend / 101
	net := pos * 120 * (1 - 0.001)
	wantPnL := net - spend

	if math.Abs(buy.Amount-pos) > 1e-9 {
		t.Errorf("buy amount = %.9f, want %.9f", buy.Amount, pos)
	}
	if buy.BalanceAfter != 0 || buy.PnL != 0 {
		t.Errorf("buy balance/pnl = %.2f/%.2f, want 0/0", buy.BalanceAfter, buy.PnL)
	}
	if math.Abs(sell.PnL-wantPnL) > 1e-9 {
		t.Errorf("sell pnl = %.9f, want %.9f", sell.PnL, wantPnL)
	}
	if math.Abs(sell.BalanceAfter-net) > 1e-9 {
		t.Errorf("sell balance = %.9f, want %.9f", sell.BalanceAfter, net)
	}

	m := res.Metrics
	if m.TotalTrades != 1 || m.WinningTrades != 1 || m.LosingTrades != 0 {
		t.Errorf("trade counts = %d/%d/%d, want 1/1/0", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	if m.WinRate != 1 {
		t.Errorf("win rate = %.2f, want 1", m.WinRate)
	}
	if math.Abs(m.FinalBalance-net) > 1e-9 {
		t.Errorf("final balance = %.9f, want %.9f", m.FinalBalance, net)
	}
	if math.Abs(m.TotalReturn-wantPnL) > 1e-9 {
		t.Errorf("total return = %.9f, want %.9f", m.TotalReturn, wantPnL)
	}
}

func TestRun_SlippageWorksAgainstBothSides(t *testing.T) {
	candles := candleSeries(100, 101, 120)
	cfg := Config{
		WindowSize:     2,
		MinConfidence:  70,
		InitialBalance: 10000,
		SlippageRate:   0.0005,
	}
	res := Run(scriptedComposite(90), candles, cfg)

	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(res.Trades))
	}
	if res.Trades[0].Price <= 101 {
		t.Errorf("buy price = %.4f, want above 101 (slippage against the buyer)", res.Trades[0].Price)
	}
	if res.Trades[1].Price >= 120 {
		t.Errorf("sell price = %.4f, want below 120 (slippage against the seller)", res.Trades[1].Price)
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	candles := candleSeries(100, 101, 110, 120, 100, 101, 99, 120)
	cfg := Config{WindowSize: 2, MinConfidence: 70, InitialBalance: 10000, FeeRate: 0.001, SlippageRate: 0.0005}

	a := Run(scriptedComposite(90), candles, cfg)
	b := Run(scriptedComposite(90), candles, cfg)

	if !reflect.DeepEqual(a.EquityCurve, b.EquityCurve) {
		t.Error("equity curves differ between identical runs")
	}
	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Error("trade ledgers differ between identical runs")
	}
	if a.Metrics != b.Metrics {
		t.Error("metrics differ between identical runs")
	}
}

func TestRun_NoTradesYieldsZeroMetricsNotNaN(t *testing.T) {
	candles := candleSeries(100, 100, 100, 100, 100)
	res := Run(scriptedComposite(90), candles, Config{WindowSize: 2, InitialBalance: 10000})

	if len(res.Trades) != 0 {
		t.Fatalf("trades = %d, want 0", len(res.Trades))
	}
	m := res.Metrics
	for name, v := range map[string]float64{
		"win_rate":      m.WinRate,
		"sharpe":        m.SharpeRatio,
		"profit_factor": m.ProfitFactor,
		"avg_win":       m.AvgWin,
		"avg_loss":      m.AvgLoss,
		"max_drawdown":  m.MaxDrawdown,
	} {
		if math.IsNaN(v) || v != 0 {
			t.Errorf("%s = %v, want 0", name, v)
		}
	}
	if m.FinalBalance != 10000 {
		t.Errorf("final balance = %.2f, want untouched 10000", m.FinalBalance)
	}
}

func TestRun_BuyIgnoredWhileHoldingAndSellIgnoredWhileFlat(t *testing.T) {
	// Leading SELL marker with no position, then two BUY markers in a row.
	candles := candleSeries(100, 120, 101, 101, 120)
	res := Run(scriptedComposite(90), candles, Config{WindowSize: 2, MinConfidence: 70, InitialBalance: 10000})

	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2 (one BUY, one SELL)", len(res.Trades))
	}
	if res.Trades[0].Type != model.DirectionBuy || res.Trades[1].Type != model.DirectionSell {
		t.Errorf("trade types = %s/%s, want BUY then SELL", res.Trades[0].Type, res.Trades[1].Type)
	}
}

func TestRun_MinConfidenceGate(t *testing.T) {
	candles := candleSeries(100, 101, 120)
	res := Run(scriptedComposite(60), candles, Config{WindowSize: 2, MinConfidence: 70, InitialBalance: 10000})
	if len(res.Trades) != 0 {
		t.Fatalf("trades = %d, want 0 below min confidence", len(res.Trades))
	}
}

func TestRun_OneEquityPointPerProcessedCandle(t *testing.T) {
	candles := candleSeries(100, 101, 110, 120, 100)
	res := Run(scriptedComposite(90), candles, Config{WindowSize: 3, MinConfidence: 70, InitialBalance: 10000})
	if got, want := len(res.EquityCurve), len(candles)-3+1; got != want {
		t.Fatalf("equity points = %d, want %d", got, want)
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 200, trough 100: 50% drawdown.
	dd := maxDrawdown([]float64{100, 200, 150, 100, 180})
	if math.Abs(dd-50) > 1e-9 {
		t.Errorf("max drawdown = %.4f, want 50", dd)
	}
	if maxDrawdown(nil) != 0 {
		t.Error("empty curve should have zero drawdown")
	}
}

func TestSharpe_FlatCurveIsZero(t *testing.T) {
	if s := sharpe([]float64{100, 100, 100}); s != 0 {
		t.Errorf("sharpe = %.4f, want 0 for zero variance", s)
	}
	if s := sharpe([]float64{100}); s != 0 {
		t.Errorf("sharpe = %.4f, want 0 for a single point", s)
	}
}
