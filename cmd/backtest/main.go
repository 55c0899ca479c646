// cmd/backtest replays historical candles from SQLite through a composite
// strategy and prints trade-by-trade results plus performance metrics.
//
// Usage:
//
//	go run ./cmd/backtest --pair=SOL/USDC --members=RSI:14,MACD:12:26:9 --mode=MAJORITY
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"tradebotv1/internal/backtest"
	"tradebotv1/internal/strategy"
	sqlitestore "tradebotv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	pair := flag.String("pair", "SOL/USDC", "Trading pair to backtest")
	dbPath := flag.String("db", "data/bot.db", "Path to SQLite database")
	mode := flag.String("mode", "MAJORITY", "Composite mode: UNANIMOUS, MAJORITY, WEIGHTED")
	members := flag.String("members", "RSI:14,MACD:12:26:9,BB:20:2", "Member specs: TYPE:PARAMS,...")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start from (0=all)")
	toTS := flag.Int64("to", 0, "Unix timestamp to stop at (0=all)")
	window := flag.Int("window", 100, "Candles per evaluation window")
	minConf := flag.Float64("min-confidence", 70, "Act only at or above this confidence")
	balance := flag.Float64("balance", 10000, "Initial balance")
	feeRate := flag.Float64("fee", 0.001, "Fee rate per trade (0.001 = 0.1%)")
	slippage := flag.Float64("slippage", 0.0005, "Slippage rate against each trade")
	verbose := flag.Bool("v", false, "Print every trade")
	flag.Parse()

	memberCfgs := strategy.ParseMemberSpecs(*members)
	if len(memberCfgs) == 0 {
		log.Fatal("[backtest] no valid member specs")
	}

	comp, err := strategy.Build("backtest", strategy.CompositeConfig{
		Mode:    strategy.Mode(*mode),
		Members: memberCfgs,
	})
	if err != nil {
		log.Fatalf("[backtest] composite build failed: %v", err)
	}

	store, err := sqlitestore.New(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	var from, to time.Time
	if *fromTS > 0 {
		from = time.Unix(*fromTS, 0).UTC()
	}
	if *toTS > 0 {
		to = time.Unix(*toTS, 0).UTC()
	}

	candles, err := store.Candles(context.Background(), *pair, from, to)
	if err != nil {
		log.Fatalf("[backtest] candle load failed: %v", err)
	}
	if len(candles) < *window {
		log.Fatalf("[backtest] only %d candles for %s, need at least %d", len(candles), *pair, *window)
	}
	log.Printf("[backtest] replaying %d candles for %s (%s mode, %d members)",
		len(candles), *pair, *mode, len(memberCfgs))

	start := time.Now()
	res := backtest.Run(comp, candles, backtest.Config{
		WindowSize:     *window,
		MinConfidence:  *minConf,
		InitialBalance: *balance,
		FeeRate:        *feeRate,
		SlippageRate:   *slippage,
	})
	elapsed := time.Since(start)

	if *verbose {
		for _, t := range res.Trades {
			fmt.Printf("  [%s] %-4s price=%.6f amount=%.6f pnl=%+.2f conf=%.1f %s\n",
				t.TS.Format("2006-01-02 15:04:05"), t.Type, t.Price, t.Amount, t.PnL, t.Confidence, t.Reason)
		}
	}

	m := res.Metrics
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles:        %-19d ║\n", len(candles))
	fmt.Printf("║  Round trips:    %-19d ║\n", m.TotalTrades)
	fmt.Printf("║  Win rate:       %-18.1f%% ║\n", m.WinRate*100)
	fmt.Printf("║  Total return:   %-19.2f ║\n", m.TotalReturn)
	fmt.Printf("║  Return:         %-18.2f%% ║\n", m.PercentReturn)
	fmt.Printf("║  Max drawdown:   %-18.2f%% ║\n", m.MaxDrawdown)
	fmt.Printf("║  Sharpe:         %-19.3f ║\n", m.SharpeRatio)
	fmt.Printf("║  Profit factor:  %-19.3f ║\n", m.ProfitFactor)
	fmt.Printf("║  Final balance:  %-19.2f ║\n", m.FinalBalance)
	fmt.Printf("║  Elapsed:        %-19v ║\n", elapsed.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}
