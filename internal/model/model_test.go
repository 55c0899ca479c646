package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewSignalID_StablePerEvaluation(t *testing.T) {
	ts := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	a := NewSignalID("s1", "SOL/USDC", ts)
	b := NewSignalID("s1", "SOL/USDC", ts)
	if a != b {
		t.Errorf("same evaluation produced different IDs: %s vs %s", a, b)
	}
	if c := NewSignalID("s1", "SOL/USDC", ts.Add(time.Nanosecond)); c == a {
		t.Error("different evaluation times must produce different IDs")
	}
	if c := NewSignalID("s2", "SOL/USDC", ts); c == a {
		t.Error("different strategies must produce different IDs")
	}
}

func TestSignal_JSONRoundTrip(t *testing.T) {
	sig := Signal{
		ID:         "s1:SOL/USDC:1",
		StrategyID: "s1",
		Pair:       "SOL/USDC",
		Direction:  DirectionSell,
		Price:      99.5,
		Confidence: 88,
		Indicators: map[string]float64{"rsi": 75},
		Reason:     "overbought",
		CreatedAt:  time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	var got Signal
	if err := json.Unmarshal(sig.JSON(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != sig.ID || got.Direction != DirectionSell || got.Indicators["rsi"] != 75 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestCloses(t *testing.T) {
	candles := []Candle{
		{Close: 1}, {Close: 2}, {Close: 3},
	}
	closes := Closes(candles)
	if len(closes) != 3 || closes[0] != 1 || closes[2] != 3 {
		t.Errorf("Closes = %v, want [1 2 3]", closes)
	}
}
