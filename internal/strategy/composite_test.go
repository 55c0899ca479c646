package strategy

import (
	"errors"
	"math"
	"strings"
	"testing"

	"tradebotv1/internal/model"
)

// stub is a fixed-output member for composite resolution tests.
type stub struct {
	name   string
	window int
	res    Result
	err    error
}

func (s *stub) Name() string        { return s.name }
func (s *stub) RequiredWindow() int { return s.window }
func (s *stub) Analyze([]model.Candle) (Result, error) {
	return s.res, s.err
}

func fixed(name string, dir model.Direction, conf float64) *stub {
	return &stub{
		name:   name,
		window: 1,
		res: Result{
			Signal:     dir,
			Confidence: conf,
			Indicators: map[string]float64{"value": conf},
			Reason:     name,
		},
	}
}

func members(stubs ...*stub) []WeightedStrategy {
	out := make([]WeightedStrategy, len(stubs))
	for i, s := range stubs {
		out[i] = WeightedStrategy{Strategy: s, Weight: 1}
	}
	return out
}

var testCandles = candlesFromCloses(100, 101, 102)

func TestComposite_UnanimousAgreementTakesMinimum(t *testing.T) {
	comp := NewComposite("c", ModeUnanimous, members(
		fixed("a", model.DirectionBuy, 70),
		fixed("b", model.DirectionBuy, 85),
		fixed("c", model.DirectionBuy, 60),
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionBuy {
		t.Errorf("signal = %s, want BUY", res.Signal)
	}
	if res.Confidence != 60 {
		t.Errorf("confidence = %.1f, want 60", res.Confidence)
	}
}

func TestComposite_UnanimousDisagreementIsNeutral(t *testing.T) {
	comp := NewComposite("c", ModeUnanimous, members(
		fixed("a", model.DirectionBuy, 90),
		fixed("b", model.DirectionSell, 90),
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionNeutral || res.Confidence != 0 {
		t.Errorf("got %s/%.1f, want NEUTRAL/0", res.Signal, res.Confidence)
	}
}

func TestComposite_MajorityAveragesAgreeingMembers(t *testing.T) {
	comp := NewComposite("c", ModeMajority, members(
		fixed("a", model.DirectionBuy, 80),
		fixed("b", model.DirectionBuy, 60),
		fixed("c", model.DirectionSell, 90),
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionBuy {
		t.Errorf("signal = %s, want BUY", res.Signal)
	}
	if res.Confidence != 70 {
		t.Errorf("confidence = %.1f, want 70 (mean of 80 and 60)", res.Confidence)
	}
}

func TestComposite_MajorityTieIsNeutral(t *testing.T) {
	comp := NewComposite("c", ModeMajority, members(
		fixed("a", model.DirectionBuy, 80),
		fixed("b", model.DirectionSell, 80),
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionNeutral {
		t.Errorf("signal = %s, want NEUTRAL on a tie", res.Signal)
	}
}

func TestComposite_WeightedMinorityCanWin(t *testing.T) {
	comp := NewComposite("c", ModeWeighted, []WeightedStrategy{
		{Strategy: fixed("a", model.DirectionBuy, 90), Weight: 2},
		{Strategy: fixed("b", model.DirectionSell, 50), Weight: 1},
	}, 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionBuy {
		t.Errorf("signal = %s, want BUY", res.Signal)
	}
	// buy score = (2*90/100)/3*100 = 60
	if math.Abs(res.Confidence-60) > 1e-9 {
		t.Errorf("confidence = %.4f, want 60", res.Confidence)
	}
}

func TestComposite_WeightedBelowActivationIsNeutral(t *testing.T) {
	comp := NewComposite("c", ModeWeighted, members(
		fixed("a", model.DirectionBuy, 20),
		fixed("b", model.DirectionNeutral, 0),
	), 0)

	// buy score = (1*20/100)/2*100 = 10, under the default threshold of 30.
	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionNeutral {
		t.Errorf("signal = %s, want NEUTRAL below activation threshold", res.Signal)
	}
}

func TestComposite_ClampsMemberConfidence(t *testing.T) {
	comp := NewComposite("c", ModeUnanimous, members(
		fixed("a", model.DirectionBuy, 150),
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Confidence != 100 {
		t.Errorf("confidence = %.1f, want clamped to 100", res.Confidence)
	}
}

func TestComposite_InsufficientDataMemberCountsAsNeutral(t *testing.T) {
	short := &stub{
		name:   "short",
		window: 500,
		err:    &InsufficientDataError{Strategy: "short", Need: 500, Got: 3},
	}
	comp := NewComposite("c", ModeMajority, members(
		fixed("a", model.DirectionBuy, 80),
		fixed("b", model.DirectionBuy, 60),
		short,
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionBuy {
		t.Errorf("signal = %s, want BUY with the short member neutral", res.Signal)
	}
}

func TestComposite_MemberErrorAbortsEvaluation(t *testing.T) {
	broken := &stub{name: "broken", window: 1, err: errors.New("boom")}
	comp := NewComposite("c", ModeUnanimous, members(
		fixed("a", model.DirectionBuy, 80),
		broken,
	), 0)

	_, err := comp.Analyze(testCandles)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected member error naming the member, got %v", err)
	}
}

func TestComposite_NoMembersIsNeutral(t *testing.T) {
	comp := NewComposite("c", ModeUnanimous, nil, 0)
	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.DirectionNeutral {
		t.Errorf("signal = %s, want NEUTRAL", res.Signal)
	}
}

func TestComposite_MergesIndicatorsByMemberName(t *testing.T) {
	comp := NewComposite("c", ModeUnanimous, members(
		fixed("a", model.DirectionBuy, 70),
		fixed("b", model.DirectionBuy, 80),
	), 0)

	res, err := comp.Analyze(testCandles)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indicators["a.value"] != 70 || res.Indicators["b.value"] != 80 {
		t.Errorf("indicators = %v, want keys a.value and b.value", res.Indicators)
	}
	if !strings.Contains(res.Reason, "a: a") || !strings.Contains(res.Reason, "b: b") {
		t.Errorf("reason = %q, want member reasons merged", res.Reason)
	}
}

func TestComposite_RequiredWindowIsMaxOfMembers(t *testing.T) {
	comp := NewComposite("c", ModeUnanimous, members(
		&stub{name: "a", window: 15},
		&stub{name: "b", window: 36},
		&stub{name: "c", window: 20},
	), 0)
	if comp.RequiredWindow() != 36 {
		t.Errorf("RequiredWindow = %d, want 36", comp.RequiredWindow())
	}
}
