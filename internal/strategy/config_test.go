package strategy

import (
	"testing"
)

func TestValidateConfig_RejectsUnknownMode(t *testing.T) {
	err := ValidateConfig(CompositeConfig{Mode: "CONSENSUS"})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidateConfig_RejectsUnknownMemberType(t *testing.T) {
	err := ValidateConfig(CompositeConfig{
		Mode:    ModeMajority,
		Members: []MemberConfig{{Type: "STOCH"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown member type")
	}
}

func TestValidateConfig_RejectsNegativeWeight(t *testing.T) {
	err := ValidateConfig(CompositeConfig{
		Mode:    ModeWeighted,
		Members: []MemberConfig{{Type: "RSI", Weight: -1}},
	})
	if err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestBuild_AppliesIndicatorDefaults(t *testing.T) {
	comp, err := Build("s1", CompositeConfig{
		Mode: ModeMajority,
		Members: []MemberConfig{
			{Type: "RSI"},
			{Type: "MACD"},
			{Type: "BB"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Defaults: RSI 14 -> 15, MACD 12/26/9 -> 36, BB 20 -> 20.
	if comp.RequiredWindow() != 36 {
		t.Errorf("RequiredWindow = %d, want 36 from default MACD", comp.RequiredWindow())
	}
	if comp.Name() != "s1" {
		t.Errorf("Name = %q, want s1", comp.Name())
	}
}

func TestParseMemberSpecs(t *testing.T) {
	members := ParseMemberSpecs("RSI:14,MACD:12:26:9,BB:20:2")
	if len(members) != 3 {
		t.Fatalf("len = %d, want 3", len(members))
	}
	if members[0].Type != "RSI" || members[0].Period != 14 {
		t.Errorf("members[0] = %+v, want RSI period 14", members[0])
	}
	if members[1].Type != "MACD" || members[1].FastPeriod != 12 ||
		members[1].SlowPeriod != 26 || members[1].SignalPeriod != 9 {
		t.Errorf("members[1] = %+v, want MACD 12/26/9", members[1])
	}
	if members[2].Type != "BB" || members[2].Period != 20 || members[2].StdDev != 2 {
		t.Errorf("members[2] = %+v, want BB 20/2", members[2])
	}
}

func TestParseMemberSpecs_SkipsInvalidParts(t *testing.T) {
	members := ParseMemberSpecs("RSI:14,JUNK:x,STOCH:5, ,BB:20:2")
	if len(members) != 2 {
		t.Fatalf("len = %d, want 2 (invalid parts skipped)", len(members))
	}
	if members[0].Type != "RSI" || members[1].Type != "BB" {
		t.Errorf("kept types %s/%s, want RSI/BB", members[0].Type, members[1].Type)
	}
}
