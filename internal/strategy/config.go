package strategy

import (
	"fmt"
	"strconv"
	"strings"
)

// MemberConfig specifies a single indicator strategy inside a composite.
// Zero-valued parameters take the indicator's conventional defaults.
type MemberConfig struct {
	Type   string  `json:"type"` // "RSI", "MACD", "BB"
	Weight float64 `json:"weight"`

	// RSI
	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`

	// MACD
	FastPeriod   int `json:"fast_period,omitempty"`
	SlowPeriod   int `json:"slow_period,omitempty"`
	SignalPeriod int `json:"signal_period,omitempty"`

	// Bollinger
	StdDev float64 `json:"std_dev,omitempty"`
}

// CompositeConfig is the serializable form of a composite strategy. It is
// replaced wholesale on reconfiguration, never partially mutated.
type CompositeConfig struct {
	Mode                Mode           `json:"mode"`
	Members             []MemberConfig `json:"members"`
	ActivationThreshold float64        `json:"activation_threshold,omitempty"`
}

// ValidateConfig checks a composite config for errors before building.
func ValidateConfig(cfg CompositeConfig) error {
	switch cfg.Mode {
	case ModeUnanimous, ModeMajority, ModeWeighted:
	default:
		return fmt.Errorf("unknown composite mode %q", cfg.Mode)
	}
	for i, m := range cfg.Members {
		switch strings.ToUpper(m.Type) {
		case "RSI", "MACD", "BB":
		default:
			return fmt.Errorf("member %d: unknown strategy type %q", i, m.Type)
		}
		if m.Weight < 0 {
			return fmt.Errorf("member %d: negative weight %f", i, m.Weight)
		}
	}
	return nil
}

// Build constructs a live Composite from its config. Members with zero
// weight default to 1.
func Build(name string, cfg CompositeConfig) (*Composite, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	members := make([]WeightedStrategy, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		weight := m.Weight
		if weight == 0 {
			weight = 1
		}
		members = append(members, WeightedStrategy{Strategy: buildMember(m), Weight: weight})
	}
	return NewComposite(name, cfg.Mode, members, cfg.ActivationThreshold), nil
}

func buildMember(m MemberConfig) Strategy {
	switch strings.ToUpper(m.Type) {
	case "MACD":
		fast, slow, signal := m.FastPeriod, m.SlowPeriod, m.SignalPeriod
		if fast <= 0 {
			fast = 12
		}
		if slow <= 0 {
			slow = 26
		}
		if signal <= 0 {
			signal = 9
		}
		return NewMACD(fast, slow, signal)
	case "BB":
		period, sd := m.Period, m.StdDev
		if period <= 0 {
			period = 20
		}
		if sd <= 0 {
			sd = 2
		}
		return NewBollinger(period, sd)
	default: // RSI
		period := m.Period
		if period <= 0 {
			period = 14
		}
		oversold, overbought := m.Oversold, m.Overbought
		if oversold <= 0 {
			oversold = 30
		}
		if overbought <= 0 {
			overbought = 70
		}
		return NewRSI(period, oversold, overbought)
	}
}

// ParseMemberSpecs parses a compact member spec string like
// "RSI:14,MACD:12:26:9,BB:20:2" into member configs. Used by the backtest
// CLI. Invalid parts are skipped.
func ParseMemberSpecs(s string) []MemberConfig {
	var members []MemberConfig
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) == 0 || fields[0] == "" {
			continue
		}
		m := MemberConfig{Type: strings.ToUpper(strings.TrimSpace(fields[0])), Weight: 1}
		nums := make([]float64, 0, len(fields)-1)
		ok := true
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				ok = false
				break
			}
			nums = append(nums, v)
		}
		if !ok {
			continue
		}
		switch m.Type {
		case "RSI":
			if len(nums) > 0 {
				m.Period = int(nums[0])
			}
			if len(nums) > 2 {
				m.Oversold, m.Overbought = nums[1], nums[2]
			}
		case "MACD":
			if len(nums) > 2 {
				m.FastPeriod, m.SlowPeriod, m.SignalPeriod = int(nums[0]), int(nums[1]), int(nums[2])
			}
		case "BB":
			if len(nums) > 0 {
				m.Period = int(nums[0])
			}
			if len(nums) > 1 {
				m.StdDev = nums[1]
			}
		default:
			continue
		}
		members = append(members, m)
	}
	return members
}
