package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tradebotv1/internal/model"
)

// Mode selects how disagreeing member outputs reconcile into one decision.
type Mode string

const (
	// ModeUnanimous requires every member to agree; confidence is the
	// minimum of the member confidences. Most conservative.
	ModeUnanimous Mode = "UNANIMOUS"
	// ModeMajority picks the direction backed by at least ceil(n/2)
	// members; confidence is the mean of the agreeing members.
	ModeMajority Mode = "MAJORITY"
	// ModeWeighted scores each direction by weight x confidence and picks
	// the higher score if it clears the activation threshold. Lets a
	// high-confidence minority swing the decision in proportion to trust.
	ModeWeighted Mode = "WEIGHTED"
)

// DefaultActivationThreshold is the minimum weighted score (0-100) for
// WEIGHTED mode to act.
const DefaultActivationThreshold = 30.0

// WeightedStrategy pairs a member strategy with its relative weight.
// Weights need not sum to any fixed total.
type WeightedStrategy struct {
	Strategy Strategy
	Weight   float64
}

// Composite combines multiple weighted indicator strategies into one
// decision. It holds no mutable state during Analyze and may be invoked
// concurrently by multiple callers.
type Composite struct {
	name                string
	mode                Mode
	members             []WeightedStrategy
	activationThreshold float64
}

// NewComposite creates a composite strategy. A zero or negative activation
// threshold falls back to the default.
func NewComposite(name string, mode Mode, members []WeightedStrategy, activationThreshold float64) *Composite {
	if activationThreshold <= 0 {
		activationThreshold = DefaultActivationThreshold
	}
	return &Composite{
		name:                name,
		mode:                mode,
		members:             members,
		activationThreshold: activationThreshold,
	}
}

func (c *Composite) Name() string { return c.name }

func (c *Composite) Mode() Mode { return c.mode }

// RequiredWindow is the largest window any member needs.
func (c *Composite) RequiredWindow() int {
	max := 0
	for _, m := range c.members {
		if w := m.Strategy.RequiredWindow(); w > max {
			max = w
		}
	}
	return max
}

// Analyze runs all members independently (in parallel) and resolves their
// outputs per the configured mode. A member short on data counts as
// NEUTRAL/0; any other member failure aborts the evaluation.
func (c *Composite) Analyze(candles []model.Candle) (Result, error) {
	if len(c.members) == 0 {
		return Neutral("no strategies configured"), nil
	}

	results := make([]Result, len(c.members))
	errs := make([]error, len(c.members))

	var wg sync.WaitGroup
	for i := range c.members {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.members[i].Strategy.Analyze(candles)
			if err != nil {
				if IsInsufficientData(err) {
					results[i] = Neutral(err.Error())
					return
				}
				errs[i] = err
				return
			}
			res.Confidence = clampConfidence(res.Confidence)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return Result{}, fmt.Errorf("member %s: %w", c.members[i].Strategy.Name(), err)
		}
	}

	var res Result
	switch c.mode {
	case ModeMajority:
		res = c.resolveMajority(results)
	case ModeWeighted:
		res = c.resolveWeighted(results)
	default:
		res = c.resolveUnanimous(results)
	}

	res.Indicators = c.mergeIndicators(results)
	res.Reason = c.mergeReasons(results)
	res.Confidence = clampConfidence(res.Confidence)
	return res, nil
}

// resolveUnanimous: all members must agree on BUY or SELL; confidence is the
// minimum member confidence. Any disagreement yields NEUTRAL/0.
func (c *Composite) resolveUnanimous(results []Result) Result {
	dir := results[0].Signal
	if dir == model.DirectionNeutral {
		return Result{Signal: model.DirectionNeutral}
	}
	minConf := results[0].Confidence
	for _, r := range results[1:] {
		if r.Signal != dir {
			return Result{Signal: model.DirectionNeutral}
		}
		if r.Confidence < minConf {
			minConf = r.Confidence
		}
	}
	return Result{Signal: dir, Confidence: minConf}
}

// resolveMajority: the direction with count >= ceil(n/2) wins; confidence is
// the mean of the agreeing members. Tie or no majority yields NEUTRAL/0.
func (c *Composite) resolveMajority(results []Result) Result {
	var buys, sells int
	var buyConf, sellConf float64
	for _, r := range results {
		switch r.Signal {
		case model.DirectionBuy:
			buys++
			buyConf += r.Confidence
		case model.DirectionSell:
			sells++
			sellConf += r.Confidence
		}
	}

	needed := (len(results) + 1) / 2
	switch {
	case buys >= needed && buys > sells:
		return Result{Signal: model.DirectionBuy, Confidence: buyConf / float64(buys)}
	case sells >= needed && sells > buys:
		return Result{Signal: model.DirectionSell, Confidence: sellConf / float64(sells)}
	}
	return Result{Signal: model.DirectionNeutral}
}

// resolveWeighted: per-direction score = sum(weight*confidence/100) /
// sum(weight), scaled to 0-100. The higher score wins if it clears the
// activation threshold.
func (c *Composite) resolveWeighted(results []Result) Result {
	var buyScore, sellScore, totalWeight float64
	for i, r := range results {
		w := c.members[i].Weight
		totalWeight += w
		switch r.Signal {
		case model.DirectionBuy:
			buyScore += w * r.Confidence / 100
		case model.DirectionSell:
			sellScore += w * r.Confidence / 100
		}
	}
	if totalWeight == 0 {
		return Result{Signal: model.DirectionNeutral}
	}

	buyScore = buyScore / totalWeight * 100
	sellScore = sellScore / totalWeight * 100

	switch {
	case buyScore > sellScore && buyScore >= c.activationThreshold:
		return Result{Signal: model.DirectionBuy, Confidence: buyScore}
	case sellScore > buyScore && sellScore >= c.activationThreshold:
		return Result{Signal: model.DirectionSell, Confidence: sellScore}
	}
	return Result{Signal: model.DirectionNeutral}
}

// mergeIndicators unions member indicator maps, keyed by member name to
// avoid collisions between members of the same type.
func (c *Composite) mergeIndicators(results []Result) map[string]float64 {
	merged := make(map[string]float64)
	for i, r := range results {
		name := c.members[i].Strategy.Name()
		keys := make([]string, 0, len(r.Indicators))
		for k := range r.Indicators {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			merged[name+"."+k] = r.Indicators[k]
		}
	}
	return merged
}

// mergeReasons concatenates member reasons in member order.
func (c *Composite) mergeReasons(results []Result) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", c.members[i].Strategy.Name(), r.Reason))
	}
	return strings.Join(parts, "; ")
}
