package strategy

import (
	"sort"
	"strings"

	"mozi/internal/market"
)

// Plan is a named weighting/risk profile. Weights are relative, they do not
// need to sum to 1; they scale how much each timeframe's vote contributes.
type Plan struct {
	Name    string
	Weights map[market.Timeframe]float64

	// ATR multipliers for stop/target sizing.
	SLMultiplier float64
	TPMultiplier float64

	// Percentage fallbacks when ATR is degenerate (below 0.1% of price).
	FallbackSLPct float64
	FallbackTPPct float64
}

const DefaultPlanName = "swing"

var plans = map[string]Plan{
	"scalp": {
		Name: "scalp",
		Weights: map[market.Timeframe]float64{
			market.Timeframe1m:  0.4,
			market.Timeframe5m:  0.3,
			market.Timeframe15m: 0.2,
			market.Timeframe1h:  0.1,
		},
		SLMultiplier:  1.0,
		TPMultiplier:  1.5,
		FallbackSLPct: 1.0,
		FallbackTPPct: 2.0,
	},
	"swing": {
		Name: "swing",
		Weights: map[market.Timeframe]float64{
			market.Timeframe1m:  0.1,
			market.Timeframe5m:  0.2,
			market.Timeframe15m: 0.3,
			market.Timeframe1h:  0.4,
		},
		SLMultiplier:  1.5,
		TPMultiplier:  2.5,
		FallbackSLPct: 2.0,
		FallbackTPPct: 5.0,
	},
	"position": {
		Name: "position",
		Weights: map[market.Timeframe]float64{
			market.Timeframe1m:  0.05,
			market.Timeframe5m:  0.15,
			market.Timeframe15m: 0.3,
			market.Timeframe1h:  0.5,
		},
		SLMultiplier:  2.0,
		TPMultiplier:  3.5,
		FallbackSLPct: 3.0,
		FallbackTPPct: 8.0,
	},
}

// PlanByName resolves a plan, falling back to the default for unknown names
// rather than erroring.
func PlanByName(name string) Plan {
	if p, ok := plans[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return plans[DefaultPlanName]
}

// PlanNames lists the built-in plans, sorted.
func PlanNames() []string {
	out := make([]string, 0, len(plans))
	for name := range plans {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
