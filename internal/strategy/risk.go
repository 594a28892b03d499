package strategy

import "math"

const (
	// ATR below this fraction of price is treated as degenerate and the
	// plan's percentage fallbacks take over.
	minATRFraction = 0.001

	// A stop or target closer than this (in percent of entry) is widened
	// to the hard defaults.
	minLegDistancePct = 0.5
	hardStopPct       = 2.0
	hardTargetPct     = 5.0
)

// riskLevels derives stop and target around the entry price. ATR sizing is
// preferred; when ATR is missing or below 0.1% of price the plan percentages
// apply. Either way both legs end up at least minLegDistancePct away and on
// the correct side of the entry. Returns nil when no usable price exists.
func riskLevels(dir Direction, price, atr float64, plan Plan) *RiskLevels {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil
	}
	long := dir == DirectionBuy

	var stop, target float64
	basis := "atr"
	if atr > 0 && atr >= minATRFraction*price {
		if long {
			stop = price - atr*plan.SLMultiplier
			target = price + atr*plan.TPMultiplier
		} else {
			stop = price + atr*plan.SLMultiplier
			target = price - atr*plan.TPMultiplier
		}
	} else {
		basis = "percent"
		if long {
			stop = price * (1 - plan.FallbackSLPct/100)
			target = price * (1 + plan.FallbackTPPct/100)
		} else {
			stop = price * (1 + plan.FallbackSLPct/100)
			target = price * (1 - plan.FallbackTPPct/100)
		}
	}

	if legDistancePct(price, stop) < minLegDistancePct {
		stop = offsetPct(price, hardStopPct, !long)
	}
	if legDistancePct(price, target) < minLegDistancePct {
		target = offsetPct(price, hardTargetPct, long)
	}

	// Last-ditch direction clamp: the stop must be on the losing side and
	// the target on the winning side, whatever the inputs were.
	if long {
		if stop >= price {
			stop = offsetPct(price, hardStopPct, false)
		}
		if target <= price {
			target = offsetPct(price, hardTargetPct, true)
		}
	} else {
		if stop <= price {
			stop = offsetPct(price, hardStopPct, true)
		}
		if target >= price {
			target = offsetPct(price, hardTargetPct, false)
		}
	}

	return &RiskLevels{
		Entry:      price,
		StopLoss:   stop,
		TakeProfit: target,
		ATR:        atr,
		Basis:      basis,
	}
}

func legDistancePct(price, level float64) float64 {
	return math.Abs(price-level) / price * 100
}

func offsetPct(price, pct float64, up bool) float64 {
	if up {
		return price * (1 + pct/100)
	}
	return price * (1 - pct/100)
}
