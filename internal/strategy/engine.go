package strategy

import (
	"math"

	"mozi/internal/market"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// analysisBars is how much history each timeframe feeds the indicators.
const analysisBars = 200

// vote is one evaluator's opinion on one timeframe.
type vote struct {
	dir      Direction
	strength float64
}

// holdBaseline keeps an abstaining evaluator from being a pure no-op: HOLD
// votes accumulate a small flat weight so a market where nothing fires
// resolves to HOLD instead of whichever side scraped together a sliver.
const holdBaseline = 0.1

// TimeframeVote reports the aggregated per-timeframe tallies before plan
// weighting, for logging and inspection.
type TimeframeVote struct {
	Timeframe  market.Timeframe `json:"timeframe"`
	Buy        float64          `json:"buy"`
	Sell       float64          `json:"sell"`
	Hold       float64          `json:"hold"`
	Indicators Indicators       `json:"indicators"`
}

// RiskLevels is the suggested entry/exit geometry for an actionable signal.
type RiskLevels struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	ATR        float64 `json:"atr"`
	Basis      string  `json:"basis"`
}

// Result is the full outcome of analyzing one symbol under one plan.
type Result struct {
	Symbol       market.Symbol   `json:"symbol"`
	Plan         string          `json:"plan"`
	Signal       Direction       `json:"signal"`
	Confidence   int             `json:"confidence"`
	PerTimeframe []TimeframeVote `json:"per_timeframe"`
	Risk         *RiskLevels     `json:"risk,omitempty"`
}

// Engine turns cached candle history into directional signals. It only reads
// from the cache and holds no state of its own, so one instance serves
// concurrent callers.
type Engine struct {
	cache *market.BarCache
}

func NewEngine(cache *market.BarCache) *Engine {
	return &Engine{cache: cache}
}

// Analyze runs every evaluator over every timeframe with enough history,
// weights the tallies by the plan and resolves a direction. Timeframes with
// fewer than minIndicatorBars completed candles are skipped; if all four are
// skipped the result is HOLD with zero confidence.
func (e *Engine) Analyze(sym market.Symbol, planName string) Result {
	plan := PlanByName(planName)
	res := Result{Symbol: sym, Plan: plan.Name, Signal: DirectionHold}

	var totalBuy, totalSell, totalHold float64
	var hourly *Indicators

	for _, tf := range market.Timeframes() {
		bars := e.cache.GetBars(sym, tf, analysisBars)
		if len(bars) < minIndicatorBars {
			continue
		}
		ind := computeIndicators(bars)
		tv := TimeframeVote{Timeframe: tf, Indicators: ind}
		for _, v := range []vote{
			evalTrend(ind),
			evalRSI(ind),
			evalMACD(ind),
			evalBollinger(ind),
		} {
			switch v.dir {
			case DirectionBuy:
				tv.Buy += v.strength
			case DirectionSell:
				tv.Sell += v.strength
			default:
				tv.Hold += holdBaseline
			}
		}
		w := plan.Weights[tf]
		totalBuy += tv.Buy * w
		totalSell += tv.Sell * w
		totalHold += tv.Hold * w
		res.PerTimeframe = append(res.PerTimeframe, tv)

		if tf == market.Timeframe1h {
			snap := ind
			hourly = &snap
		}
	}

	res.Signal, res.Confidence = decide(totalBuy, totalSell, totalHold)
	// Risk geometry requires an evaluated hourly timeframe; without it the
	// signal stands but carries no entry/stop/target.
	if res.Signal != DirectionHold && hourly != nil {
		res.Risk = riskLevels(res.Signal, hourly.Close, hourly.ATR, plan)
	}
	return res
}

// decide resolves weighted tallies into a direction. A side wins only with a
// strictly greater than 40% share of the total; exactly 40% is a HOLD.
// Confidence is the winning share in percent, capped at 100.
func decide(buy, sell, hold float64) (Direction, int) {
	total := buy + sell + hold
	if total <= 0 {
		return DirectionHold, 0
	}
	buyShare := buy / total * 100
	sellShare := sell / total * 100
	switch {
	case buyShare > 40 && buyShare > sellShare:
		return DirectionBuy, confidence(buyShare)
	case sellShare > 40 && sellShare > buyShare:
		return DirectionSell, confidence(sellShare)
	}
	return DirectionHold, confidence(100 - buyShare - sellShare)
}

func confidence(share float64) int {
	n := int(math.Round(share))
	if n > 100 {
		return 100
	}
	if n < 0 {
		return 0
	}
	return n
}

// evalTrend grades the EMA stack. Missing longer EMAs are substituted with
// the next shorter one, which degrades the strict stack check into the plain
// 8/21 crossover instead of aborting the evaluation.
func evalTrend(ind Indicators) vote {
	e8, e21, e50, e200 := ind.EMA8, ind.EMA21, ind.EMA50, ind.EMA200
	if e8 <= 0 || e21 <= 0 {
		return vote{dir: DirectionHold}
	}
	if e50 <= 0 {
		e50 = e21
	}
	if e200 <= 0 {
		e200 = e50
	}
	switch {
	case e8 > e21 && e21 > e50 && e50 > e200:
		return vote{dir: DirectionBuy, strength: 1.0}
	case e8 < e21 && e21 < e50 && e50 < e200:
		return vote{dir: DirectionSell, strength: 1.0}
	case e8 > e21:
		return vote{dir: DirectionBuy, strength: 0.5}
	case e8 < e21:
		return vote{dir: DirectionSell, strength: 0.5}
	}
	return vote{dir: DirectionHold}
}

// evalRSI scales linearly from the 60/40 thresholds, saturating 20 points out.
func evalRSI(ind Indicators) vote {
	rsi := ind.RSI
	if rsi <= 0 {
		return vote{dir: DirectionHold}
	}
	switch {
	case rsi > 60:
		return vote{dir: DirectionBuy, strength: math.Min((rsi-60)/20, 1)}
	case rsi < 40:
		return vote{dir: DirectionSell, strength: math.Min((40-rsi)/20, 1)}
	}
	return vote{dir: DirectionHold}
}

// evalMACD requires the line and histogram to agree; strength scales with the
// histogram relative to the line.
func evalMACD(ind Indicators) vote {
	line, signal, hist := ind.MACD, ind.MACDSignal, ind.MACDHist
	if line == 0 && signal == 0 {
		return vote{dir: DirectionHold}
	}
	strength := 1.0
	if line != 0 {
		strength = math.Min(math.Abs(hist/line)*2, 1)
	}
	switch {
	case line > signal && hist > 0:
		return vote{dir: DirectionBuy, strength: strength}
	case line < signal && hist < 0:
		return vote{dir: DirectionSell, strength: strength}
	}
	return vote{dir: DirectionHold}
}

// evalBollinger is a mean-reversion check: a close outside the bands only
// counts when RSI confirms the stretch.
func evalBollinger(ind Indicators) vote {
	if ind.BollUpper <= 0 || ind.BollLower <= 0 || ind.Close <= 0 {
		return vote{dir: DirectionHold}
	}
	switch {
	case ind.Close < ind.BollLower && ind.RSI > 0 && ind.RSI < 40:
		return vote{dir: DirectionBuy, strength: 0.8}
	case ind.Close > ind.BollUpper && ind.RSI > 60:
		return vote{dir: DirectionSell, strength: 0.8}
	}
	return vote{dir: DirectionHold}
}
