package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mozi/internal/market"
)

// loadTrend fills the given timeframes for one symbol with n bars whose
// closes follow growth (e.g. 1.002 for a steady uptrend, 0.998 for a
// downtrend).
func loadTrend(cache *market.BarCache, sym market.Symbol, n int, growth float64, tfs ...market.Timeframe) {
	if len(tfs) == 0 {
		tfs = market.Timeframes()
	}
	for _, tf := range tfs {
		bars := make([]market.Candle, n)
		price := 100.0
		for i := 0; i < n; i++ {
			price *= growth
			bars[i] = market.Candle{
				OpenTime: int64(i) * tf.Millis(),
				Open:     price,
				High:     price * 1.001,
				Low:      price * 0.999,
				Close:    price,
				Volume:   10,
			}
		}
		cache.LoadHistoricalBars(sym, tf, bars)
	}
}

func TestDecideStrictFortyPercentBoundary(t *testing.T) {
	dir, conf := decide(40, 30, 30)
	assert.Equal(t, DirectionHold, dir, "exactly 40%% is not a win")
	assert.Equal(t, 30, conf)

	dir, conf = decide(41, 30, 29)
	assert.Equal(t, DirectionBuy, dir)
	assert.Equal(t, 41, conf)

	dir, conf = decide(20, 55, 25)
	assert.Equal(t, DirectionSell, dir)
	assert.Equal(t, 55, conf)
}

func TestDecideNoVotesIsHold(t *testing.T) {
	dir, conf := decide(0, 0, 0)
	assert.Equal(t, DirectionHold, dir)
	assert.Zero(t, conf)
}

func TestDecideTieAboveThresholdIsHold(t *testing.T) {
	dir, _ := decide(45, 45, 10)
	assert.Equal(t, DirectionHold, dir)
}

func TestPlanByNameUnknownFallsBackToSwing(t *testing.T) {
	assert.Equal(t, "swing", PlanByName("no-such-plan").Name)
	assert.Equal(t, "scalp", PlanByName(" SCALP ").Name)
	assert.Equal(t, []string{"position", "scalp", "swing"}, PlanNames())
}

func TestEvalTrendSubstitutesMissingEMAs(t *testing.T) {
	// full stack in order
	v := evalTrend(Indicators{EMA8: 104, EMA21: 103, EMA50: 102, EMA200: 101})
	assert.Equal(t, DirectionBuy, v.dir)
	assert.Equal(t, 1.0, v.strength)

	// EMA200 missing: substitution collapses the strict stack, crossover remains
	v = evalTrend(Indicators{EMA8: 104, EMA21: 103, EMA50: 102})
	assert.Equal(t, DirectionBuy, v.dir)
	assert.Equal(t, 0.5, v.strength)

	// both short EMAs missing: nothing to evaluate
	v = evalTrend(Indicators{EMA50: 102, EMA200: 101})
	assert.Equal(t, DirectionHold, v.dir)
}

func TestEvalRSISaturation(t *testing.T) {
	v := evalRSI(Indicators{RSI: 70})
	assert.Equal(t, DirectionBuy, v.dir)
	assert.InDelta(t, 0.5, v.strength, 1e-9)

	v = evalRSI(Indicators{RSI: 95})
	assert.Equal(t, 1.0, v.strength)

	v = evalRSI(Indicators{RSI: 10})
	assert.Equal(t, DirectionSell, v.dir)
	assert.Equal(t, 1.0, v.strength)

	assert.Equal(t, DirectionHold, evalRSI(Indicators{RSI: 50}).dir)
}

func TestEvalMACDRequiresAgreement(t *testing.T) {
	// line above signal but histogram negative: no vote
	v := evalMACD(Indicators{MACD: 1.0, MACDSignal: 0.5, MACDHist: -0.1})
	assert.Equal(t, DirectionHold, v.dir)

	v = evalMACD(Indicators{MACD: 1.0, MACDSignal: 0.5, MACDHist: 0.2})
	assert.Equal(t, DirectionBuy, v.dir)
	assert.InDelta(t, 0.4, v.strength, 1e-9)

	v = evalMACD(Indicators{MACD: -1.0, MACDSignal: -0.2, MACDHist: -0.9})
	assert.Equal(t, DirectionSell, v.dir)
	assert.Equal(t, 1.0, v.strength, "strength saturates at 1")
}

func TestEvalBollingerNeedsRSIConfirmation(t *testing.T) {
	base := Indicators{BollUpper: 110, BollMiddle: 100, BollLower: 90}

	ind := base
	ind.Close = 85
	ind.RSI = 35
	v := evalBollinger(ind)
	assert.Equal(t, DirectionBuy, v.dir)
	assert.Equal(t, 0.8, v.strength)

	// stretched below the band but RSI neutral: abstain
	ind.RSI = 50
	assert.Equal(t, DirectionHold, evalBollinger(ind).dir)

	ind = base
	ind.Close = 115
	ind.RSI = 72
	v = evalBollinger(ind)
	assert.Equal(t, DirectionSell, v.dir)
}

func TestRiskLevelsATRBranch(t *testing.T) {
	plan := PlanByName("swing")

	r := riskLevels(DirectionBuy, 100, 2.0, plan)
	require.NotNil(t, r)
	assert.Equal(t, "atr", r.Basis)
	assert.InDelta(t, 97.0, r.StopLoss, 1e-9)
	assert.InDelta(t, 105.0, r.TakeProfit, 1e-9)

	// ATR exactly at the 0.1% floor still uses the ATR branch, but the legs
	// land too close and get widened to the hard defaults
	r = riskLevels(DirectionBuy, 100, 0.1, plan)
	require.NotNil(t, r)
	assert.Equal(t, "atr", r.Basis)
	assert.InDelta(t, 98.0, r.StopLoss, 1e-9)
	assert.InDelta(t, 105.0, r.TakeProfit, 1e-9)
}

func TestRiskLevelsPercentFallback(t *testing.T) {
	plan := PlanByName("swing")

	r := riskLevels(DirectionBuy, 100, 0.05, plan)
	require.NotNil(t, r)
	assert.Equal(t, "percent", r.Basis)
	assert.InDelta(t, 98.0, r.StopLoss, 1e-9)
	assert.InDelta(t, 105.0, r.TakeProfit, 1e-9)

	r = riskLevels(DirectionSell, 100, 0, plan)
	require.NotNil(t, r)
	assert.InDelta(t, 102.0, r.StopLoss, 1e-9)
	assert.InDelta(t, 95.0, r.TakeProfit, 1e-9)
}

func TestRiskLevelsGeometryBySide(t *testing.T) {
	plan := PlanByName("scalp")
	for _, atr := range []float64{0, 0.05, 0.5, 3} {
		buy := riskLevels(DirectionBuy, 100, atr, plan)
		require.NotNil(t, buy)
		assert.Less(t, buy.StopLoss, buy.Entry)
		assert.Greater(t, buy.TakeProfit, buy.Entry)

		sell := riskLevels(DirectionSell, 100, atr, plan)
		require.NotNil(t, sell)
		assert.Greater(t, sell.StopLoss, sell.Entry)
		assert.Less(t, sell.TakeProfit, sell.Entry)
	}
}

func TestRiskLevelsRejectsBadPrice(t *testing.T) {
	plan := PlanByName("swing")
	assert.Nil(t, riskLevels(DirectionBuy, 0, 1, plan))
	assert.Nil(t, riskLevels(DirectionBuy, math.NaN(), 1, plan))
}

func TestAnalyzeInsufficientHistoryIsHold(t *testing.T) {
	cache := market.NewBarCache(500)
	engine := NewEngine(cache)

	res := engine.Analyze("BTC", "swing")
	assert.Equal(t, DirectionHold, res.Signal)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.PerTimeframe)
	assert.Nil(t, res.Risk)
}

func TestAnalyzeUptrendProducesBuy(t *testing.T) {
	cache := market.NewBarCache(500)
	loadTrend(cache, "BTC", 300, 1.002)
	engine := NewEngine(cache)

	res := engine.Analyze("BTC", "swing")
	require.Equal(t, DirectionBuy, res.Signal)
	assert.Greater(t, res.Confidence, 40)
	assert.Len(t, res.PerTimeframe, len(market.Timeframes()))

	require.NotNil(t, res.Risk)
	hourly := res.PerTimeframe[len(res.PerTimeframe)-1]
	require.Equal(t, market.Timeframe1h, hourly.Timeframe)
	assert.Equal(t, hourly.Indicators.Close, res.Risk.Entry, "entry anchored to the hourly close")
	assert.Less(t, res.Risk.StopLoss, res.Risk.Entry)
	assert.Greater(t, res.Risk.TakeProfit, res.Risk.Entry)
}

func TestAnalyzeWithoutHourlyCarriesNoRiskLevels(t *testing.T) {
	cache := market.NewBarCache(500)
	loadTrend(cache, "SOL", 300, 1.002,
		market.Timeframe1m, market.Timeframe5m, market.Timeframe15m)
	engine := NewEngine(cache)

	res := engine.Analyze("SOL", "swing")
	require.Equal(t, DirectionBuy, res.Signal, "signal stands without hourly data")
	assert.Len(t, res.PerTimeframe, 3)
	assert.Nil(t, res.Risk, "risk geometry needs the hourly timeframe")
}

func TestAnalyzeDowntrendProducesSell(t *testing.T) {
	cache := market.NewBarCache(500)
	loadTrend(cache, "ETH", 300, 0.998)
	engine := NewEngine(cache)

	res := engine.Analyze("ETH", "scalp")
	require.Equal(t, DirectionSell, res.Signal)
	require.NotNil(t, res.Risk)
	assert.Greater(t, res.Risk.StopLoss, res.Risk.Entry)
	assert.Less(t, res.Risk.TakeProfit, res.Risk.Entry)
}
