package strategy

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"mozi/internal/market"
)

// minIndicatorBars is the floor below which a timeframe is skipped entirely.
// MACD(12,26,9) needs roughly 35 bars to stabilize; 50 leaves headroom.
const minIndicatorBars = 50

// Indicators holds the latest value of every indicator the evaluators read.
// A value of 0 means "not computable from the available history" (TALib seeds
// its warmup region with zeros); evaluators treat 0 as missing.
type Indicators struct {
	Close float64

	EMA8   float64
	EMA21  float64
	EMA50  float64
	EMA200 float64

	RSI float64

	MACD       float64
	MACDSignal float64
	MACDHist   float64

	BollUpper  float64
	BollMiddle float64
	BollLower  float64

	ATR float64

	Bars int
}

func computeIndicators(candles []market.Candle) Indicators {
	out := Indicators{Bars: len(candles)}
	if len(candles) < minIndicatorBars {
		return out
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	out.Close = closes[len(closes)-1]

	out.EMA8 = lastEMA(closes, 8)
	out.EMA21 = lastEMA(closes, 21)
	out.EMA50 = lastEMA(closes, 50)
	out.EMA200 = lastEMA(closes, 200)

	out.RSI = lastValid(talib.Rsi(closes, 14))

	macdSeries, signalSeries, histSeries := talib.Macd(closes, 12, 26, 9)
	out.MACD = lastValid(macdSeries)
	out.MACDSignal = lastValid(signalSeries)
	out.MACDHist = lastValid(histSeries)

	upper, middle, lower := talib.BBands(closes, 20, 2.0, 2.0, talib.SMA)
	out.BollUpper = lastValid(upper)
	out.BollMiddle = lastValid(middle)
	out.BollLower = lastValid(lower)

	out.ATR = lastValid(talib.Atr(highs, lows, closes, 14))
	return out
}

// lastEMA returns the latest EMA value, or 0 when the series is shorter than
// the period and TALib could only produce its zero-seeded warmup values.
func lastEMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	return lastNonZero(talib.Ema(closes, period))
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func lastNonZero(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.Abs(v) <= 1e-12 {
			continue
		}
		return v
	}
	return 0
}
