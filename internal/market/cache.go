package market

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultMaxBars caps completed candle history per (symbol, timeframe).
	DefaultMaxBars = 500

	cacheShardCount = 32
)

// BarCache owns per-symbol, per-timeframe rolling candle history plus the
// in-progress candle for each pair. It is the single shared mutable resource:
// ingestion components write, the strategy engine reads. All operations are
// total over the tracked basket; unknown keys read as empty and write as
// no-ops.
//
// Latest prices are last-write-wins across sources. A fallback poll tick can
// briefly overwrite a fresher streaming tick; that is accepted behavior, the
// cache does not order ticks across sources.
type BarCache struct {
	maxBars int
	shards  []barShard

	latestMu sync.RWMutex
	latest   map[Symbol]LatestTick
	errs     map[Symbol]int64

	nowFn func() time.Time
}

type barShard struct {
	mu   sync.RWMutex
	data map[string]*barSeries
}

// barSeries is the state for one (symbol, timeframe) pair: completed candles
// oldest first, capped at maxBars, plus at most one in-progress candle.
type barSeries struct {
	done []Candle
	cur  *Candle
}

// SymbolMetrics is a read-only per-symbol snapshot for observability.
type SymbolMetrics struct {
	Bars       map[Timeframe]int
	LastPrice  float64
	LastTickAt int64
	LastSource TickSource
	Errors     int64
}

func NewBarCache(maxBars int) *BarCache {
	if maxBars <= 0 {
		maxBars = DefaultMaxBars
	}
	c := &BarCache{
		maxBars: maxBars,
		shards:  make([]barShard, cacheShardCount),
		latest:  make(map[Symbol]LatestTick, len(Basket)),
		errs:    make(map[Symbol]int64, len(Basket)),
		nowFn:   time.Now,
	}
	for i := range c.shards {
		c.shards[i] = barShard{data: make(map[string]*barSeries)}
	}
	// State for every tracked pair exists up front and is never deleted.
	for _, sym := range Basket {
		for _, tf := range Timeframes() {
			k := seriesKey(sym, tf)
			c.shardFor(k).data[k] = &barSeries{}
		}
	}
	return c
}

func seriesKey(sym Symbol, tf Timeframe) string {
	return string(sym) + "@" + string(tf)
}

func (c *BarCache) shardFor(key string) *barShard {
	return &c.shards[hashKey(key)%uint32(len(c.shards))]
}

// UpdateTick buckets one price observation into every timeframe and refreshes
// the latest-price slot. A stale-timestamp tick from a slow source still
// mutates the current candle; past buckets are never reopened.
func (c *BarCache) UpdateTick(sym Symbol, price float64, src TickSource, tsMillis int64) {
	if !IsTracked(sym) || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	if tsMillis <= 0 {
		tsMillis = c.nowFn().UnixMilli()
	}
	for _, tf := range Timeframes() {
		c.applyTick(sym, tf, price, tsMillis)
	}
	c.latestMu.Lock()
	c.latest[sym] = LatestTick{Price: price, Time: tsMillis, Source: src}
	c.latestMu.Unlock()
}

func (c *BarCache) applyTick(sym Symbol, tf Timeframe, price float64, tsMillis int64) {
	bucket := tf.BucketStart(tsMillis)
	k := seriesKey(sym, tf)
	sh := c.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	series := sh.data[k]
	if series == nil {
		series = &barSeries{}
		sh.data[k] = series
	}
	cur := series.cur
	if cur == nil {
		series.cur = &Candle{
			OpenTime: bucket,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
		}
		return
	}
	// Only a strictly newer bucket closes the candle. A tick mapping to the
	// current or an already-closed bucket mutates the current candle in
	// place; past buckets are never reopened.
	if bucket > cur.OpenTime {
		series.done = append(series.done, *cur)
		if len(series.done) > c.maxBars {
			series.done = series.done[len(series.done)-c.maxBars:]
		}
		series.cur = &Candle{
			OpenTime: bucket,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
		}
		return
	}
	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
}

// LoadHistoricalBars replaces the stored sequence for one pair with an atomic
// snapshot swap, keeping the most recent bars up to the cap. The in-progress
// candle is discarded; live ticks reopen it on the fresh baseline. A non-empty
// load also refreshes the latest-price slot from the last close, tagged
// historical.
func (c *BarCache) LoadHistoricalBars(sym Symbol, tf Timeframe, bars []Candle) {
	if !IsTracked(sym) || !tf.Valid() {
		return
	}
	if len(bars) > c.maxBars {
		bars = bars[len(bars)-c.maxBars:]
	}
	dst := make([]Candle, len(bars))
	copy(dst, bars)

	k := seriesKey(sym, tf)
	sh := c.shardFor(k)
	sh.mu.Lock()
	sh.data[k] = &barSeries{done: dst}
	sh.mu.Unlock()

	if len(dst) > 0 {
		last := dst[len(dst)-1]
		c.latestMu.Lock()
		c.latest[sym] = LatestTick{Price: last.Close, Time: last.OpenTime, Source: SourceHistorical}
		c.latestMu.Unlock()
	}
}

// GetBars returns up to count completed candles, oldest first. Unknown keys
// return an empty slice. The result is a copy and safe to retain.
func (c *BarCache) GetBars(sym Symbol, tf Timeframe, count int) []Candle {
	if count <= 0 {
		return nil
	}
	k := seriesKey(sym, tf)
	sh := c.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	series := sh.data[k]
	if series == nil || len(series.done) == 0 {
		return nil
	}
	if count > len(series.done) {
		count = len(series.done)
	}
	out := make([]Candle, count)
	copy(out, series.done[len(series.done)-count:])
	return out
}

// LatestPrice returns the last known price for a symbol from any source.
func (c *BarCache) LatestPrice(sym Symbol) (float64, bool) {
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()
	tick, ok := c.latest[sym]
	if !ok {
		return 0, false
	}
	return tick.Price, true
}

// StaleSymbols lists basket symbols whose latest tick is absent or older
// than maxAge.
func (c *BarCache) StaleSymbols(maxAge time.Duration) []Symbol {
	cutoff := c.nowFn().UnixMilli() - maxAge.Milliseconds()
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()
	var out []Symbol
	for _, sym := range Basket {
		tick, ok := c.latest[sym]
		if !ok || tick.Time < cutoff {
			out = append(out, sym)
		}
	}
	return out
}

// RecordError bumps the monotonic per-symbol error counter.
func (c *BarCache) RecordError(sym Symbol) {
	if !IsTracked(sym) {
		return
	}
	c.latestMu.Lock()
	c.errs[sym]++
	c.latestMu.Unlock()
}

// Metrics returns a read-only snapshot of per-symbol bar counts, last price
// and error counters.
func (c *BarCache) Metrics() map[Symbol]SymbolMetrics {
	out := make(map[Symbol]SymbolMetrics, len(Basket))
	for _, sym := range Basket {
		m := SymbolMetrics{Bars: make(map[Timeframe]int, len(Timeframes()))}
		for _, tf := range Timeframes() {
			k := seriesKey(sym, tf)
			sh := c.shardFor(k)
			sh.mu.RLock()
			if series := sh.data[k]; series != nil {
				m.Bars[tf] = len(series.done)
			}
			sh.mu.RUnlock()
		}
		c.latestMu.RLock()
		if tick, ok := c.latest[sym]; ok {
			m.LastPrice = tick.Price
			m.LastTickAt = tick.Time
			m.LastSource = tick.Source
		}
		m.Errors = c.errs[sym]
		c.latestMu.RUnlock()
		out[sym] = m
	}
	return out
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
