package market

import (
	"context"
	"errors"
	"time"

	"mozi/internal/logger"
)

// HistorySource serves bulk candle backfill requests.
type HistorySource interface {
	Candles(ctx context.Context, sym Symbol, tf Timeframe, limit int) ([]Candle, error)
}

// SnapshotStore persists the merged candle document between restarts. A
// failed Load reads as a cold cache; a failed Save is logged and dropped.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Warmup seeds the BarCache at startup: restore the disk snapshot if
// present, then backfill whatever is still cold over REST with a courtesy
// delay between requests, and finally persist a fresh snapshot. Nothing in
// here is fatal to the process.
type Warmup struct {
	Cache  *BarCache
	Source HistorySource
	Store  SnapshotStore // optional

	// Threshold is the bar count on the reference timeframe above which the
	// cache counts as already warm.
	Threshold  int
	FetchLimit int
	Delay      time.Duration
	SampleSize int

	nowFn func() time.Time
}

const (
	defaultWarmThreshold = 200
	defaultFetchLimit    = 300
	defaultFetchDelay    = 300 * time.Millisecond
	defaultSampleSize    = 3

	referenceTimeframe = Timeframe1h
)

func NewWarmup(cache *BarCache, src HistorySource, store SnapshotStore) *Warmup {
	return &Warmup{
		Cache:      cache,
		Source:     src,
		Store:      store,
		Threshold:  defaultWarmThreshold,
		FetchLimit: defaultFetchLimit,
		Delay:      defaultFetchDelay,
		SampleSize: defaultSampleSize,
		nowFn:      time.Now,
	}
}

// Run performs the warm check / restore / backfill / persist sequence.
// It only returns early on context cancellation.
func (w *Warmup) Run(ctx context.Context) error {
	if w.warm() {
		logger.Infof("[warmup] cache already warm, backfill skipped")
		return nil
	}
	w.restoreSnapshot(ctx)
	if w.warm() {
		logger.Infof("[warmup] snapshot restore satisfied warm threshold")
		return nil
	}
	if err := w.backfill(ctx); err != nil {
		return err
	}
	w.persistSnapshot(ctx)
	return nil
}

// warm samples the basket on the reference timeframe.
func (w *Warmup) warm() bool {
	sample := w.SampleSize
	if sample <= 0 {
		sample = defaultSampleSize
	}
	if sample > len(Basket) {
		sample = len(Basket)
	}
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = defaultWarmThreshold
	}
	for _, sym := range Basket[:sample] {
		if len(w.Cache.GetBars(sym, referenceTimeframe, threshold)) < threshold {
			return false
		}
	}
	return true
}

func (w *Warmup) restoreSnapshot(ctx context.Context) {
	if w.Store == nil {
		return
	}
	snap, err := w.Store.Load(ctx)
	if err != nil {
		// missing or corrupt snapshot means a fresh fetch, never fatal
		logger.Warnf("[warmup] snapshot load failed, fetching fresh: %v", err)
		return
	}
	restored := 0
	for sym, byTF := range snap {
		if !IsTracked(sym) {
			continue
		}
		for tf, bars := range byTF {
			if !tf.Valid() || len(bars) == 0 {
				continue
			}
			w.Cache.LoadHistoricalBars(sym, tf, bars)
			restored++
		}
	}
	logger.Infof("[warmup] restored %d series from snapshot", restored)
}

func (w *Warmup) backfill(ctx context.Context) error {
	limit := w.FetchLimit
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	for _, sym := range Basket {
		for _, tf := range Timeframes() {
			if err := sleepCtx(ctx, w.Delay); err != nil {
				return err
			}
			bars, err := w.Source.Candles(ctx, sym, tf, limit)
			if err != nil {
				if errors.Is(err, ErrRateLimited) {
					logger.Debugf("[warmup] rate limited on %s %s, skipped", sym, tf)
					continue
				}
				logger.Warnf("[warmup] backfill %s %s failed: %v", sym, tf, err)
				w.Cache.RecordError(sym)
				continue
			}
			w.Cache.LoadHistoricalBars(sym, tf, normalizeOldestFirst(bars))
		}
	}
	return nil
}

func (w *Warmup) persistSnapshot(ctx context.Context) {
	if w.Store == nil {
		return
	}
	snap := make(Snapshot, len(Basket))
	for _, sym := range Basket {
		byTF := make(map[Timeframe][]Candle, len(Timeframes()))
		for _, tf := range Timeframes() {
			if bars := w.Cache.GetBars(sym, tf, w.Cache.maxBars); len(bars) > 0 {
				byTF[tf] = bars
			}
		}
		if len(byTF) > 0 {
			snap[sym] = byTF
		}
	}
	if err := w.Store.Save(ctx, snap); err != nil {
		logger.Warnf("[warmup] snapshot save failed: %v", err)
		return
	}
	logger.Infof("[warmup] snapshot persisted for %d symbols", len(snap))
}

// normalizeOldestFirst reverses provider-native newest-first arrays.
func normalizeOldestFirst(bars []Candle) []Candle {
	if len(bars) > 1 && bars[0].OpenTime > bars[len(bars)-1].OpenTime {
		out := make([]Candle, len(bars))
		for i, b := range bars {
			out[len(bars)-1-i] = b
		}
		return out
	}
	return bars
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
