package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	calls int
	bars  func(sym Symbol, tf Timeframe, limit int) []Candle
	err   error
}

func (f *fakeHistory) Candles(ctx context.Context, sym Symbol, tf Timeframe, limit int) ([]Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars(sym, tf, limit), nil
}

type fakeStore struct {
	snap    Snapshot
	loadErr error
	saved   Snapshot
}

func (f *fakeStore) Load(ctx context.Context) (Snapshot, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.snap, nil
}

func (f *fakeStore) Save(ctx context.Context, snap Snapshot) error {
	f.saved = snap
	return nil
}

// newestFirst fabricates provider-order bars (most recent row first).
func newestFirst(tf Timeframe, n int) []Candle {
	out := make([]Candle, n)
	for i := 0; i < n; i++ {
		out[i] = Candle{
			OpenTime: int64(n-i) * tf.Millis(),
			Open:     100, High: 101, Low: 99,
			Close: float64(n - i),
		}
	}
	return out
}

func TestWarmupBackfillsColdCache(t *testing.T) {
	cache := NewBarCache(500)
	hist := &fakeHistory{bars: func(sym Symbol, tf Timeframe, limit int) []Candle {
		return newestFirst(tf, 250)
	}}
	store := &fakeStore{loadErr: errors.New("no snapshot yet")}

	w := NewWarmup(cache, hist, store)
	w.Delay = 0
	require.NoError(t, w.Run(context.Background()))

	// one request per (symbol, timeframe)
	assert.Equal(t, len(Basket)*len(Timeframes()), hist.calls)

	bars := cache.GetBars("BTC", Timeframe1h, 250)
	require.Len(t, bars, 250)
	// reordered oldest-first
	assert.Less(t, bars[0].OpenTime, bars[len(bars)-1].OpenTime)

	// snapshot persisted after backfill
	require.NotNil(t, store.saved)
	assert.Len(t, store.saved["BTC"][Timeframe1h], 250)
}

func TestWarmupSkipsWhenAlreadyWarm(t *testing.T) {
	cache := NewBarCache(500)
	for _, sym := range Basket {
		bars := make([]Candle, 220)
		for i := range bars {
			bars[i] = Candle{OpenTime: int64(i) * Timeframe1h.Millis(), Open: 1, High: 1, Low: 1, Close: 1}
		}
		cache.LoadHistoricalBars(sym, Timeframe1h, bars)
	}
	hist := &fakeHistory{}

	w := NewWarmup(cache, hist, nil)
	w.Delay = 0
	require.NoError(t, w.Run(context.Background()))
	assert.Zero(t, hist.calls, "warm cache never hits the network")
}

func TestWarmupRestoresFromSnapshot(t *testing.T) {
	cache := NewBarCache(500)
	snap := make(Snapshot)
	for _, sym := range Basket {
		bars := make([]Candle, 210)
		for i := range bars {
			bars[i] = Candle{OpenTime: int64(i) * Timeframe1h.Millis(), Open: 2, High: 2, Low: 2, Close: 2}
		}
		snap[sym] = map[Timeframe][]Candle{Timeframe1h: bars}
	}
	hist := &fakeHistory{}
	store := &fakeStore{snap: snap}

	w := NewWarmup(cache, hist, store)
	w.Delay = 0
	require.NoError(t, w.Run(context.Background()))

	assert.Zero(t, hist.calls, "snapshot restore avoided the refetch")
	assert.Len(t, cache.GetBars("ETH", Timeframe1h, 500), 210)
}

func TestWarmupFetchErrorsAreNotFatal(t *testing.T) {
	cache := NewBarCache(500)
	hist := &fakeHistory{err: errors.New("upstream down")}

	w := NewWarmup(cache, hist, nil)
	w.Delay = 0
	require.NoError(t, w.Run(context.Background()))

	m := cache.Metrics()
	assert.Equal(t, int64(len(Timeframes())), m["BTC"].Errors)
}

func TestNormalizeOldestFirst(t *testing.T) {
	in := []Candle{{OpenTime: 3000}, {OpenTime: 2000}, {OpenTime: 1000}}
	out := normalizeOldestFirst(in)
	assert.Equal(t, int64(1000), out[0].OpenTime)
	assert.Equal(t, int64(3000), out[2].OpenTime)

	// already ordered input is untouched
	ordered := []Candle{{OpenTime: 1}, {OpenTime: 2}}
	assert.Equal(t, ordered, normalizeOldestFirst(ordered))
}
