package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"mozi/internal/market"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot() market.Snapshot {
	bars := []market.Candle{
		{OpenTime: 1_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{OpenTime: 61_000, Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 12},
	}
	return market.Snapshot{
		"BTC": {market.Timeframe1m: bars, market.Timeframe1h: bars[:1]},
		"ETH": {market.Timeframe5m: bars},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleSnapshot()))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got["BTC"][market.Timeframe1m], 2)
	assert.Equal(t, 2.5, got["BTC"][market.Timeframe1m][1].Close)
	require.Len(t, got["BTC"][market.Timeframe1h], 1)
	require.Len(t, got["ETH"][market.Timeframe5m], 2)
}

func TestSnapshotSaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleSnapshot()))

	updated := market.Snapshot{
		"BTC": {market.Timeframe1m: []market.Candle{
			{OpenTime: 121_000, Open: 5, High: 6, Low: 4, Close: 5.5},
		}},
	}
	require.NoError(t, s.Save(ctx, updated))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got["BTC"][market.Timeframe1m], 1, "second save replaced the row")
	assert.Equal(t, 5.5, got["BTC"][market.Timeframe1m][0].Close)
	// untouched rows survive
	require.Len(t, got["ETH"][market.Timeframe5m], 2)
}

func TestSnapshotLoadSkipsCorruptRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleSnapshot()))

	// damage one row directly
	err := s.db.Model(&candleSnapshotModel{}).
		Where("symbol = ? AND timeframe = ?", "BTC", "1m").
		Update("candles", datatypes.JSON([]byte(`{broken`))).Error
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, got["BTC"], market.Timeframe1m, "corrupt row dropped")
	assert.Contains(t, got["BTC"], market.Timeframe1h, "healthy rows kept")
}

func TestSnapshotLoadIgnoresUntrackedRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.db.Create(&candleSnapshotModel{
		Symbol: "DELISTED", Timeframe: "1m",
		Candles: datatypes.JSON([]byte(`[{"open_time":1}]`)),
	}).Error)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, got, market.Symbol("DELISTED"))
}
