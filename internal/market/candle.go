package market

import "errors"

// Candle is one OHLCV bucket. OpenTime is milliseconds since epoch, aligned
// to the owning timeframe's grid.
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// TickSource tags where a price observation came from.
type TickSource string

const (
	SourceFeed       TickSource = "feed"
	SourceFallback   TickSource = "fallback"
	SourceHistorical TickSource = "historical"
)

// TickEvent is a single price observation from one source.
type TickEvent struct {
	Symbol Symbol
	Price  float64
	Time   int64 // milliseconds since epoch
	Source TickSource
}

// LatestTick is the last known price for a symbol regardless of timeframe.
type LatestTick struct {
	Price  float64
	Time   int64
	Source TickSource
}

// Snapshot is the durable candle document: symbol -> timeframe -> bars,
// oldest first.
type Snapshot map[Symbol]map[Timeframe][]Candle

// ErrRateLimited marks an upstream 429. Pollers skip the cycle silently and
// wait for the next scheduled one.
var ErrRateLimited = errors.New("rate limited by upstream")
