package market

import (
	"strings"
	"time"
)

// Timeframe is one of the fixed candle bucket durations the engine tracks.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
}

// Timeframes returns all tracked timeframes, shortest first.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h}
}

func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) Millis() int64 {
	return timeframeDurations[tf].Milliseconds()
}

func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// ParseTimeframe accepts "1m", "5m", "15m", "1h" (case-insensitive).
func ParseTimeframe(s string) (Timeframe, bool) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if tf.Valid() {
		return tf, true
	}
	return "", false
}

// BucketStart floors a millisecond timestamp onto the timeframe grid.
func (tf Timeframe) BucketStart(tsMillis int64) int64 {
	dur := tf.Millis()
	if dur <= 0 {
		return tsMillis
	}
	return tsMillis / dur * dur
}
