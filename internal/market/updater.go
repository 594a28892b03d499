package market

import (
	"context"

	"mozi/internal/logger"
)

// Updater pumps a source's tick channel into the BarCache. It is the only
// writer path for streaming data; the cache's mutation methods stay out of
// reach of read-side consumers.
type Updater struct {
	Cache *BarCache

	// OnTick, when set, observes every applied tick (metrics hook).
	OnTick func(TickEvent)
}

func NewUpdater(cache *BarCache) *Updater {
	return &Updater{Cache: cache}
}

// Consume applies ticks until the channel closes or ctx is cancelled.
func (u *Updater) Consume(ctx context.Context, ticks <-chan TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ticks:
			if !ok {
				logger.Debugf("[updater] tick stream closed")
				return
			}
			u.Cache.UpdateTick(evt.Symbol, evt.Price, evt.Source, evt.Time)
			if u.OnTick != nil {
				u.OnTick(evt)
			}
		}
	}
}
