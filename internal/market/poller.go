package market

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"mozi/internal/logger"
)

// BatchQuoter fetches current prices for the whole basket in one request.
type BatchQuoter interface {
	AllTickers(ctx context.Context) (map[Symbol]float64, error)
}

// FallbackPoller is the redundant REST price source. It always runs,
// regardless of feed health, on a fixed interval with a minimum-gap guard so
// stacked-up triggers cannot burst requests at the upstream.
type FallbackPoller struct {
	cache    *BarCache
	quoter   BatchQuoter
	interval time.Duration
	limiter  *rate.Limiter
	nowFn    func() time.Time

	// OnCycle, when set, observes each completed cycle (metrics hook).
	OnCycle func(symbols int, err error)
}

const DefaultPollInterval = 2 * time.Minute

func NewFallbackPoller(cache *BarCache, quoter BatchQuoter, interval time.Duration) *FallbackPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	// The limiter enforces the gap between cycles; the ticker provides the
	// cadence. Burst 1 means no two cycles within this process can fire
	// closer together than the interval, however they get triggered.
	return &FallbackPoller{
		cache:    cache,
		quoter:   quoter,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		nowFn:    time.Now,
	}
}

// Run polls until ctx is cancelled.
func (p *FallbackPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *FallbackPoller) poll(ctx context.Context) {
	if !p.limiter.Allow() {
		logger.Debugf("[poller] min-gap guard active, cycle skipped")
		return
	}
	quotes, err := p.quoter.AllTickers(ctx)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			// skip silently; the next scheduled cycle retries
			logger.Debugf("[poller] rate limited, cycle skipped")
		} else {
			logger.Warnf("[poller] batch fetch failed: %v", err)
		}
		if p.OnCycle != nil {
			p.OnCycle(0, err)
		}
		return
	}
	now := p.nowFn().UnixMilli()
	for sym, price := range quotes {
		p.cache.UpdateTick(sym, price, SourceFallback, now)
	}
	if p.OnCycle != nil {
		p.OnCycle(len(quotes), nil)
	}
	logger.Debugf("[poller] applied %d fallback quotes", len(quotes))
}
