// Package monitor runs the periodic background jobs: a stale-feed audit and
// a basket-wide analysis sweep.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	applog "mozi/internal/logger"
	"mozi/internal/market"
	"mozi/internal/metrics"
	"mozi/internal/strategy"
)

const (
	staleAuditSchedule = "@every 5m"
	sweepSchedule      = "@every 15m"

	// A symbol with no tick for this long is considered stale. Covers one
	// missed fallback poll cycle plus slack.
	staleAfter = 5 * time.Minute
)

type Monitor struct {
	cron   *cron.Cron
	cache  *market.BarCache
	engine *strategy.Engine
	plan   string
}

func New(cache *market.BarCache, engine *strategy.Engine, plan string) *Monitor {
	return &Monitor{
		cron:   cron.New(),
		cache:  cache,
		engine: engine,
		plan:   plan,
	}
}

func (m *Monitor) Register() error {
	if _, err := m.cron.AddFunc(staleAuditSchedule, m.staleAudit); err != nil {
		return fmt.Errorf("register stale audit: %w", err)
	}
	if _, err := m.cron.AddFunc(sweepSchedule, m.analysisSweep); err != nil {
		return fmt.Errorf("register analysis sweep: %w", err)
	}
	return nil
}

func (m *Monitor) Start() {
	m.cron.Start()
	applog.Infof("[monitor] scheduled jobs started")
}

// Stop halts scheduling and waits for any running job to return.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
	applog.Infof("[monitor] scheduled jobs stopped")
}

// staleAudit flags basket symbols with no recent tick from any source.
func (m *Monitor) staleAudit() {
	stale := m.cache.StaleSymbols(staleAfter)
	metrics.StaleSymbols.Set(float64(len(stale)))
	if len(stale) == 0 {
		return
	}
	names := make([]string, len(stale))
	for i, sym := range stale {
		names[i] = string(sym)
		m.cache.RecordError(sym)
	}
	applog.Warnf("[monitor] %d symbols without ticks for %s: %s",
		len(stale), staleAfter, strings.Join(names, ","))
}

// analysisSweep runs the engine over the whole basket and logs actionable
// signals. HOLD results are only surfaced at debug level.
func (m *Monitor) analysisSweep() {
	start := time.Now()
	actionable := 0
	for _, sym := range market.Basket {
		res := m.engine.Analyze(sym, m.plan)
		metrics.SignalsTotal.WithLabelValues(string(res.Signal)).Inc()
		if res.Signal == strategy.DirectionHold {
			applog.Debugf("[monitor] %s: HOLD (confidence %d)", sym, res.Confidence)
			continue
		}
		actionable++
		if res.Risk != nil {
			applog.Infof("[monitor] %s: %s confidence=%d entry=%.4f stop=%.4f target=%.4f basis=%s",
				sym, res.Signal, res.Confidence,
				res.Risk.Entry, res.Risk.StopLoss, res.Risk.TakeProfit, res.Risk.Basis)
		} else {
			applog.Infof("[monitor] %s: %s confidence=%d", sym, res.Signal, res.Confidence)
		}
	}
	applog.Infof("[monitor] sweep done, %d/%d actionable in %s",
		actionable, len(market.Basket), time.Since(start).Round(time.Millisecond))
}
