// Package app wires the components together and owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"mozi/internal/config"
	"mozi/internal/gateway/kucoin"
	applog "mozi/internal/logger"
	"mozi/internal/market"
	"mozi/internal/metrics"
	"mozi/internal/monitor"
	"mozi/internal/store"
	"mozi/internal/strategy"
)

type App struct {
	cfg *config.Config

	cache     *market.BarCache
	snapshots *store.SnapshotStore
	rest      *kucoin.Client
	connector *kucoin.Connector
	updater   *market.Updater
	poller    *market.FallbackPoller
	warmup    *market.Warmup
	engine    *strategy.Engine
	monitor   *monitor.Monitor
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	applog.SetLevel(cfg.App.LogLevel)

	cache := market.NewBarCache(cfg.Market.MaxBars)

	snapshots, err := store.NewSnapshotStore(cfg.App.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	kcfg := kucoin.Config{
		RESTBaseURL:  cfg.KuCoin.RESTBaseURL,
		HTTPTimeout:  cfg.KuCoin.HTTPTimeout,
		PingInterval: cfg.KuCoin.PingInterval,
		BackoffBase:  cfg.KuCoin.BackoffBase,
		BackoffCap:   cfg.KuCoin.BackoffCap,
		MaxAttempts:  cfg.KuCoin.MaxAttempts,
		TokenRenewal: cfg.KuCoin.TokenRenewal,
		TickBuffer:   cfg.KuCoin.TickBuffer,
	}
	rest := kucoin.NewClient(kcfg)
	connector := kucoin.NewConnector(kcfg, rest)

	updater := market.NewUpdater(cache)
	updater.OnTick = func(evt market.TickEvent) {
		metrics.TicksTotal.WithLabelValues(string(evt.Source)).Inc()
	}

	poller := market.NewFallbackPoller(cache, rest, cfg.Market.PollInterval)
	poller.OnCycle = func(symbols int, err error) {
		outcome := "ok"
		switch {
		case errors.Is(err, market.ErrRateLimited):
			outcome = "rate_limited"
		case err != nil:
			outcome = "error"
		default:
			metrics.TicksTotal.WithLabelValues(string(market.SourceFallback)).Add(float64(symbols))
		}
		metrics.PollCyclesTotal.WithLabelValues(outcome).Inc()
	}

	warmup := market.NewWarmup(cache, countingHistory{rest}, snapshots)

	engine := strategy.NewEngine(cache)
	mon := monitor.New(cache, engine, cfg.Strategy.Plan)

	return &App{
		cfg:       cfg,
		cache:     cache,
		snapshots: snapshots,
		rest:      rest,
		connector: connector,
		updater:   updater,
		poller:    poller,
		warmup:    warmup,
		engine:    engine,
		monitor:   mon,
	}, nil
}

// countingHistory wraps the REST client so each successful backfill fetch is
// counted.
type countingHistory struct {
	src market.HistorySource
}

func (h countingHistory) Candles(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Candle, error) {
	bars, err := h.src.Candles(ctx, sym, tf, limit)
	if err == nil {
		metrics.BackfillsTotal.Inc()
	}
	return bars, err
}

// Run warms the cache and then starts every long-running component. It
// returns once ctx is cancelled and the components have wound down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.shutdown()

	if err := a.warmup.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("warmup: %w", err)
	}

	if err := a.monitor.Register(); err != nil {
		return err
	}
	a.monitor.Start()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		// A dead feed is degraded, not fatal: the fallback poller keeps
		// prices flowing while the process stays up.
		if err := a.connector.Run(ctx); errors.Is(err, kucoin.ErrFeedUnavailable) {
			applog.Errorf("[app] streaming feed gave up, running on fallback polling only")
		}
		return nil
	})

	group.Go(func() error {
		a.updater.Consume(ctx, a.connector.Ticks())
		return nil
	})

	group.Go(func() error {
		a.poller.Run(ctx)
		return nil
	})

	group.Go(func() error {
		a.watchFeedStats(ctx)
		return nil
	})

	group.Go(func() error {
		metrics.Serve(ctx, a.cfg.App.MetricsAddr)
		return nil
	})

	return group.Wait()
}

// watchFeedStats mirrors connector stats into gauges and counters.
func (a *App) watchFeedStats(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	lastReconnects := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.connector.Stats()
			metrics.FeedState.Set(float64(stats.State))
			if d := stats.Reconnects - lastReconnects; d > 0 {
				metrics.FeedReconnectsTotal.Add(float64(d))
				lastReconnects = stats.Reconnects
			}
		}
	}
}

func (a *App) shutdown() {
	a.connector.Close()
	a.monitor.Stop()
	a.saveSnapshot()
	if err := a.snapshots.Close(); err != nil {
		applog.Warnf("[app] closing snapshot store: %v", err)
	}
	applog.Infof("[app] shutdown complete")
}

// saveSnapshot persists the current cache so the next start is warm.
func (a *App) saveSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := make(market.Snapshot, len(market.Basket))
	for _, sym := range market.Basket {
		byTF := make(map[market.Timeframe][]market.Candle, len(market.Timeframes()))
		for _, tf := range market.Timeframes() {
			if bars := a.cache.GetBars(sym, tf, a.cfg.Market.MaxBars); len(bars) > 0 {
				byTF[tf] = bars
			}
		}
		if len(byTF) > 0 {
			snap[sym] = byTF
		}
	}
	if len(snap) == 0 {
		return
	}
	if err := a.snapshots.Save(ctx, snap); err != nil {
		applog.Warnf("[app] final snapshot save failed: %v", err)
	}
}
