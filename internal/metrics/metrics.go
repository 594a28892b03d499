package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "mozi/internal/logger"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozi_ticks_total",
			Help: "Price ticks applied to the candle cache",
		},
		[]string{"source"},
	)

	FeedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozi_feed_reconnects_total",
			Help: "Websocket feed reconnect attempts",
		},
	)

	FeedState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mozi_feed_state",
			Help: "Feed connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)",
		},
	)

	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozi_poll_cycles_total",
			Help: "Fallback poll cycles split by outcome",
		},
		[]string{"outcome"},
	)

	BackfillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozi_backfills_total",
			Help: "Historical series loaded during warmup",
		},
	)

	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozi_signals_total",
			Help: "Signals produced split by direction",
		},
		[]string{"direction"},
	)

	StaleSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mozi_stale_symbols",
			Help: "Basket symbols without a fresh tick at the last audit",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		FeedReconnectsTotal,
		FeedState,
		PollCyclesTotal,
		BackfillsTotal,
		SignalsTotal,
		StaleSymbols,
	)
}

// Serve exposes /metrics on addr until ctx is canceled. An empty addr
// disables the endpoint.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	applog.Infof("[metrics] serving on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		applog.Errorf("[metrics] server stopped: %v", err)
	}
}
