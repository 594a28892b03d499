package kucoin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mozi/internal/logger"
	"mozi/internal/market"
)

// ErrFeedUnavailable is the terminal status after the reconnect attempt cap
// is exhausted. The connector stops retrying; the fallback poller remains
// the only live source.
var ErrFeedUnavailable = errors.New("feed unavailable: reconnect attempts exhausted")

// errTokenRenewal ends a healthy session so the next cycle bootstraps a
// fresh credential.
var errTokenRenewal = errors.New("token renewal due")

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

type Stats struct {
	State      ConnState
	Attempts   int
	Reconnects int
	Renewals   int
	LastError  string
}

// Connector owns the streaming session lifecycle: bullet token bootstrap,
// one all-ticker subscription, keepalive pings, reconnect with exponential
// backoff and scheduled token renewal. Parsed ticks are emitted on Ticks();
// a slow consumer drops frames instead of blocking the socket reader.
type Connector struct {
	cfg  Config
	rest *Client

	ticks chan market.TickEvent
	state atomic.Int32

	statsMu sync.Mutex
	stats   Stats

	closeOnce sync.Once
	closed    chan struct{}

	lastSessionConnected atomic.Bool
}

func NewConnector(cfg Config, rest *Client) *Connector {
	final := cfg.withDefaults()
	return &Connector{
		cfg:    final,
		rest:   rest,
		ticks:  make(chan market.TickEvent, final.TickBuffer),
		closed: make(chan struct{}),
	}
}

func (c *Connector) Ticks() <-chan market.TickEvent { return c.ticks }

func (c *Connector) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connector) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := c.stats
	out.State = c.State()
	return out
}

// Close shuts the connector down: the active socket is closed, all session
// timers stop and no further reconnection is scheduled.
func (c *Connector) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Run drives the connection state machine until ctx is cancelled, Close is
// called, or the attempt cap is reached (returning ErrFeedUnavailable).
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.ticks)
	defer c.setState(StateDisconnected)

	attempts := 0
	for {
		if c.done(ctx) {
			return nil
		}
		c.setState(StateConnecting)

		token, endpoint, err := c.rest.BulletPublic(ctx)
		if err == nil {
			err = c.runSession(ctx, token, endpoint)
		}

		switch {
		case c.done(ctx):
			return nil
		case errors.Is(err, errTokenRenewal):
			// Forced reconnect on a healthy session; fetch a fresh token
			// immediately, no backoff and no attempt charged.
			c.bumpRenewal()
			logger.Infof("[feed] token renewal, reconnecting")
			continue
		case err == nil:
			// Session ended without a reason; treat like a dropped socket.
			err = fmt.Errorf("stream closed")
			fallthrough
		default:
			// a session that reached subscribed state restores the budget
			if c.sessionWasConnected() {
				attempts = 0
			}
			attempts++
			c.recordFailure(attempts, err)
			if attempts >= c.cfg.MaxAttempts {
				logger.Errorf("[feed] giving up after %d attempts: %v", attempts, err)
				return ErrFeedUnavailable
			}
			delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffCap, attempts)
			c.setState(StateReconnecting)
			logger.Warnf("[feed] disconnected (attempt %d/%d, retry in %s): %v",
				attempts, c.cfg.MaxAttempts, delay, err)
			if !c.sleep(ctx, delay) {
				return nil
			}
		}
	}
}

// runSession dials, subscribes and pumps frames until the socket drops, the
// renewal timer fires, or shutdown.
func (c *Connector) runSession(ctx context.Context, token, endpoint string) error {
	url := fmt.Sprintf("%s?token=%s&connectId=%s", endpoint, token, uuid.NewString())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := wsRequest{ID: uuid.NewString(), Type: "subscribe", Topic: tickerTopic, Response: true}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.setState(StateConnected)
	c.markSessionConnected(true)
	logger.Infof("[feed] connected, subscribed %s", tickerTopic)

	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- raw:
			default:
				// reader never blocks on a slow consumer
			}
		}
	}()

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	renew := time.NewTimer(c.cfg.TokenRenewal)
	defer renew.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		case <-renew.C:
			return errTokenRenewal
		case <-ping.C:
			// Missed pongs are not fatal on their own; a dead socket will
			// surface as a read error.
			if err := conn.WriteJSON(wsRequest{ID: uuid.NewString(), Type: "ping"}); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case raw := <-frames:
			kind, evt, ok := classifyFrame(raw)
			if kind != frameTick || !ok {
				continue
			}
			select {
			case c.ticks <- evt:
			default:
				logger.Warnf("[feed] tick channel full, drop %s", evt.Symbol)
			}
		}
	}
}

func (c *Connector) setState(s ConnState) {
	c.state.Store(int32(s))
}

func (c *Connector) done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Connector) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Connector) recordFailure(attempts int, err error) {
	c.statsMu.Lock()
	c.stats.Attempts = attempts
	c.stats.Reconnects++
	if err != nil {
		c.stats.LastError = err.Error()
	}
	c.statsMu.Unlock()
}

func (c *Connector) bumpRenewal() {
	c.statsMu.Lock()
	c.stats.Renewals++
	c.statsMu.Unlock()
}

func (c *Connector) markSessionConnected(v bool) {
	c.statsMu.Lock()
	c.stats.Attempts = 0
	c.statsMu.Unlock()
	c.lastSessionConnected.Store(v)
}

func (c *Connector) sessionWasConnected() bool {
	return c.lastSessionConnected.Swap(false)
}

// backoffDelay returns min(base * 2^(attempt-1), limit) for attempt >= 1.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}
