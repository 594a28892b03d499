package kucoin

import "time"

const (
	defaultRESTBaseURL = "https://api.kucoin.com"
	defaultHTTPTimeout = 15 * time.Second

	defaultPingInterval = 30 * time.Second
	defaultBackoffBase  = 2 * time.Second
	defaultBackoffCap   = 30 * time.Second
	defaultMaxAttempts  = 10

	// Upstream tokens are valid for 24h; renewing at half the window leaves
	// plenty of room for a failed reconnect cycle.
	defaultTokenRenewal = 12 * time.Hour

	defaultTickBufSize = 512
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	PingInterval time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxAttempts  int
	TokenRenewal time.Duration

	TickBuffer int
}

func (c Config) withDefaults() Config {
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = defaultRESTBaseURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.TokenRenewal <= 0 {
		c.TokenRenewal = defaultTokenRenewal
	}
	if c.TickBuffer <= 0 {
		c.TickBuffer = defaultTickBufSize
	}
	return c
}
