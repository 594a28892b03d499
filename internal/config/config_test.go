package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 500, cfg.Market.MaxBars)
	assert.Equal(t, 2*time.Minute, cfg.Market.PollInterval)
	assert.Equal(t, "swing", cfg.Strategy.Plan)
	assert.Equal(t, "data/candles.db", cfg.App.SnapshotPath)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
market:
  poll_interval: 90s
kucoin:
  backoff_base: 1s
  backoff_cap: 20s
  token_renewal: 6h
strategy:
  plan: scalp
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Market.PollInterval)
	assert.Equal(t, time.Second, cfg.KuCoin.BackoffBase)
	assert.Equal(t, 20*time.Second, cfg.KuCoin.BackoffCap)
	assert.Equal(t, 6*time.Hour, cfg.KuCoin.TokenRenewal)
	assert.Equal(t, "scalp", cfg.Strategy.Plan)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, "app:\n  log_level: verbose\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
