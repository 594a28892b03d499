package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	applog "mozi/internal/logger"
	"mozi/internal/strategy"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	KuCoin   KuCoinConfig   `toml:"kucoin"`
	Strategy StrategyConfig `toml:"strategy"`
}

type AppConfig struct {
	LogLevel     string `toml:"log_level"`
	LogFile      string `toml:"log_file"`
	MetricsAddr  string `toml:"metrics_addr"`
	SnapshotPath string `toml:"snapshot_path"`
}

type MarketConfig struct {
	MaxBars      int           `toml:"max_bars"`
	PollInterval time.Duration `toml:"poll_interval"`
}

type KuCoinConfig struct {
	RESTBaseURL  string        `toml:"rest_base_url"`
	HTTPTimeout  time.Duration `toml:"http_timeout"`
	PingInterval time.Duration `toml:"ping_interval"`
	BackoffBase  time.Duration `toml:"backoff_base"`
	BackoffCap   time.Duration `toml:"backoff_cap"`
	MaxAttempts  int           `toml:"max_attempts"`
	TokenRenewal time.Duration `toml:"token_renewal"`
	TickBuffer   int           `toml:"tick_buffer"`
}

type StrategyConfig struct {
	Plan string `toml:"plan"`
}

// Load reads a yaml config file and fills in defaults for everything the
// file leaves out.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.SnapshotPath == "" {
		c.App.SnapshotPath = "data/candles.db"
	}
	if c.Market.MaxBars <= 0 {
		c.Market.MaxBars = 500
	}
	if c.Market.PollInterval <= 0 {
		c.Market.PollInterval = 2 * time.Minute
	}
	if c.Strategy.Plan == "" {
		c.Strategy.Plan = strategy.DefaultPlanName
	}
	// zero-valued kucoin fields are filled by the gateway itself
}

func validate(c *Config) error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.App.LogLevel)
	}
	if c.KuCoin.MaxAttempts < 0 {
		return fmt.Errorf("kucoin.max_attempts cannot be negative")
	}
	known := false
	for _, name := range strategy.PlanNames() {
		if name == strings.ToLower(c.Strategy.Plan) {
			known = true
			break
		}
	}
	if !known {
		applog.Warnf("[config] unknown plan %q, the default will apply", c.Strategy.Plan)
	}
	return nil
}

// Watch re-reads the file on change and applies the settings that are safe to
// flip at runtime. Currently that is only the log level.
func Watch(path string) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		applog.Warnf("[config] watch disabled, cannot read %s: %v", path, err)
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		level := v.GetString("app.log_level")
		if level == "" {
			return
		}
		applog.SetLevel(level)
		applog.Infof("[config] log level set to %s", level)
	})
	v.WatchConfig()
}
