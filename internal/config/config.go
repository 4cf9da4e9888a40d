// Package config defines matchcore's process configuration. Config is
// loaded from a YAML file with MATCHCORE_* environment variable
// overrides, matching the pack's viper-based config loaders.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level process configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Symbols     []SymbolConfig    `mapstructure:"symbols"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Broadcast   BroadcastConfig   `mapstructure:"broadcast"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the TCP listener address.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// SymbolConfig is one matching engine instance's static parameters.
type SymbolConfig struct {
	Symbol   string          `mapstructure:"symbol"`
	MakerFee decimal.Decimal `mapstructure:"-"`
	TakerFee decimal.Decimal `mapstructure:"-"`
	// MakerFeeStr/TakerFeeStr are the raw YAML values; fees are exact
	// decimals and must never round-trip through float64, so they are
	// parsed explicitly in Load rather than left to mapstructure's
	// numeric decoding.
	MakerFeeStr string `mapstructure:"maker_fee"`
	TakerFeeStr string `mapstructure:"taker_fee"`
}

// PersistenceConfig controls the durable-write path.
type PersistenceConfig struct {
	DataDir          string        `mapstructure:"data_dir"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// BroadcastConfig controls fan-out cadence and depth.
type BroadcastConfig struct {
	DepthLevels int `mapstructure:"depth_levels"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with MATCHCORE_* environment
// variable overrides (e.g. MATCHCORE_SERVER_PORT overrides
// server.port).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MATCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	for i := range cfg.Symbols {
		s := &cfg.Symbols[i]
		maker, err := decimal.NewFromString(s.MakerFeeStr)
		if err != nil {
			return nil, fmt.Errorf("config: symbols[%d].maker_fee: %w", i, err)
		}
		taker, err := decimal.NewFromString(s.TakerFeeStr)
		if err != nil {
			return nil, fmt.Errorf("config: symbols[%d].taker_fee: %w", i, err)
		}
		s.MakerFee, s.TakerFee = maker, taker
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 9001)
	v.SetDefault("persistence.data_dir", "./data")
	v.SetDefault("persistence.snapshot_interval", 60*time.Second)
	v.SetDefault("persistence.retention_days", 30)
	v.SetDefault("broadcast.depth_levels", 10)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one entry in symbols is required")
	}
	seen := make(map[string]bool)
	for i, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("config: symbols[%d].symbol is required", i)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("config: duplicate symbol %q", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.MakerFee.IsNegative() || s.TakerFee.IsNegative() {
			return fmt.Errorf("config: symbols[%d] fees must be non-negative", i)
		}
	}
	if c.Persistence.DataDir == "" {
		return fmt.Errorf("config: persistence.data_dir is required")
	}
	if c.Broadcast.DepthLevels <= 0 {
		return fmt.Errorf("config: broadcast.depth_levels must be > 0")
	}
	return nil
}
