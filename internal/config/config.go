// Package config defines all configuration for the grid trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via GRID_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	API     APIConfig     `mapstructure:"api"`
	Grid    GridConfig    `mapstructure:"grid"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Logging LoggingConfig `mapstructure:"logging"`
	Status  StatusConfig  `mapstructure:"status"`
}

// WalletConfig holds the signing key used to authorize exchange actions.
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	WalletAddress string `mapstructure:"wallet_address"`
	IsMainnet     bool   `mapstructure:"is_mainnet"`
}

// APIConfig holds the exchange REST endpoints.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// GridConfig tunes the grid geometry and placement cadence.
//
//   - Symbol: the perpetual traded, e.g. "BTC".
//   - AssetIndex: cached 0-based index resolved at orchestrator startup
//     (may differ from any value configured here; config value is a hint
//     used only if asset-index resolution is skipped in tests).
//   - GridLevels: number of rungs, must be >= 4.
//   - GridSpacingPercent: geometric spacing between adjacent rungs.
//   - OrderSizeBtc: constant per-level order quantity.
//   - SyncIntervalSeconds: orchestrator tick period.
type GridConfig struct {
	Symbol              string  `mapstructure:"symbol"`
	AssetIndex          int     `mapstructure:"asset_index"`
	GridLevels          int     `mapstructure:"grid_levels"`
	GridSpacingPercent  float64 `mapstructure:"grid_spacing_percent"`
	OrderSizeBtc        float64 `mapstructure:"order_size_btc"`
	SyncIntervalSeconds int     `mapstructure:"sync_interval_seconds"`
}

// SyncInterval returns GridConfig.SyncIntervalSeconds as a time.Duration.
func (g GridConfig) SyncInterval() time.Duration {
	return time.Duration(g.SyncIntervalSeconds) * time.Second
}

// RiskConfig sets the hard limits the risk manager enforces every tick.
type RiskConfig struct {
	MaxPositionSizeBtc float64 `mapstructure:"max_position_size_btc"`
	MaxDrawdownPercent float64 `mapstructure:"max_drawdown_percent"`
	MinGridPrice       float64 `mapstructure:"min_grid_price"`
	MaxGridPrice       float64 `mapstructure:"max_grid_price"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StatusConfig controls the read-only status HTTP/WS surface.
type StatusConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: GRID_PRIVATE_KEY, GRID_WALLET_ADDRESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("GRID_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if addr := os.Getenv("GRID_WALLET_ADDRESS"); addr != "" {
		cfg.Wallet.WalletAddress = addr
	}
	if os.Getenv("GRID_DRY_RUN") == "true" || os.Getenv("GRID_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. A failure here is
// ConfigInvalid — fatal at startup, the only error the orchestrator never
// swallows.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set GRID_PRIVATE_KEY)")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Grid.Symbol == "" {
		return fmt.Errorf("grid.symbol is required")
	}
	if c.Grid.GridLevels < 4 {
		return fmt.Errorf("grid.grid_levels must be >= 4")
	}
	if c.Grid.GridSpacingPercent <= 0 {
		return fmt.Errorf("grid.grid_spacing_percent must be > 0")
	}
	if c.Grid.OrderSizeBtc <= 0 {
		return fmt.Errorf("grid.order_size_btc must be > 0")
	}
	if c.Grid.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("grid.sync_interval_seconds must be > 0")
	}
	if c.Risk.MaxPositionSizeBtc <= 0 {
		return fmt.Errorf("risk.max_position_size_btc must be > 0")
	}
	if c.Risk.MaxDrawdownPercent <= 0 {
		return fmt.Errorf("risk.max_drawdown_percent must be > 0")
	}
	if c.Risk.MinGridPrice <= 0 || c.Risk.MaxGridPrice <= c.Risk.MinGridPrice {
		return fmt.Errorf("risk.min_grid_price must be > 0 and less than risk.max_grid_price")
	}
	return nil
}
