// Package config loads the engine's YAML configuration document:
// per-venue credentials, per-settlement-cluster credentials, the active
// strategy's parameters, and the database/persistence locations. A "$NAME"
// value in venues.*.api_key, venues.*.api_secret, settlement.*.api_key,
// settlement.*.private_key or database.url is resolved against the
// environment at load time, and a missing variable is a startup failure.
// All other string fields are taken literally, "$" prefix included.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// VenueCredentials is one exchange's API identity and the symbols its
// connector subscribes to.
type VenueCredentials struct {
	APIKey    string   `mapstructure:"api_key"`
	APISecret string   `mapstructure:"api_secret"`
	Symbols   []string `mapstructure:"symbols"`
}

// SettlementCredentials is one on-chain cluster endpoint's identity.
// Destinations maps a symbol this cluster can settle to the base58
// account address a transfer order for that symbol is sent to.
type SettlementCredentials struct {
	APIKey       string            `mapstructure:"api_key"`
	Cluster      string            `mapstructure:"cluster"`
	PrivateKey   string            `mapstructure:"private_key"`
	Destinations map[string]string `mapstructure:"destinations"`
}

// StrategyParams holds every strategy's parameters; only the fields
// relevant to the selected --strategy flag are read.
type StrategyParams struct {
	Symbol             string  `mapstructure:"symbol"`
	MinSpread          float64 `mapstructure:"min_spread"`
	Spread             float64 `mapstructure:"spread"`
	Quantity           float64 `mapstructure:"quantity"`
	AssetA             string  `mapstructure:"asset_a"`
	AssetB             string  `mapstructure:"asset_b"`
	AssetC             string  `mapstructure:"asset_c"`
	TradeAmountB       float64 `mapstructure:"trade_amount_b"`
	MinProfitThreshold float64 `mapstructure:"min_profit_threshold"`
	BuyTokenAmount     float64 `mapstructure:"buy_token_amount"`
	MaxSolPricePerToken float64 `mapstructure:"max_sol_price_per_token"`
}

// ArchiveConfig controls optional S3 cold-storage archival; archival is
// disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Prefix        string `mapstructure:"prefix"`
	IntervalHours int    `mapstructure:"interval_hours"`
	AfterHours    int    `mapstructure:"after_hours"`
}

// DatabaseConfig names the embedded relational store's location.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// Config is the fully resolved engine configuration.
type Config struct {
	Venues             map[string]VenueCredentials      `mapstructure:"venues"`
	Settlement         map[string]SettlementCredentials `mapstructure:"settlement"`
	Strategy           StrategyParams                   `mapstructure:"strategy"`
	Database           DatabaseConfig                   `mapstructure:"database"`
	Persistence        DatabaseConfig                   `mapstructure:"persistence"`
	Archive            ArchiveConfig                     `mapstructure:"archive"`
	TradeRetentionDays int                               `mapstructure:"trade_retention_days"`
	MetricsPort        int                               `mapstructure:"metrics_port"`
}

// Load reads the YAML document at path, resolves "$ENV_VAR" values in the
// fields resolveEnvRefs covers, and validates that database.url and the
// chosen strategy's required venues and parameters are present.
func Load(path, strategy string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("trade_retention_days", 7)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("archive.interval_hours", 6)
	v.SetDefault("archive.after_hours", 24)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := resolveEnvRefs(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg, strategy); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveEnvRefs walks every string field that carries a secret and
// replaces a "$NAME" value with the environment variable NAME. An unset
// variable is a startup failure, per spec §6.
func resolveEnvRefs(cfg *Config) error {
	resolve := func(field, value string) (string, error) {
		if !strings.HasPrefix(value, "$") {
			return value, nil
		}
		name := strings.TrimPrefix(value, "$")
		resolved, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("config: %s references unset environment variable %q", field, name)
		}
		return resolved, nil
	}

	for name, venue := range cfg.Venues {
		key, err := resolve(fmt.Sprintf("venues.%s.api_key", name), venue.APIKey)
		if err != nil {
			return err
		}
		secret, err := resolve(fmt.Sprintf("venues.%s.api_secret", name), venue.APISecret)
		if err != nil {
			return err
		}
		venue.APIKey, venue.APISecret = key, secret
		cfg.Venues[name] = venue
	}

	for name, settlement := range cfg.Settlement {
		key, err := resolve(fmt.Sprintf("settlement.%s.api_key", name), settlement.APIKey)
		if err != nil {
			return err
		}
		pk, err := resolve(fmt.Sprintf("settlement.%s.private_key", name), settlement.PrivateKey)
		if err != nil {
			return err
		}
		settlement.APIKey, settlement.PrivateKey = key, pk
		cfg.Settlement[name] = settlement
	}

	dbURL, err := resolve("database.url", cfg.Database.URL)
	if err != nil {
		return err
	}
	cfg.Database.URL = dbURL

	return nil
}

// validate checks that the config carries what the chosen strategy and
// the persistence layer need to start.
func validate(cfg *Config, strategy string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}

	switch strategy {
	case "arbitrage":
		if len(cfg.Venues) < 2 {
			return fmt.Errorf("config: spread arbitrage requires at least two venues")
		}
	case "marketmaker":
		if len(cfg.Venues) < 1 {
			return fmt.Errorf("config: market maker requires at least one venue")
		}
		if cfg.Strategy.Symbol == "" {
			return fmt.Errorf("config: market maker requires strategy.symbol")
		}
	case "triangular":
		if cfg.Strategy.AssetA == "" || cfg.Strategy.AssetB == "" || cfg.Strategy.AssetC == "" {
			return fmt.Errorf("config: triangular arbitrage requires strategy.asset_a/b/c")
		}
	default:
		return fmt.Errorf("config: unknown strategy %q", strategy)
	}

	return nil
}
