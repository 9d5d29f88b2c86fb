package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const baseYAML = `
database:
  url: "./engine.db"
venues:
  binance:
    api_key: "$TEST_BINANCE_KEY"
    api_secret: "$TEST_BINANCE_SECRET"
    symbols: ["BTCUSDT"]
  kraken:
    api_key: "plainkey"
    api_secret: "plainsecret"
    symbols: ["XBTUSD"]
strategy:
  symbol: "BTCUSDT"
  min_spread: 100
  quantity: 1.0
`

func TestLoadResolvesEnvironmentReferences(t *testing.T) {
	t.Setenv("TEST_BINANCE_KEY", "resolved-key")
	t.Setenv("TEST_BINANCE_SECRET", "resolved-secret")
	path := writeConfig(t, baseYAML)

	cfg, err := Load(path, "arbitrage")
	require.NoError(t, err)

	assert.Equal(t, "resolved-key", cfg.Venues["binance"].APIKey)
	assert.Equal(t, "resolved-secret", cfg.Venues["binance"].APISecret)
	assert.Equal(t, "plainkey", cfg.Venues["kraken"].APIKey)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Venues["binance"].Symbols)
}

func TestLoadFailsOnUnsetEnvironmentReference(t *testing.T) {
	path := writeConfig(t, baseYAML)

	_, err := Load(path, "arbitrage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_BINANCE_KEY")
}

func TestLoadValidatesStrategyRequirements(t *testing.T) {
	t.Setenv("TEST_BINANCE_KEY", "k")
	t.Setenv("TEST_BINANCE_SECRET", "s")
	path := writeConfig(t, baseYAML)

	_, err := Load(path, "triangular")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset_a")
}

func TestLoadValidatesMarketMakerRequiresSymbol(t *testing.T) {
	t.Setenv("TEST_BINANCE_KEY", "k")
	t.Setenv("TEST_BINANCE_SECRET", "s")
	path := writeConfig(t, `
database:
  url: "./engine.db"
venues:
  binance:
    api_key: "$TEST_BINANCE_KEY"
    api_secret: "$TEST_BINANCE_SECRET"
    symbols: ["BTCUSDT"]
`)

	_, err := Load(path, "marketmaker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy.symbol")
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_BINANCE_KEY", "k")
	t.Setenv("TEST_BINANCE_SECRET", "s")
	path := writeConfig(t, baseYAML)

	cfg, err := Load(path, "marketmaker")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.TradeRetentionDays)
	assert.Equal(t, 9090, cfg.MetricsPort)
}
