package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0.15, cfg.Trading.MinDiscount)
	assert.Equal(t, 0.10, cfg.Trading.ProfitTarget)
	assert.Equal(t, 0.20, cfg.Trading.StopLoss)
	assert.Equal(t, 100.0, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 500.0, cfg.Trading.MaxPortfolioSize)
	assert.True(t, cfg.Trading.DryRun)
	assert.Equal(t, 5*time.Minute, cfg.Trading.TradeInterval)
	assert.Equal(t, time.Minute, cfg.Monitor.ScanInterval)
	assert.Equal(t, "courtyard", cfg.Market.Provider)
	assert.Contains(t, cfg.Monitor.WatchedSets, "base-set")
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := `
trading:
  min_discount: 0.2
  max_position_size: 50
  dry_run: false
  trade_interval: 30s
market:
  provider: fake
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))
	t.Setenv("TRADING_PROFIT_TARGET", "0.25")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Trading.MinDiscount)
	assert.Equal(t, 50.0, cfg.Trading.MaxPositionSize)
	assert.False(t, cfg.Trading.DryRun)
	assert.Equal(t, 30*time.Second, cfg.Trading.TradeInterval)
	assert.Equal(t, 0.25, cfg.Trading.ProfitTarget)
	assert.Equal(t, "fake", cfg.Market.Provider)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Trading: Trading{
				MinDiscount:      0.15,
				ProfitTarget:     0.1,
				StopLoss:         0.2,
				MaxPositionSize:  100,
				MaxPortfolioSize: 500,
				TradeInterval:    time.Minute,
				RequestTimeout:   time.Second,
			},
			Market: Market{Provider: "fake"},
		}
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"discount out of range", func(c *Config) { c.Trading.MinDiscount = 1.5 }},
		{"zero profit target", func(c *Config) { c.Trading.ProfitTarget = 0 }},
		{"stop loss out of range", func(c *Config) { c.Trading.StopLoss = 0 }},
		{"portfolio below position", func(c *Config) { c.Trading.MaxPortfolioSize = 10 }},
		{"zero interval", func(c *Config) { c.Trading.TradeInterval = 0 }},
		{"unknown provider", func(c *Config) { c.Market.Provider = "ebay" }},
	}

	base := valid()
	assert.NoError(t, base.Validate())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
