package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TERMINAL_SUBGRAPH_URL", "http://subgraph.local")
	t.Setenv("TERMINAL_CHAIN_WSURL", "ws://node.local")
	t.Setenv("TERMINAL_CHAIN_RPCURL", "http://node.local")
	t.Setenv("TERMINAL_CHAIN_CREATEDTOPIC", "0x01")
	t.Setenv("TERMINAL_CHAIN_UPDATETOPIC", "0x02")
	t.Setenv("TERMINAL_CHAIN_BALANCEHELPER", "0x00000000000000000000000000000000000000b1")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	setRequired(t)
	t.Setenv("TERMINAL_PORTFOLIO_REQUESTDELAY", "50ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://subgraph.local", cfg.Subgraph.URL)
	assert.Equal(t, 12, cfg.Subgraph.MetadataWorkers)
	assert.Equal(t, 30, cfg.Store.MaxPerColumn)
	assert.Equal(t, 3*time.Minute, cfg.Portfolio.CacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.Portfolio.Freshness)
	assert.Equal(t, 50*time.Millisecond, cfg.Portfolio.RequestDelay)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, 2*time.Minute, cfg.Portfolio.Timeout)
	assert.Less(t, cfg.Portfolio.Timeout, cfg.Server.WriteTimeout)
	assert.Empty(t, cfg.Chain.NativeQuoteMarket)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	setRequired(t)
	t.Setenv("TERMINAL_STORE_MAXPERCOLUMN", "40")

	path := filepath.Join(dir, "terminal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  maxpercolumn: 20\n  tapesize: 50\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Store.MaxPerColumn)
	assert.Equal(t, 50, cfg.Store.TapeSize)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	setRequired(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TERMINAL_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TERMINAL_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingRequired(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TERMINAL_SUBGRAPH_URL", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_QuoteMarkets(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	setRequired(t)

	path := filepath.Join(dir, "terminal.yaml")
	yaml := "chain:\n  nativequotemarket: \"0xnativeusd\"\n" +
		"portfolio:\n  quotemarkets:\n    \"0x00000000000000000000000000000000000000c1\": \"0xc1usd\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0xnativeusd", cfg.Chain.NativeQuoteMarket)
	assert.Equal(t, map[string]string{"0x00000000000000000000000000000000000000c1": "0xc1usd"}, cfg.Portfolio.QuoteMarkets)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Chain: ChainConfig{
				RPCURL:        "http://node",
				WSURL:         "ws://node",
				CreatedTopic:  "0x01",
				UpdateTopic:   "0x02",
				BalanceHelper: "0x00000000000000000000000000000000000000b1",
			},
			Server:    ServerConfig{WriteTimeout: 150 * time.Second},
			Subgraph:  SubgraphConfig{URL: "http://subgraph", GraduatingFraction: 0.8},
			Portfolio: PortfolioConfig{Timeout: 2 * time.Minute},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Chain.BalanceHelper = ""
	assert.ErrorContains(t, cfg.Validate(), "chain.balancehelper")

	cfg = valid()
	cfg.Portfolio.Timeout = 3 * time.Minute
	assert.ErrorContains(t, cfg.Validate(), "server.writetimeout")

	cfg = valid()
	cfg.Portfolio.QuoteMarkets = map[string]string{"usdc": "0xm"}
	assert.ErrorContains(t, cfg.Validate(), "portfolio.quotemarkets")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
