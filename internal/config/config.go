// Package config loads service configuration from an optional file, a .env
// file and TERMINAL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"launchpad-terminal/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. TERMINAL_CHAIN_WSURL.
const EnvPrefix = "TERMINAL"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Chain      ChainConfig
	Subgraph   SubgraphConfig
	Portfolio  PortfolioConfig
	Store      StoreConfig
	Postgres   DatabaseConfig
	ClickHouse DatabaseConfig
	Metrics    MetricsConfig
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig configures logging.
type LogConfig struct {
	Format   string
	Dir      string
	Level    string
	Compress bool
}

// ToOptions converts to logger options.
func (c LogConfig) ToOptions() logger.Options {
	return logger.Options{
		Format:   c.Format,
		Dir:      c.Dir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// ChainConfig holds node endpoints and protocol constants.
type ChainConfig struct {
	ChainID       int64
	RPCURL        string
	WSURL         string
	AvgBlockTime  time.Duration
	SafetyBlocks  uint64
	BalanceHelper string
	RouterAddress string
	CreatedTopic  string
	UpdateTopic   string
	WrappedNative string
	// NativeQuoteMarket prices wrapped native in the quote currency.
	// Empty values everything in native.
	NativeQuoteMarket string
}

// SubgraphConfig configures the GraphQL indexer client.
type SubgraphConfig struct {
	URL                 string
	Timeout             time.Duration
	MetadataWorkers     int
	IPFSGateway         string
	GraduationMarketCap float64
	GraduatingFraction  float64
	BootstrapLimit      int
}

// PortfolioConfig configures valuation.
type PortfolioConfig struct {
	RequestDelay time.Duration
	Freshness    time.Duration
	CacheTTL     time.Duration
	// Timeout bounds one portfolio request. It must leave room inside
	// server.writetimeout for the response.
	Timeout time.Duration
	// QuoteMarkets maps token address to a market that prices it directly
	// in the quote currency.
	QuoteMarkets map[string]string
}

// StoreConfig configures in-memory market state.
type StoreConfig struct {
	MaxPerColumn int
	TapeSize     int
}

// DatabaseConfig holds a DSN. An empty DSN disables the backend.
type DatabaseConfig struct {
	DSN string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Namespace string
}

// Load reads configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values.
func (c *Config) Validate() error {
	if c.Subgraph.URL == "" {
		return errors.New("subgraph.url is required")
	}
	if c.Chain.WSURL == "" {
		return errors.New("chain.wsurl is required")
	}
	if c.Chain.RPCURL == "" {
		return errors.New("chain.rpcurl is required")
	}
	if c.Chain.CreatedTopic == "" || c.Chain.UpdateTopic == "" {
		return errors.New("chain.createdtopic and chain.updatetopic are required")
	}
	if !common.IsHexAddress(c.Chain.BalanceHelper) {
		return fmt.Errorf("chain.balancehelper must be a contract address, got %q", c.Chain.BalanceHelper)
	}
	for token := range c.Portfolio.QuoteMarkets {
		if !common.IsHexAddress(token) {
			return fmt.Errorf("portfolio.quotemarkets: %q is not a token address", token)
		}
	}
	if c.Portfolio.Timeout <= 0 {
		return errors.New("portfolio.timeout must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Portfolio.Timeout >= c.Server.WriteTimeout {
		return fmt.Errorf("portfolio.timeout (%v) must be shorter than server.writetimeout (%v)",
			c.Portfolio.Timeout, c.Server.WriteTimeout)
	}
	if c.Subgraph.GraduatingFraction <= 0 || c.Subgraph.GraduatingFraction > 1 {
		return fmt.Errorf("subgraph.graduatingfraction must be in (0,1], got %v", c.Subgraph.GraduatingFraction)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.readtimeout", "10s")
	v.SetDefault("server.writetimeout", "150s")

	v.SetDefault("log.format", "json")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.compress", false)

	v.SetDefault("chain.chainid", 8453)
	v.SetDefault("chain.rpcurl", "")
	v.SetDefault("chain.wsurl", "")
	v.SetDefault("chain.avgblocktime", "2s")
	v.SetDefault("chain.safetyblocks", 5)
	v.SetDefault("chain.balancehelper", "")
	v.SetDefault("chain.routeraddress", "")
	v.SetDefault("chain.createdtopic", "")
	v.SetDefault("chain.updatetopic", "")
	v.SetDefault("chain.wrappednative", "")
	v.SetDefault("chain.nativequotemarket", "")

	v.SetDefault("subgraph.url", "")
	v.SetDefault("subgraph.timeout", "15s")
	v.SetDefault("subgraph.metadataworkers", 12)
	v.SetDefault("subgraph.ipfsgateway", "https://ipfs.io/ipfs/")
	v.SetDefault("subgraph.graduationmarketcap", 69000)
	v.SetDefault("subgraph.graduatingfraction", 0.8)
	v.SetDefault("subgraph.bootstraplimit", 100)

	v.SetDefault("portfolio.requestdelay", "200ms")
	v.SetDefault("portfolio.freshness", "10m")
	v.SetDefault("portfolio.cachettl", "3m")
	v.SetDefault("portfolio.timeout", "2m")
	v.SetDefault("portfolio.quotemarkets", map[string]string{})

	v.SetDefault("store.maxpercolumn", 30)
	v.SetDefault("store.tapesize", 100)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")

	v.SetDefault("metrics.namespace", "launchpad_terminal")
}
