// Package main runs the terminal market-data service: it bootstraps token
// state from the subgraph, follows market logs over the node WebSocket and
// serves state, trades, portfolio valuation and wallet settings over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"launchpad-terminal/internal/api"
	"launchpad-terminal/internal/chainlog"
	"launchpad-terminal/internal/config"
	"launchpad-terminal/internal/evm"
	"launchpad-terminal/internal/livefeed"
	"launchpad-terminal/internal/logger"
	"launchpad-terminal/internal/observability"
	"launchpad-terminal/internal/portfolio"
	"launchpad-terminal/internal/reqcache"
	"launchpad-terminal/internal/storage"
	chstore "launchpad-terminal/internal/storage/clickhouse"
	"launchpad-terminal/internal/storage/memory"
	"launchpad-terminal/internal/storage/migrations"
	pgstore "launchpad-terminal/internal/storage/postgres"
	"launchpad-terminal/internal/store"
	"launchpad-terminal/internal/subgraph"
	"launchpad-terminal/internal/wallets"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml/json/toml); env TERMINAL_* overrides")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("terminal", cfg.Log.ToOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("terminal stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, reg)

	// Stores
	backends, err := createStores(ctx, cfg, metrics, log)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer backends.close()

	// Subgraph
	sg, err := subgraph.NewClient(cfg.Subgraph.URL,
		subgraph.WithTimeout(cfg.Subgraph.Timeout),
		subgraph.WithMetadataWorkers(cfg.Subgraph.MetadataWorkers),
		subgraph.WithIPFSGateway(cfg.Subgraph.IPFSGateway),
		subgraph.WithGraduation(cfg.Subgraph.GraduationMarketCap, cfg.Subgraph.GraduatingFraction),
		subgraph.WithLogger(log.Named("subgraph")),
		subgraph.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create subgraph client: %w", err)
	}
	defer sg.Close()

	// Market state
	st := store.New(cfg.Store.MaxPerColumn)
	tape := store.NewTradeTape(cfg.Store.TapeSize)
	cache := reqcache.New(cfg.Portfolio.CacheTTL, nil)

	writer := storage.NewTradeWriter(backends.trades, 0, 0, 0, log.Named("trade-writer"))

	// Portfolio valuation
	rpc := evm.NewHTTPClient(cfg.Chain.RPCURL, evm.WithRPCLogger(log.Named("rpc")))
	checkChainID(ctx, rpc, cfg.Chain.ChainID, log)
	engine := portfolio.NewEngine(
		rpc,
		evm.NewBalanceHelper(rpc, common.HexToAddress(cfg.Chain.BalanceHelper)),
		portfolio.FallbackPrices{Primary: backends.trades, Secondary: sg, Logger: log.Named("prices")},
		cache,
		portfolio.Config{
			ChainID:           cfg.Chain.ChainID,
			AvgBlockTime:      cfg.Chain.AvgBlockTime,
			SafetyBlocks:      cfg.Chain.SafetyBlocks,
			RequestDelay:      cfg.Portfolio.RequestDelay,
			Freshness:         cfg.Portfolio.Freshness,
			WrappedNative:     common.HexToAddress(cfg.Chain.WrappedNative),
			NativeQuoteMarket: cfg.Chain.NativeQuoteMarket,
			QuoteMarkets:      quoteMarkets(cfg.Portfolio.QuoteMarkets),
			Logger:            log.Named("portfolio"),
			Metrics:           metrics,
		},
	)

	// Live feed
	wsCfg := evm.DefaultWSConfig()
	wsCfg.Logger = log.Named("ws")
	feed := livefeed.New(livefeed.EVMDialer(cfg.Chain.WSURL, wsCfg), st, livefeed.Config{
		RouterAddress: cfg.Chain.RouterAddress,
		Topics: chainlog.Topics{
			MarketCreated: common.HexToHash(cfg.Chain.CreatedTopic),
			MarketUpdate:  common.HexToHash(cfg.Chain.UpdateTopic),
		},
		Tape:     tape,
		Recorder: writer,
		Metadata: sg,
		OnDisconnect: func(err error) {
			log.Error("live feed disconnected, not reconnecting", zap.Error(err))
		},
		Logger:  log.Named("livefeed"),
		Metrics: metrics,
	})

	// HTTP API
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Store:     st,
		Tape:      tape,
		Trades:    backends.trades,
		History:   sg,
		Positions: sg,
		Valuator:  engine,
		Wallets:   wallets.NewResolver(backends.settings, log.Named("wallets")),
		Feed:      feed,
		Metrics:   metrics,
		Logger:    log.Named("api"),

		ValuationTimeout: cfg.Portfolio.Timeout,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		writer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		runFeed(ctx, sg, st, feed, cfg.Subgraph.BootstrapLimit, log)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	feed.Close()
	wg.Wait()
	log.Info("stopped",
		zap.Uint64("trades_written", writer.Written()),
		zap.Uint64("trades_dropped", writer.Dropped()))
	return nil
}

// runFeed bootstraps state and runs the subscriber once. A dropped socket
// leaves the feed closed; the API keeps serving the last state.
func runFeed(ctx context.Context, sg *subgraph.Client, st *store.Store, feed *livefeed.Subscriber, limit int, log *zap.Logger) {
	markets, err := livefeed.Bootstrap(ctx, sg, st, limit, log.Named("bootstrap"))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("bootstrap failed, continuing with empty state", zap.Error(err))
	}

	if err := feed.Run(ctx, markets); err != nil {
		log.Error("live feed stopped", zap.Error(err))
	}
}

// stores holds the settings store and trade archive with their cleanup.
type stores struct {
	settings storage.SettingsStore
	trades   storage.TradeArchive
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// createStores connects the configured backends and falls back to memory
// for any backend without a DSN.
func createStores(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, log *zap.Logger) (*stores, error) {
	s := &stores{
		settings: memory.NewSettingsStore(),
		trades:   memory.NewTradeArchive(),
	}

	if dsn := cfg.Postgres.DSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
			s.close()
			return nil, err
		}
		s.settings = pgstore.NewSettingsStore(pool, metrics)
		log.Info("settings store: postgres")
	} else {
		log.Info("settings store: memory")
	}

	if dsn := cfg.ClickHouse.DSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn, log)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.trades = chstore.NewTradeArchive(conn, metrics)
		log.Info("trade archive: clickhouse")
	} else {
		log.Info("trade archive: memory")
	}

	return s, nil
}

func quoteMarkets(raw map[string]string) map[common.Address]string {
	out := make(map[common.Address]string, len(raw))
	for token, market := range raw {
		out[common.HexToAddress(token)] = market
	}
	return out
}

// checkChainID warns when the RPC node serves a different chain than configured.
func checkChainID(ctx context.Context, rpc *evm.HTTPClient, want int64, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	got, err := rpc.ChainID(ctx)
	if err != nil {
		log.Warn("chain id check failed", zap.Error(err))
		return
	}
	if got != want {
		log.Warn("rpc chain id mismatch", zap.Int64("configured", want), zap.Int64("node", got))
	}
}
