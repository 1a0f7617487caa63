// Package api exposes market state, trades, portfolio valuation and wallet
// settings over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/livefeed"
	"launchpad-terminal/internal/observability"
	"launchpad-terminal/internal/portfolio"
	"launchpad-terminal/internal/storage"
	"launchpad-terminal/internal/store"
	"launchpad-terminal/internal/wallets"
)

// PositionSource lists a wallet's token holdings.
type PositionSource interface {
	FetchWalletPositions(ctx context.Context, account string) ([]domain.Position, error)
}

// Valuator computes a portfolio value series.
type Valuator interface {
	Valuate(ctx context.Context, account common.Address, holdings []portfolio.Holding, chartDays int) ([]domain.PortfolioDataPoint, error)
}

// TradeSource reads trade history from the indexer.
type TradeSource interface {
	FetchTrades(ctx context.Context, marketID string, first int) ([]domain.Trade, error)
	FetchWalletTrades(ctx context.Context, account string) ([]domain.WalletTrade, error)
}

// FeedStatus reports live feed health.
type FeedStatus interface {
	State() livefeed.State
	Subscriptions() map[string]string
}

// Deps are the components served by the API. Trades, History, Feed and
// Metrics may be nil.
type Deps struct {
	Store     *store.Store
	Tape      *store.TradeTape
	Trades    storage.TradeArchive
	History   TradeSource
	Positions PositionSource
	Valuator  Valuator
	Wallets   *wallets.Resolver
	Feed      FeedStatus
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	// ValuationTimeout bounds one portfolio request.
	ValuationTimeout time.Duration
}

// Handler serves the API routes.
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ValuationTimeout <= 0 {
		deps.ValuationTimeout = 2 * time.Minute
	}
	h := &Handler{deps: deps, logger: deps.Logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/tokens/:status", h.ListTokens)
		api.POST("/tokens/:id/hide", h.HideToken)
		api.POST("/tokens/:id/loading", h.SetLoading)

		api.GET("/markets/:id/trades", h.MarketTrades)

		api.GET("/portfolio/:address", h.Portfolio)

		api.GET("/wallets/tracked", h.TrackedWallets)
		api.POST("/wallets/tracked/:address", h.TrackWallet)
		api.DELETE("/wallets/tracked/:address", h.UntrackWallet)
		api.GET("/wallets/:address/name", h.WalletName)
		api.GET("/wallets/:address/trades", h.WalletTrades)
		api.PUT("/wallets/:address/name", h.SetWalletName)
	}

	return router
}

// Health reports feed state.
// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.deps.Feed != nil {
		resp["feed"] = h.deps.Feed.State().String()
		resp["subscriptions"] = len(h.deps.Feed.Subscriptions())
	}
	c.JSON(http.StatusOK, resp)
}

// requestLogger logs each request at a level chosen by status code.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= 500:
			logger.Error("server error", fields...)
		case status >= 400:
			logger.Warn("client error", fields...)
		default:
			logger.Debug("request completed", fields...)
		}
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
