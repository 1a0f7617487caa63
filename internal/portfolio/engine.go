// Package portfolio reconstructs a wallet's value over time from
// historical on-chain balances and market close series.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpad-terminal/internal/chainlog"
	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/observability"
	"launchpad-terminal/internal/reqcache"
)

// Defaults
const (
	DefaultAvgBlockTime = 2 * time.Second
	DefaultSafetyBlocks = 5
	DefaultRequestDelay = 200 * time.Millisecond
	DefaultFreshness    = 10 * time.Minute
)

// HistoricalReadError is a failed balance read for one bucket.
type HistoricalReadError struct {
	Bucket time.Time
	Block  uint64
	Err    error
}

func (e *HistoricalReadError) Error() string {
	return fmt.Sprintf("historical read at block %d (%s): %v", e.Block, e.Bucket.UTC().Format(time.RFC3339), e.Err)
}

func (e *HistoricalReadError) Unwrap() error { return e.Err }

// BlockSource reports the current block number.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// BalanceReader reads all token balances of an account at a block.
type BalanceReader interface {
	BatchBalanceOf(ctx context.Context, account common.Address, tokens []common.Address, block *uint64) ([]*big.Int, error)
}

// PriceSource returns per-bucket close prices of a market.
type PriceSource interface {
	CloseSeries(ctx context.Context, market string, from time.Time, step time.Duration, count int) ([]float64, error)
}

// Holding is a token to value and the markets that can price it.
type Holding struct {
	Token  common.Address
	Symbol string
	// QuoteMarket prices the token directly in the quote currency.
	QuoteMarket string
	// NativeMarket prices the token in wrapped native.
	NativeMarket string
}

// HoldingsFromPositions maps indexer positions to holdings priced
// through their launchpad market, which trades against native.
func HoldingsFromPositions(positions []domain.Position) []Holding {
	out := make([]Holding, 0, len(positions))
	for _, p := range positions {
		out = append(out, Holding{
			Token:        common.HexToAddress(p.TokenAddress),
			Symbol:       p.Symbol,
			NativeMarket: p.MarketID,
		})
	}
	return out
}

// Config configures an Engine.
type Config struct {
	ChainID      int64
	AvgBlockTime time.Duration
	SafetyBlocks uint64
	RequestDelay time.Duration
	// Freshness is the maximum age of a cached result to serve, checked
	// on top of the cache's own TTL.
	Freshness time.Duration

	WrappedNative common.Address
	// NativeQuoteMarket prices wrapped native in the quote currency.
	// Empty means the quote currency is native.
	NativeQuoteMarket string
	// QuoteMarkets fills Holding.QuoteMarket for tokens that have a
	// direct quote market and none set by the caller.
	QuoteMarkets map[common.Address]string

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Engine computes and caches portfolio value series.
type Engine struct {
	blocks   BlockSource
	balances BalanceReader
	prices   PriceSource
	cache    *reqcache.Cache
	cfg      Config
}

// NewEngine creates an engine. cache may be shared with other callers.
func NewEngine(blocks BlockSource, balances BalanceReader, prices PriceSource, cache *reqcache.Cache, cfg Config) *Engine {
	if cfg.AvgBlockTime <= 0 {
		cfg.AvgBlockTime = DefaultAvgBlockTime
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = DefaultRequestDelay
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{blocks: blocks, balances: balances, prices: prices, cache: cache, cfg: cfg}
}

// Valuate returns one point per bucket of the window ending now. A
// cancelled ctx yields an empty result and a nil error; other failures
// before the bucket loop are returned. Per-bucket read failures only zero
// that bucket.
func (e *Engine) Valuate(ctx context.Context, account common.Address, holdings []Holding, chartDays int) ([]domain.PortfolioDataPoint, error) {
	now := e.cfg.Now()
	key := reqcache.Key(e.cfg.ChainID, account.Hex(), chartDays)

	if entry := e.cache.Get(key); entry != nil && entry.Age(now) < e.cfg.Freshness {
		e.cfg.Metrics.RecordCacheLookup(true)
		return entry.Data, nil
	}
	e.cfg.Metrics.RecordCacheLookup(false)

	start := time.Now()
	defer func() { e.cfg.Metrics.RecordValuation(time.Since(start).Seconds()) }()

	buckets := DateRange(now, chartDays)
	holdings = e.withQuoteMarkets(holdings)
	if len(holdings) == 0 {
		return zeroPoints(buckets), nil
	}

	current, err := e.blocks.BlockNumber(ctx)
	if err != nil {
		if isCancelled(ctx, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("current block: %w", err)
	}

	balances, ok := e.readBalances(ctx, account, holdings, buckets, current, now)
	if !ok {
		return nil, nil
	}

	series, ok := e.loadSeries(ctx, holdings, buckets, Step(chartDays))
	if !ok {
		return nil, nil
	}

	points := e.value(buckets, holdings, balances, series)
	e.cache.Set(key, points, balances, chartDays)
	return points, nil
}

func (e *Engine) withQuoteMarkets(holdings []Holding) []Holding {
	if len(e.cfg.QuoteMarkets) == 0 {
		return holdings
	}
	out := make([]Holding, len(holdings))
	for i, h := range holdings {
		if h.QuoteMarket == "" {
			h.QuoteMarket = e.cfg.QuoteMarkets[h.Token]
		}
		out[i] = h
	}
	return out
}

// readBalances reads buckets strictly one after another with a fixed
// delay between requests. It returns false when ctx was cancelled.
func (e *Engine) readBalances(ctx context.Context, account common.Address, holdings []Holding, buckets []Bucket, current uint64, now time.Time) (map[int64][]*big.Int, bool) {
	tokens := make([]common.Address, len(holdings))
	for i, h := range holdings {
		tokens[i] = h.Token
	}

	out := make(map[int64][]*big.Int, len(buckets))
	for i, b := range buckets {
		if ctx.Err() != nil {
			return nil, false
		}
		if i > 0 && e.cfg.RequestDelay > 0 {
			timer := time.NewTimer(e.cfg.RequestDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, false
			case <-timer.C:
			}
		}

		block := TargetBlock(current, e.cfg.AvgBlockTime, now.Sub(b.Time), e.cfg.SafetyBlocks)
		bals, err := e.balances.BatchBalanceOf(ctx, account, tokens, &block)
		if err != nil {
			if isCancelled(ctx, err) {
				return nil, false
			}
			e.cfg.Metrics.RecordHistoricalRead(false)
			readErr := &HistoricalReadError{Bucket: b.Time, Block: block, Err: err}
			e.cfg.Logger.Warn("skipping bucket", zap.String("account", account.Hex()), zap.Error(readErr))
			continue
		}
		e.cfg.Metrics.RecordHistoricalRead(true)
		out[b.Time.Unix()] = bals
	}
	return out, true
}

// loadSeries fetches one close series per distinct market. Markets that
// fail are treated as unpriced.
func (e *Engine) loadSeries(ctx context.Context, holdings []Holding, buckets []Bucket, step time.Duration) (map[string][]float64, bool) {
	markets := make(map[string]struct{})
	for _, h := range holdings {
		if h.QuoteMarket != "" {
			markets[domain.NormalizeAddress(h.QuoteMarket)] = struct{}{}
		}
		if h.NativeMarket != "" {
			markets[domain.NormalizeAddress(h.NativeMarket)] = struct{}{}
		}
	}
	if e.cfg.NativeQuoteMarket != "" {
		markets[domain.NormalizeAddress(e.cfg.NativeQuoteMarket)] = struct{}{}
	}

	out := make(map[string][]float64, len(markets))
	for m := range markets {
		if ctx.Err() != nil {
			return nil, false
		}
		s, err := e.prices.CloseSeries(ctx, m, buckets[0].Time, step, len(buckets))
		if err != nil {
			if isCancelled(ctx, err) {
				return nil, false
			}
			e.cfg.Logger.Warn("market series unavailable", zap.String("market", m), zap.Error(err))
			continue
		}
		out[m] = s
	}
	return out, true
}

// value sums balance times price per bucket.
func (e *Engine) value(buckets []Bucket, holdings []Holding, balances map[int64][]*big.Int, series map[string][]float64) []domain.PortfolioDataPoint {
	last := make([]float64, len(holdings))
	points := make([]domain.PortfolioDataPoint, len(buckets))

	for i, b := range buckets {
		bals := balances[b.Time.Unix()]
		var total float64
		for j, h := range holdings {
			price := e.priceAt(h, series, i)
			if price > 0 {
				last[j] = price
			} else {
				price = last[j]
			}
			if j < len(bals) && bals[j] != nil && bals[j].Sign() > 0 {
				total += chainlog.WeiToFloat(bals[j]) * price
			}
		}
		points[i] = domain.PortfolioDataPoint{Time: b.Label, Timestamp: b.Time.Unix(), Value: total}
	}
	return points
}

// priceAt returns the quote price of h at bucket i: the direct market if
// it has a close, else one hop through wrapped native. Zero means
// unpriced; deeper routes are not attempted.
func (e *Engine) priceAt(h Holding, series map[string][]float64, i int) float64 {
	if h.Token == e.cfg.WrappedNative && e.cfg.NativeQuoteMarket == "" {
		return 1
	}
	if p := at(series[domain.NormalizeAddress(h.QuoteMarket)], i); p > 0 {
		return p
	}
	native := at(series[domain.NormalizeAddress(h.NativeMarket)], i)
	if h.Token == e.cfg.WrappedNative {
		native = 1
	}
	if native <= 0 {
		return 0
	}
	if e.cfg.NativeQuoteMarket == "" {
		return native
	}
	return native * at(series[domain.NormalizeAddress(e.cfg.NativeQuoteMarket)], i)
}

func at(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func zeroPoints(buckets []Bucket) []domain.PortfolioDataPoint {
	points := make([]domain.PortfolioDataPoint, len(buckets))
	for i, b := range buckets {
		points[i] = domain.PortfolioDataPoint{Time: b.Label, Timestamp: b.Time.Unix()}
	}
	return points
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
