package storage

import (
	"context"
	"time"

	"launchpad-terminal/internal/domain"
)

// Fixed settings keys.
const (
	KeyWalletNames    = "wallet_names"
	KeyTrackedWallets = "tracked_wallets"
)

// DefaultRecentLimit caps RecentTrades when no limit is given.
const DefaultRecentLimit = 100

// SettingsStore persists opaque JSON blobs under fixed keys.
type SettingsStore interface {
	// Get returns the blob under key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// TradeArchive stores live trades and serves close series from them.
type TradeArchive interface {
	// InsertTrades appends trades. Duplicates by id are ignored.
	InsertTrades(ctx context.Context, trades []domain.Trade) error

	// RecentTrades returns up to limit trades of a market, newest first.
	RecentTrades(ctx context.Context, marketID string, limit int) ([]domain.Trade, error)

	// CloseSeries returns count per-bucket closes of a market starting at
	// from, carrying the previous close into empty buckets.
	CloseSeries(ctx context.Context, marketID string, from time.Time, step time.Duration, count int) ([]float64, error)
}
