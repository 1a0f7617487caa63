package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"launchpad-terminal/internal/domain"
	"launchpad-terminal/internal/storage"
)

// TradeArchive is an in-memory implementation of storage.TradeArchive.
type TradeArchive struct {
	mu     sync.RWMutex
	trades map[string][]domain.Trade // market -> trades ordered by timestamp ASC
	ids    map[string]struct{}
}

// NewTradeArchive creates a new in-memory trade archive.
func NewTradeArchive() *TradeArchive {
	return &TradeArchive{
		trades: make(map[string][]domain.Trade),
		ids:    make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// InsertTrades appends trades, skipping ids already stored.
func (a *TradeArchive) InsertTrades(_ context.Context, trades []domain.Trade) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	touched := make(map[string]struct{})
	for _, tr := range trades {
		if tr.ID == "" || tr.MarketID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := a.ids[tr.ID]; dup {
			continue
		}
		a.ids[tr.ID] = struct{}{}
		key := strings.ToLower(tr.MarketID)
		a.trades[key] = append(a.trades[key], tr)
		touched[key] = struct{}{}
	}

	for key := range touched {
		list := a.trades[key]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (a *TradeArchive) RecentTrades(_ context.Context, marketID string, limit int) ([]domain.Trade, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	list := a.trades[strings.ToLower(marketID)]
	n := len(list)
	if limit <= 0 {
		limit = storage.DefaultRecentLimit
	}
	if limit < n {
		n = limit
	}
	out := make([]domain.Trade, 0, n)
	for i := len(list) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// CloseSeries returns per-bucket closes from the stored trades.
func (a *TradeArchive) CloseSeries(_ context.Context, marketID string, from time.Time, step time.Duration, count int) ([]float64, error) {
	if count <= 0 || step <= 0 {
		return nil, nil
	}

	a.mu.RLock()
	list := a.trades[strings.ToLower(marketID)]
	points := make([]domain.PricePoint, len(list))
	for i, tr := range list {
		points[i] = domain.PricePoint{Timestamp: tr.Timestamp, Price: tr.Price}
	}
	a.mu.RUnlock()

	return domain.AlignCloses(points, from.Unix(), int64(step/time.Second), count), nil
}
