package store

import (
	"strings"
	"sync"

	"launchpad-terminal/internal/domain"
)

// DefaultTapeSize is the number of recent trades kept per market.
const DefaultTapeSize = 100

// TradeTape keeps the most recent trades per market, newest first.
type TradeTape struct {
	mu     sync.RWMutex
	size   int
	trades map[string][]domain.Trade
}

// NewTradeTape creates a tape holding at most size trades per market.
func NewTradeTape(size int) *TradeTape {
	if size <= 0 {
		size = DefaultTapeSize
	}
	return &TradeTape{size: size, trades: make(map[string][]domain.Trade)}
}

// Append records a trade at the head of its market's list.
func (t *TradeTape) Append(tr domain.Trade) {
	key := strings.ToLower(tr.MarketID)
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.trades[key]
	n := len(old) + 1
	if n > t.size {
		n = t.size
	}
	list := make([]domain.Trade, 0, n)
	list = append(list, tr)
	list = append(list, old[:n-1]...)
	t.trades[key] = list
}

// Seed replaces a market's list, e.g. from a subgraph fetch. trades must be
// newest first.
func (t *TradeTape) Seed(marketID string, trades []domain.Trade) {
	if len(trades) > t.size {
		trades = trades[:t.size]
	}
	list := make([]domain.Trade, len(trades))
	copy(list, trades)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades[strings.ToLower(marketID)] = list
}

// Recent returns up to limit trades for a market, newest first.
// limit <= 0 returns all.
func (t *TradeTape) Recent(marketID string, limit int) []domain.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := t.trades[strings.ToLower(marketID)]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	out := make([]domain.Trade, len(list))
	copy(out, list)
	return out
}
