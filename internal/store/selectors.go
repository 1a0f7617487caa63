package store

import (
	"strings"

	"launchpad-terminal/internal/domain"
)

// Filter is a column-level attribute filter. Zero bounds are open.
type Filter struct {
	MinMarketCap float64
	MaxMarketCap float64
	MinHolders   int64
	MaxHolders   int64
	Query        string
}

func (f Filter) match(t domain.Token) bool {
	if f.MinMarketCap > 0 && t.MarketCap < f.MinMarketCap {
		return false
	}
	if f.MaxMarketCap > 0 && t.MarketCap > f.MaxMarketCap {
		return false
	}
	if f.MinHolders > 0 && t.Holders < f.MinHolders {
		return false
	}
	if f.MaxHolders > 0 && t.Holders > f.MaxHolders {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Symbol), q) ||
			strings.Contains(strings.ToLower(t.ID), q) ||
			strings.Contains(strings.ToLower(t.TokenAddress), q)
	}
	return true
}

// Column returns the visible tokens of one status bucket: duplicates by id
// collapse to the first (most recently added) entry, hidden ids are dropped
// and f is applied. The result is a fresh slice.
func Column(s State, status domain.Status, f Filter) []domain.Token {
	bucket := s.Buckets[status]
	out := make([]domain.Token, 0, len(bucket))
	seen := make(map[string]struct{}, len(bucket))
	for _, t := range bucket {
		id := normID(t.ID)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, hidden := s.Hidden[id]; hidden {
			continue
		}
		if !f.match(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Count returns len(Column(s, status, f)).
func Count(s State, status domain.Status, f Filter) int {
	return len(Column(s, status, f))
}

// Find returns the first visible token with the given id in any bucket.
func Find(s State, id string) (domain.Token, bool) {
	id = normID(id)
	if _, hidden := s.Hidden[id]; hidden {
		return domain.Token{}, false
	}
	for _, status := range domain.Statuses {
		for _, t := range s.Buckets[status] {
			if normID(t.ID) == id {
				return t, true
			}
		}
	}
	return domain.Token{}, false
}

// MarketIDs returns every distinct market id held in state, hidden ones
// included, since the live feed still tracks them.
func MarketIDs(s State) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, status := range domain.Statuses {
		for _, t := range s.Buckets[status] {
			id := normID(t.ID)
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// IsLoading reports whether id has an in-flight request.
func IsLoading(s State, id string) bool {
	_, ok := s.Loading[normID(id)]
	return ok
}

// IsHidden reports whether id is soft-hidden.
func IsHidden(s State, id string) bool {
	_, ok := s.Hidden[normID(id)]
	return ok
}
