// Package store holds token market state as a pure reducer over a fixed
// action set, with a mutex-serialized Store wrapping it.
package store

import (
	"fmt"
	"strings"

	"launchpad-terminal/internal/domain"
)

// DefaultMaxPerColumn caps each status bucket.
const DefaultMaxPerColumn = 30

// State is an immutable snapshot. Reduce never mutates a State it is
// given; unchanged buckets and sets are shared between snapshots.
type State struct {
	Buckets      map[domain.Status][]domain.Token
	Hidden       map[string]struct{}
	Loading      map[string]struct{}
	MaxPerColumn int
}

// NewState returns empty state with the given bucket cap.
func NewState(maxPerColumn int) State {
	if maxPerColumn <= 0 {
		maxPerColumn = DefaultMaxPerColumn
	}
	buckets := make(map[domain.Status][]domain.Token, len(domain.Statuses))
	for _, s := range domain.Statuses {
		buckets[s] = nil
	}
	return State{
		Buckets:      buckets,
		Hidden:       map[string]struct{}{},
		Loading:      map[string]struct{}{},
		MaxPerColumn: maxPerColumn,
	}
}

// Reduce applies one action and returns the next state.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Init:
		return reduceInit(s, a)
	case AddMarket:
		return reduceAdd(s, a)
	case UpdateMarket:
		return reduceUpdate(s, a)
	case HideToken:
		next := s
		next.Hidden = withKey(s.Hidden, normID(a.ID))
		return next
	case SetLoading:
		next := s
		if a.Loading {
			next.Loading = withKey(s.Loading, normID(a.ID))
		} else {
			next.Loading = withoutKey(s.Loading, normID(a.ID))
		}
		return next
	default:
		panic(fmt.Sprintf("store: unhandled action %T", a))
	}
}

// reduceInit rebuilds every bucket. Hidden and loading sets are client-side
// state and survive a re-bootstrap.
func reduceInit(s State, a Init) State {
	next := NewState(s.MaxPerColumn)
	next.Hidden = s.Hidden
	next.Loading = s.Loading
	for _, t := range a.Tokens {
		status := t.Status
		if !status.Valid() {
			status = domain.StatusNew
		}
		next.Buckets[status] = append(next.Buckets[status], t)
	}
	return next
}

func reduceAdd(s State, a AddMarket) State {
	status := a.Token.Status
	if !status.Valid() {
		status = domain.StatusNew
	}
	old := s.Buckets[status]
	n := len(old) + 1
	if n > s.MaxPerColumn {
		n = s.MaxPerColumn
	}
	bucket := make([]domain.Token, 0, n)
	bucket = append(bucket, a.Token)
	bucket = append(bucket, old[:n-1]...)

	next := s
	next.Buckets = copyBuckets(s.Buckets)
	next.Buckets[status] = bucket
	return next
}

func reduceUpdate(s State, a UpdateMarket) State {
	id := normID(a.ID)
	var buckets map[domain.Status][]domain.Token

	for status, bucket := range s.Buckets {
		var updated []domain.Token
		for i := range bucket {
			if normID(bucket[i].ID) != id {
				continue
			}
			if updated == nil {
				updated = make([]domain.Token, len(bucket))
				copy(updated, bucket)
			}
			a.Updates.apply(&updated[i])
		}
		if updated == nil {
			continue
		}
		if buckets == nil {
			buckets = copyBuckets(s.Buckets)
		}
		buckets[status] = updated
	}

	if buckets == nil {
		return s
	}
	next := s
	next.Buckets = buckets
	return next
}

func normID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func copyBuckets(in map[domain.Status][]domain.Token) map[domain.Status][]domain.Token {
	out := make(map[domain.Status][]domain.Token, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func withKey(in map[string]struct{}, key string) map[string]struct{} {
	if _, ok := in[key]; ok {
		return in
	}
	out := make(map[string]struct{}, len(in)+1)
	for k := range in {
		out[k] = struct{}{}
	}
	out[key] = struct{}{}
	return out
}

func withoutKey(in map[string]struct{}, key string) map[string]struct{} {
	if _, ok := in[key]; !ok {
		return in
	}
	out := make(map[string]struct{}, len(in))
	for k := range in {
		if k != key {
			out[k] = struct{}{}
		}
	}
	return out
}
