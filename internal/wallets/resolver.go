// Package wallets resolves display names and the tracked-wallet list from
// the settings store.
package wallets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"launchpad-terminal/internal/storage"
)

// Resolver reads and writes wallet settings. Corrupt blobs are treated as
// empty and overwritten on the next write.
type Resolver struct {
	store  storage.SettingsStore
	logger *zap.Logger

	mu sync.Mutex // serializes read-modify-write
}

// NewResolver creates a resolver over store.
func NewResolver(store storage.SettingsStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// ShortAddress renders 0x1234...abcd. Short inputs are returned unchanged.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// Name returns the display name for address, or its short form.
func (r *Resolver) Name(ctx context.Context, address string) (string, error) {
	names, err := r.names(ctx)
	if err != nil {
		return "", err
	}
	if name, ok := names[strings.ToLower(address)]; ok && name != "" {
		return name, nil
	}
	return ShortAddress(address), nil
}

// Names returns all stored names keyed by lowercase address.
func (r *Resolver) Names(ctx context.Context) (map[string]string, error) {
	return r.names(ctx)
}

// SetName stores name for address. An empty name removes the entry.
func (r *Resolver) SetName(ctx context.Context, address, name string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.names(ctx)
	if err != nil {
		return err
	}
	key := strings.ToLower(address)
	name = strings.TrimSpace(name)
	if name == "" {
		delete(names, key)
	} else {
		names[key] = name
	}
	return r.put(ctx, storage.KeyWalletNames, names)
}

// Tracked returns the tracked wallets in insertion order.
func (r *Resolver) Tracked(ctx context.Context) ([]string, error) {
	var tracked []string
	if err := r.load(ctx, storage.KeyTrackedWallets, &tracked); err != nil {
		return nil, err
	}
	return tracked, nil
}

// Track adds address to the tracked list if not already present.
func (r *Resolver) Track(ctx context.Context, address string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, err := r.Tracked(ctx)
	if err != nil {
		return err
	}
	for _, a := range tracked {
		if strings.EqualFold(a, address) {
			return nil
		}
	}
	return r.put(ctx, storage.KeyTrackedWallets, append(tracked, strings.ToLower(address)))
}

// Untrack removes address from the tracked list.
func (r *Resolver) Untrack(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, err := r.Tracked(ctx)
	if err != nil {
		return err
	}
	kept := tracked[:0]
	for _, a := range tracked {
		if !strings.EqualFold(a, address) {
			kept = append(kept, a)
		}
	}
	return r.put(ctx, storage.KeyTrackedWallets, kept)
}

func (r *Resolver) names(ctx context.Context) (map[string]string, error) {
	raw := make(map[string]string)
	if err := r.load(ctx, storage.KeyWalletNames, &raw); err != nil {
		return nil, err
	}
	names := make(map[string]string, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	// Deterministic winner when two keys differ only by case.
	sort.Strings(keys)
	for _, k := range keys {
		names[strings.ToLower(k)] = raw[k]
	}
	return names, nil
}

// load decodes the blob under key into dst. Missing or corrupt blobs
// leave dst untouched.
func (r *Resolver) load(ctx context.Context, key string, dst any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.logger.Warn("corrupt wallet setting, treating as empty", zap.String("key", key), zap.Error(err))
		return nil
	}
	return nil
}

func (r *Resolver) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
