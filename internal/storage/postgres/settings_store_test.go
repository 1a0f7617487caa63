package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad-terminal/internal/storage"
	"launchpad-terminal/internal/storage/postgres"
)

func TestSettingsStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSettingsStore(pool, nil)
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, storage.KeyWalletNames)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, storage.KeyWalletNames, []byte(`{"0xabc": "main"}`)))

		got, err := store.Get(ctx, storage.KeyWalletNames)
		require.NoError(t, err)
		assert.JSONEq(t, `{"0xabc":"main"}`, string(got))
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, storage.KeyWalletNames, []byte(`{"0xabc":"cold"}`)))

		got, err := store.Get(ctx, storage.KeyWalletNames)
		require.NoError(t, err)
		assert.JSONEq(t, `{"0xabc":"cold"}`, string(got))
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		err := store.Put(ctx, storage.KeyTrackedWallets, []byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, storage.KeyWalletNames))
		require.NoError(t, store.Delete(ctx, storage.KeyWalletNames))

		_, err := store.Get(ctx, storage.KeyWalletNames)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, store.Put(ctx, "", []byte(`{}`)), storage.ErrInvalidInput)
	})
}
