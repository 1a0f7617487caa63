package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"launchpad-terminal/internal/storage/migrations"
	"launchpad-terminal/internal/storage/postgres"
)

// setupTestDB starts a throwaway Postgres, applies the embedded migrations
// and returns a pool plus a cleanup func.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("terminal"),
		tcpostgres.WithUsername("terminal"),
		tcpostgres.WithPassword("terminal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "start postgres container")

	terminate := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		require.NoError(t, err, "postgres connection string")
	}

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		terminate()
		require.NoError(t, err, "open pool")
	}

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool, zaptest.NewLogger(t)))

	return pool, func() {
		pool.Close()
		terminate()
	}
}
