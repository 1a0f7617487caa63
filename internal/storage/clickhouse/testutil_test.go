package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"launchpad-terminal/internal/storage/clickhouse"
	"launchpad-terminal/internal/storage/migrations"
)

const clickhouseImage = "clickhouse/clickhouse-server:24.1-alpine"

// setupTestDB starts a throwaway ClickHouse server and lets the migration
// runner create the archive database on it.
func setupTestDB(t *testing.T) (*clickhouse.Conn, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse integration test skipped in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        clickhouseImage,
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("9000/tcp"),
				wait.ForLog("Ready for connections").WithStartupTimeout(time.Minute),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")

	terminate := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate clickhouse container: %v", err)
		}
	}

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		terminate()
		require.NoError(t, err, "clickhouse endpoint")
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, fmt.Sprintf("clickhouse://default@%s/archive_test", endpoint), zaptest.NewLogger(t))
	if err != nil {
		terminate()
		require.NoError(t, err, "migrate clickhouse")
	}

	return conn, func() {
		conn.Close()
		terminate()
	}
}
