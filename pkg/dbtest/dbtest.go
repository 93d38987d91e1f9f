// Package dbtest spins up a disposable Postgres container for integration
// tests across pkg/db and its dependents (finalizer, aggregator, api),
// so those packages' tests exercise real conditional SQL updates instead
// of a mocked Store.
package dbtest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
)

// NewStore starts a Postgres container, runs migrations against it, and
// registers cleanup to tear both down when t finishes.
func NewStore(t *testing.T) *db.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tender"),
		postgres.WithUsername("tender"),
		postgres.WithPassword("tender"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var store *db.Store
	require.Eventually(t, func() bool {
		s, err := db.NewStore(ctx, dsn, db.DefaultMaxOpenConns, log.New(io.Discard))
		if err != nil {
			return false
		}
		store = s
		return true
	}, 30*time.Second, 500*time.Millisecond, "store never became ready")

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
