package db

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/lib/pq"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Store is the relational persistence layer backing batches, work items,
// summaries and alerts. One Store is shared by the API process and every
// worker process in a deployment.
type Store struct {
	db  *sqlx.DB
	log *log.Logger
}

// DefaultMaxOpenConns mirrors the teacher's hardcoded pool size, used
// whenever Config doesn't override db_max_open_conns.
const DefaultMaxOpenConns = 25

// NewStore opens a connection pool against dsn sized to maxOpenConns (pass
// DefaultMaxOpenConns for the default), applies pending migrations and
// returns a ready Store.
func NewStore(ctx context.Context, dsn string, maxOpenConns int, logger *log.Logger) (*Store, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := RunMigrations(conn.DB); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &Store{db: conn, log: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sqlx.DB for callers that need raw access
// (migrations CLI, health checks).
func (s *Store) DB() *sqlx.DB {
	return s.db
}
