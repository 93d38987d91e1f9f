package db

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// CreateAlert persists an operational alert raised by the worker
// (e.g. WORKER_UNREACHABLE, RATE_LIMIT_SPIKE). Alerts are append-only from
// the writer's side; resolution is a separate administrative action not
// exposed by this pipeline.
func (s *Store) CreateAlert(ctx context.Context, kind, severity, message string, alertCtx json.RawMessage) (*Alert, error) {
	const q = `
		INSERT INTO alerts (kind, severity, message, context)
		VALUES ($1, $2, $3, $4)
		RETURNING *`

	var a Alert
	if err := s.db.GetContext(ctx, &a, q, kind, severity, message, alertCtx); err != nil {
		return nil, errors.Wrap(err, "create alert")
	}
	return &a, nil
}
