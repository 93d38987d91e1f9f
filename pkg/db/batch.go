package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// CreateBatch inserts a new batch in state QUEUED. run_id defaults to
// batchID when the caller has no separate correlation id. ErrAlreadyExists
// is returned when batchID is already taken.
func (s *Store) CreateBatch(ctx context.Context, batchID, runID, archiveKey string, uploadedBy *string) (*Batch, error) {
	if runID == "" {
		runID = batchID
	}

	const q = `
		INSERT INTO batches (batch_id, run_id, archive_key, uploaded_by, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	var b Batch
	err := s.db.GetContext(ctx, &b, q, batchID, runID, archiveKey, uploadedBy, BatchQueued)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, errors.Wrap(err, "insert batch")
	}
	return &b, nil
}

// GetBatch fetches a batch by id. ErrNotFound if absent.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	const q = `SELECT * FROM batches WHERE batch_id = $1`
	var b Batch
	if err := s.db.GetContext(ctx, &b, q, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get batch")
	}
	return &b, nil
}

// GetBatchByRunID fetches a batch by its run_id, used by the worker which
// only carries run_id through job payloads.
func (s *Store) GetBatchByRunID(ctx context.Context, runID string) (*Batch, error) {
	const q = `SELECT * FROM batches WHERE run_id = $1`
	var b Batch
	if err := s.db.GetContext(ctx, &b, q, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get batch by run id")
	}
	return &b, nil
}

// TransitionBatch conditionally moves a batch from one of the `from` states
// to `to`. It reports whether the transition was actually applied: a false
// result with a nil error means another caller already moved the batch
// elsewhere, which callers use to implement at-most-once finalization.
func (s *Store) TransitionBatch(ctx context.Context, batchID string, from []string, to string, errMsg *string) (bool, error) {
	completesNow := IsTerminalBatchState(to)

	const q = `
		UPDATE batches
		SET state = $1,
		    error_message = COALESCE($2, error_message),
		    updated_at = now(),
		    completed_at = CASE WHEN $3 THEN now() ELSE completed_at END
		WHERE batch_id = $4 AND state = ANY($5)`

	res, err := s.db.ExecContext(ctx, q, to, errMsg, completesNow, batchID, pq.Array(from))
	if err != nil {
		return false, errors.Wrap(err, "transition batch")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

// SetBatchTotalFiles records the file count discovered during archive
// expansion. Only legal while the batch is still EXTRACTING.
func (s *Store) SetBatchTotalFiles(ctx context.Context, batchID string, total int) error {
	const q = `
		UPDATE batches SET total_files = $1, updated_at = now()
		WHERE batch_id = $2 AND state = $3`

	res, err := s.db.ExecContext(ctx, q, total, batchID, BatchExtracting)
	if err != nil {
		return errors.Wrap(err, "set total files")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		b, getErr := s.GetBatch(ctx, batchID)
		current := "UNKNOWN"
		if getErr == nil {
			current = b.State
		}
		return &NotAllowedError{Operation: "set total files", CurrentState: current}
	}
	return nil
}

// BatchStats aggregates work item counts for a batch's run_id, joining
// work items on coalesce(batches.run_id, batches.batch_id).
func (s *Store) BatchStats(ctx context.Context, runID string) (*BatchStats, error) {
	const q = `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE wi.state = 'PENDING')    AS pending,
			COUNT(*) FILTER (WHERE wi.state = 'PROCESSING') AS processing,
			COUNT(*) FILTER (WHERE wi.state = 'SUCCESS')    AS success,
			COUNT(*) FILTER (WHERE wi.state = 'FAILED')     AS failed,
			MAX(wi.completed_at) AS last_completed_at
		FROM batches b
		JOIN work_items wi ON wi.run_id = COALESCE(b.run_id, b.batch_id)
		WHERE COALESCE(b.run_id, b.batch_id) = $1`

	var st BatchStats
	if err := s.db.GetContext(ctx, &st, q, runID); err != nil {
		return nil, errors.Wrap(err, "batch stats")
	}
	return &st, nil
}

// FindQuiescentBatches returns batches in QUEUED or PROCESSING whose
// work items have all reached a terminal state (SUCCESS/FAILED/SKIPPED) and
// whose most recent item activity is older than idleSince, i.e. batches the
// reap tick should hand to the finalizer because no in-flight event will
// ever trigger it.
func (s *Store) FindQuiescentBatches(ctx context.Context, idleSince time.Duration) ([]Batch, error) {
	const q = `
		SELECT b.*
		FROM batches b
		JOIN LATERAL (
			SELECT
				COUNT(*) AS total,
				COUNT(*) FILTER (WHERE wi.state IN ('SUCCESS', 'FAILED', 'SKIPPED')) AS done,
				MAX(wi.updated_at) AS last_activity
			FROM work_items wi
			WHERE wi.run_id = b.run_id
		) agg ON true
		WHERE b.state IN ('QUEUED', 'PROCESSING')
		  AND b.total_files > 0
		  AND agg.total = b.total_files
		  AND agg.done = agg.total
		  AND agg.last_activity < $1`

	cutoff := time.Now().Add(-idleSince)
	var batches []Batch
	if err := s.db.SelectContext(ctx, &batches, q, cutoff); err != nil {
		return nil, errors.Wrap(err, "find quiescent batches")
	}
	return batches, nil
}
