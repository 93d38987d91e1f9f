package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
)

// CreateWorkItem inserts a PENDING work item for a file discovered during
// archive expansion. doc_id is chosen by the caller (the expander uses
// <batch_id>_<uuid>); an insert whose doc_id already exists is ignored and
// the existing row is returned with created=false.
func (s *Store) CreateWorkItem(ctx context.Context, docID, runID, filename, fileKey, fileType string) (*WorkItem, bool, error) {
	const insertQ = `
		INSERT INTO work_items (doc_id, run_id, filename, file_key, file_type, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id) DO NOTHING
		RETURNING *`

	var wi WorkItem
	err := s.db.GetContext(ctx, &wi, insertQ, docID, runID, filename, fileKey, fileType, WorkItemPending)
	if err == nil {
		return &wi, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errors.Wrap(err, "insert work item")
	}

	existing, getErr := s.GetWorkItem(ctx, docID)
	if getErr != nil {
		return nil, false, errors.Wrap(getErr, "load existing work item after conflict")
	}
	return existing, false, nil
}

// GetWorkItem fetches a work item by doc_id.
func (s *Store) GetWorkItem(ctx context.Context, docID string) (*WorkItem, error) {
	const q = `SELECT * FROM work_items WHERE doc_id = $1`
	var wi WorkItem
	if err := s.db.GetContext(ctx, &wi, q, docID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get work item")
	}
	return &wi, nil
}

// ClaimWorkItem moves a PENDING item to PROCESSING and stamps started_at.
// Returns *NotClaimableError if the item isn't PENDING, which the worker
// treats as "already handled, drop the job" rather than a failure.
func (s *Store) ClaimWorkItem(ctx context.Context, docID string) (*WorkItem, error) {
	const q = `
		UPDATE work_items
		SET state = $1, started_at = now(), updated_at = now()
		WHERE doc_id = $2 AND state = $3
		RETURNING *`

	var wi WorkItem
	err := s.db.GetContext(ctx, &wi, q, WorkItemProcessing, docID, WorkItemPending)
	if err == nil {
		return &wi, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "claim work item")
	}

	current, getErr := s.GetWorkItem(ctx, docID)
	state := "UNKNOWN"
	if getErr == nil {
		state = current.State
	}
	return nil, &NotClaimableError{CurrentState: state}
}

// MarkWorkItemSuccess records extraction output and moves the item to
// SUCCESS.
func (s *Store) MarkWorkItemSuccess(ctx context.Context, docID string, extracted json.RawMessage) error {
	const q = `
		UPDATE work_items
		SET state = $1, extracted = $2, error_text = NULL, error_kind = NULL,
		    completed_at = now(), updated_at = now()
		WHERE doc_id = $3 AND state = $4`

	res, err := s.db.ExecContext(ctx, q, WorkItemSuccess, extracted, docID, WorkItemProcessing)
	if err != nil {
		return errors.Wrap(err, "mark work item success")
	}
	return rowsAffectedOrNotAllowed(res, "mark success", WorkItemProcessing)
}

// MarkWorkItemFailed moves the item to its final FAILED state: retries are
// exhausted or the error was classified non-retryable.
func (s *Store) MarkWorkItemFailed(ctx context.Context, docID, errText, errKind string) error {
	const q = `
		UPDATE work_items
		SET state = $1, error_text = $2, error_kind = $3,
		    completed_at = now(), updated_at = now()
		WHERE doc_id = $4 AND state = $5`

	res, err := s.db.ExecContext(ctx, q, WorkItemFailed, errText, errKind, docID, WorkItemProcessing)
	if err != nil {
		return errors.Wrap(err, "mark work item failed")
	}
	return rowsAffectedOrNotAllowed(res, "mark failed", WorkItemProcessing)
}

// MarkWorkItemSkipped moves a PENDING item to SKIPPED, recording reason in
// error_text. The expander does not call it: files with an unsupported
// extension get no work item at all.
func (s *Store) MarkWorkItemSkipped(ctx context.Context, docID, reason string) error {
	const q = `
		UPDATE work_items
		SET state = $1, error_text = $2, error_kind = NULL,
		    completed_at = now(), updated_at = now()
		WHERE doc_id = $3 AND state = $4`

	res, err := s.db.ExecContext(ctx, q, WorkItemSkipped, reason, docID, WorkItemPending)
	if err != nil {
		return errors.Wrap(err, "mark work item skipped")
	}
	return rowsAffectedOrNotAllowed(res, "mark skipped", WorkItemPending)
}

// PrepareRetry records a retryable failure, resets the item to PENDING and
// bumps retry_count. The worker then schedules the job with the queue's
// RetryLater, and the reap tick's PromoteDue makes it ready again.
func (s *Store) PrepareRetry(ctx context.Context, docID, errText, errKind string) (*WorkItem, error) {
	const q = `
		UPDATE work_items
		SET state = $1, error_text = $2, error_kind = $3,
		    retry_count = retry_count + 1, updated_at = now()
		WHERE doc_id = $4 AND state = $5
		RETURNING *`

	var wi WorkItem
	err := s.db.GetContext(ctx, &wi, q, WorkItemPending, errText, errKind, docID, WorkItemProcessing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotAllowedError{Operation: "prepare retry", CurrentState: "not PROCESSING"}
		}
		return nil, errors.Wrap(err, "prepare retry")
	}
	return &wi, nil
}

// GetPendingWorkItems returns every PENDING item for a run, used by the
// expander to enqueue a process_file job per created work item.
func (s *Store) GetPendingWorkItems(ctx context.Context, runID string) ([]WorkItem, error) {
	const q = `SELECT * FROM work_items WHERE run_id = $1 AND state = $2 ORDER BY doc_id ASC`
	var items []WorkItem
	if err := s.db.SelectContext(ctx, &items, q, runID, WorkItemPending); err != nil {
		return nil, errors.Wrap(err, "get pending work items")
	}
	return items, nil
}

// GetWorkItemsSuccessOrdered returns every SUCCESS item for a run ordered
// by completion time then doc_id, the deterministic fold order the
// aggregator uses for its first-non-empty-wins merge.
func (s *Store) GetWorkItemsSuccessOrdered(ctx context.Context, runID string) ([]WorkItem, error) {
	const q = `
		SELECT * FROM work_items
		WHERE run_id = $1 AND state = $2
		ORDER BY completed_at ASC, doc_id ASC`

	var items []WorkItem
	if err := s.db.SelectContext(ctx, &items, q, runID, WorkItemSuccess); err != nil {
		return nil, errors.Wrap(err, "get success work items")
	}
	return items, nil
}

func rowsAffectedOrNotAllowed(res sql.Result, op, requiredState string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return &NotAllowedError{Operation: op, CurrentState: "not " + requiredState}
	}
	return nil
}
