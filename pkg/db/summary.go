package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
)

// UpsertSummary writes the aggregated ui_json for a run, creating the row
// on first finalization and overwriting it if the aggregator ever reruns
// (e.g. a manual reprocess).
func (s *Store) UpsertSummary(ctx context.Context, runID string, uiJSON json.RawMessage, counts SummaryCounts, state string) (*Summary, error) {
	const q = `
		INSERT INTO summaries (run_id, ui_json, total_files, success_files, failed_files, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			ui_json = EXCLUDED.ui_json,
			total_files = EXCLUDED.total_files,
			success_files = EXCLUDED.success_files,
			failed_files = EXCLUDED.failed_files,
			state = EXCLUDED.state,
			updated_at = now()
		RETURNING *`

	var sm Summary
	err := s.db.GetContext(ctx, &sm, q, runID, uiJSON, counts.Total, counts.Success, counts.Failed, state)
	if err != nil {
		return nil, errors.Wrap(err, "upsert summary")
	}
	return &sm, nil
}

// GetSummary fetches the aggregated summary for a run. ErrNotFound if the
// batch hasn't been finalized yet.
func (s *Store) GetSummary(ctx context.Context, runID string) (*Summary, error) {
	const q = `SELECT * FROM summaries WHERE run_id = $1`
	var sm Summary
	if err := s.db.GetContext(ctx, &sm, q, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get summary")
	}
	return &sm, nil
}
