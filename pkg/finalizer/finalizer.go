// Package finalizer implements the at-most-once batch terminal transition
// and aggregation hand-off described in the core's batch lifecycle: called
// by the worker after every file terminates, by the reap tick for
// quiescent batches, and by the API on a summary read.
package finalizer

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
)

// Finalizer evaluates a batch's quiescence and, exactly once, transitions
// it to a terminal state and schedules aggregation.
type Finalizer struct {
	store *db.Store
	queue queue.Queue
	log   *log.Logger
}

// New builds a Finalizer.
func New(store *db.Store, q queue.Queue, logger *log.Logger) *Finalizer {
	return &Finalizer{store: store, queue: q, log: logger}
}

// Finalize runs the §4.6 algorithm for batchID. It is safe to call
// concurrently and redundantly: conditional updates make only one caller's
// transition apply, and the existing-Summary guard makes aggregation
// enqueue idempotent.
func (f *Finalizer) Finalize(ctx context.Context, batchID string) error {
	batch, err := f.store.GetBatch(ctx, batchID)
	if err != nil {
		return errors.Wrap(err, "get batch")
	}

	if db.IsTerminalBatchState(batch.State) {
		return f.ensureAggregationEnqueued(ctx, batch.BatchID, batch.RunID)
	}

	stats, err := f.store.BatchStats(ctx, batch.RunID)
	if err != nil {
		return errors.Wrap(err, "batch stats")
	}

	if stats.Total == 0 || stats.Pending+stats.Processing > 0 || stats.Success+stats.Failed < stats.Total {
		return nil
	}

	nextState := db.BatchCompleted
	if stats.Failed > 0 {
		nextState = db.BatchCompletedWithErrors
	}

	applied, err := f.store.TransitionBatch(ctx, batchID, []string{db.BatchProcessing, db.BatchQueued}, nextState, nil)
	if err != nil {
		return errors.Wrap(err, "transition batch terminal")
	}
	if !applied {
		return nil
	}

	return f.ensureAggregationEnqueued(ctx, batch.BatchID, batch.RunID)
}

// ensureAggregationEnqueued enqueues aggregate_batch unless a Summary
// already exists. Enqueue failures are logged but not surfaced; a later
// Finalize call on the now-terminal batch (the API summary read makes one)
// retries this step. The reap tick does not select terminal batches, so it
// does not retry it.
func (f *Finalizer) ensureAggregationEnqueued(ctx context.Context, batchID, runID string) error {
	_, err := f.store.GetSummary(ctx, runID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return errors.Wrap(err, "check existing summary")
	}

	payload, err := json.Marshal(queue.AggregateBatchJob{BatchID: batchID, RunID: runID})
	if err != nil {
		return errors.Wrap(err, "marshal aggregate_batch payload")
	}

	env := queue.Envelope{Type: queue.JobAggregateBatch, ID: uuid.NewString(), Attempt: 0, Payload: payload}
	if err := f.queue.Enqueue(ctx, env); err != nil {
		f.log.Error("failed to enqueue aggregate_batch, a later finalize call will retry", "batch_id", batchID, "error", err)
		return nil
	}
	return nil
}
