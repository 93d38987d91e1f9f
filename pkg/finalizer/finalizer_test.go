package finalizer_test

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/dbtest"
	"github.com/eternis-tender/tender-pipeline/pkg/finalizer"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
)

func TestFinalizeTransitionsCompletedAndEnqueuesAggregation(t *testing.T) {
	store := dbtest.NewStore(t)
	q := queue.NewFakeQueue()
	f := finalizer.New(store, q, log.New(io.Discard))
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "fb1", "fb1", "archives/fb1.zip", nil)
	require.NoError(t, err)
	_, _, err = store.CreateWorkItem(ctx, "d1", "fb1", "a.pdf", "extracted/fb1/a.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "fb1", []string{db.BatchQueued}, db.BatchExtracting, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetBatchTotalFiles(ctx, "fb1", 1))
	_, err = store.TransitionBatch(ctx, "fb1", []string{db.BatchExtracting}, db.BatchQueued, nil)
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "fb1", []string{db.BatchQueued}, db.BatchProcessing, nil)
	require.NoError(t, err)

	_, err = store.ClaimWorkItem(ctx, "d1")
	require.NoError(t, err)
	require.NoError(t, store.MarkWorkItemSuccess(ctx, "d1", []byte(`{"amount":5}`)))

	require.NoError(t, f.Finalize(ctx, "fb1"))

	batch, err := store.GetBatch(ctx, "fb1")
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, batch.State)

	metrics, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.Ready)

	// Calling Finalize again must not enqueue a second aggregate_batch job:
	// the existing-Summary guard only fires once a Summary row exists, but
	// the batch is already terminal so this exercises the idempotent path
	// via ensureAggregationEnqueued's GetSummary check once one is written.
	counts := db.SummaryCounts{Total: 1, Success: 1, Failed: 0}
	_, err = store.UpsertSummary(ctx, "fb1", []byte(`{}`), counts, db.BatchCompleted)
	require.NoError(t, err)

	require.NoError(t, f.Finalize(ctx, "fb1"))
	metrics, err = q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.Ready, "second finalize must not enqueue a duplicate aggregate job")
}

func TestFinalizeIsNoopWhileWorkItemsPending(t *testing.T) {
	store := dbtest.NewStore(t)
	q := queue.NewFakeQueue()
	f := finalizer.New(store, q, log.New(io.Discard))
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "fb2", "fb2", "archives/fb2.zip", nil)
	require.NoError(t, err)
	_, _, err = store.CreateWorkItem(ctx, "d2", "fb2", "a.pdf", "extracted/fb2/a.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "fb2", []string{db.BatchQueued}, db.BatchExtracting, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetBatchTotalFiles(ctx, "fb2", 1))
	_, err = store.TransitionBatch(ctx, "fb2", []string{db.BatchExtracting}, db.BatchQueued, nil)
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "fb2", []string{db.BatchQueued}, db.BatchProcessing, nil)
	require.NoError(t, err)

	require.NoError(t, f.Finalize(ctx, "fb2"))

	batch, err := store.GetBatch(ctx, "fb2")
	require.NoError(t, err)
	assert.Equal(t, db.BatchProcessing, batch.State)
}
