package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/dbtest"
)

func TestCreateBatchAndTransition(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	batch, err := store.CreateBatch(ctx, "b1", "b1", "archives/b1.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, db.BatchQueued, batch.State)

	_, err = store.CreateBatch(ctx, "b1", "b1", "archives/b1.zip", nil)
	assert.ErrorIs(t, err, db.ErrAlreadyExists)

	applied, err := store.TransitionBatch(ctx, "b1", []string{db.BatchQueued}, db.BatchExtracting, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	// Re-applying the same transition from QUEUED fails since the batch has
	// already moved to EXTRACTING.
	applied, err = store.TransitionBatch(ctx, "b1", []string{db.BatchQueued}, db.BatchExtracting, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = store.TransitionBatch(ctx, "b1", []string{db.BatchExtracting}, db.BatchCompleted, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, got.State)
	assert.NotNil(t, got.CompletedAt)
}

func TestWorkItemLifecycle(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "b2", "b2", "archives/b2.zip", nil)
	require.NoError(t, err)

	item, created, err := store.CreateWorkItem(ctx, "doc1", "b2", "a.pdf", "extracted/b2/a.pdf", ".pdf")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, db.WorkItemPending, item.State)

	_, created, err = store.CreateWorkItem(ctx, "doc1", "b2", "a.pdf", "extracted/b2/a.pdf", ".pdf")
	require.NoError(t, err)
	assert.False(t, created)

	claimed, err := store.ClaimWorkItem(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, db.WorkItemProcessing, claimed.State)

	_, err = store.ClaimWorkItem(ctx, "doc1")
	var notClaimable *db.NotClaimableError
	assert.ErrorAs(t, err, &notClaimable)

	require.NoError(t, store.MarkWorkItemSuccess(ctx, "doc1", []byte(`{"amount":1}`)))

	stats, err := store.BatchStats(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Success)
}

func TestPrepareRetryIncrementsCount(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "b3", "b3", "archives/b3.zip", nil)
	require.NoError(t, err)
	_, _, err = store.CreateWorkItem(ctx, "doc2", "b3", "a.pdf", "extracted/b3/a.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.ClaimWorkItem(ctx, "doc2")
	require.NoError(t, err)

	updated, err := store.PrepareRetry(ctx, "doc2", "timed out", db.ErrorKindTimeout)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, db.WorkItemPending, updated.State)
}
