package aggregator_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternis-tender/tender-pipeline/pkg/aggregator"
	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/dbtest"
)

func TestAggregateMergesSuccessfulWorkItems(t *testing.T) {
	store := dbtest.NewStore(t)
	agg := aggregator.New(store, log.New(io.Discard))
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "ab1", "ab1", "archives/ab1.zip", nil)
	require.NoError(t, err)

	docA := []byte(`{"source_document":"a.pdf","parties":["Acme"],"total":1000}`)
	docB := []byte(`{"source_document":"b.pdf","parties":["Acme","Beta"],"total":0}`)

	_, _, err = store.CreateWorkItem(ctx, "da", "ab1", "a.pdf", "extracted/ab1/a.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.ClaimWorkItem(ctx, "da")
	require.NoError(t, err)
	require.NoError(t, store.MarkWorkItemSuccess(ctx, "da", docA))

	_, _, err = store.CreateWorkItem(ctx, "db_", "ab1", "b.pdf", "extracted/ab1/b.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.ClaimWorkItem(ctx, "db_")
	require.NoError(t, err)
	require.NoError(t, store.MarkWorkItemSuccess(ctx, "db_", docB))

	require.NoError(t, agg.Aggregate(ctx, "ab1", "ab1"))

	summary, err := store.GetSummary(ctx, "ab1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalFiles)
	assert.Equal(t, 2, summary.SuccessFiles)

	var merged map[string]interface{}
	require.NoError(t, json.Unmarshal(summary.UIJSON, &merged))

	// total is first-non-empty-wins: a.pdf's 1000 wins over b.pdf's 0.
	assert.Equal(t, 1000.0, merged["total"])
	// parties concatenates with dedupe: Acme (from both) appears once, Beta once.
	parties, ok := merged["parties"].([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"Acme", "Beta"}, parties)

	sourceDocs, ok := merged["source_documents"].([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"a.pdf", "b.pdf"}, sourceDocs)
}

func TestAggregateWithNoSuccessItemsWritesEmptySummary(t *testing.T) {
	store := dbtest.NewStore(t)
	agg := aggregator.New(store, log.New(io.Discard))
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "ab2", "ab2", "archives/ab2.zip", nil)
	require.NoError(t, err)
	_, _, err = store.CreateWorkItem(ctx, "dx", "ab2", "x.pdf", "extracted/ab2/x.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.ClaimWorkItem(ctx, "dx")
	require.NoError(t, err)
	require.NoError(t, store.MarkWorkItemFailed(ctx, "dx", "boom", db.ErrorKindPermanent))

	require.NoError(t, agg.Aggregate(ctx, "ab2", "ab2"))

	summary, err := store.GetSummary(ctx, "ab2")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedFiles)
	assert.Equal(t, 0, summary.SuccessFiles)
}
