// Package aggregator folds every successfully extracted work item in a
// batch into a single summary document, preserving which source file
// contributed which data.
package aggregator

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
)

// Aggregator implements the §4.7 merge contract.
type Aggregator struct {
	store *db.Store
	log   *log.Logger
}

// New builds an Aggregator.
func New(store *db.Store, logger *log.Logger) *Aggregator {
	return &Aggregator{store: store, log: logger}
}

// Aggregate folds batchID's SUCCESS work items (for runID) into a Summary
// row. Called after the finalizer enqueues an aggregate_batch job; safe to
// rerun, since it always recomputes the merge from scratch and upserts.
func (a *Aggregator) Aggregate(ctx context.Context, batchID, runID string) error {
	items, err := a.store.GetWorkItemsSuccessOrdered(ctx, runID)
	if err != nil {
		return errors.Wrap(err, "load success work items")
	}

	stats, err := a.store.BatchStats(ctx, runID)
	if err != nil {
		return errors.Wrap(err, "batch stats")
	}

	counts := db.SummaryCounts{Total: stats.Total, Success: stats.Success, Failed: stats.Failed}

	if len(items) == 0 {
		empty, err := json.Marshal(map[string]interface{}{"source_documents": []interface{}{}})
		if err != nil {
			return errors.Wrap(err, "marshal empty summary")
		}
		_, err = a.store.UpsertSummary(ctx, runID, empty, counts, batchStateFor(stats))
		return errors.Wrap(err, "upsert empty summary")
	}

	merged, sourceDocs, err := mergeWorkItems(items)
	if err != nil {
		return errors.Wrap(err, "merge work items")
	}
	merged["source_documents"] = sourceDocs

	uiJSON, err := json.Marshal(merged)
	if err != nil {
		return errors.Wrap(err, "marshal merged summary")
	}

	if _, err := a.store.UpsertSummary(ctx, runID, uiJSON, counts, batchStateFor(stats)); err != nil {
		return errors.Wrap(err, "upsert summary")
	}
	a.log.Info("batch aggregated", "batch_id", batchID, "run_id", runID, "documents", len(items))
	return nil
}

func batchStateFor(stats *db.BatchStats) string {
	if stats.Failed > 0 {
		return db.BatchCompletedWithErrors
	}
	return db.BatchCompleted
}

// mergeWorkItems folds each item's extracted JSON into a single map in
// completed_at/doc_id order (the order GetWorkItemsSuccessOrdered
// returns), pulling source_document out of each document before merging
// so cross-file provenance survives instead of being overwritten by
// first-non-empty-wins scalar merge.
func mergeWorkItems(items []db.WorkItem) (map[string]interface{}, []interface{}, error) {
	merged := map[string]interface{}{}
	sourceDocs := make([]interface{}, 0, len(items))

	for _, item := range items {
		if len(item.Extracted) == 0 {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(item.Extracted, &doc); err != nil {
			return nil, nil, errors.Wrapf(err, "unmarshal extracted data for %s", item.DocID)
		}

		source := doc["source_document"]
		if source == nil {
			source = item.Filename
		}
		delete(doc, "source_document")
		sourceDocs = append(sourceDocs, source)

		merged = mergeObjects(merged, doc)
	}

	return merged, sourceDocs, nil
}
