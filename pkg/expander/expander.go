// Package expander pulls a batch's uploaded archive from Blob and unpacks
// it into per-file work items, recursing into nested archives up to a
// configured depth.
package expander

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eternis-tender/tender-pipeline/pkg/blob"
	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/helpers"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
)

// enqueueBatchSize is the size of the slices helpers.Batch groups pending
// work items into before their ProcessFileJob payloads are enqueued; each
// job is still enqueued with its own Enqueue call.
const enqueueBatchSize = 200

func marshalPayload(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// AlreadyExpanded is returned when Expand is invoked for a batch that has
// already moved past EXTRACTING; re-running expansion on it is a no-op.
type AlreadyExpanded struct {
	BatchID string
}

func (e *AlreadyExpanded) Error() string {
	return fmt.Sprintf("batch %s already expanded", e.BatchID)
}

// Expander implements the archive expansion contract.
type Expander struct {
	store               *db.Store
	blobStore           blob.Store
	queue               queue.Queue
	log                 *log.Logger
	maxDepth            int
	supportedExtensions map[string]bool
}

// New builds an Expander. supportedExtensions should include the leading
// dot (".pdf", ".docx", ...).
func New(store *db.Store, blobStore blob.Store, q queue.Queue, logger *log.Logger, maxDepth int, supportedExtensions []string) *Expander {
	set := make(map[string]bool, len(supportedExtensions))
	for _, ext := range supportedExtensions {
		set[strings.ToLower(ext)] = true
	}
	return &Expander{
		store:               store,
		blobStore:           blobStore,
		queue:               q,
		log:                 logger,
		maxDepth:            maxDepth,
		supportedExtensions: set,
	}
}

type discoveredFile struct {
	relativePath string
	content      []byte
}

// Expand runs the §4.4 contract for batchID.
func (e *Expander) Expand(ctx context.Context, batchID, runID, archiveKey string) error {
	applied, err := e.store.TransitionBatch(ctx, batchID, []string{db.BatchQueued}, db.BatchExtracting, nil)
	if err != nil {
		return errors.Wrap(err, "transition to extracting")
	}
	if !applied {
		return &AlreadyExpanded{BatchID: batchID}
	}

	files, expandErr := e.pullAndExpand(ctx, archiveKey)
	if expandErr != nil {
		errMsg := expandErr.Error()
		if _, err := e.store.TransitionBatch(ctx, batchID, []string{db.BatchExtracting}, db.BatchFailed, &errMsg); err != nil {
			e.log.Error("failed to mark batch failed after expand error", "batch_id", batchID, "error", err)
		}
		return errors.Wrap(expandErr, "expand archive")
	}

	created := 0
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.relativePath))
		if !e.supportedExtensions[ext] {
			continue
		}

		fileKey := fmt.Sprintf("extracted/%s/%s", batchID, f.relativePath)
		if err := e.blobStore.Put(ctx, fileKey, bytes.NewReader(f.content), int64(len(f.content))); err != nil {
			msg := errors.Wrap(err, "upload extracted file").Error()
			if _, terr := e.store.TransitionBatch(ctx, batchID, []string{db.BatchExtracting}, db.BatchFailed, &msg); terr != nil {
				e.log.Error("failed to mark batch failed after upload error", "batch_id", batchID, "error", terr)
			}
			return errors.Wrap(err, "upload extracted file")
		}

		docID := fmt.Sprintf("%s_%s", batchID, uuid.NewString())
		_, _, err := e.store.CreateWorkItem(ctx, docID, runID, path.Base(f.relativePath), fileKey, ext)
		if err != nil {
			msg := errors.Wrap(err, "create work item").Error()
			if _, terr := e.store.TransitionBatch(ctx, batchID, []string{db.BatchExtracting}, db.BatchFailed, &msg); terr != nil {
				e.log.Error("failed to mark batch failed after work item error", "batch_id", batchID, "error", terr)
			}
			return errors.Wrap(err, "create work item")
		}
		created++
	}

	if created == 0 {
		msg := "No supported files found"
		if _, err := e.store.TransitionBatch(ctx, batchID, []string{db.BatchExtracting}, db.BatchFailed, &msg); err != nil {
			return errors.Wrap(err, "mark batch failed for zero files")
		}
		return nil
	}

	if err := e.store.SetBatchTotalFiles(ctx, batchID, created); err != nil {
		return errors.Wrap(err, "set batch total files")
	}
	if _, err := e.store.TransitionBatch(ctx, batchID, []string{db.BatchExtracting}, db.BatchQueued, nil); err != nil {
		return errors.Wrap(err, "transition back to queued")
	}

	pending, err := e.enqueuePendingItems(ctx, runID)
	if err != nil {
		return errors.Wrap(err, "enqueue process_file jobs")
	}
	e.log.Info("expansion complete", "batch_id", batchID, "files", created, "enqueued", pending)

	return nil
}

func (e *Expander) enqueuePendingItems(ctx context.Context, runID string) (int, error) {
	items, err := e.store.GetPendingWorkItems(ctx, runID)
	if err != nil {
		return 0, err
	}
	for _, batch := range helpers.Batch(items, enqueueBatchSize) {
		for _, item := range batch {
			payload := queue.ProcessFileJob{DocID: item.DocID, RunID: item.RunID, FileKey: item.FileKey, FileType: item.FileType}
			raw, err := marshalPayload(payload)
			if err != nil {
				return 0, err
			}
			env := queue.Envelope{Type: queue.JobProcessFile, ID: uuid.NewString(), Attempt: 0, Payload: raw}
			if err := e.queue.Enqueue(ctx, env); err != nil {
				return 0, err
			}
		}
	}
	return len(items), nil
}

// pullAndExpand reads the archive from Blob and recursively unpacks zip
// entries up to maxDepth, returning every regular file discovered
// (supported or not — filtering happens in Expand).
func (e *Expander) pullAndExpand(ctx context.Context, archiveKey string) ([]discoveredFile, error) {
	r, err := e.blobStore.Get(ctx, archiveKey)
	if err != nil {
		return nil, errors.Wrap(err, "read archive from blob")
	}
	defer r.Close()

	archiveBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "buffer archive")
	}

	var files []discoveredFile
	if err := e.expandZip(archiveBytes, "", 0, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// expandZip recurses into zip entries. An entry beyond maxDepth is skipped
// with a warning rather than failing the batch, per §4.4 step 3.
func (e *Expander) expandZip(zipBytes []byte, prefix string, depth int, out *[]discoveredFile) error {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return errors.Wrap(err, "open zip")
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if depth > e.maxDepth {
			e.log.Warn("skipping entry beyond max archive depth", "path", f.Name, "depth", depth)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "open zip entry %s", f.Name)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return errors.Wrapf(err, "read zip entry %s", f.Name)
		}

		relPath := path.Join(prefix, f.Name)

		if strings.EqualFold(filepath.Ext(f.Name), ".zip") {
			nestedPrefix := path.Join(prefix, strings.TrimSuffix(f.Name, filepath.Ext(f.Name))+"_zip")
			if err := e.expandZip(content, nestedPrefix, depth+1, out); err != nil {
				e.log.Warn("nested archive failed to expand, skipping", "path", f.Name, "error", err)
				continue
			}
			continue
		}

		*out = append(*out, discoveredFile{relativePath: relPath, content: content})
	}

	return nil
}
