package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/expander"
	"github.com/eternis-tender/tender-pipeline/pkg/helpers"
)

var allowedArchiveExtensions = map[string]bool{".zip": true}

// createBatch handles POST /batches: archive upload -> CreateBatch.
func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSizeBytes)

	file, header, err := r.FormFile("archive")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing archive upload"})
		return
	}
	defer file.Close()

	if !allowedArchiveExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported archive type"})
		return
	}
	if header.Size > h.maxFileSizeBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "archive exceeds maximum size"})
		return
	}

	batchID := uuid.NewString()
	archiveKey := fmt.Sprintf("archives/%s%s", batchID, filepath.Ext(header.Filename))

	if err := h.blobStore.Put(r.Context(), archiveKey, file, header.Size); err != nil {
		h.log.Error("upload archive failed", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store archive"})
		return
	}

	var uploadedBy *string
	if v := strings.TrimSpace(r.FormValue("uploaded_by")); v != "" {
		uploadedBy = helpers.Ptr(v)
	}

	if _, err := h.store.CreateBatch(r.Context(), batchID, batchID, archiveKey, uploadedBy); err != nil {
		h.log.Error("create batch failed", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"batch_id": batchID})
}

// processBatch handles POST /batches/{id}/process: idempotent, rate-limited
// trigger of archive expansion.
func (h *Handler) processBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	if !h.processLimiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
		return
	}

	batch, err := h.store.GetBatch(r.Context(), batchID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	// net/http cancels r.Context() the moment ServeHTTP returns, which
	// happens right after this goroutine is spawned — detach it so Expand's
	// Blob/Store calls outlive the request instead of failing on an
	// already-canceled context.
	detachedCtx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.expander.Expand(detachedCtx, batch.BatchID, batch.RunID, batch.ArchiveKey); err != nil {
			if _, already := err.(*expander.AlreadyExpanded); !already {
				h.log.Error("expand batch failed", "batch_id", batchID, "error", err)
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

// batchStatus handles GET /batches/{id}/status.
func (h *Handler) batchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	batch, err := h.store.GetBatch(r.Context(), batchID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	stats, err := h.store.BatchStats(r.Context(), batch.RunID)
	if err != nil {
		h.log.Error("batch stats failed", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read batch stats"})
		return
	}

	progress := 0.0
	if stats.Total > 0 {
		progress = 100 * float64(stats.Success+stats.Failed) / float64(stats.Total)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id":         batch.BatchID,
		"state":            batch.State,
		"uploaded_by":      helpers.SafeDeref(batch.UploadedBy),
		"total_files":      stats.Total,
		"pending":          stats.Pending,
		"processing":       stats.Processing,
		"success":          stats.Success,
		"failed":           stats.Failed,
		"progress_percent": progress,
	})
}

// batchSummary handles GET /batches/{id}/summary, including the on-demand
// finalization trigger described in §4.8.
func (h *Handler) batchSummary(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	batch, err := h.store.GetBatch(r.Context(), batchID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	summary, err := h.store.GetSummary(r.Context(), batch.RunID)
	if err == nil {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	if err != db.ErrNotFound {
		h.log.Error("get summary failed", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read summary"})
		return
	}

	stats, err := h.store.BatchStats(r.Context(), batch.RunID)
	if err != nil {
		h.log.Error("batch stats failed", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read batch stats"})
		return
	}

	quiescent := db.IsTerminalBatchState(batch.State) ||
		(stats.Total > 0 && stats.Pending+stats.Processing == 0 && stats.Success+stats.Failed >= stats.Total)
	if !quiescent {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not yet complete"})
		return
	}

	if err := h.finalizer.Finalize(r.Context(), batch.BatchID); err != nil {
		h.log.Error("on-demand finalize failed", "batch_id", batchID, "error", err)
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"retry_after": 5})
}
