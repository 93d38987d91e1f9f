package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternis-tender/tender-pipeline/pkg/api"
	"github.com/eternis-tender/tender-pipeline/pkg/blob"
	"github.com/eternis-tender/tender-pipeline/pkg/config"
	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/dbtest"
	"github.com/eternis-tender/tender-pipeline/pkg/expander"
	"github.com/eternis-tender/tender-pipeline/pkg/finalizer"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
)

func testHandler(t *testing.T) (http.Handler, *db.Store) {
	t.Helper()
	store := dbtest.NewStore(t)
	blobStore, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	q := queue.NewFakeQueue()
	logger := log.New(io.Discard)
	exp := expander.New(store, blobStore, q, logger, 3, []string{".pdf"})
	fin := finalizer.New(store, q, logger)

	cfg := &config.Config{MaxFileSizeBytes: 10 << 20}
	return api.NewRouter(cfg, store, blobStore, exp, fin, logger), store
}

func multipartArchive(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("archive", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreateBatchRejectsNonArchiveUpload(t *testing.T) {
	router, _ := testHandler(t)

	body, contentType := multipartArchive(t, "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBatchAndReadStatus(t *testing.T) {
	router, _ := testHandler(t)

	body, contentType := multipartArchive(t, "tender.zip", []byte("PK\x03\x04fakezip"))
	req := httptest.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	batchID := created["batch_id"]
	require.NotEmpty(t, batchID)

	statusReq := httptest.NewRequest(http.MethodGet, "/batches/"+batchID+"/status", nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, statusReq)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Equal(t, db.BatchQueued, status["state"])
}

func TestBatchStatusUnknownReturns404(t *testing.T) {
	router, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/batches/does-not-exist/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchSummaryReturns404BeforeQuiescence(t *testing.T) {
	router, store := testHandler(t)
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "sb1", "sb1", "archives/sb1.zip", nil)
	require.NoError(t, err)
	_, _, err = store.CreateWorkItem(ctx, "sd1", "sb1", "a.pdf", "extracted/sb1/a.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "sb1", []string{db.BatchQueued}, db.BatchExtracting, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetBatchTotalFiles(ctx, "sb1", 1))
	_, err = store.TransitionBatch(ctx, "sb1", []string{db.BatchExtracting}, db.BatchQueued, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/batches/sb1/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchSummaryTriggersFinalizationWhenQuiescent(t *testing.T) {
	router, store := testHandler(t)
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "sb2", "sb2", "archives/sb2.zip", nil)
	require.NoError(t, err)
	_, _, err = store.CreateWorkItem(ctx, "sd2", "sb2", "a.pdf", "extracted/sb2/a.pdf", ".pdf")
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "sb2", []string{db.BatchQueued}, db.BatchExtracting, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetBatchTotalFiles(ctx, "sb2", 1))
	_, err = store.TransitionBatch(ctx, "sb2", []string{db.BatchExtracting}, db.BatchQueued, nil)
	require.NoError(t, err)
	_, err = store.TransitionBatch(ctx, "sb2", []string{db.BatchQueued}, db.BatchProcessing, nil)
	require.NoError(t, err)
	_, err = store.ClaimWorkItem(ctx, "sd2")
	require.NoError(t, err)
	require.NoError(t, store.MarkWorkItemSuccess(ctx, "sd2", []byte(`{"amount":1}`)))

	req := httptest.NewRequest(http.MethodGet, "/batches/sb2/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	batch, err := store.GetBatch(ctx, "sb2")
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, batch.State)
}

func TestProcessBatchUnknownReturns404(t *testing.T) {
	router, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/batches/does-not-exist/process", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestProcessBatchExpandsAfterRequestContextIsCanceled reproduces the
// production shutdown sequence: net/http cancels the request context the
// instant ServeHTTP returns, which happens right after the expansion
// goroutine is spawned. Expand must keep running on a detached context
// rather than failing with "context canceled".
func TestProcessBatchExpandsAfterRequestContextIsCanceled(t *testing.T) {
	router, store := testHandler(t)
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "pb1", "pb1", "archives/pb1.zip", nil)
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/batches/pb1/process", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Simulate the request context being torn down right after ServeHTTP
	// returns, before the spawned goroutine has necessarily run.
	cancel()

	require.Eventually(t, func() bool {
		batch, err := store.GetBatch(context.Background(), "pb1")
		return err == nil && batch.State != db.BatchQueued
	}, 5*time.Second, 50*time.Millisecond, "expansion never progressed past QUEUED")
}
