package worker

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternis-tender/tender-pipeline/pkg/blob"
	"github.com/eternis-tender/tender-pipeline/pkg/extractor"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
)

func TestBackoffStaysWithinBounds(t *testing.T) {
	base := 2 * time.Second
	max := 60 * time.Second

	for a := 1; a <= 6; a++ {
		d := backoff(a, base, max)
		raw := float64(base) * pow2(a-1)
		capped := raw
		if capped > float64(max) {
			capped = float64(max)
		}
		assert.GreaterOrEqual(t, float64(d), capped)
		assert.LessOrEqual(t, float64(d), capped*1.25)
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

func TestApplyRateLimitFloorRaisesShortDelays(t *testing.T) {
	assert.Equal(t, rateLimitFloor, applyRateLimitFloor(time.Second))
	assert.Equal(t, 45*time.Second, applyRateLimitFloor(45*time.Second))
}

func newTestWorker(t *testing.T, blobStore blob.Store, textExt extractor.TextExtractor, structExt extractor.StructuredExtractor) *Worker {
	t.Helper()
	return &Worker{
		blobStore:  blobStore,
		textExt:    textExt,
		structExt:  structExt,
		log:        log.New(io.Discard),
		jobTimeout: 5 * time.Second,
	}
}

func TestExtractFileMergesChunkResults(t *testing.T) {
	ctx := context.Background()
	fsStore, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fsStore.Put(ctx, "files/a.pdf", strings.NewReader("irrelevant"), 10))

	stub := extractor.NewStaticStub()
	stub.Text[".pdf"] = "short document text"
	stub.Structured["files/a.pdf"] = map[string]interface{}{"amount": 1000.0}

	w := newTestWorker(t, fsStore, stub, stub)

	job := queue.ProcessFileJob{DocID: "d1", RunID: "r1", FileKey: "files/a.pdf", FileType: ".pdf"}
	raw, err := w.extractFile(ctx, job)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 1000.0, doc["amount"])
	assert.Equal(t, "files/a.pdf", doc["source_document"])
}

func TestExtractFileClassifiesTextExtractionFailure(t *testing.T) {
	ctx := context.Background()
	fsStore, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fsStore.Put(ctx, "files/bad.pdf", strings.NewReader("junk"), 4))

	stub := extractor.NewStaticStub()
	stub.TextErr[".pdf"] = &extractor.ParseError{Err: assertErr{"corrupt"}}

	w := newTestWorker(t, fsStore, stub, stub)

	job := queue.ProcessFileJob{DocID: "d1", RunID: "r1", FileKey: "files/bad.pdf", FileType: ".pdf"}
	_, err = w.extractFile(ctx, job)
	require.Error(t, err)
	assert.Equal(t, "PARSE_ERROR", extractor.Classify(err, nil))
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
