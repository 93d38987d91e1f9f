package blob

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystemStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	content := []byte("tender document contents")
	err = store.Put(ctx, "batches/abc/archive.zip", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "batches/abc/archive.zip")
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := store.Get(ctx, "batches/abc/archive.zip")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, content, got)

	err = store.Delete(ctx, "batches/abc/archive.zip")
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "batches/abc/archive.zip")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilesystemStoreGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "does/not/exist")
	require.Error(t, err)
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestFilesystemStoreDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	err = store.Delete(ctx, "never/written")
	assert.NoError(t, err)
}
