package expander

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExpandZipReturnsAllFilesAndRecursesNested(t *testing.T) {
	e := &Expander{
		log:                 log.New(io.Discard),
		maxDepth:            3,
		supportedExtensions: map[string]bool{".pdf": true, ".txt": true},
	}

	inner := buildZip(t, map[string]string{"deep.txt": "deep content"})
	outerFiles := map[string]string{
		"a.pdf":     "pdf content",
		"notes.ini": "ignored",
		"nested.zip": string(inner),
	}
	outer := buildZip(t, outerFiles)

	var found []discoveredFile
	err := e.expandZip(outer, "", 0, &found)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range found {
		names[f.relativePath] = true
	}
	assert.True(t, names["a.pdf"])
	assert.True(t, names["notes.ini"])
	assert.Contains(t, names, "nested_zip/deep.txt")
}

func TestExpandZipSkipsBeyondMaxDepth(t *testing.T) {
	e := &Expander{
		log:                 log.New(io.Discard),
		maxDepth:            0,
		supportedExtensions: map[string]bool{".txt": true},
	}

	inner := buildZip(t, map[string]string{"deep.txt": "deep"})
	outer := buildZip(t, map[string]string{"nested.zip": string(inner)})

	var found []discoveredFile
	err := e.expandZip(outer, "", 0, &found)
	require.NoError(t, err)
	assert.Empty(t, found)
}
