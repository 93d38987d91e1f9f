package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	chunks := Chunk("short text", 100)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestChunkEmptyTextIsNoChunks(t *testing.T) {
	assert.Empty(t, Chunk("", 100))
}

func TestChunkLongTextSplits(t *testing.T) {
	text := strings.Repeat("a", 250)
	chunks := Chunk(text, 100)
	assert.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0]))
	assert.Equal(t, 100, len(chunks[1]))
	assert.Equal(t, 50, len(chunks[2]))
}
