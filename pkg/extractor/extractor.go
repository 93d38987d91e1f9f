// Package extractor implements the two external contracts the worker calls
// per file: TextExtractor turns raw bytes into plain text, StructuredExtractor
// turns a chunk of that text into the opaque structured JSON the aggregator
// later merges.
package extractor

import (
	"context"
)

// TextExtractor pulls plain text out of a file's raw bytes. Implementations
// must return a classifiable error (see pkg/extractor/classify.go) so the
// worker can decide whether to retry.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, fileType string) (string, error)
}

// StructuredExtractor turns a chunk of extracted text into the
// domain-opaque structured payload the aggregator merges. sourceName is
// passed through so implementations can stamp a source_document field.
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, chunk string, sourceName string) ([]byte, error)
}
