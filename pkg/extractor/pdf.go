package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/eternis-tender/tender-pipeline/pkg/helpers"
)

const maxExtractedChars = 200_000

// DocumentTextExtractor implements TextExtractor for the file types the
// Expander hands to the worker: PDF via ledongthuc/pdf, everything else
// (.doc/.docx/.xls/.xlsx/.csv/.txt and the GAEB family) treated as UTF-8
// plain text, since the core's contract with the external extractor is
// opaque beyond "bytes in, text out" and these formats are textual enough
// for structured extraction to work against directly.
type DocumentTextExtractor struct{}

// NewDocumentTextExtractor returns the default TextExtractor.
func NewDocumentTextExtractor() *DocumentTextExtractor {
	return &DocumentTextExtractor{}
}

func (e *DocumentTextExtractor) ExtractText(ctx context.Context, content []byte, fileType string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ParseError{Err: fmt.Errorf("panic during extraction: %v", r)}
		}
	}()

	switch strings.ToLower(fileType) {
	case ".pdf":
		return e.extractPDF(content)
	default:
		return truncate(string(content), maxExtractedChars), nil
	}
}

func (e *DocumentTextExtractor) extractPDF(content []byte) (string, error) {
	tmp, err := os.CreateTemp("", "tender-extract-*.pdf")
	if err != nil {
		return "", &ParseError{Err: fmt.Errorf("create scratch file: %w", err)}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, bytes.NewReader(content)); err != nil {
		return "", &ParseError{Err: fmt.Errorf("write scratch file: %w", err)}
	}

	f, r, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", &ParseError{Err: fmt.Errorf("open pdf: %w", err)}
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
		if sb.Len() > maxExtractedChars {
			break
		}
	}

	return truncate(sb.String(), maxExtractedChars), nil
}

func truncate(s string, n int) string {
	return string(helpers.SafeFirstN([]byte(s), n))
}
