package extractor

import (
	"context"
	"errors"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
)

// ParseError marks a file that could not be parsed into text at all
// (corrupt PDF, unreadable spreadsheet). Not retried.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// PermanentError marks a file-attempt failure that retrying cannot fix
// (file missing from Blob, unsupported type once claimed, credential
// rejected).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent error: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// RateLimitError marks an LLM rate-limit signal, which gets an extended
// retry floor.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// LLMError marks any other LLM-side failure.
type LLMError struct {
	Err error
}

func (e *LLMError) Error() string { return "llm error: " + e.Err.Error() }
func (e *LLMError) Unwrap() error { return e.Err }

// Classify maps an extraction error (or a context deadline) to the §7 error
// taxonomy the worker uses to decide retry eligibility.
func Classify(err error, ctxErr error) string {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return db.ErrorKindTimeout
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return db.ErrorKindParse
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return db.ErrorKindPermanent
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return db.ErrorKindRateLimit
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return db.ErrorKindLLM
	}

	if err != nil {
		return db.ErrorKindRetryable
	}

	return db.ErrorKindUnknown
}

// Retryable reports whether the worker should schedule a retry for kind,
// per §7: RETRYABLE, TIMEOUT, RATE_LIMIT and LLM_ERROR retry; PARSE_ERROR,
// PERMANENT and UNKNOWN do not.
func Retryable(kind string) bool {
	switch kind {
	case db.ErrorKindRetryable, db.ErrorKindTimeout, db.ErrorKindRateLimit, db.ErrorKindLLM:
		return true
	default:
		return false
	}
}
