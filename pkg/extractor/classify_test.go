package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
)

func TestClassifyTaxonomy(t *testing.T) {
	assert.Equal(t, db.ErrorKindParse, Classify(&ParseError{Err: errors.New("bad pdf")}, nil))
	assert.Equal(t, db.ErrorKindPermanent, Classify(&PermanentError{Err: errors.New("missing")}, nil))
	assert.Equal(t, db.ErrorKindRateLimit, Classify(&RateLimitError{Err: errors.New("429")}, nil))
	assert.Equal(t, db.ErrorKindLLM, Classify(&LLMError{Err: errors.New("500")}, nil))
	assert.Equal(t, db.ErrorKindRetryable, Classify(errors.New("transient io"), nil))
	assert.Equal(t, db.ErrorKindUnknown, Classify(nil, nil))
}

func TestClassifyTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	assert.Equal(t, db.ErrorKindTimeout, Classify(errors.New("deadline exceeded"), ctx.Err()))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(db.ErrorKindRetryable))
	assert.True(t, Retryable(db.ErrorKindTimeout))
	assert.True(t, Retryable(db.ErrorKindRateLimit))
	assert.True(t, Retryable(db.ErrorKindLLM))
	assert.False(t, Retryable(db.ErrorKindParse))
	assert.False(t, Retryable(db.ErrorKindPermanent))
	assert.False(t, Retryable(db.ErrorKindUnknown))
}
