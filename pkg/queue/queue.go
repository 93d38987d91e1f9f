// Package queue implements the job queue that hands extraction work from
// the archive expander to worker processes. The Redis backend uses four
// keys per logical queue name: a FIFO list for ready jobs, an in-flight set
// (implemented as a second list, populated by BRPOPLPUSH) holding jobs a
// worker currently owns, a sorted set of delayed retries scored by the
// unix millisecond timestamp they become due, and a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the wire format for a queued job. Payload carries the
// job-type-specific body (a ProcessFileJob or AggregateBatchJob,
// JSON-encoded; the ExpandArchiveJob type exists but nothing enqueues it).
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`
}

// Job type discriminants carried in Envelope.Type.
const (
	JobExpandArchive  = "expand_archive"
	JobProcessFile    = "process_file"
	JobAggregateBatch = "aggregate_batch"
)

// ExpandArchiveJob describes a request to pull and unpack a batch's
// archive. Nothing in this repository enqueues it; the API calls the
// expander directly, and the worker dead-letters expand_archive jobs as an
// unknown type.
type ExpandArchiveJob struct {
	BatchID    string `json:"batch_id"`
	RunID      string `json:"run_id"`
	ArchiveKey string `json:"archive_key"`
}

// ProcessFileJob asks the worker to extract a single file already unpacked
// by the expander.
type ProcessFileJob struct {
	DocID    string `json:"doc_id"`
	RunID    string `json:"run_id"`
	FileKey  string `json:"file_key"`
	FileType string `json:"file_type"`
}

// AggregateBatchJob asks the aggregator to fold a batch's SUCCESS work
// items into its summary.
type AggregateBatchJob struct {
	BatchID string `json:"batch_id"`
	RunID   string `json:"run_id"`
}

// Metrics reports queue depths.
type Metrics struct {
	Ready    int64
	InFlight int64
	Delayed  int64
	Dead     int64
}

// Queue is the job queue surface the expander, worker and finalizer depend
// on. Implementations: Redis for production, an in-memory fake for unit
// tests.
type Queue interface {
	// Enqueue appends env to the ready queue.
	Enqueue(ctx context.Context, env Envelope) error
	// Reserve blocks up to timeout for a ready job, moving it into the
	// in-flight set atomically so a crash between Reserve and Ack leaves
	// the job recoverable rather than lost. Returns nil, nil on timeout.
	Reserve(ctx context.Context, timeout time.Duration) (*Envelope, error)
	// Ack removes env from the in-flight set after successful processing.
	Ack(ctx context.Context, env Envelope) error
	// RetryLater removes env from in-flight and schedules it to become
	// ready again after delay, with Attempt incremented.
	RetryLater(ctx context.Context, env Envelope, delay time.Duration) error
	// Deadletter removes env from in-flight and appends it to the dead
	// letter list for manual inspection.
	Deadletter(ctx context.Context, env Envelope) error
	// PromoteDue moves any delayed jobs whose due time has passed back
	// onto the ready queue. Returns the number promoted.
	PromoteDue(ctx context.Context) (int, error)
	// Metrics reports current queue depths.
	Metrics(ctx context.Context) (Metrics, error)
}
