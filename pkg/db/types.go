package db

import (
	"encoding/json"
	"time"
)

// Batch states.
const (
	BatchQueued                  = "QUEUED"
	BatchExtracting               = "EXTRACTING"
	BatchProcessing               = "PROCESSING"
	BatchCompleted                = "COMPLETED"
	BatchCompletedWithErrors      = "COMPLETED_WITH_ERRORS"
	BatchFailed                   = "FAILED"
)

// WorkItem states.
const (
	WorkItemPending    = "PENDING"
	WorkItemProcessing = "PROCESSING"
	WorkItemSuccess    = "SUCCESS"
	WorkItemFailed     = "FAILED"
	WorkItemSkipped    = "SKIPPED"
)

// Error classifications for a failed WorkItem attempt.
const (
	ErrorKindRetryable = "RETRYABLE"
	ErrorKindPermanent = "PERMANENT"
	ErrorKindTimeout   = "TIMEOUT"
	ErrorKindRateLimit = "RATE_LIMIT"
	ErrorKindParse     = "PARSE_ERROR"
	ErrorKindLLM       = "LLM_ERROR"
	ErrorKindUnknown   = "UNKNOWN"
)

var terminalBatchStates = map[string]bool{
	BatchCompleted:           true,
	BatchCompletedWithErrors: true,
	BatchFailed:              true,
}

// IsTerminalBatchState reports whether state is an absorbing batch state.
func IsTerminalBatchState(state string) bool {
	return terminalBatchStates[state]
}

// Batch mirrors the batches table.
type Batch struct {
	BatchID      string     `db:"batch_id"`
	RunID        string     `db:"run_id"`
	ArchiveKey   string     `db:"archive_key"`
	UploadedBy   *string    `db:"uploaded_by"`
	State        string     `db:"state"`
	TotalFiles   int        `db:"total_files"`
	ErrorMessage *string    `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// WorkItem mirrors the work_items table.
type WorkItem struct {
	DocID       string          `db:"doc_id"`
	RunID       string          `db:"run_id"`
	Filename    string          `db:"filename"`
	FileKey     string          `db:"file_key"`
	FileType    string          `db:"file_type"`
	State       string          `db:"state"`
	Extracted   json.RawMessage `db:"extracted"`
	ErrorText   *string         `db:"error_text"`
	ErrorKind   *string         `db:"error_kind"`
	RetryCount  int             `db:"retry_count"`
	StartedAt   *time.Time      `db:"started_at"`
	CompletedAt *time.Time      `db:"completed_at"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// DurationMs returns the derived processing duration, or nil if either
// timestamp is unset.
func (w *WorkItem) DurationMs() *int64 {
	if w.StartedAt == nil || w.CompletedAt == nil {
		return nil
	}
	ms := w.CompletedAt.Sub(*w.StartedAt).Milliseconds()
	return &ms
}

// Summary mirrors the summaries table.
type Summary struct {
	RunID        string          `db:"run_id"`
	UIJSON       json.RawMessage `db:"ui_json"`
	TotalFiles   int             `db:"total_files"`
	SuccessFiles int             `db:"success_files"`
	FailedFiles  int             `db:"failed_files"`
	State        string          `db:"state"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// SummaryCounts is the counts payload passed to UpsertSummary.
type SummaryCounts struct {
	Total   int
	Success int
	Failed  int
}

// Alert mirrors the alerts table.
type Alert struct {
	ID         int64           `db:"id"`
	Kind       string          `db:"kind"`
	Severity   string          `db:"severity"`
	Message    string          `db:"message"`
	Context    json.RawMessage `db:"context"`
	CreatedAt  time.Time       `db:"created_at"`
	ResolvedAt *time.Time      `db:"resolved_at"`
}

// BatchStats is the view returned by Store.BatchStats.
type BatchStats struct {
	Total           int        `db:"total"`
	Pending         int        `db:"pending"`
	Processing      int        `db:"processing"`
	Success         int        `db:"success"`
	Failed          int        `db:"failed"`
	LastCompletedAt *time.Time `db:"last_completed_at"`
}
