// Package worker implements the consume loop that turns queued
// process_file and aggregate_batch jobs into extraction work, plus the
// reap tick that promotes delayed retries and finalizes batches no
// in-flight event will ever trigger again.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/eternis-tender/tender-pipeline/pkg/aggregator"
	"github.com/eternis-tender/tender-pipeline/pkg/alerting"
	"github.com/eternis-tender/tender-pipeline/pkg/blob"
	"github.com/eternis-tender/tender-pipeline/pkg/config"
	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/events"
	"github.com/eternis-tender/tender-pipeline/pkg/extractor"
	"github.com/eternis-tender/tender-pipeline/pkg/finalizer"
	"github.com/eternis-tender/tender-pipeline/pkg/helpers"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
)

const reserveTimeout = 5 * time.Second
const chunkSize = 8000

// Worker runs the bounded-concurrency consume pool and the single reap
// goroutine described in the concurrency model: N consumers pull jobs off
// the queue, one reaper promotes due retries and sweeps quiescent batches.
type Worker struct {
	store      *db.Store
	blobStore  blob.Store
	queue      queue.Queue
	textExt    extractor.TextExtractor
	structExt  extractor.StructuredExtractor
	finalizer  *finalizer.Finalizer
	aggregator *aggregator.Aggregator
	bus        *events.EventBus
	log        *log.Logger

	concurrency   int
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	jobTimeout    time.Duration
	reapInterval  time.Duration
	quiescentIdle time.Duration

	wg     sync.WaitGroup
	doneCh chan struct{}
}

// New builds a Worker from cfg and its collaborators.
func New(
	cfg *config.Config,
	store *db.Store,
	blobStore blob.Store,
	q queue.Queue,
	textExt extractor.TextExtractor,
	structExt extractor.StructuredExtractor,
	fin *finalizer.Finalizer,
	agg *aggregator.Aggregator,
	bus *events.EventBus,
	logger *log.Logger,
) *Worker {
	return &Worker{
		store:         store,
		blobStore:     blobStore,
		queue:         q,
		textExt:       textExt,
		structExt:     structExt,
		finalizer:     fin,
		aggregator:    agg,
		bus:           bus,
		log:           logger,
		concurrency:   cfg.WorkerConcurrency,
		maxRetries:    cfg.MaxRetryAttempts,
		baseDelay:     time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		maxDelay:      time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		jobTimeout:    time.Duration(cfg.JobTimeoutMs) * time.Millisecond,
		reapInterval:  time.Duration(cfg.ReapIntervalMs) * time.Millisecond,
		quiescentIdle: time.Duration(cfg.QuiescentIdleMs) * time.Millisecond,
		doneCh:        make(chan struct{}),
	}
}

// Run starts the consume pool and reaper and blocks until ctx is canceled.
// It satisfies bootstrap.Runnable so cmd/server can register it under fx's
// lifecycle alongside the HTTP server.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting", "concurrency", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.consumeLoop(ctx, i)
	}

	w.wg.Add(1)
	go w.reapLoop(ctx)

	w.wg.Wait()
	close(w.doneCh)
	return nil
}

// Stop waits (up to ctx's deadline) for in-flight consume/reap goroutines
// to observe cancellation and exit, so a shutdown never abandons a claimed
// work item mid-flight without at least attempting a clean return.
func (w *Worker) Stop(ctx context.Context) error {
	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) consumeLoop(ctx context.Context, id int) {
	defer w.wg.Done()
	consecutiveReserveErrs := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := w.queue.Reserve(ctx, reserveTimeout)
		if err != nil {
			consecutiveReserveErrs++
			w.log.Error("queue reserve failed", "consumer", id, "error", err)
			if consecutiveReserveErrs >= 3 {
				alerting.Publish(ctx, w.bus, events.WorkerUnreachable, "queue reserve failing repeatedly", map[string]interface{}{"consumer": id})
				consecutiveReserveErrs = 0
			}
			time.Sleep(time.Second)
			continue
		}
		consecutiveReserveErrs = 0
		if env == nil {
			continue
		}

		switch env.Type {
		case queue.JobProcessFile:
			w.handleProcessFile(ctx, *env)
		case queue.JobAggregateBatch:
			w.handleAggregateBatch(ctx, *env)
		default:
			w.log.Error("unknown job type, dead-lettering", "type", env.Type)
			if err := w.queue.Deadletter(ctx, *env); err != nil {
				w.log.Error("failed to deadletter unknown job", "error", err)
			}
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reapTick(ctx)
		}
	}
}

func (w *Worker) reapTick(ctx context.Context) {
	promoted, err := w.queue.PromoteDue(ctx)
	if err != nil {
		w.log.Error("promote due retries failed", "error", err)
	} else if promoted > 0 {
		w.log.Info("promoted delayed jobs", "count", promoted)
	}

	batches, err := w.store.FindQuiescentBatches(ctx, w.quiescentIdle)
	if err != nil {
		w.log.Error("find quiescent batches failed", "error", err)
		return
	}
	for _, b := range batches {
		if err := w.finalizer.Finalize(ctx, b.BatchID); err != nil {
			w.log.Error("reap-triggered finalize failed", "batch_id", b.BatchID, "error", err)
		}
	}
}

func (w *Worker) handleProcessFile(ctx context.Context, env queue.Envelope) {
	var job queue.ProcessFileJob
	if err := json.Unmarshal(env.Payload, &job); err != nil {
		w.log.Error("malformed process_file payload, dead-lettering", "error", err)
		_ = w.queue.Deadletter(ctx, env)
		return
	}

	item, err := w.store.ClaimWorkItem(ctx, job.DocID)
	if err != nil {
		var notClaimable *db.NotClaimableError
		if errors.As(err, &notClaimable) {
			w.log.Debug("work item already handled, dropping job", "doc_id", job.DocID, "state", notClaimable.CurrentState)
			_ = w.queue.Ack(ctx, env)
			return
		}
		w.log.Error("claim work item failed, job left unacknowledged in the processing list", "doc_id", job.DocID, "error", err)
		return
	}

	extracted, procErr := w.extractFile(ctx, job)
	if procErr == nil {
		if err := w.store.MarkWorkItemSuccess(ctx, job.DocID, extracted); err != nil {
			w.log.Error("mark work item success failed", "doc_id", job.DocID, "error", err)
			return
		}
		_ = w.queue.Ack(ctx, env)
		w.bus.Publish(ctx, events.Event{Type: events.WorkItemTerminal, Data: map[string]interface{}{"doc_id": job.DocID, "run_id": job.RunID, "state": db.WorkItemSuccess}})
		w.finalizeForRun(ctx, job.RunID)
		return
	}

	w.handleProcessFailure(ctx, env, job, item, procErr)
}

func (w *Worker) extractFile(ctx context.Context, job queue.ProcessFileJob) (json.RawMessage, error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	r, err := w.blobStore.Get(jobCtx, job.FileKey)
	if err != nil {
		return nil, &extractor.PermanentError{Err: errors.Wrap(err, "read file from blob")}
	}
	content, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, &extractor.PermanentError{Err: errors.Wrap(err, "buffer file content")}
	}

	text, err := w.textExt.ExtractText(jobCtx, content, job.FileType)
	if err != nil {
		return nil, annotateTimeout(jobCtx, err)
	}

	chunks := extractor.Chunk(text, chunkSize)
	merged := map[string]interface{}{}
	for _, chunk := range chunks {
		raw, err := w.structExt.ExtractStructured(jobCtx, chunk, job.FileKey)
		if err != nil {
			return nil, annotateTimeout(jobCtx, err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &extractor.ParseError{Err: err}
		}
		merged = aggregator.MergeJSONObjects(merged, doc)
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, &extractor.ParseError{Err: err}
	}
	return out, nil
}

// annotateTimeout lets Classify see the job context's deadline error
// without every extractor call needing to check it itself.
func annotateTimeout(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

const maxStoredErrorTextLen = 2000

func (w *Worker) handleProcessFailure(ctx context.Context, env queue.Envelope, job queue.ProcessFileJob, item *db.WorkItem, procErr error) {
	ctxErr := ctx.Err()
	if errors.Is(procErr, context.DeadlineExceeded) {
		ctxErr = context.DeadlineExceeded
	}
	kind := extractor.Classify(procErr, ctxErr)
	errText := string(helpers.SafeLastN([]byte(procErr.Error()), maxStoredErrorTextLen))

	if extractor.Retryable(kind) && item.RetryCount < w.maxRetries {
		updated, err := w.store.PrepareRetry(ctx, job.DocID, errText, kind)
		if err != nil {
			w.log.Error("prepare retry failed", "doc_id", job.DocID, "error", err)
			return
		}

		delay := backoff(updated.RetryCount, w.baseDelay, w.maxDelay)
		if kind == db.ErrorKindRateLimit {
			delay = applyRateLimitFloor(delay)
			alerting.Publish(ctx, w.bus, events.RateLimitSpike, "rate limited extracting document", map[string]interface{}{"doc_id": job.DocID})
		}

		if err := w.queue.RetryLater(ctx, env, delay); err != nil {
			w.log.Error("schedule retry failed", "doc_id", job.DocID, "error", err)
		}
		return
	}

	if err := w.store.MarkWorkItemFailed(ctx, job.DocID, errText, kind); err != nil {
		w.log.Error("mark work item failed failed", "doc_id", job.DocID, "error", err)
		return
	}
	_ = w.queue.Ack(ctx, env)
	w.bus.Publish(ctx, events.Event{Type: events.WorkItemTerminal, Data: map[string]interface{}{"doc_id": job.DocID, "run_id": job.RunID, "state": db.WorkItemFailed, "error_kind": kind}})
	w.finalizeForRun(ctx, job.RunID)
}

func (w *Worker) handleAggregateBatch(ctx context.Context, env queue.Envelope) {
	var job queue.AggregateBatchJob
	if err := json.Unmarshal(env.Payload, &job); err != nil {
		w.log.Error("malformed aggregate_batch payload, dead-lettering", "error", err)
		_ = w.queue.Deadletter(ctx, env)
		return
	}

	if err := w.aggregator.Aggregate(ctx, job.BatchID, job.RunID); err != nil {
		w.log.Error("aggregation failed, dead-lettering", "batch_id", job.BatchID, "error", err)
		_ = w.queue.Deadletter(ctx, env)
		return
	}

	_ = w.queue.Ack(ctx, env)
	w.bus.Publish(ctx, events.Event{Type: events.BatchFinalized, Data: map[string]interface{}{"batch_id": job.BatchID, "run_id": job.RunID}})
}

func (w *Worker) finalizeForRun(ctx context.Context, runID string) {
	b, err := w.store.GetBatchByRunID(ctx, runID)
	if err != nil {
		w.log.Error("look up batch by run id failed", "run_id", runID, "error", err)
		return
	}
	if err := w.finalizer.Finalize(ctx, b.BatchID); err != nil {
		w.log.Error("post-file finalize failed", "batch_id", b.BatchID, "error", err)
	}
}
