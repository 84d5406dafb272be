package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultQueue is the source of queued result records.
type ResultQueue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Push(ctx context.Context, payloads ...[]byte) error
}

// ResultStore persists result records.
type ResultStore interface {
	BulkInsert(ctx context.Context, records []repository.ResultRecord) error
	Insert(ctx context.Context, rec repository.ResultRecord) error
}

// AttemptCleaner drops per-attempt buffers once their result is persisted.
type AttemptCleaner interface {
	Clear(ctx context.Context, attemptIDs []string) error
}

type ResultWorker struct {
	queue   ResultQueue
	store   ResultStore
	cleaner AttemptCleaner
	log     zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
}

// NewResultWorker creates a ResultWorker. cleaner may be nil.
func NewResultWorker(queue ResultQueue, store ResultStore, cleaner AttemptCleaner, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		queue:        queue,
		store:        store,
		cleaner:      cleaner,
		log:          log.With().Str("component", "result_worker").Logger(),
		batchSize:    ResultBatchSize,
		batchTimeout: ResultBatchTimeout,
		pollTimeout:  ResultPollTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start consumes the queue until ctx is cancelled, then flushes what is left.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]repository.ResultRecord, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			raw, err := w.queue.Pop(ctx, w.pollTimeout)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("Result queue pop failed")
				}
				continue
			}
			if raw == nil {
				continue
			}

			var rec repository.ResultRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				w.log.Error().Err(err).Msg("Invalid result payload")
				continue
			}
			batch = append(batch, rec)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with per-row fallback
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []repository.ResultRecord) {
	if len(batch) == 0 {
		return
	}

	persisted := make([]string, 0, len(batch))

	if err := w.store.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("batch", len(batch)).Msg("Bulk result insert failed, using fallback")

		for _, rec := range batch {
			if err := w.store.Insert(ctx, rec); err != nil {
				w.log.Error().Err(err).Str("attempt_id", rec.AttemptID.String()).Msg("Result insert failed, requeueing")
				raw, _ := json.Marshal(rec)
				if err := w.queue.Push(ctx, raw); err != nil {
					w.log.Error().Err(err).Str("attempt_id", rec.AttemptID.String()).Msg("Requeue failed")
				}
				continue
			}
			persisted = append(persisted, rec.AttemptID.String())
		}
	} else {
		for _, rec := range batch {
			persisted = append(persisted, rec.AttemptID.String())
		}
	}

	if w.cleaner == nil || len(persisted) == 0 {
		return
	}
	if err := w.cleaner.Clear(ctx, persisted); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clear attempt buffers")
	}
}
