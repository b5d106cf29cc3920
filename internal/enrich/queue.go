package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one batch of posting ids taken from a queue.
type Handler func(ctx context.Context, ids []string) error

// Queue carries newly acquired posting ids to the enrichment worker.
type Queue interface {
	Enqueue(ctx context.Context, ids ...string) error
	// Run delivers batches to handler until ctx is done.
	Run(ctx context.Context, handler Handler) error
}

var ErrQueueFull = errors.New("enrichment queue is full")

const (
	defaultQueueCapacity = 1000
	defaultFlushInterval = 5 * time.Second
)

// MemoryQueue is an in-process queue. When it is full new ids are dropped;
// they stay unenriched and the scheduled batch picks them up.
type MemoryQueue struct {
	ids           chan string
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	dropped int
}

func NewMemoryQueue(capacity, batchSize int, flushInterval time.Duration, logger *zap.Logger) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryQueue{
		ids:           make(chan string, capacity),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Enqueue never blocks. It returns ErrQueueFull when at least one id was dropped.
func (q *MemoryQueue) Enqueue(_ context.Context, ids ...string) error {
	dropped := 0
	for _, id := range ids {
		select {
		case q.ids <- id:
		default:
			dropped++
		}
	}
	if dropped == 0 {
		return nil
	}

	q.mu.Lock()
	q.dropped += dropped
	q.mu.Unlock()

	q.logger.Warn("enrichment queue is full, postings left for the scheduled batch", zap.Int("dropped", dropped))
	return ErrQueueFull
}

// Dropped returns how many ids were rejected so far.
func (q *MemoryQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *MemoryQueue) Len() int {
	return len(q.ids)
}

func (q *MemoryQueue) Run(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	batch := make([]string, 0, q.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ids := append([]string(nil), batch...)
		batch = batch[:0]
		if err := handler(ctx, ids); err != nil {
			q.logger.Warn("enrichment handler failed", zap.Int("batch", len(ids)), zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-q.ids:
			batch = append(batch, id)
			if len(batch) >= q.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Worker is the Handler that enriches queued ids with the engine.
func (e *Engine) Worker() Handler {
	return func(ctx context.Context, ids []string) error {
		status, err := e.EnrichIDs(ctx, ids)
		if err != nil {
			return err
		}
		if status.RateLimited {
			e.logger.Info("queued enrichment paused by rate limit", zap.Int("released", status.Released))
		}
		return nil
	}
}
