package enrich

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]string
	got     chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{got: make(chan struct{}, 16)}
}

func (r *batchRecorder) handle(_ context.Context, ids []string) error {
	r.mu.Lock()
	r.batches = append(r.batches, ids)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *batchRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a batch")
	}
}

func (r *batchRecorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func TestMemoryQueueBatchesBySize(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, 2, time.Hour, zap.NewNop())
	rec := newBatchRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, rec.handle) }()

	if err := q.Enqueue(ctx, "a", "b", "c", "d"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rec.wait(t)
	rec.wait(t)

	batches := rec.snapshot()
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 2 {
		t.Fatalf("expected two batches of two, got %v", batches)
	}
	if batches[0][0] != "a" || batches[1][1] != "d" {
		t.Fatalf("expected ids in enqueue order, got %v", batches)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Run, got %v", err)
	}
}

func TestMemoryQueueFlushesPartialBatch(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, 5, 20*time.Millisecond, zap.NewNop())
	rec := newBatchRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx, rec.handle) }()

	if err := q.Enqueue(ctx, "only"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rec.wait(t)

	batches := rec.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0] != "only" {
		t.Fatalf("expected the partial batch to be flushed, got %v", batches)
	}
}

func TestMemoryQueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(2, 5, time.Hour, zap.NewNop())

	err := q.Enqueue(context.Background(), "a", "b", "c")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected one dropped id, got %d", q.Dropped())
	}
	if q.Len() != 2 {
		t.Fatalf("expected two queued ids, got %d", q.Len())
	}
}

// Runs against the Redis instance named by SKILLSCOPE_TEST_REDIS_URL.
func TestRedisQueueRoundTrip(t *testing.T) {
	url := os.Getenv("SKILLSCOPE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SKILLSCOPE_TEST_REDIS_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	key := DefaultRedisKey + ":test:" + t.Name()
	client.Del(ctx, key)
	defer client.Del(context.Background(), key)

	q := NewRedisQueue(client, key, 3, zap.NewNop())
	if err := q.Enqueue(ctx, "a", "b", "c", "d"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := newBatchRecorder()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = q.Run(runCtx, rec.handle) }()

	rec.wait(t)
	rec.wait(t)

	batches := rec.snapshot()
	if len(batches) != 2 || len(batches[0]) != 3 || batches[0][0] != "a" || batches[1][0] != "d" {
		t.Fatalf("expected FIFO batches [a b c] [d], got %v", batches)
	}
}
