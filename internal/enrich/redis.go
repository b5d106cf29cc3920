package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultRedisKey = "skillscope:enrichment"

	redisPopTimeout = 5 * time.Second
	redisRetryDelay = 2 * time.Second
)

// RedisQueue shares enrichment work between processes through a Redis list.
type RedisQueue struct {
	rdb       redis.Cmdable
	key       string
	batchSize int
	logger    *zap.Logger
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisQueue(rdb redis.Cmdable, key string, batchSize int, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{rdb: rdb, key: key, batchSize: batchSize, logger: logger}
}

func (q *RedisQueue) Enqueue(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	if err := q.rdb.LPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("push enrichment ids: %w", err)
	}
	return nil
}

// Run blocks on BRPOP for the first id, then drains up to a full batch without waiting.
func (q *RedisQueue) Run(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := q.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Warn("reading enrichment queue", zap.String("key", q.key), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(redisRetryDelay):
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}

		if err := handler(ctx, batch); err != nil {
			q.logger.Warn("enrichment handler failed", zap.Int("batch", len(batch)), zap.Error(err))
		}
	}
}

func (q *RedisQueue) next(ctx context.Context) ([]string, error) {
	res, err := q.rdb.BRPop(ctx, redisPopTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res holds the key followed by the value.
	batch := []string{res[1]}

	for len(batch) < q.batchSize {
		id, err := q.rdb.RPop(ctx, q.key).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return batch, nil
		}
		batch = append(batch, id)
	}
	return batch, nil
}
