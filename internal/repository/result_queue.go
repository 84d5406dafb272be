package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
)

// RedisResultQueue is the Redis list graded results travel through on their
// way to Postgres. While queued, the latest result of an attempt is also
// cached under its result key.
type RedisResultQueue struct {
	rdb      *redis.Client
	key      string
	cacheTTL time.Duration
}

// NewRedisResultQueue creates a queue on config.WorkerKey.PersistResultsQueue.
func NewRedisResultQueue(rdb *redis.Client, cacheTTL time.Duration) *RedisResultQueue {
	return &RedisResultQueue{
		rdb:      rdb,
		key:      config.WorkerKey.PersistResultsQueue,
		cacheTTL: cacheTTL,
	}
}

// Publish caches rec and appends it to the queue in one transaction.
func (q *RedisResultQueue) Publish(ctx context.Context, rec ResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.AttemptResultKey(rec.AttemptID.String()), data, q.cacheTTL)
	pipe.RPush(ctx, q.key, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Push appends raw payloads to the tail of the queue.
func (q *RedisResultQueue) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	return q.rdb.RPush(ctx, q.key, values...).Err()
}

// Pop blocks up to timeout for the next payload. It returns nil, nil when the
// queue stayed empty.
func (q *RedisResultQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(item) < 2 {
		return nil, nil
	}
	return []byte(item[1]), nil
}

// Len returns the queue depth.
func (q *RedisResultQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Cached returns the queued result of an attempt, if one is still cached.
func (q *RedisResultQueue) Cached(ctx context.Context, attemptID string) (ResultRecord, bool, error) {
	data, err := q.rdb.Get(ctx, config.CacheKey.AttemptResultKey(attemptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ResultRecord{}, false, nil
		}
		return ResultRecord{}, false, err
	}
	var rec ResultRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ResultRecord{}, false, err
	}
	return rec, true, nil
}

// Clear drops the cached result and snapshot of every attempt in ids.
func (q *RedisResultQueue) Clear(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, config.CacheKey.AttemptResultKey(id), config.CacheKey.AttemptSnapshotKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}
