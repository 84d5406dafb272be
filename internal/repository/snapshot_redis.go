package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// RedisSnapshotStore keeps attempt snapshots as JSON strings with a TTL.
type RedisSnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSnapshotStore creates a RedisSnapshotStore. ttl <= 0 keeps keys forever.
func NewRedisSnapshotStore(rdb *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSnapshotStore{rdb: rdb, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return examerr.Wrap(examerr.CorruptState, "redis.Save", err)
	}
	key := config.CacheKey.AttemptSnapshotKey(snap.AttemptID)
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return examerr.Wrap(examerr.StorageUnavailable, "redis.Save", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, attemptID string) (model.Snapshot, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.AttemptSnapshotKey(attemptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Snapshot{}, examerr.New(examerr.NotFound, "redis.Load", "no snapshot for attempt %s", attemptID)
		}
		return model.Snapshot{}, examerr.Wrap(examerr.StorageUnavailable, "redis.Load", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, examerr.Wrap(examerr.CorruptState, "redis.Load", err)
	}
	return snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, attemptID string) error {
	if err := s.rdb.Del(ctx, config.CacheKey.AttemptSnapshotKey(attemptID)).Err(); err != nil {
		return examerr.Wrap(examerr.StorageUnavailable, "redis.Delete", err)
	}
	return nil
}
