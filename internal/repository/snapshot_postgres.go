package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// PostgresSnapshotStore keeps one row per attempt in attempt_snapshots.
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSnapshotStore(pool *pgxpool.Pool) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{pool: pool}
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	attemptID, err := uuid.Parse(snap.AttemptID)
	if err != nil {
		return examerr.Wrap(examerr.CorruptState, "postgres.Save", err)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return examerr.Wrap(examerr.CorruptState, "postgres.Save", err)
	}

	var finishedAt *time.Time
	if snap.TestEnd != nil {
		t := time.UnixMilli(*snap.TestEnd)
		finishedAt = &t
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO attempt_snapshots (attempt_id, question_set_id, payload, finished_at, saved_at)
		 VALUES ($1, NULLIF($2, '')::uuid, $3, $4, NOW())
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET payload = EXCLUDED.payload,
		     finished_at = EXCLUDED.finished_at,
		     saved_at = EXCLUDED.saved_at`,
		attemptID, snap.QuestionSetID, payload, finishedAt,
	)
	if err != nil {
		return examerr.Wrap(examerr.StorageUnavailable, "postgres.Save", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Load(ctx context.Context, attemptID string) (model.Snapshot, error) {
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return model.Snapshot{}, examerr.New(examerr.NotFound, "postgres.Load", "invalid attempt id %q", attemptID)
	}

	var payload []byte
	err = s.pool.QueryRow(ctx,
		`SELECT payload FROM attempt_snapshots WHERE attempt_id = $1`, id,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, examerr.New(examerr.NotFound, "postgres.Load", "no snapshot for attempt %s", attemptID)
		}
		return model.Snapshot{}, examerr.Wrap(examerr.StorageUnavailable, "postgres.Load", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return model.Snapshot{}, examerr.Wrap(examerr.CorruptState, "postgres.Load", err)
	}
	return snap, nil
}

func (s *PostgresSnapshotStore) Delete(ctx context.Context, attemptID string) error {
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM attempt_snapshots WHERE attempt_id = $1`, id); err != nil {
		return examerr.Wrap(examerr.StorageUnavailable, "postgres.Delete", err)
	}
	return nil
}
