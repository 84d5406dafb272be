package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ResultRecord is the queued, persisted form of a graded attempt.
type ResultRecord struct {
	AttemptID       uuid.UUID    `json:"attempt_id"`
	QuestionSetID   uuid.UUID    `json:"question_set_id"`
	Score           float64      `json:"score"`
	ScorePercentage int          `json:"score_percentage"`
	Forced          bool         `json:"forced"`
	SubmittedAt     time.Time    `json:"submitted_at"`
	Result          model.Result `json:"result"`
}

// NewResultRecord converts a graded result into a ResultRecord.
func NewResultRecord(res model.Result, forced bool, submittedAt time.Time) (ResultRecord, error) {
	attemptID, err := uuid.Parse(res.AttemptID)
	if err != nil {
		return ResultRecord{}, fmt.Errorf("attempt id: %w", err)
	}
	var setID uuid.UUID
	if res.QuestionSetID != "" {
		if setID, err = uuid.Parse(res.QuestionSetID); err != nil {
			return ResultRecord{}, fmt.Errorf("question set id: %w", err)
		}
	}
	return ResultRecord{
		AttemptID:       attemptID,
		QuestionSetID:   setID,
		Score:           res.Score,
		ScorePercentage: res.ScorePercentage,
		Forced:          forced,
		SubmittedAt:     submittedAt,
		Result:          res,
	}, nil
}

// ResultRepository persists graded results into attempt_results.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// BulkInsert writes records with COPY. Any duplicate attempt fails the whole batch.
func (r *ResultRepository) BulkInsert(ctx context.Context, records []ResultRecord) error {
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal result %s: %w", rec.AttemptID, err)
		}
		rows = append(rows, []interface{}{
			rec.AttemptID, nullableUUID(rec.QuestionSetID), rec.Score, rec.ScorePercentage, rec.Forced, rec.SubmittedAt, payload,
		})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_results"},
		[]string{"attempt_id", "question_set_id", "score", "score_percentage", "forced", "submitted_at", "payload"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single record. Re-inserting an attempt is a no-op.
func (r *ResultRepository) Insert(ctx context.Context, rec ResultRecord) error {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", rec.AttemptID, err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_results (attempt_id, question_set_id, score, score_percentage, forced, submitted_at, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		rec.AttemptID, nullableUUID(rec.QuestionSetID), rec.Score, rec.ScorePercentage, rec.Forced, rec.SubmittedAt, payload,
	)
	return err
}

// GetByAttempt loads the persisted result of an attempt.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (model.Result, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM attempt_results WHERE attempt_id = $1`, attemptID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Result{}, examerr.New(examerr.NotFound, "ResultRepository.GetByAttempt", "no result for attempt %s", attemptID)
		}
		return model.Result{}, examerr.Wrap(examerr.StorageUnavailable, "ResultRepository.GetByAttempt", err)
	}

	var res model.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return model.Result{}, examerr.Wrap(examerr.CorruptState, "ResultRepository.GetByAttempt", err)
	}
	return res, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
