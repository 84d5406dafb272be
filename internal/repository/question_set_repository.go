package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
)

// QuestionSetRepository stores question sets in Postgres and caches the
// payload in Redis. A nil Redis client disables the cache.
type QuestionSetRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
}

// NewQuestionSetRepository creates a new QuestionSetRepository.
func NewQuestionSetRepository(pool *pgxpool.Pool, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionSetRepository {
	return &QuestionSetRepository{
		pool: pool,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With().Str("component", "question_set_repository").Logger(),
	}
}

// Create inserts a new question set and assigns its ID.
func (r *QuestionSetRepository) Create(ctx context.Context, qs *model.QuestionSet) error {
	questions, err := json.Marshal(qs.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	if qs.ID == uuid.Nil {
		qs.ID = uuid.New()
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO question_sets (id, title, section, questions)
		 VALUES ($1, $2, $3, $4)`,
		qs.ID, qs.Title, qs.Section, questions,
	)
	if err != nil {
		return fmt.Errorf("insert question set: %w", err)
	}
	return nil
}

// GetByID loads a question set, reading through the Redis cache when configured.
func (r *QuestionSetRepository) GetByID(ctx context.Context, id uuid.UUID) (model.QuestionSet, error) {
	key := config.CacheKey.QuestionSetKey(id.String())

	if r.rdb != nil {
		data, err := r.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var qs model.QuestionSet
			if err := json.Unmarshal(data, &qs); err == nil {
				return qs, nil
			}
			r.log.Warn().Str("question_set_id", id.String()).Msg("Dropping undecodable cached question set")
		} else if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Msg("Question set cache read failed")
		}
	}

	qs := model.QuestionSet{ID: id}
	var questions []byte
	err := r.pool.QueryRow(ctx,
		`SELECT title, section, questions FROM question_sets WHERE id = $1`, id,
	).Scan(&qs.Title, &qs.Section, &questions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.QuestionSet{}, examerr.New(examerr.NotFound, "QuestionSetRepository.GetByID", "question set %s", id)
		}
		return model.QuestionSet{}, examerr.Wrap(examerr.StorageUnavailable, "QuestionSetRepository.GetByID", err)
	}
	if err := json.Unmarshal(questions, &qs.Questions); err != nil {
		return model.QuestionSet{}, examerr.Wrap(examerr.CorruptState, "QuestionSetRepository.GetByID", err)
	}

	if r.rdb != nil {
		if data, err := json.Marshal(qs); err == nil {
			if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
				r.log.Warn().Err(err).Msg("Question set cache write failed")
			}
		}
	}
	return qs, nil
}

// MemoryQuestionSetRepository is the process-local question set store used
// with the memory snapshot backend.
type MemoryQuestionSetRepository struct {
	mu   sync.RWMutex
	sets map[uuid.UUID]model.QuestionSet
}

func NewMemoryQuestionSetRepository() *MemoryQuestionSetRepository {
	return &MemoryQuestionSetRepository{sets: make(map[uuid.UUID]model.QuestionSet)}
}

func (r *MemoryQuestionSetRepository) Create(_ context.Context, qs *model.QuestionSet) error {
	if qs.ID == uuid.Nil {
		qs.ID = uuid.New()
	}
	stored := *qs
	stored.Questions = append([]model.Question(nil), qs.Questions...)

	r.mu.Lock()
	r.sets[qs.ID] = stored
	r.mu.Unlock()
	return nil
}

func (r *MemoryQuestionSetRepository) GetByID(_ context.Context, id uuid.UUID) (model.QuestionSet, error) {
	r.mu.RLock()
	qs, ok := r.sets[id]
	r.mu.RUnlock()
	if !ok {
		return model.QuestionSet{}, examerr.New(examerr.NotFound, "MemoryQuestionSetRepository.GetByID", "question set %s", id)
	}
	return qs, nil
}
