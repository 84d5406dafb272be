package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/timer"
)

// DefaultSubmittedRetention is how long a submitted attempt stays in memory
// for review before the janitor evicts it.
const DefaultSubmittedRetention = 2 * time.Hour

// QuestionSetSource loads question sets by ID.
type QuestionSetSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.QuestionSet, error)
}

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	QuestionSetID   string  `json:"question_set_id" binding:"required,uuid"`
	DurationMinutes float64 `json:"duration_minutes" binding:"required,gt=0"`
	NegativeMarking bool    `json:"negative_marking"`
	EnhancedTimer   bool    `json:"enhanced_timer"`
}

// AttemptTicket is returned when an attempt is started or resumed.
type AttemptTicket struct {
	AttemptID string        `json:"attempt_id"`
	Token     string        `json:"token"`
	Status    engine.Status `json:"status"`
}

// Attempt is a live engine plus the hub its observers subscribe to.
type Attempt struct {
	ID     uuid.UUID
	Engine *engine.Engine
	Hub    *EventHub

	mu          sync.Mutex
	submittedAt time.Time
}

func (a *Attempt) observe(ev engine.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch ev.Type {
	case engine.EventSubmitted:
		a.submittedAt = ev.At
	case engine.EventReset:
		a.submittedAt = time.Time{}
	}
}

// markSubmitted records t unless a submission time is already known.
func (a *Attempt) markSubmitted(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submittedAt.IsZero() {
		a.submittedAt = t
	}
}

func (a *Attempt) submittedBefore(t time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.submittedAt.IsZero() && a.submittedAt.Before(t)
}

// AttemptService is the registry of live attempts on this process.
type AttemptService struct {
	sets      QuestionSetSource
	store     engine.SnapshotStore
	tokens    *TokenService
	sched     timer.Scheduler
	cfg       engine.Config
	listeners []engine.Listener
	retention time.Duration
	root      zerolog.Logger
	log       zerolog.Logger

	mu       sync.RWMutex
	attempts map[uuid.UUID]*Attempt
}

// NewAttemptService creates a new AttemptService. store may be nil. Every
// attempt's hub gets listeners subscribed before its engine starts.
func NewAttemptService(
	sets QuestionSetSource,
	store engine.SnapshotStore,
	tokens *TokenService,
	sched timer.Scheduler,
	cfg engine.Config,
	log zerolog.Logger,
	listeners ...engine.Listener,
) *AttemptService {
	return &AttemptService{
		sets:      sets,
		store:     store,
		tokens:    tokens,
		sched:     sched,
		cfg:       cfg,
		listeners: listeners,
		retention: DefaultSubmittedRetention,
		root:      log,
		log:       log.With().Str("component", "attempt_service").Logger(),
		attempts:  make(map[uuid.UUID]*Attempt),
	}
}

// Start loads the question set, starts a fresh attempt on it and issues the
// attempt token.
func (s *AttemptService) Start(ctx context.Context, req StartAttemptRequest) (AttemptTicket, error) {
	setID, err := uuid.Parse(req.QuestionSetID)
	if err != nil {
		return AttemptTicket{}, examerr.New(examerr.InvalidConfiguration, "AttemptService.Start", "invalid question set id %q", req.QuestionSetID)
	}
	qs, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		return AttemptTicket{}, err
	}

	a := s.newAttempt(uuid.New(), qs)
	err = a.Engine.Start(engine.StartOptions{
		DurationMinutes: req.DurationMinutes,
		NegativeMarking: req.NegativeMarking,
		EnhancedTimer:   req.EnhancedTimer,
	})
	if err != nil {
		a.Engine.Close()
		return AttemptTicket{}, err
	}

	token, err := s.tokens.Issue(ctx, a.ID.String(), qs.ID.String())
	if err != nil {
		_ = a.Engine.Reset()
		a.Engine.Close()
		return AttemptTicket{}, err
	}

	a = s.register(a)
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("question_set_id", qs.ID.String()).
		Msg("Attempt registered")

	return AttemptTicket{AttemptID: a.ID.String(), Token: token, Status: a.Engine.Status()}, nil
}

// Get returns a live attempt.
func (s *AttemptService) Get(id uuid.UUID) (*Attempt, error) {
	s.mu.RLock()
	a, ok := s.attempts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, examerr.New(examerr.NotFound, "AttemptService.Get", "attempt %s is not live", id)
	}
	return a, nil
}

// Resume continues an attempt and reissues its token. A paused attempt in
// memory is resumed in place; an unknown one is rebuilt from its snapshot.
// Running and submitted attempts only get a fresh token.
func (s *AttemptService) Resume(ctx context.Context, id uuid.UUID) (AttemptTicket, error) {
	a, err := s.Get(id)
	if err == nil {
		if a.Engine.Phase() == engine.PhaseLanding {
			if err := a.Engine.Resume(ctx); err != nil {
				return AttemptTicket{}, err
			}
		}
	} else {
		if a, err = s.load(ctx, id); err != nil {
			return AttemptTicket{}, err
		}
	}

	token, err := s.tokens.Issue(ctx, a.ID.String(), a.Engine.QuestionSet().ID.String())
	if err != nil {
		return AttemptTicket{}, err
	}
	return AttemptTicket{AttemptID: a.ID.String(), Token: token, Status: a.Engine.Status()}, nil
}

func (s *AttemptService) load(ctx context.Context, id uuid.UUID) (*Attempt, error) {
	const op = "AttemptService.Resume"
	if s.store == nil {
		return nil, examerr.New(examerr.NotFound, op, "attempt %s is not live", id)
	}
	snap, err := s.store.Load(ctx, id.String())
	if err != nil {
		return nil, err
	}
	setID, err := uuid.Parse(snap.QuestionSetID)
	if err != nil {
		return nil, examerr.New(examerr.CorruptState, op, "snapshot has invalid question set id %q", snap.QuestionSetID)
	}
	qs, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}

	a := s.newAttempt(id, qs)
	if err := a.Engine.Resume(ctx); err != nil {
		a.Engine.Close()
		return nil, err
	}
	// A snapshot that was already finished restores without a submitted
	// event; the retention window then runs from this load.
	if a.Engine.Phase() == engine.PhaseSubmitted {
		a.markSubmitted(s.sched.Now())
	}
	return s.register(a), nil
}

// Reset discards an attempt, its snapshot and its token.
func (s *AttemptService) Reset(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	a, ok := s.attempts[id]
	delete(s.attempts, id)
	s.mu.Unlock()

	if ok {
		if err := a.Engine.Reset(); err != nil {
			return err
		}
		a.Engine.Close()
	} else if s.store != nil {
		if err := s.store.Delete(ctx, id.String()); err != nil {
			return err
		}
	}

	if err := s.tokens.Revoke(ctx, id.String()); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Failed to revoke attempt token")
	}
	s.log.Info().Str("attempt_id", id.String()).Msg("Attempt reset")
	return nil
}

// Len returns the number of live attempts.
func (s *AttemptService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

// Sweep evicts attempts submitted before now minus the retention window.
func (s *AttemptService) Sweep(now time.Time) int {
	cutoff := now.Add(-s.retention)

	s.mu.Lock()
	var evicted []*Attempt
	for id, a := range s.attempts {
		if a.submittedBefore(cutoff) {
			evicted = append(evicted, a)
			delete(s.attempts, id)
		}
	}
	s.mu.Unlock()

	for _, a := range evicted {
		a.Engine.Close()
	}
	return len(evicted)
}

// StartJanitor sweeps on every interval until ctx is cancelled.
func (s *AttemptService) StartJanitor(ctx context.Context, interval time.Duration) {
	s.log.Info().Dur("interval", interval).Msg("Attempt janitor started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.sched.Now()); n > 0 {
				s.log.Info().Int("evicted", n).Msg("Evicted submitted attempts")
			}
		}
	}
}

// Shutdown pauses running attempts so their final snapshot is written, then
// closes every engine.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	attempts := s.attempts
	s.attempts = make(map[uuid.UUID]*Attempt)
	s.mu.Unlock()

	for id, a := range attempts {
		if a.Engine.Phase() == engine.PhaseInProgress {
			if err := a.Engine.Pause(); err != nil && !errors.Is(err, examerr.ErrInvalidState) {
				s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Failed to pause attempt on shutdown")
			}
		}
		a.Engine.Close()
	}
	s.log.Info().Int("attempts", len(attempts)).Msg("Attempt registry closed")
}

func (s *AttemptService) newAttempt(id uuid.UUID, qs model.QuestionSet) *Attempt {
	a := &Attempt{ID: id, Hub: NewEventHub()}
	for _, l := range s.listeners {
		a.Hub.Subscribe(l)
	}
	a.Hub.Subscribe(engine.ListenerFunc(a.observe))
	a.Engine = engine.New(id.String(), qs, s.store, s.sched, s.root,
		engine.WithConfig(s.cfg),
		engine.WithListener(a.Hub),
	)
	return a
}

// register stores a unless another goroutine registered the same attempt
// first, in which case a is closed and the existing one returned.
func (s *AttemptService) register(a *Attempt) *Attempt {
	s.mu.Lock()
	existing, ok := s.attempts[a.ID]
	if !ok {
		s.attempts[a.ID] = a
	}
	s.mu.Unlock()

	if ok {
		a.Engine.Close()
		return existing
	}
	return a
}
