// Package engine drives a single exam attempt: navigation, timing, autosave,
// submission and post-submission review.
package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/review"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/session"
	"github.com/stemsi/exstem-engine/internal/timer"
)

// Phase is the navigation state of an attempt.
type Phase string

const (
	PhaseLanding    Phase = "landing"
	PhaseInProgress Phase = "in_progress"
	PhaseSubmitted  Phase = "submitted"
)

const (
	DefaultQuestionTimeLimit = 40 * time.Second
	DefaultAutosaveInterval  = 5 * time.Second
	DefaultSaveTimeout       = 3 * time.Second
)

// Config holds the engine cadences. Zero fields fall back to defaults.
type Config struct {
	QuestionTimeLimit    time.Duration
	AutosaveInterval     time.Duration
	ExamTickInterval     time.Duration
	QuestionTickInterval time.Duration
	SaveTimeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.QuestionTimeLimit <= 0 {
		c.QuestionTimeLimit = DefaultQuestionTimeLimit
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = DefaultAutosaveInterval
	}
	if c.ExamTickInterval <= 0 {
		c.ExamTickInterval = timer.DefaultExamTickInterval
	}
	if c.QuestionTickInterval <= 0 {
		c.QuestionTickInterval = timer.DefaultQuestionTickInterval
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = DefaultSaveTimeout
	}
	return c
}

// StartOptions configure a new attempt.
type StartOptions struct {
	DurationMinutes float64
	NegativeMarking bool
	EnhancedTimer   bool
}

// Move describes the outcome of a navigation command.
type Move struct {
	From int `json:"from"`
	To   int `json:"to"`
	// SubmitRequested is set when Next is called on the last question. The
	// cursor does not move; the caller decides whether to submit.
	SubmitRequested bool `json:"submit_requested"`
}

// Option configures an Engine.
type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// Engine owns one attempt. All mutations are serialized under mu; events are
// delivered after mu is released.
type Engine struct {
	attemptID string
	set       model.QuestionSet
	store     SnapshotStore
	sched     timer.Scheduler
	timers    *timer.Service
	scorer    *scoring.Scorer
	listener  Listener
	cfg       Config
	log       zerolog.Logger

	mu           sync.Mutex
	phase        Phase
	state        *session.State
	entryBase    int
	carry        []time.Duration
	examTimer    *timer.Handle
	qTimer       *timer.Handle
	examView     timer.Presenter
	questionView timer.Presenter
	stopSave     timer.CancelFunc
	stopRetry    timer.CancelFunc
	result       *model.Result
	reviewView   review.View
	closed       bool

	outbox      []Event
	dispatching bool

	saveMu   sync.Mutex
	saveSeq  uint64
	savedSeq uint64
	retry    *pendingWrite
}

// New creates an engine for attemptID over set. store may be nil, in which
// case nothing is persisted.
func New(attemptID string, set model.QuestionSet, store SnapshotStore, sched timer.Scheduler, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		attemptID: attemptID,
		set:       set,
		store:     store,
		sched:     sched,
		phase:     PhaseLanding,
		log:       log.With().Str("component", "engine").Str("attempt_id", attemptID).Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	e.cfg = e.cfg.withDefaults()
	e.timers = timer.NewService(sched,
		timer.WithExamTickInterval(e.cfg.ExamTickInterval),
		timer.WithQuestionTickInterval(e.cfg.QuestionTickInterval),
	)
	e.scorer = scoring.New(log)
	return e
}

func (e *Engine) AttemptID() string              { return e.attemptID }
func (e *Engine) QuestionSet() model.QuestionSet { return e.set }
