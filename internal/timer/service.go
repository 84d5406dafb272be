package timer

import (
	"sync"
	"time"
)

const (
	DefaultExamTickInterval     = time.Second
	DefaultQuestionTickInterval = 100 * time.Millisecond
)

// Service keeps at most one exam and one question countdown alive.
type Service struct {
	sched            Scheduler
	examInterval     time.Duration
	questionInterval time.Duration

	mu       sync.Mutex
	exam     *Handle
	question *Handle
}

// Option configures a Service.
type Option func(*Service)

// WithExamTickInterval overrides the exam tick cadence. Values above one
// second are capped.
func WithExamTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 && d <= time.Second {
			s.examInterval = d
		}
	}
}

// WithQuestionTickInterval overrides the question tick cadence.
func WithQuestionTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.questionInterval = d
		}
	}
}

// NewService creates a timer Service on top of sched.
func NewService(sched Scheduler, opts ...Option) *Service {
	s := &Service{
		sched:            sched,
		examInterval:     DefaultExamTickInterval,
		questionInterval: DefaultQuestionTickInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now exposes the scheduler clock.
func (s *Service) Now() time.Time { return s.sched.Now() }

// StartExam starts the exam countdown measured from startedAt, stopping any
// previous exam countdown. startedAt may lie in the past when resuming.
func (s *Service) StartExam(startedAt time.Time, duration time.Duration, cb Callbacks) *Handle {
	h := newHandle(KindExam, startedAt, duration, s.sched, cb)

	s.mu.Lock()
	prev := s.exam
	s.exam = h
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	s.arm(h, s.examInterval)
	return h
}

// StartQuestion starts a fresh question countdown beginning now, stopping any
// previous question countdown.
func (s *Service) StartQuestion(limit time.Duration, cb Callbacks) *Handle {
	h := newHandle(KindQuestion, s.sched.Now(), limit, s.sched, cb)

	s.mu.Lock()
	prev := s.question
	s.question = h
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	s.arm(h, s.questionInterval)
	return h
}

// StopQuestion stops the active question countdown and returns its flushed
// elapsed time. ok is false when no countdown was running.
func (s *Service) StopQuestion() (elapsed time.Duration, ok bool) {
	s.mu.Lock()
	h := s.question
	s.question = nil
	s.mu.Unlock()

	if h == nil {
		return 0, false
	}
	return h.Stop(), true
}

// StopExam stops the active exam countdown.
func (s *Service) StopExam() {
	s.mu.Lock()
	h := s.exam
	s.exam = nil
	s.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// StopAll stops both countdowns.
func (s *Service) StopAll() {
	s.StopQuestion()
	s.StopExam()
}

// Exam returns the active exam handle, or nil.
func (s *Service) Exam() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// Question returns the active question handle, or nil.
func (s *Service) Question() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

func (s *Service) arm(h *Handle, interval time.Duration) {
	cancel := s.sched.Every(interval, h.fire)

	h.mu.Lock()
	h.cancel = cancel
	stopped := h.stopped
	h.mu.Unlock()

	// Stop may have raced with arming.
	if stopped {
		cancel()
	}
}
