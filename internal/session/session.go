// Package session holds the authoritative, serializable record of an attempt.
package session

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/examerr"
)

// Options tunes an attempt at start.
type Options struct {
	AttemptID       string
	QuestionSetID   string
	NegativeMarking bool
	EnhancedTimer   bool
}

// State is a single attempt. It is not safe for concurrent use; the engine
// serializes every call.
type State struct {
	attemptID       string
	questionSetID   string
	testStart       time.Time
	testEnd         *time.Time
	current         int
	answers         []*int
	bookmarked      []bool
	timeSpent       []int
	durationMinutes float64
	negativeMarking bool
	enhancedTimer   bool
}

// Start initializes a fresh attempt of questionCount questions.
func Start(questionCount int, durationMinutes float64, opts Options, now time.Time) (*State, error) {
	if questionCount <= 0 {
		return nil, examerr.New(examerr.InvalidConfiguration, "session.Start", "question count must be positive, got %d", questionCount)
	}
	if !(durationMinutes > 0) {
		return nil, examerr.New(examerr.InvalidConfiguration, "session.Start", "duration must be positive, got %v minutes", durationMinutes)
	}

	return &State{
		attemptID:       opts.AttemptID,
		questionSetID:   opts.QuestionSetID,
		testStart:       truncateMillis(now),
		answers:         make([]*int, questionCount),
		bookmarked:      make([]bool, questionCount),
		timeSpent:       make([]int, questionCount),
		durationMinutes: durationMinutes,
		negativeMarking: opts.NegativeMarking,
		enhancedTimer:   opts.EnhancedTimer,
	}, nil
}

func (s *State) AttemptID() string        { return s.attemptID }
func (s *State) QuestionSetID() string    { return s.questionSetID }
func (s *State) Count() int               { return len(s.answers) }
func (s *State) Current() int             { return s.current }
func (s *State) TestStart() time.Time     { return s.testStart }
func (s *State) DurationMinutes() float64 { return s.durationMinutes }
func (s *State) NegativeMarking() bool    { return s.negativeMarking }
func (s *State) EnhancedTimer() bool      { return s.enhancedTimer }
func (s *State) Finished() bool           { return s.testEnd != nil }

// Duration returns the exam duration as a time.Duration.
func (s *State) Duration() time.Duration {
	return time.Duration(s.durationMinutes * float64(time.Minute))
}

// Deadline is the instant the exam timer runs out.
func (s *State) Deadline() time.Time { return s.testStart.Add(s.Duration()) }

// TestEnd returns the submission instant, if any.
func (s *State) TestEnd() (time.Time, bool) {
	if s.testEnd == nil {
		return time.Time{}, false
	}
	return *s.testEnd, true
}

// Answer returns the selected option of question i.
func (s *State) Answer(i int) (int, bool) {
	if !s.inRange(i) || s.answers[i] == nil {
		return 0, false
	}
	return *s.answers[i], true
}

func (s *State) Bookmarked(i int) bool { return s.inRange(i) && s.bookmarked[i] }

func (s *State) TimeSpent(i int) int {
	if !s.inRange(i) {
		return 0
	}
	return s.timeSpent[i]
}

// SetCurrentQuestion moves the cursor.
func (s *State) SetCurrentQuestion(i int) error {
	if err := s.checkIndex("session.SetCurrentQuestion", i); err != nil {
		return err
	}
	if err := s.checkOpen("session.SetCurrentQuestion"); err != nil {
		return err
	}
	s.current = i
	return nil
}

// SetAnswer records option for question i.
func (s *State) SetAnswer(i, option int) error {
	if err := s.checkOpen("session.SetAnswer"); err != nil {
		return err
	}
	if err := s.checkIndex("session.SetAnswer", i); err != nil {
		return err
	}
	if option < 0 {
		return examerr.New(examerr.OutOfRange, "session.SetAnswer", "option %d is negative", option)
	}
	opt := option
	s.answers[i] = &opt
	return nil
}

// ClearAnswer marks question i unanswered.
func (s *State) ClearAnswer(i int) error {
	if err := s.checkOpen("session.ClearAnswer"); err != nil {
		return err
	}
	if err := s.checkIndex("session.ClearAnswer", i); err != nil {
		return err
	}
	s.answers[i] = nil
	return nil
}

// ToggleBookmark flips the bookmark of question i and returns the new value.
func (s *State) ToggleBookmark(i int) (bool, error) {
	if err := s.checkOpen("session.ToggleBookmark"); err != nil {
		return false, err
	}
	if err := s.checkIndex("session.ToggleBookmark", i); err != nil {
		return false, err
	}
	s.bookmarked[i] = !s.bookmarked[i]
	return s.bookmarked[i], nil
}

// UpdateTimeSpent stores the cumulative seconds spent on question i. It sets
// the value; callers pass the running total for the active question.
func (s *State) UpdateTimeSpent(i, seconds int) error {
	if err := s.checkOpen("session.UpdateTimeSpent"); err != nil {
		return err
	}
	if err := s.checkIndex("session.UpdateTimeSpent", i); err != nil {
		return err
	}
	if seconds < 0 {
		return examerr.New(examerr.OutOfRange, "session.UpdateTimeSpent", "negative time %d", seconds)
	}
	s.timeSpent[i] = seconds
	return nil
}

// Finish freezes the attempt.
func (s *State) Finish(now time.Time) error {
	if s.testEnd != nil {
		return examerr.New(examerr.AlreadyFinished, "session.Finish", "attempt ended at %s", s.testEnd.Format(time.RFC3339))
	}
	end := truncateMillis(now)
	s.testEnd = &end
	return nil
}

// AnsweredCount returns how many questions carry an answer.
func (s *State) AnsweredCount() int {
	n := 0
	for _, a := range s.answers {
		if a != nil {
			n++
		}
	}
	return n
}

func (s *State) inRange(i int) bool { return i >= 0 && i < len(s.answers) }

func (s *State) checkIndex(op string, i int) error {
	if !s.inRange(i) {
		return examerr.New(examerr.OutOfRange, op, "index %d not in [0, %d)", i, len(s.answers))
	}
	return nil
}

func (s *State) checkOpen(op string) error {
	if s.testEnd != nil {
		return examerr.New(examerr.InvalidState, op, "attempt already submitted")
	}
	return nil
}

func truncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
