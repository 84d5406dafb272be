package engine

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/review"
	"github.com/stemsi/exstem-engine/internal/timer"
)

// GridCell is one entry of the question palette.
type GridCell struct {
	Index      int  `json:"index"`
	Answered   bool `json:"answered"`
	Bookmarked bool `json:"bookmarked"`
	Current    bool `json:"current"`
}

// Status summarizes an attempt for polling clients.
type Status struct {
	AttemptID           string     `json:"attempt_id"`
	Phase               Phase      `json:"phase"`
	CurrentQuestion     int        `json:"current_question"`
	TotalQuestions      int        `json:"total_questions"`
	Answered            int        `json:"answered"`
	ExamRemainingMs     int64      `json:"exam_remaining_ms"`
	QuestionRemainingMs int64      `json:"question_remaining_ms"`
	Deadline            *time.Time `json:"deadline,omitempty"`
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Snapshot returns the attempt in its persisted shape, including the time
// accrued on the current question so far.
func (e *Engine) Snapshot() (model.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return model.Snapshot{}, false
	}
	return e.liveSnapshot(), true
}

// liveSnapshot folds the running question countdown into the state snapshot
// without committing it. Callers hold e.mu.
func (e *Engine) liveSnapshot() model.Snapshot {
	snap := e.state.Snapshot()
	if e.qTimer != nil {
		elapsed := e.sched.Now().Sub(e.qTimer.Start())
		if elapsed > 0 {
			total := e.carryOf(snap.CurrentQuestion) + elapsed
			snap.TimeSpentSeconds[snap.CurrentQuestion] = e.entryBase + int(total/time.Second)
		}
	}
	return snap
}

// CurrentQuestion returns the active question without its answer key, along
// with the candidate's current selection.
func (e *Engine) CurrentQuestion() (model.QuestionForCandidate, *int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return model.QuestionForCandidate{}, nil, examerr.New(examerr.InvalidState, "engine.CurrentQuestion", "attempt not started")
	}
	i := e.state.Current()
	q := e.set.Questions[i].ForCandidate(i)
	if a, ok := e.state.Answer(i); ok {
		return q, &a, nil
	}
	return q, nil, nil
}

// ReviewGrid returns the question palette of the attempt.
func (e *Engine) ReviewGrid() []GridCell {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil
	}
	cells := make([]GridCell, e.state.Count())
	for i := range cells {
		_, answered := e.state.Answer(i)
		cells[i] = GridCell{
			Index:      i,
			Answered:   answered,
			Bookmarked: e.state.Bookmarked(i),
			Current:    i == e.state.Current(),
		}
	}
	return cells
}

// Remaining returns the time left on a countdown. The exam countdown is
// derived from the deadline even while no timer runs.
func (e *Engine) Remaining(kind timer.Kind) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining(kind)
}

func (e *Engine) remaining(kind timer.Kind) time.Duration {
	switch kind {
	case timer.KindQuestion:
		if e.qTimer != nil {
			return e.qTimer.Remaining()
		}
	case timer.KindExam:
		if e.examTimer != nil {
			return e.examTimer.Remaining()
		}
		if e.state != nil && !e.state.Finished() {
			if left := e.state.Deadline().Sub(e.sched.Now()); left > 0 {
				return left
			}
		}
	}
	return 0
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{AttemptID: e.attemptID, Phase: e.phase, TotalQuestions: e.set.Len()}
	if e.state == nil {
		return st
	}
	deadline := e.state.Deadline()
	st.CurrentQuestion = e.state.Current()
	st.Answered = e.state.AnsweredCount()
	st.Deadline = &deadline
	st.ExamRemainingMs = e.remaining(timer.KindExam).Milliseconds()
	st.QuestionRemainingMs = e.remaining(timer.KindQuestion).Milliseconds()
	return st
}

// Result returns the graded result once submitted.
func (e *Engine) Result() (model.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result == nil {
		return model.Result{}, false
	}
	return *e.result, true
}

// FilteredView projects the result through p without touching the review
// cursor.
func (e *Engine) FilteredView(p review.Predicate) (review.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result == nil {
		return review.View{}, examerr.New(examerr.InvalidState, "engine.FilteredView", "attempt not submitted")
	}
	return review.Project(*e.result, p), nil
}

// ApplyFilter replaces the review view, keeping the selected question when it
// matches p.
func (e *Engine) ApplyFilter(p review.Predicate) (review.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result == nil {
		return review.View{}, examerr.New(examerr.InvalidState, "engine.ApplyFilter", "attempt not submitted")
	}
	e.reviewView = review.Reproject(*e.result, e.reviewView, p)
	return e.reviewView, nil
}

// NavigateReview moves the review cursor. moved is false at either end.
func (e *Engine) NavigateReview(dir review.Direction) (v review.View, moved bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result == nil {
		return review.View{}, false, examerr.New(examerr.InvalidState, "engine.NavigateReview", "attempt not submitted")
	}
	e.reviewView, moved = e.reviewView.Navigate(dir)
	return e.reviewView, moved, nil
}

// ReviewView returns the current review view.
func (e *Engine) ReviewView() (review.View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reviewView, e.result != nil
}
