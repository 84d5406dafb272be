package engine

import (
	"context"
	"time"

	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/review"
	"github.com/stemsi/exstem-engine/internal/session"
	"github.com/stemsi/exstem-engine/internal/timer"
)

// Start begins a fresh attempt and enters the first question.
func (e *Engine) Start(opts StartOptions) error {
	e.mu.Lock()
	if err := e.checkOpen("engine.Start"); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.phase != PhaseLanding || e.state != nil {
		e.mu.Unlock()
		return examerr.New(examerr.InvalidState, "engine.Start", "attempt already %s", e.phase)
	}

	st, err := session.Start(e.set.Len(), opts.DurationMinutes, session.Options{
		AttemptID:       e.attemptID,
		QuestionSetID:   e.set.ID.String(),
		NegativeMarking: opts.NegativeMarking,
		EnhancedTimer:   opts.EnhancedTimer,
	}, e.sched.Now())
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = st
	e.run()
	w := e.captureSave("start")
	e.mu.Unlock()

	e.log.Info().Int("questions", st.Count()).Float64("duration_minutes", st.DurationMinutes()).Msg("Attempt started")
	e.persist(w)
	e.dispatch()
	return nil
}

// Next moves to the following question. On the last question it reports
// SubmitRequested instead of moving.
func (e *Engine) Next() (Move, error) {
	e.mu.Lock()
	mv, err := e.step("engine.Next", 1)
	e.mu.Unlock()
	e.dispatch()
	return mv, err
}

// Previous moves to the preceding question.
func (e *Engine) Previous() (Move, error) {
	e.mu.Lock()
	mv, err := e.step("engine.Previous", -1)
	e.mu.Unlock()
	e.dispatch()
	return mv, err
}

// GoTo jumps directly to question i.
func (e *Engine) GoTo(i int) (Move, error) {
	e.mu.Lock()
	mv, err := e.goTo("engine.GoTo", i)
	e.mu.Unlock()
	e.dispatch()
	return mv, err
}

func (e *Engine) step(op string, delta int) (Move, error) {
	if err := e.checkRunning(op); err != nil {
		return Move{}, err
	}
	cur := e.state.Current()
	if delta > 0 && cur == e.state.Count()-1 {
		return Move{From: cur, To: cur, SubmitRequested: true}, nil
	}
	return e.goTo(op, cur+delta)
}

func (e *Engine) goTo(op string, i int) (Move, error) {
	if err := e.checkRunning(op); err != nil {
		return Move{}, err
	}
	cur := e.state.Current()
	if i < 0 || i >= e.state.Count() {
		return Move{}, examerr.New(examerr.OutOfRange, op, "index %d not in [0, %d)", i, e.state.Count())
	}
	if i == cur {
		return Move{From: cur, To: cur}, nil
	}

	// The time on the question being left is committed before the cursor moves.
	e.flushQuestionTime()
	if err := e.state.SetCurrentQuestion(i); err != nil {
		return Move{}, err
	}
	e.enterQuestion(i)
	return Move{From: cur, To: i}, nil
}

// SelectOption answers the current question.
func (e *Engine) SelectOption(option int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "engine.SelectOption"
	if err := e.checkRunning(op); err != nil {
		return err
	}
	cur := e.state.Current()
	if n := len(e.set.Questions[cur].Options); n > 0 && option >= n {
		return examerr.New(examerr.OutOfRange, op, "option %d not in [0, %d)", option, n)
	}
	return e.state.SetAnswer(cur, option)
}

// ClearAnswer unanswers the current question.
func (e *Engine) ClearAnswer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("engine.ClearAnswer"); err != nil {
		return err
	}
	return e.state.ClearAnswer(e.state.Current())
}

// ToggleBookmark flips the bookmark on the current question.
func (e *Engine) ToggleBookmark() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("engine.ToggleBookmark"); err != nil {
		return false, err
	}
	return e.state.ToggleBookmark(e.state.Current())
}

// Submit ends the attempt and grades it. A second call fails with
// AlreadyFinished and leaves the attempt untouched.
func (e *Engine) Submit() (model.Result, error) {
	e.mu.Lock()
	const op = "engine.Submit"
	if err := e.checkOpen(op); err != nil {
		e.mu.Unlock()
		return model.Result{}, err
	}
	if e.phase == PhaseSubmitted {
		e.mu.Unlock()
		return model.Result{}, examerr.New(examerr.AlreadyFinished, op, "attempt already submitted")
	}
	if e.phase != PhaseInProgress {
		e.mu.Unlock()
		return model.Result{}, examerr.New(examerr.InvalidState, op, "attempt not in progress")
	}
	res, err := e.submit(e.sched.Now(), false)
	w := e.captureSave("submit")
	e.mu.Unlock()

	e.persist(w)
	e.dispatch()
	return res, err
}

// Pause leaves the attempt without submitting. Timers and autosave stop, the
// snapshot is saved and a later Resume picks up where the candidate left. The
// exam deadline is not extended.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if err := e.checkRunning("engine.Pause"); err != nil {
		e.mu.Unlock()
		return err
	}
	e.flushQuestionTime()
	e.halt()
	e.phase = PhaseLanding
	e.emit(Event{Type: EventPaused, Index: e.state.Current()})
	w := e.captureSave("pause")
	e.mu.Unlock()

	e.persist(w)
	e.dispatch()
	return nil
}

// Reset discards the attempt and its stored snapshot. The engine returns to
// the landing phase and may be started again.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if err := e.checkOpen("engine.Reset"); err != nil {
		e.mu.Unlock()
		return err
	}
	e.halt()
	e.phase = PhaseLanding
	e.state = nil
	e.result = nil
	e.reviewView = review.View{}
	e.entryBase = 0
	e.carry = nil
	e.emit(Event{Type: EventReset})
	w := e.captureDelete()
	e.mu.Unlock()

	e.persist(w)
	e.dispatch()
	return nil
}

// Resume continues a paused attempt, or restores it from the store. A stored
// attempt that was already submitted is restored in the submitted phase; one
// whose deadline passed while away is submitted as of its deadline.
func (e *Engine) Resume(ctx context.Context) error {
	const op = "engine.Resume"

	e.mu.Lock()
	if err := e.checkOpen(op); err != nil {
		e.mu.Unlock()
		return err
	}
	switch {
	case e.phase == PhaseSubmitted:
		e.mu.Unlock()
		return examerr.New(examerr.AlreadyFinished, op, "attempt already submitted")
	case e.phase == PhaseInProgress:
		e.mu.Unlock()
		return examerr.New(examerr.InvalidState, op, "attempt already in progress")
	}
	if e.state != nil {
		w := e.restore(e.state)
		e.mu.Unlock()
		e.persist(w)
		e.dispatch()
		return nil
	}
	e.mu.Unlock()

	if e.store == nil {
		return examerr.New(examerr.NotFound, op, "no snapshot store configured")
	}
	snap, err := e.store.Load(ctx, e.attemptID)
	if err != nil {
		return err
	}
	if snap.QuestionSetID != "" && snap.QuestionSetID != e.set.ID.String() {
		return examerr.New(examerr.CorruptState, op, "snapshot belongs to question set %s", snap.QuestionSetID)
	}
	st, err := session.FromSnapshot(snap, e.set.Len())
	if err != nil {
		return err
	}

	e.mu.Lock()
	if err := e.checkOpen(op); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.phase != PhaseLanding || e.state != nil {
		e.mu.Unlock()
		return examerr.New(examerr.InvalidState, op, "attempt changed while loading")
	}
	w := e.restore(st)
	e.mu.Unlock()

	e.log.Info().Str("phase", string(e.Phase())).Msg("Attempt restored from snapshot")
	e.persist(w)
	e.dispatch()
	return nil
}

// restore installs st and moves to the phase its timestamps imply. Callers
// hold e.mu.
func (e *Engine) restore(st *session.State) *pendingWrite {
	e.state = st

	if st.Finished() {
		e.phase = PhaseSubmitted
		if err := e.grade(); err != nil {
			e.log.Error().Err(err).Msg("Failed to grade restored attempt")
		}
		return nil
	}

	now := e.sched.Now()
	if !now.Before(st.Deadline()) {
		e.phase = PhaseInProgress
		_, _ = e.submit(st.Deadline(), true)
		return e.captureSave("expired while away")
	}

	e.run()
	return nil
}

// Close stops both timers, the autosave loop and any pending save retry,
// then makes one last attempt at a write that has not landed yet. Callbacks
// that fire after Close returns are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.halt()
	e.cancelRetry()
	e.outbox = nil
	e.mu.Unlock()

	if w := e.takeRetry(); w != nil && !e.write(w) {
		e.log.Error().Str("reason", w.reason).Msg("Final snapshot lost on close")
	}
}

// run enters the in-progress phase on the current question. Callers hold e.mu.
func (e *Engine) run() {
	e.phase = PhaseInProgress
	e.examView = timer.NewPresenter(timer.KindExam, e.state.EnhancedTimer())
	e.examTimer = e.timers.StartExam(e.state.TestStart(), e.state.Duration(), timer.Callbacks{
		OnTick:   e.onExamTick,
		OnExpire: e.onExamExpire,
	})
	e.enterQuestion(e.state.Current())
	e.startAutosave()
}

// halt stops every timer and the autosave loop. Callers hold e.mu.
func (e *Engine) halt() {
	e.timers.StopAll()
	e.examTimer = nil
	e.qTimer = nil
	e.stopAutosave()
}

// enterQuestion starts a fresh countdown for question i, even if its previous
// countdown expired. Callers hold e.mu.
func (e *Engine) enterQuestion(i int) {
	e.entryBase = e.state.TimeSpent(i)
	e.questionView = timer.NewPresenter(timer.KindQuestion, e.state.EnhancedTimer())
	e.qTimer = e.timers.StartQuestion(e.questionLimit(i), timer.Callbacks{
		OnTick:   e.onQuestionTick,
		OnExpire: e.onQuestionExpire,
	})
	e.emit(Event{Type: EventQuestionChanged, Index: i})
}

// flushQuestionTime stops the question countdown and commits the cumulative
// time of the current question. Callers hold e.mu.
func (e *Engine) flushQuestionTime() {
	elapsed, ok := e.timers.StopQuestion()
	e.qTimer = nil
	if !ok {
		return
	}
	cur := e.state.Current()
	total := e.carryOf(cur) + elapsed
	if err := e.state.UpdateTimeSpent(cur, e.entryBase+int(total/time.Second)); err != nil {
		e.log.Error().Err(err).Int("question", cur).Msg("Failed to commit time spent")
		return
	}
	e.carry[cur] = total % time.Second
	e.entryBase = e.state.TimeSpent(cur)
}

// carryOf returns the sub-second time of question i not yet committed as a
// whole second. Callers hold e.mu.
func (e *Engine) carryOf(i int) time.Duration {
	if len(e.carry) != e.state.Count() {
		e.carry = make([]time.Duration, e.state.Count())
	}
	return e.carry[i]
}

// submit freezes and grades the attempt, ending at end. Callers hold e.mu.
func (e *Engine) submit(end time.Time, forced bool) (model.Result, error) {
	if e.qTimer != nil {
		e.flushQuestionTime()
	}
	e.halt()
	if err := e.state.Finish(end); err != nil {
		return model.Result{}, err
	}
	e.phase = PhaseSubmitted
	if err := e.grade(); err != nil {
		e.log.Error().Err(err).Msg("Failed to grade attempt")
		return model.Result{}, err
	}
	res := *e.result
	e.emit(Event{Type: EventSubmitted, Result: &res, Forced: forced})
	if forced {
		e.log.Info().Float64("score", res.Score).Msg("Attempt submitted on time up")
	} else {
		e.log.Info().Float64("score", res.Score).Msg("Attempt submitted")
	}
	return res, nil
}

// grade scores the frozen state and opens the default review view. Callers
// hold e.mu.
func (e *Engine) grade() error {
	res, err := e.scorer.Score(e.set, e.state.Snapshot())
	if err != nil {
		return err
	}
	e.result = &res
	e.reviewView = review.Project(res, review.Predicate{})
	return nil
}

func (e *Engine) questionLimit(i int) time.Duration {
	if l := e.set.Questions[i].PerQuestionTimeLimitSeconds; l != nil && *l > 0 {
		return time.Duration(*l) * time.Second
	}
	return e.cfg.QuestionTimeLimit
}

func (e *Engine) onExamTick(h *timer.Handle, t timer.Tick) {
	e.mu.Lock()
	if e.closed || h != e.examTimer {
		e.mu.Unlock()
		return
	}
	e.emit(Event{Type: EventTimerTick, Kind: t.Kind, Remaining: t.Remaining, Display: e.examView.Present(t)})
	e.mu.Unlock()
	e.dispatch()
}

func (e *Engine) onQuestionTick(h *timer.Handle, t timer.Tick) {
	e.mu.Lock()
	if e.closed || h != e.qTimer {
		e.mu.Unlock()
		return
	}
	e.emit(Event{Type: EventTimerTick, Kind: t.Kind, Remaining: t.Remaining, Display: e.questionView.Present(t)})
	e.mu.Unlock()
	e.dispatch()
}

// onQuestionExpire only flips the countdown into its time-up state; the
// candidate stays on the question.
func (e *Engine) onQuestionExpire(h *timer.Handle) {
	e.mu.Lock()
	if e.closed || h != e.qTimer {
		e.mu.Unlock()
		return
	}
	e.emit(Event{Type: EventTimerExpired, Kind: timer.KindQuestion})
	e.mu.Unlock()
	e.dispatch()
}

// onExamExpire forces submission.
func (e *Engine) onExamExpire(h *timer.Handle) {
	e.mu.Lock()
	if e.closed || h != e.examTimer || e.phase != PhaseInProgress {
		e.mu.Unlock()
		return
	}
	e.emit(Event{Type: EventTimerExpired, Kind: timer.KindExam})
	_, _ = e.submit(e.sched.Now(), true)
	w := e.captureSave("time up")
	e.mu.Unlock()

	e.persist(w)
	e.dispatch()
}

func (e *Engine) checkOpen(op string) error {
	if e.closed {
		return examerr.New(examerr.InvalidState, op, "engine closed")
	}
	return nil
}

func (e *Engine) checkRunning(op string) error {
	if err := e.checkOpen(op); err != nil {
		return err
	}
	if e.phase != PhaseInProgress {
		return examerr.New(examerr.InvalidState, op, "attempt is %s", e.phase)
	}
	return nil
}
