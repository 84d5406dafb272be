package timer

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type recorder struct {
	ticks   []Tick
	expired int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTick:   func(_ *Handle, t Tick) { r.ticks = append(r.ticks, t) },
		OnExpire: func(_ *Handle) { r.expired++ },
	}
}

func (r *recorder) last(t *testing.T) Tick {
	t.Helper()
	if len(r.ticks) == 0 {
		t.Fatal("no ticks recorded")
	}
	return r.ticks[len(r.ticks)-1]
}

func TestQuestionTimerTicksAndExpiresOnce(t *testing.T) {
	sched := NewManualScheduler(epoch)
	svc := NewService(sched)
	rec := &recorder{}

	h := svc.StartQuestion(2*time.Second, rec.callbacks())

	sched.Advance(time.Second)
	if got := len(rec.ticks); got != 10 {
		t.Fatalf("expected 10 ticks at 100ms cadence, got %d", got)
	}
	if got := rec.last(t).Remaining; got != time.Second {
		t.Errorf("expected 1s remaining, got %v", got)
	}

	sched.Advance(3 * time.Second)
	if rec.expired != 1 {
		t.Fatalf("expected exactly one expiry, got %d", rec.expired)
	}
	if !h.Expired() {
		t.Errorf("handle should report expired")
	}
	if got := rec.last(t).Elapsed; got != 4*time.Second {
		t.Errorf("elapsed keeps counting after expiry, expected 4s, got %v", got)
	}
	if got := rec.last(t).Remaining; got != 0 {
		t.Errorf("remaining must clamp at zero, got %v", got)
	}
}

func TestRemainingUsesWallClockNotTickCount(t *testing.T) {
	sched := NewManualScheduler(epoch)
	svc := NewService(sched)
	rec := &recorder{}

	svc.StartExam(epoch, time.Minute, rec.callbacks())
	sched.Advance(2 * time.Second)

	// Backgrounded: 30 seconds pass without a single tick.
	sched.Jump(30 * time.Second)
	sched.Advance(time.Second)

	if got := len(rec.ticks); got != 3 {
		t.Fatalf("expected 3 ticks, got %d", got)
	}
	if got := rec.last(t).Remaining; got != 27*time.Second {
		t.Errorf("expected 27s remaining after missed ticks, got %v", got)
	}
}

func TestExamTimerResumesFromStoredStart(t *testing.T) {
	sched := NewManualScheduler(epoch.Add(50 * time.Second))
	svc := NewService(sched)
	rec := &recorder{}

	h := svc.StartExam(epoch, time.Minute, rec.callbacks())
	if got := h.Remaining(); got != 10*time.Second {
		t.Fatalf("expected 10s remaining, got %v", got)
	}

	sched.Advance(10 * time.Second)
	if rec.expired != 1 {
		t.Errorf("expected expiry at the original deadline, got %d", rec.expired)
	}
}

func TestStartingSameKindStopsPrevious(t *testing.T) {
	sched := NewManualScheduler(epoch)
	svc := NewService(sched)
	first, second := &recorder{}, &recorder{}

	h1 := svc.StartQuestion(time.Minute, first.callbacks())
	sched.Advance(500 * time.Millisecond)
	h2 := svc.StartQuestion(time.Minute, second.callbacks())
	sched.Advance(time.Second)

	if !h1.Stopped() {
		t.Fatalf("previous question timer should be stopped")
	}
	if got := len(first.ticks); got != 5 {
		t.Errorf("old timer must stop ticking, got %d ticks", got)
	}
	if got := len(second.ticks); got != 10 {
		t.Errorf("expected 10 ticks on the new timer, got %d", got)
	}
	if svc.Question() != h2 {
		t.Errorf("service should track the newest handle")
	}
	if got := sched.Active(); got != 1 {
		t.Errorf("expected one live job, got %d", got)
	}

	// Exam and question timers are independent.
	svc.StartExam(sched.Now(), time.Hour, Callbacks{})
	if svc.Question() != h2 || h2.Stopped() {
		t.Errorf("starting the exam timer must not touch the question timer")
	}
}

func TestStopFlushesAndIsIdempotent(t *testing.T) {
	sched := NewManualScheduler(epoch)
	svc := NewService(sched)
	h := svc.StartQuestion(time.Minute, Callbacks{})

	sched.Advance(1250 * time.Millisecond)
	sched.Jump(300 * time.Millisecond)

	elapsed, ok := svc.StopQuestion()
	if !ok {
		t.Fatal("expected a running question timer")
	}
	if elapsed != 1550*time.Millisecond {
		t.Errorf("stop must flush the clock value, expected 1.55s, got %v", elapsed)
	}
	if again := h.Stop(); again != elapsed {
		t.Errorf("second stop returned %v, expected %v", again, elapsed)
	}
	if _, ok := svc.StopQuestion(); ok {
		t.Errorf("no question timer should remain")
	}
	if got := sched.Active(); got != 0 {
		t.Errorf("expected scheduler jobs to be cancelled, got %d", got)
	}
}

func TestBasicPresenterLevels(t *testing.T) {
	exam := NewPresenter(KindExam, false)
	question := NewPresenter(KindQuestion, false)

	tests := []struct {
		name string
		p    Presenter
		left time.Duration
		text string
		lvl  Level
	}{
		{"exam normal", exam, 30 * time.Minute, "30:00", LevelNormal},
		{"exam warning", exam, 9*time.Minute + 59*time.Second, "09:59", LevelWarning},
		{"exam boundary is still warning", exam, 5 * time.Minute, "05:00", LevelWarning},
		{"exam danger", exam, 4 * time.Minute, "04:00", LevelDanger},
		{"question normal", question, 35 * time.Second, "00:35", LevelNormal},
		{"question warning inclusive", question, 20 * time.Second, "00:20", LevelWarning},
		{"question danger inclusive", question, 10 * time.Second, "00:10", LevelDanger},
		{"floors partial seconds", question, 39900 * time.Millisecond, "00:39", LevelNormal},
		{"time up", question, 0, TimeUpText, LevelDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.p.Present(Tick{Remaining: tt.left})
			if d.Text != tt.text || d.Level != tt.lvl {
				t.Errorf("got %q/%s, want %q/%s", d.Text, d.Level, tt.text, tt.lvl)
			}
			if d.Progress != nil || d.Alert != nil {
				t.Errorf("basic presenter adds no progress or alerts")
			}
		})
	}
}

func TestEnhancedPresenterAlertsOnce(t *testing.T) {
	p := NewPresenter(KindQuestion, true)
	limit := 40 * time.Second

	d := p.Present(Tick{Remaining: 30 * time.Second, Elapsed: 10 * time.Second, Limit: limit})
	if d.Progress == nil || *d.Progress != 25 {
		t.Fatalf("expected 25%% progress, got %v", d.Progress)
	}
	if d.Alert != nil {
		t.Fatalf("no alert expected yet")
	}

	d = p.Present(Tick{Remaining: 19 * time.Second, Elapsed: 21 * time.Second, Limit: limit})
	if d.Alert == nil || *d.Alert != 20*time.Second {
		t.Fatalf("expected 20s alert, got %v", d.Alert)
	}

	d = p.Present(Tick{Remaining: 18 * time.Second, Elapsed: 22 * time.Second, Limit: limit})
	if d.Alert != nil {
		t.Errorf("alert must fire only once, got %v", *d.Alert)
	}

	d = p.Present(Tick{Remaining: 0, Elapsed: 50 * time.Second, Limit: limit})
	if d.Alert == nil || *d.Alert != 10*time.Second {
		t.Errorf("expected 10s alert when jumping past it")
	}
	if *d.Progress != 100 {
		t.Errorf("progress must cap at 100, got %v", *d.Progress)
	}
}
