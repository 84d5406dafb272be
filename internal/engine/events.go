package engine

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/timer"
)

// EventType names an outbound engine event.
type EventType string

const (
	EventQuestionChanged EventType = "question_changed"
	EventTimerTick       EventType = "timer_tick"
	EventTimerExpired    EventType = "timer_expired"
	EventSubmitted       EventType = "submitted"
	EventPaused          EventType = "paused"
	EventReset           EventType = "reset"
)

// Event is delivered to the Listener in the order the engine produced it.
type Event struct {
	Type      EventType
	AttemptID string
	At        time.Time

	// question_changed
	Index int

	// timer_tick, timer_expired
	Kind      timer.Kind
	Remaining time.Duration
	Display   timer.Display

	// submitted
	Result *model.Result
	Forced bool
}

// Listener observes an engine. OnEvent runs without the engine lock held and
// may call back into the engine.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// emit queues ev. A tick replaces an undelivered tick of the same kind, so a
// slow listener sees the latest countdown instead of a backlog; the older
// tick's one-shot alert is kept. Callers hold e.mu.
func (e *Engine) emit(ev Event) {
	ev.AttemptID = e.attemptID
	if ev.At.IsZero() {
		ev.At = e.sched.Now()
	}
	if ev.Type == EventTimerTick {
		for i, q := range e.outbox {
			if q.Type != EventTimerTick || q.Kind != ev.Kind {
				continue
			}
			if ev.Display.Alert == nil {
				ev.Display.Alert = q.Display.Alert
			}
			e.outbox = append(e.outbox[:i], e.outbox[i+1:]...)
			break
		}
	}
	e.outbox = append(e.outbox, ev)
}

// dispatch drains the outbox. Only one goroutine delivers at a time so events
// keep their order; events queued by a re-entrant call are picked up by the
// loop already running.
func (e *Engine) dispatch() {
	e.mu.Lock()
	if e.dispatching {
		e.mu.Unlock()
		return
	}
	e.dispatching = true
	for len(e.outbox) > 0 {
		ev := e.outbox[0]
		e.outbox = e.outbox[1:]
		l := e.listener
		e.mu.Unlock()

		if l != nil {
			l.OnEvent(ev)
		}

		e.mu.Lock()
	}
	e.outbox = nil
	e.dispatching = false
	e.mu.Unlock()
}
