package timer

import (
	"sync"
	"time"
)

// Kind identifies one of the two independent countdowns.
type Kind string

const (
	KindExam     Kind = "exam"
	KindQuestion Kind = "question"
)

// Tick is delivered on every scheduler tick of a running handle.
type Tick struct {
	Kind      Kind
	Remaining time.Duration
	Elapsed   time.Duration
	Limit     time.Duration
	Expired   bool
}

// Callbacks are invoked outside the handle lock.
type Callbacks struct {
	OnTick   func(h *Handle, t Tick)
	OnExpire func(h *Handle)
}

// Handle is one running countdown.
type Handle struct {
	kind  Kind
	start time.Time
	limit time.Duration
	clock Clock
	cb    Callbacks

	mu      sync.Mutex
	cancel  CancelFunc
	stopped bool
	expired bool
	elapsed time.Duration
}

func newHandle(kind Kind, start time.Time, limit time.Duration, clock Clock, cb Callbacks) *Handle {
	return &Handle{kind: kind, start: start, limit: limit, clock: clock, cb: cb}
}

func (h *Handle) Kind() Kind           { return h.kind }
func (h *Handle) Start() time.Time     { return h.start }
func (h *Handle) Limit() time.Duration { return h.limit }

// Elapsed returns the elapsed time recorded at the last tick or at Stop.
func (h *Handle) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.elapsed
}

// Remaining recomputes the remaining time from the clock. A stopped handle
// reports the value frozen at Stop.
func (h *Handle) Remaining() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	elapsed := h.elapsed
	if !h.stopped {
		elapsed = h.clock.Now().Sub(h.start)
	}
	return remaining(h.limit, elapsed)
}

// Expired reports whether OnExpire has fired for this handle.
func (h *Handle) Expired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expired
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Stop cancels the countdown and returns the elapsed time observed right now.
// Subsequent calls return the same value.
func (h *Handle) Stop() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return h.elapsed
	}
	h.stopped = true
	h.elapsed = h.clock.Now().Sub(h.start)
	if h.elapsed < 0 {
		h.elapsed = 0
	}
	if h.cancel != nil {
		h.cancel()
	}
	return h.elapsed
}

func (h *Handle) fire(now time.Time) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	elapsed := now.Sub(h.start)
	if elapsed < 0 {
		elapsed = 0
	}
	h.elapsed = elapsed
	left := remaining(h.limit, elapsed)
	justExpired := left == 0 && !h.expired
	if justExpired {
		h.expired = true
	}
	tick := Tick{Kind: h.kind, Remaining: left, Elapsed: elapsed, Limit: h.limit, Expired: h.expired}
	h.mu.Unlock()

	if h.cb.OnTick != nil {
		h.cb.OnTick(h, tick)
	}
	if justExpired && h.cb.OnExpire != nil {
		h.cb.OnExpire(h)
	}
}

func remaining(limit, elapsed time.Duration) time.Duration {
	if left := limit - elapsed; left > 0 {
		return left
	}
	return 0
}
