package timer

import (
	"sync"
	"time"
)

// ManualScheduler is a deterministic Scheduler whose clock only moves when
// told to. Callbacks run synchronously on the goroutine calling Advance.
type ManualScheduler struct {
	mu   sync.Mutex
	now  time.Time
	seq  int
	jobs []*manualJob
}

type manualJob struct {
	id        int
	interval  time.Duration
	next      time.Time
	fn        func(time.Time)
	cancelled bool
}

// NewManualScheduler returns a ManualScheduler frozen at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualScheduler) Every(interval time.Duration, fn func(now time.Time)) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	job := &manualJob{id: m.seq, interval: interval, next: m.now.Add(interval), fn: fn}
	m.jobs = append(m.jobs, job)

	return func() {
		m.mu.Lock()
		job.cancelled = true
		m.mu.Unlock()
	}
}

// Advance moves the clock forward by d, firing every tick that falls due in
// chronological order. Jobs registered or cancelled by a callback take effect
// immediately.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		job := m.nextDue(target)
		if job == nil {
			break
		}
		m.now = job.next
		job.next = job.next.Add(job.interval)
		now := m.now

		m.mu.Unlock()
		job.fn(now)
		m.mu.Lock()
	}

	m.now = target
	m.prune()
	m.mu.Unlock()
}

// Jump moves the clock forward by d without firing any tick, as when a
// backgrounded process misses its timers. Pending jobs resume one interval
// after the new time.
func (m *ManualScheduler) Jump(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)
	for _, j := range m.jobs {
		j.next = m.now.Add(j.interval)
	}
}

// Active returns the number of jobs that have not been cancelled.
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, j := range m.jobs {
		if !j.cancelled {
			n++
		}
	}
	return n
}

func (m *ManualScheduler) nextDue(target time.Time) *manualJob {
	var due *manualJob
	for _, j := range m.jobs {
		if j.cancelled || j.next.After(target) {
			continue
		}
		if due == nil || j.next.Before(due.next) || (j.next.Equal(due.next) && j.id < due.id) {
			due = j
		}
	}
	return due
}

func (m *ManualScheduler) prune() {
	live := m.jobs[:0]
	for _, j := range m.jobs {
		if !j.cancelled {
			live = append(live, j)
		}
	}
	m.jobs = live
}
