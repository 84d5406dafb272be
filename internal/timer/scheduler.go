// Package timer implements the exam-wide and per-question countdowns.
//
// Countdowns never decrement a counter: every tick recomputes the remaining
// time from the wall-clock delta against the stored start timestamp, so
// delayed or missed ticks cannot skew the result.
package timer

import (
	"sync"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// CancelFunc stops a scheduled job. Calling it more than once is safe.
type CancelFunc func()

// Scheduler runs periodic callbacks. Callbacks may run on another goroutine
// and may still fire once after cancel returns; callers guard against that.
type Scheduler interface {
	Clock
	Every(interval time.Duration, fn func(now time.Time)) CancelFunc
}

type tickerScheduler struct{}

// NewScheduler returns a Scheduler backed by time.Ticker, one goroutine per job.
func NewScheduler() Scheduler { return tickerScheduler{} }

func (tickerScheduler) Now() time.Time { return time.Now() }

func (tickerScheduler) Every(interval time.Duration, fn func(now time.Time)) CancelFunc {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				select {
				case <-done:
					return
				default:
				}
				fn(now)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
