package service

import (
	"sort"
	"sync"

	"github.com/stemsi/exstem-engine/internal/engine"
)

// EventHub fans one engine's events out to any number of subscribers, in
// subscription order.
type EventHub struct {
	mu   sync.RWMutex
	next int
	subs map[int]engine.Listener
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int]engine.Listener)}
}

// Subscribe registers l and returns a func that removes it. The returned func
// is safe to call more than once.
func (h *EventHub) Subscribe(l engine.Listener) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = l
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (h *EventHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// OnEvent implements engine.Listener.
func (h *EventHub) OnEvent(ev engine.Event) {
	h.mu.RLock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	targets := make([]engine.Listener, len(ids))
	for i, id := range ids {
		targets[i] = h.subs[id]
	}
	h.mu.RUnlock()

	for _, l := range targets {
		l.OnEvent(ev)
	}
}
