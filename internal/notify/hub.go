package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub broadcasts events to in-process subscribers.
//
// Each subscriber owns a buffered channel. A subscriber whose buffer is full
// misses the event; Publish never waits on a reader.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	dropped atomic.Int64
}

type subscription struct {
	ch     chan Event
	filter func(Event) bool
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a subscriber. A nil filter accepts every event.
// The returned cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int, filter func(Event) bool) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{ch: make(chan Event, buffer), filter: filter}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish offers ev to every matching subscriber.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
