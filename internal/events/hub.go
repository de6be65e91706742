// Package events fans player notifications out to any number of
// subscribers and keeps a short history for late joiners.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultHistory is the number of events retained for Recent.
	DefaultHistory = 100
	// DefaultBufferSize is the per-subscriber channel capacity.
	DefaultBufferSize = 64
	// HeartbeatInterval is how often idle streams send a keepalive.
	HeartbeatInterval = 15 * time.Second
)

// Type names an event kind.
type Type string

const (
	TypeState    Type = "state"
	TypeError    Type = "error"
	TypeEnd      Type = "end"
	TypeOpen     Type = "open"
	TypeSeek     Type = "seek"
	// TypeProgress carries the playback position at a throttled rate.
	TypeProgress Type = "progress"
)

// Event is one player notification.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
	Fatal     bool      `json:"fatal,omitempty"`
	Position  float64   `json:"position"`
}

// HubStats summarizes what the hub has seen.
type HubStats struct {
	Total       int64          `json:"total"`
	ByType      map[Type]int64 `json:"by_type"`
	Subscribers int            `json:"subscribers"`
	Dropped     int64          `json:"dropped"`
}

// Subscriber receives events until its context ends or Unsubscribe is
// called, after which Events is closed.
type Subscriber struct {
	ID     string
	Events chan Event
	done   chan struct{}
}

// Hub is safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	history     []Event
	maxHistory  int
	subscribers map[string]*Subscriber
	total       int64
	byType      map[Type]int64
	dropped     int64
	now         func() time.Time
}

// NewHub creates a hub retaining up to history events.
func NewHub(history int) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{
		history:     make([]Event, 0, history),
		maxHistory:  history,
		subscribers: make(map[string]*Subscriber),
		byType:      make(map[Type]int64),
		now:         time.Now,
	}
}

// Publish stamps ev and delivers it to every subscriber without blocking.
// Subscribers whose buffer is full miss the event.
func (h *Hub) Publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}

	h.total++
	h.byType[ev.Type]++

	if len(h.history) >= h.maxHistory {
		h.history = h.history[1:]
	}
	h.history = append(h.history, ev)

	for _, sub := range h.subscribers {
		select {
		case sub.Events <- ev:
		default:
			h.dropped++
		}
	}
	return ev
}

// Subscribe registers a subscriber that is removed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan Event, DefaultBufferSize),
		done:   make(chan struct{}),
	}
	h.subscribers[sub.ID] = sub

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		h.Unsubscribe(sub.ID)
	}()
	return sub
}

// Unsubscribe removes a subscriber, closes its channel and ends the
// goroutine watching its context.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Events)
		close(sub.done)
		delete(h.subscribers, id)
	}
}

// Recent returns up to limit of the latest events, oldest first.
func (h *Hub) Recent(limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]Event, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// Stats returns counters and the current subscriber count.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byType := make(map[Type]int64, len(h.byType))
	for t, n := range h.byType {
		byType[t] = n
	}
	return HubStats{
		Total:       h.total,
		ByType:      byType,
		Subscribers: len(h.subscribers),
		Dropped:     h.dropped,
	}
}
