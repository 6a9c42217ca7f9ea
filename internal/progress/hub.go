// Package progress fans out pipeline lifecycle events to subscribers keyed
// by correlation id. Each session follows started → progress* → exactly one
// of completed/failed; the hub enforces that ordering so transports never
// see a percentage move backwards or an event after a terminal state.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names one lifecycle stage.
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Terminal reports whether t ends a session.
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed
}

// Event is one lifecycle notification.
type Event struct {
	Type          EventType `json:"type"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Stage         string    `json:"stage,omitempty"`
	Percent       int       `json:"percent"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// subscriberBuffer sizes each subscriber channel. A full buffer drops
// events for that subscriber rather than blocking the publisher.
const subscriberBuffer = 64

// retention keeps a terminal session's history around long enough for a
// late re-attach to replay it.
const retention = 5 * time.Minute

type session struct {
	events      []Event
	subscribers map[chan Event]struct{}
	percent     int
	terminal    bool
}

// Hub routes events from pipelines to subscribers. Safe for concurrent use.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Start opens a session and emits the started event. Starting an existing
// session is a no-op so a retried request cannot reset a live sequence.
func (h *Hub) Start(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[id]; ok {
		return
	}
	s := &session{subscribers: make(map[chan Event]struct{})}
	h.sessions[id] = s
	h.emitLocked(id, s, Event{Type: EventStarted, CorrelationID: id})
}

// Progress emits a progress event. Percentages are monotone: a value below
// the session's high-water mark is raised to it.
func (h *Hub) Progress(id uuid.UUID, percent int, stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok || s.terminal {
		return
	}
	if percent < s.percent {
		percent = s.percent
	}
	if percent > 100 {
		percent = 100
	}
	s.percent = percent
	h.emitLocked(id, s, Event{Type: EventProgress, CorrelationID: id, Stage: stage, Percent: percent})
}

// Complete latches the session as successfully finished.
func (h *Hub) Complete(id uuid.UUID, message string) {
	h.finish(id, Event{Type: EventCompleted, CorrelationID: id, Percent: 100, Message: message})
}

// Fail latches the session as failed.
func (h *Hub) Fail(id uuid.UUID, message string) {
	h.finish(id, Event{Type: EventFailed, CorrelationID: id, Message: message})
}

func (h *Hub) finish(id uuid.UUID, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok || s.terminal {
		// Emits past terminal are dropped; a second terminal never lands.
		return
	}
	if ev.Type == EventCompleted {
		s.percent = 100
	} else {
		ev.Percent = s.percent
	}
	s.terminal = true
	h.emitLocked(id, s, ev)

	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})

	time.AfterFunc(retention, func() { h.forget(id) })
}

// Subscribe attaches to a session, replaying its history first. The
// returned channel closes after the terminal event (immediately after
// replay when the session already ended). The cancel func detaches; it is
// safe to call after the channel closes.
func (h *Hub) Subscribe(id uuid.UUID) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)

	s, ok := h.sessions[id]
	if !ok {
		// Unknown session: nothing will ever arrive.
		close(ch)
		return ch, func() {}
	}

	for _, ev := range s.events {
		select {
		case ch <- ev:
		default:
		}
	}
	if s.terminal {
		close(ch)
		return ch, func() {}
	}

	s.subscribers[ch] = struct{}{}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, live := s.subscribers[ch]; live {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Known reports whether the hub still tracks the session.
func (h *Hub) Known(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[id]
	return ok
}

func (h *Hub) forget(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// emitLocked appends to the session history and fans out to subscribers.
// Slow subscribers with a full buffer lose the event rather than blocking
// the pipeline. Caller holds h.mu.
func (h *Hub) emitLocked(id uuid.UUID, s *session, ev Event) {
	ev.Timestamp = time.Now().UTC()
	s.events = append(s.events, ev)

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("progress subscriber buffer full, dropping event",
				"correlation_id", id, "type", ev.Type)
		}
	}
}
