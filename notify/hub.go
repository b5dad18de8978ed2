// Package notify fans out enrollment change events to live listeners, such as
// the to-do WebSocket stream. Delivery is best effort: events are published
// after the write has committed and never influence it.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	EventEnrollmentChanged = "enrollment_changed"
	defaultBuffer          = 16
)

// Event tells listeners that an enrollment of a cadence changed and any
// to-do view of that cadence should be refreshed.
type Event struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Action           string    `json:"action"`
	CadenceID        uint      `json:"cadence_id"`
	EnrollmentID     uint      `json:"enrollment_id"`
	StepID           *uint     `json:"step_id,omitempty"`
	DayCompleted     bool      `json:"day_completed,omitempty"`
	CadenceCompleted bool      `json:"cadence_completed,omitempty"`
	At               time.Time `json:"at"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(action string, cadenceID, enrollmentID uint, at time.Time) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         EventEnrollmentChanged,
		Action:       action,
		CadenceID:    cadenceID,
		EnrollmentID: enrollmentID,
		At:           at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Hub delivers events to in-process subscribers keyed by cadence.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[*Subscription]struct{}
	buffer      int
	dropped     atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subscribers: make(map[uint]map[*Subscription]struct{}),
		buffer:      buffer,
	}
}

// Subscription receives events for one cadence until closed.
type Subscription struct {
	C <-chan Event

	hub       *Hub
	cadenceID uint
	ch        chan Event
	once      sync.Once
}

func (h *Hub) Subscribe(cadenceID uint) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, hub: h, cadenceID: cadenceID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[cadenceID] == nil {
		h.subscribers[cadenceID] = make(map[*Subscription]struct{})
	}
	h.subscribers[cadenceID][sub] = struct{}{}
	return sub
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if subs, ok := s.hub.subscribers[s.cadenceID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.hub.subscribers, s.cadenceID)
			}
		}
		close(s.ch)
	})
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
// Listeners only use events as a refresh signal, so the next one catches them up.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers[event.CadenceID] {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) SubscriberCount(cadenceID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[cadenceID])
}

// Dropped reports how many deliveries were skipped because a subscriber was behind.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
