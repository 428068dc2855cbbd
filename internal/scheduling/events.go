package scheduling

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventAssignmentCreated   EventType = "assignment_created"
	EventAssignmentCancelled EventType = "assignment_cancelled"
	EventShiftFilled         EventType = "shift_filled"
	EventShiftReopened       EventType = "shift_reopened"
	EventSwapProposed        EventType = "swap_proposed"
	EventSwapResolved        EventType = "swap_resolved"
)

// Event is a domain event emitted after a scheduling mutation commits.
// Emission is fire-and-forget: the engine never waits on a consumer.
type Event struct {
	Type          EventType `json:"type"`
	ShiftID       int64     `json:"shift_id,omitempty"`
	AssignmentID  int64     `json:"assignment_id,omitempty"`
	SwapRequestID int64     `json:"swap_request_id,omitempty"`
	VolunteerIDs  []int64   `json:"volunteer_ids,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Bus fans out domain events to subscribers over buffered channels.
// Publish never blocks: a subscriber whose buffer is full misses the
// event, so consumers needing a complete picture must re-read the store.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a new consumer and returns its event channel. The
// channel is closed when the bus shuts down.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to every subscriber that has buffer space.
func (b *Bus) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event dropped, subscriber buffer full", "type", string(ev.Type))
		}
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
}
