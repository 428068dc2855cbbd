package scheduling

import (
	"testing"
	"time"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(testLogger())
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Type: EventShiftFilled, ShiftID: 7})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != EventShiftFilled || ev.ShiftID != 7 {
				t.Errorf("got %+v, want shift_filled for shift 7", ev)
			}
			if ev.OccurredAt.IsZero() {
				t.Error("OccurredAt should be stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(testLogger())
	ch := bus.Subscribe(1)

	bus.Publish(Event{Type: EventShiftFilled})
	// Buffer full; this one is dropped rather than blocking the engine.
	bus.Publish(Event{Type: EventShiftReopened})

	if ev := <-ch; ev.Type != EventShiftFilled {
		t.Errorf("got %q, want shift_filled", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event %q", ev.Type)
	default:
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus(testLogger())
	ch := bus.Subscribe(1)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	// Publish after close must not panic.
	bus.Publish(Event{Type: EventShiftFilled})
	bus.Close()
}
