package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tobiasvance/crewdesk/internal/scheduling"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	c := mockClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(testLogger())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	msg := NewMessage("assignment", "created", 42, map[string]any{"shift_id": float64(7)})
	hub.Broadcast(msg)

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "assignment_created" {
				t.Errorf("expected type assignment_created, got %s", got.Type)
			}
			if got.Entity != "assignment" {
				t.Errorf("expected entity assignment, got %s", got.Entity)
			}
			if got.ID != 42 {
				t.Errorf("expected id 42, got %d", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(testLogger())
	// Should not panic
	msg := NewMessage("shift", "filled", 1, nil)
	hub.Broadcast(msg)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(testLogger())

	c := mockClient(hub)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("assignment", "created", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("assignment", "dropped", 999, nil))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestRelayBridgesBusEvents(t *testing.T) {
	hub := NewHub(testLogger())
	bus := scheduling.NewBus(testLogger())
	defer bus.Close()

	c := mockClient(hub)
	hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		Relay(ctx, hub, bus, 16)
	}()

	// Give the relay goroutine time to subscribe before publishing.
	time.Sleep(10 * time.Millisecond)

	bus.Publish(scheduling.Event{
		Type:          scheduling.EventSwapResolved,
		ShiftID:       3,
		SwapRequestID: 9,
		VolunteerIDs:  []int64{1, 2},
		Status:        "approved",
	})

	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "swap_request_resolved" {
			t.Errorf("expected type swap_request_resolved, got %s", got.Type)
		}
		if got.ID != 9 {
			t.Errorf("expected swap request id 9, got %d", got.ID)
		}
		if got.Extra["status"] != "approved" {
			t.Errorf("expected status approved in extra, got %v", got.Extra["status"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for relayed event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancel")
	}
}

func TestMessageFromEvent(t *testing.T) {
	tests := []struct {
		event      scheduling.Event
		wantType   string
		wantEntity string
		wantID     int64
	}{
		{scheduling.Event{Type: scheduling.EventAssignmentCreated, ShiftID: 1, AssignmentID: 10}, "assignment_created", "assignment", 10},
		{scheduling.Event{Type: scheduling.EventAssignmentCancelled, ShiftID: 1, AssignmentID: 10}, "assignment_cancelled", "assignment", 10},
		{scheduling.Event{Type: scheduling.EventShiftFilled, ShiftID: 4}, "shift_filled", "shift", 4},
		{scheduling.Event{Type: scheduling.EventShiftReopened, ShiftID: 4}, "shift_reopened", "shift", 4},
		{scheduling.Event{Type: scheduling.EventSwapProposed, ShiftID: 4, SwapRequestID: 2}, "swap_request_proposed", "swap_request", 2},
	}

	for _, tt := range tests {
		got := messageFromEvent(tt.event)
		if got.Type != tt.wantType {
			t.Errorf("%s: expected type %s, got %s", tt.event.Type, tt.wantType, got.Type)
		}
		if got.Entity != tt.wantEntity {
			t.Errorf("%s: expected entity %s, got %s", tt.event.Type, tt.wantEntity, got.Entity)
		}
		if got.ID != tt.wantID {
			t.Errorf("%s: expected id %d, got %d", tt.event.Type, tt.wantID, got.ID)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(testLogger())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(NewMessage("assignment", "created", 0, nil))
			// Drain any messages
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
