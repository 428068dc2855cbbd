package websocket

import (
	"context"

	"github.com/tobiasvance/crewdesk/internal/scheduling"
)

// Relay subscribes to the scheduling event bus and broadcasts each event to
// connected clients until ctx is cancelled or the bus closes.
func Relay(ctx context.Context, hub *Hub, bus *scheduling.Bus, buffer int) {
	events := bus.Subscribe(buffer)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			hub.Broadcast(messageFromEvent(ev))
		case <-ctx.Done():
			return
		}
	}
}

// messageFromEvent flattens a scheduling event into the wire message shape.
// Swap events carry the swap request id; everything else carries the
// assignment id (shift lifecycle events carry the shift id).
func messageFromEvent(ev scheduling.Event) Message {
	extra := map[string]any{"shift_id": ev.ShiftID}
	if len(ev.VolunteerIDs) > 0 {
		extra["volunteer_ids"] = ev.VolunteerIDs
	}
	if ev.Status != "" {
		extra["status"] = ev.Status
	}

	switch ev.Type {
	case scheduling.EventSwapProposed, scheduling.EventSwapResolved:
		return NewMessage("swap_request", action(ev.Type), ev.SwapRequestID, extra)
	case scheduling.EventShiftFilled, scheduling.EventShiftReopened:
		return NewMessage("shift", action(ev.Type), ev.ShiftID, extra)
	default:
		return NewMessage("assignment", action(ev.Type), ev.AssignmentID, extra)
	}
}

func action(t scheduling.EventType) string {
	switch t {
	case scheduling.EventAssignmentCreated:
		return "created"
	case scheduling.EventAssignmentCancelled:
		return "cancelled"
	case scheduling.EventShiftFilled:
		return "filled"
	case scheduling.EventShiftReopened:
		return "reopened"
	case scheduling.EventSwapProposed:
		return "proposed"
	case scheduling.EventSwapResolved:
		return "resolved"
	}
	return string(t)
}
