package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tobiasvance/crewdesk/internal/scheduling"
	"github.com/tobiasvance/crewdesk/internal/store"
)

const dispatchBuffer = 64

// Dispatcher listens on the scheduling event bus and pushes notifications
// to the volunteers each event concerns.
type Dispatcher struct {
	mu      sync.RWMutex
	service *Service
	subs    *store.PushStore
	shifts  *store.ShiftStore
	bus     *scheduling.Bus
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(svc *Service, pushStore *store.PushStore, shiftStore *store.ShiftStore, bus *scheduling.Bus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		service: svc,
		subs:    pushStore,
		shifts:  shiftStore,
		bus:     bus,
		logger:  logger,
	}
}

// Start begins consuming events. Returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	events := d.bus.Subscribe(dispatchBuffer)

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				d.handle(ev)
			}
		}
	}()
}

// Stop gracefully stops the dispatcher.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) handle(ev scheduling.Event) {
	if len(ev.VolunteerIDs) == 0 {
		return
	}

	payload, ok := d.payloadFor(ev)
	if !ok {
		return
	}

	subs, err := d.subs.ListForVolunteers(ev.VolunteerIDs)
	if err != nil {
		d.logger.Error("push dispatch: list subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := d.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := d.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					d.logger.Error("push dispatch: prune expired subscription", "error", err)
				}
			} else {
				d.logger.Error("push dispatch: send", "endpoint", sub.Endpoint, "error", err)
			}
		}
	}
}

// payloadFor builds the notification for an event. Returns false for event
// types that do not warrant a push (shift fill state changes go over the
// websocket feed only).
func (d *Dispatcher) payloadFor(ev scheduling.Event) (Payload, bool) {
	title := d.shiftTitle(ev.ShiftID)

	switch ev.Type {
	case scheduling.EventAssignmentCreated:
		return Payload{
			Title: "Shift Assigned",
			Body:  fmt.Sprintf("You are scheduled for %s", title),
			URL:   fmt.Sprintf("/shifts/%d", ev.ShiftID),
			Tag:   fmt.Sprintf("assignment-%d", ev.AssignmentID),
		}, true
	case scheduling.EventAssignmentCancelled:
		return Payload{
			Title: "Assignment Cancelled",
			Body:  fmt.Sprintf("Your assignment for %s was cancelled", title),
			URL:   fmt.Sprintf("/shifts/%d", ev.ShiftID),
			Tag:   fmt.Sprintf("assignment-%d", ev.AssignmentID),
		}, true
	case scheduling.EventSwapProposed:
		return Payload{
			Title: "Swap Requested",
			Body:  fmt.Sprintf("A swap was proposed for %s", title),
			URL:   fmt.Sprintf("/swaps/%d", ev.SwapRequestID),
			Tag:   fmt.Sprintf("swap-%d", ev.SwapRequestID),
		}, true
	case scheduling.EventSwapResolved:
		return Payload{
			Title: "Swap " + resolvedWord(ev.Status),
			Body:  fmt.Sprintf("Your swap request for %s was %s", title, resolvedStatus(ev.Status)),
			URL:   fmt.Sprintf("/swaps/%d", ev.SwapRequestID),
			Tag:   fmt.Sprintf("swap-%d", ev.SwapRequestID),
		}, true
	}
	return Payload{}, false
}

func (d *Dispatcher) shiftTitle(id int64) string {
	shift, err := d.shifts.GetByID(id)
	if err != nil || shift == nil {
		return fmt.Sprintf("shift #%d", id)
	}
	return shift.Title
}

func resolvedWord(status string) string {
	switch status {
	case "approved":
		return "Approved"
	case "rejected":
		return "Rejected"
	}
	return "Resolved"
}

func resolvedStatus(status string) string {
	if status == "" {
		return "resolved"
	}
	return status
}
