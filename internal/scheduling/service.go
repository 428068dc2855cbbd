// Package scheduling implements the shift assignment engine: capacity
// guarding, the assignment ledger, swap coordination, and the domain
// event bus the rest of the application subscribes to.
package scheduling

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/tobiasvance/crewdesk/internal/actor"
	"github.com/tobiasvance/crewdesk/internal/model"
)

// Service is the façade the HTTP layer calls. Every mutating method
// returns a typed business-rule error (see errors.go) for expected
// rejections; anything else is an infrastructure fault.
type Service struct {
	ledger *AssignmentLedger
	swaps  *SwapCoordinator
	bus    *Bus
	logger *slog.Logger
}

func NewService(db *sql.DB, bus *Bus, logger *slog.Logger) *Service {
	guard := NewCapacityGuard(db)
	ledger := NewAssignmentLedger(db, guard, bus, logger.With("component", "ledger"))
	swaps := NewSwapCoordinator(db, ledger, guard, bus, logger.With("component", "swaps"))
	return &Service{ledger: ledger, swaps: swaps, bus: bus, logger: logger}
}

// Reconcile realigns shift counters with assignment rows. Called once at
// startup.
func (s *Service) Reconcile(ctx context.Context) error {
	return s.ledger.Reconcile(ctx)
}

// Assign books a volunteer onto a shift.
func (s *Service) Assign(ctx context.Context, shiftID, volunteerID int64) (*model.Assignment, error) {
	s.audit(ctx, "assign", "shift_id", shiftID, "volunteer_id", volunteerID)
	return s.ledger.CreateAssignment(ctx, shiftID, volunteerID)
}

// Cancel releases an active assignment's slot.
func (s *Service) Cancel(ctx context.Context, assignmentID int64) error {
	s.audit(ctx, "cancel", "assignment_id", assignmentID)
	return s.ledger.CancelAssignment(ctx, assignmentID)
}

// CheckIn records the volunteer's arrival for a scheduled assignment.
func (s *Service) CheckIn(ctx context.Context, assignmentID int64) error {
	s.audit(ctx, "check_in", "assignment_id", assignmentID)
	return s.ledger.Transition(ctx, assignmentID, model.AssignmentCheckedIn)
}

// Complete marks a checked-in assignment finished.
func (s *Service) Complete(ctx context.Context, assignmentID int64) error {
	s.audit(ctx, "complete", "assignment_id", assignmentID)
	return s.ledger.Transition(ctx, assignmentID, model.AssignmentCompleted)
}

// MarkMissed records a no-show.
func (s *Service) MarkMissed(ctx context.Context, assignmentID int64) error {
	s.audit(ctx, "mark_missed", "assignment_id", assignmentID)
	return s.ledger.Transition(ctx, assignmentID, model.AssignmentMissed)
}

// RequestSwap proposes handing the assignment to another volunteer.
func (s *Service) RequestSwap(ctx context.Context, assignmentID, proposedVolunteerID int64, reason string) (*model.SwapRequest, error) {
	s.audit(ctx, "request_swap", "assignment_id", assignmentID, "proposed_volunteer_id", proposedVolunteerID)
	return s.swaps.Propose(ctx, assignmentID, proposedVolunteerID, reason)
}

// ResolveSwap approves or rejects a pending swap request.
func (s *Service) ResolveSwap(ctx context.Context, swapID int64, decision Decision) (*model.SwapRequest, error) {
	s.audit(ctx, "resolve_swap", "swap_id", swapID, "decision", string(decision))
	return s.swaps.Resolve(ctx, swapID, decision)
}

// WithdrawSwap retracts a pending swap request.
func (s *Service) WithdrawSwap(ctx context.Context, swapID int64) (*model.SwapRequest, error) {
	s.audit(ctx, "withdraw_swap", "swap_id", swapID)
	return s.swaps.Withdraw(ctx, swapID)
}

func (s *Service) GetAssignment(ctx context.Context, id int64) (*model.Assignment, error) {
	return s.ledger.GetAssignment(ctx, id)
}

func (s *Service) ListForVolunteer(ctx context.Context, volunteerID int64) ([]model.Assignment, error) {
	return s.ledger.ListForVolunteer(ctx, volunteerID)
}

func (s *Service) ListForShift(ctx context.Context, shiftID int64) ([]model.Assignment, error) {
	return s.ledger.ListForShift(ctx, shiftID)
}

func (s *Service) GetSwap(ctx context.Context, id int64) (*model.SwapRequest, error) {
	return s.swaps.Get(ctx, id)
}

func (s *Service) ListSwaps(ctx context.Context, status string) ([]model.SwapRequest, error) {
	return s.swaps.List(ctx, status)
}

// audit logs who asked for what. Identity comes from the request context;
// there is no ambient session state in this package.
func (s *Service) audit(ctx context.Context, op string, args ...any) {
	if id, ok := actor.FromContext(ctx); ok {
		args = append(args, "actor_id", id.VolunteerID, "actor_role", id.Role)
	}
	s.logger.Debug("scheduling op", append([]any{"op", op}, args...)...)
}
