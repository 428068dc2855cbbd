package scheduling

import (
	"errors"
	"testing"

	"github.com/tobiasvance/crewdesk/internal/model"
)

func TestProposeValidation(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	shift := seedShift(t, db, crew, "Taps", 10, 14, 2)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), shift, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := svc.RequestSwap(ctx(), 9999, v2, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("swap unknown assignment = %v, want ErrNotFound", err)
	}
	if _, err := svc.RequestSwap(ctx(), a.ID, 9999, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("swap to unknown volunteer = %v, want ErrNotFound", err)
	}
	if _, err := svc.RequestSwap(ctx(), a.ID, v1, ""); !errors.Is(err, ErrNotSwappable) {
		t.Errorf("swap to self = %v, want ErrNotSwappable", err)
	}

	swap, err := svc.RequestSwap(ctx(), a.ID, v2, "family visit")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if swap.Status != model.SwapPending {
		t.Errorf("status = %q, want pending", swap.Status)
	}
	if swap.RequestingVolunteerID != v1 || swap.ProposedVolunteerID != v2 {
		t.Errorf("volunteers = (%d, %d), want (%d, %d)",
			swap.RequestingVolunteerID, swap.ProposedVolunteerID, v1, v2)
	}

	// Only one pending request per assignment.
	if _, err := svc.RequestSwap(ctx(), a.ID, v2, ""); !errors.Is(err, ErrDuplicatePendingSwap) {
		t.Errorf("second pending swap = %v, want ErrDuplicatePendingSwap", err)
	}

	// A cancelled assignment cannot be swapped.
	if err := svc.Cancel(ctx(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.RequestSwap(ctx(), a.ID, v2, ""); !errors.Is(err, ErrNotSwappable) {
		t.Errorf("swap cancelled assignment = %v, want ErrNotSwappable", err)
	}
}

func TestProposeInsertRefusesInactiveAssignment(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	shift := seedShift(t, db, crew, "Taps", 10, 14, 2)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), shift, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := svc.Cancel(ctx(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// a still reads as scheduled in memory, the way a proposer that raced
	// a cancel would see it. The insert must refuse on its own.
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := svc.swaps.insertPendingTx(ctx(), tx, a, v2, ""); !errors.Is(err, ErrNotSwappable) {
		t.Errorf("insert against cancelled assignment = %v, want ErrNotSwappable", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM swap_requests WHERE assignment_id = ?`, a.ID).Scan(&n); err != nil {
		t.Fatalf("count swaps: %v", err)
	}
	if n != 0 {
		t.Errorf("%d swap rows for cancelled assignment, want 0", n)
	}
}

func TestProposeScheduleConflict(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	s1 := seedShift(t, db, crew, "Taps", 10, 12, 2)
	s2 := seedShift(t, db, crew, "Glasses", 11, 13, 2)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), s1, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.Assign(ctx(), s2, v2); err != nil {
		t.Fatalf("assign v2: %v", err)
	}

	// v2 already works 11:00-13:00, overlapping s1's 10:00-12:00.
	if _, err := svc.RequestSwap(ctx(), a.ID, v2, ""); !errors.Is(err, ErrScheduleConflict) {
		t.Errorf("propose conflicting swap = %v, want ErrScheduleConflict", err)
	}
}

func TestResolveApprove(t *testing.T) {
	db := setupTestDB(t)
	svc, bus := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	shift := seedShift(t, db, crew, "Taps", 10, 14, 1)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), shift, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	swap, err := svc.RequestSwap(ctx(), a.ID, v2, "clash")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	events := bus.Subscribe(32)
	resolved, err := svc.ResolveSwap(ctx(), swap.ID, DecisionApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.Status != model.SwapApproved {
		t.Errorf("status = %q, want approved", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at should be set")
	}

	// Exactly one new assignment for v2; the original is cancelled; the
	// shift is still exactly full.
	if got := assignmentStatus(t, db, a.ID); got != model.AssignmentCancelled {
		t.Errorf("original status = %q, want cancelled", got)
	}
	forV2, err := svc.ListForVolunteer(ctx(), v2)
	if err != nil {
		t.Fatalf("list for v2: %v", err)
	}
	if len(forV2) != 1 || forV2[0].Status != model.AssignmentScheduled {
		t.Fatalf("v2 assignments = %+v, want one scheduled", forV2)
	}
	if confirmed, status := shiftState(t, db, shift); confirmed != 1 || status != "filled" {
		t.Errorf("confirmed=%d status=%q, want 1 filled", confirmed, status)
	}
	if n := activeAssignments(t, db, shift); n != 1 {
		t.Errorf("%d active assignments, want 1", n)
	}

	got := drainEvents(events)
	want := []EventType{EventAssignmentCancelled, EventAssignmentCreated, EventSwapResolved}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i].Type, want[i])
		}
	}
}

func TestResolveApproveConflictLeavesOriginalUntouched(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	s1 := seedShift(t, db, crew, "Taps", 10, 12, 1)
	s2 := seedShift(t, db, crew, "Glasses", 11, 13, 1)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), s1, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	swap, err := svc.RequestSwap(ctx(), a.ID, v2, "clash")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Between proposal and approval, v2 picks up an overlapping shift.
	if _, err := svc.Assign(ctx(), s2, v2); err != nil {
		t.Fatalf("assign v2 to s2: %v", err)
	}

	if _, err := svc.ResolveSwap(ctx(), swap.ID, DecisionApprove); !errors.Is(err, ErrScheduleConflict) {
		t.Fatalf("approve = %v, want ErrScheduleConflict", err)
	}

	// Nothing changed: A1 still scheduled under v1, swap still pending.
	if got := assignmentStatus(t, db, a.ID); got != model.AssignmentScheduled {
		t.Errorf("original status = %q, want scheduled", got)
	}
	if confirmed, _ := shiftState(t, db, s1); confirmed != 1 {
		t.Errorf("s1 confirmed = %d, want 1", confirmed)
	}
	if forV2, _ := svc.ListForVolunteer(ctx(), v2); len(forV2) != 1 {
		t.Errorf("v2 has %d assignments, want 1 (only s2)", len(forV2))
	}
	current, err := svc.GetSwap(ctx(), swap.ID)
	if err != nil {
		t.Fatalf("get swap: %v", err)
	}
	if current.Status != model.SwapPending {
		t.Errorf("swap status = %q, want pending", current.Status)
	}
}

func TestResolveApproveStaleOriginal(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	shift := seedShift(t, db, crew, "Taps", 10, 14, 1)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), shift, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	swap, err := svc.RequestSwap(ctx(), a.ID, v2, "clash")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// The original assignment is cancelled through another path before the
	// coordinator gets to the request.
	if err := svc.Cancel(ctx(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.ResolveSwap(ctx(), swap.ID, DecisionApprove); !errors.Is(err, ErrConflictAtResolution) {
		t.Fatalf("approve = %v, want ErrConflictAtResolution", err)
	}
	if forV2, _ := svc.ListForVolunteer(ctx(), v2); len(forV2) != 0 {
		t.Errorf("v2 has %d assignments, want 0", len(forV2))
	}
}

func TestResolveRejectAndWithdraw(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	shift := seedShift(t, db, crew, "Taps", 10, 14, 2)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")

	a, err := svc.Assign(ctx(), shift, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	swap, err := svc.RequestSwap(ctx(), a.ID, v2, "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	rejected, err := svc.ResolveSwap(ctx(), swap.ID, DecisionReject)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.SwapRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}
	// Rejection has no side effects on the assignment.
	if got := assignmentStatus(t, db, a.ID); got != model.AssignmentScheduled {
		t.Errorf("assignment status = %q, want scheduled", got)
	}

	// Terminal requests cannot be resolved again.
	if _, err := svc.ResolveSwap(ctx(), swap.ID, DecisionApprove); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resolve rejected swap = %v, want ErrInvalidTransition", err)
	}

	// After rejection a new request may be opened and withdrawn.
	swap2, err := svc.RequestSwap(ctx(), a.ID, v2, "")
	if err != nil {
		t.Fatalf("second propose: %v", err)
	}
	withdrawn, err := svc.WithdrawSwap(ctx(), swap2.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Status != model.SwapWithdrawn {
		t.Errorf("status = %q, want withdrawn", withdrawn.Status)
	}
	if _, err := svc.WithdrawSwap(ctx(), swap2.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second withdraw = %v, want ErrInvalidTransition", err)
	}
}

func TestListSwaps(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := newTestService(t, db)

	crew := seedCrew(t, db, "Bar")
	s1 := seedShift(t, db, crew, "Taps", 10, 12, 2)
	s2 := seedShift(t, db, crew, "Glasses", 14, 16, 2)
	v1 := seedVolunteer(t, db, "Asha")
	v2 := seedVolunteer(t, db, "Bram")
	v3 := seedVolunteer(t, db, "Cleo")

	a1, err := svc.Assign(ctx(), s1, v1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	a2, err := svc.Assign(ctx(), s2, v2)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	sw1, err := svc.RequestSwap(ctx(), a1.ID, v3, "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := svc.RequestSwap(ctx(), a2.ID, v3, ""); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := svc.ResolveSwap(ctx(), sw1.ID, DecisionReject); err != nil {
		t.Fatalf("reject: %v", err)
	}

	pending, err := svc.ListSwaps(ctx(), model.SwapPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("%d pending swaps, want 1", len(pending))
	}
	all, err := svc.ListSwaps(ctx(), "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("%d swaps, want 2", len(all))
	}
}
