package scheduling

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tobiasvance/crewdesk/internal/model"
	"github.com/tobiasvance/crewdesk/internal/timewindow"
)

// Decision is the outcome requested for a pending swap.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// SwapCoordinator owns swap request records. Resolution calls back into
// the ledger's shift lock so the cancel-and-recreate pair is one
// indivisible unit per target shift.
type SwapCoordinator struct {
	db     *sql.DB
	ledger *AssignmentLedger
	guard  *CapacityGuard
	bus    *Bus
	logger *slog.Logger
}

func NewSwapCoordinator(db *sql.DB, ledger *AssignmentLedger, guard *CapacityGuard, bus *Bus, logger *slog.Logger) *SwapCoordinator {
	return &SwapCoordinator{db: db, ledger: ledger, guard: guard, bus: bus, logger: logger}
}

const swapCols = `id, assignment_id, requesting_volunteer_id, proposed_volunteer_id, reason, status, created_at, resolved_at`

func scanSwap(scanner interface{ Scan(...any) error }) (*model.SwapRequest, error) {
	var s model.SwapRequest
	var resolvedAt sql.NullTime
	err := scanner.Scan(&s.ID, &s.AssignmentID, &s.RequestingVolunteerID, &s.ProposedVolunteerID,
		&s.Reason, &s.Status, &s.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		s.ResolvedAt = &resolvedAt.Time
	}
	return &s, nil
}

// Propose opens a swap request transferring the assignment to the proposed
// volunteer. The assignment must be scheduled or checked in, must have no
// other pending request, and the proposed volunteer must be free for the
// shift's window at proposal time.
func (c *SwapCoordinator) Propose(ctx context.Context, assignmentID, proposedVolunteerID int64, reason string) (*model.SwapRequest, error) {
	a, err := c.ledger.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !a.Active() {
		return nil, ErrNotSwappable
	}
	if a.VolunteerID == proposedVolunteerID {
		return nil, ErrNotSwappable
	}
	if err := c.ledger.volunteerExists(ctx, proposedVolunteerID); err != nil {
		return nil, err
	}

	shift, err := c.ledger.getShift(ctx, a.ShiftID)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin propose tx: %w", err)
	}
	defer tx.Rollback()

	window := timewindow.New(shift.StartTime, shift.EndTime)
	if err := c.ledger.checkVolunteerFit(ctx, tx, proposedVolunteerID, window, 0); err != nil {
		return nil, err
	}

	id, err := c.insertPendingTx(ctx, tx, a, proposedVolunteerID, reason)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+swapCols+` FROM swap_requests WHERE id = ?`, id)
	swap, err := scanSwap(row)
	if err != nil {
		return nil, fmt.Errorf("reload swap request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit propose: %w", err)
	}

	c.bus.Publish(Event{
		Type:          EventSwapProposed,
		ShiftID:       a.ShiftID,
		AssignmentID:  assignmentID,
		SwapRequestID: swap.ID,
		VolunteerIDs:  []int64{a.VolunteerID, proposedVolunteerID},
		Status:        model.SwapPending,
	})
	c.logger.Info("swap proposed", "swap_id", swap.ID, "assignment_id", assignmentID, "proposed_volunteer_id", proposedVolunteerID)
	return swap, nil
}

// insertPendingTx inserts the pending request only while the assignment
// is still scheduled or checked in. The propose path reads the status
// first, but a cancel can land between that read and this statement, so
// the insert re-checks for itself.
func (c *SwapCoordinator) insertPendingTx(ctx context.Context, tx *sql.Tx, a *model.Assignment, proposedVolunteerID int64, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO swap_requests (assignment_id, requesting_volunteer_id, proposed_volunteer_id, reason, status)
		 SELECT ?, ?, ?, ?, 'pending'
		 WHERE EXISTS (SELECT 1 FROM assignments WHERE id = ? AND status IN ('scheduled', 'checked_in'))`,
		a.ID, a.VolunteerID, proposedVolunteerID, reason, a.ID,
	)
	if err != nil {
		// The partial unique index rejects a second pending request.
		if strings.Contains(err.Error(), "idx_swaps_pending") {
			return 0, ErrDuplicatePendingSwap
		}
		return 0, fmt.Errorf("insert swap request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrNotSwappable
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Resolve approves or rejects a pending swap. Approval re-validates the
// proposed volunteer against current state under the target shift's lock:
// the original assignment is cancelled and the replacement created in one
// transaction, or nothing changes at all.
func (c *SwapCoordinator) Resolve(ctx context.Context, swapID int64, decision Decision) (*model.SwapRequest, error) {
	switch decision {
	case DecisionApprove, DecisionReject:
	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}

	swap, err := c.Get(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.Status != model.SwapPending {
		return nil, ErrInvalidTransition
	}

	if decision == DecisionReject {
		return c.finish(ctx, swapID, model.SwapRejected)
	}
	return c.approve(ctx, swap)
}

// Withdraw retracts a pending swap request without side effects.
func (c *SwapCoordinator) Withdraw(ctx context.Context, swapID int64) (*model.SwapRequest, error) {
	swap, err := c.Get(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.Status != model.SwapPending {
		return nil, ErrInvalidTransition
	}
	return c.finish(ctx, swapID, model.SwapWithdrawn)
}

func (c *SwapCoordinator) approve(ctx context.Context, swap *model.SwapRequest) (*model.SwapRequest, error) {
	original, err := c.ledger.GetAssignment(ctx, swap.AssignmentID)
	if err != nil {
		return nil, err
	}
	shift, err := c.ledger.getShift(ctx, original.ShiftID)
	if err != nil {
		return nil, err
	}

	// Same order as CreateAssignment: volunteer lock, then shift lock.
	unlockVol := c.ledger.volLocks.lock(swap.ProposedVolunteerID)
	defer unlockVol()
	unlockShift := c.guard.lockShift(original.ShiftID)

	var resolved *model.SwapRequest
	var replacement *model.Assignment
	err = func() error {
		defer unlockShift()

		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin approve tx: %w", err)
		}
		defer tx.Rollback()

		// Re-read the original under the lock. If it moved on since the
		// proposal, the decision is stale.
		row := tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, swap.AssignmentID)
		current, err := scanAssignment(row)
		if err == sql.ErrNoRows {
			return ErrConflictAtResolution
		}
		if err != nil {
			return fmt.Errorf("reload original assignment: %w", err)
		}
		if !current.Active() {
			return ErrConflictAtResolution
		}

		// Mandatory re-check: the proposed volunteer may have picked up
		// conflicting work between proposal and approval.
		window := timewindow.New(shift.StartTime, shift.EndTime)
		if err := c.ledger.checkVolunteerFit(ctx, tx, swap.ProposedVolunteerID, window, swap.AssignmentID); err != nil {
			return err
		}

		if err := c.ledger.cancelTx(ctx, tx, swap.AssignmentID); err != nil {
			return ErrConflictAtResolution
		}
		if _, err := c.guard.releaseTx(ctx, tx, original.ShiftID); err != nil {
			return err
		}
		if _, err := c.guard.reserveTx(ctx, tx, original.ShiftID); err != nil {
			// Freed slot stolen through another path; abort the whole
			// resolution rather than leave the original cancelled.
			return ErrConflictAtResolution
		}
		replacement, err = c.ledger.insertAssignmentTx(ctx, tx, original.ShiftID, swap.ProposedVolunteerID)
		if err != nil {
			return err
		}

		resolved, err = c.finishTx(ctx, tx, swap.ID, model.SwapApproved)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit approve: %w", err)
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}

	c.bus.Publish(Event{
		Type:         EventAssignmentCancelled,
		ShiftID:      original.ShiftID,
		AssignmentID: original.ID,
		VolunteerIDs: []int64{original.VolunteerID},
		Status:       model.AssignmentCancelled,
	})
	c.bus.Publish(Event{
		Type:         EventAssignmentCreated,
		ShiftID:      original.ShiftID,
		AssignmentID: replacement.ID,
		VolunteerIDs: []int64{replacement.VolunteerID},
		Status:       replacement.Status,
	})
	c.bus.Publish(Event{
		Type:          EventSwapResolved,
		ShiftID:       original.ShiftID,
		AssignmentID:  original.ID,
		SwapRequestID: swap.ID,
		VolunteerIDs:  []int64{original.VolunteerID, swap.ProposedVolunteerID},
		Status:        model.SwapApproved,
	})
	c.logger.Info("swap approved", "swap_id", swap.ID, "assignment_id", original.ID, "replacement_id", replacement.ID)
	return resolved, nil
}

// finish resolves a swap to a terminal status outside any shift lock
// (reject and withdraw have no side effects on assignments).
func (c *SwapCoordinator) finish(ctx context.Context, swapID int64, status string) (*model.SwapRequest, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer tx.Rollback()

	swap, err := c.finishTx(ctx, tx, swapID, status)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve: %w", err)
	}

	c.bus.Publish(Event{
		Type:          EventSwapResolved,
		AssignmentID:  swap.AssignmentID,
		SwapRequestID: swap.ID,
		VolunteerIDs:  []int64{swap.RequestingVolunteerID, swap.ProposedVolunteerID},
		Status:        status,
	})
	c.logger.Info("swap resolved", "swap_id", swapID, "status", status)
	return swap, nil
}

func (c *SwapCoordinator) finishTx(ctx context.Context, tx *sql.Tx, swapID int64, status string) (*model.SwapRequest, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = ?, resolved_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending'`,
		status, swapID,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve swap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrInvalidTransition
	}

	row := tx.QueryRowContext(ctx, `SELECT `+swapCols+` FROM swap_requests WHERE id = ?`, swapID)
	swap, err := scanSwap(row)
	if err != nil {
		return nil, fmt.Errorf("reload swap request: %w", err)
	}
	return swap, nil
}

func (c *SwapCoordinator) Get(ctx context.Context, id int64) (*model.SwapRequest, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+swapCols+` FROM swap_requests WHERE id = ?`, id)
	swap, err := scanSwap(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get swap request: %w", err)
	}
	return swap, nil
}

// List returns swap requests, optionally filtered by status.
func (c *SwapCoordinator) List(ctx context.Context, status string) ([]model.SwapRequest, error) {
	query := `SELECT ` + swapCols + ` FROM swap_requests ORDER BY created_at DESC, id DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + swapCols + ` FROM swap_requests WHERE status = ? ORDER BY created_at DESC, id DESC`
		args = append(args, status)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list swap requests: %w", err)
	}
	defer rows.Close()

	var swaps []model.SwapRequest
	for rows.Next() {
		s, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap request: %w", err)
		}
		swaps = append(swaps, *s)
	}
	return swaps, rows.Err()
}
