package scheduling

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tobiasvance/crewdesk/internal/model"
	"github.com/tobiasvance/crewdesk/internal/timewindow"
)

// validTransitions is the assignment state machine. Cancellation is listed
// here but routed through CancelAssignment so the capacity release always
// happens with it.
var validTransitions = map[string][]string{
	model.AssignmentScheduled: {model.AssignmentCheckedIn, model.AssignmentCancelled, model.AssignmentMissed},
	model.AssignmentCheckedIn: {model.AssignmentCompleted, model.AssignmentMissed, model.AssignmentCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AssignmentLedger is the source of truth for assignment records and the
// only writer of the shift confirmed count (through the capacity guard).
type AssignmentLedger struct {
	db       *sql.DB
	guard    *CapacityGuard
	bus      *Bus
	volLocks *keyedMutex
	logger   *slog.Logger
}

func NewAssignmentLedger(db *sql.DB, guard *CapacityGuard, bus *Bus, logger *slog.Logger) *AssignmentLedger {
	return &AssignmentLedger{
		db:       db,
		guard:    guard,
		bus:      bus,
		volLocks: newKeyedMutex(),
		logger:   logger,
	}
}

const assignmentCols = `id, shift_id, volunteer_id, status, notes, created_at, updated_at`

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.Assignment, error) {
	var a model.Assignment
	err := scanner.Scan(&a.ID, &a.ShiftID, &a.VolunteerID, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssignment books the volunteer onto the shift. It fails with
// ErrScheduleConflict when the shift overlaps another active assignment of
// the volunteer, ErrVolunteerUnavailable when the shift falls outside the
// volunteer's availability windows, and ErrShiftFull when no slot remains.
// The slot reservation and the assignment row commit in one transaction.
func (l *AssignmentLedger) CreateAssignment(ctx context.Context, shiftID, volunteerID int64) (*model.Assignment, error) {
	shift, err := l.getShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	switch shift.Status {
	case model.ShiftOpen, model.ShiftFilled:
	default:
		return nil, ErrShiftNotOpen
	}
	if err := l.volunteerExists(ctx, volunteerID); err != nil {
		return nil, err
	}

	// Volunteer lock first, then shift lock. The swap coordinator takes
	// them in the same order.
	unlockVol := l.volLocks.lock(volunteerID)
	defer unlockVol()
	unlockShift := l.guard.lockShift(shiftID)

	var created *model.Assignment
	var filled bool
	err = func() error {
		defer unlockShift()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin assign tx: %w", err)
		}
		defer tx.Rollback()

		window := timewindow.New(shift.StartTime, shift.EndTime)
		if err := l.checkVolunteerFit(ctx, tx, volunteerID, window, 0); err != nil {
			return err
		}

		filled, err = l.guard.reserveTx(ctx, tx, shiftID)
		if err != nil {
			return err
		}

		created, err = l.insertAssignmentTx(ctx, tx, shiftID, volunteerID)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit assign: %w", err)
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}

	l.bus.Publish(Event{
		Type:         EventAssignmentCreated,
		ShiftID:      shiftID,
		AssignmentID: created.ID,
		VolunteerIDs: []int64{volunteerID},
		Status:       created.Status,
	})
	if filled {
		l.bus.Publish(Event{Type: EventShiftFilled, ShiftID: shiftID, Status: model.ShiftFilled})
	}
	l.logger.Info("assignment created", "assignment_id", created.ID, "shift_id", shiftID, "volunteer_id", volunteerID)
	return created, nil
}

// CancelAssignment cancels a scheduled or checked-in assignment and
// releases its slot. Cancelling from any other status, including an
// already-cancelled assignment, fails with ErrInvalidTransition.
func (l *AssignmentLedger) CancelAssignment(ctx context.Context, assignmentID int64) error {
	a, err := l.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if !a.Active() {
		return ErrInvalidTransition
	}

	unlock := l.guard.lockShift(a.ShiftID)

	var reopened bool
	err = func() error {
		defer unlock()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin cancel tx: %w", err)
		}
		defer tx.Rollback()

		if err := l.cancelTx(ctx, tx, assignmentID); err != nil {
			return err
		}
		reopened, err = l.guard.releaseTx(ctx, tx, a.ShiftID)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit cancel: %w", err)
		}
		return nil
	}()
	if err != nil {
		return err
	}

	l.bus.Publish(Event{
		Type:         EventAssignmentCancelled,
		ShiftID:      a.ShiftID,
		AssignmentID: assignmentID,
		VolunteerIDs: []int64{a.VolunteerID},
		Status:       model.AssignmentCancelled,
	})
	if reopened {
		l.bus.Publish(Event{Type: EventShiftReopened, ShiftID: a.ShiftID, Status: model.ShiftOpen})
	}
	l.logger.Info("assignment cancelled", "assignment_id", assignmentID, "shift_id", a.ShiftID)
	return nil
}

// cancelTx flips the row to cancelled, guarded against a racing transition
// by re-checking the status in the UPDATE itself.
func (l *AssignmentLedger) cancelTx(ctx context.Context, tx *sql.Tx, assignmentID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ('scheduled', 'checked_in')`,
		assignmentID,
	)
	if err != nil {
		return fmt.Errorf("cancel assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel rows affected: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Transition moves an assignment along the state machine. Transitions to
// cancelled go through CancelAssignment so capacity is released.
func (l *AssignmentLedger) Transition(ctx context.Context, assignmentID int64, newStatus string) error {
	if newStatus == model.AssignmentCancelled {
		return l.CancelAssignment(ctx, assignmentID)
	}

	a, err := l.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if !transitionAllowed(a.Status, newStatus) {
		return ErrInvalidTransition
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE assignments SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		newStatus, assignmentID, a.Status,
	)
	if err != nil {
		return fmt.Errorf("transition assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if n == 0 {
		// Raced with another transition; the recorded status moved on.
		return ErrInvalidTransition
	}
	l.logger.Info("assignment transitioned", "assignment_id", assignmentID, "from", a.Status, "to", newStatus)
	return nil
}

func (l *AssignmentLedger) GetAssignment(ctx context.Context, id int64) (*model.Assignment, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (l *AssignmentLedger) ListForVolunteer(ctx context.Context, volunteerID int64) ([]model.Assignment, error) {
	return l.list(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE volunteer_id = ? ORDER BY created_at ASC, id ASC`, volunteerID)
}

func (l *AssignmentLedger) ListForShift(ctx context.Context, shiftID int64) ([]model.Assignment, error) {
	return l.list(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE shift_id = ? ORDER BY created_at ASC, id ASC`, shiftID)
}

func (l *AssignmentLedger) list(ctx context.Context, query string, arg int64) ([]model.Assignment, error) {
	rows, err := l.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// Reconcile rewrites every shift's confirmed count from the assignment
// rows and rederives open/filled. Run at startup so a crash between
// counter and row updates cannot leave the two out of agreement. Only
// cancellation ever releases a slot, so the count covers every
// non-cancelled row — completed and missed assignments keep theirs.
func (l *AssignmentLedger) Reconcile(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE shifts SET confirmed_count = (
		   SELECT COUNT(*) FROM assignments a
		   WHERE a.shift_id = shifts.id AND a.status != 'cancelled'
		 )`,
	); err != nil {
		return fmt.Errorf("reconcile counts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE shifts
		 SET status = CASE WHEN confirmed_count >= capacity THEN 'filled' ELSE 'open' END
		 WHERE status IN ('open', 'filled')`,
	); err != nil {
		return fmt.Errorf("reconcile statuses: %w", err)
	}
	return tx.Commit()
}

// --- internal helpers shared with the swap coordinator ---

type shiftRow struct {
	ID        int64
	Status    string
	StartTime time.Time
	EndTime   time.Time
}

func (l *AssignmentLedger) getShift(ctx context.Context, id int64) (*shiftRow, error) {
	var s shiftRow
	err := l.db.QueryRowContext(ctx,
		`SELECT id, status, start_time, end_time FROM shifts WHERE id = ?`, id,
	).Scan(&s.ID, &s.Status, &s.StartTime, &s.EndTime)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return &s, nil
}

func (l *AssignmentLedger) volunteerExists(ctx context.Context, id int64) error {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM volunteers WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("check volunteer: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// checkVolunteerFit verifies the volunteer can take a shift occupying
// window: no overlap with their active assignments (excluding
// excludeAssignmentID, used during swap resolution) and, when availability
// windows are on file, the shift must fit inside one.
func (l *AssignmentLedger) checkVolunteerFit(ctx context.Context, tx *sql.Tx, volunteerID int64, window timewindow.Window, excludeAssignmentID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT s.start_time, s.end_time
		 FROM assignments a JOIN shifts s ON s.id = a.shift_id
		 WHERE a.volunteer_id = ? AND a.status IN ('scheduled', 'checked_in') AND a.id != ?`,
		volunteerID, excludeAssignmentID,
	)
	if err != nil {
		return fmt.Errorf("load active windows: %w", err)
	}
	defer rows.Close()

	var active []timewindow.Window
	for rows.Next() {
		var w timewindow.Window
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return fmt.Errorf("scan active window: %w", err)
		}
		active = append(active, w)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate active windows: %w", err)
	}
	if timewindow.ConflictsWithAny(window, active) {
		return ErrScheduleConflict
	}

	avail, err := l.availabilityWindows(ctx, tx, volunteerID)
	if err != nil {
		return err
	}
	if len(avail) > 0 && !timewindow.CoveredByAny(window, avail) {
		return ErrVolunteerUnavailable
	}
	return nil
}

func (l *AssignmentLedger) availabilityWindows(ctx context.Context, tx *sql.Tx, volunteerID int64) ([]timewindow.Window, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT start_time, end_time FROM volunteer_availability WHERE volunteer_id = ?`,
		volunteerID,
	)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	defer rows.Close()

	var windows []timewindow.Window
	for rows.Next() {
		var w timewindow.Window
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("scan availability window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (l *AssignmentLedger) insertAssignmentTx(ctx context.Context, tx *sql.Tx, shiftID, volunteerID int64) (*model.Assignment, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (shift_id, volunteer_id, status) VALUES (?, ?, 'scheduled')`,
		shiftID, volunteerID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("reload assignment: %w", err)
	}
	return a, nil
}
