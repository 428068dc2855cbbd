package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// keyedMutex hands out one mutex per id so operations on different shifts
// (or volunteers) never block each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its unlock func.
func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// CapacityGuard serializes all slot mutations per shift and guarantees a
// shift never holds more active assignments than its capacity. The counter
// itself only moves through conditional UPDATEs, so capacity cannot be
// exceeded even by a caller that bypasses the lock.
type CapacityGuard struct {
	db    *sql.DB
	locks *keyedMutex
}

func NewCapacityGuard(db *sql.DB) *CapacityGuard {
	return &CapacityGuard{db: db, locks: newKeyedMutex()}
}

// lockShift serializes reserve/release/swap-resolution for one shift.
func (g *CapacityGuard) lockShift(shiftID int64) func() {
	return g.locks.lock(shiftID)
}

// Reservation is a single-use handle for one reserved slot. Releasing a
// reservation twice is an error; the slot is only decremented once.
type Reservation struct {
	guard   *CapacityGuard
	shiftID int64

	mu       sync.Mutex
	released bool
}

// ShiftID returns the shift the slot was reserved on.
func (r *Reservation) ShiftID() int64 {
	return r.shiftID
}

// Release frees the reserved slot. The second and later calls fail without
// touching the counter.
func (r *Reservation) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return errors.New("reservation already released")
	}

	unlock := r.guard.lockShift(r.shiftID)
	defer unlock()

	tx, err := r.guard.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.guard.releaseTx(ctx, tx, r.shiftID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	r.released = true
	return nil
}

// TryReserve atomically claims one slot on the shift. It fails with
// ErrShiftFull when no slot remains, ErrShiftNotOpen when the shift is
// completed or cancelled, and ErrNotFound for an unknown shift.
func (g *CapacityGuard) TryReserve(ctx context.Context, shiftID int64) (*Reservation, error) {
	unlock := g.lockShift(shiftID)
	defer unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := g.reserveTx(ctx, tx, shiftID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return &Reservation{guard: g, shiftID: shiftID}, nil
}

// reserveTx increments the shift's confirmed count if a slot remains and
// recomputes its open/filled status. It reports whether the shift just
// became filled. Callers must hold the shift's lock.
func (g *CapacityGuard) reserveTx(ctx context.Context, tx *sql.Tx, shiftID int64) (filled bool, err error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE shifts
		 SET confirmed_count = confirmed_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status NOT IN ('completed', 'cancelled') AND confirmed_count < capacity`,
		shiftID,
	)
	if err != nil {
		return false, fmt.Errorf("reserve slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve rows affected: %w", err)
	}
	if n == 0 {
		return false, g.classifyReserveFailure(ctx, tx, shiftID)
	}

	before, after, err := g.recomputeStatusTx(ctx, tx, shiftID)
	if err != nil {
		return false, err
	}
	return before == "open" && after == "filled", nil
}

// releaseTx decrements the shift's confirmed count, floored at zero, and
// recomputes its status. It reports whether the shift just reopened.
// Callers must hold the shift's lock.
func (g *CapacityGuard) releaseTx(ctx context.Context, tx *sql.Tx, shiftID int64) (reopened bool, err error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE shifts
		 SET confirmed_count = MAX(confirmed_count - 1, 0), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		shiftID,
	)
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release rows affected: %w", err)
	}
	if n == 0 {
		return false, ErrNotFound
	}

	before, after, err := g.recomputeStatusTx(ctx, tx, shiftID)
	if err != nil {
		return false, err
	}
	return before == "filled" && after == "open", nil
}

func (g *CapacityGuard) classifyReserveFailure(ctx context.Context, tx *sql.Tx, shiftID int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM shifts WHERE id = ?`, shiftID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect shift: %w", err)
	}
	if status == "completed" || status == "cancelled" {
		return ErrShiftNotOpen
	}
	return ErrShiftFull
}

// recomputeStatusTx derives open/filled from (confirmed_count, capacity)
// and returns the status before and after. Shifts in in_progress,
// completed, or cancelled keep their status.
func (g *CapacityGuard) recomputeStatusTx(ctx context.Context, tx *sql.Tx, shiftID int64) (before, after string, err error) {
	if err := tx.QueryRowContext(ctx, `SELECT status FROM shifts WHERE id = ?`, shiftID).Scan(&before); err != nil {
		return "", "", fmt.Errorf("read shift status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE shifts
		 SET status = CASE WHEN confirmed_count >= capacity THEN 'filled' ELSE 'open' END
		 WHERE id = ? AND status IN ('open', 'filled')`,
		shiftID,
	); err != nil {
		return "", "", fmt.Errorf("recompute shift status: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT status FROM shifts WHERE id = ?`, shiftID).Scan(&after); err != nil {
		return "", "", fmt.Errorf("read shift status: %w", err)
	}
	return before, after, nil
}
