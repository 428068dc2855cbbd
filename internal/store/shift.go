package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tobiasvance/crewdesk/internal/model"
)

// ErrCapacityBelowConfirmed is returned when a shift edit would shrink
// capacity below the number of slots already confirmed.
var ErrCapacityBelowConfirmed = errors.New("capacity cannot drop below confirmed count")

// ShiftStore owns the catalog side of shifts: title, window, location,
// capacity, and the coarse lifecycle statuses. The confirmed count and the
// open/filled toggle belong to the scheduling engine.
type ShiftStore struct {
	db *sql.DB
}

func NewShiftStore(db *sql.DB) *ShiftStore {
	return &ShiftStore{db: db}
}

const shiftCols = `id, crew_id, title, location, start_time, end_time, capacity, confirmed_count, status, created_at, updated_at`

func scanShift(scanner interface{ Scan(...any) error }) (*model.Shift, error) {
	var s model.Shift
	err := scanner.Scan(
		&s.ID, &s.CrewID, &s.Title, &s.Location, &s.StartTime, &s.EndTime,
		&s.Capacity, &s.ConfirmedCount, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *ShiftStore) Create(crewID int64, title, location string, start, end time.Time, capacity int) (*model.Shift, error) {
	result, err := s.db.Exec(
		`INSERT INTO shifts (crew_id, title, location, start_time, end_time, capacity) VALUES (?, ?, ?, ?, ?, ?)`,
		crewID, title, location, start.UTC(), end.UTC(), capacity,
	)
	if err != nil {
		return nil, fmt.Errorf("insert shift: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ShiftStore) GetByID(id int64) (*model.Shift, error) {
	row := s.db.QueryRow(`SELECT `+shiftCols+` FROM shifts WHERE id = ?`, id)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return sh, nil
}

func (s *ShiftStore) List() ([]model.Shift, error) {
	return s.query(`SELECT ` + shiftCols + ` FROM shifts ORDER BY start_time ASC, id ASC`)
}

func (s *ShiftStore) ListByCrew(crewID int64) ([]model.Shift, error) {
	return s.query(`SELECT `+shiftCols+` FROM shifts WHERE crew_id = ? ORDER BY start_time ASC, id ASC`, crewID)
}

func (s *ShiftStore) query(q string, args ...any) ([]model.Shift, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []model.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, *sh)
	}
	return shifts, rows.Err()
}

// Update edits the catalog fields. Shrinking capacity below the current
// confirmed count fails with ErrCapacityBelowConfirmed; the engine's
// no-overbooking guarantee must survive catalog edits.
func (s *ShiftStore) Update(id int64, title, location string, start, end time.Time, capacity int) (*model.Shift, error) {
	result, err := s.db.Exec(
		`UPDATE shifts SET title = ?, location = ?, start_time = ?, end_time = ?, capacity = ?,
		 status = CASE WHEN status IN ('open', 'filled') THEN
		   CASE WHEN confirmed_count >= ? THEN 'filled' ELSE 'open' END
		 ELSE status END,
		 updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND confirmed_count <= ?`,
		title, location, start.UTC(), end.UTC(), capacity, capacity, id, capacity,
	)
	if err != nil {
		return nil, fmt.Errorf("update shift: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrCapacityBelowConfirmed
	}
	return s.GetByID(id)
}

// SetStatus moves a shift into one of the catalog lifecycle states.
func (s *ShiftStore) SetStatus(id int64, status string) (*model.Shift, error) {
	switch status {
	case model.ShiftInProgress, model.ShiftCompleted, model.ShiftCancelled:
	default:
		return nil, fmt.Errorf("status %q is not a catalog status", status)
	}
	_, err := s.db.Exec(
		`UPDATE shifts SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set shift status: %w", err)
	}
	return s.GetByID(id)
}

func (s *ShiftStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM shifts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete shift: %w", err)
	}
	return nil
}
