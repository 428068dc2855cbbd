package scheduling

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tobiasvance/crewdesk/internal/database"
)

var testDay = time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// Every pooled connection to :memory: would be its own empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, db *sql.DB) (*Service, *Bus) {
	t.Helper()
	bus := NewBus(testLogger())
	t.Cleanup(bus.Close)
	return NewService(db, bus, testLogger()), bus
}

func seedCrew(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO crews (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("seed crew: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func seedVolunteer(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO volunteers (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("seed volunteer: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// seedShift creates a shift on testDay spanning [startHour, endHour).
func seedShift(t *testing.T, db *sql.DB, crewID int64, title string, startHour, endHour, capacity int) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO shifts (crew_id, title, start_time, end_time, capacity) VALUES (?, ?, ?, ?, ?)`,
		crewID, title,
		testDay.Add(time.Duration(startHour)*time.Hour),
		testDay.Add(time.Duration(endHour)*time.Hour),
		capacity,
	)
	if err != nil {
		t.Fatalf("seed shift: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func seedAvailability(t *testing.T, db *sql.DB, volunteerID int64, startHour, endHour int) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO volunteer_availability (volunteer_id, start_time, end_time) VALUES (?, ?, ?)`,
		volunteerID,
		testDay.Add(time.Duration(startHour)*time.Hour),
		testDay.Add(time.Duration(endHour)*time.Hour),
	)
	if err != nil {
		t.Fatalf("seed availability: %v", err)
	}
}

func shiftState(t *testing.T, db *sql.DB, shiftID int64) (confirmed int, status string) {
	t.Helper()
	err := db.QueryRow(`SELECT confirmed_count, status FROM shifts WHERE id = ?`, shiftID).Scan(&confirmed, &status)
	if err != nil {
		t.Fatalf("read shift state: %v", err)
	}
	return confirmed, status
}

func assignmentStatus(t *testing.T, db *sql.DB, assignmentID int64) string {
	t.Helper()
	var status string
	if err := db.QueryRow(`SELECT status FROM assignments WHERE id = ?`, assignmentID).Scan(&status); err != nil {
		t.Fatalf("read assignment status: %v", err)
	}
	return status
}

func activeAssignments(t *testing.T, db *sql.DB, shiftID int64) int {
	t.Helper()
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM assignments WHERE shift_id = ? AND status IN ('scheduled', 'checked_in')`,
		shiftID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count active assignments: %v", err)
	}
	return n
}

// drainEvents collects everything currently buffered on the channel.
func drainEvents(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func ctx() context.Context {
	return context.Background()
}
