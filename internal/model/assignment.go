package model

import "time"

// Assignment status values. Scheduled and checked_in assignments count
// against their shift's capacity; cancellation is the only transition
// that releases a slot.
const (
	AssignmentScheduled = "scheduled"
	AssignmentCheckedIn = "checked_in"
	AssignmentCompleted = "completed"
	AssignmentMissed    = "missed"
	AssignmentCancelled = "cancelled"
)

// Assignment binds one volunteer to one shift.
type Assignment struct {
	ID          int64     `json:"id"`
	ShiftID     int64     `json:"shift_id"`
	VolunteerID int64     `json:"volunteer_id"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Active reports whether the assignment currently occupies a slot.
func (a *Assignment) Active() bool {
	return a.Status == AssignmentScheduled || a.Status == AssignmentCheckedIn
}
