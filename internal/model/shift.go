package model

import "time"

// Shift status values. The scheduling engine only ever toggles a shift
// between open and filled; the remaining statuses are set by the catalog.
const (
	ShiftOpen       = "open"
	ShiftFilled     = "filled"
	ShiftInProgress = "in_progress"
	ShiftCompleted  = "completed"
	ShiftCancelled  = "cancelled"
)

type Crew struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Shift is a capacity-limited, time-bounded unit of volunteer work.
// ConfirmedCount is derived from non-cancelled assignments and is mutated
// only through the scheduling engine's capacity guard.
type Shift struct {
	ID             int64     `json:"id"`
	CrewID         int64     `json:"crew_id"`
	Title          string    `json:"title"`
	Location       string    `json:"location"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Capacity       int       `json:"capacity"`
	ConfirmedCount int       `json:"confirmed_count"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
