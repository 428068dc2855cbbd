package model

import "time"

type Volunteer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailabilityWindow is a time range during which a volunteer can be
// scheduled. A volunteer with no windows on file is treated as always
// available.
type AvailabilityWindow struct {
	ID          int64     `json:"id"`
	VolunteerID int64     `json:"volunteer_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}
