package model

import "time"

// SwapRequest status values. pending is the only non-terminal state.
const (
	SwapPending   = "pending"
	SwapApproved  = "approved"
	SwapRejected  = "rejected"
	SwapWithdrawn = "withdrawn"
)

// SwapRequest proposes transferring an assignment from its current
// volunteer to another. At most one pending request may exist per
// assignment.
type SwapRequest struct {
	ID                    int64      `json:"id"`
	AssignmentID          int64      `json:"assignment_id"`
	RequestingVolunteerID int64      `json:"requesting_volunteer_id"`
	ProposedVolunteerID   int64      `json:"proposed_volunteer_id"`
	Reason                string     `json:"reason"`
	Status                string     `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
}
