package scheduling

import "errors"

// Business-rule violations. These are expected outcomes, returned as typed
// errors and never logged as faults. The API layer maps each to a stable
// machine code via Code.
var (
	ErrNotFound             = errors.New("not found")
	ErrShiftFull            = errors.New("shift is at capacity")
	ErrShiftNotOpen         = errors.New("shift is not accepting assignments")
	ErrScheduleConflict     = errors.New("volunteer has an overlapping assignment")
	ErrVolunteerUnavailable = errors.New("shift falls outside the volunteer's availability")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotSwappable         = errors.New("assignment is not in a swappable state")
	ErrDuplicatePendingSwap = errors.New("assignment already has a pending swap request")
	ErrConflictAtResolution = errors.New("swap state changed since proposal; resolution aborted")
)

// Code returns the machine-readable code for a business-rule error, or the
// empty string for unexpected failures.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrShiftFull):
		return "SHIFT_FULL"
	case errors.Is(err, ErrShiftNotOpen):
		return "SHIFT_NOT_OPEN"
	case errors.Is(err, ErrScheduleConflict):
		return "SCHEDULE_CONFLICT"
	case errors.Is(err, ErrVolunteerUnavailable):
		return "VOLUNTEER_UNAVAILABLE"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrNotSwappable):
		return "NOT_SWAPPABLE"
	case errors.Is(err, ErrDuplicatePendingSwap):
		return "DUPLICATE_PENDING_SWAP"
	case errors.Is(err, ErrConflictAtResolution):
		return "CONFLICT_AT_RESOLUTION"
	}
	return ""
}
