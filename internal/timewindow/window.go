// Package timewindow provides half-open time interval arithmetic for
// shift conflict detection.
package timewindow

import (
	"sort"
	"time"
)

// Window is a half-open interval [Start, End). A window whose end equals
// another's start does not overlap it; back-to-back shifts are fine.
type Window struct {
	Start time.Time
	End   time.Time
}

// New returns the window [start, end).
func New(start, end time.Time) Window {
	return Window{Start: start, End: end}
}

// Valid reports whether the window has positive duration.
func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Overlaps reports whether w and other share any instant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// ConflictsWithAny reports whether candidate overlaps any window in
// existing.
func ConflictsWithAny(candidate Window, existing []Window) bool {
	for _, w := range existing {
		if candidate.Overlaps(w) {
			return true
		}
	}
	return false
}

// Contains reports whether inner lies entirely within w.
func (w Window) Contains(inner Window) bool {
	return !inner.Start.Before(w.Start) && !inner.End.After(w.End)
}

// CoveredByAny reports whether candidate fits entirely inside the union
// of the given windows. Touching windows count as one: availability
// entered as 9-12 and 12-15 covers a 10-14 shift. Used for availability
// checks.
func CoveredByAny(candidate Window, windows []Window) bool {
	for _, w := range Merge(windows) {
		if w.Contains(candidate) {
			return true
		}
	}
	return false
}

// Merge coalesces windows that touch or overlap, returning the union as
// disjoint windows sorted by start. The input is not modified.
func Merge(windows []Window) []Window {
	if len(windows) < 2 {
		return windows
	}
	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := sorted[:1]
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}
