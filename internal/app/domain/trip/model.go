// Package trip defines announced travel plans.
package trip

import "time"

// Trip is a member's announced stay in a destination. Public trips show up
// in destination search.
type Trip struct {
	ID          string
	ProfileID   string
	Destination string
	StartDate   time.Time
	EndDate     time.Time
	Note        string
	Public      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overlaps reports whether the trip intersects the given date range.
func (t Trip) Overlaps(from, to time.Time) bool {
	return !t.StartDate.After(to) && !t.EndDate.Before(from)
}
