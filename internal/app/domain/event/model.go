// Package event defines hosted community events and attendance.
package event

import "time"

// Event is a gathering hosted by a member. Capacity 0 means unlimited.
type Event struct {
	ID          string
	HostID      string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
	Canceled    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AttendanceStatus is a member's standing on an event.
type AttendanceStatus string

const (
	StatusGoing    AttendanceStatus = "going"
	StatusWaitlist AttendanceStatus = "waitlist"
)

// Attendance records one member's participation in an event.
type Attendance struct {
	ID        string
	EventID   string
	ProfileID string
	Status    AttendanceStatus
	JoinedAt  time.Time
}
