// Package connection defines the mutual relationship records between members.
package connection

import "time"

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusRemoved  Status = "removed"
)

// Active reports whether the connection currently grants visibility and
// reference eligibility.
func (s Status) Active() bool { return s == StatusAccepted }

// Connection links two profiles. The requester initiated it; the addressee
// accepts or declines.
type Connection struct {
	ID          string
	RequesterID string
	AddresseeID string
	Status      Status
	Message     string
	RequestedAt time.Time
	RespondedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Involves reports whether the profile is a party to the connection.
func (c Connection) Involves(profileID string) bool {
	return c.RequesterID == profileID || c.AddresseeID == profileID
}

// Other returns the counterpart of the given profile, or empty when the
// profile is not a party.
func (c Connection) Other(profileID string) string {
	switch profileID {
	case c.RequesterID:
		return c.AddresseeID
	case c.AddresseeID:
		return c.RequesterID
	}
	return ""
}
