// Package sync defines logged in-person meetings between connected members.
package sync

import "time"

// Sync records a completed meeting on a connection. Each side confirms
// independently.
type Sync struct {
	ID                 string
	ConnectionID       string
	InitiatorID        string
	PeerID             string
	OccurredAt         time.Time
	Note               string
	InitiatorConfirmed bool
	PeerConfirmed      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Confirmed reports whether both sides have confirmed the meeting.
func (s Sync) Confirmed() bool {
	return s.InitiatorConfirmed && s.PeerConfirmed
}

// Involves reports whether the profile is a party to the sync.
func (s Sync) Involves(profileID string) bool {
	return s.InitiatorID == profileID || s.PeerID == profileID
}
