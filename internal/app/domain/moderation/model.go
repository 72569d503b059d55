// Package moderation defines member reports and the moderation audit log.
package moderation

import "time"

// TargetKind is the type of entity a report or action points at.
type TargetKind string

const (
	TargetProfile   TargetKind = "profile"
	TargetEvent     TargetKind = "event"
	TargetReference TargetKind = "reference"
)

// Valid reports whether the target kind is a known value.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetProfile, TargetEvent, TargetReference:
		return true
	}
	return false
}

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Report is a member's complaint about a profile, event or reference.
type Report struct {
	ID         string
	ReporterID string
	TargetKind TargetKind
	TargetID   string
	Reason     string
	Status     ReportStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LogEntry is one append-only record of a moderator action.
type LogEntry struct {
	ID         string
	ActorID    string
	Action     string
	TargetKind TargetKind
	TargetID   string
	ReportID   string
	Note       string
	CreatedAt  time.Time
}
