package storage

import (
	"context"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/domain/event"
	"github.com/wayfarernet/community_layer/internal/app/domain/moderation"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	syncdomain "github.com/wayfarernet/community_layer/internal/app/domain/sync"
	"github.com/wayfarernet/community_layer/internal/app/domain/trip"
)

// ProfileStore persists member profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	GetProfileByHandle(ctx context.Context, handle string) (profile.Profile, error)
	ListProfiles(ctx context.Context) ([]profile.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// ConnectionStore persists connection records.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, c connection.Connection) (connection.Connection, error)
	UpdateConnection(ctx context.Context, c connection.Connection) (connection.Connection, error)
	GetConnection(ctx context.Context, id string) (connection.Connection, error)
	ListConnections(ctx context.Context, profileID string) ([]connection.Connection, error)
	// FindConnectionBetween looks up the most recent connection between two
	// profiles regardless of direction.
	FindConnectionBetween(ctx context.Context, a, b string) (connection.Connection, error)
}

// SyncStore persists logged meetings.
type SyncStore interface {
	CreateSync(ctx context.Context, s syncdomain.Sync) (syncdomain.Sync, error)
	UpdateSync(ctx context.Context, s syncdomain.Sync) (syncdomain.Sync, error)
	GetSync(ctx context.Context, id string) (syncdomain.Sync, error)
	ListSyncs(ctx context.Context, profileID string) ([]syncdomain.Sync, error)
	ListConnectionSyncs(ctx context.Context, connectionID string) ([]syncdomain.Sync, error)
}

// ReferenceStore persists trust attestations. Implementations backed by the
// hosted database handle schema drift internally; callers only see this
// interface.
type ReferenceStore interface {
	CreateReference(ctx context.Context, ref reference.Reference) (reference.Reference, error)
	UpdateReference(ctx context.Context, ref reference.Reference) (reference.Reference, error)
	GetReference(ctx context.Context, id string) (reference.Reference, error)
	ListReceivedReferences(ctx context.Context, subjectID string) ([]reference.Reference, error)
	ListWrittenReferences(ctx context.Context, authorID string) ([]reference.Reference, error)
	// FindReferenceForSync returns the author's reference for a sync, if any.
	FindReferenceForSync(ctx context.Context, authorID, syncID string) (reference.Reference, bool, error)
	// FindReferenceForEvent returns the author's reference for an event, if any.
	FindReferenceForEvent(ctx context.Context, authorID, eventID string) (reference.Reference, bool, error)
	// FindReply returns the reply to a reference, if any.
	FindReply(ctx context.Context, referenceID string) (reference.Reference, bool, error)
}

// TripStore persists trips.
type TripStore interface {
	CreateTrip(ctx context.Context, t trip.Trip) (trip.Trip, error)
	UpdateTrip(ctx context.Context, t trip.Trip) (trip.Trip, error)
	GetTrip(ctx context.Context, id string) (trip.Trip, error)
	ListTrips(ctx context.Context, profileID string) ([]trip.Trip, error)
	SearchTrips(ctx context.Context, destination string, from, to time.Time) ([]trip.Trip, error)
	DeleteTrip(ctx context.Context, id string) error
}

// EventStore persists events and attendance.
type EventStore interface {
	CreateEvent(ctx context.Context, e event.Event) (event.Event, error)
	UpdateEvent(ctx context.Context, e event.Event) (event.Event, error)
	GetEvent(ctx context.Context, id string) (event.Event, error)
	ListEvents(ctx context.Context) ([]event.Event, error)

	CreateAttendance(ctx context.Context, a event.Attendance) (event.Attendance, error)
	UpdateAttendance(ctx context.Context, a event.Attendance) (event.Attendance, error)
	GetAttendance(ctx context.Context, eventID, profileID string) (event.Attendance, bool, error)
	ListAttendance(ctx context.Context, eventID string) ([]event.Attendance, error)
	DeleteAttendance(ctx context.Context, eventID, profileID string) error
}

// ModerationStore persists reports and the append-only moderation log.
type ModerationStore interface {
	CreateReport(ctx context.Context, r moderation.Report) (moderation.Report, error)
	UpdateReport(ctx context.Context, r moderation.Report) (moderation.Report, error)
	GetReport(ctx context.Context, id string) (moderation.Report, error)
	ListReports(ctx context.Context, status moderation.ReportStatus) ([]moderation.Report, error)

	AppendModerationLog(ctx context.Context, e moderation.LogEntry) (moderation.LogEntry, error)
	ListModerationLog(ctx context.Context, targetKind moderation.TargetKind, targetID string) ([]moderation.LogEntry, error)
}
