// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/domain/event"
	"github.com/wayfarernet/community_layer/internal/app/domain/moderation"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	syncdomain "github.com/wayfarernet/community_layer/internal/app/domain/sync"
	"github.com/wayfarernet/community_layer/internal/app/domain/trip"
	"github.com/wayfarernet/community_layer/internal/app/storage"
)

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	profiles         map[string]profile.Profile
	profilesByHandle map[string]string
	connections      map[string]connection.Connection
	syncs            map[string]syncdomain.Sync
	references       map[string]reference.Reference
	trips            map[string]trip.Trip
	events           map[string]event.Event
	attendance       map[string]map[string]event.Attendance // eventID -> profileID
	reports          map[string]moderation.Report
	moderationLog    []moderation.LogEntry
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.ConnectionStore = (*Store)(nil)
var _ storage.SyncStore = (*Store)(nil)
var _ storage.ReferenceStore = (*Store)(nil)
var _ storage.TripStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
var _ storage.ModerationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		profiles:         make(map[string]profile.Profile),
		profilesByHandle: make(map[string]string),
		connections:      make(map[string]connection.Connection),
		syncs:            make(map[string]syncdomain.Sync),
		references:       make(map[string]reference.Reference),
		trips:            make(map[string]trip.Trip),
		events:           make(map[string]event.Event),
		attendance:       make(map[string]map[string]event.Attendance),
		reports:          make(map[string]moderation.Report),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.profiles[p.ID]; exists {
		return profile.Profile{}, fmt.Errorf("profile %s already exists", p.ID)
	}
	handle := strings.ToLower(p.Handle)
	if _, exists := s.profilesByHandle[handle]; exists {
		return profile.Profile{}, fmt.Errorf("handle %s already taken", p.Handle)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Languages = append([]string(nil), p.Languages...)

	s.profiles[p.ID] = p
	s.profilesByHandle[handle] = p.ID
	return cloneProfile(p), nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.ID]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s not found", p.ID)
	}

	// Handle is immutable once created.
	p.Handle = original.Handle
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Languages = append([]string(nil), p.Languages...)

	s.profiles[p.ID] = p
	return cloneProfile(p), nil
}

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s not found", id)
	}
	return cloneProfile(p), nil
}

func (s *Store) GetProfileByHandle(_ context.Context, handle string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.profilesByHandle[strings.ToLower(handle)]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile with handle %s not found", handle)
	}
	return cloneProfile(s.profiles[id]), nil
}

func (s *Store) ListProfiles(_ context.Context) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		result = append(result, cloneProfile(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s not found", id)
	}
	delete(s.profiles, id)
	delete(s.profilesByHandle, strings.ToLower(p.Handle))
	return nil
}

// ConnectionStore implementation ----------------------------------------------

func (s *Store) CreateConnection(_ context.Context, c connection.Connection) (connection.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.connections[c.ID]; exists {
		return connection.Connection{}, fmt.Errorf("connection %s already exists", c.ID)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.RequestedAt.IsZero() {
		c.RequestedAt = now
	}

	s.connections[c.ID] = c
	return c, nil
}

func (s *Store) UpdateConnection(_ context.Context, c connection.Connection) (connection.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.connections[c.ID]
	if !ok {
		return connection.Connection{}, fmt.Errorf("connection %s not found", c.ID)
	}

	c.RequesterID = original.RequesterID
	c.AddresseeID = original.AddresseeID
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.connections[c.ID] = c
	return c, nil
}

func (s *Store) GetConnection(_ context.Context, id string) (connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.connections[id]
	if !ok {
		return connection.Connection{}, fmt.Errorf("connection %s not found", id)
	}
	return c, nil
}

func (s *Store) ListConnections(_ context.Context, profileID string) ([]connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []connection.Connection
	for _, c := range s.connections {
		if c.Involves(profileID) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) FindConnectionBetween(_ context.Context, a, b string) (connection.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found connection.Connection
	var ok bool
	for _, c := range s.connections {
		if (c.RequesterID == a && c.AddresseeID == b) || (c.RequesterID == b && c.AddresseeID == a) {
			if !ok || c.CreatedAt.After(found.CreatedAt) {
				found = c
				ok = true
			}
		}
	}
	if !ok {
		return connection.Connection{}, fmt.Errorf("no connection between %s and %s", a, b)
	}
	return found, nil
}

// SyncStore implementation ----------------------------------------------------

func (s *Store) CreateSync(_ context.Context, sy syncdomain.Sync) (syncdomain.Sync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sy.ID == "" {
		sy.ID = s.nextIDLocked()
	} else if _, exists := s.syncs[sy.ID]; exists {
		return syncdomain.Sync{}, fmt.Errorf("sync %s already exists", sy.ID)
	}

	now := time.Now().UTC()
	sy.CreatedAt = now
	sy.UpdatedAt = now

	s.syncs[sy.ID] = sy
	return sy, nil
}

func (s *Store) UpdateSync(_ context.Context, sy syncdomain.Sync) (syncdomain.Sync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.syncs[sy.ID]
	if !ok {
		return syncdomain.Sync{}, fmt.Errorf("sync %s not found", sy.ID)
	}

	sy.ConnectionID = original.ConnectionID
	sy.InitiatorID = original.InitiatorID
	sy.PeerID = original.PeerID
	sy.CreatedAt = original.CreatedAt
	sy.UpdatedAt = time.Now().UTC()

	s.syncs[sy.ID] = sy
	return sy, nil
}

func (s *Store) GetSync(_ context.Context, id string) (syncdomain.Sync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sy, ok := s.syncs[id]
	if !ok {
		return syncdomain.Sync{}, fmt.Errorf("sync %s not found", id)
	}
	return sy, nil
}

func (s *Store) ListSyncs(_ context.Context, profileID string) ([]syncdomain.Sync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []syncdomain.Sync
	for _, sy := range s.syncs {
		if sy.Involves(profileID) {
			result = append(result, sy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return result, nil
}

func (s *Store) ListConnectionSyncs(_ context.Context, connectionID string) ([]syncdomain.Sync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []syncdomain.Sync
	for _, sy := range s.syncs {
		if sy.ConnectionID == connectionID {
			result = append(result, sy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return result, nil
}

// ReferenceStore implementation -----------------------------------------------

func (s *Store) CreateReference(_ context.Context, ref reference.Reference) (reference.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.ID == "" {
		ref.ID = s.nextIDLocked()
	} else if _, exists := s.references[ref.ID]; exists {
		return reference.Reference{}, fmt.Errorf("reference %s already exists", ref.ID)
	}

	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	ref.Rating = cloneRating(ref.Rating)

	s.references[ref.ID] = ref
	return cloneReference(ref), nil
}

func (s *Store) UpdateReference(_ context.Context, ref reference.Reference) (reference.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.references[ref.ID]
	if !ok {
		return reference.Reference{}, fmt.Errorf("reference %s not found", ref.ID)
	}

	ref.AuthorID = original.AuthorID
	ref.SubjectID = original.SubjectID
	ref.ConnectionID = original.ConnectionID
	ref.Context = original.Context
	ref.SyncID = original.SyncID
	ref.EventID = original.EventID
	ref.InReplyTo = original.InReplyTo
	ref.CreatedAt = original.CreatedAt
	ref.UpdatedAt = time.Now().UTC()
	ref.Rating = cloneRating(ref.Rating)

	s.references[ref.ID] = ref
	return cloneReference(ref), nil
}

func (s *Store) GetReference(_ context.Context, id string) (reference.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.references[id]
	if !ok {
		return reference.Reference{}, fmt.Errorf("reference %s not found", id)
	}
	return cloneReference(ref), nil
}

func (s *Store) ListReceivedReferences(_ context.Context, subjectID string) ([]reference.Reference, error) {
	return s.listReferences(func(ref reference.Reference) bool { return ref.SubjectID == subjectID })
}

func (s *Store) ListWrittenReferences(_ context.Context, authorID string) ([]reference.Reference, error) {
	return s.listReferences(func(ref reference.Reference) bool { return ref.AuthorID == authorID })
}

func (s *Store) listReferences(match func(reference.Reference) bool) ([]reference.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []reference.Reference
	for _, ref := range s.references {
		if match(ref) {
			result = append(result, cloneReference(ref))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) FindReferenceForSync(_ context.Context, authorID, syncID string) (reference.Reference, bool, error) {
	return s.findReference(func(ref reference.Reference) bool {
		return ref.AuthorID == authorID && ref.SyncID == syncID && !ref.IsReply()
	})
}

func (s *Store) FindReferenceForEvent(_ context.Context, authorID, eventID string) (reference.Reference, bool, error) {
	return s.findReference(func(ref reference.Reference) bool {
		return ref.AuthorID == authorID && ref.EventID == eventID && !ref.IsReply()
	})
}

func (s *Store) FindReply(_ context.Context, referenceID string) (reference.Reference, bool, error) {
	return s.findReference(func(ref reference.Reference) bool { return ref.InReplyTo == referenceID })
}

func (s *Store) findReference(match func(reference.Reference) bool) (reference.Reference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ref := range s.references {
		if match(ref) {
			return cloneReference(ref), true, nil
		}
	}
	return reference.Reference{}, false, nil
}

// TripStore implementation ----------------------------------------------------

func (s *Store) CreateTrip(_ context.Context, t trip.Trip) (trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	} else if _, exists := s.trips[t.ID]; exists {
		return trip.Trip{}, fmt.Errorf("trip %s already exists", t.ID)
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.trips[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTrip(_ context.Context, t trip.Trip) (trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.trips[t.ID]
	if !ok {
		return trip.Trip{}, fmt.Errorf("trip %s not found", t.ID)
	}

	t.ProfileID = original.ProfileID
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	s.trips[t.ID] = t
	return t, nil
}

func (s *Store) GetTrip(_ context.Context, id string) (trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trips[id]
	if !ok {
		return trip.Trip{}, fmt.Errorf("trip %s not found", id)
	}
	return t, nil
}

func (s *Store) ListTrips(_ context.Context, profileID string) ([]trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []trip.Trip
	for _, t := range s.trips {
		if t.ProfileID == profileID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

func (s *Store) SearchTrips(_ context.Context, destination string, from, to time.Time) ([]trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []trip.Trip
	for _, t := range s.trips {
		if !t.Public {
			continue
		}
		if destination != "" && !strings.EqualFold(t.Destination, destination) {
			continue
		}
		if !t.Overlaps(from, to) {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

func (s *Store) DeleteTrip(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[id]; !ok {
		return fmt.Errorf("trip %s not found", id)
	}
	delete(s.trips, id)
	return nil
}

// EventStore implementation ---------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, e event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	} else if _, exists := s.events[e.ID]; exists {
		return event.Event{}, fmt.Errorf("event %s already exists", e.ID)
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	s.events[e.ID] = e
	return e, nil
}

func (s *Store) UpdateEvent(_ context.Context, e event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.events[e.ID]
	if !ok {
		return event.Event{}, fmt.Errorf("event %s not found", e.ID)
	}

	e.HostID = original.HostID
	e.CreatedAt = original.CreatedAt
	e.UpdatedAt = time.Now().UTC()

	s.events[e.ID] = e
	return e, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return event.Event{}, fmt.Errorf("event %s not found", id)
	}
	return e, nil
}

func (s *Store) ListEvents(_ context.Context) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Event, 0, len(s.events))
	for _, e := range s.events {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartsAt.Before(result[j].StartsAt) })
	return result, nil
}

func (s *Store) CreateAttendance(_ context.Context, a event.Attendance) (event.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	if a.JoinedAt.IsZero() {
		a.JoinedAt = time.Now().UTC()
	}

	byProfile, ok := s.attendance[a.EventID]
	if !ok {
		byProfile = make(map[string]event.Attendance)
		s.attendance[a.EventID] = byProfile
	}
	if _, exists := byProfile[a.ProfileID]; exists {
		return event.Attendance{}, fmt.Errorf("profile %s already joined event %s", a.ProfileID, a.EventID)
	}
	byProfile[a.ProfileID] = a
	return a, nil
}

func (s *Store) UpdateAttendance(_ context.Context, a event.Attendance) (event.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProfile, ok := s.attendance[a.EventID]
	if !ok {
		return event.Attendance{}, fmt.Errorf("event %s has no attendance", a.EventID)
	}
	original, ok := byProfile[a.ProfileID]
	if !ok {
		return event.Attendance{}, fmt.Errorf("profile %s not attending event %s", a.ProfileID, a.EventID)
	}
	a.ID = original.ID
	a.JoinedAt = original.JoinedAt
	byProfile[a.ProfileID] = a
	return a, nil
}

func (s *Store) GetAttendance(_ context.Context, eventID, profileID string) (event.Attendance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attendance[eventID][profileID]
	return a, ok, nil
}

func (s *Store) ListAttendance(_ context.Context, eventID string) ([]event.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProfile := s.attendance[eventID]
	result := make([]event.Attendance, 0, len(byProfile))
	for _, a := range byProfile {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (s *Store) DeleteAttendance(_ context.Context, eventID, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attendance[eventID][profileID]; !ok {
		return fmt.Errorf("profile %s not attending event %s", profileID, eventID)
	}
	delete(s.attendance[eventID], profileID)
	return nil
}

// ModerationStore implementation ----------------------------------------------

func (s *Store) CreateReport(_ context.Context, r moderation.Report) (moderation.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	s.reports[r.ID] = r
	return r, nil
}

func (s *Store) UpdateReport(_ context.Context, r moderation.Report) (moderation.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reports[r.ID]
	if !ok {
		return moderation.Report{}, fmt.Errorf("report %s not found", r.ID)
	}

	r.ReporterID = original.ReporterID
	r.TargetKind = original.TargetKind
	r.TargetID = original.TargetID
	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	s.reports[r.ID] = r
	return r, nil
}

func (s *Store) GetReport(_ context.Context, id string) (moderation.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return moderation.Report{}, fmt.Errorf("report %s not found", id)
	}
	return r, nil
}

func (s *Store) ListReports(_ context.Context, status moderation.ReportStatus) ([]moderation.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []moderation.Report
	for _, r := range s.reports {
		if status == "" || r.Status == status {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) AppendModerationLog(_ context.Context, e moderation.LogEntry) (moderation.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.moderationLog = append(s.moderationLog, e)
	return e, nil
}

func (s *Store) ListModerationLog(_ context.Context, targetKind moderation.TargetKind, targetID string) ([]moderation.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []moderation.LogEntry
	for _, e := range s.moderationLog {
		if targetKind != "" && e.TargetKind != targetKind {
			continue
		}
		if targetID != "" && e.TargetID != targetID {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// helpers ---------------------------------------------------------------------

func cloneProfile(p profile.Profile) profile.Profile {
	p.Languages = append([]string(nil), p.Languages...)
	return p
}

func cloneReference(ref reference.Reference) reference.Reference {
	ref.Rating = cloneRating(ref.Rating)
	return ref
}

func cloneRating(r *int) *int {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}
