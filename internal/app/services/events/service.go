// Package events manages hosted gatherings, attendance and the waitlist.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/event"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

var (
	// ErrNotHost is returned when someone other than the host modifies an
	// event.
	ErrNotHost = errors.New("only the host can modify the event")
	// ErrCanceled is returned when joining a canceled event.
	ErrCanceled = errors.New("event is canceled")
	// ErrAlreadyJoined is returned on a duplicate join.
	ErrAlreadyJoined = errors.New("already joined this event")
	// ErrNotJoined is returned when leaving an event never joined.
	ErrNotJoined = errors.New("not joined this event")
)

// Service manages events.
type Service struct {
	profiles storage.ProfileStore
	store    storage.EventStore
	log      *logger.Logger
}

// New constructs an event service.
func New(profiles storage.ProfileStore, store storage.EventStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Service{profiles: profiles, store: store, log: log}
}

// Host creates an event. The host is registered as a going attendee.
func (s *Service) Host(ctx context.Context, hostID, title, description, location string, startsAt, endsAt time.Time, capacity int) (event.Event, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return event.Event{}, fmt.Errorf("title is required")
	}
	if startsAt.IsZero() {
		return event.Event{}, fmt.Errorf("starts_at is required")
	}
	if !endsAt.IsZero() && endsAt.Before(startsAt) {
		return event.Event{}, fmt.Errorf("ends_at cannot be before starts_at")
	}
	if capacity < 0 {
		return event.Event{}, fmt.Errorf("capacity cannot be negative")
	}
	host, err := s.profiles.GetProfile(ctx, hostID)
	if err != nil {
		return event.Event{}, fmt.Errorf("host validation failed: %w", err)
	}
	if host.Suspended {
		return event.Event{}, fmt.Errorf("host account is suspended")
	}

	e := event.Event{
		HostID:      hostID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Location:    strings.TrimSpace(location),
		StartsAt:    startsAt.UTC(),
		EndsAt:      endsAt.UTC(),
		Capacity:    capacity,
	}
	e, err = s.store.CreateEvent(ctx, e)
	if err != nil {
		return event.Event{}, err
	}
	if _, err := s.store.CreateAttendance(ctx, event.Attendance{
		EventID:   e.ID,
		ProfileID: hostID,
		Status:    event.StatusGoing,
	}); err != nil {
		return event.Event{}, err
	}

	s.log.WithField("event_id", e.ID).
		WithField("host_id", hostID).
		Info("event created")
	return e, nil
}

// Update changes an event's details. Only the host may update it.
func (s *Service) Update(ctx context.Context, eventID, profileID string, title, description, location *string, startsAt, endsAt *time.Time, capacity *int) (event.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}
	if e.HostID != profileID {
		return event.Event{}, ErrNotHost
	}

	if title != nil {
		if trimmed := strings.TrimSpace(*title); trimmed != "" {
			e.Title = trimmed
		} else {
			return event.Event{}, fmt.Errorf("title cannot be empty")
		}
	}
	if description != nil {
		e.Description = strings.TrimSpace(*description)
	}
	if location != nil {
		e.Location = strings.TrimSpace(*location)
	}
	if startsAt != nil {
		e.StartsAt = startsAt.UTC()
	}
	if endsAt != nil {
		e.EndsAt = endsAt.UTC()
	}
	if !e.EndsAt.IsZero() && e.EndsAt.Before(e.StartsAt) {
		return event.Event{}, fmt.Errorf("ends_at cannot be before starts_at")
	}
	if capacity != nil {
		if *capacity < 0 {
			return event.Event{}, fmt.Errorf("capacity cannot be negative")
		}
		e.Capacity = *capacity
	}

	e, err = s.store.UpdateEvent(ctx, e)
	if err != nil {
		return event.Event{}, err
	}
	s.log.WithField("event_id", e.ID).Info("event updated")
	return e, nil
}

// Cancel marks an event canceled. Only the host may cancel it.
func (s *Service) Cancel(ctx context.Context, eventID, profileID string) (event.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}
	if e.HostID != profileID {
		return event.Event{}, ErrNotHost
	}
	if e.Canceled {
		return e, nil
	}
	e.Canceled = true
	e, err = s.store.UpdateEvent(ctx, e)
	if err != nil {
		return event.Event{}, err
	}
	s.log.WithField("event_id", e.ID).Info("event canceled")
	return e, nil
}

// Join adds a profile to an event. When the event is at capacity the profile
// is waitlisted.
func (s *Service) Join(ctx context.Context, eventID, profileID string) (event.Attendance, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return event.Attendance{}, err
	}
	if e.Canceled {
		return event.Attendance{}, ErrCanceled
	}
	joiner, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return event.Attendance{}, fmt.Errorf("profile validation failed: %w", err)
	}
	if joiner.Suspended {
		return event.Attendance{}, fmt.Errorf("account is suspended")
	}
	if _, ok, err := s.store.GetAttendance(ctx, eventID, profileID); err != nil {
		return event.Attendance{}, err
	} else if ok {
		return event.Attendance{}, ErrAlreadyJoined
	}

	status := event.StatusGoing
	if e.Capacity > 0 {
		going, err := s.countGoing(ctx, eventID)
		if err != nil {
			return event.Attendance{}, err
		}
		if going >= e.Capacity {
			status = event.StatusWaitlist
		}
	}

	a, err := s.store.CreateAttendance(ctx, event.Attendance{
		EventID:   eventID,
		ProfileID: profileID,
		Status:    status,
	})
	if err != nil {
		return event.Attendance{}, err
	}
	s.log.WithField("event_id", eventID).
		WithField("profile_id", profileID).
		WithField("status", string(status)).
		Info("event joined")
	return a, nil
}

// Leave removes a profile from an event. When a going attendee leaves a full
// event, the earliest waitlisted attendee is promoted.
func (s *Service) Leave(ctx context.Context, eventID, profileID string) error {
	a, ok, err := s.store.GetAttendance(ctx, eventID, profileID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotJoined
	}
	if err := s.store.DeleteAttendance(ctx, eventID, profileID); err != nil {
		return err
	}

	if a.Status == event.StatusGoing {
		if err := s.promoteWaitlist(ctx, eventID); err != nil {
			return err
		}
	}
	s.log.WithField("event_id", eventID).
		WithField("profile_id", profileID).
		Info("event left")
	return nil
}

// Attendees returns an event's attendance records in join order.
func (s *Service) Attendees(ctx context.Context, eventID string) ([]event.Attendance, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListAttendance(ctx, eventID)
}

// Get retrieves an event by identifier.
func (s *Service) Get(ctx context.Context, id string) (event.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// List returns all events.
func (s *Service) List(ctx context.Context) ([]event.Event, error) {
	return s.store.ListEvents(ctx)
}

func (s *Service) countGoing(ctx context.Context, eventID string) (int, error) {
	all, err := s.store.ListAttendance(ctx, eventID)
	if err != nil {
		return 0, err
	}
	going := 0
	for _, a := range all {
		if a.Status == event.StatusGoing {
			going++
		}
	}
	return going, nil
}

func (s *Service) promoteWaitlist(ctx context.Context, eventID string) error {
	all, err := s.store.ListAttendance(ctx, eventID)
	if err != nil {
		return err
	}
	for _, a := range all {
		if a.Status != event.StatusWaitlist {
			continue
		}
		a.Status = event.StatusGoing
		if _, err := s.store.UpdateAttendance(ctx, a); err != nil {
			return err
		}
		s.log.WithField("event_id", eventID).
			WithField("profile_id", a.ProfileID).
			Info("waitlist attendee promoted")
		return nil
	}
	return nil
}
