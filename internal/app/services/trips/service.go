// Package trips manages announced travel plans and destination search.
package trips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/trip"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// ErrNotOwner is returned when a profile modifies someone else's trip.
var ErrNotOwner = errors.New("only the trip owner can modify it")

// Service manages trips.
type Service struct {
	profiles storage.ProfileStore
	store    storage.TripStore
	log      *logger.Logger
}

// New constructs a trip service.
func New(profiles storage.ProfileStore, store storage.TripStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trips")
	}
	return &Service{profiles: profiles, store: store, log: log}
}

// Plan announces a trip.
func (s *Service) Plan(ctx context.Context, profileID, destination string, start, end time.Time, note string, public bool) (trip.Trip, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return trip.Trip{}, fmt.Errorf("destination is required")
	}
	if start.IsZero() || end.IsZero() {
		return trip.Trip{}, fmt.Errorf("start_date and end_date are required")
	}
	if end.Before(start) {
		return trip.Trip{}, fmt.Errorf("end_date cannot be before start_date")
	}
	owner, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return trip.Trip{}, fmt.Errorf("profile validation failed: %w", err)
	}
	if owner.Suspended {
		return trip.Trip{}, fmt.Errorf("account is suspended")
	}

	t := trip.Trip{
		ProfileID:   profileID,
		Destination: destination,
		StartDate:   start.UTC(),
		EndDate:     end.UTC(),
		Note:        strings.TrimSpace(note),
		Public:      public,
	}
	t, err = s.store.CreateTrip(ctx, t)
	if err != nil {
		return trip.Trip{}, err
	}
	s.log.WithField("trip_id", t.ID).
		WithField("profile_id", profileID).
		WithField("destination", destination).
		Info("trip planned")
	return t, nil
}

// Update changes a trip. Only the owner may update it.
func (s *Service) Update(ctx context.Context, tripID, profileID string, destination *string, start, end *time.Time, note *string, public *bool) (trip.Trip, error) {
	t, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return trip.Trip{}, err
	}
	if t.ProfileID != profileID {
		return trip.Trip{}, ErrNotOwner
	}

	if destination != nil {
		if trimmed := strings.TrimSpace(*destination); trimmed != "" {
			t.Destination = trimmed
		} else {
			return trip.Trip{}, fmt.Errorf("destination cannot be empty")
		}
	}
	if start != nil {
		t.StartDate = start.UTC()
	}
	if end != nil {
		t.EndDate = end.UTC()
	}
	if t.EndDate.Before(t.StartDate) {
		return trip.Trip{}, fmt.Errorf("end_date cannot be before start_date")
	}
	if note != nil {
		t.Note = strings.TrimSpace(*note)
	}
	if public != nil {
		t.Public = *public
	}

	t, err = s.store.UpdateTrip(ctx, t)
	if err != nil {
		return trip.Trip{}, err
	}
	s.log.WithField("trip_id", t.ID).Info("trip updated")
	return t, nil
}

// Cancel deletes a trip. Only the owner may cancel it.
func (s *Service) Cancel(ctx context.Context, tripID, profileID string) error {
	t, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if t.ProfileID != profileID {
		return ErrNotOwner
	}
	if err := s.store.DeleteTrip(ctx, tripID); err != nil {
		return err
	}
	s.log.WithField("trip_id", tripID).Info("trip canceled")
	return nil
}

// Get retrieves a trip by identifier.
func (s *Service) Get(ctx context.Context, id string) (trip.Trip, error) {
	return s.store.GetTrip(ctx, id)
}

// List returns a profile's trips.
func (s *Service) List(ctx context.Context, profileID string) ([]trip.Trip, error) {
	return s.store.ListTrips(ctx, profileID)
}

// Search returns public trips overlapping the date range, optionally filtered
// by destination. A zero range defaults to the coming year.
func (s *Service) Search(ctx context.Context, destination string, from, to time.Time) ([]trip.Trip, error) {
	if from.IsZero() {
		from = time.Now().UTC()
	}
	if to.IsZero() {
		to = from.AddDate(1, 0, 0)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("to cannot be before from")
	}
	return s.store.SearchTrips(ctx, strings.TrimSpace(destination), from.UTC(), to.UTC())
}
