// Package syncs manages logged in-person meetings.
package syncs

import (
	"context"
	"errors"
	"fmt"
	"time"

	syncdomain "github.com/wayfarernet/community_layer/internal/app/domain/sync"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

var (
	// ErrNotConnected is returned when logging a sync on a connection that
	// is not accepted.
	ErrNotConnected = errors.New("connection is not accepted")
	// ErrNotParty is returned when a profile acts on a sync it is not part of.
	ErrNotParty = errors.New("profile is not part of this sync")
	// ErrAlreadyConfirmed is returned when confirming a sync twice.
	ErrAlreadyConfirmed = errors.New("sync already confirmed")
)

// Service manages syncs.
type Service struct {
	profiles    storage.ProfileStore
	connections storage.ConnectionStore
	store       storage.SyncStore
	log         *logger.Logger
}

// New constructs a sync service.
func New(profiles storage.ProfileStore, connections storage.ConnectionStore, store storage.SyncStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("syncs")
	}
	return &Service{profiles: profiles, connections: connections, store: store, log: log}
}

// Log records a meeting on an accepted connection. The initiator's side is
// confirmed immediately; the peer confirms separately.
func (s *Service) Log(ctx context.Context, connectionID, initiatorID string, occurredAt time.Time, note string) (syncdomain.Sync, error) {
	conn, err := s.connections.GetConnection(ctx, connectionID)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	if !conn.Status.Active() {
		return syncdomain.Sync{}, ErrNotConnected
	}
	if !conn.Involves(initiatorID) {
		return syncdomain.Sync{}, ErrNotParty
	}
	initiator, err := s.profiles.GetProfile(ctx, initiatorID)
	if err != nil {
		return syncdomain.Sync{}, fmt.Errorf("initiator validation failed: %w", err)
	}
	if initiator.Suspended {
		return syncdomain.Sync{}, fmt.Errorf("initiator account is suspended")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	if occurredAt.After(time.Now().UTC()) {
		return syncdomain.Sync{}, fmt.Errorf("occurred_at cannot be in the future")
	}

	sy := syncdomain.Sync{
		ConnectionID:       connectionID,
		InitiatorID:        initiatorID,
		PeerID:             conn.Other(initiatorID),
		OccurredAt:         occurredAt.UTC(),
		Note:               note,
		InitiatorConfirmed: true,
	}
	sy, err = s.store.CreateSync(ctx, sy)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	s.log.WithField("sync_id", sy.ID).
		WithField("connection_id", connectionID).
		Info("sync logged")
	return sy, nil
}

// Confirm records the peer's confirmation of a logged sync.
func (s *Service) Confirm(ctx context.Context, syncID, profileID string) (syncdomain.Sync, error) {
	sy, err := s.store.GetSync(ctx, syncID)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	if !sy.Involves(profileID) {
		return syncdomain.Sync{}, ErrNotParty
	}

	switch profileID {
	case sy.InitiatorID:
		if sy.InitiatorConfirmed {
			return syncdomain.Sync{}, ErrAlreadyConfirmed
		}
		sy.InitiatorConfirmed = true
	case sy.PeerID:
		if sy.PeerConfirmed {
			return syncdomain.Sync{}, ErrAlreadyConfirmed
		}
		sy.PeerConfirmed = true
	}

	sy, err = s.store.UpdateSync(ctx, sy)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	s.log.WithField("sync_id", sy.ID).
		WithField("confirmed", sy.Confirmed()).
		Info("sync confirmed")
	return sy, nil
}

// Get retrieves a sync by identifier.
func (s *Service) Get(ctx context.Context, id string) (syncdomain.Sync, error) {
	return s.store.GetSync(ctx, id)
}

// List returns the syncs a profile is part of.
func (s *Service) List(ctx context.Context, profileID string) ([]syncdomain.Sync, error) {
	return s.store.ListSyncs(ctx, profileID)
}

// ListForConnection returns the syncs logged on a connection.
func (s *Service) ListForConnection(ctx context.Context, connectionID string) ([]syncdomain.Sync, error) {
	return s.store.ListConnectionSyncs(ctx, connectionID)
}
