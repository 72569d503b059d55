// Package connections manages the relationship lifecycle between members.
package connections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

var (
	// ErrAlreadyConnected is returned when a pending or accepted connection
	// already exists between the two profiles.
	ErrAlreadyConnected = errors.New("connection already exists")
	// ErrNotAddressee is returned when someone other than the addressee
	// responds to a request.
	ErrNotAddressee = errors.New("only the addressee can respond")
	// ErrNotPending is returned when responding to a non-pending connection.
	ErrNotPending = errors.New("connection is not pending")
	// ErrNotParty is returned when a profile acts on a connection it is not
	// part of.
	ErrNotParty = errors.New("profile is not part of this connection")
)

// Service manages connections.
type Service struct {
	profiles storage.ProfileStore
	store    storage.ConnectionStore
	log      *logger.Logger
}

// New constructs a connection service.
func New(profiles storage.ProfileStore, store storage.ConnectionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("connections")
	}
	return &Service{profiles: profiles, store: store, log: log}
}

// Request creates a pending connection from requester to addressee.
func (s *Service) Request(ctx context.Context, requesterID, addresseeID, message string) (connection.Connection, error) {
	requesterID = strings.TrimSpace(requesterID)
	addresseeID = strings.TrimSpace(addresseeID)
	if requesterID == "" || addresseeID == "" {
		return connection.Connection{}, fmt.Errorf("requester_id and addressee_id are required")
	}
	if requesterID == addresseeID {
		return connection.Connection{}, fmt.Errorf("cannot connect a profile to itself")
	}

	requester, err := s.profiles.GetProfile(ctx, requesterID)
	if err != nil {
		return connection.Connection{}, fmt.Errorf("requester validation failed: %w", err)
	}
	if requester.Suspended {
		return connection.Connection{}, fmt.Errorf("requester account is suspended")
	}
	if _, err := s.profiles.GetProfile(ctx, addresseeID); err != nil {
		return connection.Connection{}, fmt.Errorf("addressee validation failed: %w", err)
	}

	existing, err := s.store.FindConnectionBetween(ctx, requesterID, addresseeID)
	if err == nil {
		if existing.Status == connection.StatusPending || existing.Status.Active() {
			return connection.Connection{}, ErrAlreadyConnected
		}
	}

	conn := connection.Connection{
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      connection.StatusPending,
		Message:     strings.TrimSpace(message),
		RequestedAt: time.Now().UTC(),
	}
	conn, err = s.store.CreateConnection(ctx, conn)
	if err != nil {
		return connection.Connection{}, err
	}
	s.log.WithField("connection_id", conn.ID).
		WithField("requester_id", requesterID).
		WithField("addressee_id", addresseeID).
		Info("connection requested")
	return conn, nil
}

// Respond accepts or declines a pending request. Only the addressee may
// respond.
func (s *Service) Respond(ctx context.Context, connectionID, profileID string, accept bool) (connection.Connection, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return connection.Connection{}, err
	}
	if conn.AddresseeID != profileID {
		return connection.Connection{}, ErrNotAddressee
	}
	if conn.Status != connection.StatusPending {
		return connection.Connection{}, ErrNotPending
	}

	now := time.Now().UTC()
	conn.RespondedAt = &now
	if accept {
		conn.Status = connection.StatusAccepted
	} else {
		conn.Status = connection.StatusDeclined
	}

	conn, err = s.store.UpdateConnection(ctx, conn)
	if err != nil {
		return connection.Connection{}, err
	}
	s.log.WithField("connection_id", conn.ID).
		WithField("status", string(conn.Status)).
		Info("connection responded")
	return conn, nil
}

// Remove ends an accepted connection. Either party may remove it.
func (s *Service) Remove(ctx context.Context, connectionID, profileID string) (connection.Connection, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return connection.Connection{}, err
	}
	if !conn.Involves(profileID) {
		return connection.Connection{}, ErrNotParty
	}
	if !conn.Status.Active() {
		return conn, nil
	}

	conn.Status = connection.StatusRemoved
	conn, err = s.store.UpdateConnection(ctx, conn)
	if err != nil {
		return connection.Connection{}, err
	}
	s.log.WithField("connection_id", conn.ID).Info("connection removed")
	return conn, nil
}

// Get retrieves a connection by identifier.
func (s *Service) Get(ctx context.Context, id string) (connection.Connection, error) {
	return s.store.GetConnection(ctx, id)
}

// List returns the connections a profile is part of.
func (s *Service) List(ctx context.Context, profileID string) ([]connection.Connection, error) {
	return s.store.ListConnections(ctx, profileID)
}
