// Package profiles manages member accounts and profile visibility.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// ErrHandleTaken is returned when registering a handle that already exists.
var ErrHandleTaken = errors.New("handle already taken")

// ErrSuspended is returned when a suspended account attempts a write.
var ErrSuspended = errors.New("account suspended")

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,31}$`)

// Service manages member profiles.
type Service struct {
	store       storage.ProfileStore
	connections storage.ConnectionStore
	log         *logger.Logger
}

// New constructs a profile service. The connection store is used for contact
// visibility checks and may be nil when visibility is not needed.
func New(store storage.ProfileStore, connections storage.ConnectionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("profiles")
	}
	return &Service{store: store, connections: connections, log: log}
}

// Register creates a new member profile.
func (s *Service) Register(ctx context.Context, handle, displayName, contactEmail string) (profile.Profile, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	displayName = strings.TrimSpace(displayName)
	contactEmail = strings.TrimSpace(contactEmail)

	if !handlePattern.MatchString(handle) {
		return profile.Profile{}, fmt.Errorf("handle must be 3-32 lowercase letters, digits, '-' or '_'")
	}
	if displayName == "" {
		displayName = handle
	}

	if _, err := s.store.GetProfileByHandle(ctx, handle); err == nil {
		return profile.Profile{}, ErrHandleTaken
	}

	p := profile.Profile{
		Handle:       handle,
		DisplayName:  displayName,
		ContactEmail: contactEmail,
		Role:         profile.RoleMember,
	}
	p, err := s.store.CreateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithField("profile_id", p.ID).
		WithField("handle", p.Handle).
		Info("profile registered")
	return p, nil
}

// Update changes the mutable profile fields. Nil pointers leave the field
// unchanged.
func (s *Service) Update(ctx context.Context, id string, displayName, bio, location, contactEmail *string, languages []string) (profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Suspended {
		return profile.Profile{}, ErrSuspended
	}

	if displayName != nil {
		if trimmed := strings.TrimSpace(*displayName); trimmed != "" {
			p.DisplayName = trimmed
		} else {
			return profile.Profile{}, fmt.Errorf("display_name cannot be empty")
		}
	}
	if bio != nil {
		p.Bio = strings.TrimSpace(*bio)
	}
	if location != nil {
		p.Location = strings.TrimSpace(*location)
	}
	if contactEmail != nil {
		p.ContactEmail = strings.TrimSpace(*contactEmail)
	}
	if languages != nil {
		cleaned := make([]string, 0, len(languages))
		for _, lang := range languages {
			if trimmed := strings.TrimSpace(lang); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		p.Languages = cleaned
	}

	p, err = s.store.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithField("profile_id", p.ID).Info("profile updated")
	return p, nil
}

// Get retrieves a profile by identifier.
func (s *Service) Get(ctx context.Context, id string) (profile.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// GetByHandle retrieves a profile by its handle.
func (s *Service) GetByHandle(ctx context.Context, handle string) (profile.Profile, error) {
	return s.store.GetProfileByHandle(ctx, strings.ToLower(strings.TrimSpace(handle)))
}

// List returns all profiles.
func (s *Service) List(ctx context.Context) ([]profile.Profile, error) {
	return s.store.ListProfiles(ctx)
}

// View returns the profile as seen by the viewer. Contact details are only
// visible to the owner, accepted connections and moderators.
func (s *Service) View(ctx context.Context, viewerID, profileID string) (profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return profile.Profile{}, err
	}
	if viewerID == profileID {
		return p, nil
	}

	if viewerID != "" {
		viewer, err := s.store.GetProfile(ctx, viewerID)
		if err == nil && viewer.Role.CanModerate() {
			return p, nil
		}
		if s.connections != nil {
			conn, err := s.connections.FindConnectionBetween(ctx, viewerID, profileID)
			if err == nil && conn.Status.Active() {
				return p, nil
			}
		}
	}
	return p.Public(), nil
}

// SetRole changes a profile's role. Callers enforce moderator permission.
func (s *Service) SetRole(ctx context.Context, id string, role profile.Role) (profile.Profile, error) {
	if !role.Valid() {
		return profile.Profile{}, fmt.Errorf("unknown role %q", role)
	}
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Role == role {
		return p, nil
	}
	p.Role = role
	p, err = s.store.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithField("profile_id", p.ID).
		WithField("role", string(role)).
		Info("profile role changed")
	return p, nil
}

// Delete removes a profile.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProfile(ctx, id); err != nil {
		return err
	}
	s.log.WithField("profile_id", id).Info("profile deleted")
	return nil
}
