package connections

import (
	"context"
	"errors"
	"testing"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/storage/memory"
)

func seedProfiles(t *testing.T, store *memory.Store, handles ...string) []profile.Profile {
	t.Helper()
	result := make([]profile.Profile, 0, len(handles))
	for _, handle := range handles {
		p, err := store.CreateProfile(context.Background(), profile.Profile{
			Handle:      handle,
			DisplayName: handle,
			Role:        profile.RoleMember,
		})
		if err != nil {
			t.Fatalf("seed profile %s: %v", handle, err)
		}
		result = append(result, p)
	}
	return result
}

func TestRequestRespondLifecycle(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	people := seedProfiles(t, store, "alice", "bob")

	conn, err := svc.Request(context.Background(), people[0].ID, people[1].ID, "met at the meetup")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if conn.Status != connection.StatusPending {
		t.Fatalf("expected pending, got %s", conn.Status)
	}

	if _, err := svc.Request(context.Background(), people[1].ID, people[0].ID, ""); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}

	if _, err := svc.Respond(context.Background(), conn.ID, people[0].ID, true); !errors.Is(err, ErrNotAddressee) {
		t.Fatalf("requester must not respond, got %v", err)
	}

	conn, err = svc.Respond(context.Background(), conn.ID, people[1].ID, true)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if conn.Status != connection.StatusAccepted || conn.RespondedAt == nil {
		t.Fatalf("expected accepted with responded_at, got %+v", conn)
	}

	if _, err := svc.Respond(context.Background(), conn.ID, people[1].ID, false); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}

	conn, err = svc.Remove(context.Background(), conn.ID, people[0].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if conn.Status != connection.StatusRemoved {
		t.Fatalf("expected removed, got %s", conn.Status)
	}

	// A removed connection does not block a fresh request.
	if _, err := svc.Request(context.Background(), people[1].ID, people[0].ID, ""); err != nil {
		t.Fatalf("request after removal: %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	people := seedProfiles(t, store, "alice")

	if _, err := svc.Request(context.Background(), people[0].ID, people[0].ID, ""); err == nil {
		t.Fatal("self connection must be rejected")
	}
	if _, err := svc.Request(context.Background(), people[0].ID, "missing", ""); err == nil {
		t.Fatal("unknown addressee must be rejected")
	}
}
