package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/storage/memory"
)

func TestRegisterAndUpdate(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	p, err := svc.Register(context.Background(), "Alice", "Alice A", "alice@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected id to be generated")
	}
	if p.Handle != "alice" {
		t.Fatalf("handle not lowercased: %q", p.Handle)
	}

	if _, err := svc.Register(context.Background(), "alice", "Another", ""); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "a!", "Bad", ""); err == nil {
		t.Fatal("expected invalid handle to be rejected")
	}

	bio := "traveler"
	updated, err := svc.Update(context.Background(), p.ID, nil, &bio, nil, nil, []string{"en", " de "})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Bio != "traveler" {
		t.Fatalf("bio not updated")
	}
	if len(updated.Languages) != 2 || updated.Languages[1] != "de" {
		t.Fatalf("languages not cleaned: %v", updated.Languages)
	}
}

func TestViewContactVisibility(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	owner, err := svc.Register(context.Background(), "owner", "Owner", "owner@example.com")
	if err != nil {
		t.Fatalf("register owner: %v", err)
	}
	stranger, err := svc.Register(context.Background(), "stranger", "Stranger", "")
	if err != nil {
		t.Fatalf("register stranger: %v", err)
	}
	friend, err := svc.Register(context.Background(), "friend", "Friend", "")
	if err != nil {
		t.Fatalf("register friend: %v", err)
	}

	if _, err := store.CreateConnection(context.Background(), connection.Connection{
		RequesterID: friend.ID,
		AddresseeID: owner.ID,
		Status:      connection.StatusAccepted,
	}); err != nil {
		t.Fatalf("seed connection: %v", err)
	}

	seen, err := svc.View(context.Background(), stranger.ID, owner.ID)
	if err != nil {
		t.Fatalf("view as stranger: %v", err)
	}
	if seen.ContactEmail != "" {
		t.Fatalf("stranger should not see contact email")
	}

	seen, err = svc.View(context.Background(), friend.ID, owner.ID)
	if err != nil {
		t.Fatalf("view as friend: %v", err)
	}
	if seen.ContactEmail != "owner@example.com" {
		t.Fatalf("accepted connection should see contact email")
	}

	seen, err = svc.View(context.Background(), owner.ID, owner.ID)
	if err != nil {
		t.Fatalf("view as owner: %v", err)
	}
	if seen.ContactEmail == "" {
		t.Fatalf("owner should see own contact email")
	}
}
