package references

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/domain/event"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	syncdomain "github.com/wayfarernet/community_layer/internal/app/domain/sync"
	"github.com/wayfarernet/community_layer/internal/app/storage/memory"
)

type fixture struct {
	store *memory.Store
	svc   *Service
	alice profile.Profile
	bob   profile.Profile
	conn  connection.Connection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, store, store, nil, nil)

	alice, err := store.CreateProfile(context.Background(), profile.Profile{Handle: "alice", Role: profile.RoleMember})
	if err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	bob, err := store.CreateProfile(context.Background(), profile.Profile{Handle: "bob", Role: profile.RoleMember})
	if err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	conn, err := store.CreateConnection(context.Background(), connection.Connection{
		RequesterID: alice.ID,
		AddresseeID: bob.ID,
		Status:      connection.StatusAccepted,
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return &fixture{store: store, svc: svc, alice: alice, bob: bob, conn: conn}
}

func (f *fixture) confirmedSync(t *testing.T, occurredAt time.Time) syncdomain.Sync {
	t.Helper()
	sy, err := f.store.CreateSync(context.Background(), syncdomain.Sync{
		ConnectionID:       f.conn.ID,
		InitiatorID:        f.alice.ID,
		PeerID:             f.bob.ID,
		OccurredAt:         occurredAt,
		InitiatorConfirmed: true,
		PeerConfirmed:      true,
	})
	if err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	return sy
}

func TestWriteForSync(t *testing.T) {
	f := newFixture(t)
	sy := f.confirmedSync(t, time.Now().UTC().Add(-48*time.Hour))

	ref, err := f.svc.WriteForSync(context.Background(), f.alice.ID, sy.ID, reference.SentimentPositive, "great company", nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if ref.SubjectID != f.bob.ID {
		t.Fatalf("subject should be the sync counterpart, got %s", ref.SubjectID)
	}
	if ref.Context != reference.ContextSync || ref.SyncID != sy.ID {
		t.Fatalf("unexpected reference %+v", ref)
	}
	if !ref.Published {
		t.Fatal("reference should be published on creation")
	}

	// One reference per author per sync; the counterpart may still write.
	if _, err := f.svc.WriteForSync(context.Background(), f.alice.ID, sy.ID, reference.SentimentNeutral, "again", nil); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("expected ErrAlreadyWritten, got %v", err)
	}
	if _, err := f.svc.WriteForSync(context.Background(), f.bob.ID, sy.ID, reference.SentimentPositive, "likewise", nil); err != nil {
		t.Fatalf("counterpart write: %v", err)
	}
}

func TestWriteForSyncEligibility(t *testing.T) {
	f := newFixture(t)

	unconfirmed, err := f.store.CreateSync(context.Background(), syncdomain.Sync{
		ConnectionID:       f.conn.ID,
		InitiatorID:        f.alice.ID,
		PeerID:             f.bob.ID,
		OccurredAt:         time.Now().UTC().Add(-time.Hour),
		InitiatorConfirmed: true,
	})
	if err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	if _, err := f.svc.WriteForSync(context.Background(), f.alice.ID, unconfirmed.ID, reference.SentimentPositive, "x", nil); !errors.Is(err, ErrSyncNotConfirmed) {
		t.Fatalf("expected ErrSyncNotConfirmed, got %v", err)
	}

	expired := f.confirmedSync(t, time.Now().UTC().Add(-20*24*time.Hour))
	if _, err := f.svc.WriteForSync(context.Background(), f.alice.ID, expired.ID, reference.SentimentPositive, "x", nil); !errors.Is(err, ErrWindowExpired) {
		t.Fatalf("expected ErrWindowExpired, got %v", err)
	}

	recent := f.confirmedSync(t, time.Now().UTC().Add(-time.Hour))
	if _, err := f.svc.WriteForSync(context.Background(), "carol", recent.ID, reference.SentimentPositive, "x", nil); !errors.Is(err, ErrNotParty) {
		t.Fatalf("expected ErrNotParty, got %v", err)
	}
	if _, err := f.svc.WriteForSync(context.Background(), f.alice.ID, recent.ID, "enthusiastic", "x", nil); err == nil {
		t.Fatal("unknown sentiment must be rejected")
	}
	bad := 9
	if _, err := f.svc.WriteForSync(context.Background(), f.alice.ID, recent.ID, reference.SentimentPositive, "x", &bad); err == nil {
		t.Fatal("out of range rating must be rejected")
	}
}

func TestWriteForEvent(t *testing.T) {
	f := newFixture(t)

	e, err := f.store.CreateEvent(context.Background(), event.Event{
		HostID:   f.alice.ID,
		Title:    "potluck",
		StartsAt: time.Now().UTC().Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	for _, id := range []string{f.alice.ID, f.bob.ID} {
		if _, err := f.store.CreateAttendance(context.Background(), event.Attendance{
			EventID:   e.ID,
			ProfileID: id,
			Status:    event.StatusGoing,
		}); err != nil {
			t.Fatalf("seed attendance: %v", err)
		}
	}

	ref, err := f.svc.WriteForEvent(context.Background(), f.alice.ID, f.bob.ID, e.ID, reference.SentimentNeutral, "nice chat", nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if ref.Context != reference.ContextEvent || ref.EventID != e.ID {
		t.Fatalf("unexpected reference %+v", ref)
	}

	if _, err := f.svc.WriteForEvent(context.Background(), f.alice.ID, f.bob.ID, e.ID, reference.SentimentPositive, "again", nil); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("expected ErrAlreadyWritten, got %v", err)
	}

	carol, err := f.store.CreateProfile(context.Background(), profile.Profile{Handle: "carol", Role: profile.RoleMember})
	if err != nil {
		t.Fatalf("seed carol: %v", err)
	}
	if _, err := f.svc.WriteForEvent(context.Background(), f.alice.ID, carol.ID, e.ID, reference.SentimentPositive, "x", nil); !errors.Is(err, ErrNotAttendee) {
		t.Fatalf("expected ErrNotAttendee, got %v", err)
	}
}

func TestEditLimit(t *testing.T) {
	f := newFixture(t)
	sy := f.confirmedSync(t, time.Now().UTC().Add(-time.Hour))

	ref, err := f.svc.WriteForSync(context.Background(), f.alice.ID, sy.ID, reference.SentimentPositive, "first draft", nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := f.svc.Edit(context.Background(), ref.ID, f.bob.ID, reference.SentimentNegative, "hijack", nil); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}

	edited, err := f.svc.Edit(context.Background(), ref.ID, f.alice.ID, reference.SentimentNeutral, "second thoughts", nil)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.EditCount != 1 || edited.Body != "second thoughts" {
		t.Fatalf("unexpected edit result %+v", edited)
	}

	if _, err := f.svc.Edit(context.Background(), ref.ID, f.alice.ID, reference.SentimentPositive, "third", nil); !errors.Is(err, ErrEditLimit) {
		t.Fatalf("expected ErrEditLimit, got %v", err)
	}
}

func TestReplyLimit(t *testing.T) {
	f := newFixture(t)
	sy := f.confirmedSync(t, time.Now().UTC().Add(-time.Hour))

	ref, err := f.svc.WriteForSync(context.Background(), f.alice.ID, sy.ID, reference.SentimentNegative, "late and loud", nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := f.svc.Reply(context.Background(), ref.ID, f.alice.ID, "self reply"); !errors.Is(err, ErrNotSubject) {
		t.Fatalf("expected ErrNotSubject, got %v", err)
	}

	reply, err := f.svc.Reply(context.Background(), ref.ID, f.bob.ID, "the trains were down")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.InReplyTo != ref.ID || reply.AuthorID != f.bob.ID {
		t.Fatalf("unexpected reply %+v", reply)
	}

	if _, err := f.svc.Reply(context.Background(), ref.ID, f.bob.ID, "another"); !errors.Is(err, ErrReplyLimit) {
		t.Fatalf("expected ErrReplyLimit, got %v", err)
	}
	if _, err := f.svc.Reply(context.Background(), reply.ID, f.alice.ID, "reply to reply"); !errors.Is(err, ErrReplyLimit) {
		t.Fatalf("expected ErrReplyLimit for reply target, got %v", err)
	}
}

func TestSuspendedProfileCannotEditOrReply(t *testing.T) {
	f := newFixture(t)
	sy := f.confirmedSync(t, time.Now().UTC().Add(-time.Hour))

	ref, err := f.svc.WriteForSync(context.Background(), f.alice.ID, sy.ID, reference.SentimentPositive, "solid", nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	f.bob.Suspended = true
	if _, err := f.store.UpdateProfile(context.Background(), f.bob); err != nil {
		t.Fatalf("suspend bob: %v", err)
	}
	if _, err := f.svc.Reply(context.Background(), ref.ID, f.bob.ID, "objection"); err == nil {
		t.Fatal("suspended subject must not reply")
	}

	f.alice.Suspended = true
	if _, err := f.store.UpdateProfile(context.Background(), f.alice); err != nil {
		t.Fatalf("suspend alice: %v", err)
	}
	if _, err := f.svc.Edit(context.Background(), ref.ID, f.alice.ID, reference.SentimentNeutral, "revised", nil); err == nil {
		t.Fatal("suspended author must not edit")
	}
}

func TestTrustScore(t *testing.T) {
	f := newFixture(t)

	sentiments := []reference.Sentiment{
		reference.SentimentPositive,
		reference.SentimentPositive,
		reference.SentimentNeutral,
		reference.SentimentNegative,
	}
	for _, sentiment := range sentiments {
		if _, err := f.store.CreateReference(context.Background(), reference.Reference{
			AuthorID:     f.alice.ID,
			SubjectID:    f.bob.ID,
			ConnectionID: f.conn.ID,
			Context:      reference.ContextSync,
			Sentiment:    sentiment,
			Body:         "x",
			Published:    true,
		}); err != nil {
			t.Fatalf("seed reference: %v", err)
		}
	}
	// Replies and unpublished references must not count.
	if _, err := f.store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  f.alice.ID,
		SubjectID: f.bob.ID,
		Sentiment: reference.SentimentNegative,
		Body:      "hidden",
		Published: false,
	}); err != nil {
		t.Fatalf("seed unpublished: %v", err)
	}
	if _, err := f.store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  f.alice.ID,
		SubjectID: f.bob.ID,
		Sentiment: reference.SentimentNegative,
		Body:      "reply",
		InReplyTo: "some-ref",
		Published: true,
	}); err != nil {
		t.Fatalf("seed reply: %v", err)
	}

	score, err := f.svc.TrustScore(context.Background(), f.bob.ID)
	if err != nil {
		t.Fatalf("trust score: %v", err)
	}
	if score.Total != 4 || score.Positive != 2 || score.Neutral != 1 || score.Negative != 1 {
		t.Fatalf("unexpected counts %+v", score)
	}
	if score.Score != 62.5 {
		t.Fatalf("expected score 62.5, got %v", score.Score)
	}

	empty, err := f.svc.TrustScore(context.Background(), f.alice.ID)
	if err != nil {
		t.Fatalf("trust score: %v", err)
	}
	if empty.Score != 0 || empty.Total != 0 {
		t.Fatalf("expected zero score, got %+v", empty)
	}
}
