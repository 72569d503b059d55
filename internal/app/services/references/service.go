// Package references implements the trust attestation write path and the
// derived trust score.
package references

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// referenceWindow is how long after a sync occurred a reference may still be
// written.
const referenceWindow = 14 * 24 * time.Hour

var (
	// ErrNotConnected is returned when author and subject have no accepted
	// connection.
	ErrNotConnected = errors.New("no accepted connection between author and subject")
	// ErrNotParty is returned when the author is not part of the referenced
	// sync.
	ErrNotParty = errors.New("author is not part of this sync")
	// ErrSyncNotConfirmed is returned when the sync lacks both confirmations.
	ErrSyncNotConfirmed = errors.New("sync is not confirmed by both parties")
	// ErrWindowExpired is returned when the eligibility window has passed.
	ErrWindowExpired = errors.New("reference window has expired")
	// ErrAlreadyWritten is returned on a second reference for the same sync
	// or event by the same author.
	ErrAlreadyWritten = errors.New("reference already written")
	// ErrNotAttendee is returned when author or subject did not attend the
	// event.
	ErrNotAttendee = errors.New("author and subject must both attend the event")
	// ErrNotAuthor is returned when someone other than the author edits a
	// reference.
	ErrNotAuthor = errors.New("only the author can edit a reference")
	// ErrEditLimit is returned when a reference has already been edited.
	ErrEditLimit = errors.New("reference can only be edited once")
	// ErrNotSubject is returned when someone other than the subject replies.
	ErrNotSubject = errors.New("only the subject can reply to a reference")
	// ErrReplyLimit is returned when a reference already has a reply or the
	// target is itself a reply.
	ErrReplyLimit = errors.New("reference already has a reply")
)

// ScoreCache caches computed trust scores.
type ScoreCache interface {
	GetScore(ctx context.Context, profileID string) (reference.TrustScore, bool, error)
	SetScore(ctx context.Context, score reference.TrustScore) error
}

// Service manages references.
type Service struct {
	profiles    storage.ProfileStore
	connections storage.ConnectionStore
	syncs       storage.SyncStore
	events      storage.EventStore
	store       storage.ReferenceStore
	cache       ScoreCache
	log         *logger.Logger
}

// New constructs a reference service. The cache may be nil; scores are then
// computed on every read.
func New(profiles storage.ProfileStore, connections storage.ConnectionStore, syncs storage.SyncStore, events storage.EventStore, store storage.ReferenceStore, cache ScoreCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("references")
	}
	return &Service{
		profiles:    profiles,
		connections: connections,
		syncs:       syncs,
		events:      events,
		store:       store,
		cache:       cache,
		log:         log,
	}
}

func validateContent(sentiment reference.Sentiment, body string, rating *int) error {
	if !sentiment.Valid() {
		return fmt.Errorf("sentiment must be positive, neutral or negative")
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("body is required")
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	return nil
}

// WriteForSync writes a reference after a confirmed sync. The subject is the
// author's counterpart on the sync. One reference per author per sync, within
// the eligibility window.
func (s *Service) WriteForSync(ctx context.Context, authorID, syncID string, sentiment reference.Sentiment, body string, rating *int) (reference.Reference, error) {
	if err := validateContent(sentiment, body, rating); err != nil {
		return reference.Reference{}, err
	}

	sy, err := s.syncs.GetSync(ctx, syncID)
	if err != nil {
		return reference.Reference{}, err
	}
	if !sy.Involves(authorID) {
		return reference.Reference{}, ErrNotParty
	}
	if !sy.Confirmed() {
		return reference.Reference{}, ErrSyncNotConfirmed
	}
	if time.Now().UTC().After(sy.OccurredAt.Add(referenceWindow)) {
		return reference.Reference{}, ErrWindowExpired
	}

	subjectID := sy.PeerID
	if authorID == sy.PeerID {
		subjectID = sy.InitiatorID
	}

	conn, err := s.connections.GetConnection(ctx, sy.ConnectionID)
	if err != nil {
		return reference.Reference{}, err
	}
	if !conn.Status.Active() || !conn.Involves(authorID) || !conn.Involves(subjectID) {
		return reference.Reference{}, ErrNotConnected
	}

	if _, exists, err := s.store.FindReferenceForSync(ctx, authorID, syncID); err != nil {
		return reference.Reference{}, err
	} else if exists {
		return reference.Reference{}, ErrAlreadyWritten
	}

	ref := reference.Reference{
		AuthorID:     authorID,
		SubjectID:    subjectID,
		ConnectionID: conn.ID,
		Context:      reference.ContextSync,
		SyncID:       syncID,
		Sentiment:    sentiment,
		Body:         strings.TrimSpace(body),
		Rating:       rating,
		Published:    true,
	}
	return s.create(ctx, ref)
}

// WriteForEvent writes a reference after a shared event. Author and subject
// must both be attendees and hold an accepted connection. One reference per
// author per event.
func (s *Service) WriteForEvent(ctx context.Context, authorID, subjectID, eventID string, sentiment reference.Sentiment, body string, rating *int) (reference.Reference, error) {
	if err := validateContent(sentiment, body, rating); err != nil {
		return reference.Reference{}, err
	}
	if authorID == subjectID {
		return reference.Reference{}, fmt.Errorf("cannot write a reference about yourself")
	}

	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return reference.Reference{}, err
	}
	for _, profileID := range []string{authorID, subjectID} {
		if _, ok, err := s.events.GetAttendance(ctx, eventID, profileID); err != nil {
			return reference.Reference{}, err
		} else if !ok {
			return reference.Reference{}, ErrNotAttendee
		}
	}

	conn, err := s.connections.FindConnectionBetween(ctx, authorID, subjectID)
	if err != nil || !conn.Status.Active() {
		return reference.Reference{}, ErrNotConnected
	}

	if _, exists, err := s.store.FindReferenceForEvent(ctx, authorID, eventID); err != nil {
		return reference.Reference{}, err
	} else if exists {
		return reference.Reference{}, ErrAlreadyWritten
	}

	ref := reference.Reference{
		AuthorID:     authorID,
		SubjectID:    subjectID,
		ConnectionID: conn.ID,
		Context:      reference.ContextEvent,
		EventID:      eventID,
		Sentiment:    sentiment,
		Body:         strings.TrimSpace(body),
		Rating:       rating,
		Published:    true,
	}
	return s.create(ctx, ref)
}

func (s *Service) create(ctx context.Context, ref reference.Reference) (reference.Reference, error) {
	author, err := s.profiles.GetProfile(ctx, ref.AuthorID)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("author validation failed: %w", err)
	}
	if author.Suspended {
		return reference.Reference{}, fmt.Errorf("author account is suspended")
	}

	ref, err = s.store.CreateReference(ctx, ref)
	if err != nil {
		return reference.Reference{}, err
	}
	s.log.WithField("reference_id", ref.ID).
		WithField("author_id", ref.AuthorID).
		WithField("subject_id", ref.SubjectID).
		WithField("context", string(ref.Context)).
		Info("reference written")

	s.refreshScore(ctx, ref.SubjectID)
	return ref, nil
}

// Edit changes a reference's sentiment, body or rating. Only the author may
// edit, and only once.
func (s *Service) Edit(ctx context.Context, referenceID, authorID string, sentiment reference.Sentiment, body string, rating *int) (reference.Reference, error) {
	if err := validateContent(sentiment, body, rating); err != nil {
		return reference.Reference{}, err
	}

	ref, err := s.store.GetReference(ctx, referenceID)
	if err != nil {
		return reference.Reference{}, err
	}
	if ref.AuthorID != authorID {
		return reference.Reference{}, ErrNotAuthor
	}
	if ref.EditCount >= 1 {
		return reference.Reference{}, ErrEditLimit
	}
	author, err := s.profiles.GetProfile(ctx, authorID)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("author validation failed: %w", err)
	}
	if author.Suspended {
		return reference.Reference{}, fmt.Errorf("author account is suspended")
	}

	ref.Sentiment = sentiment
	ref.Body = strings.TrimSpace(body)
	ref.Rating = rating
	ref.EditCount++

	ref, err = s.store.UpdateReference(ctx, ref)
	if err != nil {
		return reference.Reference{}, err
	}
	s.log.WithField("reference_id", ref.ID).Info("reference edited")

	s.refreshScore(ctx, ref.SubjectID)
	return ref, nil
}

// Reply records the subject's single response to a received reference.
// Replies do not carry sentiment and do not affect trust scores.
func (s *Service) Reply(ctx context.Context, referenceID, subjectID, body string) (reference.Reference, error) {
	if strings.TrimSpace(body) == "" {
		return reference.Reference{}, fmt.Errorf("body is required")
	}

	parent, err := s.store.GetReference(ctx, referenceID)
	if err != nil {
		return reference.Reference{}, err
	}
	if parent.IsReply() {
		return reference.Reference{}, ErrReplyLimit
	}
	if parent.SubjectID != subjectID {
		return reference.Reference{}, ErrNotSubject
	}
	subject, err := s.profiles.GetProfile(ctx, subjectID)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("subject validation failed: %w", err)
	}
	if subject.Suspended {
		return reference.Reference{}, fmt.Errorf("subject account is suspended")
	}
	if _, exists, err := s.store.FindReply(ctx, referenceID); err != nil {
		return reference.Reference{}, err
	} else if exists {
		return reference.Reference{}, ErrReplyLimit
	}

	reply := reference.Reference{
		AuthorID:     subjectID,
		SubjectID:    parent.AuthorID,
		ConnectionID: parent.ConnectionID,
		Context:      parent.Context,
		SyncID:       parent.SyncID,
		EventID:      parent.EventID,
		Sentiment:    reference.SentimentNeutral,
		Body:         strings.TrimSpace(body),
		InReplyTo:    parent.ID,
		Published:    true,
	}
	reply, err = s.store.CreateReference(ctx, reply)
	if err != nil {
		return reference.Reference{}, err
	}
	s.log.WithField("reference_id", parent.ID).
		WithField("reply_id", reply.ID).
		Info("reference reply written")
	return reply, nil
}

// Get retrieves a reference by identifier.
func (s *Service) Get(ctx context.Context, id string) (reference.Reference, error) {
	return s.store.GetReference(ctx, id)
}

// ListReceived returns the references written about a profile.
func (s *Service) ListReceived(ctx context.Context, subjectID string) ([]reference.Reference, error) {
	return s.store.ListReceivedReferences(ctx, subjectID)
}

// ListWritten returns the references a profile has written.
func (s *Service) ListWritten(ctx context.Context, authorID string) ([]reference.Reference, error) {
	return s.store.ListWrittenReferences(ctx, authorID)
}

// SetPublished toggles a reference's visibility. Used by moderation.
func (s *Service) SetPublished(ctx context.Context, referenceID string, published bool) (reference.Reference, error) {
	ref, err := s.store.GetReference(ctx, referenceID)
	if err != nil {
		return reference.Reference{}, err
	}
	if ref.Published == published {
		return ref, nil
	}
	ref.Published = published
	ref, err = s.store.UpdateReference(ctx, ref)
	if err != nil {
		return reference.Reference{}, err
	}
	s.refreshScore(ctx, ref.SubjectID)
	return ref, nil
}

// TrustScore returns the profile's trust score, from cache when available.
func (s *Service) TrustScore(ctx context.Context, profileID string) (reference.TrustScore, error) {
	if s.cache != nil {
		if score, ok, err := s.cache.GetScore(ctx, profileID); err == nil && ok {
			return score, nil
		}
	}
	return s.ComputeTrustScore(ctx, profileID)
}

// ComputeTrustScore recomputes the score from the stored references and
// refreshes the cache.
func (s *Service) ComputeTrustScore(ctx context.Context, profileID string) (reference.TrustScore, error) {
	received, err := s.store.ListReceivedReferences(ctx, profileID)
	if err != nil {
		return reference.TrustScore{}, err
	}
	score := scoreReferences(profileID, received)
	if s.cache != nil {
		if err := s.cache.SetScore(ctx, score); err != nil {
			s.log.WithError(err).Warn("trust score cache write failed")
		}
	}
	return score, nil
}

func (s *Service) refreshScore(ctx context.Context, profileID string) {
	if _, err := s.ComputeTrustScore(ctx, profileID); err != nil {
		s.log.WithError(err).
			WithField("profile_id", profileID).
			Warn("trust score refresh failed")
	}
}

// scoreReferences derives a 0-100 score from received references. Replies and
// unpublished references do not count.
func scoreReferences(profileID string, received []reference.Reference) reference.TrustScore {
	score := reference.TrustScore{ProfileID: profileID, ComputedAt: time.Now().UTC()}
	var weighted float64
	for _, ref := range received {
		if ref.IsReply() || !ref.Published {
			continue
		}
		switch ref.Sentiment {
		case reference.SentimentPositive:
			score.Positive++
		case reference.SentimentNeutral:
			score.Neutral++
		case reference.SentimentNegative:
			score.Negative++
		default:
			continue
		}
		weighted += ref.Sentiment.Weight()
		score.Total++
	}
	if score.Total > 0 {
		score.Score = 100 * weighted / float64(score.Total)
	}
	return score
}
