package supabase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	"github.com/wayfarernet/community_layer/internal/app/storage"
)

const referencesTable = "references"

// bodyColumns are the column names the hosted schema has used for the
// reference text across its revisions, in probe order.
var bodyColumns = []string{"body", "content", "feedback", "comment"}

// ReferenceStore persists references through the hosted database. Writes go
// through the create_reference stored procedure when it exists; older schema
// revisions without it get a direct table insert with legacy column probing.
type ReferenceStore struct {
	client *Client

	// Observe, when set, receives the outcome of each write attempt:
	// "rpc", "fallback:<column>" or "rejected".
	Observe func(outcome string)

	mu sync.Mutex
	// resolved fallback state, cached after the first successful probe
	useFallback bool
	bodyColumn  string
	scaleRating bool
}

var _ storage.ReferenceStore = (*ReferenceStore)(nil)

// NewReferenceStore creates a ReferenceStore on the given client.
func NewReferenceStore(client *Client) *ReferenceStore {
	return &ReferenceStore{client: client}
}

func (s *ReferenceStore) observe(outcome string) {
	if s.Observe != nil {
		s.Observe(outcome)
	}
}

// refRow mirrors the remote row. The reference text decodes from whichever
// legacy column the remote schema carries.
type refRow struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id"`
	SubjectID    string    `json:"subject_id"`
	ConnectionID string    `json:"connection_id"`
	Context      string    `json:"context"`
	SyncID       string    `json:"sync_id"`
	EventID      string    `json:"event_id"`
	Sentiment    string    `json:"sentiment"`
	Body         string    `json:"body"`
	Content      string    `json:"content"`
	Feedback     string    `json:"feedback"`
	Comment      string    `json:"comment"`
	Rating       *int      `json:"rating"`
	InReplyTo    string    `json:"in_reply_to"`
	EditCount    int       `json:"edit_count"`
	Published    bool      `json:"published"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r refRow) toDomain() reference.Reference {
	body := r.Body
	for _, candidate := range []string{r.Content, r.Feedback, r.Comment} {
		if body == "" && candidate != "" {
			body = candidate
		}
	}
	rating := r.Rating
	if rating != nil && *rating > 5 {
		// Remote schema stores a 0-100 scale.
		scaled := *rating / 20
		rating = &scaled
	}
	return reference.Reference{
		ID:           r.ID,
		AuthorID:     r.AuthorID,
		SubjectID:    r.SubjectID,
		ConnectionID: r.ConnectionID,
		Context:      reference.Context(r.Context),
		SyncID:       r.SyncID,
		EventID:      r.EventID,
		Sentiment:    reference.Sentiment(r.Sentiment),
		Body:         body,
		Rating:       rating,
		InReplyTo:    r.InReplyTo,
		EditCount:    r.EditCount,
		Published:    r.Published,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func decodeRows(data []byte) ([]refRow, error) {
	var rows []refRow
	if err := json.Unmarshal(data, &rows); err != nil {
		// Stored procedures may return a single object instead of an array.
		var row refRow
		if objErr := json.Unmarshal(data, &row); objErr == nil {
			return []refRow{row}, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func decodeOne(data []byte) (reference.Reference, error) {
	rows, err := decodeRows(data)
	if err != nil {
		return reference.Reference{}, err
	}
	if len(rows) == 0 {
		return reference.Reference{}, sql.ErrNoRows
	}
	return rows[0].toDomain(), nil
}

// CreateReference writes a reference. The stored procedure is preferred; when
// the remote schema predates it the write falls back to a direct insert,
// probing legacy body column names and rating scales.
func (s *ReferenceStore) CreateReference(ctx context.Context, ref reference.Reference) (reference.Reference, error) {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now

	s.mu.Lock()
	skipRPC := s.useFallback
	s.mu.Unlock()

	if !skipRPC {
		data, err := s.client.rpc(ctx, "create_reference", map[string]interface{}{
			"p_id":            ref.ID,
			"p_author_id":     ref.AuthorID,
			"p_subject_id":    ref.SubjectID,
			"p_connection_id": ref.ConnectionID,
			"p_context":       string(ref.Context),
			"p_sync_id":       ref.SyncID,
			"p_event_id":      ref.EventID,
			"p_sentiment":     string(ref.Sentiment),
			"p_body":          ref.Body,
			"p_rating":        ref.Rating,
			"p_in_reply_to":   ref.InReplyTo,
		})
		if err == nil {
			s.observe("rpc")
			stored, decodeErr := decodeOne(data)
			if decodeErr != nil {
				// Procedure variants that return void; the insert happened.
				return ref, nil
			}
			return stored, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.MissingFunction() {
			s.observe("rejected")
			return reference.Reference{}, err
		}
		s.mu.Lock()
		s.useFallback = true
		s.mu.Unlock()
	}

	return s.insertFallback(ctx, ref)
}

func (s *ReferenceStore) insertFallback(ctx context.Context, ref reference.Reference) (reference.Reference, error) {
	s.mu.Lock()
	resolvedColumn := s.bodyColumn
	resolvedScale := s.scaleRating
	s.mu.Unlock()

	candidates := bodyColumns
	if resolvedColumn != "" {
		candidates = []string{resolvedColumn}
	}

	for _, column := range candidates {
		stored, err := s.insertWithColumn(ctx, ref, column, resolvedScale)
		if err == nil {
			s.mu.Lock()
			s.bodyColumn = column
			s.mu.Unlock()
			s.observe("fallback:" + column)
			return stored, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.CheckViolation() && ref.Rating != nil && !resolvedScale {
			// Rating check rejected the 1-5 scale; retry on 0-100.
			stored, retryErr := s.insertWithColumn(ctx, ref, column, true)
			if retryErr == nil {
				s.mu.Lock()
				s.bodyColumn = column
				s.scaleRating = true
				s.mu.Unlock()
				s.observe("fallback:" + column)
				return stored, nil
			}
			err = retryErr
		}

		if errors.As(err, &apiErr) && apiErr.UndefinedColumn() {
			continue
		}
		s.observe("rejected")
		return reference.Reference{}, err
	}

	s.observe("rejected")
	return reference.Reference{}, fmt.Errorf("no compatible body column in remote schema (tried %v)", candidates)
}

func (s *ReferenceStore) insertWithColumn(ctx context.Context, ref reference.Reference, column string, scaleRating bool) (reference.Reference, error) {
	payload := map[string]interface{}{
		"id":            ref.ID,
		"author_id":     ref.AuthorID,
		"subject_id":    ref.SubjectID,
		"connection_id": ref.ConnectionID,
		"context":       string(ref.Context),
		"sync_id":       ref.SyncID,
		"event_id":      ref.EventID,
		"sentiment":     string(ref.Sentiment),
		"in_reply_to":   ref.InReplyTo,
		"edit_count":    ref.EditCount,
		"published":     ref.Published,
		"created_at":    ref.CreatedAt,
		"updated_at":    ref.UpdatedAt,
		column:          ref.Body,
	}
	if ref.Rating != nil {
		rating := *ref.Rating
		if scaleRating {
			rating *= 20
		}
		payload["rating"] = rating
	}

	data, err := s.client.table(ctx, http.MethodPost, referencesTable, payload, "")
	if err != nil {
		return reference.Reference{}, err
	}
	stored, decodeErr := decodeOne(data)
	if decodeErr != nil {
		return ref, nil
	}
	return stored, nil
}

// UpdateReference patches the mutable fields of a reference.
func (s *ReferenceStore) UpdateReference(ctx context.Context, ref reference.Reference) (reference.Reference, error) {
	s.mu.Lock()
	column := s.bodyColumn
	scale := s.scaleRating
	s.mu.Unlock()
	if column == "" {
		column = "body"
	}

	payload := map[string]interface{}{
		"sentiment":  string(ref.Sentiment),
		"edit_count": ref.EditCount,
		"published":  ref.Published,
		"updated_at": time.Now().UTC(),
		column:       ref.Body,
	}
	if ref.Rating != nil {
		rating := *ref.Rating
		if scale {
			rating *= 20
		}
		payload["rating"] = rating
	}

	data, err := s.client.table(ctx, http.MethodPatch, referencesTable, payload, "id=eq."+neturl.QueryEscape(ref.ID))
	if err != nil {
		return reference.Reference{}, err
	}
	return decodeOne(data)
}

// GetReference fetches a reference by id.
func (s *ReferenceStore) GetReference(ctx context.Context, id string) (reference.Reference, error) {
	data, err := s.client.table(ctx, http.MethodGet, referencesTable, nil, "id=eq."+neturl.QueryEscape(id)+"&limit=1")
	if err != nil {
		return reference.Reference{}, err
	}
	return decodeOne(data)
}

func (s *ReferenceStore) list(ctx context.Context, query string) ([]reference.Reference, error) {
	data, err := s.client.table(ctx, http.MethodGet, referencesTable, nil, query+"&order=created_at.asc")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	result := make([]reference.Reference, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// ListReceivedReferences lists references written about a profile.
func (s *ReferenceStore) ListReceivedReferences(ctx context.Context, subjectID string) ([]reference.Reference, error) {
	return s.list(ctx, "subject_id=eq."+neturl.QueryEscape(subjectID))
}

// ListWrittenReferences lists references a profile has written.
func (s *ReferenceStore) ListWrittenReferences(ctx context.Context, authorID string) ([]reference.Reference, error) {
	return s.list(ctx, "author_id=eq."+neturl.QueryEscape(authorID))
}

// FindReferenceForSync returns the author's top-level reference for a sync.
func (s *ReferenceStore) FindReferenceForSync(ctx context.Context, authorID, syncID string) (reference.Reference, bool, error) {
	refs, err := s.list(ctx, "author_id=eq."+neturl.QueryEscape(authorID)+"&sync_id=eq."+neturl.QueryEscape(syncID))
	if err != nil {
		return reference.Reference{}, false, err
	}
	for _, ref := range refs {
		if !ref.IsReply() {
			return ref, true, nil
		}
	}
	return reference.Reference{}, false, nil
}

// FindReferenceForEvent returns the author's top-level reference for an event.
func (s *ReferenceStore) FindReferenceForEvent(ctx context.Context, authorID, eventID string) (reference.Reference, bool, error) {
	refs, err := s.list(ctx, "author_id=eq."+neturl.QueryEscape(authorID)+"&event_id=eq."+neturl.QueryEscape(eventID))
	if err != nil {
		return reference.Reference{}, false, err
	}
	for _, ref := range refs {
		if !ref.IsReply() {
			return ref, true, nil
		}
	}
	return reference.Reference{}, false, nil
}

// FindReply returns the reply to a reference, if any.
func (s *ReferenceStore) FindReply(ctx context.Context, referenceID string) (reference.Reference, bool, error) {
	refs, err := s.list(ctx, "in_reply_to=eq."+neturl.QueryEscape(referenceID))
	if err != nil {
		return reference.Reference{}, false, err
	}
	if len(refs) == 0 {
		return reference.Reference{}, false, nil
	}
	return refs[0], true, nil
}
