// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wayfarernet/community_layer/internal/app/domain/connection"
	"github.com/wayfarernet/community_layer/internal/app/domain/event"
	"github.com/wayfarernet/community_layer/internal/app/domain/moderation"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	syncdomain "github.com/wayfarernet/community_layer/internal/app/domain/sync"
	"github.com/wayfarernet/community_layer/internal/app/domain/trip"
	"github.com/wayfarernet/community_layer/internal/app/storage"
)

// Store implements the storage interfaces on a sqlx handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.ConnectionStore = (*Store)(nil)
var _ storage.SyncStore = (*Store)(nil)
var _ storage.ReferenceStore = (*Store)(nil)
var _ storage.TripStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
var _ storage.ModerationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// --- ProfileStore -----------------------------------------------------------

type profileRow struct {
	ID           string    `db:"id"`
	Handle       string    `db:"handle"`
	DisplayName  string    `db:"display_name"`
	Bio          string    `db:"bio"`
	Location     string    `db:"location"`
	Languages    []byte    `db:"languages"`
	ContactEmail string    `db:"contact_email"`
	Role         string    `db:"role"`
	Suspended    bool      `db:"suspended"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r profileRow) toDomain() profile.Profile {
	p := profile.Profile{
		ID:           r.ID,
		Handle:       r.Handle,
		DisplayName:  r.DisplayName,
		Bio:          r.Bio,
		Location:     r.Location,
		ContactEmail: r.ContactEmail,
		Role:         profile.Role(r.Role),
		Suspended:    r.Suspended,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Languages) > 0 {
		_ = json.Unmarshal(r.Languages, &p.Languages)
	}
	return p
}

const profileColumns = `id, handle, display_name, bio, location, languages, contact_email, role, suspended, created_at, updated_at`

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	languagesJSON, err := json.Marshal(p.Languages)
	if err != nil {
		return profile.Profile{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_profiles (`+profileColumns+`)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.Handle, p.DisplayName, p.Bio, p.Location, languagesJSON, p.ContactEmail, string(p.Role), p.Suspended, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	existing, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return profile.Profile{}, err
	}

	p.Handle = existing.Handle
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	languagesJSON, err := json.Marshal(p.Languages)
	if err != nil {
		return profile.Profile{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_profiles
		SET display_name = $2, bio = $3, location = $4, languages = $5,
		    contact_email = $6, role = $7, suspended = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.DisplayName, p.Bio, p.Location, languagesJSON, p.ContactEmail, string(p.Role), p.Suspended, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return profile.Profile{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+profileColumns+` FROM app_profiles WHERE id = $1
	`, id)
	if err != nil {
		return profile.Profile{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetProfileByHandle(ctx context.Context, handle string) (profile.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+profileColumns+` FROM app_profiles WHERE handle = lower($1)
	`, handle)
	if err != nil {
		return profile.Profile{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+profileColumns+` FROM app_profiles ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	result := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM app_profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- ConnectionStore --------------------------------------------------------

type connectionRow struct {
	ID          string     `db:"id"`
	RequesterID string     `db:"requester_id"`
	AddresseeID string     `db:"addressee_id"`
	Status      string     `db:"status"`
	Message     string     `db:"message"`
	RequestedAt time.Time  `db:"requested_at"`
	RespondedAt *time.Time `db:"responded_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r connectionRow) toDomain() connection.Connection {
	return connection.Connection{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		AddresseeID: r.AddresseeID,
		Status:      connection.Status(r.Status),
		Message:     r.Message,
		RequestedAt: r.RequestedAt,
		RespondedAt: r.RespondedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const connectionColumns = `id, requester_id, addressee_id, status, message, requested_at, responded_at, created_at, updated_at`

func (s *Store) CreateConnection(ctx context.Context, c connection.Connection) (connection.Connection, error) {
	if c.RequesterID == "" || c.AddresseeID == "" {
		return connection.Connection{}, errors.New("requester and addressee required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.RequestedAt.IsZero() {
		c.RequestedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.RequesterID, c.AddresseeID, string(c.Status), c.Message, c.RequestedAt, c.RespondedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return connection.Connection{}, err
	}
	return c, nil
}

func (s *Store) UpdateConnection(ctx context.Context, c connection.Connection) (connection.Connection, error) {
	existing, err := s.GetConnection(ctx, c.ID)
	if err != nil {
		return connection.Connection{}, err
	}

	c.RequesterID = existing.RequesterID
	c.AddresseeID = existing.AddresseeID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_connections
		SET status = $2, message = $3, responded_at = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, string(c.Status), c.Message, c.RespondedAt, c.UpdatedAt)
	if err != nil {
		return connection.Connection{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return connection.Connection{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (connection.Connection, error) {
	var row connectionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+connectionColumns+` FROM app_connections WHERE id = $1
	`, id)
	if err != nil {
		return connection.Connection{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListConnections(ctx context.Context, profileID string) ([]connection.Connection, error) {
	var rows []connectionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+connectionColumns+` FROM app_connections
		WHERE requester_id = $1 OR addressee_id = $1
		ORDER BY created_at
	`, profileID)
	if err != nil {
		return nil, err
	}
	result := make([]connection.Connection, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) FindConnectionBetween(ctx context.Context, a, b string) (connection.Connection, error) {
	var row connectionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+connectionColumns+` FROM app_connections
		WHERE (requester_id = $1 AND addressee_id = $2)
		   OR (requester_id = $2 AND addressee_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
	`, a, b)
	if err != nil {
		return connection.Connection{}, err
	}
	return row.toDomain(), nil
}

// --- SyncStore --------------------------------------------------------------

type syncRow struct {
	ID                 string    `db:"id"`
	ConnectionID       string    `db:"connection_id"`
	InitiatorID        string    `db:"initiator_id"`
	PeerID             string    `db:"peer_id"`
	OccurredAt         time.Time `db:"occurred_at"`
	Note               string    `db:"note"`
	InitiatorConfirmed bool      `db:"initiator_confirmed"`
	PeerConfirmed      bool      `db:"peer_confirmed"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r syncRow) toDomain() syncdomain.Sync {
	return syncdomain.Sync{
		ID:                 r.ID,
		ConnectionID:       r.ConnectionID,
		InitiatorID:        r.InitiatorID,
		PeerID:             r.PeerID,
		OccurredAt:         r.OccurredAt,
		Note:               r.Note,
		InitiatorConfirmed: r.InitiatorConfirmed,
		PeerConfirmed:      r.PeerConfirmed,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

const syncColumns = `id, connection_id, initiator_id, peer_id, occurred_at, note, initiator_confirmed, peer_confirmed, created_at, updated_at`

func (s *Store) CreateSync(ctx context.Context, sy syncdomain.Sync) (syncdomain.Sync, error) {
	if sy.ConnectionID == "" {
		return syncdomain.Sync{}, errors.New("connection_id required")
	}
	if sy.ID == "" {
		sy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sy.CreatedAt = now
	sy.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_syncs (`+syncColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sy.ID, sy.ConnectionID, sy.InitiatorID, sy.PeerID, sy.OccurredAt, sy.Note, sy.InitiatorConfirmed, sy.PeerConfirmed, sy.CreatedAt, sy.UpdatedAt)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	return sy, nil
}

func (s *Store) UpdateSync(ctx context.Context, sy syncdomain.Sync) (syncdomain.Sync, error) {
	existing, err := s.GetSync(ctx, sy.ID)
	if err != nil {
		return syncdomain.Sync{}, err
	}

	sy.ConnectionID = existing.ConnectionID
	sy.InitiatorID = existing.InitiatorID
	sy.PeerID = existing.PeerID
	sy.CreatedAt = existing.CreatedAt
	sy.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_syncs
		SET occurred_at = $2, note = $3, initiator_confirmed = $4, peer_confirmed = $5, updated_at = $6
		WHERE id = $1
	`, sy.ID, sy.OccurredAt, sy.Note, sy.InitiatorConfirmed, sy.PeerConfirmed, sy.UpdatedAt)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return syncdomain.Sync{}, sql.ErrNoRows
	}
	return sy, nil
}

func (s *Store) GetSync(ctx context.Context, id string) (syncdomain.Sync, error) {
	var row syncRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+syncColumns+` FROM app_syncs WHERE id = $1
	`, id)
	if err != nil {
		return syncdomain.Sync{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListSyncs(ctx context.Context, profileID string) ([]syncdomain.Sync, error) {
	var rows []syncRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+syncColumns+` FROM app_syncs
		WHERE initiator_id = $1 OR peer_id = $1
		ORDER BY occurred_at
	`, profileID)
	if err != nil {
		return nil, err
	}
	return syncRowsToDomain(rows), nil
}

func (s *Store) ListConnectionSyncs(ctx context.Context, connectionID string) ([]syncdomain.Sync, error) {
	var rows []syncRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+syncColumns+` FROM app_syncs
		WHERE connection_id = $1
		ORDER BY occurred_at
	`, connectionID)
	if err != nil {
		return nil, err
	}
	return syncRowsToDomain(rows), nil
}

func syncRowsToDomain(rows []syncRow) []syncdomain.Sync {
	result := make([]syncdomain.Sync, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result
}

// --- ReferenceStore ---------------------------------------------------------

type referenceRow struct {
	ID           string    `db:"id"`
	AuthorID     string    `db:"author_id"`
	SubjectID    string    `db:"subject_id"`
	ConnectionID string    `db:"connection_id"`
	Context      string    `db:"context"`
	SyncID       string    `db:"sync_id"`
	EventID      string    `db:"event_id"`
	Sentiment    string    `db:"sentiment"`
	Body         string    `db:"body"`
	Rating       *int      `db:"rating"`
	InReplyTo    string    `db:"in_reply_to"`
	EditCount    int       `db:"edit_count"`
	Published    bool      `db:"published"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r referenceRow) toDomain() reference.Reference {
	return reference.Reference{
		ID:           r.ID,
		AuthorID:     r.AuthorID,
		SubjectID:    r.SubjectID,
		ConnectionID: r.ConnectionID,
		Context:      reference.Context(r.Context),
		SyncID:       r.SyncID,
		EventID:      r.EventID,
		Sentiment:    reference.Sentiment(r.Sentiment),
		Body:         r.Body,
		Rating:       r.Rating,
		InReplyTo:    r.InReplyTo,
		EditCount:    r.EditCount,
		Published:    r.Published,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const referenceColumns = `id, author_id, subject_id, connection_id, context, sync_id, event_id, sentiment, body, rating, in_reply_to, edit_count, published, created_at, updated_at`

func (s *Store) CreateReference(ctx context.Context, ref reference.Reference) (reference.Reference, error) {
	if ref.AuthorID == "" || ref.SubjectID == "" {
		return reference.Reference{}, errors.New("author_id and subject_id required")
	}
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_references (`+referenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, ref.ID, ref.AuthorID, ref.SubjectID, ref.ConnectionID, string(ref.Context), ref.SyncID, ref.EventID,
		string(ref.Sentiment), ref.Body, ref.Rating, ref.InReplyTo, ref.EditCount, ref.Published, ref.CreatedAt, ref.UpdatedAt)
	if err != nil {
		return reference.Reference{}, err
	}
	return ref, nil
}

func (s *Store) UpdateReference(ctx context.Context, ref reference.Reference) (reference.Reference, error) {
	existing, err := s.GetReference(ctx, ref.ID)
	if err != nil {
		return reference.Reference{}, err
	}

	ref.AuthorID = existing.AuthorID
	ref.SubjectID = existing.SubjectID
	ref.ConnectionID = existing.ConnectionID
	ref.Context = existing.Context
	ref.SyncID = existing.SyncID
	ref.EventID = existing.EventID
	ref.InReplyTo = existing.InReplyTo
	ref.CreatedAt = existing.CreatedAt
	ref.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_references
		SET sentiment = $2, body = $3, rating = $4, edit_count = $5, published = $6, updated_at = $7
		WHERE id = $1
	`, ref.ID, string(ref.Sentiment), ref.Body, ref.Rating, ref.EditCount, ref.Published, ref.UpdatedAt)
	if err != nil {
		return reference.Reference{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reference.Reference{}, sql.ErrNoRows
	}
	return ref, nil
}

func (s *Store) GetReference(ctx context.Context, id string) (reference.Reference, error) {
	var row referenceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+referenceColumns+` FROM app_references WHERE id = $1
	`, id)
	if err != nil {
		return reference.Reference{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListReceivedReferences(ctx context.Context, subjectID string) ([]reference.Reference, error) {
	return s.listReferences(ctx, `subject_id = $1`, subjectID)
}

func (s *Store) ListWrittenReferences(ctx context.Context, authorID string) ([]reference.Reference, error) {
	return s.listReferences(ctx, `author_id = $1`, authorID)
}

func (s *Store) listReferences(ctx context.Context, where string, arg string) ([]reference.Reference, error) {
	var rows []referenceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+referenceColumns+` FROM app_references
		WHERE `+where+`
		ORDER BY created_at
	`, arg)
	if err != nil {
		return nil, err
	}
	result := make([]reference.Reference, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) FindReferenceForSync(ctx context.Context, authorID, syncID string) (reference.Reference, bool, error) {
	return s.findReference(ctx, `author_id = $1 AND sync_id = $2 AND in_reply_to = ''`, authorID, syncID)
}

func (s *Store) FindReferenceForEvent(ctx context.Context, authorID, eventID string) (reference.Reference, bool, error) {
	return s.findReference(ctx, `author_id = $1 AND event_id = $2 AND in_reply_to = ''`, authorID, eventID)
}

func (s *Store) FindReply(ctx context.Context, referenceID string) (reference.Reference, bool, error) {
	return s.findReference(ctx, `in_reply_to = $1`, referenceID)
}

func (s *Store) findReference(ctx context.Context, where string, args ...interface{}) (reference.Reference, bool, error) {
	var row referenceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+referenceColumns+` FROM app_references
		WHERE `+where+`
		LIMIT 1
	`, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return reference.Reference{}, false, nil
	}
	if err != nil {
		return reference.Reference{}, false, err
	}
	return row.toDomain(), true, nil
}

// --- TripStore --------------------------------------------------------------

type tripRow struct {
	ID          string    `db:"id"`
	ProfileID   string    `db:"profile_id"`
	Destination string    `db:"destination"`
	StartDate   time.Time `db:"start_date"`
	EndDate     time.Time `db:"end_date"`
	Note        string    `db:"note"`
	Public      bool      `db:"public"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r tripRow) toDomain() trip.Trip {
	return trip.Trip{
		ID:          r.ID,
		ProfileID:   r.ProfileID,
		Destination: r.Destination,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Note:        r.Note,
		Public:      r.Public,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const tripColumns = `id, profile_id, destination, start_date, end_date, note, public, created_at, updated_at`

func (s *Store) CreateTrip(ctx context.Context, t trip.Trip) (trip.Trip, error) {
	if t.ProfileID == "" {
		return trip.Trip{}, errors.New("profile_id required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_trips (`+tripColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.ProfileID, t.Destination, t.StartDate, t.EndDate, t.Note, t.Public, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return trip.Trip{}, err
	}
	return t, nil
}

func (s *Store) UpdateTrip(ctx context.Context, t trip.Trip) (trip.Trip, error) {
	existing, err := s.GetTrip(ctx, t.ID)
	if err != nil {
		return trip.Trip{}, err
	}

	t.ProfileID = existing.ProfileID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_trips
		SET destination = $2, start_date = $3, end_date = $4, note = $5, public = $6, updated_at = $7
		WHERE id = $1
	`, t.ID, t.Destination, t.StartDate, t.EndDate, t.Note, t.Public, t.UpdatedAt)
	if err != nil {
		return trip.Trip{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return trip.Trip{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) GetTrip(ctx context.Context, id string) (trip.Trip, error) {
	var row tripRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+tripColumns+` FROM app_trips WHERE id = $1
	`, id)
	if err != nil {
		return trip.Trip{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListTrips(ctx context.Context, profileID string) ([]trip.Trip, error) {
	var rows []tripRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+tripColumns+` FROM app_trips WHERE profile_id = $1 ORDER BY start_date
	`, profileID)
	if err != nil {
		return nil, err
	}
	return tripRowsToDomain(rows), nil
}

func (s *Store) SearchTrips(ctx context.Context, destination string, from, to time.Time) ([]trip.Trip, error) {
	var rows []tripRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+tripColumns+` FROM app_trips
		WHERE public
		  AND ($1 = '' OR lower(destination) = lower($1))
		  AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date
	`, destination, from, to)
	if err != nil {
		return nil, err
	}
	return tripRowsToDomain(rows), nil
}

func tripRowsToDomain(rows []tripRow) []trip.Trip {
	result := make([]trip.Trip, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result
}

func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM app_trips WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- EventStore -------------------------------------------------------------

type eventRow struct {
	ID          string    `db:"id"`
	HostID      string    `db:"host_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Location    string    `db:"location"`
	StartsAt    time.Time `db:"starts_at"`
	EndsAt      time.Time `db:"ends_at"`
	Capacity    int       `db:"capacity"`
	Canceled    bool      `db:"canceled"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r eventRow) toDomain() event.Event {
	return event.Event{
		ID:          r.ID,
		HostID:      r.HostID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Capacity:    r.Capacity,
		Canceled:    r.Canceled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const eventColumns = `id, host_id, title, description, location, starts_at, ends_at, capacity, canceled, created_at, updated_at`

func (s *Store) CreateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	if e.HostID == "" {
		return event.Event{}, errors.New("host_id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.HostID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.Capacity, e.Canceled, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	existing, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		return event.Event{}, err
	}

	e.HostID = existing.HostID
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_events
		SET title = $2, description = $3, location = $4, starts_at = $5, ends_at = $6,
		    capacity = $7, canceled = $8, updated_at = $9
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.Capacity, e.Canceled, e.UpdatedAt)
	if err != nil {
		return event.Event{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return event.Event{}, sql.ErrNoRows
	}
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (event.Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+eventColumns+` FROM app_events WHERE id = $1
	`, id)
	if err != nil {
		return event.Event{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListEvents(ctx context.Context) ([]event.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+eventColumns+` FROM app_events ORDER BY starts_at
	`)
	if err != nil {
		return nil, err
	}
	result := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

type attendanceRow struct {
	ID        string    `db:"id"`
	EventID   string    `db:"event_id"`
	ProfileID string    `db:"profile_id"`
	Status    string    `db:"status"`
	JoinedAt  time.Time `db:"joined_at"`
}

func (r attendanceRow) toDomain() event.Attendance {
	return event.Attendance{
		ID:        r.ID,
		EventID:   r.EventID,
		ProfileID: r.ProfileID,
		Status:    event.AttendanceStatus(r.Status),
		JoinedAt:  r.JoinedAt,
	}
}

func (s *Store) CreateAttendance(ctx context.Context, a event.Attendance) (event.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.JoinedAt.IsZero() {
		a.JoinedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_event_attendance (id, event_id, profile_id, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.EventID, a.ProfileID, string(a.Status), a.JoinedAt)
	if err != nil {
		return event.Attendance{}, err
	}
	return a, nil
}

func (s *Store) UpdateAttendance(ctx context.Context, a event.Attendance) (event.Attendance, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_event_attendance SET status = $3
		WHERE event_id = $1 AND profile_id = $2
	`, a.EventID, a.ProfileID, string(a.Status))
	if err != nil {
		return event.Attendance{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return event.Attendance{}, sql.ErrNoRows
	}
	stored, _, err := s.GetAttendance(ctx, a.EventID, a.ProfileID)
	return stored, err
}

func (s *Store) GetAttendance(ctx context.Context, eventID, profileID string) (event.Attendance, bool, error) {
	var row attendanceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, event_id, profile_id, status, joined_at
		FROM app_event_attendance
		WHERE event_id = $1 AND profile_id = $2
	`, eventID, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Attendance{}, false, nil
	}
	if err != nil {
		return event.Attendance{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) ListAttendance(ctx context.Context, eventID string) ([]event.Attendance, error) {
	var rows []attendanceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, event_id, profile_id, status, joined_at
		FROM app_event_attendance
		WHERE event_id = $1
		ORDER BY joined_at
	`, eventID)
	if err != nil {
		return nil, err
	}
	result := make([]event.Attendance, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, eventID, profileID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_event_attendance WHERE event_id = $1 AND profile_id = $2
	`, eventID, profileID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- ModerationStore --------------------------------------------------------

type reportRow struct {
	ID         string    `db:"id"`
	ReporterID string    `db:"reporter_id"`
	TargetKind string    `db:"target_kind"`
	TargetID   string    `db:"target_id"`
	Reason     string    `db:"reason"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r reportRow) toDomain() moderation.Report {
	return moderation.Report{
		ID:         r.ID,
		ReporterID: r.ReporterID,
		TargetKind: moderation.TargetKind(r.TargetKind),
		TargetID:   r.TargetID,
		Reason:     r.Reason,
		Status:     moderation.ReportStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s *Store) CreateReport(ctx context.Context, r moderation.Report) (moderation.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_reports (id, reporter_id, target_kind, target_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.ReporterID, string(r.TargetKind), r.TargetID, r.Reason, string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return moderation.Report{}, err
	}
	return r, nil
}

func (s *Store) UpdateReport(ctx context.Context, r moderation.Report) (moderation.Report, error) {
	existing, err := s.GetReport(ctx, r.ID)
	if err != nil {
		return moderation.Report{}, err
	}

	r.ReporterID = existing.ReporterID
	r.TargetKind = existing.TargetKind
	r.TargetID = existing.TargetID
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_reports SET reason = $2, status = $3, updated_at = $4 WHERE id = $1
	`, r.ID, r.Reason, string(r.Status), r.UpdatedAt)
	if err != nil {
		return moderation.Report{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return moderation.Report{}, sql.ErrNoRows
	}
	return r, nil
}

func (s *Store) GetReport(ctx context.Context, id string) (moderation.Report, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, reporter_id, target_kind, target_id, reason, status, created_at, updated_at
		FROM app_reports WHERE id = $1
	`, id)
	if err != nil {
		return moderation.Report{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListReports(ctx context.Context, status moderation.ReportStatus) ([]moderation.Report, error) {
	var rows []reportRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, reporter_id, target_kind, target_id, reason, status, created_at, updated_at
		FROM app_reports
		WHERE $1 = '' OR status = $1
		ORDER BY created_at
	`, string(status))
	if err != nil {
		return nil, err
	}
	result := make([]moderation.Report, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

type logEntryRow struct {
	ID         string    `db:"id"`
	ActorID    string    `db:"actor_id"`
	Action     string    `db:"action"`
	TargetKind string    `db:"target_kind"`
	TargetID   string    `db:"target_id"`
	ReportID   string    `db:"report_id"`
	Note       string    `db:"note"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r logEntryRow) toDomain() moderation.LogEntry {
	return moderation.LogEntry{
		ID:         r.ID,
		ActorID:    r.ActorID,
		Action:     r.Action,
		TargetKind: moderation.TargetKind(r.TargetKind),
		TargetID:   r.TargetID,
		ReportID:   r.ReportID,
		Note:       r.Note,
		CreatedAt:  r.CreatedAt,
	}
}

func (s *Store) AppendModerationLog(ctx context.Context, e moderation.LogEntry) (moderation.LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_moderation_log (id, actor_id, action, target_kind, target_id, report_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.ActorID, e.Action, string(e.TargetKind), e.TargetID, e.ReportID, e.Note, e.CreatedAt)
	if err != nil {
		return moderation.LogEntry{}, err
	}
	return e, nil
}

func (s *Store) ListModerationLog(ctx context.Context, targetKind moderation.TargetKind, targetID string) ([]moderation.LogEntry, error) {
	var rows []logEntryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, action, target_kind, target_id, report_id, note, created_at
		FROM app_moderation_log
		WHERE ($1 = '' OR target_kind = $1)
		  AND ($2 = '' OR target_id = $2)
		ORDER BY created_at
	`, string(targetKind), targetID)
	if err != nil {
		return nil, err
	}
	result := make([]moderation.LogEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}
