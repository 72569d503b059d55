// Package httpapi exposes the community services over HTTP.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	app "github.com/wayfarernet/community_layer/internal/app"
	"github.com/wayfarernet/community_layer/internal/app/auth"
	"github.com/wayfarernet/community_layer/internal/app/domain/moderation"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	"github.com/wayfarernet/community_layer/internal/app/metrics"
	connectionssvc "github.com/wayfarernet/community_layer/internal/app/services/connections"
	eventssvc "github.com/wayfarernet/community_layer/internal/app/services/events"
	moderationsvc "github.com/wayfarernet/community_layer/internal/app/services/moderation"
	profilessvc "github.com/wayfarernet/community_layer/internal/app/services/profiles"
	referencessvc "github.com/wayfarernet/community_layer/internal/app/services/references"
	syncssvc "github.com/wayfarernet/community_layer/internal/app/services/syncs"
	tripssvc "github.com/wayfarernet/community_layer/internal/app/services/trips"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

type handler struct {
	app  *app.Application
	auth *auth.Manager
}

// NewHandler builds the HTTP API for the application.
func NewHandler(application *app.Application) http.Handler {
	return NewHandlerWithLogin(application, nil)
}

// NewHandlerWithLogin builds the HTTP API with password login enabled.
func NewHandlerWithLogin(application *app.Application, manager *auth.Manager) http.Handler {
	h := &handler{app: application, auth: manager}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/profiles", h.handleProfiles)
	mux.HandleFunc("/profiles/", h.handleProfileSubtree)
	mux.HandleFunc("/trips", h.handleTripSearch)
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/events/", h.handleEventSubtree)
	mux.HandleFunc("/reports", h.handleReports)
	mux.HandleFunc("/moderation/", h.handleModeration)
	return mux
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.auth == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("login is not configured"))
		return
	}

	var payload struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, err := h.auth.Login(payload.Handle, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *handler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Handle       string `json:"handle"`
			DisplayName  string `json:"display_name"`
			ContactEmail string `json:"contact_email"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Profiles.Register(r.Context(), payload.Handle, payload.DisplayName, payload.ContactEmail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		if handle := r.URL.Query().Get("handle"); handle != "" {
			found, err := h.app.Profiles.GetByHandle(r.Context(), handle)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, found)
			return
		}
		list, err := h.app.Profiles.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleProfileSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/profiles"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	profileID := parts[0]

	// Writes under a profile path act as that profile. A session may only
	// act as itself unless it carries a moderation role; static service
	// tokens have no session and pass through.
	if r.Method != http.MethodGet {
		session := logger.GetUserID(r.Context())
		if session != "" && session != profileID && !profile.Role(logger.GetRole(r.Context())).CanModerate() {
			writeError(w, http.StatusForbidden, errors.New("cannot act as another profile"))
			return
		}
	}

	switch {
	case len(parts) == 1:
		h.handleProfile(w, r, profileID)
	case len(parts) == 2 && parts[1] == "trust":
		h.handleTrust(w, r, profileID)
	case len(parts) == 2 && parts[1] == "connections":
		h.handleConnections(w, r, profileID)
	case len(parts) == 3 && parts[1] == "connections":
		h.handleConnection(w, r, profileID, parts[2])
	case len(parts) == 2 && parts[1] == "syncs":
		h.handleSyncs(w, r, profileID)
	case len(parts) == 4 && parts[1] == "syncs" && parts[3] == "confirm":
		h.handleSyncConfirm(w, r, profileID, parts[2])
	case len(parts) == 2 && parts[1] == "references":
		h.handleReferences(w, r, profileID)
	case len(parts) == 3 && parts[1] == "references":
		h.handleReference(w, r, profileID, parts[2])
	case len(parts) == 4 && parts[1] == "references" && parts[3] == "reply":
		h.handleReferenceReply(w, r, profileID, parts[2])
	case len(parts) == 2 && parts[1] == "trips":
		h.handleTrips(w, r, profileID)
	case len(parts) == 3 && parts[1] == "trips":
		h.handleTrip(w, r, profileID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *handler) handleProfile(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodGet:
		viewerID := requestActor(r, r.URL.Query().Get("viewer_id"))
		found, err := h.app.Profiles.View(r.Context(), viewerID, profileID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		var payload struct {
			DisplayName  *string  `json:"display_name"`
			Bio          *string  `json:"bio"`
			Location     *string  `json:"location"`
			ContactEmail *string  `json:"contact_email"`
			Languages    []string `json:"languages"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Profiles.Update(r.Context(), profileID, payload.DisplayName, payload.Bio, payload.Location, payload.ContactEmail, payload.Languages)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := h.app.Profiles.Delete(r.Context(), profileID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleTrust(w http.ResponseWriter, r *http.Request, profileID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	score, err := h.app.References.TrustScore(r.Context(), profileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (h *handler) handleConnections(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			AddresseeID string `json:"addressee_id"`
			Message     string `json:"message"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Connections.Request(r.Context(), profileID, payload.AddresseeID, payload.Message)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := h.app.Connections.List(r.Context(), profileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleConnection(w http.ResponseWriter, r *http.Request, profileID, connectionID string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		updated interface{}
		err     error
	)
	switch payload.Action {
	case "accept":
		updated, err = h.app.Connections.Respond(r.Context(), connectionID, profileID, true)
	case "decline":
		updated, err = h.app.Connections.Respond(r.Context(), connectionID, profileID, false)
	case "remove":
		updated, err = h.app.Connections.Remove(r.Context(), connectionID, profileID)
	default:
		writeError(w, http.StatusBadRequest, errors.New("action must be accept, decline or remove"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) handleSyncs(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ConnectionID string    `json:"connection_id"`
			OccurredAt   time.Time `json:"occurred_at"`
			Note         string    `json:"note"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Syncs.Log(r.Context(), payload.ConnectionID, profileID, payload.OccurredAt, payload.Note)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		if connectionID := r.URL.Query().Get("connection_id"); connectionID != "" {
			list, err := h.app.Syncs.ListForConnection(r.Context(), connectionID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
			return
		}
		list, err := h.app.Syncs.List(r.Context(), profileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleSyncConfirm(w http.ResponseWriter, r *http.Request, profileID, syncID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	confirmed, err := h.app.Syncs.Confirm(r.Context(), syncID, profileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmed)
}

func (h *handler) handleReferences(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			SyncID    string `json:"sync_id"`
			EventID   string `json:"event_id"`
			SubjectID string `json:"subject_id"`
			Sentiment string `json:"sentiment"`
			Body      string `json:"body"`
			Rating    *int   `json:"rating"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var (
			created reference.Reference
			err     error
		)
		switch {
		case payload.SyncID != "":
			created, err = h.app.References.WriteForSync(r.Context(), profileID, payload.SyncID, reference.Sentiment(payload.Sentiment), payload.Body, payload.Rating)
		case payload.EventID != "":
			created, err = h.app.References.WriteForEvent(r.Context(), profileID, payload.SubjectID, payload.EventID, reference.Sentiment(payload.Sentiment), payload.Body, payload.Rating)
		default:
			writeError(w, http.StatusBadRequest, errors.New("sync_id or event_id is required"))
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		direction := r.URL.Query().Get("direction")
		var (
			list []reference.Reference
			err  error
		)
		switch direction {
		case "", "received":
			list, err = h.app.References.ListReceived(r.Context(), profileID)
		case "written":
			list, err = h.app.References.ListWritten(r.Context(), profileID)
		default:
			writeError(w, http.StatusBadRequest, errors.New("direction must be received or written"))
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleReference(w http.ResponseWriter, r *http.Request, profileID, referenceID string) {
	switch r.Method {
	case http.MethodGet:
		found, err := h.app.References.Get(r.Context(), referenceID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		var payload struct {
			Sentiment string `json:"sentiment"`
			Body      string `json:"body"`
			Rating    *int   `json:"rating"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.References.Edit(r.Context(), referenceID, profileID, reference.Sentiment(payload.Sentiment), payload.Body, payload.Rating)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleReferenceReply(w http.ResponseWriter, r *http.Request, profileID, referenceID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := h.app.References.Reply(r.Context(), referenceID, profileID, payload.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) handleTrips(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Destination string    `json:"destination"`
			StartDate   time.Time `json:"start_date"`
			EndDate     time.Time `json:"end_date"`
			Note        string    `json:"note"`
			Public      bool      `json:"public"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Trips.Plan(r.Context(), profileID, payload.Destination, payload.StartDate, payload.EndDate, payload.Note, payload.Public)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := h.app.Trips.List(r.Context(), profileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleTrip(w http.ResponseWriter, r *http.Request, profileID, tripID string) {
	switch r.Method {
	case http.MethodPatch:
		var payload struct {
			Destination *string    `json:"destination"`
			StartDate   *time.Time `json:"start_date"`
			EndDate     *time.Time `json:"end_date"`
			Note        *string    `json:"note"`
			Public      *bool      `json:"public"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Trips.Update(r.Context(), tripID, profileID, payload.Destination, payload.StartDate, payload.EndDate, payload.Note, payload.Public)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := h.app.Trips.Cancel(r.Context(), tripID, profileID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleTripSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	list, err := h.app.Trips.Search(r.Context(), r.URL.Query().Get("destination"), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			HostID      string    `json:"host_id"`
			Title       string    `json:"title"`
			Description string    `json:"description"`
			Location    string    `json:"location"`
			StartsAt    time.Time `json:"starts_at"`
			EndsAt      time.Time `json:"ends_at"`
			Capacity    int       `json:"capacity"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hostID := requestActor(r, payload.HostID)
		created, err := h.app.Events.Host(r.Context(), hostID, payload.Title, payload.Description, payload.Location, payload.StartsAt, payload.EndsAt, payload.Capacity)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := h.app.Events.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleEventSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/events"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	eventID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleEvent(w, r, eventID)
	case len(parts) == 2 && parts[1] == "attendees":
		h.handleEventAttendees(w, r, eventID)
	case len(parts) == 2 && (parts[1] == "join" || parts[1] == "leave"):
		h.handleEventAttendance(w, r, eventID, parts[1])
	case len(parts) == 2 && parts[1] == "cancel":
		h.handleEventCancel(w, r, eventID)
	default:
		http.NotFound(w, r)
	}
}

func (h *handler) handleEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	switch r.Method {
	case http.MethodGet:
		found, err := h.app.Events.Get(r.Context(), eventID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		var payload struct {
			ProfileID   string     `json:"profile_id"`
			Title       *string    `json:"title"`
			Description *string    `json:"description"`
			Location    *string    `json:"location"`
			StartsAt    *time.Time `json:"starts_at"`
			EndsAt      *time.Time `json:"ends_at"`
			Capacity    *int       `json:"capacity"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		actorID := requestActor(r, payload.ProfileID)
		updated, err := h.app.Events.Update(r.Context(), eventID, actorID, payload.Title, payload.Description, payload.Location, payload.StartsAt, payload.EndsAt, payload.Capacity)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleEventAttendance(w http.ResponseWriter, r *http.Request, eventID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ProfileID string `json:"profile_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profileID := requestActor(r, payload.ProfileID)

	if action == "leave" {
		if err := h.app.Events.Leave(r.Context(), eventID, profileID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	attendance, err := h.app.Events.Join(r.Context(), eventID, profileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attendance)
}

func (h *handler) handleEventCancel(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ProfileID string `json:"profile_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	canceled, err := h.app.Events.Cancel(r.Context(), eventID, requestActor(r, payload.ProfileID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, canceled)
}

func (h *handler) handleEventAttendees(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list, err := h.app.Events.Attendees(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ReporterID string `json:"reporter_id"`
		TargetKind string `json:"target_kind"`
		TargetID   string `json:"target_id"`
		Reason     string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reporterID := requestActor(r, payload.ReporterID)
	created, err := h.app.Moderation.Report(r.Context(), reporterID, moderation.TargetKind(payload.TargetKind), payload.TargetID, payload.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) handleModeration(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/moderation"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "reports":
		h.handleModerationReports(w, r)
	case len(parts) == 2 && parts[0] == "reports":
		h.handleModerationReport(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "log":
		h.handleModerationLog(w, r)
	case len(parts) == 3 && parts[0] == "profiles" && (parts[2] == "suspend" || parts[2] == "reinstate"):
		h.handleModerationSuspension(w, r, parts[1], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *handler) handleModerationReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := moderation.ReportStatus(r.URL.Query().Get("status"))
	list, err := h.app.Moderation.ListReports(r.Context(), status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) handleModerationReport(w http.ResponseWriter, r *http.Request, reportID string) {
	switch r.Method {
	case http.MethodGet:
		found, err := h.app.Moderation.Get(r.Context(), reportID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		var payload struct {
			ActorID    string `json:"actor_id"`
			Resolution string `json:"resolution"`
			Action     string `json:"action"`
			Note       string `json:"note"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		actorID := requestActor(r, payload.ActorID)

		var (
			updated moderation.Report
			err     error
		)
		switch payload.Resolution {
		case "resolve":
			action := payload.Action
			if action == "" {
				action = moderationsvc.ActionNone
			}
			updated, err = h.app.Moderation.Resolve(r.Context(), reportID, actorID, action, payload.Note)
		case "dismiss":
			updated, err = h.app.Moderation.Dismiss(r.Context(), reportID, actorID, payload.Note)
		default:
			writeError(w, http.StatusBadRequest, errors.New("resolution must be resolve or dismiss"))
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleModerationLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actorID := requestActor(r, r.URL.Query().Get("actor_id"))
	kind := moderation.TargetKind(r.URL.Query().Get("kind"))
	list, err := h.app.Moderation.Log(r.Context(), actorID, kind, r.URL.Query().Get("target_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) handleModerationSuspension(w http.ResponseWriter, r *http.Request, profileID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ActorID string `json:"actor_id"`
		Note    string `json:"note"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actorID := requestActor(r, payload.ActorID)

	var err error
	if action == "suspend" {
		err = h.app.Moderation.Suspend(r.Context(), actorID, profileID, payload.Note)
	} else {
		err = h.app.Moderation.Reinstate(r.Context(), actorID, profileID, payload.Note)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": action + "ed"})
}

// requestActor resolves the acting profile for a request. A JWT session pins
// the actor to the authenticated user; the client-supplied value only counts
// for static-token service calls, which carry no identity.
func requestActor(r *http.Request, supplied string) string {
	if id := logger.GetUserID(r.Context()); id != "" {
		return id
	}
	return supplied
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. An empty value
// parses to the zero time.
func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps known service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	for _, sentinel := range forbiddenErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusForbidden, err)
			return
		}
	}
	for _, sentinel := range conflictErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusConflict, err)
			return
		}
	}
	for _, sentinel := range unprocessableErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}
	if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

var forbiddenErrors = []error{
	profilessvc.ErrSuspended,
	connectionssvc.ErrNotAddressee,
	connectionssvc.ErrNotParty,
	syncssvc.ErrNotParty,
	referencessvc.ErrNotParty,
	referencessvc.ErrNotAuthor,
	referencessvc.ErrNotSubject,
	tripssvc.ErrNotOwner,
	eventssvc.ErrNotHost,
	moderationsvc.ErrNotModerator,
}

var conflictErrors = []error{
	profilessvc.ErrHandleTaken,
	connectionssvc.ErrAlreadyConnected,
	syncssvc.ErrAlreadyConfirmed,
	referencessvc.ErrAlreadyWritten,
	referencessvc.ErrEditLimit,
	referencessvc.ErrReplyLimit,
	eventssvc.ErrAlreadyJoined,
	moderationsvc.ErrReportClosed,
}

var unprocessableErrors = []error{
	connectionssvc.ErrNotPending,
	syncssvc.ErrNotConnected,
	referencessvc.ErrNotConnected,
	referencessvc.ErrSyncNotConfirmed,
	referencessvc.ErrWindowExpired,
	referencessvc.ErrNotAttendee,
	eventssvc.ErrCanceled,
	eventssvc.ErrNotJoined,
	moderationsvc.ErrUnknownAction,
}
