package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "github.com/wayfarernet/community_layer/internal/app"
	"github.com/wayfarernet/community_layer/internal/app/auth"
	"github.com/wayfarernet/community_layer/internal/app/domain/profile"
)

const testAuthToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, *app.Application) {
	t.Helper()

	application, err := app.New(app.Stores{}, nil)
	require.NoError(t, err)

	handler := wrapWithAuth(NewHandler(application), []string{testAuthToken}, nil)
	handler = wrapWithAudit(handler, newAuditLog(0, nil))
	handler = wrapWithCORS(handler)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, application
}

func marshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func authedRequest(t *testing.T, method, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func do(t *testing.T, req *http.Request, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "unexpected status, body: %s", raw)

	if len(raw) == 0 {
		return nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// List responses decode elsewhere.
		return nil
	}
	return decoded
}

func doList(t *testing.T, req *http.Request, wantStatus int) []map[string]interface{} {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "unexpected status, body: %s", raw)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func registerProfile(t *testing.T, server *httptest.Server, handle string) string {
	t.Helper()
	body := marshal(t, map[string]string{"handle": handle, "display_name": handle, "contact_email": handle + "@example.com"})
	created := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles", body), http.StatusCreated)
	id, ok := created["ID"].(string)
	require.True(t, ok, "profile response missing ID: %v", created)
	return id
}

func TestHandlerAuthRequired(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/profiles", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReferenceLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	alice := registerProfile(t, server, "alice")
	bob := registerProfile(t, server, "bob")

	// Connect and accept.
	conn := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/connections",
		marshal(t, map[string]string{"addressee_id": bob, "message": "met in lisbon"})), http.StatusCreated)
	connID := conn["ID"].(string)

	accepted := do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+bob+"/connections/"+connID,
		marshal(t, map[string]string{"action": "accept"})), http.StatusOK)
	require.Equal(t, "accepted", accepted["Status"])

	// Log a sync and confirm it from the other side.
	sync := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/syncs",
		marshal(t, map[string]interface{}{
			"connection_id": connID,
			"occurred_at":   time.Now().UTC().Add(-time.Hour),
			"note":          "coffee downtown",
		})), http.StatusCreated)
	syncID := sync["ID"].(string)

	confirmed := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+bob+"/syncs/"+syncID+"/confirm", nil), http.StatusOK)
	require.Equal(t, true, confirmed["PeerConfirmed"])

	// First write goes through, a second for the same sync conflicts.
	payload := marshal(t, map[string]interface{}{"sync_id": syncID, "sentiment": "positive", "body": "great host", "rating": 5})
	ref := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/references", payload), http.StatusCreated)
	refID := ref["ID"].(string)
	require.Equal(t, bob, ref["SubjectID"])

	do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/references", payload), http.StatusConflict)

	// One edit is allowed.
	edit := marshal(t, map[string]interface{}{"sentiment": "positive", "body": "great host, would stay again", "rating": 5})
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+alice+"/references/"+refID, edit), http.StatusOK)
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+alice+"/references/"+refID, edit), http.StatusConflict)

	// One reply by the subject, and only one.
	reply := marshal(t, map[string]string{"body": "thanks for visiting"})
	do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+bob+"/references/"+refID+"/reply", reply), http.StatusCreated)
	do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+bob+"/references/"+refID+"/reply", reply), http.StatusConflict)

	// A stranger cannot reply.
	do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/references/"+refID+"/reply", reply), http.StatusForbidden)

	received := doList(t, authedRequest(t, http.MethodGet, server.URL+"/profiles/"+bob+"/references?direction=received", nil), http.StatusOK)
	require.Len(t, received, 1)

	trust := do(t, authedRequest(t, http.MethodGet, server.URL+"/profiles/"+bob+"/trust", nil), http.StatusOK)
	require.Equal(t, float64(100), trust["Score"])
	require.Equal(t, float64(1), trust["Total"])
}

func TestSyncEligibilityOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	alice := registerProfile(t, server, "alice")
	bob := registerProfile(t, server, "bob")

	conn := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/connections",
		marshal(t, map[string]string{"addressee_id": bob})), http.StatusCreated)
	connID := conn["ID"].(string)
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+bob+"/connections/"+connID,
		marshal(t, map[string]string{"action": "accept"})), http.StatusOK)

	sync := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/syncs",
		marshal(t, map[string]interface{}{"connection_id": connID, "occurred_at": time.Now().UTC().Add(-time.Hour)})), http.StatusCreated)
	syncID := sync["ID"].(string)

	// Unconfirmed syncs cannot back a reference.
	payload := marshal(t, map[string]interface{}{"sync_id": syncID, "sentiment": "positive", "body": "nice"})
	do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/references", payload), http.StatusUnprocessableEntity)
}

func TestTripPlanningAndSearch(t *testing.T) {
	server, _ := newTestServer(t)

	alice := registerProfile(t, server, "alice")
	bob := registerProfile(t, server, "bob")

	start := time.Now().UTC().AddDate(0, 1, 0)
	end := start.AddDate(0, 0, 7)

	trip := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/trips",
		marshal(t, map[string]interface{}{
			"destination": "Lisbon",
			"start_date":  start,
			"end_date":    end,
			"public":      true,
		})), http.StatusCreated)
	tripID := trip["ID"].(string)

	do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+bob+"/trips",
		marshal(t, map[string]interface{}{
			"destination": "Lisbon",
			"start_date":  start,
			"end_date":    end,
			"public":      false,
		})), http.StatusCreated)

	// Only public trips are searchable.
	found := doList(t, authedRequest(t, http.MethodGet, server.URL+"/trips?destination=lisbon", nil), http.StatusOK)
	require.Len(t, found, 1)
	require.Equal(t, alice, found[0]["ProfileID"])

	// Only the owner may change or cancel a trip.
	patch := marshal(t, map[string]interface{}{"note": "looking for tips"})
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+bob+"/trips/"+tripID, patch), http.StatusForbidden)
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+alice+"/trips/"+tripID, patch), http.StatusOK)
	do(t, authedRequest(t, http.MethodDelete, server.URL+"/profiles/"+alice+"/trips/"+tripID, nil), http.StatusNoContent)
}

func TestEventWaitlistOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	host := registerProfile(t, server, "host")
	first := registerProfile(t, server, "guest-one")
	second := registerProfile(t, server, "guest-two")

	starts := time.Now().UTC().AddDate(0, 0, 3)
	event := do(t, authedRequest(t, http.MethodPost, server.URL+"/events",
		marshal(t, map[string]interface{}{
			"host_id":   host,
			"title":     "city walk",
			"location":  "old town",
			"starts_at": starts,
			"ends_at":   starts.Add(2 * time.Hour),
			"capacity":  2,
		})), http.StatusCreated)
	eventID := event["ID"].(string)

	joined := do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/join",
		marshal(t, map[string]string{"profile_id": first})), http.StatusCreated)
	require.Equal(t, "going", joined["Status"])

	waitlisted := do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/join",
		marshal(t, map[string]string{"profile_id": second})), http.StatusCreated)
	require.Equal(t, "waitlist", waitlisted["Status"])

	do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/join",
		marshal(t, map[string]string{"profile_id": second})), http.StatusConflict)

	attendees := doList(t, authedRequest(t, http.MethodGet, server.URL+"/events/"+eventID+"/attendees", nil), http.StatusOK)
	require.Len(t, attendees, 3)

	// Leaving frees a seat for the waitlist.
	do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/leave",
		marshal(t, map[string]string{"profile_id": first})), http.StatusNoContent)

	attendees = doList(t, authedRequest(t, http.MethodGet, server.URL+"/events/"+eventID+"/attendees", nil), http.StatusOK)
	statuses := map[string]string{}
	for _, a := range attendees {
		statuses[a["ProfileID"].(string)] = a["Status"].(string)
	}
	require.Equal(t, "going", statuses[second])

	// Only the host can update the event.
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/events/"+eventID,
		marshal(t, map[string]interface{}{"profile_id": first, "title": "takeover"})), http.StatusForbidden)
}

func TestEventCancelOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	host := registerProfile(t, server, "host")
	guest := registerProfile(t, server, "guest")

	starts := time.Now().UTC().AddDate(0, 0, 1)
	event := do(t, authedRequest(t, http.MethodPost, server.URL+"/events",
		marshal(t, map[string]interface{}{
			"host_id":   host,
			"title":     "brunch",
			"starts_at": starts,
		})), http.StatusCreated)
	eventID := event["ID"].(string)

	do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/join",
		marshal(t, map[string]string{"profile_id": guest})), http.StatusCreated)

	// Only the host can cancel.
	do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/cancel",
		marshal(t, map[string]string{"profile_id": guest})), http.StatusForbidden)

	canceled := do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/cancel",
		marshal(t, map[string]string{"profile_id": host})), http.StatusOK)
	require.Equal(t, true, canceled["Canceled"])

	do(t, authedRequest(t, http.MethodPost, server.URL+"/events/"+eventID+"/join",
		marshal(t, map[string]string{"profile_id": guest})), http.StatusUnprocessableEntity)
}

func TestSessionCannotImpersonateAnotherProfile(t *testing.T) {
	application, err := app.New(app.Stores{}, nil)
	require.NoError(t, err)

	mallory, err := application.Profiles.Register(context.Background(), "mallory", "Mallory", "mallory@example.com")
	require.NoError(t, err)
	victim, err := application.Profiles.Register(context.Background(), "victim", "Victim", "victim@example.com")
	require.NoError(t, err)
	admin, err := application.Profiles.Register(context.Background(), "admin", "Admin", "admin@example.com")
	require.NoError(t, err)
	_, err = application.Profiles.SetRole(context.Background(), admin.ID, profile.RoleAdmin)
	require.NoError(t, err)

	manager, err := auth.NewManager("test-secret", time.Hour, []auth.User{{
		ID:           mallory.ID,
		Handle:       "mallory",
		PasswordHash: auth.HashPassword("letmein"),
		Role:         "member",
	}})
	require.NoError(t, err)

	handler := wrapWithAuth(NewHandlerWithLogin(application, manager), nil, manager)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/auth/login", "application/json",
		bytes.NewReader([]byte(`{"handle":"mallory","password":"letmein"}`)))
	require.NoError(t, err)
	var login map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()
	require.NotEmpty(t, login["token"])

	sessionRequest := func(method, url string, body []byte) *http.Request {
		req, err := http.NewRequest(method, url, bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+login["token"])
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	// Naming the admin in the payload must not grant their powers.
	do(t, sessionRequest(http.MethodPost, server.URL+"/moderation/profiles/"+victim.ID+"/suspend",
		marshal(t, map[string]string{"actor_id": admin.ID, "note": "gotcha"})), http.StatusForbidden)

	got, err := application.Profiles.Get(context.Background(), victim.ID)
	require.NoError(t, err)
	require.False(t, got.Suspended)

	// Writes under another member's profile path are rejected too.
	do(t, sessionRequest(http.MethodPatch, server.URL+"/profiles/"+victim.ID,
		marshal(t, map[string]string{"bio": "defaced"})), http.StatusForbidden)

	// Acting as oneself still works.
	do(t, sessionRequest(http.MethodPatch, server.URL+"/profiles/"+mallory.ID,
		marshal(t, map[string]string{"bio": "hello"})), http.StatusOK)
}

func TestModerationFlow(t *testing.T) {
	server, application := newTestServer(t)

	member := registerProfile(t, server, "member")
	offender := registerProfile(t, server, "offender")
	moderatorID := registerProfile(t, server, "moderator")

	_, err := application.Profiles.SetRole(context.Background(), moderatorID, profile.RoleModerator)
	require.NoError(t, err)

	report := do(t, authedRequest(t, http.MethodPost, server.URL+"/reports",
		marshal(t, map[string]string{
			"reporter_id": member,
			"target_kind": "profile",
			"target_id":   offender,
			"reason":      "spam messages",
		})), http.StatusCreated)
	reportID := report["ID"].(string)

	// Plain members cannot resolve reports.
	resolve := marshal(t, map[string]string{"actor_id": member, "resolution": "resolve", "action": "suspend_profile"})
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/moderation/reports/"+reportID, resolve), http.StatusForbidden)

	resolve = marshal(t, map[string]string{"actor_id": moderatorID, "resolution": "resolve", "action": "suspend_profile", "note": "repeat spam"})
	resolved := do(t, authedRequest(t, http.MethodPatch, server.URL+"/moderation/reports/"+reportID, resolve), http.StatusOK)
	require.Equal(t, "resolved", resolved["Status"])

	// Resolving again conflicts.
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/moderation/reports/"+reportID, resolve), http.StatusConflict)

	suspended := do(t, authedRequest(t, http.MethodGet, server.URL+"/profiles/"+offender+"?viewer_id="+moderatorID, nil), http.StatusOK)
	require.Equal(t, true, suspended["Suspended"])

	entries := doList(t, authedRequest(t, http.MethodGet,
		fmt.Sprintf("%s/moderation/log?actor_id=%s&kind=profile&target_id=%s", server.URL, moderatorID, offender), nil), http.StatusOK)
	require.NotEmpty(t, entries)

	do(t, authedRequest(t, http.MethodPost, server.URL+"/moderation/profiles/"+offender+"/reinstate",
		marshal(t, map[string]string{"actor_id": moderatorID, "note": "appeal accepted"})), http.StatusOK)

	reinstated := do(t, authedRequest(t, http.MethodGet, server.URL+"/profiles/"+offender+"?viewer_id="+moderatorID, nil), http.StatusOK)
	require.Equal(t, false, reinstated["Suspended"])
}

func TestLoginIssuesUsableToken(t *testing.T) {
	application, err := app.New(app.Stores{}, nil)
	require.NoError(t, err)

	manager, err := auth.NewManager("test-secret", time.Hour, []auth.User{{
		ID:           "user-1",
		Handle:       "ops",
		PasswordHash: auth.HashPassword("hunter2"),
		Role:         "admin",
	}})
	require.NoError(t, err)

	handler := wrapWithAuth(NewHandlerWithLogin(application, manager), nil, manager)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/auth/login", "application/json",
		bytes.NewReader([]byte(`{"handle":"ops","password":"wrong"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(server.URL+"/auth/login", "application/json",
		bytes.NewReader([]byte(`{"handle":"ops","password":"hunter2"}`)))
	require.NoError(t, err)
	var login map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, login["token"])

	req, err := http.NewRequest(http.MethodGet, server.URL+"/profiles", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login["token"])
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, server.URL+"/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, body)
}

func TestAuditLogRecordsRequests(t *testing.T) {
	application, err := app.New(app.Stores{}, nil)
	require.NoError(t, err)

	audit := newAuditLog(5, nil)
	handler := wrapWithAudit(wrapWithAuth(NewHandler(application), []string{testAuthToken}, nil), audit)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	for i := 0; i < 8; i++ {
		resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, server.URL+"/profiles", nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	entries := audit.list()
	require.Len(t, entries, 5)
	require.Equal(t, "/profiles", entries[0].Path)
	require.Equal(t, http.StatusOK, entries[0].Status)

	require.Len(t, audit.listLimit(3), 3)
}
