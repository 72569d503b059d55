package supabase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
)

func newTestStore(t *testing.T, handler http.Handler) (*ReferenceStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{URL: srv.URL, ServiceKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return NewReferenceStore(client), srv
}

func echoInsert(w http.ResponseWriter, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode([]map[string]interface{}{payload})
}

func TestCreateReferenceRPC(t *testing.T) {
	var rpcCalls int
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/create_reference" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "test-key" {
			t.Fatalf("missing apikey header")
		}
		rpcCalls++

		var args map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&args)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":        args["p_id"],
			"author_id": args["p_author_id"],
			"body":      args["p_body"],
			"sentiment": args["p_sentiment"],
		})
	}))

	var outcomes []string
	store.Observe = func(outcome string) { outcomes = append(outcomes, outcome) }

	ref, err := store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  "author-1",
		SubjectID: "subject-1",
		Context:   reference.ContextSync,
		Sentiment: reference.SentimentPositive,
		Body:      "great host",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rpcCalls != 1 {
		t.Fatalf("expected 1 rpc call, got %d", rpcCalls)
	}
	if ref.Body != "great host" {
		t.Fatalf("unexpected body %q", ref.Body)
	}
	if len(outcomes) != 1 || outcomes[0] != "rpc" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestCreateReferenceFallbackColumnProbe(t *testing.T) {
	// The stored procedure is missing and the remote schema only knows the
	// legacy "feedback" column.
	var inserts []string
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/rpc/create_reference":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"PGRST202","message":"function not found"}`))
		case "/rest/v1/references":
			var payload map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			for _, column := range []string{"body", "content", "feedback", "comment"} {
				if _, ok := payload[column]; ok {
					inserts = append(inserts, column)
					if column != "feedback" {
						w.WriteHeader(http.StatusBadRequest)
						_, _ = w.Write([]byte(`{"code":"PGRST204","message":"column not found"}`))
						return
					}
				}
			}
			echoInsert(w, payload)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	var outcomes []string
	store.Observe = func(outcome string) { outcomes = append(outcomes, outcome) }

	ref, err := store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  "author-1",
		SubjectID: "subject-1",
		Context:   reference.ContextSync,
		Sentiment: reference.SentimentNeutral,
		Body:      "fine",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ref.Body != "fine" {
		t.Fatalf("body not recovered from legacy column: %q", ref.Body)
	}
	if len(inserts) != 3 || inserts[2] != "feedback" {
		t.Fatalf("unexpected probe order %v", inserts)
	}
	if outcomes[len(outcomes)-1] != "fallback:feedback" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}

	// A second write must reuse the resolved column without re-probing the
	// procedure or the earlier candidates.
	inserts = nil
	if _, err := store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  "author-2",
		SubjectID: "subject-1",
		Context:   reference.ContextSync,
		Sentiment: reference.SentimentPositive,
		Body:      "again",
	}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if len(inserts) != 1 || inserts[0] != "feedback" {
		t.Fatalf("resolved column not cached, probes: %v", inserts)
	}
}

func TestCreateReferenceRatingScaleRetry(t *testing.T) {
	var ratings []float64
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/rpc/create_reference":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"42883"}`))
		case "/rest/v1/references":
			var payload map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			rating, _ := payload["rating"].(float64)
			ratings = append(ratings, rating)
			if rating <= 5 {
				// Remote check constraint wants the 0-100 scale.
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"23514","message":"rating_check"}`))
				return
			}
			echoInsert(w, payload)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	rating := 4
	ref, err := store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  "author-1",
		SubjectID: "subject-1",
		Context:   reference.ContextEvent,
		EventID:   "event-1",
		Sentiment: reference.SentimentPositive,
		Body:      "solid",
		Rating:    &rating,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ratings) != 2 || ratings[0] != 4 || ratings[1] != 80 {
		t.Fatalf("unexpected rating attempts %v", ratings)
	}
	// The store reads the scaled value back down to 1-5.
	if ref.Rating == nil || *ref.Rating != 4 {
		t.Fatalf("rating not normalized: %v", ref.Rating)
	}
}

func TestCreateReferenceNoCompatibleColumn(t *testing.T) {
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/rpc/create_reference":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"PGRST202"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"42703"}`))
		}
	}))

	var outcomes []string
	store.Observe = func(outcome string) { outcomes = append(outcomes, outcome) }

	_, err := store.CreateReference(context.Background(), reference.Reference{
		AuthorID:  "author-1",
		SubjectID: "subject-1",
		Sentiment: reference.SentimentPositive,
		Body:      "x",
	})
	if err == nil {
		t.Fatal("expected error when every column candidate is rejected")
	}
	if outcomes[len(outcomes)-1] != "rejected" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestGetReferenceNotFound(t *testing.T) {
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := store.GetReference(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestFindReplySkipsTopLevel(t *testing.T) {
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"r2","author_id":"subject-1","in_reply_to":"r1","content":"thanks"}]`))
	}))

	reply, ok, err := store.FindReply(context.Background(), "r1")
	if err != nil {
		t.Fatalf("find reply: %v", err)
	}
	if !ok || reply.ID != "r2" {
		t.Fatalf("reply not found: %+v ok=%v", reply, ok)
	}
	if reply.Body != "thanks" {
		t.Fatalf("legacy content column not mapped to body: %q", reply.Body)
	}
}
