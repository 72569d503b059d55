//go:build integration && postgres

package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	app "github.com/wayfarernet/community_layer/internal/app"
	"github.com/wayfarernet/community_layer/internal/app/auth"
	"github.com/wayfarernet/community_layer/internal/app/storage/postgres"
	"github.com/wayfarernet/community_layer/internal/platform/migrations"
)

// Integration test against Postgres to ensure migrations and the core flows
// work with persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrations.Apply(ctx, db.DB))

	pg := postgres.New(db)
	application, err := app.New(app.Stores{
		Profiles:    pg,
		Connections: pg,
		Syncs:       pg,
		References:  pg,
		Trips:       pg,
		Events:      pg,
		Moderation:  pg,
	}, nil)
	require.NoError(t, err)

	manager, err := auth.NewManager("integration-secret", time.Hour, []auth.User{{
		ID:           "admin",
		Handle:       "admin",
		PasswordHash: auth.HashPassword("pass"),
		Role:         "admin",
	}})
	require.NoError(t, err)

	handler, err := NewAPIHandler(application, manager, []string{testAuthToken}, 100, "")
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	defer server.Close()

	// Registration persists through the relational store.
	handle := "pg-it-" + time.Now().UTC().Format("150405")
	alice := registerProfile(t, server, handle+"-a")
	bob := registerProfile(t, server, handle+"-b")

	conn := do(t, authedRequest(t, http.MethodPost, server.URL+"/profiles/"+alice+"/connections",
		marshal(t, map[string]string{"addressee_id": bob})), http.StatusCreated)
	connID := conn["ID"].(string)
	do(t, authedRequest(t, http.MethodPatch, server.URL+"/profiles/"+bob+"/connections/"+connID,
		marshal(t, map[string]string{"action": "accept"})), http.StatusOK)

	listed := doList(t, authedRequest(t, http.MethodGet, server.URL+"/profiles/"+alice+"/connections", nil), http.StatusOK)
	require.NotEmpty(t, listed)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	login, err := http.Post(server.URL+"/auth/login", "application/json",
		bytes.NewReader([]byte(`{"handle":"admin","password":"pass"}`)))
	require.NoError(t, err)
	login.Body.Close()
	require.Equal(t, http.StatusOK, login.StatusCode)
}
