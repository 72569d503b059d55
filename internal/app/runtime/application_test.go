package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wayfarernet/community_layer/internal/config"
)

func TestNewApplicationWithConfigInMemory(t *testing.T) {
	// Keep ambient infrastructure settings out of the test.
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := config.LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	application, err := NewApplicationWithConfig(cfg)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewApplicationWithConfigAuth(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := config.LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Users = []config.AuthUser{{ID: "u1", Handle: "ops", PasswordHash: "abc", Role: "admin"}}

	application, err := NewApplicationWithConfig(cfg)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	defer application.Shutdown(context.Background())

	if application.httpServer.Addr == "" {
		t.Fatal("expected a listen address")
	}
}
