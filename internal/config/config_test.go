package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, 200, cfg.Audit.MaxEntries)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "community.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
auth:
  tokens: ["from-file"]
trust:
  recalc_schedule: "0 4 * * *"
`), 0o600))

	t.Setenv("COMMUNITY_PORT", "9100")
	t.Setenv("AUTH_TOKENS", "one, two")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, []string{"one", "two"}, cfg.Auth.Tokens)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "0 4 * * *", cfg.Trust.RecalcSchedule)
}

func TestValidateRejectsPartialSupabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "community.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
supabase:
  url: https://example.supabase.co
`), 0o600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestValidateRequiresSecretForUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "community.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  users:
    - handle: ops
      password_hash: abc123
`), 0o600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
}
