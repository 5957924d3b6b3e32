package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/storeaudit/internal/middleware"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("STOREAUDIT_DB_DRIVER", "sqlite3")
	t.Setenv("STOREAUDIT_DB_DSN", "file:"+filepath.Join(t.TempDir(), "audit.db"))
	t.Setenv("STOREAUDIT_LOG_LEVEL", "error")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "storeaudit dev")
}

func TestMigrateAndSeed(t *testing.T) {
	useTempDB(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	seed := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
categories:
  - name: Limpieza
    weight: 10
    subcategories:
      - name: Piso
        questions: ["Piso trapeado", "Piso sin basura"]
`), 0o644))
	out, err = run(t, "seed", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 questions")
}

func TestScoreUnknownAudit(t *testing.T) {
	useTempDB(t)
	_, err := run(t, "score", "ghost")
	assert.Error(t, err)
}

func TestTokenVerifies(t *testing.T) {
	t.Setenv("STOREAUDIT_JWT_SECRET", "cli-secret")
	out, err := run(t, "token", "u7", "--ttl", "1h")
	require.NoError(t, err)
	claims, err := middleware.NewAuthenticator("cli-secret", "").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u7", claims.Subject)
	assert.Equal(t, "auditor", claims.Role)
}

func TestBadLogLevelFlag(t *testing.T) {
	_, err := run(t, "token", "u1", "--log-level", "loud")
	assert.Error(t, err)
}
