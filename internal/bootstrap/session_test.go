package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.NotZero(t, cfg.Session.RefreshInterval)
	assert.NotZero(t, cfg.Backend.HTTP.Timeout)
}

func TestBuildSessionStackDevBackend(t *testing.T) {
	t.Setenv("BACKEND_MODE", "dev")
	t.Setenv("STORE_FILE_PATH", filepath.Join(t.TempDir(), "credentials.json"))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stack, err := BuildSessionStack(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, stack.Close()) }()

	require.NotNil(t, stack.Manager)
	require.NotNil(t, stack.Scheduler)
	require.NotNil(t, stack.Hydrator)
	assert.Nil(t, stack.Federated)

	// End to end against the dev backend: hydrate empty, login, restart-style
	// hydrate picks the session back up.
	require.NoError(t, stack.Hydrator.Run(context.Background()))
	assert.Equal(t, domainauth.StatusUnauthenticated, stack.Manager.CurrentSession().Status)

	sess, err := stack.Manager.Login(context.Background(), cfg.Backend.Dev.Email, cfg.Backend.Dev.Password)
	require.NoError(t, err)
	assert.Equal(t, domainauth.StatusAuthenticated, sess.Status)
}

func TestBuildSessionStackUnknownBackend(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Backend.Mode = "smoke-signal"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = BuildSessionStack(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend mode")
}
