package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() domainauth.CredentialRecord {
	return domainauth.CredentialRecord{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
		User: domainauth.User{
			ID:        "u1",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Role:      domainauth.RoleMember,
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord()
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestStore_LoadAbsent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ports.ErrNoRecord)
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, autherrors.IsStoreCorrupt(err), "expected store corrupt, got %v", err)
}

func TestStore_LoadPartialRecordIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewStore(path)
	require.NoError(t, err)
	// Valid JSON but missing the refresh token: treated as a torn write.
	require.NoError(t, os.WriteFile(path, []byte(`{"accessToken":"at"}`), 0o600))

	_, err = store.Load(context.Background())
	assert.True(t, autherrors.IsStoreCorrupt(err), "expected store corrupt, got %v", err)
}

func TestStore_SaveRejectsPartialRecord(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(context.Background(), domainauth.CredentialRecord{AccessToken: "at"})
	assert.Error(t, err)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRecord()))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ports.ErrNoRecord)

	// Clearing an already-empty store must not error.
	assert.NoError(t, store.Clear(ctx))
}

func TestStore_SaveOverwritesAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testRecord()
	require.NoError(t, store.Save(ctx, first))

	second := testRecord()
	second.AccessToken = "at-2"
	second.RefreshToken = "rt-2"
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	// All fields come from the second write, none from the first.
	assert.Equal(t, second, loaded)
}
