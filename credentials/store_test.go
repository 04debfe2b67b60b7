package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aranyahq/aranya-go/credentials"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := credentials.NewMemoryStore()

	_, ok := store.Get(credentials.KeyAccessToken)
	require.False(t, ok)

	require.NoError(t, store.Set(credentials.KeyAccessToken, "A"))
	value, ok := store.Get(credentials.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, "A", value)

	require.NoError(t, store.Clear(credentials.SessionKeys()...))
	_, ok = store.Get(credentials.KeyAccessToken)
	require.False(t, ok)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aranya", "credentials.json")

	store, err := credentials.NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, credentials.SaveSession(store, credentials.Session{
		AccessToken:  "A",
		RefreshToken: "R",
		User:         `{"username":"jane"}`,
	}))

	reopened, err := credentials.NewFileStore(path)
	require.NoError(t, err)

	sess, ok := credentials.LoadSession(reopened)
	require.True(t, ok)
	require.Equal(t, "A", sess.AccessToken)
	require.Equal(t, "R", sess.RefreshToken)
	require.Equal(t, `{"username":"jane"}`, sess.User)
}

func TestFileStoreMissingFileIsLoggedOut(t *testing.T) {
	store, err := credentials.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	_, ok := credentials.LoadSession(store)
	require.False(t, ok)
}

func TestSaveSessionReplacesWholeGroup(t *testing.T) {
	store := credentials.NewMemoryStore()

	require.NoError(t, credentials.SaveSession(store, credentials.Session{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		User:         `{"username":"old"}`,
	}))
	require.NoError(t, credentials.SaveSession(store, credentials.Session{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		User:         `{"username":"new"}`,
	}))

	sess, ok := credentials.LoadSession(store)
	require.True(t, ok)
	require.Equal(t, "new-access", sess.AccessToken)
	require.Equal(t, "new-refresh", sess.RefreshToken)
	require.Equal(t, `{"username":"new"}`, sess.User)
}

func TestClearSessionIsIdempotent(t *testing.T) {
	store, err := credentials.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	require.NoError(t, credentials.SaveSession(store, credentials.Session{AccessToken: "A", RefreshToken: "R", User: "{}"}))
	require.NoError(t, credentials.ClearSession(store))
	require.NoError(t, credentials.ClearSession(store))

	for _, key := range credentials.SessionKeys() {
		_, ok := store.Get(key)
		require.False(t, ok, "key %q should be absent", key)
	}
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := credentials.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(credentials.KeyAccessToken, "A"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
