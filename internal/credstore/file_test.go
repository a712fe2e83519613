package credstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "credentials"), "test-passphrase")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	want := Credentials{Token: "bearer-abc", RefreshToken: "refresh-xyz"}
	require.NoError(t, store.Save(want))

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestLoadAbsent(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	// nothing saved yet: still a success
	require.NoError(t, store.Delete())

	require.NoError(t, store.Save(Credentials{Token: "t", RefreshToken: "r"}))
	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())

	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWrongPassphraseFailsAuth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials")

	require.NoError(t, NewFileStore(path, "right").Save(Credentials{Token: "t"}))

	_, _, err := NewFileStore(path, "wrong").Load()
	require.ErrorIs(t, err, ErrEnvelopeAuth)
}

func TestTokensNotStoredInPlaintext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials")

	require.NoError(t, NewFileStore(path, "p").Save(Credentials{Token: "super-secret-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-token")
}

func TestGarbageEnvelopeIsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials")
	require.NoError(t, os.WriteFile(path, []byte("not an envelope"), 0o600))

	_, _, err := NewFileStore(path, "p").Load()
	require.ErrorIs(t, err, ErrEnvelopeInvalid)
}
