package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylas-dev/sylas/internal/trackersvc"
)

func TestFileCredentialStore_GetMissingWorkspaceErrors(t *testing.T) {
	s := NewFileCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))

	_, err := s.Get("does-not-exist")
	assert.Error(t, err)
}

func TestFileCredentialStore_PutGetRoundTrip(t *testing.T) {
	s := NewFileCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))

	expiresAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cred := trackersvc.Credential{
		TrackerID:    "linear",
		WorkspaceID:  "ws-1",
		AccessToken:  "token-abc",
		RefreshToken: "refresh-abc",
		ExpiresAt:    &expiresAt,
	}
	require.NoError(t, s.Put(cred))

	got, err := s.Get("ws-1")
	require.NoError(t, err)
	assert.Equal(t, cred.TrackerID, got.TrackerID)
	assert.Equal(t, cred.AccessToken, got.AccessToken)
	assert.Equal(t, cred.RefreshToken, got.RefreshToken)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, cred.ExpiresAt.Equal(*got.ExpiresAt))
}

func TestFileCredentialStore_PutPreservesOtherWorkspaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := NewFileCredentialStore(path)

	require.NoError(t, s.Put(trackersvc.Credential{WorkspaceID: "ws-1", AccessToken: "a"}))
	require.NoError(t, s.Put(trackersvc.Credential{WorkspaceID: "ws-2", AccessToken: "b"}))

	got1, err := s.Get("ws-1")
	require.NoError(t, err)
	assert.Equal(t, "a", got1.AccessToken)

	got2, err := s.Get("ws-2")
	require.NoError(t, err)
	assert.Equal(t, "b", got2.AccessToken)
}

func TestFileCredentialStore_PutOverwritesSameWorkspace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := NewFileCredentialStore(path)

	require.NoError(t, s.Put(trackersvc.Credential{WorkspaceID: "ws-1", AccessToken: "old"}))
	require.NoError(t, s.Put(trackersvc.Credential{WorkspaceID: "ws-1", AccessToken: "new"}))

	got, err := s.Get("ws-1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}
