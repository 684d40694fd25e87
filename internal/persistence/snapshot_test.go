package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylas-dev/sylas/internal/session"
)

func TestFileSnapshotPersister_LoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	p := NewFileSnapshotPersister(filepath.Join(t.TempDir(), "state.json"))

	snap, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, session.SnapshotVersion, snap.Version)
	assert.Empty(t, snap.Sessions)
}

func TestFileSnapshotPersister_SaveLoadRoundTrip(t *testing.T) {
	p := NewFileSnapshotPersister(filepath.Join(t.TempDir(), "state.json"))

	saved := session.Snapshot{
		Version: session.SnapshotVersion,
		SavedAt: time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		Sessions: []session.SessionDTO{
			{
				ExternalSessionID: "ext-1",
				RunnerSessionIDs:  map[string]string{"claude": "rs-1"},
				TrackerID:         "linear",
				WorkItemID:        "ISSUE-1",
				Status:            "running",
				Procedure: session.ProcedureStateDTO{
					ProcedureName: "default",
					CurrentIndex:  2,
				},
			},
		},
		IssueRepoCache: map[string]string{"ISSUE-1": "repo-a"},
	}

	require.NoError(t, p.Save(saved))

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, saved.Version, loaded.Version)
	assert.True(t, saved.SavedAt.Equal(loaded.SavedAt))
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, saved.Sessions[0].ExternalSessionID, loaded.Sessions[0].ExternalSessionID)
	assert.Equal(t, saved.Sessions[0].Procedure.CurrentIndex, loaded.Sessions[0].Procedure.CurrentIndex)
	assert.Equal(t, saved.IssueRepoCache, loaded.IssueRepoCache)
}

func TestFileSnapshotPersister_SaveOverwritesPriorContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	p := NewFileSnapshotPersister(path)

	first := session.Snapshot{Version: session.SnapshotVersion, Sessions: []session.SessionDTO{{ExternalSessionID: "a"}}}
	require.NoError(t, p.Save(first))

	second := session.Snapshot{Version: session.SnapshotVersion, Sessions: []session.SessionDTO{{ExternalSessionID: "b"}}}
	require.NoError(t, p.Save(second))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, "b", loaded.Sessions[0].ExternalSessionID)
}
