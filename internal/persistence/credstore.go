package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sylas-dev/sylas/internal/trackersvc"
)

// FileCredentialStore implements trackersvc.Store against a single JSON
// file ("<sylas_home>/credentials.json"), the same atomic-write-then-
// rename shape FileSnapshotPersister uses for state.json.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewFileCredentialStore builds a store writing to path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (s *FileCredentialStore) readAll() (map[string]trackersvc.Credential, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]trackersvc.Credential), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential store: %w", err)
	}
	creds := make(map[string]trackersvc.Credential)
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credential store: %w", err)
	}
	return creds, nil
}

// Get returns the credential for workspaceID.
func (s *FileCredentialStore) Get(workspaceID string) (trackersvc.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, err := s.readAll()
	if err != nil {
		return trackersvc.Credential{}, err
	}
	cred, ok := creds[workspaceID]
	if !ok {
		return trackersvc.Credential{}, fmt.Errorf("no credential stored for workspace %s", workspaceID)
	}
	return cred, nil
}

// Put writes back cred, keyed by its WorkspaceID, atomically.
func (s *FileCredentialStore) Put(cred trackersvc.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, err := s.readAll()
	if err != nil {
		return err
	}
	creds[cred.WorkspaceID] = cred

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credential store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("preparing credential store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credential store temp file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

var _ trackersvc.Store = (*FileCredentialStore)(nil)
