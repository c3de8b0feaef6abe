package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/pkg/models"
)

// Store persists at most one credential record per kind. Load returns
// (nil, nil) when no usable record exists; a malformed or missing record is
// treated as absent, not fatal, since the caller can always re-authenticate.
type Store interface {
	Load(kind models.CredentialKind) (*models.Credential, error)
	Save(kind models.CredentialKind, cred *models.Credential) error
	Clear(kind models.CredentialKind) error
}

// FileStore keeps one JSON file per credential kind under a directory.
// Writes go to a temp file first and are moved into place with a rename, so
// a crash mid-write can lose the newest record but never corrupt it.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(kind models.CredentialKind) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-token.json", kind))
}

// Load reads the stored credential of the given kind, if any.
func (s *FileStore) Load(kind models.CredentialKind) (*models.Credential, error) {
	data, err := os.ReadFile(s.path(kind))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to read credential file")
		}
		return nil, nil
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// Unreadable record is the same as no record
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Discarding malformed credential record")
		return nil, nil
	}

	return &cred, nil
}

// Save writes the credential record, replacing any previous one of the
// same kind.
func (s *FileStore) Save(kind models.CredentialKind, cred *models.Credential) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".%s-token-*", kind))
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(kind)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	return nil
}

// Clear removes the stored credential of the given kind. Clearing an absent
// record is not an error.
func (s *FileStore) Clear(kind models.CredentialKind) error {
	if err := os.Remove(s.path(kind)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// MemStore is an in-memory store for tests and embedding callers that
// manage their own persistence.
type MemStore struct {
	mu    sync.Mutex
	creds map[models.CredentialKind]models.Credential
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{creds: make(map[models.CredentialKind]models.Credential)}
}

func (s *MemStore) Load(kind models.CredentialKind) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[kind]
	if !ok {
		return nil, nil
	}
	copied := cred
	return &copied, nil
}

func (s *MemStore) Save(kind models.CredentialKind, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[kind] = *cred
	return nil
}

func (s *MemStore) Clear(kind models.CredentialKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, kind)
	return nil
}
