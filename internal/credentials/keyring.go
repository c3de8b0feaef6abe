package credentials

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/reviewpilot/pkg/models"
)

// KeyringService is the service name used for keyring storage.
const KeyringService = "reviewpilot"

// KeyringStore keeps credential records in the system keyring:
// Keychain on macOS, Credential Manager on Windows, Secret Service on Linux.
// Records are stored as the same JSON document the file backend writes.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed credential store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: KeyringService}
}

func (s *KeyringStore) Load(kind models.CredentialKind) (*models.Credential, error) {
	secret, err := keyring.Get(s.service, string(kind))
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential from keyring: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal([]byte(secret), &cred); err != nil {
		// Unreadable record is the same as no record
		return nil, nil
	}
	return &cred, nil
}

func (s *KeyringStore) Save(kind models.CredentialKind, cred *models.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := keyring.Set(s.service, string(kind), string(data)); err != nil {
		return fmt.Errorf("failed to store credential in keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Clear(kind models.CredentialKind) error {
	err := keyring.Delete(s.service, string(kind))
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete credential from keyring: %w", err)
	}
	return nil
}
