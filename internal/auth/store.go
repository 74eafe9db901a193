package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	apperrors "github.com/chy168/google-chat-mcp-server/internal/errors"
)

// TokenStore owns the durable token record at a fixed path plus the
// single in-memory cached credential. The path is set at construction;
// there is no way to repoint a live store, which keeps the cache and the
// file from ever referring to different records.
type TokenStore struct {
	mu          sync.Mutex
	path        string
	cached      *Credential
	lastRefresh time.Time
}

// NewTokenStore creates a store persisting to the given path. The file
// is not touched until the first Load or Save.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the configured token file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load returns the cached credential if one is present, otherwise reads
// the token file. A missing file is not an error and yields (nil, nil);
// a file that exists but cannot be parsed is reported as storage
// corruption, which must not be mistaken for "not authenticated".
func (s *TokenStore) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrStorageCorrupt, s.path, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", apperrors.ErrStorageCorrupt, s.path, err)
	}

	s.cached = &cred

	return &cred, nil
}

// Save serializes the credential and overwrites the token file, then
// updates the in-memory cache and the last-refresh timestamp. The write
// replaces the whole record; there is no partial persistence.
func (s *TokenStore) Save(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	// 0600: the record holds bearer secrets.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	s.cached = cred
	s.lastRefresh = time.Now()

	return nil
}

// LastRefresh returns when a credential was last persisted, or the zero
// time if none has been this process.
func (s *TokenStore) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}
