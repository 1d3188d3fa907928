package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CredentialStore holds the durable MFA secret. It is written once, at the end of
// enrollment, and is read-only afterwards.
type CredentialStore struct {
	mu     sync.RWMutex
	secret string
	// Optional file the secret is persisted to. Empty keeps it in memory only.
	path string
}

// NewCredentialStore seeds the store from configuration. A configured secret wins over the file.
func NewCredentialStore(configured, path string) (*CredentialStore, error) {
	s := &CredentialStore{
		secret: normalizeSecret(configured),
		path:   path,
	}
	if len(s.secret) > 0 || len(path) == 0 {
		return s, nil
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		s.secret = normalizeSecret(string(b))
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

// Base32 secrets are case-insensitive; codes are always validated against the upper-case form.
func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimSpace(secret))
}

// Secret returns the durable secret and whether one is configured.
func (s *CredentialStore) Secret() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret, len(s.secret) > 0
}

// Promote makes a verified pending secret the durable credential.
func (s *CredentialStore) Promote(secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.secret) > 0 {
		return ErrAlreadyEnrolled
	}
	if len(s.path) > 0 {
		if err := writeFileAtomic(s.path, []byte(secret+"\n")); err != nil {
			return fmt.Errorf("persist MFA secret: %w", err)
		}
	}
	s.secret = secret
	return nil
}

// Persistent reports whether promoted secrets survive a restart.
func (s *CredentialStore) Persistent() bool {
	return len(s.path) > 0
}

// ResetCredentialFile removes a persisted MFA secret so the next login starts enrollment again.
// A missing file is not an error.
func ResetCredentialFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes data to a 0600 temp file next to path, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".mfa-secret-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
