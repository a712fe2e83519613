// Package credstore persists the bearer and refresh tokens between runs.
//
// The file-backed implementation keeps the tokens encrypted at rest; the
// in-memory implementation exists for tests. Failures are returned as
// errors, never panicked, and Delete is idempotent: removing credentials
// that are not there is a success.
package credstore

import "sync"

// Credentials is the stored token pair.
type Credentials struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type Store interface {
	// Save replaces the stored credentials.
	Save(creds Credentials) error
	// Load returns the stored credentials; the bool reports presence.
	Load() (Credentials, bool, error)
	// Delete removes stored credentials. Absence is not an error.
	Delete() error
}

// MemoryStore is a process-local Store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
	set   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Save(creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	m.set = true
	return nil
}

func (m *MemoryStore) Load() (Credentials, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return Credentials{}, false, nil
	}
	return m.creds, true, nil
}

func (m *MemoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	m.set = false
	return nil
}
