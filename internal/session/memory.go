package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	username  string
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Expired entries are purged lazily:
// on every Create, and individually when Validate finds one.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	sess map[string]entry
	now  func() time.Time
}

// NewMemoryStore initializes an empty store. A non-positive ttl falls back
// to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:  ttl,
		sess: make(map[string]entry),
		now:  time.Now,
	}
}

// Create issues a token and sweeps expired entries while holding the lock.
func (m *MemoryStore) Create(username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for token, e := range m.sess {
		if !now.Before(e.expiresAt) {
			delete(m.sess, token)
		}
	}
	token := uuid.NewString()
	m.sess[token] = entry{username: username, expiresAt: now.Add(m.ttl)}
	return token, nil
}

// Validate resolves a token. A found-but-expired token is removed as a side
// effect and reported as absent.
func (m *MemoryStore) Validate(token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sess[token]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sess, token)
		return "", false, nil
	}
	return e.username, true, nil
}

// Clear drops all sessions.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = make(map[string]entry)
	return nil
}
