// Package session holds the daemon-wide passphrase session: the
// Argon2id-derived unlock key cached in locked memory with a TTL, so one
// interactive unlock serves every connected client until expiry. The key
// never touches disk and is zeroized on expiry, explicit lock, or shutdown.
package session

import (
	"sync"
	"time"

	"github.com/halyard-sh/halyard/internal/vaultcrypto"
)

// Default session configuration values.
const (
	// DefaultTTL is the default session duration (15 minutes).
	DefaultTTL = 15 * time.Minute

	// MaxTTL is the maximum allowed session duration (60 minutes).
	MaxTTL = 60 * time.Minute

	// MinTTL is the minimum allowed session duration (1 second).
	MinTTL = 1 * time.Second
)

// Clock abstracts time for expiry checks so tests can substitute a fake.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager is the process-wide passphrase session. A single instance lives
// in the daemon and is shared by all client connections: unlocking from any
// one client unlocks for all. This is a product requirement, not an
// accident of implementation.
type Manager struct {
	mu        sync.Mutex
	key       *vaultcrypto.SecureBytes
	createdAt time.Time
	expiresAt time.Time
	ttl       time.Duration
	sliding   bool
	clock     Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the time source (for tests).
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithSlidingTTL renews the expiry on every successful access instead of
// fixing it at unlock time. Off by default: fixed-from-creation is the
// stricter interpretation.
func WithSlidingTTL() Option {
	return func(m *Manager) { m.sliding = true }
}

// NewManager creates a locked session manager with the given TTL.
// TTLs outside [MinTTL, MaxTTL] are clamped.
func NewManager(ttl time.Duration, opts ...Option) *Manager {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	m := &Manager{
		ttl:   ttl,
		clock: realClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Unlock caches a freshly derived key and starts the TTL window. The caller
// retains no ownership of derived; the manager copies it into locked memory
// and the caller should zero its copy.
func (m *Manager) Unlock(derived []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()

	sb, err := vaultcrypto.SecureBytesFromSlice(derived)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	m.key = sb
	m.createdAt = now
	m.expiresAt = now.Add(m.ttl)
	return nil
}

// Key returns the cached derived key, or false if the session is locked or
// expired. Expiry is re-checked at every call: a session is never usable
// past its deadline even if nothing explicitly invalidated it. The returned
// slice aliases locked memory owned by the manager; callers must not retain
// it past the current operation.
func (m *Manager) Key() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key == nil {
		return nil, false
	}

	now := m.clock.Now()
	if !now.Before(m.expiresAt) {
		m.clearLocked()
		return nil, false
	}

	if m.sliding {
		m.expiresAt = now.Add(m.ttl)
	}
	return m.key.Bytes(), true
}

// Unlocked reports whether a valid (non-expired) session exists, clearing
// the key if the deadline has passed.
func (m *Manager) Unlocked() bool {
	_, ok := m.Key()
	return ok
}

// ExpiresAt returns the current expiry deadline and whether a session is
// active.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key == nil {
		return time.Time{}, false
	}
	return m.expiresAt, true
}

// Invalidate zeroizes the cached key immediately and locks the session.
// Called on explicit lock commands and daemon shutdown.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

// clearLocked zeroizes state. Caller must hold mu.
func (m *Manager) clearLocked() {
	if m.key != nil {
		m.key.Destroy()
		m.key = nil
	}
	m.createdAt = time.Time{}
	m.expiresAt = time.Time{}
}
