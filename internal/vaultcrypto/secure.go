package vaultcrypto

import (
	"runtime"
	"sync"
)

// SecureBytes is a wrapper for sensitive byte slices that provides
// secure memory handling with mlock and explicit zeroing.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// memoryLockDisabled turns mlock into a no-op, for RLIMIT_MEMLOCK
// constrained environments. Zeroing on Destroy is unaffected.
//
//nolint:gochecknoglobals // process-wide operational toggle
var memoryLockDisabled bool

// SetMemoryLock enables or disables mlock for subsequently created
// SecureBytes. Call before any secrets are loaded.
func SetMemoryLock(enabled bool) {
	memoryLockDisabled = !enabled
}

// NewSecureBytes creates a new SecureBytes with the given size.
// The memory is locked if the system supports it.
func NewSecureBytes(size int) (*SecureBytes, error) {
	data := make([]byte, size)

	sb := &SecureBytes{
		data: data,
	}
	if !memoryLockDisabled {
		sb.locked = mlock(data)
	}

	// Belt-and-braces: clear even if Destroy is never called.
	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb, nil
}

// SecureBytesFromSlice copies data into secure memory. The caller should
// zero the source slice after this call returns.
func SecureBytesFromSlice(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}
	copy(sb.data, data)
	return sb, nil
}

// Bytes returns the underlying byte slice.
// Returns nil if the SecureBytes has been destroyed.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// IsLocked returns whether the memory is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy zeros the memory and unlocks it. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	for i := range s.data {
		s.data[i] = 0
	}

	if s.locked {
		munlock(s.data)
		s.locked = false
	}

	s.data = nil
	runtime.SetFinalizer(s, nil)
}

// Len returns the length of the data, or 0 after Destroy.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return 0
	}
	return len(s.data)
}

// ZeroBytes securely zeros a byte slice. runtime.KeepAlive prevents the
// compiler from treating the zeroing as a dead store.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
