package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmpty is returned when asked to protect zero bytes.
	ErrEmpty = errors.New("secure: refusing to protect empty data")

	// ErrDestroyed is returned when a destroyed buffer is used.
	ErrDestroyed = errors.New("secure: buffer has been destroyed")
)

// SecureBuffer keeps key material encrypted in memory between uses.
// It wraps memguard.Enclave; the plaintext only exists inside a locked,
// guard-paged buffer for the duration of a Use callback.
type SecureBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewSecureBuffer moves data into a protected enclave.
// memguard wipes the source slice, so data must not be used afterwards.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	size := len(data)
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
		size:    size,
	}, nil
}

// Len returns the size of the protected data.
func (s *SecureBuffer) Len() int {
	return s.size
}

// Use decrypts the enclave, passes the plaintext to fn and destroys the
// plaintext copy when fn returns. fn must not retain the slice.
func (s *SecureBuffer) Use(fn func(plaintext []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return ErrDestroyed
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Equal reports whether the protected data equals other, in constant time.
func (s *SecureBuffer) Equal(other []byte) bool {
	var equal bool
	_ = s.Use(func(plaintext []byte) error {
		locked := memguard.NewBufferFromBytes(append([]byte(nil), other...))
		defer locked.Destroy()
		equal = locked.EqualTo(plaintext)
		return nil
	})
	return equal
}

// Destroy drops the enclave. It is idempotent; later Use calls fail with
// ErrDestroyed. Call memguard.Purge at process exit to wipe everything.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}
