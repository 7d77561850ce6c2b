// Package keystore creates and loads the symmetric key that encrypts the
// credential cache.
//
// The key is generated once per user and machine and never rotated. Two
// backends exist: a raw key file (the default) and the OS keyring.
package keystore

import (
	"crypto/rand"
	"fmt"
	"io"

	dserrors "github.com/systmms/credcache/internal/errors"
)

// KeySize is the key length in bytes (XChaCha20-Poly1305 / 256 bit).
const KeySize = 32

const appName = "credcache"

// Store returns the cache key, creating it on first use.
type Store interface {
	// EnsureKey returns the existing key or creates and persists a new one.
	// All failures are *errors.KeyIOError.
	EnsureKey() ([]byte, error)

	// Location describes where the key lives, for diagnostics.
	Location() string
}

// Backend names accepted by New.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

// New builds the Store for the configured backend. keyFile is only used by
// the file backend; empty means DefaultKeyPath().
func New(backend, keyFile string) (Store, error) {
	switch backend {
	case "", BackendFile:
		if keyFile == "" {
			keyFile = DefaultKeyPath()
		}
		return NewFileStore(keyFile), nil
	case BackendKeyring:
		return NewKeyringStore(appName, "cache-key"), nil
	default:
		return nil, dserrors.ConfigError{
			Field:      "key_backend",
			Value:      backend,
			Message:    "unknown key backend",
			Suggestion: fmt.Sprintf("Use '%s' or '%s'", BackendFile, BackendKeyring),
		}
	}
}

func generateKey(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}
