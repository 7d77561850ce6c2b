package keystore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/zalando/go-keyring"

	dserrors "github.com/systmms/credcache/internal/errors"
)

// KeyringStore keeps the key base64-encoded in the OS keyring (macOS
// Keychain, Secret Service, Windows Credential Manager).
//
// The keyring has no create-if-absent primitive. After writing a new key the
// store reads it back, so racing first users converge on the last write.
type KeyringStore struct {
	service string
	user    string
	rand    io.Reader
}

// NewKeyringStore returns a store for the keyring item service/user.
func NewKeyringStore(service, user string) *KeyringStore {
	return &KeyringStore{service: service, user: user}
}

// Location returns the keyring address of the key.
func (s *KeyringStore) Location() string {
	return fmt.Sprintf("keyring:%s/%s", s.service, s.user)
}

// EnsureKey loads the key from the keyring, creating it if absent.
func (s *KeyringStore) EnsureKey() ([]byte, error) {
	key, err := s.read()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, err
	}

	key, err = generateKey(s.rand)
	if err != nil {
		return nil, s.fail("create", err)
	}
	if err := keyring.Set(s.service, s.user, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, s.fail("create", err)
	}

	return s.read()
}

func (s *KeyringStore) read() ([]byte, error) {
	encoded, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, err
		}
		return nil, s.fail("read", err)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, s.fail("decode", err)
	}
	if len(key) != KeySize {
		return nil, s.fail("decode", fmt.Errorf("keyring item holds %d bytes, want %d", len(key), KeySize))
	}
	return key, nil
}

func (s *KeyringStore) fail(op string, err error) error {
	return &dserrors.KeyIOError{Op: op, Location: s.Location(), Err: err}
}
