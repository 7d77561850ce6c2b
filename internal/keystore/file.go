package keystore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"

	dserrors "github.com/systmms/credcache/internal/errors"
)

const keyFileName = "encryption.key"

// DefaultKeyPath returns the per-user key location: the application data
// directory on Windows, a dot directory under the home directory elsewhere.
func DefaultKeyPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(xdg.DataHome, appName, keyFileName)
	}
	return filepath.Join(xdg.Home, "."+appName, keyFileName)
}

// FileStore keeps the raw key bytes in a single file with no wrapping format.
type FileStore struct {
	path string
	rand io.Reader
}

// NewFileStore returns a store for the key file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the key file path.
func (s *FileStore) Location() string {
	return s.path
}

// EnsureKey reads the key file, or creates it if absent.
//
// Creation writes the key to a temp file in the same directory and hard-links
// it into place. The link fails if another process got there first, in which
// case that process's key is read instead, so concurrent first users agree on
// one key and nobody observes a partially written key file.
func (s *FileStore) EnsureKey() ([]byte, error) {
	key, err := s.read()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, s.fail("create", err)
	}

	key, err = generateKey(s.rand)
	if err != nil {
		return nil, s.fail("create", err)
	}

	tmp, err := os.CreateTemp(dir, "."+keyFileName+"-*")
	if err != nil {
		return nil, s.fail("create", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeAndSync(tmp, key); err != nil {
		return nil, s.fail("create", err)
	}

	if err := os.Link(tmpName, s.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return s.read()
		}
		return nil, s.fail("create", err)
	}

	return key, nil
}

func (s *FileStore) read() ([]byte, error) {
	key, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, s.fail("read", err)
	}
	if len(key) != KeySize {
		return nil, s.fail("read", fmt.Errorf("key file holds %d bytes, want %d", len(key), KeySize))
	}
	return key, nil
}

func (s *FileStore) fail(op string, err error) error {
	return &dserrors.KeyIOError{Op: op, Location: s.path, Err: err}
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
