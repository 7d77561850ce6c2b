// Package cache stores fetched credentials encrypted on local disk with a
// time-based expiry.
//
// The cache is a single file containing nonce || ciphertext || tag of a JSON
// envelope. The envelope holds one entry per (service, field set), each with
// its own timestamp; nothing readable is written to disk. Every store rewrites
// the whole file through a temp file and rename, so readers only ever see the
// previous or the new complete file.
//
// Freshness has two levels. The file is fresh when it exists and its mtime is
// within the TTL; since every store rewrites the file, a stale file cannot hold
// a fresh entry. An entry is fresh when its own stored_at is within the TTL.
// A TTL of zero or less disables cache hits entirely.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/internal/logging"
	"github.com/systmms/credcache/internal/metrics"
	"github.com/systmms/credcache/internal/secure"
	"github.com/systmms/credcache/pkg/provider"
)

// DefaultTTL is how long cached credentials stay fresh.
const DefaultTTL = 24 * time.Hour

// DefaultPath is the cache file used when none is configured.
const DefaultPath = "credentials_cache.json"

// ErrCorrupt marks a cache file that could not be decrypted or parsed.
// It never escapes Load; it is exposed for Entries callers.
var ErrCorrupt = errors.New("cache file is corrupt or was tampered with")

// KeySource supplies the encryption key. keystore.Store satisfies it.
type KeySource interface {
	EnsureKey() ([]byte, error)
	Location() string
}

// WriteError reports that the cache file could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write cache file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Options configures a Cache.
type Options struct {
	Path    string
	TTL     time.Duration
	Now     func() time.Time
	Logger  logging.LeveledLogger
	Metrics *metrics.Recorder
}

// EntryInfo describes one cached entry without its values.
type EntryInfo struct {
	Service   string
	Fields    []string
	Missing   []string
	StoredAt  time.Time
	ExpiresAt time.Time
	Fresh     bool
}

// Cache is the encrypted, TTL-bounded credential store.
type Cache struct {
	path    string
	ttl     time.Duration
	now     func() time.Time
	keys    KeySource
	logger  logging.LeveledLogger
	metrics *metrics.Recorder

	mu  sync.Mutex
	key *secure.SecureBuffer
}

// New creates a Cache. It does not touch the filesystem; the key is loaded
// on first use.
func New(keys KeySource, opts Options) *Cache {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Cache{
		path:    opts.Path,
		ttl:     opts.TTL,
		now:     opts.Now,
		keys:    keys,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// KeyLocation describes where the encryption key is stored.
func (c *Cache) KeyLocation() string {
	return c.keys.Location()
}

// EnsureKey loads (or creates) the encryption key and keeps it in a secure
// buffer for the lifetime of the Cache. Errors are *errors.KeyIOError.
func (c *Cache) EnsureKey() error {
	_, err := c.secureKey()
	return err
}

// Close wipes the in-memory key.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		c.key.Destroy()
		c.key = nil
	}
}

// IsFresh reports whether the cache file exists and was written within the
// TTL. It fails closed: any stat error means not fresh.
func (c *Cache) IsFresh() bool {
	if c.ttl <= 0 {
		return false
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return c.within(info.ModTime())
}

// Load returns the cached credentials for k, or nil on a miss. A corrupt,
// tampered or unreadable cache file is a miss, never an error; only key
// failures are returned.
func (c *Cache) Load(k provider.Key) (provider.CredentialMap, error) {
	env, err := c.read()
	if err != nil {
		if dserrors.IsKeyIO(err) {
			return nil, err
		}
		if errors.Is(err, fs.ErrNotExist) {
			c.metrics.CacheLookup(metrics.LookupMiss)
			return nil, nil
		}
		c.logger.Warn("Ignoring unreadable credential cache %s: %v", c.path, err)
		c.metrics.CacheLookup(metrics.LookupCorrupt)
		return nil, nil
	}

	e := env.find(k)
	if e == nil {
		c.logger.Debug("No cache entry for %s", k)
		c.metrics.CacheLookup(metrics.LookupMiss)
		return nil, nil
	}
	if !c.fresh(e) {
		c.logger.Debug("Cache entry for %s is stale (stored %s)", k, e.StoredAt.Format(time.RFC3339))
		c.metrics.CacheLookup(metrics.LookupStale)
		return nil, nil
	}

	c.metrics.CacheLookup(metrics.LookupHit)
	return e.Credentials.Clone(), nil
}

// Store records creds for k, replacing any previous entry for the same key
// and dropping expired entries, then atomically rewrites the cache file.
// Failures are *errors.KeyIOError or *WriteError.
func (c *Cache) Store(k provider.Key, creds provider.CredentialMap) error {
	key, err := c.secureKey()
	if err != nil {
		return err
	}

	env, err := c.read()
	if err != nil {
		if dserrors.IsKeyIO(err) {
			return err
		}
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("Replacing unreadable credential cache %s: %v", c.path, err)
		}
		env = newEnvelope()
	}

	now := c.now()
	env.prune(c.fresh)
	if creds == nil {
		creds = provider.CredentialMap{}
	}
	fields := k.Fields
	if fields == nil {
		fields = []string{}
	}
	env.put(&entry{
		Service:     k.Service,
		Fields:      fields,
		StoredAt:    now.UTC(),
		Credentials: creds.Clone(),
	})

	plaintext, err := encodeEnvelope(env)
	if err != nil {
		return &WriteError{Path: c.path, Err: err}
	}

	var ciphertext []byte
	err = key.Use(func(raw []byte) error {
		var sealErr error
		ciphertext, sealErr = seal(raw, plaintext)
		return sealErr
	})
	if err != nil {
		return &WriteError{Path: c.path, Err: err}
	}

	if err := c.write(ciphertext, now); err != nil {
		c.metrics.CacheWrite(false)
		return &WriteError{Path: c.path, Err: err}
	}

	c.metrics.CacheWrite(true)
	c.logger.Debug("Cached %d field(s) for %s in %s", len(creds), k.Service, c.path)
	return nil
}

// Entries lists the cached entries without their values. A missing cache
// file yields no entries; a corrupt one yields ErrCorrupt.
func (c *Cache) Entries() ([]EntryInfo, error) {
	env, err := c.read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	infos := make([]EntryInfo, 0, len(env.Entries))
	for _, e := range env.Entries {
		infos = append(infos, EntryInfo{
			Service:   e.Service,
			Fields:    append([]string(nil), e.Fields...),
			Missing:   e.Credentials.Missing(),
			StoredAt:  e.StoredAt,
			ExpiresAt: e.StoredAt.Add(c.ttl),
			Fresh:     c.fresh(e),
		})
	}
	return infos, nil
}

func (c *Cache) within(t time.Time) bool {
	return c.ttl > 0 && c.now().Sub(t) <= c.ttl
}

func (c *Cache) fresh(e *entry) bool {
	return c.within(e.StoredAt)
}

// read loads and decrypts the envelope. Errors wrap fs.ErrNotExist when the
// file is absent, *errors.KeyIOError for key problems and ErrCorrupt for
// anything that fails decryption or validation.
func (c *Cache) read() (*envelope, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	key, err := c.secureKey()
	if err != nil {
		return nil, err
	}

	var plaintext []byte
	err = key.Use(func(raw []byte) error {
		var openErr error
		plaintext, openErr = open(raw, data)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	env, err := decodeEnvelope(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return env, nil
}

func (c *Cache) write(data []byte, modTime time.Time) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return err
	}

	// Pin mtime to the clock used for freshness so the file-level and
	// entry-level checks agree.
	if err := os.Chtimes(c.path, modTime, modTime); err != nil {
		c.logger.Debug("Could not set cache file mtime: %v", err)
	}
	return nil
}

func (c *Cache) secureKey() (*secure.SecureBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	raw, err := c.keys.EnsureKey()
	if err != nil {
		if dserrors.IsKeyIO(err) {
			return nil, err
		}
		return nil, &dserrors.KeyIOError{Op: "read", Location: c.keys.Location(), Err: err}
	}

	buf, err := secure.NewSecureBuffer(raw)
	if err != nil {
		return nil, &dserrors.KeyIOError{Op: "read", Location: c.keys.Location(), Err: err}
	}
	c.key = buf
	return buf, nil
}
