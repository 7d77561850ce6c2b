package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/internal/keystore"
	"github.com/systmms/credcache/internal/metrics"
	"github.com/systmms/credcache/pkg/provider"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type brokenKeys struct{ err error }

func (b brokenKeys) EnsureKey() ([]byte, error) { return nil, b.err }
func (b brokenKeys) Location() string          { return "broken" }

type testEnv struct {
	dir     string
	path    string
	keys    *keystore.FileStore
	clock   *fakeClock
	metrics *metrics.Recorder
	cache   *Cache
}

func newTestEnv(t *testing.T, ttl time.Duration) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		path:    filepath.Join(dir, "credentials_cache.json"),
		keys:    keystore.NewFileStore(filepath.Join(dir, "keys", "encryption.key")),
		clock:   newFakeClock(),
		metrics: metrics.NewRecorder(),
	}
	env.cache = env.open(ttl)
	return env
}

// open returns a second Cache over the same files, as another process would.
func (e *testEnv) open(ttl time.Duration) *Cache {
	c := New(e.keys, Options{
		Path:    e.path,
		TTL:     ttl,
		Now:     e.clock.Now,
		Metrics: e.metrics,
	})
	return c
}

func spotify() (provider.Key, provider.CredentialMap) {
	return provider.NewKey("Spotify", []string{"client_id", "client_secret", "uri"}),
		provider.CredentialMap{
			"client_id":     provider.Value("abc"),
			"client_secret": provider.Value("xyz"),
			"uri":           provider.Value("http://localhost/cb"),
		}
}

func TestCache_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds provider.CredentialMap
	}{
		{
			name: "all fields present",
			creds: provider.CredentialMap{
				"client_id":     provider.Value("abc"),
				"client_secret": provider.Value("xyz"),
				"uri":           provider.Value("http://localhost/cb"),
			},
		},
		{
			name: "partial failure keeps null",
			creds: provider.CredentialMap{
				"client_id":     provider.Value("abc"),
				"client_secret": nil,
			},
		},
		{
			name:  "empty map",
			creds: provider.CredentialMap{},
		},
		{
			name: "unicode and empty values",
			creds: provider.CredentialMap{
				"note":  provider.Value("päßwörd 🔑\n\"quoted\""),
				"empty": provider.Value(""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, DefaultTTL)
			key := provider.NewKey("Spotify", tt.creds.Fields())

			require.NoError(t, env.cache.Store(key, tt.creds))
			require.True(t, env.cache.IsFresh())

			got, err := env.cache.Load(key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.creds.Equal(got), "got %v", got)

			// A fresh Cache instance with the same key file reads the same data.
			got, err = env.open(DefaultTTL).Load(key)
			require.NoError(t, err)
			assert.True(t, tt.creds.Equal(got))
		})
	}
}

func TestCache_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	key, creds := spotify()
	require.NoError(t, env.cache.Store(key, creds))

	got, err := env.cache.Load(key)
	require.NoError(t, err)
	*got["client_id"] = "mutated"

	again, err := env.cache.Load(key)
	require.NoError(t, err)
	v, _ := again.Get("client_id")
	assert.Equal(t, "abc", v)
}

func TestCache_FreshnessBoundary(t *testing.T) {
	t.Parallel()

	const ttl = time.Hour
	env := newTestEnv(t, ttl)
	key, creds := spotify()

	assert.False(t, env.cache.IsFresh(), "absent cache file is not fresh")

	require.NoError(t, env.cache.Store(key, creds))
	assert.True(t, env.cache.IsFresh(), "fresh right after store")

	env.clock.Advance(ttl)
	assert.True(t, env.cache.IsFresh(), "still fresh exactly at TTL")
	got, err := env.cache.Load(key)
	require.NoError(t, err)
	assert.NotNil(t, got)

	env.clock.Advance(time.Nanosecond)
	assert.False(t, env.cache.IsFresh(), "stale once TTL is exceeded")
	got, err = env.cache.Load(key)
	require.NoError(t, err)
	assert.Nil(t, got, "stale entries are not served")

	assert.Equal(t, 1.0, counterValue(t, env.metrics, "credcache_cache_lookups_total", metrics.LookupHit))
	assert.Equal(t, 1.0, counterValue(t, env.metrics, "credcache_cache_lookups_total", metrics.LookupStale))
}

func TestCache_ZeroTTLIsNeverFresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	key, creds := spotify()

	require.NoError(t, env.cache.Store(key, creds))
	_, err := os.Stat(env.path)
	require.NoError(t, err, "stores still write the file")

	assert.False(t, env.cache.IsFresh())
	got, err := env.cache.Load(key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_StaleFileIsOverwrittenNotDeleted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, time.Minute)
	key, creds := spotify()

	require.NoError(t, env.cache.Store(key, creds))
	env.clock.Advance(2 * time.Minute)
	require.False(t, env.cache.IsFresh())
	_, err := os.Stat(env.path)
	require.NoError(t, err, "stale file stays on disk")

	updated := creds.Clone()
	updated["client_secret"] = provider.Value("rotated")
	require.NoError(t, env.cache.Store(key, updated))

	assert.True(t, env.cache.IsFresh())
	got, err := env.cache.Load(key)
	require.NoError(t, err)
	assert.True(t, updated.Equal(got))
}

func TestCache_CorruptionResilience(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	key, creds := spotify()
	require.NoError(t, env.cache.Store(key, creds))

	original, err := os.ReadFile(env.path)
	require.NoError(t, err)

	for i := range original {
		tampered := append([]byte(nil), original...)
		tampered[i] ^= 0xFF
		require.NoError(t, os.WriteFile(env.path, tampered, 0o600))

		got, err := env.cache.Load(key)
		require.NoError(t, err, "byte %d", i)
		require.Nil(t, got, "byte %d: tampered cache must be a miss", i)
	}

	assert.Equal(t, float64(len(original)), counterValue(t, env.metrics, "credcache_cache_lookups_total", metrics.LookupCorrupt))
}

func TestCache_InvalidFileContents(t *testing.T) {
	t.Parallel()

	validJSON := func(t *testing.T, env *testEnv, plaintext string) []byte {
		t.Helper()
		key, err := env.keys.EnsureKey()
		require.NoError(t, err)
		sealed, err := seal(key, []byte(plaintext))
		require.NoError(t, err)
		return sealed
	}

	tests := []struct {
		name     string
		contents func(t *testing.T, env *testEnv) []byte
	}{
		{
			name:     "empty file",
			contents: func(*testing.T, *testEnv) []byte { return []byte{} },
		},
		{
			name:     "plaintext json",
			contents: func(*testing.T, *testEnv) []byte { return []byte(`{"version":1,"entries":[]}`) },
		},
		{
			name: "encrypted with another key",
			contents: func(t *testing.T, _ *testEnv) []byte {
				sealed, err := seal(testKey(9), []byte(`{"version":1,"entries":[]}`))
				require.NoError(t, err)
				return sealed
			},
		},
		{
			name: "encrypted garbage",
			contents: func(t *testing.T, env *testEnv) []byte {
				return validJSON(t, env, "not json at all")
			},
		},
		{
			name: "unknown version",
			contents: func(t *testing.T, env *testEnv) []byte {
				return validJSON(t, env, `{"version":2,"entries":[]}`)
			},
		},
		{
			name: "non-string credential value",
			contents: func(t *testing.T, env *testEnv) []byte {
				return validJSON(t, env, `{"version":1,"entries":[{"service":"Spotify","fields":["client_id"],"stored_at":"2026-03-01T12:00:00Z","credentials":{"client_id":42}}]}`)
			},
		},
		{
			name: "bad timestamp",
			contents: func(t *testing.T, env *testEnv) []byte {
				return validJSON(t, env, `{"version":1,"entries":[{"service":"Spotify","fields":["client_id"],"stored_at":"yesterday","credentials":{}}]}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, DefaultTTL)
			require.NoError(t, os.WriteFile(env.path, tt.contents(t, env), 0o600))

			got, err := env.cache.Load(provider.NewKey("Spotify", []string{"client_id"}))
			require.NoError(t, err)
			assert.Nil(t, got)

			_, err = env.cache.Entries()
			assert.ErrorIs(t, err, ErrCorrupt)

			// The next store replaces the corrupt file.
			key, creds := spotify()
			require.NoError(t, env.cache.Store(key, creds))
			got, err = env.cache.Load(key)
			require.NoError(t, err)
			assert.True(t, creds.Equal(got))
		})
	}
}

func TestCache_EntriesAreKeyedByServiceAndFields(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	spotifyKey, spotifyCreds := spotify()
	githubKey := provider.NewKey("GitHub", []string{"token"})
	githubCreds := provider.CredentialMap{"token": provider.Value("ghp_123")}

	require.NoError(t, env.cache.Store(spotifyKey, spotifyCreds))
	require.NoError(t, env.cache.Store(githubKey, githubCreds))

	got, err := env.cache.Load(spotifyKey)
	require.NoError(t, err)
	assert.True(t, spotifyCreds.Equal(got), "second service must not clobber the first")

	got, err = env.cache.Load(githubKey)
	require.NoError(t, err)
	assert.True(t, githubCreds.Equal(got))

	// Same fields in another order hit the same entry.
	got, err = env.cache.Load(provider.NewKey("Spotify", []string{"uri", "client_secret", "client_id"}))
	require.NoError(t, err)
	assert.NotNil(t, got)

	// A different field set is a miss.
	got, err = env.cache.Load(provider.NewKey("Spotify", []string{"client_id"}))
	require.NoError(t, err)
	assert.Nil(t, got)

	entries, err := env.cache.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Spotify", entries[0].Service)
	assert.Equal(t, "GitHub", entries[1].Service)
}

func TestCache_StoreReplacesAndPrunes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, time.Hour)
	spotifyKey, spotifyCreds := spotify()
	githubKey := provider.NewKey("GitHub", []string{"token"})

	require.NoError(t, env.cache.Store(spotifyKey, spotifyCreds))
	require.NoError(t, env.cache.Store(spotifyKey, spotifyCreds))

	entries, err := env.cache.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1, "same key replaces its entry")

	env.clock.Advance(2 * time.Hour)
	require.NoError(t, env.cache.Store(githubKey, provider.CredentialMap{"token": nil}))

	entries, err = env.cache.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1, "expired entries are dropped on store")
	assert.Equal(t, "GitHub", entries[0].Service)
	assert.Equal(t, []string{"token"}, entries[0].Missing)
	assert.True(t, entries[0].Fresh)
	assert.Equal(t, env.clock.Now(), entries[0].StoredAt)
	assert.Equal(t, env.clock.Now().Add(time.Hour), entries[0].ExpiresAt)
}

func TestCache_NoPlaintextOnDisk(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	key, creds := spotify()
	require.NoError(t, env.cache.Store(key, creds))

	data, err := os.ReadFile(env.path)
	require.NoError(t, err)
	for _, needle := range []string{"Spotify", "client_id", "client_secret", "xyz", "localhost", "stored_at"} {
		assert.NotContains(t, string(data), needle)
	}

	first := data
	require.NoError(t, env.cache.Store(key, creds))
	second, err := os.ReadFile(env.path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each store uses a fresh nonce")
}

func TestCache_StoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	key, creds := spotify()
	for i := 0; i < 3; i++ {
		require.NoError(t, env.cache.Store(key, creds))
	}

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"credentials_cache.json", "keys"}, names)
}

func TestCache_StoreCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	c := New(env.keys, Options{
		Path: filepath.Join(env.dir, "nested", "cache", "creds.bin"),
		TTL:  DefaultTTL,
		Now:  env.clock.Now,
	})

	key, creds := spotify()
	require.NoError(t, c.Store(key, creds))
	assert.True(t, c.IsFresh())
}

func TestCache_WriteFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	blocker := filepath.Join(env.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	c := New(env.keys, Options{
		Path:    filepath.Join(blocker, "credentials_cache.json"),
		TTL:     DefaultTTL,
		Now:     env.clock.Now,
		Metrics: env.metrics,
	})

	key, creds := spotify()
	err := c.Store(key, creds)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, c.Path(), writeErr.Path)
	assert.False(t, dserrors.IsKeyIO(err))
	assert.Equal(t, 1.0, counterValue(t, env.metrics, "credcache_cache_writes_total", "error"))
}

func TestCache_KeyFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	key, creds := spotify()
	require.NoError(t, env.cache.Store(key, creds))

	broken := New(brokenKeys{err: &dserrors.KeyIOError{Op: "read", Location: "broken", Err: fs.ErrPermission}}, Options{
		Path: env.path,
		TTL:  DefaultTTL,
		Now:  env.clock.Now,
	})

	assert.True(t, broken.IsFresh(), "freshness does not need the key")

	_, err := broken.Load(key)
	assert.True(t, dserrors.IsKeyIO(err))
	assert.ErrorIs(t, err, fs.ErrPermission)

	err = broken.Store(key, creds)
	assert.True(t, dserrors.IsKeyIO(err))

	err = broken.EnsureKey()
	assert.True(t, dserrors.IsKeyIO(err))

	plain := New(brokenKeys{err: errors.New("no key for you")}, Options{Path: env.path, TTL: DefaultTTL})
	err = plain.EnsureKey()
	assert.True(t, dserrors.IsKeyIO(err), "non-typed key errors are wrapped")
}

func TestCache_CloseWipesAndReloadsKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	key, creds := spotify()
	require.NoError(t, env.cache.Store(key, creds))

	env.cache.Close()
	env.cache.Close()

	got, err := env.cache.Load(key)
	require.NoError(t, err)
	assert.True(t, creds.Equal(got))
}

func TestCache_ConcurrentWritersLeaveReadableFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultTTL)
	require.NoError(t, env.cache.EnsureKey())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := env.open(DefaultTTL)
			key := provider.NewKey(fmt.Sprintf("service-%d", i), []string{"token"})
			assert.NoError(t, c.Store(key, provider.CredentialMap{"token": provider.Value("t")}))
		}(i)
	}
	wg.Wait()

	entries, err := env.cache.Entries()
	require.NoError(t, err, "file must always be complete")
	assert.NotEmpty(t, entries)
}

func TestCache_Defaults(t *testing.T) {
	t.Parallel()

	c := New(keystore.NewFileStore("unused"), Options{})
	assert.Equal(t, DefaultPath, c.Path())
	assert.Equal(t, time.Duration(0), c.TTL())
	assert.Equal(t, "unused", c.KeyLocation())
}

// counterValue returns the value of the counter in family name whose single
// label equals label, or 0.
func counterValue(t *testing.T, r *metrics.Recorder, name, label string) float64 {
	t.Helper()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
