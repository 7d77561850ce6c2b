// Package credentials serves credential requests from the encrypted cache and
// falls back to the configured source on a miss.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/internal/logging"
	"github.com/systmms/credcache/internal/metrics"
	"github.com/systmms/credcache/pkg/provider"
)

// Cache is the subset of *cache.Cache the manager needs.
type Cache interface {
	EnsureKey() error
	IsFresh() bool
	Load(k provider.Key) (provider.CredentialMap, error)
	Store(k provider.Key, creds provider.CredentialMap) error
}

// Manager answers GetCredentials calls. A shared Manager may be used from
// several goroutines; calls are serialised.
type Manager struct {
	cache        Cache
	source       provider.CredentialSource
	logger       logging.LeveledLogger
	metrics      *metrics.Recorder
	fetchTimeout time.Duration

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for fetch failures and cache problems.
func WithLogger(l logging.LeveledLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records source fetches in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithFetchTimeout bounds every single-field fetch. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.fetchTimeout = d
	}
}

// NewManager wires a cache to a source.
func NewManager(cache Cache, source provider.CredentialSource, opts ...Option) *Manager {
	m := &Manager{
		cache:  cache,
		source: source,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Source returns the source the manager falls back to.
func (m *Manager) Source() provider.CredentialSource {
	return m.source
}

// GetCredentials returns one value per requested field of service.
//
// A fresh cache entry for exactly this service and field set is returned
// without contacting the source. Otherwise every field is fetched; a failed
// field becomes nil and the rest continue. The result, partial or not, is
// written back to the cache. A cache write failure is logged and the map is
// still returned. The only error returned is *errors.KeyIOError.
func (m *Manager) GetCredentials(ctx context.Context, service string, fields ...string) (provider.CredentialMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := provider.NewKey(service, fields)

	if err := m.cache.EnsureKey(); err != nil {
		return nil, err
	}

	if m.cache.IsFresh() {
		cached, err := m.cache.Load(key)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			m.logger.Debug("Using cached credentials for %s", key)
			return cached, nil
		}
	} else {
		m.logger.Debug("Credential cache is missing or expired")
		m.metrics.CacheLookup(metrics.LookupMiss)
	}

	creds := m.fetchAll(ctx, service, uniqueInOrder(fields))

	if err := m.cache.Store(key, creds); err != nil {
		if dserrors.IsKeyIO(err) {
			return nil, err
		}
		m.logger.Warn("Could not update credential cache: %v", err)
	}

	return creds, nil
}

func (m *Manager) fetchAll(ctx context.Context, service string, fields []string) provider.CredentialMap {
	creds := make(provider.CredentialMap, len(fields))
	for _, field := range fields {
		value, err := m.fetchOne(ctx, service, field)
		if err != nil {
			m.metrics.SourceFetch(m.source.Name(), false)
			m.logger.Warn("%v", dserrors.UserError{
				Message:    fmt.Sprintf("Could not fetch %s/%s from %s", service, field, m.source.Name()),
				Details:    err.Error(),
				Suggestion: dserrors.ProviderSuggestion(m.source.Name(), err),
			})
			creds[field] = nil
			continue
		}
		m.metrics.SourceFetch(m.source.Name(), true)
		creds[field] = provider.Value(value)
	}
	return creds
}

func (m *Manager) fetchOne(ctx context.Context, service, field string) (string, error) {
	if m.fetchTimeout <= 0 {
		return m.source.Fetch(ctx, service, field)
	}

	fetchCtx, cancel := withFetchTimeout(ctx, m.fetchTimeout)
	defer cancel()

	value, err := m.source.Fetch(fetchCtx, service, field)
	if err != nil {
		return "", timeoutError(fetchCtx, err, m.source.Name(), m.fetchTimeout)
	}
	return value, nil
}

func uniqueInOrder(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
