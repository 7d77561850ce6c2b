package commands

import (
	"github.com/systmms/credcache/internal/cache"
	"github.com/systmms/credcache/internal/config"
	"github.com/systmms/credcache/internal/credentials"
	"github.com/systmms/credcache/internal/keystore"
	"github.com/systmms/credcache/internal/providers"
	"github.com/systmms/credcache/pkg/exec"
	"github.com/systmms/credcache/pkg/provider"
)

// newExecutor creates the executor used by CLI-backed sources. Tests swap it.
var newExecutor = exec.DefaultExecutor

// openCache builds the encrypted cache described by cfg.
func openCache(cfg *config.Config) (*cache.Cache, error) {
	keys, err := keystore.New(cfg.Settings.KeyBackend, cfg.Settings.KeyFile)
	if err != nil {
		return nil, err
	}

	return cache.New(keys, cache.Options{
		Path:    cfg.Settings.CacheFile,
		TTL:     cfg.Settings.TTL(),
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	}), nil
}

// newSource builds the configured credential source.
func newSource(cfg *config.Config) (provider.CredentialSource, error) {
	return providers.NewRegistry().CreateSource(cfg.Settings.Source, providers.SourceConfig{
		Vault:    cfg.Settings.Vault,
		Account:  cfg.Settings.Account,
		UseCache: cfg.Settings.OPCache,
		Literal:  cfg.Settings.Literal,
		Executor: newExecutor(),
	})
}

// newManager wires cache and source. The caller must Close the cache.
func newManager(cfg *config.Config) (*credentials.Manager, *cache.Cache, error) {
	c, err := openCache(cfg)
	if err != nil {
		return nil, nil, err
	}

	src, err := newSource(cfg)
	if err != nil {
		c.Close()
		return nil, nil, err
	}

	mgr := credentials.NewManager(c, src,
		credentials.WithLogger(cfg.Logger),
		credentials.WithMetrics(cfg.Metrics),
		credentials.WithFetchTimeout(cfg.Settings.FetchTimeout()),
	)
	return mgr, c, nil
}
