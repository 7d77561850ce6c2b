package providers

import (
	"sort"
	"strings"

	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/pkg/exec"
	"github.com/systmms/credcache/pkg/provider"
)

// Source types understood by the registry.
const (
	TypeOnePassword = "onepassword"
	TypeLiteral     = "literal"
)

// SourceConfig carries every setting a built-in source may need.
type SourceConfig struct {
	Vault    string
	Account  string
	UseCache bool
	Literal  map[string]map[string]string

	// Executor runs external CLIs. Nil means the real executor.
	Executor exec.CommandExecutor
}

// SourceFactory creates a source instance from configuration
type SourceFactory func(cfg SourceConfig) (provider.CredentialSource, error)

// Registry manages source creation by type name.
type Registry struct {
	factories map[string]SourceFactory
}

// NewRegistry creates a registry with the built-in sources.
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]SourceFactory),
	}

	registry.RegisterFactory(TypeOnePassword, NewOnePasswordSourceFactory)
	registry.RegisterFactory(TypeLiteral, NewLiteralSourceFactory)

	return registry
}

// RegisterFactory registers a source factory for a given type
func (r *Registry) RegisterFactory(sourceType string, factory SourceFactory) {
	r.factories[sourceType] = factory
}

// CreateSource builds the source registered under sourceType.
func (r *Registry) CreateSource(sourceType string, cfg SourceConfig) (provider.CredentialSource, error) {
	factory, exists := r.factories[sourceType]
	if !exists {
		return nil, dserrors.ConfigError{
			Field:      "source",
			Value:      sourceType,
			Message:    "unknown credential source",
			Suggestion: "Supported sources: " + strings.Join(r.SupportedTypes(), ", "),
		}
	}

	return factory(cfg)
}

// SupportedTypes returns the registered source types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for sourceType := range r.factories {
		types = append(types, sourceType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a source type is registered
func (r *Registry) IsSupported(sourceType string) bool {
	_, exists := r.factories[sourceType]
	return exists
}

// NewOnePasswordSourceFactory builds an OnePasswordSource.
func NewOnePasswordSourceFactory(cfg SourceConfig) (provider.CredentialSource, error) {
	if cfg.Vault == "" {
		return nil, dserrors.ConfigError{
			Field:      "vault",
			Message:    "1Password vault name is required",
			Suggestion: "Set 'vault' in credcache.yaml or CREDCACHE_VAULT",
		}
	}

	executor := cfg.Executor
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	return NewOnePasswordSourceWithExecutor(cfg.Vault, cfg.Account, cfg.UseCache, executor), nil
}

// NewLiteralSourceFactory builds a LiteralSource.
func NewLiteralSourceFactory(cfg SourceConfig) (provider.CredentialSource, error) {
	return NewLiteralSource(TypeLiteral, cfg.Literal), nil
}
