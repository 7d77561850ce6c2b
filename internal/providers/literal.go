package providers

import (
	"context"

	"github.com/systmms/credcache/pkg/provider"
)

// LiteralSource serves fixed values from configuration. It never leaves the
// process, which makes it useful offline and in demos.
type LiteralSource struct {
	name   string
	values map[string]map[string]string
}

// NewLiteralSource creates a literal source over service → field → value.
func NewLiteralSource(name string, values map[string]map[string]string) *LiteralSource {
	copied := make(map[string]map[string]string, len(values))
	for service, fields := range values {
		inner := make(map[string]string, len(fields))
		for field, v := range fields {
			inner[field] = v
		}
		copied[service] = inner
	}

	return &LiteralSource{
		name:   name,
		values: copied,
	}
}

// Name returns the source's name
func (l *LiteralSource) Name() string {
	return l.name
}

// Fetch returns the configured value or provider.NotFoundError.
func (l *LiteralSource) Fetch(ctx context.Context, service, field string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, ok := l.values[service][field]
	if !ok {
		return "", provider.NotFoundError{
			Source:  l.name,
			Service: service,
			Field:   field,
		}
	}
	return value, nil
}

// Validate always succeeds.
func (l *LiteralSource) Validate(context.Context) error {
	return nil
}

// SetValue sets one literal value (useful for testing)
func (l *LiteralSource) SetValue(service, field, value string) {
	if l.values[service] == nil {
		l.values[service] = make(map[string]string)
	}
	l.values[service][field] = value
}
