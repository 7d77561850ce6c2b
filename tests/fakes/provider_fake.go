package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/credcache/pkg/provider"
)

// FakeCall records one Fetch invocation.
type FakeCall struct {
	Service string
	Field   string
}

// FakeSource is an in-memory provider.CredentialSource.
//
// Values and errors are keyed by service and field. Unknown fields return
// provider.NotFoundError. Every Fetch is recorded, including failures.
type FakeSource struct {
	name string

	values map[string]string
	failOn map[string]error
	delay  time.Duration

	calls []FakeCall
	mu    sync.RWMutex
}

// NewFakeSource creates an empty FakeSource reporting the given name.
func NewFakeSource(name string) *FakeSource {
	return &FakeSource{
		name:   name,
		values: make(map[string]string),
		failOn: make(map[string]error),
	}
}

func fakeKey(service, field string) string {
	return service + "/" + field
}

// WithValue makes Fetch(service, field) return value.
func (f *FakeSource) WithValue(service, field, value string) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values[fakeKey(service, field)] = value
	return f
}

// WithError makes Fetch(service, field) fail with err.
func (f *FakeSource) WithError(service, field string, err error) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOn[fakeKey(service, field)] = err
	return f
}

// WithDelay makes every Fetch wait d or until the context is done.
func (f *FakeSource) WithDelay(d time.Duration) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.delay = d
	return f
}

// Name returns the configured source name.
func (f *FakeSource) Name() string {
	return f.name
}

// Fetch returns the configured value or error for service/field.
func (f *FakeSource) Fetch(ctx context.Context, service, field string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Service: service, Field: field})
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	k := fakeKey(service, field)
	if err, ok := f.failOn[k]; ok {
		return "", err
	}
	v, ok := f.values[k]
	if !ok {
		return "", provider.NotFoundError{Source: f.name, Service: service, Field: field}
	}
	return v, nil
}

// CallCount returns how many times Fetch was called.
func (f *FakeSource) CallCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.calls)
}

// Calls returns a copy of the recorded Fetch calls in order.
func (f *FakeSource) Calls() []FakeCall {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]FakeCall(nil), f.calls...)
}

// Reset forgets recorded calls but keeps configured values.
func (f *FakeSource) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

var (
	_ provider.CredentialSource = (*FakeSource)(nil)
	_ provider.Validator        = (*FakeSource)(nil)
)
