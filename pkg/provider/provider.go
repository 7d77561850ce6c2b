package provider

import (
	"context"
	"sort"
	"strings"
)

// CredentialSource fetches individual credential fields from a backend.
//
// Implementations must be safe for sequential reuse and should honour context
// cancellation. Fetch must never log the value it returns.
type CredentialSource interface {
	// Name returns the source's identifier, e.g. "onepassword".
	Name() string

	// Fetch returns the value of field for the given service item.
	// A failure is reported as an error; callers decide whether it is fatal.
	Fetch(ctx context.Context, service, field string) (string, error)
}

// Validator is implemented by sources that can check their own readiness
// (binary installed, session signed in) before being used.
type Validator interface {
	Validate(ctx context.Context) error
}

// CredentialMap maps a field name to its value. A nil value marks a field
// whose fetch failed.
type CredentialMap map[string]*string

// Value returns a pointer to a copy of s, for building CredentialMap literals.
func Value(s string) *string {
	return &s
}

// Get returns the value of field and whether it is present and non-null.
func (m CredentialMap) Get(field string) (string, bool) {
	v, ok := m[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Missing returns the sorted names of fields whose value is null.
func (m CredentialMap) Missing() []string {
	var missing []string
	for field, v := range m {
		if v == nil {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// Fields returns the sorted field names in the map.
func (m CredentialMap) Fields() []string {
	fields := make([]string, 0, len(m))
	for field := range m {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Clone returns a deep copy of the map so callers cannot mutate cached values.
func (m CredentialMap) Clone() CredentialMap {
	if m == nil {
		return nil
	}
	out := make(CredentialMap, len(m))
	for field, v := range m {
		if v == nil {
			out[field] = nil
			continue
		}
		out[field] = Value(*v)
	}
	return out
}

// Equal reports whether both maps hold the same fields with the same values,
// treating null values as equal only to null.
func (m CredentialMap) Equal(other CredentialMap) bool {
	if len(m) != len(other) {
		return false
	}
	for field, v := range m {
		o, ok := other[field]
		if !ok {
			return false
		}
		if (v == nil) != (o == nil) {
			return false
		}
		if v != nil && *v != *o {
			return false
		}
	}
	return true
}

// Key identifies one retrieval in the cache: a service and its field set.
type Key struct {
	Service string   `json:"service"`
	Fields  []string `json:"fields"`
}

// NewKey builds a Key with the field list sorted and de-duplicated.
func NewKey(service string, fields []string) Key {
	seen := make(map[string]struct{}, len(fields))
	unique := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, f)
	}
	sort.Strings(unique)
	return Key{Service: service, Fields: unique}
}

// Equal reports whether two keys name the same service and field set.
// Both keys are expected to come from NewKey.
func (k Key) Equal(other Key) bool {
	if k.Service != other.Service || len(k.Fields) != len(other.Fields) {
		return false
	}
	for i := range k.Fields {
		if k.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return k.Service + "[" + strings.Join(k.Fields, ",") + "]"
}
