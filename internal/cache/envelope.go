package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/systmms/credcache/pkg/provider"
)

const envelopeVersion = 1

// envelope is the plaintext stored (encrypted) in the cache file.
type envelope struct {
	Version int      `json:"version"`
	Entries []*entry `json:"entries"`
}

// entry is one cached CredentialMap with its own timestamp.
type entry struct {
	Service     string                 `json:"service"`
	Fields      []string               `json:"fields"`
	StoredAt    time.Time              `json:"stored_at"`
	Credentials provider.CredentialMap `json:"credentials"`
}

func newEnvelope() *envelope {
	return &envelope{Version: envelopeVersion, Entries: []*entry{}}
}

func (e *entry) key() provider.Key {
	return provider.Key{Service: e.Service, Fields: e.Fields}
}

func (env *envelope) find(k provider.Key) *entry {
	for _, e := range env.Entries {
		if e.key().Equal(k) {
			return e
		}
	}
	return nil
}

// put replaces the entry for its key or appends it.
func (env *envelope) put(n *entry) {
	for i, e := range env.Entries {
		if e.key().Equal(n.key()) {
			env.Entries[i] = n
			return
		}
	}
	env.Entries = append(env.Entries, n)
}

// prune drops entries for which keep returns false.
func (env *envelope) prune(keep func(*entry) bool) {
	kept := env.Entries[:0]
	for _, e := range env.Entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	env.Entries = kept
}

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "entries"],
  "properties": {
    "version": {"const": 1},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["service", "fields", "stored_at", "credentials"],
        "properties": {
          "service": {"type": "string"},
          "fields": {"type": "array", "items": {"type": "string"}},
          "stored_at": {"type": "string"},
          "credentials": {
            "type": "object",
            "additionalProperties": {"type": ["string", "null"]}
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	})
	return compiledSchema, schemaErr
}

// decodeEnvelope validates plaintext against the envelope schema and parses it.
func decodeEnvelope(plaintext []byte) (*envelope, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(plaintext))
	if err != nil {
		return nil, fmt.Errorf("validate envelope: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("envelope schema validation failed: %s", strings.Join(problems, "; "))
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	for _, e := range env.Entries {
		if e == nil {
			return nil, fmt.Errorf("parse envelope: null entry")
		}
		if e.Credentials == nil {
			e.Credentials = provider.CredentialMap{}
		}
	}
	return &env, nil
}

func encodeEnvelope(env *envelope) ([]byte, error) {
	return json.Marshal(env)
}
