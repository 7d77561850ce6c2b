// Package provider defines the credential source abstraction used by credcache.
//
// A credential source is anything that can return the value of a single named
// field of a named service item, e.g. the "client_secret" field of the
// "Spotify" item in a 1Password vault. The retrieval layer only depends on the
// CredentialSource interface, so a new backend is added by implementing it
// rather than by subclassing anything.
//
// # Architecture Overview
//
//	┌──────────────────────────────────────────────┐
//	│               CLI Commands                   │
//	│            (cmd/credcache/commands/)         │
//	└──────────────────────┬───────────────────────┘
//	                       │
//	┌──────────────────────▼───────────────────────┐
//	│      Retrieval orchestration                 │
//	│        (internal/credentials/)               │
//	└───────────┬──────────────────────┬───────────┘
//	            │                      │
//	┌───────────▼───────────┐ ┌────────▼───────────┐
//	│  CredentialSource     │ │  Encrypted cache   │
//	│  (pkg/provider/)      │ │  (internal/cache/) │
//	└───────────┬───────────┘ └────────────────────┘
//	            │
//	┌───────────▼───────────┐
//	│  1Password CLI source │
//	│ (internal/providers/) │
//	└───────────────────────┘
//
// # Values and failures
//
// A CredentialMap maps field names to values. A nil value means the field
// could not be fetched; it is not an error for the map as a whole. Sources
// report per-field failures as *FetchError so callers can log the CLI output
// and exit code without ever seeing a secret value in the message.
//
// # Cache keys
//
// Key identifies one retrieval: a service name plus the sorted, de-duplicated
// list of field names. Two requests for the same fields in a different order
// share a Key; a request for a different service or field set does not.
package provider
