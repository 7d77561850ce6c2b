// Package fakes provides test doubles for the credcache source interfaces.
//
// Fakes are manually implemented (not generated) so tests have precise
// control over which fields succeed, which fail and how often the source
// was asked.
//
// Usage:
//
//	src := fakes.NewFakeSource("onepassword").
//	    WithValue("Spotify", "client_id", "abc").
//	    WithError("Spotify", "client_secret", errors.New("not signed in"))
//	mgr := credentials.NewManager(store, src)
package fakes
