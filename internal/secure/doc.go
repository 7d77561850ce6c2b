// Package secure keeps the cache encryption key out of ordinary Go memory.
//
// The key is loaded once per process and moved into a memguard enclave,
// which keeps it encrypted while idle and mlock'ed while open:
//
//	buf, err := secure.NewSecureBuffer(key) // key is wiped
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	err = buf.Use(func(k []byte) error {
//	    return seal(k, plaintext)
//	})
//
// # Platform Behavior
//
// Memory locking depends on RLIMIT_MEMLOCK on Linux and VirtualLock on
// Windows. When locking is unavailable memguard degrades to ordinary
// allocations; the enclave encryption still applies.
//
// It does NOT protect against an attacker with access to the running
// process or to the key file on disk.
package secure
