package cache

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// additionalData binds ciphertexts to this file format.
var additionalData = []byte("credcache/v1")

var errShortCiphertext = errors.New("ciphertext shorter than nonce and tag")

// seal encrypts plaintext with XChaCha20-Poly1305 under a fresh random
// 24-byte nonce. The output is nonce || ciphertext || tag.
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// open reverses seal. Any modification of the data fails authentication.
func open(key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, errShortCiphertext
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, additionalData)
}
