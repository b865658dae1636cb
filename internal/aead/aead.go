// Package aead provides the authenticated symmetric ciphers used by the
// envelope: a closed registry selected by a one-byte cipher id, each
// producing an on-disk form of nonce‖ciphertext‖tag.
package aead

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// XSalsa20Poly1305 is the default cipher (NaCl secretbox).
	XSalsa20Poly1305 byte = 1
	// XChaCha20Poly1305 is a registered alternate cipher.
	XChaCha20Poly1305 byte = 2
)

// Cipher is a symmetric AEAD construction identified by a one-byte id.
type Cipher interface {
	ID() byte
	KeySize() int
	NonceSize() int
	// Seal encrypts plaintext under key with a caller-supplied nonce and
	// returns ciphertext‖tag (the nonce itself is not included).
	Seal(key, nonce, plaintext []byte) []byte
	// Open authenticates and decrypts ciphertext‖tag produced by Seal.
	Open(key, nonce, ciphertext []byte) ([]byte, error)
}

// ByID returns the registered cipher for id, or false if unknown.
func ByID(id byte) (Cipher, bool) {
	switch id {
	case XSalsa20Poly1305:
		return xsalsa20poly1305{}, true
	case XChaCha20Poly1305:
		return xchacha20poly1305{}, true
	default:
		return nil, false
	}
}

// NewNonce returns NonceSize() fresh random bytes from the OS CSPRNG.
// A fresh nonce MUST be generated for every call to Seal under the same key.
func NewNonce(c Cipher) ([]byte, error) {
	nonce := make([]byte, c.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("aead: generate nonce: %w", err)
	}
	return nonce, nil
}

type xsalsa20poly1305 struct{}

func (xsalsa20poly1305) ID() byte       { return XSalsa20Poly1305 }
func (xsalsa20poly1305) KeySize() int   { return 32 }
func (xsalsa20poly1305) NonceSize() int { return 24 }

func (c xsalsa20poly1305) Seal(key, nonce, plaintext []byte) []byte {
	var k [32]byte
	var n [24]byte
	copy(k[:], key)
	copy(n[:], nonce)
	return secretbox.Seal(nil, plaintext, &n, &k)
}

func (c xsalsa20poly1305) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	var k [32]byte
	var n [24]byte
	copy(k[:], key)
	copy(n[:], nonce)
	plaintext, ok := secretbox.Open(nil, ciphertext, &n, &k)
	if !ok {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

type xchacha20poly1305 struct{}

func (xchacha20poly1305) ID() byte       { return XChaCha20Poly1305 }
func (xchacha20poly1305) KeySize() int   { return chacha20poly1305.KeySize }
func (xchacha20poly1305) NonceSize() int { return chacha20poly1305.NonceSizeX }

func (c xchacha20poly1305) Seal(key, nonce, plaintext []byte) []byte {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		panic(fmt.Sprintf("aead: xchacha20poly1305: %v", err))
	}
	return aead.Seal(nil, nonce, plaintext, nil)
}

func (c xchacha20poly1305) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead: xchacha20poly1305: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// ErrAuthFailure is returned when a ciphertext fails authentication,
// meaning either a wrong key (wrong passphrase) or tampered data.
var ErrAuthFailure = fmt.Errorf("aead: authentication failure")
