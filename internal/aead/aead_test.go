package aead

import (
	"bytes"
	"testing"
)

func testCipherRoundTrip(t *testing.T, id byte) {
	c, ok := ByID(id)
	if !ok {
		t.Fatalf("cipher %d not registered", id)
	}
	key := make([]byte, c.KeySize())
	for i := range key {
		key[i] = byte(i)
	}
	nonce, err := NewNonce(c)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	plaintext := []byte("super secret password")
	ciphertext := c.Seal(key, nonce, plaintext)

	got, err := c.Open(key, nonce, ciphertext)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestXSalsa20Poly1305RoundTrip(t *testing.T) {
	testCipherRoundTrip(t, XSalsa20Poly1305)
}

func TestXChaCha20Poly1305RoundTrip(t *testing.T) {
	testCipherRoundTrip(t, XChaCha20Poly1305)
}

func TestOpenFailsOnWrongKey(t *testing.T) {
	c, _ := ByID(XSalsa20Poly1305)
	key1 := bytes.Repeat([]byte{1}, c.KeySize())
	key2 := bytes.Repeat([]byte{2}, c.KeySize())
	nonce, _ := NewNonce(c)
	ciphertext := c.Seal(key1, nonce, []byte("hello"))
	if _, err := c.Open(key2, nonce, ciphertext); err == nil {
		t.Fatalf("expected auth failure with wrong key")
	}
}

func TestNoncesAreFresh(t *testing.T) {
	c, _ := ByID(XSalsa20Poly1305)
	a, err := NewNonce(c)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	b, err := NewNonce(c)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two calls to NewNonce produced the same nonce")
	}
}

func TestByIDUnknown(t *testing.T) {
	if _, ok := ByID(255); ok {
		t.Fatalf("expected id 255 to be unregistered")
	}
}
