package secureio

import (
	"bytes"
	"testing"
)

func TestEqualMatchesAndMismatches(t *testing.T) {
	s := NewWithLogger([]byte("sensitive-key-material"), NopLogger{})
	defer s.Close()

	if !s.Equal([]byte("sensitive-key-material")) {
		t.Fatalf("expected Equal to match identical bytes")
	}
	if s.Equal([]byte("different-key-material")) {
		t.Fatalf("expected Equal to reject different bytes")
	}
	if s.Equal([]byte("short")) {
		t.Fatalf("expected Equal to reject different-length bytes")
	}
}

func TestCloseZeroesBuffer(t *testing.T) {
	data := []byte("top secret")
	s := NewWithLogger(data, NopLogger{})
	s.Close()

	if !bytes.Equal(s.Bytes(), make([]byte, len(data))) {
		t.Fatalf("expected buffer to be zeroed after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewWithLogger([]byte("abc"), NopLogger{})
	s.Close()
	s.Close() // must not panic
}
