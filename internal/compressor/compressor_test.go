package compressor

import (
	"bytes"
	"strings"
	"testing"
)

func TestDeflateRoundTrip(t *testing.T) {
	c, ok := ByID(Deflate)
	if !ok {
		t.Fatalf("deflate not registered")
	}
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 50))
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("expected compression to shrink repetitive input")
	}
	out, err := c.Decompress(compressed, len(data))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDeflatePlainSizeMismatch(t *testing.T) {
	c, _ := ByID(Deflate)
	compressed, _ := c.Compress([]byte("hello world"))
	if _, err := c.Decompress(compressed, 999); err == nil {
		t.Fatalf("expected mismatch error for wrong plain size hint")
	}
}

func TestNonePassthrough(t *testing.T) {
	c, ok := ByID(None)
	if !ok {
		t.Fatalf("none not registered")
	}
	data := []byte("unchanged")
	out, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("none compressor altered data")
	}
	back, err := c.Decompress(out, len(data))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("none decompressor altered data")
	}
}

func TestByIDUnknown(t *testing.T) {
	if _, ok := ByID(200); ok {
		t.Fatalf("expected id 200 to be unregistered")
	}
}
