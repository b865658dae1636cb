// Package compressor implements the envelope's optional payload
// compression, selected by a one-byte compression id.
package compressor

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

const (
	// None passes the payload through unmodified.
	None byte = 0
	// Deflate compresses with raw DEFLATE (no zlib/gzip wrapper).
	Deflate byte = 1
)

// Compressor compresses/decompresses the plaintext payload before it is
// handed to the AEAD cipher.
type Compressor interface {
	ID() byte
	Compress(data []byte) ([]byte, error)
	// Decompress expands data. plainSizeHint, when >= 0, is the expected
	// decompressed length; a mismatch is a corrupt-format error.
	Decompress(data []byte, plainSizeHint int) ([]byte, error)
}

// ByID returns the registered compressor for id, or false if unknown.
func ByID(id byte) (Compressor, bool) {
	switch id {
	case None:
		return noneCompressor{}, true
	case Deflate:
		return deflateCompressor{}, true
	default:
		return nil, false
	}
}

type noneCompressor struct{}

func (noneCompressor) ID() byte                             { return None }
func (noneCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (noneCompressor) Decompress(data []byte, plainSizeHint int) ([]byte, error) {
	if plainSizeHint >= 0 && len(data) != plainSizeHint {
		return nil, fmt.Errorf("compressor: payload size %d does not match expected %d",
			len(data), plainSizeHint)
	}
	return data, nil
}

type deflateCompressor struct{}

func (deflateCompressor) ID() byte { return Deflate }

func (deflateCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("compressor: deflate: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressor: deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressor: deflate: %w", err)
	}
	return buf.Bytes(), nil
}

func (deflateCompressor) Decompress(data []byte, plainSizeHint int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compressor: inflate: %w", err)
	}
	if plainSizeHint >= 0 && len(out) != plainSizeHint {
		return nil, fmt.Errorf("compressor: decompressed size %d does not match expected %d",
			len(out), plainSizeHint)
	}
	return out, nil
}
