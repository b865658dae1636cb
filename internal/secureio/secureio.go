// Package secureio holds sensitive byte buffers (derived keys, decrypted
// passphrases) with best-effort protection against ending up on disk via
// swap, and guaranteed zeroization when the buffer is no longer needed.
package secureio

import (
	"crypto/subtle"
	"log"
	"runtime"

	"golang.org/x/sys/unix"
)

// Logger receives best-effort warnings (e.g. mlock failing). Defaults to
// the stdlib logger; callers that want silence (tests) inject a no-op.
type Logger interface {
	Warnf(format string, args ...any)
}

type stdLogger struct{}

func (stdLogger) Warnf(format string, args ...any) { log.Printf(format, args...) }

// DefaultLogger writes warnings through the standard library logger.
var DefaultLogger Logger = stdLogger{}

// NopLogger discards all warnings.
type NopLogger struct{}

func (NopLogger) Warnf(string, ...any) {}

// SecureBytes wraps a byte buffer that must never be copied and must be
// zeroed before it is released. Locking is best-effort: a failure is
// logged, never fatal. Pages are locked on construction and never
// explicitly unlocked, because mlock/munlock do not nest across
// allocations that may share a page; only the zeroing on Close (or, as a
// backstop, on garbage collection) is relied upon for secrecy.
type SecureBytes struct {
	data   []byte
	logger Logger
	closed bool
}

// New wraps data, taking ownership of the slice. A best-effort mlock is
// attempted immediately.
func New(data []byte) *SecureBytes {
	return NewWithLogger(data, DefaultLogger)
}

// NewWithLogger is like New but reports mlock failures to logger instead
// of DefaultLogger.
func NewWithLogger(data []byte, logger Logger) *SecureBytes {
	if logger == nil {
		logger = NopLogger{}
	}
	s := &SecureBytes{data: data, logger: logger}
	if len(data) > 0 {
		if err := unix.Mlock(data); err != nil {
			logger.Warnf("secureio: unable to lock memory: %v", err)
		}
	}
	runtime.SetFinalizer(s, func(s *SecureBytes) { s.Close() })
	return s
}

// Bytes returns the underlying buffer. The caller must not retain it past
// the SecureBytes' lifetime, and must not reallocate or copy it elsewhere.
func (s *SecureBytes) Bytes() []byte {
	return s.data
}

// Equal performs a constant-time comparison against other, regardless of
// length (constant-time only in the byte-compare, as with crypto/subtle).
func (s *SecureBytes) Equal(other []byte) bool {
	if len(s.data) != len(other) {
		return false
	}
	return subtle.ConstantTimeCompare(s.data, other) == 1
}

// Close zeroes the buffer. It is safe to call multiple times.
func (s *SecureBytes) Close() {
	if s.closed {
		return
	}
	for i := range s.data {
		s.data[i] = 0
	}
	s.closed = true
	runtime.SetFinalizer(s, nil)
}
