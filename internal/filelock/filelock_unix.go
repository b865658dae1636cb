//go:build unix

package filelock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// New returns a Locker backed by flock(2) on f's file descriptor.
func New(f *os.File) Locker {
	return &unixLocker{f: f}
}

type unixLocker struct {
	f      *os.File
	locked bool
}

func (l *unixLocker) TryLock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if isWouldBlock(err) {
			return ErrBusy
		}
		return fmt.Errorf("filelock: flock: %w", err)
	}
	l.locked = true
	return nil
}

func (l *unixLocker) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

func isWouldBlock(err error) bool {
	return err == unix.EWOULDBLOCK || err == unix.EAGAIN
}
