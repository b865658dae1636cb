//go:build !unix

package filelock

import (
	"os"
)

// New returns a Locker that falls back to exclusively creating a sibling
// ".lock" file, for platforms without advisory file locks.
func New(f *os.File) Locker {
	return &siblingLocker{path: f.Name() + ".lock"}
}

type siblingLocker struct {
	path string
	file *os.File
}

func (l *siblingLocker) TryLock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return ErrBusy
		}
		return err
	}
	l.file = f
	return nil
}

func (l *siblingLocker) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	f.Close()
	return os.Remove(l.path)
}
