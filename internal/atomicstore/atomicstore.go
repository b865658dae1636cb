// Package atomicstore implements the tmp-file-plus-rename write
// pattern every vault commit uses: open (or create) a sibling ".tmp"
// file, take an advisory exclusive lock on it, write the new content,
// then rename the tmp file over the target. Renaming before closing
// (and so before releasing the lock) avoids a window where another
// process could see a half-written target file; on platforms that
// require the source closed before rename, close-then-rename is used
// instead.
package atomicstore

import (
	"io"
	"os"
	"runtime"

	"github.com/keyvault-go/keybox/internal/filelock"
	"github.com/keyvault-go/keybox/internal/verr"
)

// Store represents one open tmp-file write lease for path.
type Store struct {
	path     string
	tmpPath  string
	tmp      *os.File
	locker   filelock.Locker
	readOnly bool
}

// OpenForWrite creates (or truncates) path+".tmp" and attempts to lock
// it. If the lock is held by another process, a Store in read-only mode
// (ReadOnly() == true, Writer() unusable) is returned together with
// verr.ErrLockBusy, so the caller can downgrade to read-only access.
func OpenForWrite(path string) (*Store, error) {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	locker := filelock.New(f)
	if err := locker.TryLock(); err != nil {
		f.Close()
		if err == filelock.ErrBusy {
			return &Store{path: path, tmpPath: tmpPath, readOnly: true}, verr.ErrLockBusy
		}
		return nil, err
	}
	return &Store{path: path, tmpPath: tmpPath, tmp: f, locker: locker}, nil
}

// ReadOnly reports whether the write lock could not be acquired.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Writer returns the tmp file for writing. Only valid when !ReadOnly().
func (s *Store) Writer() io.Writer {
	return s.tmp
}

// Commit writes are assumed already flushed to the tmp file; Commit
// renames tmp -> path and then releases the lock by closing the tmp
// file handle, matching the rename-before-close ordering that is safe
// on POSIX. On Windows, where a file cannot be renamed while open, the
// ordering is close-then-rename instead.
func (s *Store) Commit() error {
	if s.readOnly {
		return nil
	}
	if runtime.GOOS == "windows" {
		if err := s.closeTmp(); err != nil {
			return err
		}
		return os.Rename(s.tmpPath, s.path)
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return err
	}
	return s.closeTmp()
}

// Abort closes and removes the tmp file without touching path.
func (s *Store) Abort() error {
	if s.readOnly {
		return nil
	}
	if err := s.closeTmp(); err != nil {
		return err
	}
	return os.Remove(s.tmpPath)
}

func (s *Store) closeTmp() error {
	if s.tmp == nil {
		return nil
	}
	if s.locker != nil {
		s.locker.Unlock()
	}
	f := s.tmp
	s.tmp = nil
	return f.Close()
}

// OpenForRead opens path for reading only; no lock is taken since a
// reader that never commits does not need one.
func OpenForRead(path string) (*os.File, error) {
	return os.Open(path)
}
