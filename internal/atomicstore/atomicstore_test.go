package atomicstore

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/keyvault-go/keybox/internal/verr"
)

func TestCommitWritesAndReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.safe")

	s, err := OpenForWrite(path)
	if err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}
	if s.ReadOnly() {
		t.Fatalf("expected a writable store on first open")
	}
	if _, err := io.WriteString(s.Writer(), "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file to be gone after commit")
	}
}

func TestAbortLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.safe")
	if err := os.WriteFile(path, []byte("original"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := OpenForWrite(path)
	if err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}
	io.WriteString(s.Writer(), "new content")
	if err := s.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "original" {
		t.Fatalf("abort should not modify target; got %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file to be gone after abort")
	}
}

func TestSecondWriterFallsBackReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.safe")

	s1, err := OpenForWrite(path)
	if err != nil {
		t.Fatalf("first OpenForWrite: %v", err)
	}
	defer s1.Abort()

	s2, err := OpenForWrite(path)
	if err != verr.ErrLockBusy {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
	if !s2.ReadOnly() {
		t.Fatalf("expected second store to report ReadOnly")
	}
}

func TestOpenForRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.safe")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := OpenForRead(path)
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("got %q, want data", data)
	}
}
