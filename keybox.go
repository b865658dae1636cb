// Package keybox is the thin top-level API: it wires internal/vault's
// record store to internal/atomicstore's tmp-file-plus-rename commit
// and exposes the operations a caller (CLI, script, test) needs
// without reaching into the internal packages directly.
package keybox

import (
	"fmt"
	"io"
	"os"

	"github.com/keyvault-go/keybox/internal/atomicstore"
	"github.com/keyvault-go/keybox/internal/vault"
	"github.com/keyvault-go/keybox/internal/verr"
)

// Record is a view onto one stored credential row.
type Record = vault.RecordView

// Resolution is a caller's decision for a near-duplicate match found
// during Import.
type Resolution = vault.Resolution

const (
	ResolveReplace   = vault.ResolveReplace
	ResolveAdd       = vault.ResolveAdd
	ResolveKeepLocal = vault.ResolveKeepLocal
)

// Errors
var (
	ErrAuthFailure   = verr.ErrAuthFailure
	ErrCorruptFormat = verr.ErrCorruptFormat
	ErrUnknownColumn = verr.ErrUnknownColumn
	ErrIllegalField  = verr.ErrIllegalField
	ErrLockBusy      = verr.ErrLockBusy
)

// Box is an open keybox file: an in-memory vault plus, unless another
// process holds the write lease, the tmp-file write lock that commits
// it atomically back to path on Save.
type Box struct {
	path      string
	vault     *vault.Vault
	store     *atomicstore.Store
	readOnly  bool
	committed bool
}

// Open opens path read-write if it exists, prompting for its
// passphrase via askPassphrase, or creates a new empty vault there if
// it doesn't, prompting for an initial passphrase via newPassphrase.
func Open(path string, askPassphrase func() (string, error), newPassphrase func() (string, error)) (*Box, error) {
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		return openExisting(path, askPassphrase)
	case os.IsNotExist(statErr):
		return createNew(path, newPassphrase)
	default:
		return nil, statErr
	}
}

func openExisting(path string, askPassphrase func() (string, error)) (*Box, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	v := vault.New()
	readErr := v.Read(f, askPassphrase)
	f.Close()
	if readErr != nil {
		return nil, readErr
	}

	store, err := atomicstore.OpenForWrite(path)
	readOnly := false
	if err != nil {
		if err == verr.ErrLockBusy {
			readOnly = true
		} else {
			return nil, err
		}
	}
	return &Box{path: path, vault: v, store: store, readOnly: readOnly}, nil
}

func createNew(path string, newPassphrase func() (string, error)) (*Box, error) {
	passphrase, err := newPassphrase()
	if err != nil {
		return nil, err
	}
	v := vault.New()
	if err := v.SetPassphrase(passphrase); err != nil {
		return nil, err
	}
	store, err := atomicstore.OpenForWrite(path)
	if err != nil {
		if err == verr.ErrLockBusy {
			return nil, fmt.Errorf("keybox: cannot create %s: %w", path, verr.ErrLockBusy)
		}
		return nil, err
	}
	return &Box{path: path, vault: v, store: store}, nil
}

// ReadOnly reports whether the write lease could not be acquired (the
// file is held open for writing by another process). Mutating calls
// still work in memory but Save will fail.
func (b *Box) ReadOnly() bool {
	return b.readOnly || b.store == nil || b.store.ReadOnly()
}

// Save serializes the vault and commits it to path atomically.
func (b *Box) Save() error {
	if b.ReadOnly() {
		return fmt.Errorf("keybox: save: %w", verr.ErrLockBusy)
	}
	if err := b.vault.Write(b.store.Writer()); err != nil {
		return err
	}
	if err := b.store.Commit(); err != nil {
		return err
	}
	b.committed = true
	return nil
}

// Close releases the vault's key material and the write lease. In both
// read-only and read-write mode, it is an error to close with unwritten
// changes still pending.
func (b *Box) Close() error {
	defer b.vault.Close()
	if b.vault.Modified() {
		return fmt.Errorf("keybox: close: vault has unwritten changes")
	}
	if b.store != nil && !b.committed {
		return b.store.Abort()
	}
	return nil
}

func (b *Box) SetPassphrase(passphrase string) error { return b.vault.SetPassphrase(passphrase) }
func (b *Box) CheckPassphrase(passphrase string) bool { return b.vault.CheckPassphrase(passphrase) }

func (b *Box) Len() int                 { return b.vault.Len() }
func (b *Box) Record(i int) *Record     { return b.vault.Record(i) }
func (b *Box) Records() []*Record       { return b.vault.Records() }
func (b *Box) Columns(prefix string) []string { return b.vault.Columns(prefix) }
func (b *Box) ColumnWidth(column string) int  { return b.vault.ColumnWidth(column) }
func (b *Box) Tags(prefix string) []string    { return b.vault.Tags(prefix) }
func (b *Box) Modified() bool           { return b.vault.Modified() }
func (b *Box) Touch()                   { b.vault.Touch() }
func (b *Box) CheckConsistency() []int  { return b.vault.CheckConsistency() }
func (b *Box) ColumnValues(column string) map[string]struct{} { return b.vault.ColumnValues(column) }

func (b *Box) AddRecord(fields map[string]string) (*Record, error) {
	return b.vault.AddRecord(fields)
}

func (b *Box) DeleteRecord(r *Record) error { return b.vault.DeleteRecord(r) }

func (b *Box) ExportPlain(w io.Writer) error { return b.vault.ExportPlain(w) }
func (b *Box) ExportJSON(w io.Writer) error  { return b.vault.ExportJSON(w) }

func (b *Box) ImportFile(r io.Reader, format string,
	askPassphrase func() (string, error),
	resolve func(candidates []*Record, incoming map[string]string) (Resolution, int),
	onNew func(map[string]string),
) (total, added, updated int, err error) {
	return b.vault.ImportFile(r, format, askPassphrase, resolve, onNew)
}
