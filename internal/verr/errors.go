// Package verr collects the sentinel error values shared across the
// envelope and vault cores.
package verr

import "errors"

var (
	// ErrAuthFailure: AEAD decryption failed (wrong passphrase or tampering).
	ErrAuthFailure = errors.New("keybox: authentication failed (wrong passphrase or corrupted data)")
	// ErrCorruptFormat: magic mismatch, impossible chunk size, unknown
	// enum id, or a checksum/size assertion that did not hold.
	ErrCorruptFormat = errors.New("keybox: corrupt envelope format")
	// ErrUnknownColumn: an imported header names a column the vault
	// schema does not have; import aborts.
	ErrUnknownColumn = errors.New("keybox: unknown column in import header")
	// ErrIllegalField: an attempt to set "mtime" directly through a
	// record view.
	ErrIllegalField = errors.New("keybox: mtime cannot be set directly")
	// ErrLockBusy: the advisory write lock could not be acquired; the
	// vault falls back to read-only rather than treating this as fatal.
	ErrLockBusy = errors.New("keybox: file is locked by another process")
)
