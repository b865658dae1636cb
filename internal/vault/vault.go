// Package vault implements the in-memory record collection backing a
// keybox file: record storage, tag indexing, column-width bookkeeping,
// passphrase rotation and per-field password encryption on top of
// internal/envelope, internal/record and internal/fileformat.
package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/keyvault-go/keybox/internal/envelope"
	"github.com/keyvault-go/keybox/internal/fileformat"
	"github.com/keyvault-go/keybox/internal/record"
	"github.com/keyvault-go/keybox/internal/verr"
)

const defaultMinMatchScore = 3

const mtimeLayout = "2006-01-02 15:04:05"

// Vault is the in-memory set of records plus the active envelope. It is
// single-threaded: callers serialize their own access (the only
// concurrency concern lives one layer up, in internal/atomicstore's
// inter-process lock).
type Vault struct {
	columns       []string
	records       []*record.Record
	columnWidths  map[string]int
	envelope      *envelope.Envelope
	modified      bool
	minMatchScore int
}

// New returns an empty vault with the canonical column set. Call
// SetPassphrase before Write.
func New() *Vault {
	return &Vault{
		columns:       append([]string(nil), record.CanonicalColumns...),
		columnWidths:  map[string]int{},
		envelope:      envelope.New(),
		minMatchScore: defaultMinMatchScore,
	}
}

// SetImportMinScore overrides the near-duplicate match threshold used
// by ImportFile (default 3).
func (v *Vault) SetImportMinScore(n int) {
	v.minMatchScore = n
}

// SetPassphrase builds a fresh envelope (new salt, new key) under
// passphrase and re-encrypts every record's password field from the
// old envelope to the new one. The first call on a new Vault is
// effectively a no-op rotation (no records to re-encrypt yet).
func (v *Vault) SetPassphrase(passphrase string) error {
	oldEnv := v.envelope
	newEnv := envelope.New()
	if err := newEnv.SetPassphrase(passphrase); err != nil {
		return err
	}
	for _, rec := range v.records {
		b64 := rec.Get("password")
		if b64 == "" {
			continue
		}
		plain, err := oldEnv.DecryptB64(b64)
		if err != nil {
			return err
		}
		cipher, err := newEnv.EncryptB64(plain)
		if err != nil {
			return err
		}
		if err := rec.Set("password", cipher); err != nil {
			return err
		}
	}
	oldEnv.Close()
	v.envelope = newEnv
	v.modified = true
	return nil
}

// CheckPassphrase reports whether passphrase matches the vault's
// current key.
func (v *Vault) CheckPassphrase(passphrase string) bool {
	return v.envelope.CheckPassphrase(passphrase)
}

// Read loads records from an encrypted stream, replacing the vault's
// current contents.
func (v *Vault) Read(r io.Reader, askPassphrase func() (string, error)) error {
	data, err := v.envelope.Read(r, askPassphrase)
	if err != nil {
		return err
	}
	records, columns, err := fileformat.ReadFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("vault: %w: %v", verr.ErrCorruptFormat, err)
	}
	v.records = records
	v.columns = columns
	v.modified = false
	v.recomputeWidths()
	return nil
}

// Write serializes all records and encrypts them to w.
func (v *Vault) Write(w io.Writer) error {
	var buf bytes.Buffer
	if err := fileformat.WriteFile(&buf, v.records, v.columns); err != nil {
		return err
	}
	if err := v.envelope.Write(w, buf.Bytes()); err != nil {
		return err
	}
	v.modified = false
	return nil
}

// Len returns the number of records.
func (v *Vault) Len() int {
	return len(v.records)
}

// Record returns a view of the i'th record.
func (v *Vault) Record(i int) *RecordView {
	return &RecordView{vault: v, rec: v.records[i]}
}

// Records returns views of all records, in storage order.
func (v *Vault) Records() []*RecordView {
	out := make([]*RecordView, len(v.records))
	for i, rec := range v.records {
		out[i] = &RecordView{vault: v, rec: rec}
	}
	return out
}

// AddRecord constructs and appends a new record. "password", if
// non-empty, is encrypted with the vault's envelope before storage;
// "mtime", if not supplied, defaults to the current local time.
func (v *Vault) AddRecord(fields map[string]string) (*RecordView, error) {
	rec, err := v.addRecordInternal(fields)
	if err != nil {
		return nil, err
	}
	return &RecordView{vault: v, rec: rec}, nil
}

func (v *Vault) addRecordInternal(fields map[string]string) (*record.Record, error) {
	plainPassword := fields["password"]
	init := make(map[string]string, len(fields))
	for k, val := range fields {
		if k == "password" {
			continue
		}
		init[k] = val
		v.ensureColumn(k)
	}
	rec, err := record.New(v.columns, init)
	if err != nil {
		return nil, err
	}
	if plainPassword != "" {
		enc, err := v.envelope.EncryptB64(plainPassword)
		if err != nil {
			return nil, err
		}
		if err := rec.Set("password", enc); err != nil {
			return nil, err
		}
	}
	if rec.Get("mtime") == "" {
		if err := rec.Set("mtime", time.Now().Format(mtimeLayout)); err != nil {
			return nil, err
		}
	}
	for _, c := range rec.Columns() {
		v.updateWidth(c, rec.Get(c))
	}
	v.records = append(v.records, rec)
	v.modified = true
	return rec, nil
}

// DeleteRecord removes exactly the identified record.
func (v *Vault) DeleteRecord(view *RecordView) error {
	for i, rec := range v.records {
		if rec == view.rec {
			v.records = append(v.records[:i:i], v.records[i+1:]...)
			v.modified = true
			return nil
		}
	}
	return fmt.Errorf("vault: record not found")
}

// Columns returns the vault's column names, optionally filtered to
// those starting with prefix.
func (v *Vault) Columns(prefix string) []string {
	if prefix == "" {
		return append([]string(nil), v.columns...)
	}
	var out []string
	for _, c := range v.columns {
		if strings.HasPrefix(c, strings.ToLower(prefix)) {
			out = append(out, c)
		}
	}
	return out
}

// ColumnWidth returns the display width (max value length + 2) for
// column, as maintained on read/add/modify.
func (v *Vault) ColumnWidth(column string) int {
	return v.columnWidths[column]
}

// Tags returns the sorted, deduplicated union of every record's tags
// field split on whitespace, optionally filtered by prefix.
func (v *Vault) Tags(prefix string) []string {
	set := make(map[string]struct{})
	for _, rec := range v.records {
		for _, t := range strings.Fields(rec.Get("tags")) {
			set[t] = struct{}{}
		}
	}
	prefix = strings.ToLower(prefix)
	out := make([]string, 0, len(set))
	for t := range set {
		if strings.HasPrefix(strings.ToLower(t), prefix) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// ColumnValues returns the set of distinct non-empty values stored
// under column across all records. Values are returned as stored:
// "password" values are per-record ciphertexts, so equal passwords do
// not collapse into one entry.
func (v *Vault) ColumnValues(column string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, rec := range v.records {
		if val := rec.Get(column); val != "" {
			out[val] = struct{}{}
		}
	}
	return out
}

// CheckConsistency returns the indices of records whose password field
// is empty.
func (v *Vault) CheckConsistency() []int {
	var out []int
	for i, rec := range v.records {
		if rec.Get("password") == "" {
			out = append(out, i)
		}
	}
	return out
}

// Modified reports whether the vault has unwritten changes.
func (v *Vault) Modified() bool {
	return v.modified
}

// Touch marks the vault as modified without changing any record.
func (v *Vault) Touch() {
	v.modified = true
}

// Close releases the envelope's key material.
func (v *Vault) Close() {
	v.envelope.Close()
}

func (v *Vault) ensureColumn(c string) {
	for _, x := range v.columns {
		if x == c {
			return
		}
	}
	v.columns = append(v.columns, c)
}

func (v *Vault) recomputeWidths() {
	widths := make(map[string]int, len(v.columns))
	for _, c := range v.columns {
		w := 2
		for _, rec := range v.records {
			if l := len(rec.Get(c)) + 2; l > w {
				w = l
			}
		}
		widths[c] = w
	}
	v.columnWidths = widths
}

func (v *Vault) updateWidth(column, value string) {
	w := len(value) + 2
	if w > v.columnWidths[column] {
		v.columnWidths[column] = w
	}
}

// RecordView is a handle onto one stored record, transparently
// decrypting "password" on Get and auto-touching "mtime" on Set.
type RecordView struct {
	vault *Vault
	rec   *record.Record
}

// Get returns column's value, decrypting "password" lazily.
func (rv *RecordView) Get(column string) (string, error) {
	value := rv.rec.Get(column)
	if column == "password" && value != "" {
		return rv.vault.envelope.DecryptB64(value)
	}
	return value, nil
}

// Set stores value under column. Setting "mtime" directly is rejected;
// any other successful set refreshes mtime to the current local time.
// "password" is encrypted with the vault's envelope before storage.
func (rv *RecordView) Set(column, value string) error {
	if column == "mtime" {
		return verr.ErrIllegalField
	}
	stored := value
	if column == "password" && value != "" {
		enc, err := rv.vault.envelope.EncryptB64(value)
		if err != nil {
			return err
		}
		stored = enc
	}
	rv.vault.ensureColumn(column)
	if err := rv.rec.Set(column, stored); err != nil {
		return err
	}
	rv.vault.updateWidth(column, stored)
	return rv.touch()
}

func (rv *RecordView) touch() error {
	mtime := time.Now().Format(mtimeLayout)
	if err := rv.rec.Set("mtime", mtime); err != nil {
		return err
	}
	rv.vault.updateWidth("mtime", mtime)
	rv.vault.modified = true
	return nil
}

// String renders a width-padded row for display, omitting password.
func (rv *RecordView) String() string {
	var b strings.Builder
	for _, c := range rv.rec.Columns() {
		if c == "password" {
			continue
		}
		width := rv.vault.ColumnWidth(c)
		val := rv.rec.Get(c)
		b.WriteString(val)
		for i := len(val); i < width; i++ {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
