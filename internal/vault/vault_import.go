package vault

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/keyvault-go/keybox/internal/envelope"
	"github.com/keyvault-go/keybox/internal/fileformat"
	"github.com/keyvault-go/keybox/internal/gpgimport"
	"github.com/keyvault-go/keybox/internal/record"
	"github.com/keyvault-go/keybox/internal/verr"
)

// Resolution is the caller's decision for a near-duplicate match found
// during ImportFile.
type Resolution int

const (
	// ResolveReplace overwrites the chosen candidate's columns with the
	// incoming record's.
	ResolveReplace Resolution = iota
	// ResolveAdd keeps the candidate and adds the incoming record as new.
	ResolveAdd
	// ResolveKeepLocal discards the incoming record.
	ResolveKeepLocal
)

// ImportFile reads records from r in the given format ("plain",
// "json", "keybox" or "keybox_gpg"), matches each against the vault's
// existing records, and adds/updates/skips per resolve's decision.
// Exact matches (every column equal) are silently dropped. Unmatched
// records are added directly, via onNew for caller-side reporting.
// Returns (total incoming, added, updated).
func (v *Vault) ImportFile(r io.Reader, format string,
	askPassphrase func() (string, error),
	resolve func(candidates []*RecordView, incoming map[string]string) (Resolution, int),
	onNew func(map[string]string),
) (total, added, updated int, err error) {
	var records []map[string]string
	var columns []string

	switch format {
	case "plain":
		records, columns, err = parsePlainImport(r)
	case "json":
		records, columns, err = parseJSONImport(r)
	case "keybox":
		records, columns, err = v.parseKeyboxImport(r, askPassphrase)
	case "keybox_gpg":
		records, columns, err = parseKeyboxGPGImport(r, askPassphrase)
	default:
		return 0, 0, 0, fmt.Errorf("vault: unsupported import format %q", format)
	}
	if err != nil {
		return 0, 0, 0, err
	}

	known := make(map[string]struct{}, len(v.columns))
	for _, c := range v.columns {
		known[c] = struct{}{}
	}
	for _, c := range columns {
		if _, ok := known[c]; !ok {
			return 0, 0, 0, fmt.Errorf("vault: column %q: %w", c, verr.ErrUnknownColumn)
		}
	}

	pool := append([]*record.Record(nil), v.records...)
	for _, incoming := range records {
		matched, exact := v.matchRecord(pool, incoming)
		if exact {
			pool = removeRecord(pool, matched[0])
			continue
		}
		if len(matched) == 0 {
			if onNew != nil {
				onNew(incoming)
			}
			if _, err := v.addRecordInternal(incoming); err != nil {
				return 0, 0, 0, err
			}
			v.Touch()
			added++
			continue
		}

		views := make([]*RecordView, len(matched))
		for i, rec := range matched {
			views[i] = &RecordView{vault: v, rec: rec}
		}
		resolution, idx := resolve(views, incoming)
		switch resolution {
		case ResolveReplace:
			target := matched[idx]
			for _, c := range v.columns {
				val := incoming[c]
				if c == "password" && val != "" {
					enc, encErr := v.envelope.EncryptB64(val)
					if encErr != nil {
						return 0, 0, 0, encErr
					}
					val = enc
				}
				if err := target.Set(c, val); err != nil {
					return 0, 0, 0, err
				}
				v.updateWidth(c, val)
			}
			pool = removeRecord(pool, target)
			updated++
			v.Touch()
		case ResolveAdd:
			if _, err := v.addRecordInternal(incoming); err != nil {
				return 0, 0, 0, err
			}
			added++
			v.Touch()
		case ResolveKeepLocal:
			// no-op
		default:
			return 0, 0, 0, fmt.Errorf("vault: unknown import resolution %d", resolution)
		}
	}
	return len(records), added, updated, nil
}

// matchRecord scores incoming against every record in pool, comparing
// non-password columns first and only decrypting password when the
// partial score could still reach minMatchScore (decryption is the
// expensive step). Returns either a single exact match (score equals
// the column count) or the best-scoring set of near matches at or
// above minMatchScore.
func (v *Vault) matchRecord(pool []*record.Record, incoming map[string]string) (matched []*record.Record, exact bool) {
	maxScore := len(v.columns)
	best := v.minMatchScore
	for _, rec := range pool {
		score := 0
		for _, c := range v.columns {
			if c == "password" {
				continue
			}
			if rec.Get(c) == incoming[c] {
				score++
			}
		}
		if score+1 < best {
			continue
		}
		recPassword := rec.Get("password")
		var plain string
		if recPassword != "" {
			p, err := v.envelope.DecryptB64(recPassword)
			if err != nil {
				continue
			}
			plain = p
		}
		if plain == incoming["password"] {
			score++
		}
		if score < best {
			continue
		}
		if score == maxScore {
			return []*record.Record{rec}, true
		}
		if score > best {
			best = score
			matched = matched[:0]
		}
		matched = append(matched, rec)
	}
	return matched, false
}

func removeRecord(pool []*record.Record, target *record.Record) []*record.Record {
	for i, rec := range pool {
		if rec == target {
			return append(pool[:i:i], pool[i+1:]...)
		}
	}
	return pool
}

// parsePlainImport parses a user-visible escaped tab-delimited dump:
// split on literal tab (escaping guarantees literal tabs never appear
// inside a value), then unescape each field to recover real tab/LF/backslash.
func parsePlainImport(r io.Reader) ([]map[string]string, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("vault: empty plain import, missing header line")
	}
	columns := fileformat.ParseHeader(scanner.Text())

	var records []map[string]string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		raw := strings.Split(line, "\t")
		if len(raw) > len(columns) {
			return nil, nil, fmt.Errorf("vault: import line has %d fields, header declares %d columns",
				len(raw), len(columns))
		}
		rec := make(map[string]string, len(columns))
		for i, c := range columns {
			if i < len(raw) {
				rec[c] = fileformat.UnescapeValue(raw[i])
			} else {
				rec[c] = ""
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return records, columns, nil
}

func parseJSONImport(r io.Reader) ([]map[string]string, []string, error) {
	var raw []map[string]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, err
	}
	var columns []string
	if len(raw) > 0 {
		for c := range raw[0] {
			columns = append(columns, c)
		}
	}
	return raw, columns, nil
}

// parseKeyboxImport decrypts an encrypted keybox file with its own
// fresh Envelope (independent of v's) and decrypts each record's
// password under that input envelope.
func (v *Vault) parseKeyboxImport(r io.Reader, askPassphrase func() (string, error)) ([]map[string]string, []string, error) {
	inputEnv := envelope.New()
	defer inputEnv.Close()
	data, err := inputEnv.Read(r, askPassphrase)
	if err != nil {
		return nil, nil, err
	}
	recs, columns, err := fileformat.ReadFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("vault: %w: %v", verr.ErrCorruptFormat, err)
	}
	out := make([]map[string]string, len(recs))
	for i, rec := range recs {
		m := make(map[string]string, len(columns))
		for _, c := range columns {
			val := rec.Get(c)
			if c == "password" && val != "" {
				plain, err := inputEnv.DecryptB64(val)
				if err != nil {
					return nil, nil, err
				}
				val = plain
			}
			m[c] = val
		}
		out[i] = m
	}
	return out, columns, nil
}

// parseKeyboxGPGImport decrypts a legacy GPG symmetric block, then
// treats the revealed body like a plain escaped dump.
func parseKeyboxGPGImport(r io.Reader, askPassphrase func() (string, error)) ([]map[string]string, []string, error) {
	passphrase, err := askPassphrase()
	if err != nil {
		return nil, nil, err
	}
	plain, err := gpgimport.Decrypt(r, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return parsePlainImport(bytes.NewReader(plain))
}
