// Package fileformat implements the tab-delimited text serialization of
// vault records: one header line of column names, then one line per
// record, all LF-terminated. It also provides the C-style escaping used
// only at the plain-text export/import boundary.
package fileformat

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/keyvault-go/keybox/internal/record"
)

// FormatHeader renders columns as a tab-joined, LF-terminated line.
func FormatHeader(columns []string) string {
	return strings.Join(columns, "\t") + "\n"
}

// FormatRecord renders r's values, in columns order, tab-joined and
// LF-terminated.
func FormatRecord(r *record.Record, columns []string) string {
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = r.Get(c)
	}
	return strings.Join(values, "\t") + "\n"
}

// WriteFile writes a header line followed by one line per record.
func WriteFile(w io.Writer, records []*record.Record, columns []string) error {
	if _, err := io.WriteString(w, FormatHeader(columns)); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := io.WriteString(w, FormatRecord(r, columns)); err != nil {
			return err
		}
	}
	return nil
}

// ParseHeader splits a tab-delimited header line into column names.
func ParseHeader(line string) []string {
	return strings.Split(strings.TrimRight(line, "\n"), "\t")
}

// ParseRecord splits a tab-delimited record line into a Record with the
// given column order. Fewer values than columns is allowed (missing
// trailing columns default to empty); more values than columns is a
// format error.
func ParseRecord(line string, columns []string) (*record.Record, error) {
	values := strings.Split(strings.TrimRight(line, "\n"), "\t")
	if len(values) > len(columns) {
		return nil, fmt.Errorf("fileformat: line has %d fields, header declares %d columns",
			len(values), len(columns))
	}
	fields := make(map[string]string, len(columns))
	for i, c := range columns {
		if i < len(values) {
			fields[c] = values[i]
		}
	}
	return record.New(columns, fields)
}

// ReadFile reads a header line and then one record per remaining line.
func ReadFile(r io.Reader) (records []*record.Record, columns []string, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("fileformat: empty input, missing header line")
	}
	columns = ParseHeader(scanner.Text())
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line, columns)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return records, columns, nil
}

var escaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`)

// EscapeValue C-escapes backslash, tab and newline for plain-text export.
func EscapeValue(s string) string {
	return escaper.Replace(s)
}

// UnescapeValue reverses EscapeValue for plain-text import.
func UnescapeValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
