package vault

import (
	"encoding/json"
	"io"

	"github.com/keyvault-go/keybox/internal/fileformat"
)

// ExportPlain writes a tab-delimited, human-readable dump: passwords
// decrypted, and every value C-escaped (backslash, tab, newline) since
// this is the user-visible boundary, unlike the internal persisted
// format which carries values unescaped.
func (v *Vault) ExportPlain(w io.Writer) error {
	if _, err := io.WriteString(w, fileformat.FormatHeader(v.columns)); err != nil {
		return err
	}
	for _, rec := range v.records {
		values := make([]string, len(v.columns))
		for i, c := range v.columns {
			val := rec.Get(c)
			if c == "password" && val != "" {
				plain, err := v.envelope.DecryptB64(val)
				if err != nil {
					return err
				}
				val = plain
			}
			values[i] = fileformat.EscapeValue(val)
		}
		line := ""
		for i, val := range values {
			if i > 0 {
				line += "\t"
			}
			line += val
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// ExportJSON writes a JSON array of objects, one per record, with
// decrypted passwords.
func (v *Vault) ExportJSON(w io.Writer) error {
	out := make([]map[string]string, len(v.records))
	for i, rec := range v.records {
		obj := make(map[string]string, len(v.columns))
		for _, c := range v.columns {
			val := rec.Get(c)
			if c == "password" && val != "" {
				plain, err := v.envelope.DecryptB64(val)
				if err != nil {
					return err
				}
				val = plain
			}
			obj[c] = val
		}
		out[i] = obj
	}
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}
