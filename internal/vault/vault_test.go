package vault

import (
	"bytes"
	"testing"

	"github.com/keyvault-go/keybox/internal/verr"
)

func askPass(pp string) func() (string, error) {
	return func() (string, error) { return pp, nil }
}

func newTestVault(t *testing.T, passphrase string) *Vault {
	t.Helper()
	v := New()
	if err := v.SetPassphrase(passphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	return v
}

func TestAddRecordEncryptsPasswordAndSetsMtime(t *testing.T) {
	v := newTestVault(t, "secret")
	rv, err := v.AddRecord(map[string]string{
		"site":     "example.com",
		"user":     "ann",
		"password": "hunter2",
	})
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	got, err := rv.Get("password")
	if err != nil {
		t.Fatalf("Get password: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("got %q, want hunter2", got)
	}
	mtime, _ := rv.Get("mtime")
	if mtime == "" {
		t.Fatalf("expected mtime to be auto-populated")
	}
}

func TestSetMtimeDirectlyRejected(t *testing.T) {
	v := newTestVault(t, "secret")
	rv, err := v.AddRecord(map[string]string{"site": "x"})
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if err := rv.Set("mtime", "2020-01-01 00:00:00"); err != verr.ErrIllegalField {
		t.Fatalf("expected ErrIllegalField, got %v", err)
	}
}

func TestSetRefreshesMtime(t *testing.T) {
	v := newTestVault(t, "secret")
	rv, err := v.AddRecord(map[string]string{"site": "x"})
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if err := rv.rec.Set("mtime", "2000-01-01 00:00:00"); err != nil {
		t.Fatalf("backdate mtime: %v", err)
	}
	first, _ := rv.Get("mtime")
	if err := rv.Set("user", "bob"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	second, _ := rv.Get("mtime")
	if first == "" || second == "" {
		t.Fatalf("expected mtime populated both times")
	}
	if second == first {
		t.Fatalf("expected Set to refresh mtime, still %q", second)
	}
}

func TestTagsPrefixFilterAndDedup(t *testing.T) {
	v := newTestVault(t, "secret")
	if _, err := v.AddRecord(map[string]string{"site": "a", "tags": "work personal"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if _, err := v.AddRecord(map[string]string{"site": "b", "tags": "work banking"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	all := v.Tags("")
	if len(all) != 3 {
		t.Fatalf("expected 3 distinct tags, got %v", all)
	}
	work := v.Tags("wo")
	if len(work) != 1 || work[0] != "work" {
		t.Fatalf("expected prefix filter to isolate 'work', got %v", work)
	}
}

func TestColumnWidthTracksLongestValue(t *testing.T) {
	v := newTestVault(t, "secret")
	if _, err := v.AddRecord(map[string]string{"site": "short"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if _, err := v.AddRecord(map[string]string{"site": "a-much-longer-site-name.example"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	want := len("a-much-longer-site-name.example") + 2
	if got := v.ColumnWidth("site"); got != want {
		t.Fatalf("got width %d, want %d", got, want)
	}
}

func TestSetPassphraseRotationPreservesPasswordsAcrossWriteRead(t *testing.T) {
	v := newTestVault(t, "secret")
	if _, err := v.AddRecord(map[string]string{"site": "example.com", "password": "hunter2"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if err := v.SetPassphrase("secret2"); err != nil {
		t.Fatalf("rotate SetPassphrase: %v", err)
	}

	var buf bytes.Buffer
	if err := v.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v2 := New()
	if err := v2.Read(&buf, askPass("secret2")); err != nil {
		t.Fatalf("Read: %v", err)
	}
	rv := v2.Record(0)
	got, err := rv.Get("password")
	if err != nil {
		t.Fatalf("Get password: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("got %q, want hunter2 after rotation round trip", got)
	}
	if v2.CheckPassphrase("secret") {
		t.Fatalf("old passphrase should no longer check out after rotation")
	}
}

func TestCheckConsistencyFlagsEmptyPasswords(t *testing.T) {
	v := newTestVault(t, "secret")
	if _, err := v.AddRecord(map[string]string{"site": "has-pw", "password": "x"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if _, err := v.AddRecord(map[string]string{"site": "no-pw"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	idx := v.CheckConsistency()
	if len(idx) != 1 || idx[0] != 1 {
		t.Fatalf("expected index [1] flagged for missing password, got %v", idx)
	}
}

func TestImportFileUnknownColumnAborts(t *testing.T) {
	v := newTestVault(t, "secret")
	in := "site\tnonexistent_column\nexample.com\tsomevalue\n"
	_, _, _, err := v.ImportFile(bytes.NewReader([]byte(in)), "plain", nil,
		func([]*RecordView, map[string]string) (Resolution, int) { return ResolveKeepLocal, 0 },
		nil)
	if err == nil {
		t.Fatalf("expected an error for an unknown import column")
	}
}

func TestImportFilePlainIdempotentRoundTrip(t *testing.T) {
	v := newTestVault(t, "secret")
	if _, err := v.AddRecord(map[string]string{"site": "example.com", "user": "ann", "password": "hunter2"}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}

	var buf bytes.Buffer
	if err := v.ExportPlain(&buf); err != nil {
		t.Fatalf("ExportPlain: %v", err)
	}

	total, added, updated, err := v.ImportFile(bytes.NewReader(buf.Bytes()), "plain", nil,
		func([]*RecordView, map[string]string) (Resolution, int) { return ResolveKeepLocal, 0 },
		nil)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if total != 1 || added != 0 || updated != 0 {
		t.Fatalf("expected an exact-match no-op import (1,0,0), got (%d,%d,%d)", total, added, updated)
	}
}

func TestImportFileNearDuplicateResolutions(t *testing.T) {
	newVaultWithRecord := func(t *testing.T) *Vault {
		v := newTestVault(t, "secret")
		if _, err := v.AddRecord(map[string]string{
			"site": "example.com", "user": "ann", "password": "hunter2", "note": "work account",
		}); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
		return v
	}
	incoming := "site\tuser\tpassword\tnote\nexample.com\tann\thunter2\twork account updated\n"

	t.Run("replace", func(t *testing.T) {
		v := newVaultWithRecord(t)
		total, added, updated, err := v.ImportFile(bytes.NewReader([]byte(incoming)), "plain", nil,
			func(candidates []*RecordView, _ map[string]string) (Resolution, int) { return ResolveReplace, 0 },
			nil)
		if err != nil {
			t.Fatalf("ImportFile: %v", err)
		}
		if total != 1 || added != 0 || updated != 1 {
			t.Fatalf("replace: got (%d,%d,%d), want (1,0,1)", total, added, updated)
		}
		note, _ := v.Record(0).Get("note")
		if note != "work account updated" {
			t.Fatalf("expected note to be replaced, got %q", note)
		}
	})

	t.Run("add", func(t *testing.T) {
		v := newVaultWithRecord(t)
		total, added, updated, err := v.ImportFile(bytes.NewReader([]byte(incoming)), "plain", nil,
			func(candidates []*RecordView, _ map[string]string) (Resolution, int) { return ResolveAdd, 0 },
			nil)
		if err != nil {
			t.Fatalf("ImportFile: %v", err)
		}
		if total != 1 || added != 1 || updated != 0 {
			t.Fatalf("add: got (%d,%d,%d), want (1,1,0)", total, added, updated)
		}
		if v.Len() != 2 {
			t.Fatalf("expected 2 records after add-as-new, got %d", v.Len())
		}
	})

	t.Run("keep local", func(t *testing.T) {
		v := newVaultWithRecord(t)
		total, added, updated, err := v.ImportFile(bytes.NewReader([]byte(incoming)), "plain", nil,
			func(candidates []*RecordView, _ map[string]string) (Resolution, int) { return ResolveKeepLocal, 0 },
			nil)
		if err != nil {
			t.Fatalf("ImportFile: %v", err)
		}
		if total != 1 || added != 0 || updated != 0 {
			t.Fatalf("keep local: got (%d,%d,%d), want (1,0,0)", total, added, updated)
		}
		note, _ := v.Record(0).Get("note")
		if note != "work account" {
			t.Fatalf("expected note to stay local, got %q", note)
		}
	})
}
