package idmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		line    string
		want    Mapping
		wantErr bool
	}{
		{"bob:100000:65536", Mapping{"bob", 100000, 65536}, false},
		{"1000:0:1", Mapping{"1000", 0, 1}, false},
		{"bob:100000", Mapping{}, true},
		{"bob:100000:65536:extra", Mapping{}, true},
		{"bob:-1:65536", Mapping{}, true},
		{"bob:100000:notanumber", Mapping{}, true},
	}

	for _, c := range cases {
		got, err := ParseLine(c.line)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseLine(%q): expected error", c.line)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLine(%q): unexpected error: %v", c.line, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseLine(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestReadSubUIDMatchesNumericOrName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	if err := os.WriteFile(path, []byte("# comment\nalice:200000:65536\n1000:100000:65536\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// ReadSubUID hardcodes /etc/subuid, so exercise readTable, which it
	// delegates to for parsing and matching, directly on a temp file here.
	m, ok, err := readTable(path, "1000", "bob")
	if err != nil || !ok {
		t.Fatalf("readTable numeric match: %+v %v %v", m, ok, err)
	}
	if m.SubStart != 100000 || m.SubCount != 65536 {
		t.Fatalf("readTable numeric match: got %+v", m)
	}

	m, ok, err = readTable(path, "9999", "alice")
	if err != nil || !ok {
		t.Fatalf("readTable name match: %+v %v %v", m, ok, err)
	}
	if m.SubStart != 200000 {
		t.Fatalf("readTable name match: got %+v", m)
	}

	_, ok, err = readTable(path, "9999", "nobody")
	if err != nil || ok {
		t.Fatalf("readTable absent match: expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestReadSubUIDMissingFileIsNotError(t *testing.T) {
	_, ok, err := readTable("/nonexistent/subuid", "1000", "bob")
	if err != nil || ok {
		t.Fatalf("missing file: expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestReadSubUIDMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	if err := os.WriteFile(path, []byte("bob:100000:65536:oops\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := readTable(path, "1000", "bob")
	if err == nil {
		t.Fatal("expected malformed-line error")
	}
}
