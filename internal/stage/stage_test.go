package stage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveLibAbsolutePassesThrough(t *testing.T) {
	got, err := resolveLib("/usr/lib/libc.so.6")
	if err != nil {
		t.Fatalf("resolveLib: %v", err)
	}
	if got != "/usr/lib/libc.so.6" {
		t.Fatalf("resolveLib absolute path = %q, want unchanged", got)
	}
}

func TestResolveLibSearchesDefaultDirs(t *testing.T) {
	dir := t.TempDir()
	orig := defaultLibPaths
	defaultLibPaths = []string{dir}
	defer func() { defaultLibPaths = orig }()

	libPath := filepath.Join(dir, "libfoo.so.1")
	if err := os.WriteFile(libPath, []byte("stub"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := resolveLib("libfoo.so.1")
	if err != nil {
		t.Fatalf("resolveLib: %v", err)
	}
	if got != libPath {
		t.Fatalf("resolveLib(%q) = %q, want %q", "libfoo.so.1", got, libPath)
	}
}

func TestResolveLibNotFound(t *testing.T) {
	orig := defaultLibPaths
	defaultLibPaths = []string{t.TempDir()}
	defer func() { defaultLibPaths = orig }()

	if _, err := resolveLib("definitely-not-there.so"); err == nil {
		t.Fatal("expected error for unresolvable library")
	}
}

func TestStageOneCopiesReadOnly(t *testing.T) {
	hostDir := t.TempDir()
	mountDir := t.TempDir()

	src := filepath.Join(hostDir, "usr", "bin", "tool")
	if err := os.MkdirAll(filepath.Dir(src), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("binary contents"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := stageOne(mountDir, src); err != nil {
		t.Fatalf("stageOne: %v", err)
	}

	dest := filepath.Join(mountDir, filepath.Clean(src[1:]))
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat staged file: %v", err)
	}
	if info.Mode().Perm()&0222 != 0 {
		t.Fatalf("staged file mode = %v, want no write bits", info.Mode())
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "binary contents" {
		t.Fatalf("staged file contents = %q, want %q", got, "binary contents")
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	if err := copyFile("/nonexistent/source", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Fatal("expected error copying nonexistent source")
	}
}
