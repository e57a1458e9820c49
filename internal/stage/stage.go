// Package stage populates a container's new root with the executables it
// will run and their shared-library closure, then pivots into it.
package stage

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// defaultLibPaths is consulted when a DT_NEEDED entry names a bare library
// (no slash) rather than a path; the dynamic linker would otherwise resolve
// it through ld.so.cache, which this package does not parse.
var defaultLibPaths = []string{
	"/lib", "/lib64", "/usr/lib", "/usr/lib64",
	"/lib/x86_64-linux-gnu", "/usr/lib/x86_64-linux-gnu",
}

// MountRoot performs steps 1-2 of the dependency stager: it recursively
// bind-mounts the host root as private so later mount activity here never
// propagates back to the host, then bind-mounts mountDir onto itself so it
// becomes its own mount point ahead of the eventual pivot_root.
func MountRoot(mountDir string) error {
	if err := syscall.Mount("", "/", "", syscall.MS_PRIVATE|syscall.MS_REC, ""); err != nil {
		return fmt.Errorf("mark / private: %w", err)
	}

	if err := syscall.Mount(mountDir, mountDir, "bind", syscall.MS_BIND|syscall.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s onto itself: %w", mountDir, err)
	}

	return nil
}

// Populate computes the dependency closure of command and copyAlso (steps
// 3-4) and copies every resolved path into mountDir read-only (step 5).
func Populate(mountDir, command string, copyAlso []string) error {
	set := map[string]bool{command: true}
	for _, p := range copyAlso {
		set[p] = true
	}

	seeds := make([]string, 0, len(set))
	for p := range set {
		seeds = append(seeds, p)
	}

	for _, p := range seeds {
		deps, err := closure(p)
		if err != nil {
			return fmt.Errorf("dependency closure of %s: %w", p, err)
		}
		for _, d := range deps {
			set[d] = true
		}
	}

	for p := range set {
		if err := stageOne(mountDir, p); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
	}

	return nil
}

// closure walks the ELF interpreter and DT_NEEDED chain of path against the
// host root and returns every library path it resolves to, as named by
// PT_INTERP or found by resolveLib; symlinks are followed only to read each
// file's ELF headers, not in the returned paths.
func closure(path string) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	var walk func(string) error
	walk = func(p string) error {
		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		if seen[real] {
			return nil
		}
		seen[real] = true

		f, err := elf.Open(real)
		if err != nil {
			// Not every staged file is an ELF binary (scripts, data files
			// passed via --copy); a non-ELF file has no further closure.
			if _, ok := err.(*elf.FormatError); ok {
				return nil
			}
			return err
		}
		defer f.Close()

		if interp, err := readInterp(f); err == nil && interp != "" {
			out = append(out, interp)
			if err := walk(interp); err != nil {
				return err
			}
		}

		needed, err := f.DynString(elf.DT_NEEDED)
		if err != nil {
			// No dynamic section at all means a static binary; nothing more
			// to resolve.
			return nil
		}

		for _, name := range needed {
			resolved, err := resolveLib(name)
			if err != nil {
				return fmt.Errorf("resolve library %q needed by %s: %w", name, p, err)
			}
			out = append(out, resolved)
			if err := walk(resolved); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(path); err != nil {
		return nil, err
	}
	return out, nil
}

// readInterp returns the PT_INTERP path embedded in the ELF, or "" if the
// binary has none (static executables, shared objects opened directly).
func readInterp(f *elf.File) (string, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		buf := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(buf, 0); err != nil {
			return "", err
		}
		return strings.TrimRight(string(buf), "\x00"), nil
	}
	return "", nil
}

// resolveLib turns a bare DT_NEEDED soname (no slash) or an absolute path
// into an absolute path on the host, searching the fixed set of library
// directories the dynamic linker conventionally uses.
func resolveLib(name string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}

	for _, dir := range defaultLibPaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("library %q not found under %v", name, defaultLibPaths)
}

// stageOne copies the concrete file at hostPath into mountDir at the same
// relative path, creating parent directories as needed, then marks the copy
// read-only so a compromised child cannot patch its own libraries.
func stageOne(mountDir, hostPath string) error {
	real, err := filepath.EvalSymlinks(hostPath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", hostPath, err)
	}

	rel := strings.TrimPrefix(hostPath, "/")
	dest := filepath.Join(mountDir, rel)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dest), err)
	}

	if err := copyFile(real, dest); err != nil {
		return err
	}

	if err := os.Chmod(dest, 0444); err != nil {
		return fmt.Errorf("chmod read-only %s: %w", dest, err)
	}

	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}

	return nil
}
