package stage

import (
	"fmt"
	"syscall"
)

// SwitchRoot makes newRoot the process's filesystem root using the "pivot
// onto itself" idiom: chdir into it, pivot_root(".", "."), then lazily
// unmount the old root now stacked at ".". This avoids needing a scratch
// directory to hold the old root while still making the pre-pivot
// filesystem inaccessible. Any failure here is fatal: the exec that follows
// must run in the new root.
func SwitchRoot(newRoot string) error {
	if err := syscall.Chdir(newRoot); err != nil {
		return fmt.Errorf("chdir %s: %w", newRoot, err)
	}

	if err := syscall.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("pivot_root(\".\", \".\"): %w", err)
	}

	if err := syscall.Unmount(".", syscall.MNT_DETACH); err != nil {
		return fmt.Errorf("lazy unmount of old root: %w", err)
	}

	return nil
}
