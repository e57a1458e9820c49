package idmap

import (
	"fmt"
	"os"
)

// WriteUIDMap writes "0 <start> <count>\n" to /proc/<pid>/uid_map in a
// single write syscall, mapping container UID 0 to the host range
// [m.SubStart, m.SubStart+m.SubCount).
func WriteUIDMap(pid int, m Mapping) error {
	return writeOneLine(fmt.Sprintf("/proc/%d/uid_map", pid), m)
}

// WriteGIDMap denies setgroups for pid (required by the kernel before an
// unprivileged writer may touch gid_map) and then writes gid_map the same
// way WriteUIDMap writes uid_map.
func WriteGIDMap(pid int, m Mapping) error {
	setgroups := fmt.Sprintf("/proc/%d/setgroups", pid)
	if err := os.WriteFile(setgroups, []byte("deny"), 0644); err != nil {
		return fmt.Errorf("write %s: %w", setgroups, err)
	}

	return writeOneLine(fmt.Sprintf("/proc/%d/gid_map", pid), m)
}

// writeOneLine opens path write-only and performs exactly one write
// syscall; the kernel rejects a partial write to these map files outright,
// so splitting the write across multiple syscalls would only mask that
// rejection.
func writeOneLine(path string, m Mapping) error {
	line := fmt.Sprintf("0 %d %d\n", m.SubStart, m.SubCount)

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, err := f.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if n != len(line) {
		return fmt.Errorf("write %s: partial write (%d/%d bytes)", path, n, len(line))
	}
	return nil
}
