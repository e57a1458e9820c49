// Package cgroup builds and tears down the single cgroup v2 control group
// that bounds the container's memory, PID count, and CPU share.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Name is the fixed cgroup name. Concurrent invocations of bento sharing
// the same cgroup root are unsupported: a second run reuses or recreates
// this group rather than picking a unique name.
const Name = "bento"

// Root is the default cgroup v2 mountpoint.
const Root = "/sys/fs/cgroup"

// Resource limits applied to the group, per the fixed container budget.
const (
	MemoryMax = 1 << 30 // 1 GiB
	PIDsMax   = 10
	CPUShares = 250 // cgroup v1-style shares, converted to a v2 cpu.weight
)

// Group is a handle on the "bento" cgroup v2 control group.
type Group struct {
	root string
	path string
}

// Build creates (or reuses, if a prior run crashed and left one behind) the
// "bento" cgroup under root, applies the fixed resource limits, and
// attaches the calling process so the eventual clone inherits membership.
func Build(root string) (*Group, error) {
	if root == "" {
		root = Root
	}

	path := filepath.Join(root, Name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", path, err)
	}

	g := &Group{root: root, path: path}

	if err := g.applyLimits(); err != nil {
		return nil, err
	}

	if err := g.Attach(os.Getpid()); err != nil {
		return nil, err
	}

	return g, nil
}

// Path returns the absolute path of the control group.
func (g *Group) Path() string {
	return g.path
}

func (g *Group) applyLimits() error {
	if err := g.write("memory.max", strconv.Itoa(MemoryMax)); err != nil {
		return err
	}

	// memory.kmem.max is a cgroup v1-ism; most v2 hierarchies no longer
	// expose a separate kernel-memory knob. Write it best-effort so legacy
	// hierarchies that still carry the file get the same cap, but don't
	// fail the build when it's absent.
	if err := g.writeIfPresent("memory.kmem.max", strconv.Itoa(MemoryMax)); err != nil {
		return err
	}

	if err := g.write("pids.max", strconv.Itoa(PIDsMax)); err != nil {
		return err
	}

	if err := g.write("cpu.weight", strconv.Itoa(sharesToWeight(CPUShares))); err != nil {
		return err
	}

	return nil
}

// Attach moves pid into the group by writing cgroup.procs.
func (g *Group) Attach(pid int) error {
	return g.write("cgroup.procs", strconv.Itoa(pid))
}

// Detach moves the calling process back to the cgroup root so Destroy can
// remove the now-empty group.
func (g *Group) Detach() error {
	rootProcs := filepath.Join(g.root, "cgroup.procs")
	if err := os.WriteFile(rootProcs, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("write %s: %w", rootProcs, err)
	}
	return nil
}

// Destroy detaches the supervisor and removes the group. It is guaranteed
// to succeed once the child has exited, since no tasks remain in the group
// at that point.
func (g *Group) Destroy() error {
	if err := g.Detach(); err != nil {
		return err
	}
	if err := os.Remove(g.path); err != nil {
		return fmt.Errorf("remove cgroup %s: %w", g.path, err)
	}
	return nil
}

func (g *Group) write(name, value string) error {
	path := filepath.Join(g.path, name)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (g *Group) writeIfPresent(name, value string) error {
	path := filepath.Join(g.path, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return g.write(name, value)
}

// sharesToWeight converts a cgroup v1 cpu.shares value ([2, 262144],
// default 1024) to the equivalent cgroup v2 cpu.weight ([1, 10000],
// default 100), using the same linear mapping OCI runtimes use to keep
// v1-authored configuration meaningful under v2.
func sharesToWeight(shares int) int {
	if shares <= 2 {
		return 1
	}
	weight := 1 + ((shares-2)*9999)/262142
	if weight > 10000 {
		return 10000
	}
	return weight
}
