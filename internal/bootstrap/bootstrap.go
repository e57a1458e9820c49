// Package bootstrap implements the cloned child's state machine: it pivots
// into the staged root, synchronizes with the supervisor across the
// user-namespace boundary, assumes its target identity, narrows its
// privileges, and execs the target command.
package bootstrap

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kevinji/bento/internal/capset"
	"github.com/kevinji/bento/internal/config"
	"github.com/kevinji/bento/internal/seccomp"
	"github.com/kevinji/bento/internal/sockpair"
	"github.com/kevinji/bento/internal/stage"
)

// Logger is the minimal logging surface bootstrap needs; internal/minilog
// satisfies it.
type Logger interface {
	Debug(format string, arg ...interface{})
	Error(format string, arg ...interface{})
}

// Run drives the child through every state in section 4.7 after
// EnterConfig (the cfg and sock arguments are that state's result). It
// returns only on failure; success ends in execve and never returns.
func Run(cfg *config.Container, sock *sockpair.Pair, log Logger) error {
	if cfg.Hostname != "" {
		if err := unix.Sethostname([]byte(cfg.Hostname)); err != nil {
			return fmt.Errorf("set hostname: %w", err)
		}
	}

	if err := stage.MountRoot(cfg.MountDir); err != nil {
		return fmt.Errorf("mount root: %w", err)
	}
	if err := stage.Populate(cfg.MountDir, cfg.Command, cfg.CommandsToCopy); err != nil {
		return fmt.Errorf("populate root: %w", err)
	}
	if err := stage.SwitchRoot(cfg.MountDir); err != nil {
		return fmt.Errorf("switch root: %w", err)
	}

	createdUserNS := true
	if err := unix.Unshare(unix.CLONE_NEWUSER); err != nil {
		log.Debug("unshare(CLONE_NEWUSER) unavailable, continuing without a new user namespace: %v", err)
		createdUserNS = false
	}
	if err := sockpair.SendBool(sock.Child, createdUserNS); err != nil {
		return fmt.Errorf("send user-namespace bit: %w", err)
	}

	mapped, err := sockpair.RecvBool(sock.Child)
	if err != nil {
		return fmt.Errorf("receive mapping confirmation: %w", err)
	}
	if !mapped {
		return fmt.Errorf("protocol violation: supervisor did not confirm ID mapping")
	}

	if err := applyIdentity(cfg.UID); err != nil {
		return fmt.Errorf("apply identity: %w", err)
	}

	if err := capset.Drop(); err != nil {
		return fmt.Errorf("drop capabilities: %w", err)
	}

	if err := seccomp.Install(); err != nil {
		return fmt.Errorf("install seccomp filter: %w", err)
	}

	if err := unix.Exec(cfg.Command, cfg.Argv, []string{}); err != nil {
		return fmt.Errorf("exec %s: %w", cfg.Command, err)
	}

	// unix.Exec only returns on error.
	return nil
}

// applyIdentity sets the process's group and user identity to uid, used for
// both the GID and UID inside the container by design.
func applyIdentity(uid uint32) error {
	if err := unix.Setgroups([]int{int(uid)}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setresgid(int(uid), int(uid), int(uid)); err != nil {
		return fmt.Errorf("setresgid: %w", err)
	}
	if err := unix.Setresuid(int(uid), int(uid), int(uid)); err != nil {
		return fmt.Errorf("setresuid: %w", err)
	}
	return nil
}
