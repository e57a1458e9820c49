// Package supervisor drives the host-side state machine that builds the
// cgroup, clones the child, brokers the user-namespace handshake, and tears
// everything down once the child has exited.
package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/pkg/errors"

	"github.com/kevinji/bento/internal/cgroup"
	"github.com/kevinji/bento/internal/config"
	"github.com/kevinji/bento/internal/idmap"
	"github.com/kevinji/bento/internal/sockpair"
)

// ChildEnv is the environment variable that carries the JSON-encoded
// ContainerConfig to the re-exec'd child process.
const ChildEnv = "BENTO_CHILD_CONFIG"

// ChildArg is the argv[1] marker that tells main it is running as the
// cloned child rather than as the initial invocation.
const ChildArg = "__bento_child__"

// cloneFlags creates new cgroup, IPC, network, mount, PID, and UTS
// namespaces. The user namespace is deliberately absent here: the child
// creates it itself, after clone, so the supervisor can write the ID maps
// once the child has entered but before it changes identity.
//
// SIGCHLD is OR'd in explicitly, matching how clone(2) expects its exit
// signal encoded in the low byte of the flags word; without it the
// supervisor's eventual Wait never observes the child's exit.
const cloneFlags = syscall.CLONE_NEWCGROUP |
	syscall.CLONE_NEWIPC |
	syscall.CLONE_NEWNET |
	syscall.CLONE_NEWNS |
	syscall.CLONE_NEWPID |
	syscall.CLONE_NEWUTS |
	syscall.SIGCHLD

// Logger is the minimal logging surface the supervisor needs.
type Logger interface {
	Debug(format string, arg ...interface{})
	Error(format string, arg ...interface{})
}

// Container is the supervisor-local handle on a running launch: the child
// PID, the supervisor's end of the handshake socket, and the cgroup.
type Container struct {
	cmd   *exec.Cmd
	pid   int
	sock  *sockpair.Pair
	group *cgroup.Group
	log   Logger
}

// New runs the supervisor state machine through Clone: it builds the
// cgroup, creates the socket pair, and launches the child by re-exec'ing
// the running binary with the child marker argument and the handshake
// socket passed as an inherited file descriptor.
func New(cfg *config.Container, cgroupRoot string, log Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	group, err := cgroup.Build(cgroupRoot)
	if err != nil {
		return nil, fmt.Errorf("build cgroup: %w", err)
	}

	sock, err := sockpair.New()
	if err != nil {
		group.Destroy()
		return nil, fmt.Errorf("create handshake socket pair: %w", err)
	}

	encoded, err := json.Marshal(cfg)
	if err != nil {
		sock.Close()
		group.Destroy()
		return nil, fmt.Errorf("encode config: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		sock.Close()
		group.Destroy()
		return nil, fmt.Errorf("resolve own executable: %w", err)
	}

	cmd := &exec.Cmd{
		Path:       self,
		Args:       []string{self, ChildArg},
		Env:        []string{ChildEnv + "=" + string(encoded)},
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		ExtraFiles: []*os.File{sock.Child},
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: uintptr(cloneFlags),
		},
	}

	if err := cmd.Start(); err != nil {
		sock.Close()
		group.Destroy()
		return nil, fmt.Errorf("start child: %w", err)
	}

	if err := group.Attach(cmd.Process.Pid); err != nil {
		log.Error("attach child to cgroup: %v", err)
	}

	c := &Container{
		cmd:   cmd,
		pid:   cmd.Process.Pid,
		sock:  sock,
		group: group,
		log:   log,
	}
	return c, nil
}

// PID returns the cloned child's process id.
func (c *Container) PID() int { return c.pid }

// Handshake performs AwaitUserNS through ReleaseChild: it receives the
// child's user-namespace bit, writes the ID maps if the child created one,
// and releases the child to continue into ApplyIdentity.
func (c *Container) Handshake(uid uint32) error {
	createdUserNS, err := sockpair.RecvBool(c.sock.Ours)
	if err != nil {
		return fmt.Errorf("receive user-namespace bit: %w", err)
	}

	if createdUserNS {
		if err := c.writeMaps(uid); err != nil {
			return fmt.Errorf("write id maps: %w", err)
		}
	} else {
		c.log.Debug("child did not create a user namespace; skipping id-map writes")
	}

	if err := sockpair.SendBool(c.sock.Ours, true); err != nil {
		return fmt.Errorf("release child: %w", err)
	}

	return nil
}

func (c *Container) writeMaps(uid uint32) error {
	login, group := resolveNames(uid)

	uidMapping, ok, err := idmap.ReadSubUID(uid, login)
	if err != nil {
		return fmt.Errorf("read subuid: %w", err)
	}
	if ok {
		if err := idmap.WriteUIDMap(c.pid, uidMapping); err != nil {
			return fmt.Errorf("write uid_map: %w", err)
		}
	} else {
		c.log.Debug("no /etc/subuid entry for uid %d; skipping uid_map write", uid)
	}

	gidMapping, ok, err := idmap.ReadSubGID(uid, group)
	if err != nil {
		return fmt.Errorf("read subgid: %w", err)
	}
	if ok {
		if err := idmap.WriteGIDMap(c.pid, gidMapping); err != nil {
			return fmt.Errorf("write gid_map: %w", err)
		}
	} else {
		c.log.Debug("no /etc/subgid entry for uid %d; skipping gid_map write", uid)
	}

	return nil
}

// resolveNames looks up the invoking uid's login and primary group names,
// so readTable's selector match can try both the numeric id and the name as
// section 4.2 requires. Lookup failure is not fatal: it just falls back to
// a numeric-only match.
func resolveNames(uid uint32) (login, group string) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", ""
	}

	login = u.Username

	if g, err := user.LookupGroupId(u.Gid); err == nil {
		group = g.Name
	}

	return login, group
}

// Wait blocks until the child exits. Its own exit code is logged but does
// not poison the supervisor's orchestration result.
func (c *Container) Wait() error {
	err := c.cmd.Wait()
	if err != nil {
		c.log.Error("child exited abnormally: %v", err)
	}
	return nil
}

// Destroy shuts down the socket pair and tears down the cgroup. It always
// runs, even when a prior step failed; any error encountered here wraps
// around that pre-existing error rather than replacing it.
func (c *Container) Destroy(prior error) error {
	if err := c.sock.Close(); err != nil {
		prior = wrap(prior, "close handshake socket", err)
	}

	if err := c.group.Destroy(); err != nil {
		prior = wrap(prior, "destroy cgroup", err)
	}

	return prior
}

func wrap(prior error, msg string, err error) error {
	if prior == nil {
		return errors.Wrap(err, msg)
	}
	return errors.Wrap(prior, fmt.Sprintf("%s: %v", msg, err))
}
