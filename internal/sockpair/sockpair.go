// Package sockpair implements the one-byte boolean handshake that
// synchronizes the supervisor and the cloned child across the
// user-namespace boundary. It is the only cross-process synchronization
// primitive in the system, so its semantics are kept deliberately narrow.
package sockpair

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Pair is a connected datagram socket pair. Ours is one end; Child is the
// descriptor the caller passes to the cloned process, either via
// ExtraFiles or a shared descriptor table.
type Pair struct {
	Ours  *os.File
	Child *os.File
}

// New creates a connected AF_LOCAL/SOCK_DGRAM pair for the handshake.
func New() (*Pair, error) {
	fds, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}

	return &Pair{
		Ours:  os.NewFile(uintptr(fds[0]), "bento-handshake-parent"),
		Child: os.NewFile(uintptr(fds[1]), "bento-handshake-child"),
	}, nil
}

// Close shuts down both ends owned by this side. The child's end, once
// handed off to the clone, is only ever closed here; it is never read from
// or written to again by the supervisor.
func (p *Pair) Close() error {
	var err error
	if e := p.Ours.Close(); e != nil {
		err = e
	}
	if e := p.Child.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// SendBool writes a single byte encoding value: 0x01 for true, 0x00 for
// false. The write is one syscall so there is no notion of a partial
// message.
func SendBool(f *os.File, value bool) error {
	var b [1]byte
	if value {
		b[0] = 1
	}

	n, err := f.Write(b[:])
	if err != nil {
		return fmt.Errorf("send_bool: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("send_bool: short write (%d bytes)", n)
	}
	return nil
}

// RecvBool reads exactly one byte and returns its truthiness: any nonzero
// byte is true.
func RecvBool(f *os.File) (bool, error) {
	var b [1]byte

	n, err := f.Read(b[:])
	if err != nil {
		return false, fmt.Errorf("recv_bool: %w", err)
	}
	if n != 1 {
		return false, fmt.Errorf("recv_bool: short read (%d bytes)", n)
	}
	return b[0] != 0, nil
}
