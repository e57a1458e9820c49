// Package seccomp installs the fixed BPF filter that narrows the
// container's syscall surface after capabilities have been dropped.
package seccomp

import (
	"fmt"
	"syscall"
	"unsafe"
)

// prctl/seccomp constants. See linux/include/uapi/linux/seccomp.h and
// linux/include/uapi/linux/filter.h.
const (
	prSetNoNewPrivs = 38
	prSetSeccomp    = 22

	seccompModeFilter = 2
	seccompRetTrap    = 0x00030000
	seccompRetAllow   = 0x7fff0000

	bpfLd   = 0x00
	bpfJmp  = 0x05
	bpfRet  = 0x06
	bpfW    = 0x00
	bpfAbs  = 0x20
	bpfJeq  = 0x10
	bpfJset = 0x40
	bpfK    = 0x00

	auditArchX8664 = 0xc000003e
)

// seccomp_data field offsets (x86_64, little-endian): nr at 0, arch at 4,
// instruction_pointer (8 bytes) at 8, args[0..5] (8 bytes each) from 16.
const (
	offsetNR   = 0
	offsetArch = 4
)

func argLo(n int) uint32 { return uint32(16 + 8*n) }

// Syscall numbers referenced by the fixed rule set (x86_64).
const (
	sysChmod         = 90
	sysFchmod        = 91
	sysFchmodat      = 268
	sysUnshare       = 272
	sysClone         = 56
	sysKeyctl        = 250
	sysAddKey        = 248
	sysRequestKey    = 249
	sysPtrace        = 101
	sysMbind         = 237
	sysMigratePages  = 256
	sysMovePages     = 279
	sysSetMempolicy  = 238
	sysUserfaultfd   = 323
	sysPerfEventOpen = 298
)

// sMode bits tested by the chmod family: S_ISUID | S_ISGID.
const setidBits = 0o4000 | 0o2000

// cloneNewUser is the clone/unshare flag that creates a new user namespace.
const cloneNewUser = 0x10000000

type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

type sockFprog struct {
	Len    uint16
	Filter *sockFilter
}

func stmt(code uint16, k uint32) sockFilter {
	return sockFilter{Code: code, K: k}
}

func jump(code uint16, k uint32, jt, jf uint8) sockFilter {
	return sockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

// unconditionalTraps lists the syscalls that are always denied regardless
// of argument values.
var unconditionalTraps = []uint32{
	sysKeyctl,
	sysAddKey,
	sysRequestKey,
	sysPtrace,
	sysMbind,
	sysMigratePages,
	sysMovePages,
	sysSetMempolicy,
	sysUserfaultfd,
	sysPerfEventOpen,
}

// build assembles the BPF program described in section 6: default allow,
// argument-checked traps on the chmod family and on unshare/clone with
// CLONE_NEWUSER, and unconditional traps on a fixed syscall list.
func build() []sockFilter {
	var f []sockFilter

	// Trap (SIGSYS) any syscall made under an unexpected architecture;
	// this program was never validated against another ABI.
	f = append(f, stmt(bpfLd|bpfW|bpfAbs, offsetArch))
	f = append(f, jump(bpfJmp|bpfJeq|bpfK, auditArchX8664, 1, 0))
	f = append(f, stmt(bpfRet|bpfK, seccompRetTrap))

	f = append(f, stmt(bpfLd|bpfW|bpfAbs, offsetNR))

	argSetidCheck := func(nr uint32, argIdx int) {
		// if (syscall == nr) goto checkArg; else goto next
		f = append(f, jump(bpfJmp|bpfJeq|bpfK, nr, 0, 3))
		f = append(f, stmt(bpfLd|bpfW|bpfAbs, argLo(argIdx)))
		f = append(f, jump(bpfJmp|bpfJset|bpfK, setidBits, 0, 1))
		f = append(f, stmt(bpfRet|bpfK, seccompRetTrap))
		// Reload the syscall number for the next comparison.
		f = append(f, stmt(bpfLd|bpfW|bpfAbs, offsetNR))
	}
	argSetidCheck(sysChmod, 1)
	argSetidCheck(sysFchmod, 1)
	argSetidCheck(sysFchmodat, 2)

	newUserCheck := func(nr uint32) {
		f = append(f, jump(bpfJmp|bpfJeq|bpfK, nr, 0, 3))
		f = append(f, stmt(bpfLd|bpfW|bpfAbs, argLo(0)))
		f = append(f, jump(bpfJmp|bpfJset|bpfK, cloneNewUser, 0, 1))
		f = append(f, stmt(bpfRet|bpfK, seccompRetTrap))
		f = append(f, stmt(bpfLd|bpfW|bpfAbs, offsetNR))
	}
	newUserCheck(sysUnshare)
	newUserCheck(sysClone)

	for _, nr := range unconditionalTraps {
		f = append(f, jump(bpfJmp|bpfJeq|bpfK, nr, 0, 1))
		f = append(f, stmt(bpfRet|bpfK, seccompRetTrap))
	}

	f = append(f, stmt(bpfRet|bpfK, seccompRetAllow))

	return f
}

// Install assembles and activates the fixed filter: PR_SET_NO_NEW_PRIVS
// first (required before an unprivileged process may install a filter),
// then PR_SET_SECCOMP with the assembled program.
func Install() error {
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}

	filter := build()
	prog := sockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetSeccomp, seccompModeFilter, uintptr(unsafe.Pointer(&prog)))
	if errno != 0 {
		return fmt.Errorf("prctl(PR_SET_SECCOMP): %w", errno)
	}

	return nil
}
