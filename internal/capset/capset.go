// Package capset narrows the calling process's capability bounding set,
// using the same raw capget/capset/prctl syscalls a full-system container
// runtime uses to grant capabilities, turned around to drop a fixed list
// instead.
//
// includes constants derived from:
// 	linux/include/uapi/linux/capability.h
package capset

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

const (
	capChown          = uint(0)
	capDacOverride    = uint(1)
	capDacReadSearch  = uint(2)
	capFowner         = uint(3)
	capFsetid         = uint(4)
	capKill           = uint(5)
	capSetgid         = uint(6)
	capSetuid         = uint(7)
	capSetpcap        = uint(8)
	capLinuxImmutable = uint(9)
	capNetBindService = uint(10)
	capNetBroadcast   = uint(11)
	capNetAdmin       = uint(12)
	capNetRaw         = uint(13)
	capIPCLock        = uint(14)
	capIPCOwner       = uint(15)
	capSysModule      = uint(16)
	capSysRawio       = uint(17)
	capSysChroot      = uint(18)
	capSysPtrace      = uint(19)
	capSysPacct       = uint(20)
	capSysAdmin       = uint(21)
	capSysBoot        = uint(22)
	capSysNice        = uint(23)
	capSysResource    = uint(24)
	capSysTime        = uint(25)
	capSysTtyConfig   = uint(26)
	capMknod          = uint(27)
	capLease          = uint(28)
	capAuditWrite     = uint(29)
	capAuditControl   = uint(30)
	capSetfcap        = uint(31)
	capMacOverride    = uint(32)
	capMacAdmin       = uint(33)
	capSyslog         = uint(34)
	capWakeAlarm      = uint(35)
	capBlockSuspend   = uint(36)
	capAuditRead      = uint(37)
	capLastCap        = capAuditRead
)

// capv3 selects the current (version 3) capget/capset ABI.
const capv3 = 0x20080522

// DropList is the fixed set of capabilities removed from the bounding set
// before exec, by name rather than by bit so callers never have to know the
// numbering.
var DropList = []string{
	"AUDIT_CONTROL",
	"AUDIT_READ",
	"AUDIT_WRITE",
	"BLOCK_SUSPEND",
	"DAC_OVERRIDE",
	"DAC_READ_SEARCH",
	"FSETID",
	"IPC_LOCK",
	"MAC_ADMIN",
	"MAC_OVERRIDE",
	"MKNOD",
	"SETFCAP",
	"SYSLOG",
	"SYS_ADMIN",
	"SYS_BOOT",
	"SYS_MODULE",
	"SYS_NICE",
	"SYS_RAWIO",
	"SYS_RESOURCE",
	"SYS_TIME",
	"WAKE_ALARM",
}

var nameToBit = map[string]uint{
	"AUDIT_CONTROL":   capAuditControl,
	"AUDIT_READ":      capAuditRead,
	"AUDIT_WRITE":     capAuditWrite,
	"BLOCK_SUSPEND":   capBlockSuspend,
	"DAC_OVERRIDE":    capDacOverride,
	"DAC_READ_SEARCH": capDacReadSearch,
	"FSETID":          capFsetid,
	"IPC_LOCK":        capIPCLock,
	"MAC_ADMIN":       capMacAdmin,
	"MAC_OVERRIDE":    capMacOverride,
	"MKNOD":           capMknod,
	"SETFCAP":         capSetfcap,
	"SYSLOG":          capSyslog,
	"SYS_ADMIN":       capSysAdmin,
	"SYS_BOOT":        capSysBoot,
	"SYS_MODULE":      capSysModule,
	"SYS_NICE":        capSysNice,
	"SYS_RAWIO":       capSysRawio,
	"SYS_RESOURCE":    capSysResource,
	"SYS_TIME":        capSysTime,
	"WAKE_ALARM":      capWakeAlarm,
}

type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// Drop removes every capability in DropList from the calling process's
// bounding set and clears its inheritable bit, narrowing what any
// subsequent exec can retain even if the target executable carries file
// capabilities. It must run before exec and has no effect once a new
// program image has replaced the caller's memory.
func Drop() error {
	hdr := capHeader{version: capv3, pid: int32(os.Getpid())}

	var data [2]capData
	if err := capget(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capget: %w", err)
	}

	for _, name := range DropList {
		bit, ok := nameToBit[name]
		if !ok {
			return fmt.Errorf("unknown capability %q", name)
		}

		clearInheritable(&data, bit)

		err := prctl(syscall.PR_CAPBSET_DROP, uintptr(bit), 0, 0, 0)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && errno == syscall.EINVAL {
				// Not supported on this kernel; nothing to drop.
				continue
			}
			return fmt.Errorf("prctl(PR_CAPBSET_DROP, %s): %w", name, err)
		}
	}

	if err := capset(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capset: %w", err)
	}

	return nil
}

func clearInheritable(data *[2]capData, bit uint) {
	if bit <= 31 {
		data[0].inheritable &^= 1 << bit
	} else {
		data[1].inheritable &^= 1 << (bit - 32)
	}
}

func capget(hdr *capHeader, data *capData) error {
	_, _, errno := syscall.Syscall(syscall.SYS_CAPGET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func capset(hdr *capHeader, data *capData) error {
	_, _, errno := syscall.Syscall(syscall.SYS_CAPSET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func prctl(option int, arg2, arg3, arg4, arg5 uintptr) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PRCTL, uintptr(option), arg2, arg3, arg4, arg5, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
