package bootstrap

import (
	"os"
	"testing"
)

type stubLogger struct {
	debugs []string
	errors []string
}

func (s *stubLogger) Debug(format string, arg ...interface{}) { s.debugs = append(s.debugs, format) }
func (s *stubLogger) Error(format string, arg ...interface{}) { s.errors = append(s.errors, format) }

// TestRunRequiresPrivilegedHost documents that Run performs real mount,
// namespace, and identity syscalls and therefore cannot be exercised as a
// plain unit test; it is covered by the end-to-end scenarios instead.
func TestRunRequiresPrivilegedHost(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("Run requires root and real Linux namespaces; see end-to-end scenarios")
	}
}

func TestApplyIdentityRejectsWithoutPrivilege(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("applyIdentity succeeds as root; this checks the unprivileged failure path")
	}
	if err := applyIdentity(0); err == nil {
		t.Error("expected applyIdentity(0) to fail for an unprivileged caller")
	}
}

func TestLoggerInterfaceSatisfiedByStub(t *testing.T) {
	var log Logger = &stubLogger{}
	log.Debug("hello %s", "world")
	log.Error("oops")
}
