package supervisor

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapWithNoPriorError(t *testing.T) {
	err := wrap(nil, "close handshake socket", errors.New("boom"))
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not mention underlying cause", err.Error())
	}
}

func TestWrapPreservesPriorError(t *testing.T) {
	prior := errors.New("child exited non-zero")
	err := wrap(prior, "destroy cgroup", errors.New("device busy"))

	if !strings.Contains(err.Error(), "child exited non-zero") {
		t.Errorf("wrapped error %q lost the prior error", err.Error())
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Errorf("wrapped error %q lost the new error", err.Error())
	}
}

func TestPIDReflectsConstructedContainer(t *testing.T) {
	c := &Container{pid: 4242}
	if c.PID() != 4242 {
		t.Errorf("PID() = %d, want 4242", c.PID())
	}
}
