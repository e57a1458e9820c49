package config

import "testing"

func TestValidate(t *testing.T) {
	c := &Container{
		Command:  "/bin/true",
		Argv:     []string{"/bin/true"},
		UID:      1000,
		MountDir: "/tmp/c1",
	}

	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := &Container{Command: "/bin/true", Argv: nil, MountDir: "/tmp/c1"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for empty argv")
	}

	mismatch := &Container{Command: "/bin/true", Argv: []string{"/bin/false"}, MountDir: "/tmp/c1"}
	if err := mismatch.Validate(); err == nil {
		t.Fatal("expected error for argv[0] != command")
	}
}

func TestCopyIsDeep(t *testing.T) {
	c := &Container{
		Command:        "/bin/true",
		Argv:           []string{"/bin/true", "-x"},
		CommandsToCopy: []string{"/bin/ls"},
	}

	cp := c.Copy()
	cp.Argv[0] = "mutated"
	cp.CommandsToCopy[0] = "mutated"

	if c.Argv[0] != "/bin/true" {
		t.Fatal("Copy aliased Argv")
	}
	if c.CommandsToCopy[0] != "/bin/ls" {
		t.Fatal("Copy aliased CommandsToCopy")
	}
}

func TestDependencies(t *testing.T) {
	c := &Container{
		Command:        "/bin/true",
		Argv:           []string{"/bin/true"},
		CommandsToCopy: []string{"/bin/ls", "/bin/cat"},
	}

	deps := c.Dependencies()
	want := []string{"/bin/true", "/bin/ls", "/bin/cat"}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want %v", deps, want)
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Fatalf("got %v, want %v", deps, want)
		}
	}
}
