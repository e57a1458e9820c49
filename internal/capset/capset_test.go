package capset

import "testing"

func TestDropListResolvesToKnownBits(t *testing.T) {
	for _, name := range DropList {
		if _, ok := nameToBit[name]; !ok {
			t.Errorf("DropList entry %q has no bit mapping", name)
		}
	}
}

func TestDropListHasNoDuplicates(t *testing.T) {
	seen := map[string]bool{}
	for _, name := range DropList {
		if seen[name] {
			t.Errorf("duplicate entry %q in DropList", name)
		}
		seen[name] = true
	}
}

func TestDropListMatchesSpecSize(t *testing.T) {
	const want = 21
	if len(DropList) != want {
		t.Errorf("len(DropList) = %d, want %d", len(DropList), want)
	}
}

func TestClearInheritableBothWords(t *testing.T) {
	var data [2]capData
	data[0].inheritable = ^uint32(0)
	data[1].inheritable = ^uint32(0)

	clearInheritable(&data, capDacOverride) // bit 1, low word
	clearInheritable(&data, capAuditRead)   // bit 37, high word

	if data[0].inheritable&(1<<capDacOverride) != 0 {
		t.Error("low-word bit not cleared")
	}
	if data[1].inheritable&(1<<(capAuditRead-32)) != 0 {
		t.Error("high-word bit not cleared")
	}
}
