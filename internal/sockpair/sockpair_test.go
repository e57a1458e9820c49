package sockpair

import "testing"

func TestSendRecvBool(t *testing.T) {
	for _, want := range []bool{true, false} {
		p, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		if err := SendBool(p.Ours, want); err != nil {
			t.Fatalf("SendBool: %v", err)
		}

		got, err := RecvBool(p.Child)
		if err != nil {
			t.Fatalf("RecvBool: %v", err)
		}

		if got != want {
			t.Fatalf("RecvBool() = %v, want %v", got, want)
		}

		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestSendRecvBoolRoundTrip(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if err := SendBool(p.Ours, true); err != nil {
		t.Fatalf("SendBool: %v", err)
	}
	if err := SendBool(p.Child, false); err != nil {
		t.Fatalf("SendBool: %v", err)
	}

	got, err := RecvBool(p.Child)
	if err != nil || got != true {
		t.Fatalf("RecvBool() = %v, %v, want true, nil", got, err)
	}

	got, err = RecvBool(p.Ours)
	if err != nil || got != false {
		t.Fatalf("RecvBool() = %v, %v, want false, nil", got, err)
	}
}
