package cgroup

import "testing"

func TestSharesToWeight(t *testing.T) {
	cases := []struct {
		shares int
		want   int
	}{
		{2, 1},
		{0, 1},
		{250, 10},
		{1024, 39},
		{262144, 10000},
	}

	for _, c := range cases {
		if got := sharesToWeight(c.shares); got != c.want {
			t.Errorf("sharesToWeight(%d) = %d, want %d", c.shares, got, c.want)
		}
	}
}
