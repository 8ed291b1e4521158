// SPDX-License-Identifier: MIT
package detect

import "testing"

func TestWindowStartupUsesOnlyCollectedSamples(t *testing.T) {
	w := newWindow(100)

	w.Push(1000)
	min, max := w.MinMax()
	if min != 1000 || max != 1000 {
		t.Errorf("single sample: got min=%d max=%d, want 1000/1000", min, max)
	}

	w.Push(3000)
	min, max = w.MinMax()
	if min != 1000 || max != 3000 {
		t.Errorf("two samples: got min=%d max=%d, want 1000/3000", min, max)
	}
	if w.Len() != 2 {
		t.Errorf("Len: got %d, want 2", w.Len())
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := newWindow(4)
	for _, s := range []uint16{10, 20, 30, 40} {
		w.Push(s)
	}

	// Fifth push evicts the 10.
	w.Push(50)
	min, max := w.MinMax()
	if min != 20 || max != 50 {
		t.Errorf("after wrap: got min=%d max=%d, want 20/50", min, max)
	}
	if w.Len() != 4 {
		t.Errorf("Len after wrap: got %d, want 4", w.Len())
	}
}

func TestWindowPercentile(t *testing.T) {
	w := newWindow(10)
	for i := uint16(1); i <= 10; i++ {
		w.Push(i * 100)
	}

	tests := []struct {
		p    int
		want uint16
	}{
		{0, 100},
		{20, 200},
		{50, 500},
		{100, 1000},
	}
	for _, tt := range tests {
		if got := w.Percentile(tt.p); got != tt.want {
			t.Errorf("Percentile(%d): got %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestWindowEmpty(t *testing.T) {
	w := newWindow(8)
	if min, max := w.MinMax(); min != 0 || max != 0 {
		t.Errorf("empty MinMax: got %d/%d, want 0/0", min, max)
	}
	if got := w.Percentile(50); got != 0 {
		t.Errorf("empty Percentile: got %d, want 0", got)
	}
}
