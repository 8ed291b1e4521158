// SPDX-License-Identifier: MIT
package detect

import "slices"

// window is a fixed-capacity ring of recent amplitude samples used to derive
// the adaptive threshold and the noise floor. Insertion overwrites the oldest
// entry once the ring is full; min/max and percentile queries only consider
// samples actually collected, so the startup phase is never zero-padded.
type window struct {
	samples []uint16
	scratch []uint16 // Reused by Percentile to avoid per-call allocation.
	next    int
	count   int
}

func newWindow(capacity int) *window {
	return &window{
		samples: make([]uint16, capacity),
		scratch: make([]uint16, capacity),
	}
}

// Push inserts a sample, evicting the oldest once the ring is full.
func (w *window) Push(sample uint16) {
	w.samples[w.next] = sample
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
}

// Len reports how many samples are currently resident.
func (w *window) Len() int {
	return w.count
}

// MinMax scans the resident samples. With an empty ring both results are 0.
func (w *window) MinMax() (min, max uint16) {
	if w.count == 0 {
		return 0, 0
	}
	min, max = w.samples[0], w.samples[0]
	for _, s := range w.samples[:w.count] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// Percentile returns the amplitude at the given percentile (0-100) of the
// resident samples. Used for the 20th-percentile noise-floor estimate.
func (w *window) Percentile(p int) uint16 {
	if w.count == 0 {
		return 0
	}
	scratch := w.scratch[:w.count]
	copy(scratch, w.samples[:w.count])
	slices.Sort(scratch)
	idx := (w.count - 1) * p / 100
	return scratch[idx]
}
