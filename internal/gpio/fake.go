// SPDX-License-Identifier: MIT
package gpio

import "sync"

// FakeDriver is a test double that records every level transition.
type FakeDriver struct {
	mu sync.Mutex

	// Transitions records each Set call in order.
	Transitions []bool

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set().
	SetError error
}

// NewFakeDriver creates a FakeDriver starting de-energized.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Set records the requested level.
func (f *FakeDriver) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Transitions = append(f.Transitions, on)
	return nil
}

// On reports the most recently set level.
func (f *FakeDriver) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Transitions) == 0 {
		return false
	}
	return f.Transitions[len(f.Transitions)-1]
}

// History returns a copy of the recorded transitions.
func (f *FakeDriver) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.Transitions))
	copy(out, f.Transitions)
	return out
}

// Close forces the level off and marks the driver closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset discards the recorded transitions.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = nil
	f.Closed = false
}

var _ Driver = (*FakeDriver)(nil)
