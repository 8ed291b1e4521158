// SPDX-License-Identifier: MIT
//
// Package timing provides the monotonic microsecond time source consumed by
// the detection, tempo, and output subsystems. All engine logic is written
// against the Clock interface; the concrete source is chosen at startup.
package timing

import (
	"sync/atomic"
	"time"
)

// Clock supplies monotonic microsecond timestamps.
//
// Implementations must never return a value smaller than a previously
// returned one, even if the underlying source steps backwards.
type Clock interface {
	// NowUS returns the current timestamp in microseconds.
	NowUS() uint64
}

// SystemClock reads the OS monotonic clock. Rollover protection clamps any
// backward raw reading to last+1 so consumers always observe a strictly
// non-decreasing sequence.
type SystemClock struct {
	start time.Time
	last  atomic.Uint64
}

// NewSystemClock creates a SystemClock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowUS returns microseconds elapsed since the clock was created.
func (c *SystemClock) NowUS() uint64 {
	raw := uint64(time.Since(c.start).Microseconds())
	for {
		last := c.last.Load()
		if raw > last {
			if c.last.CompareAndSwap(last, raw) {
				return raw
			}
			continue
		}
		// Raw reading did not advance. Clamp to last+1 to preserve
		// strict monotonicity across clock-source degradation.
		clamped := last + 1
		if c.last.CompareAndSwap(last, clamped) {
			return clamped
		}
	}
}

// ManualClock is a test clock advanced explicitly by the caller.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock creates a ManualClock starting at startUS.
func NewManualClock(startUS uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(startUS)
	return c
}

// NowUS returns the current manual timestamp.
func (c *ManualClock) NowUS() uint64 {
	return c.now.Load()
}

// Advance moves the clock forward by deltaUS.
func (c *ManualClock) Advance(deltaUS uint64) {
	c.now.Add(deltaUS)
}

// Set jumps the clock to tsUS. Setting a timestamp earlier than the current
// one is allowed in tests that exercise rollover handling downstream.
func (c *ManualClock) Set(tsUS uint64) {
	c.now.Store(tsUS)
}
