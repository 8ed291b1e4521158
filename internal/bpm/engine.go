// SPDX-License-Identifier: MIT
/*
Package bpm implements the tempo estimator: a fixed-capacity history of onset
timestamps, an averaged inter-tap interval with a statistical stability flag,
and half/double-tempo disambiguation.

The engine is fed from a single integration context and is not safe for
concurrent use. Consumers observe it through the Update snapshots delivered to
the registered callback.
*/
package bpm

import (
	"gonum.org/v1/gonum/stat"
)

const (
	// HistoryCapacity bounds the tap ring; the 65th tap evicts the oldest.
	HistoryCapacity = 64

	// Tap intervals outside this range are mechanically impossible or
	// meaninglessly sparse and are rejected without touching state.
	MinTapIntervalUS = 100000  // 600 BPM.
	MaxTapIntervalUS = 2000000 // 30 BPM.

	// SilenceTimeoutUS is how long the history survives without a new tap
	// before CheckTimeout flushes it.
	SilenceTimeoutUS = 3000000

	stableMinTaps = 3
	stableMaxCV   = 5.0 // Coefficient of variation, percent.

	// Tempo ambiguity correction: a run of intervals at ~2x or ~0.5x the
	// established tempo means the performer settled on a half/double feel.
	halfTempoRatio    = 1.8
	doubleTempoRatio  = 0.6
	tempoCorrectRun   = 5
	tempoCorrectMin   = 8 // Taps required before correction engages.
	baselineIntervals = 5 // Oldest intervals anchoring the reference tempo.
)

// Update is an immutable tempo snapshot, emitted once per accepted tap that
// leaves at least two taps resident, and once per timeout flush.
type Update struct {
	BPM         float64 `json:"bpm"`
	Stable      bool    `json:"stable"`
	CV          float64 `json:"cv"`
	TapCount    int     `json:"tap_count"`
	TimestampUS uint64  `json:"timestamp_us"`
}

// Engine derives a BPM estimate from onset timestamps.
type Engine struct {
	taps  [HistoryCapacity]uint64
	head  int // Index of the oldest resident tap.
	count int

	intervals []float64 // Scratch for recompute, no per-tap allocation.

	bpm    float64
	cv     float64
	stable bool

	halfRun   int
	doubleRun int

	lastTapUS uint64
	haveTap   bool

	rejectedCount uint64

	// Single-slot callback, last registration wins.
	updateFn func(Update)
}

// NewEngine creates an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		intervals: make([]float64, 0, HistoryCapacity-1),
	}
}

// OnUpdate registers the tempo listener. At most one listener is active; a
// later registration replaces the earlier one.
func (e *Engine) OnUpdate(fn func(Update)) {
	e.updateFn = fn
}

// AddTap records an onset timestamp. A tap whose interval since the previous
// tap falls outside [MinTapIntervalUS, MaxTapIntervalUS] is rejected without
// mutating any state and without firing the callback.
func (e *Engine) AddTap(tsUS uint64) {
	if e.haveTap {
		interval := tsUS - e.lastTapUS
		if interval < MinTapIntervalUS || interval > MaxTapIntervalUS {
			e.rejectedCount++
			return
		}
	}

	e.push(tsUS)
	e.lastTapUS = tsUS
	e.haveTap = true

	accepted := e.count
	e.recompute(tsUS)

	// A tempo correction collapses the history, so the firing condition
	// uses the count at acceptance time, not the post-recompute count.
	if accepted >= 2 && e.updateFn != nil {
		e.updateFn(Update{
			BPM:         e.bpm,
			Stable:      e.stable,
			CV:          e.cv,
			TapCount:    accepted,
			TimestampUS: tsUS,
		})
	}
}

// CheckTimeout flushes the tap history once SilenceTimeoutUS has elapsed
// since the last tap, so a stale burst never contaminates the next one. The
// last BPM estimate is retained. Returns whether a flush happened.
func (e *Engine) CheckTimeout(nowUS uint64) bool {
	if !e.haveTap || e.count == 0 {
		return false
	}
	if nowUS < e.lastTapUS || nowUS-e.lastTapUS < SilenceTimeoutUS {
		return false
	}

	e.head = 0
	e.count = 0
	e.haveTap = false
	e.stable = false
	e.cv = 0
	e.halfRun = 0
	e.doubleRun = 0

	if e.updateFn != nil {
		e.updateFn(Update{
			BPM:         e.bpm,
			Stable:      false,
			TapCount:    0,
			TimestampUS: nowUS,
		})
	}
	return true
}

// Clear resets the engine to its initial empty state. No event fires.
func (e *Engine) Clear() {
	e.head = 0
	e.count = 0
	e.bpm = 0
	e.cv = 0
	e.stable = false
	e.halfRun = 0
	e.doubleRun = 0
	e.lastTapUS = 0
	e.haveTap = false
	e.rejectedCount = 0
}

// BPM returns the current tempo estimate, 0 with fewer than two taps.
func (e *Engine) BPM() float64 { return e.bpm }

// Stable reports whether the estimate is statistically stable.
func (e *Engine) Stable() bool { return e.stable }

// CV returns the coefficient of variation of the intervals, in percent.
func (e *Engine) CV() float64 { return e.cv }

// TapCount returns the number of resident taps.
func (e *Engine) TapCount() int { return e.count }

// RejectedCount returns the number of taps discarded for an out-of-range
// interval.
func (e *Engine) RejectedCount() uint64 { return e.rejectedCount }

func (e *Engine) push(tsUS uint64) {
	if e.count == HistoryCapacity {
		e.taps[e.head] = tsUS
		e.head = (e.head + 1) % HistoryCapacity
		return
	}
	e.taps[(e.head+e.count)%HistoryCapacity] = tsUS
	e.count++
}

// recompute rederives bpm, stability, and the ambiguity counters from the
// resident taps. Called once per accepted tap.
func (e *Engine) recompute(tsUS uint64) {
	e.intervals = e.intervals[:0]
	for i := 1; i < e.count; i++ {
		prev := e.taps[(e.head+i-1)%HistoryCapacity]
		cur := e.taps[(e.head+i)%HistoryCapacity]
		if cur > prev {
			e.intervals = append(e.intervals, float64(cur-prev))
		}
	}

	if len(e.intervals) == 0 {
		e.bpm = 0
		e.cv = 0
		e.stable = false
		return
	}

	mean := stat.Mean(e.intervals, nil)
	e.bpm = 60000000 / mean

	if e.count >= stableMinTaps && len(e.intervals) >= 2 {
		sd := stat.StdDev(e.intervals, nil)
		e.cv = 100 * sd / mean
		e.stable = e.cv < stableMaxCV
	} else {
		e.cv = 0
		e.stable = false
	}

	e.correctAmbiguity(tsUS)
}

// correctAmbiguity tracks runs of intervals at roughly double or half the
// established tempo. The reference tempo is anchored on the oldest resident
// intervals rather than the running average, which a sustained half-tempo run
// would drag out of the detection band before the run completes.
func (e *Engine) correctAmbiguity(tsUS uint64) {
	if e.count < tempoCorrectMin || len(e.intervals) <= baselineIntervals {
		return
	}

	base := stat.Mean(e.intervals[:baselineIntervals], nil)
	newest := e.intervals[len(e.intervals)-1]
	ratio := newest / base

	switch {
	case ratio >= halfTempoRatio:
		e.halfRun++
		e.doubleRun = 0
	case ratio <= doubleTempoRatio:
		e.doubleRun++
		e.halfRun = 0
	default:
		e.halfRun = 0
		e.doubleRun = 0
	}

	baseBPM := 60000000 / base
	switch {
	case e.halfRun >= tempoCorrectRun:
		e.applyCorrection(baseBPM/2, tsUS)
	case e.doubleRun >= tempoCorrectRun:
		e.applyCorrection(baseBPM*2, tsUS)
	}
}

// applyCorrection locks the corrected tempo in and collapses the history to
// the newest tap, so the mixed-tempo intervals cannot bleed back into the
// average on the next tap.
func (e *Engine) applyCorrection(bpm float64, tsUS uint64) {
	e.bpm = bpm
	e.cv = 0
	e.stable = false
	e.halfRun = 0
	e.doubleRun = 0

	e.taps[0] = tsUS
	e.head = 0
	e.count = 1
}
