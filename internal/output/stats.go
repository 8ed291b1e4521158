// SPDX-License-Identifier: MIT
package output

import (
	"math"
	"sync"
)

// welford accumulates a running mean and variance without retaining samples,
// so the clock handler can feed it unboundedly at fixed cost.
type welford struct {
	n    uint64
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

// stdDev returns the Bessel-corrected standard deviation, 0 with fewer than
// two samples.
func (w *welford) stdDev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

func (w *welford) reset() {
	*w = welford{}
}

// TimerStats is a read-only snapshot of the clock generator.
type TimerStats struct {
	Firings        uint64  `json:"firings"`
	ClocksSent     uint64  `json:"clocks_sent"`
	PulsePosition  int     `json:"pulse_position"`
	MeanIntervalUS float64 `json:"mean_interval_us"`
	JitterUS       float64 `json:"jitter_us"`
	MeanHandlerUS  float64 `json:"mean_handler_us"`
	MaxHandlerUS   uint64  `json:"max_handler_us"`
}

// NetworkStats counts datagram outcomes. Failures are counted, never retried
// inline; the next firing tries again naturally.
type NetworkStats struct {
	PacketsSent  uint64 `json:"packets_sent"`
	SendFailures uint64 `json:"send_failures"`
}

// RelayStats counts relay pulse outcomes.
type RelayStats struct {
	Pulses        uint64 `json:"pulses"`
	Rejected      uint64 `json:"rejected"`
	WatchdogTrips uint64 `json:"watchdog_trips"`
}

// statsTracker aggregates clock and network statistics. The clock goroutine
// writes, telemetry readers snapshot; a mutex keeps snapshots consistent.
type statsTracker struct {
	mu sync.Mutex

	firings    uint64
	clocksSent uint64

	interval     welford
	handler      welford
	maxHandlerUS uint64

	packetsSent  uint64
	sendFailures uint64
}

func (t *statsTracker) recordFiring(intervalUS uint64, first bool) {
	t.mu.Lock()
	t.firings++
	if !first {
		t.interval.add(float64(intervalUS))
	}
	t.mu.Unlock()
}

func (t *statsTracker) recordHandler(durationUS uint64) {
	t.mu.Lock()
	t.handler.add(float64(durationUS))
	if durationUS > t.maxHandlerUS {
		t.maxHandlerUS = durationUS
	}
	t.mu.Unlock()
}

func (t *statsTracker) recordSend(err error) {
	t.mu.Lock()
	if err != nil {
		t.sendFailures++
	} else {
		t.packetsSent++
		t.clocksSent++
	}
	t.mu.Unlock()
}

func (t *statsTracker) recordControlSend(err error) {
	t.mu.Lock()
	if err != nil {
		t.sendFailures++
	} else {
		t.packetsSent++
	}
	t.mu.Unlock()
}

func (t *statsTracker) timerSnapshot(pulsePosition int) TimerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TimerStats{
		Firings:        t.firings,
		ClocksSent:     t.clocksSent,
		PulsePosition:  pulsePosition,
		MeanIntervalUS: t.interval.mean,
		JitterUS:       t.interval.stdDev(),
		MeanHandlerUS:  t.handler.mean,
		MaxHandlerUS:   t.maxHandlerUS,
	}
}

func (t *statsTracker) networkSnapshot() NetworkStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return NetworkStats{
		PacketsSent:  t.packetsSent,
		SendFailures: t.sendFailures,
	}
}

func (t *statsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.firings = 0
	t.clocksSent = 0
	t.interval.reset()
	t.handler.reset()
	t.maxHandlerUS = 0
	t.packetsSent = 0
	t.sendFailures = 0
}
