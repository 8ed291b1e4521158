// SPDX-License-Identifier: MIT
package output

import (
	"errors"
	"math"
	"testing"
)

func TestWelfordMatchesDirectComputation(t *testing.T) {
	samples := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	var w welford
	for _, s := range samples {
		w.add(s)
	}

	if got := w.mean; math.Abs(got-5) > 1e-9 {
		t.Errorf("mean: got %f, want 5", got)
	}
	// Sample variance of the set is 32/7.
	want := math.Sqrt(32.0 / 7.0)
	if got := w.stdDev(); math.Abs(got-want) > 1e-9 {
		t.Errorf("stddev: got %f, want %f", got, want)
	}
}

func TestWelfordFewSamples(t *testing.T) {
	var w welford
	if got := w.stdDev(); got != 0 {
		t.Errorf("empty stddev: got %f, want 0", got)
	}
	w.add(42)
	if got := w.stdDev(); got != 0 {
		t.Errorf("single-sample stddev: got %f, want 0", got)
	}
	if got := w.mean; got != 42 {
		t.Errorf("single-sample mean: got %f, want 42", got)
	}
}

func TestWelfordReset(t *testing.T) {
	var w welford
	w.add(1)
	w.add(100)
	w.reset()
	if w.n != 0 || w.mean != 0 || w.stdDev() != 0 {
		t.Errorf("after reset: %+v", w)
	}
}

func TestStatsTrackerSnapshots(t *testing.T) {
	var tr statsTracker

	tr.recordFiring(0, true)
	tr.recordFiring(20833, false)
	tr.recordFiring(20833, false)
	tr.recordSend(nil)
	tr.recordSend(errors.New("send failed"))
	tr.recordControlSend(nil)
	tr.recordHandler(120)
	tr.recordHandler(80)

	timer := tr.timerSnapshot(7)
	if timer.Firings != 3 || timer.ClocksSent != 1 || timer.PulsePosition != 7 {
		t.Errorf("timer snapshot: %+v", timer)
	}
	if timer.MeanIntervalUS != 20833 || timer.JitterUS != 0 {
		t.Errorf("interval stats: mean=%f jitter=%f", timer.MeanIntervalUS, timer.JitterUS)
	}
	if timer.MaxHandlerUS != 120 || timer.MeanHandlerUS != 100 {
		t.Errorf("handler stats: mean=%f max=%d", timer.MeanHandlerUS, timer.MaxHandlerUS)
	}

	net := tr.networkSnapshot()
	if net.PacketsSent != 2 || net.SendFailures != 1 {
		t.Errorf("network snapshot: %+v", net)
	}

	tr.reset()
	if tr.timerSnapshot(0).Firings != 0 || tr.networkSnapshot().PacketsSent != 0 {
		t.Error("reset did not clear counters")
	}
}
