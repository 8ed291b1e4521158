// SPDX-License-Identifier: MIT
package detect

import (
	"testing"

	"clapsync/internal/config"
	"clapsync/pkg/synth"
)

const sampleStepUS = 125 // 8 kHz envelope rate.

// runSamples feeds samples at a fixed timestamp step and collects the onsets.
// It returns the events and the timestamp one step past the last sample.
func runSamples(d *Detector, samples []uint16, startUS, stepUS uint64) ([]OnsetEvent, uint64) {
	var events []OnsetEvent
	ts := startUS
	for _, s := range samples {
		if ev, ok := d.ProcessSample(s, ts); ok {
			events = append(events, ev)
		}
		ts += stepUS
	}
	return events, ts
}

func defaultDetector() *Detector {
	return NewDetector(config.NewConfig().Detect)
}

func TestConstantInputNeverTriggers(t *testing.T) {
	d := defaultDetector()

	events, _ := runSamples(d, synth.Constant(1500, 500), 1000, sampleStepUS)

	if len(events) != 0 {
		t.Fatalf("constant input produced %d onsets, want 0", len(events))
	}
	// With zero signal range the threshold collapses onto the amplitude
	// itself, so the margin keeps the detector idle.
	if got := d.Threshold(); got != 1500 {
		t.Errorf("threshold: got %d, want 1500", got)
	}
	if got := d.State(); got != StateIdle {
		t.Errorf("state: got %v, want idle", got)
	}
}

func TestSingleClapEmitsOneOnset(t *testing.T) {
	d := defaultDetector()

	_, ts := runSamples(d, synth.Constant(100, 100), 1000, sampleStepUS)
	events, _ := runSamples(d, synth.Clap(100, 3000, 8, 40), ts, sampleStepUS)

	if len(events) != 1 {
		t.Fatalf("got %d onsets, want 1", len(events))
	}
	ev := events[0]
	if ev.Amplitude != 3000 {
		t.Errorf("amplitude: got %d, want 3000", ev.Amplitude)
	}
	if ev.IsKick {
		t.Errorf("fast rise (%d us) classified as kick", ev.RiseTimeUS)
	}
	if ev.RiseTimeUS == 0 || ev.RiseTimeUS > config.DefaultKickRiseTimeUS {
		t.Errorf("rise time: got %d us, want (0, %d]", ev.RiseTimeUS, uint64(config.DefaultKickRiseTimeUS))
	}
	if ev.Clipped {
		t.Error("unclipped clap reported as clipped")
	}
	if got := d.OnsetCount(); got != 1 {
		t.Errorf("onset count: got %d, want 1", got)
	}
}

func TestSlowRiseClassifiedAsKick(t *testing.T) {
	d := defaultDetector()

	_, ts := runSamples(d, synth.Constant(100, 100), 1000, sampleStepUS)

	// Widely spaced samples stretch the rise past the kick boundary.
	steps := []struct {
		amp   uint16
		gapUS uint64
	}{
		{1000, 0},
		{2000, 3000},
		{3000, 3000},
		{2500, 3000}, // Falling sample confirms the peak.
	}
	var events []OnsetEvent
	for _, s := range steps {
		ts += s.gapUS
		if ev, ok := d.ProcessSample(s.amp, ts); ok {
			events = append(events, ev)
		}
	}

	if len(events) != 1 {
		t.Fatalf("got %d onsets, want 1", len(events))
	}
	ev := events[0]
	if !ev.IsKick {
		t.Errorf("rise of %d us not classified as kick", ev.RiseTimeUS)
	}
	if ev.RiseTimeUS != 9000 {
		t.Errorf("rise time: got %d us, want 9000", ev.RiseTimeUS)
	}
}

func TestDebounceSuppressesCloseOnsets(t *testing.T) {
	d := defaultDetector()

	_, ts := runSamples(d, synth.Constant(100, 100), 1000, sampleStepUS)

	clap := synth.Clap(100, 3000, 8, 40)
	events, ts := runSamples(d, clap, ts, sampleStepUS)
	if len(events) != 1 {
		t.Fatalf("first clap: got %d onsets, want 1", len(events))
	}

	// Second clap lands entirely inside the 50 ms dead-time.
	events, ts = runSamples(d, clap, ts, sampleStepUS)
	if len(events) != 0 {
		t.Fatalf("clap inside debounce emitted %d onsets, want 0", len(events))
	}

	// Quiet interval long enough to expire the debounce and flush the
	// window back to baseline statistics.
	_, ts = runSamples(d, synth.Constant(100, 500), ts, sampleStepUS)

	events, _ = runSamples(d, clap, ts, sampleStepUS)
	if len(events) != 1 {
		t.Fatalf("clap after debounce: got %d onsets, want 1", len(events))
	}
	if got := d.OnsetCount(); got != 2 {
		t.Errorf("onset count: got %d, want 2", got)
	}
}

func TestWeakRiseRejected(t *testing.T) {
	d := defaultDetector()

	_, ts := runSamples(d, synth.Constant(100, 100), 1000, sampleStepUS)

	// Arms the detector but only rises 100 counts above the arming sample,
	// below the minimum signal amplitude.
	events, _ := runSamples(d, []uint16{600, 700, 400}, ts, sampleStepUS)

	if len(events) != 0 {
		t.Fatalf("weak rise emitted %d onsets, want 0", len(events))
	}
	if got := d.RejectedCount(); got != 1 {
		t.Errorf("rejected count: got %d, want 1", got)
	}
	if got := d.State(); got != StateIdle {
		t.Errorf("state after rejection: got %v, want idle", got)
	}
}

func TestClippedPlateauEmitsSingleOnset(t *testing.T) {
	d := defaultDetector()

	_, ts := runSamples(d, synth.Constant(100, 100), 1000, sampleStepUS)

	plateau := append([]uint16{2000}, synth.Constant(4095, 20)...)
	plateau = append(plateau, synth.Clap(100, 3000, 1, 40)[1:]...)
	events, _ := runSamples(d, plateau, ts, sampleStepUS)

	if len(events) != 1 {
		t.Fatalf("clipped plateau emitted %d onsets, want 1", len(events))
	}
	ev := events[0]
	if !ev.Clipped {
		t.Error("onset at clipping ceiling not flagged as clipped")
	}
	if ev.Amplitude != 4095 {
		t.Errorf("amplitude: got %d, want 4095", ev.Amplitude)
	}
}

func TestOutOfRangeAmplitudeClamped(t *testing.T) {
	d := defaultDetector()

	// Values above the 12-bit ceiling are clamped, not rejected, so the
	// threshold reflects the ceiling rather than garbage.
	d.ProcessSample(60000, 1000)
	if _, max := d.win.MinMax(); max != config.MaxAmplitude {
		t.Errorf("window max: got %d, want %d", max, config.MaxAmplitude)
	}
}

func TestGainStepsDownOnClipping(t *testing.T) {
	d := defaultDetector()
	if got := d.Gain(); got != Gain50DB {
		t.Fatalf("startup gain: got %v, want 50 dB", got)
	}

	d.ProcessSample(4095, 1000)
	if got := d.Gain(); got != Gain40DB {
		t.Errorf("gain after clipping: got %v, want 40 dB", got)
	}

	// Already at the bottom: further clipping cannot step lower.
	d.ProcessSample(4095, 2000)
	if got := d.Gain(); got != Gain40DB {
		t.Errorf("gain at floor: got %v, want 40 dB", got)
	}
}

func TestGainStepsUpAfterSustainedWeakSignal(t *testing.T) {
	d := defaultDetector()

	// Fill the window with a weak signal, then keep it weak well past the
	// settling delay. 100 ms per sample covers 5 s in 50 samples.
	runSamples(d, synth.Constant(300, 100), 1000, 100000)
	if got := d.Gain(); got != Gain50DB {
		t.Fatalf("gain before delay elapsed: got %v, want 50 dB", got)
	}

	runSamples(d, synth.Constant(300, 60), 1000+100*100000, 100000)
	if got := d.Gain(); got != Gain60DB {
		t.Errorf("gain after sustained weak signal: got %v, want 60 dB", got)
	}
}

func TestNoiseFloorTracksPercentile(t *testing.T) {
	d := defaultDetector()

	runSamples(d, synth.Constant(1000, 32), 1000, sampleStepUS)
	if got := d.NoiseFloor(); got != 1000 {
		t.Errorf("noise floor: got %d, want 1000", got)
	}
}

func TestNoiseFloorGateBlocksArming(t *testing.T) {
	cfg := config.NewConfig().Detect
	cfg.MinSignalAmplitude = 2000
	cfg.NoiseFloorEnforce = true
	gated := NewDetector(cfg)

	cfg.NoiseFloorEnforce = false
	open := NewDetector(cfg)

	// Spike clears the adaptive threshold but not noise floor + minimum
	// amplitude (1000 + 2000).
	_, ts := runSamples(gated, synth.Constant(1000, 100), 1000, sampleStepUS)
	runSamples(open, synth.Constant(1000, 100), 1000, sampleStepUS)

	gated.ProcessSample(2500, ts)
	open.ProcessSample(2500, ts)

	if got := gated.State(); got != StateIdle {
		t.Errorf("gated detector armed below noise gate: state %v", got)
	}
	if got := open.State(); got != StateRising {
		t.Errorf("ungated detector did not arm: state %v", got)
	}
}

func TestTelemetryCadence(t *testing.T) {
	d := defaultDetector()

	var snaps []Telemetry
	d.OnTelemetry(func(tm Telemetry) { snaps = append(snaps, tm) })

	// Two seconds of samples at 8 kHz: one snapshot at the first sample,
	// then one per 500 ms.
	runSamples(d, synth.Constant(1000, 16000), 1000, sampleStepUS)

	if len(snaps) != 4 {
		t.Fatalf("got %d telemetry snapshots, want 4", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if delta := snaps[i].TimestampUS - snaps[i-1].TimestampUS; delta < telemetryIntervalUS {
			t.Errorf("snapshot %d only %d us after previous", i, delta)
		}
	}
	last := snaps[len(snaps)-1]
	if last.Amplitude != 1000 || last.Threshold != 1000 {
		t.Errorf("snapshot contents: amplitude=%d threshold=%d, want 1000/1000", last.Amplitude, last.Threshold)
	}
	if last.State != "idle" {
		t.Errorf("snapshot state: got %q, want idle", last.State)
	}
}
