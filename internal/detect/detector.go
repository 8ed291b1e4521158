// SPDX-License-Identifier: MIT
/*
Package detect implements the onset detection engine: an adaptive-threshold
envelope detector with a rise/fall state machine, kick/clap discrimination by
rise time, and automatic gain-level tracking.

The detector consumes rectified amplitude samples (12-bit domain, 0-4095) from
a single sampling context. ProcessSample never blocks and performs bounded
work per call; all buffers are fixed-capacity and allocated up front.
*/
package detect

import (
	"clapsync/internal/config"
)

// State identifies the detection state machine position.
type State uint8

const (
	// StateIdle monitors for a threshold crossing.
	StateIdle State = iota
	// StateRising tracks the envelope peak after a crossing.
	StateRising
	// StateDebounce suppresses re-triggering after an emitted onset.
	StateDebounce
)

// String returns the state name for logs and telemetry.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRising:
		return "rising"
	case StateDebounce:
		return "debounce"
	default:
		return "unknown"
	}
}

// GainLevel models the microphone preamp gain step. The detector only tracks
// the level; applying it to hardware is the capture layer's concern.
type GainLevel uint8

const (
	Gain40DB GainLevel = iota // Lowest sensitivity, clipping prevention.
	Gain50DB                  // Medium sensitivity (startup default).
	Gain60DB                  // Highest sensitivity for quiet rooms.
)

// Gain-tracking constants: clipping steps the level down immediately, a
// sustained weak signal steps it back up after a settling delay.
const (
	weakSignalThreshold = 500     // Window max below this counts as weak.
	gainIncreaseDelayUS = 5000000 // 5 s between automatic gain increases.
	clippingCeiling     = config.DefaultClippingThreshold

	noiseFloorPercentile = 20
	telemetryIntervalUS  = 500000 // 500 ms between telemetry snapshots.
)

// OnsetEvent is an immutable record of one detected percussive onset.
type OnsetEvent struct {
	TimestampUS uint64    // When the envelope began falling.
	Amplitude   uint16    // Peak amplitude of the rise.
	RiseTimeUS  uint64    // Threshold crossing to peak duration.
	IsKick      bool      // Rise slower than the kick boundary.
	Threshold   uint16    // Adaptive threshold at emission time.
	Gain        GainLevel // Gain level at emission time.
	Clipped     bool      // Peak reached the clipping ceiling.
}

// Telemetry is a read-only snapshot of detector internals, published every
// 500 ms for the MQTT/WebSocket layers.
type Telemetry struct {
	TimestampUS   uint64    `json:"timestamp_us"`
	Amplitude     uint16    `json:"amplitude"`
	WindowMin     uint16    `json:"window_min"`
	WindowMax     uint16    `json:"window_max"`
	Threshold     uint16    `json:"threshold"`
	NoiseFloor    uint16    `json:"noise_floor"`
	State         string    `json:"state"`
	Gain          GainLevel `json:"gain"`
	OnsetCount    uint64    `json:"onset_count"`
	RejectedCount uint64    `json:"rejected_count"`
	ClippedCount  uint64    `json:"clipped_count"`
}

// Detector is the onset detection engine. It is not safe for concurrent use;
// one sampling context owns it for its entire lifetime.
type Detector struct {
	cfg config.DetectConfig

	win        *window
	state      State
	threshold  uint16
	noiseFloor uint16

	// Rise tracking.
	riseStartUS   uint64
	riseStartVal  uint16
	risePeakVal   uint16
	risePeakClip  bool
	lastOnsetUS   uint64
	sinceNoiseUpd int

	// Gain tracking.
	gain         GainLevel
	lastGainUS   uint64
	haveGainTime bool

	// Counters.
	onsetCount    uint64
	rejectedCount uint64
	clippedCount  uint64

	// Telemetry: single-slot callback, last registration wins.
	telemetryFn     func(Telemetry)
	lastTelemetryUS uint64
}

// NewDetector creates a Detector with the given tuning. Zero-valued fields in
// cfg fall back to package defaults so partially filled configs stay usable.
func NewDetector(cfg config.DetectConfig) *Detector {
	if cfg.WindowSize <= 1 {
		cfg.WindowSize = config.DefaultWindowSize
	}
	if cfg.ThresholdFactor <= 0 {
		cfg.ThresholdFactor = config.DefaultThresholdFactor
	}
	if cfg.DebouncePeriodUS == 0 {
		cfg.DebouncePeriodUS = config.DefaultDebouncePeriodUS
	}
	if cfg.KickRiseTimeUS == 0 {
		cfg.KickRiseTimeUS = config.DefaultKickRiseTimeUS
	}
	if cfg.NoiseUpdateInterval <= 0 {
		cfg.NoiseUpdateInterval = config.DefaultNoiseUpdateInterval
	}
	return &Detector{
		cfg:  cfg,
		win:  newWindow(cfg.WindowSize),
		gain: Gain50DB,
	}
}

// OnTelemetry registers the telemetry listener. At most one listener is
// active; a later registration replaces the earlier one.
func (d *Detector) OnTelemetry(fn func(Telemetry)) {
	d.telemetryFn = fn
}

// ProcessSample feeds one amplitude reading into the detector and reports
// whether it completed an onset. Out-of-range amplitudes are clamped, never
// treated as faults.
func (d *Detector) ProcessSample(amplitude uint16, tsUS uint64) (OnsetEvent, bool) {
	if amplitude > config.MaxAmplitude {
		amplitude = config.MaxAmplitude
	}

	clipped := amplitude >= clippingCeiling
	if clipped {
		d.clippedCount++
	}

	d.win.Push(amplitude)
	min, max := d.win.MinMax()
	d.threshold = uint16(d.cfg.ThresholdFactor*float64(max-min)) + min

	d.sinceNoiseUpd++
	if d.sinceNoiseUpd >= d.cfg.NoiseUpdateInterval {
		d.noiseFloor = d.win.Percentile(noiseFloorPercentile)
		d.sinceNoiseUpd = 0
	}

	event, emitted := d.step(amplitude, tsUS, clipped)

	d.updateGain(amplitude, max, tsUS)
	d.publishTelemetry(amplitude, min, max, tsUS)

	return event, emitted
}

// step advances the rise/fall state machine by one sample.
func (d *Detector) step(amplitude uint16, tsUS uint64, clipped bool) (OnsetEvent, bool) {
	switch d.state {
	case StateIdle:
		armed := amplitude > d.threshold+d.cfg.ThresholdMargin
		if armed && d.cfg.NoiseFloorEnforce {
			armed = amplitude > d.noiseFloor+d.cfg.MinSignalAmplitude
		}
		if armed {
			d.state = StateRising
			d.riseStartUS = tsUS
			d.riseStartVal = amplitude
			d.risePeakVal = amplitude
			d.risePeakClip = clipped
		}

	case StateRising:
		if amplitude > d.risePeakVal {
			d.risePeakVal = amplitude
			d.risePeakClip = clipped
			break
		}
		if amplitude < d.risePeakVal {
			// Envelope started falling: the peak is confirmed. A clipped
			// plateau stays in this state until the true signal decays, so
			// sustained clipping cannot emit more than one onset.
			riseTime := tsUS - d.riseStartUS
			if d.risePeakVal-d.riseStartVal < d.cfg.MinSignalAmplitude {
				d.rejectedCount++
				d.state = StateIdle
				break
			}
			d.lastOnsetUS = tsUS
			d.onsetCount++
			d.state = StateDebounce
			return OnsetEvent{
				TimestampUS: tsUS,
				Amplitude:   d.risePeakVal,
				RiseTimeUS:  riseTime,
				IsKick:      riseTime > d.cfg.KickRiseTimeUS,
				Threshold:   d.threshold,
				Gain:        d.gain,
				Clipped:     d.risePeakClip,
			}, true
		}

	case StateDebounce:
		// Samples are absorbed into window statistics but cannot re-arm.
		if tsUS-d.lastOnsetUS >= d.cfg.DebouncePeriodUS {
			d.state = StateIdle
		}
	}
	return OnsetEvent{}, false
}

// updateGain steps the tracked gain level: down immediately on clipping, up
// after a sustained weak signal.
func (d *Detector) updateGain(amplitude, windowMax uint16, tsUS uint64) {
	if amplitude >= clippingCeiling {
		switch d.gain {
		case Gain60DB:
			d.gain = Gain50DB
			d.markGainChange(tsUS)
		case Gain50DB:
			d.gain = Gain40DB
			d.markGainChange(tsUS)
		}
		return
	}

	if windowMax < weakSignalThreshold && d.win.Len() == d.cfg.WindowSize {
		if !d.haveGainTime {
			d.markGainChange(tsUS)
			return
		}
		if tsUS-d.lastGainUS >= gainIncreaseDelayUS {
			switch d.gain {
			case Gain40DB:
				d.gain = Gain50DB
				d.markGainChange(tsUS)
			case Gain50DB:
				d.gain = Gain60DB
				d.markGainChange(tsUS)
			}
		}
	}
}

func (d *Detector) markGainChange(tsUS uint64) {
	d.lastGainUS = tsUS
	d.haveGainTime = true
}

func (d *Detector) publishTelemetry(amplitude, min, max uint16, tsUS uint64) {
	if d.telemetryFn == nil {
		return
	}
	if d.lastTelemetryUS != 0 && tsUS-d.lastTelemetryUS < telemetryIntervalUS {
		return
	}
	d.lastTelemetryUS = tsUS
	d.telemetryFn(Telemetry{
		TimestampUS:   tsUS,
		Amplitude:     amplitude,
		WindowMin:     min,
		WindowMax:     max,
		Threshold:     d.threshold,
		NoiseFloor:    d.noiseFloor,
		State:         d.state.String(),
		Gain:          d.gain,
		OnsetCount:    d.onsetCount,
		RejectedCount: d.rejectedCount,
		ClippedCount:  d.clippedCount,
	})
}

// State returns the current state machine position.
func (d *Detector) State() State { return d.state }

// Threshold returns the current adaptive threshold.
func (d *Detector) Threshold() uint16 { return d.threshold }

// NoiseFloor returns the most recent noise-floor estimate.
func (d *Detector) NoiseFloor() uint16 { return d.noiseFloor }

// Gain returns the tracked gain level.
func (d *Detector) Gain() GainLevel { return d.gain }

// OnsetCount returns the number of onsets emitted since construction.
func (d *Detector) OnsetCount() uint64 { return d.onsetCount }

// RejectedCount returns the number of rises discarded for insufficient
// amplitude.
func (d *Detector) RejectedCount() uint64 { return d.rejectedCount }
