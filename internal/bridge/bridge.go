// SPDX-License-Identifier: MIT
/*
Package bridge wires the pipeline together: detector onsets feed the tempo
engine and the relay, tempo updates retune the output clock, and every event
is forwarded to the configured telemetry transport.

The detection path hands onsets off through a bounded channel, so the sampling
context never blocks on tempo math or network I/O. A single worker goroutine
owns the tempo engine; onsets are processed in arrival order.
*/
package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"clapsync/internal/bpm"
	"clapsync/internal/config"
	"clapsync/internal/detect"
	applog "clapsync/internal/log"
	"clapsync/internal/output"
	"clapsync/internal/timing"
	"clapsync/internal/transport"
)

const (
	// onsetQueueSize bounds the hand-off between the sampling context and
	// the worker. Music produces a few onsets per second; a full queue
	// means the worker is wedged, and dropping is the only safe response.
	onsetQueueSize = 256

	housekeepingInterval = 100 * time.Millisecond
	statsEveryNthTick    = 10 // Stats snapshot once per second.
)

// OnsetMessage is the telemetry envelope for a detected onset.
type OnsetMessage struct {
	Type        string `json:"type"` // Always "onset".
	TimestampUS uint64 `json:"timestamp_us"`
	Amplitude   uint16 `json:"amplitude"`
	RiseTimeUS  uint64 `json:"rise_time_us"`
	IsKick      bool   `json:"is_kick"`
	Clipped     bool   `json:"clipped"`
}

// TempoMessage is the telemetry envelope for a tempo update.
type TempoMessage struct {
	Type        string  `json:"type"` // Always "tempo".
	BPM         float64 `json:"bpm"`
	Stable      bool    `json:"stable"`
	CV          float64 `json:"cv"`
	TapCount    int     `json:"tap_count"`
	TimestampUS uint64  `json:"timestamp_us"`
}

// StatsMessage is the periodic statistics snapshot.
type StatsMessage struct {
	Type          string              `json:"type"` // Always "stats".
	TimestampUS   uint64              `json:"timestamp_us"`
	Timer         output.TimerStats   `json:"timer"`
	Network       output.NetworkStats `json:"network"`
	Relay         output.RelayStats   `json:"relay"`
	DroppedOnsets uint64              `json:"dropped_onsets"`
}

// Bridge connects the detection, tempo, and output stages.
type Bridge struct {
	cfg        config.OutputConfig
	clock      timing.Clock
	engine     *bpm.Engine
	controller *output.Controller
	telemetry  transport.Transport

	onsets   chan detect.OnsetEvent
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects doneChan across Start/Stop.

	clockStarted  atomic.Bool
	droppedOnsets atomic.Uint64
}

// NewBridge creates a Bridge. telemetry may be nil; events are then only
// applied, not published.
func NewBridge(cfg config.OutputConfig, clock timing.Clock, engine *bpm.Engine, controller *output.Controller, telemetry transport.Transport) *Bridge {
	return &Bridge{
		cfg:        cfg,
		clock:      clock,
		engine:     engine,
		controller: controller,
		telemetry:  telemetry,
		onsets:     make(chan detect.OnsetEvent, onsetQueueSize),
	}
}

// OnOnset enqueues a detected onset for processing. It never blocks: when the
// queue is full the onset is dropped and counted. Safe to call from the
// sampling context.
func (b *Bridge) OnOnset(ev detect.OnsetEvent) {
	select {
	case b.onsets <- ev:
	default:
		b.droppedOnsets.Add(1)
	}
}

// Start launches the worker goroutine and registers the tempo listener.
// Subsequent calls while running are no-ops.
func (b *Bridge) Start() {
	b.mu.Lock()
	if b.doneChan != nil {
		b.mu.Unlock()
		applog.Warnf("Bridge: Start called but already running.")
		return
	}
	b.doneChan = make(chan struct{})
	b.stopOnce = sync.Once{}
	doneChan := b.doneChan
	b.mu.Unlock()

	// The callback runs on the worker goroutine, inside AddTap or
	// CheckTimeout.
	b.engine.OnUpdate(b.handleTempo)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		applog.Infof("Bridge: worker started (mode: %s)", b.cfg.Mode)

		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		tick := 0

		for {
			select {
			case ev := <-b.onsets:
				b.handleOnset(ev)
			case <-ticker.C:
				tick++
				b.housekeeping(tick%statsEveryNthTick == 0)
			case <-doneChan:
				applog.Infof("Bridge: worker received stop signal.")
				return
			}
		}
	}()
}

// Stop halts the worker. It does not return until the worker has exited;
// already-queued onsets are discarded.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.doneChan == nil {
		b.mu.Unlock()
		return
	}
	b.stopOnce.Do(func() {
		close(b.doneChan)
		b.doneChan = nil
	})
	b.mu.Unlock()

	b.wg.Wait()
	applog.Infof("Bridge: worker stopped.")
}

// ClockStarted reports whether auto-sync has started the output clock.
func (b *Bridge) ClockStarted() bool {
	return b.clockStarted.Load()
}

// DroppedOnsets returns how many onsets were discarded on a full queue.
func (b *Bridge) DroppedOnsets() uint64 {
	return b.droppedOnsets.Load()
}

// handleOnset applies one onset: relay pulse, tempo tap, telemetry.
func (b *Bridge) handleOnset(ev detect.OnsetEvent) {
	if b.cfg.Mode == config.ModeRelayOnly || b.cfg.Mode == config.ModeBoth {
		b.controller.PulseRelay()
	}

	// Tempo is estimated in every mode; even with outputs disabled the
	// estimate drives telemetry.
	b.engine.AddTap(ev.TimestampUS)

	b.publish(OnsetMessage{
		Type:        "onset",
		TimestampUS: ev.TimestampUS,
		Amplitude:   ev.Amplitude,
		RiseTimeUS:  ev.RiseTimeUS,
		IsKick:      ev.IsKick,
		Clipped:     ev.Clipped,
	})
}

// handleTempo applies one tempo update to the output clock and publishes it.
func (b *Bridge) handleTempo(u bpm.Update) {
	// A timeout flush (no resident taps) carries no new tempo.
	if u.TapCount >= 2 {
		b.controller.SetBPM(u.BPM)

		midiActive := b.cfg.Mode == config.ModeMIDIOnly || b.cfg.Mode == config.ModeBoth
		if b.cfg.AutoSync && midiActive && u.Stable && !b.clockStarted.Load() {
			applog.Infof("Bridge: tempo stabilized at %.1f BPM, starting clock", u.BPM)
			b.controller.Start(u.BPM)
			b.clockStarted.Store(true)
		}
	}

	b.publish(TempoMessage{
		Type:        "tempo",
		BPM:         u.BPM,
		Stable:      u.Stable,
		CV:          u.CV,
		TapCount:    u.TapCount,
		TimestampUS: u.TimestampUS,
	})
}

// housekeeping runs the periodic duties: silence timeout, relay deactivation,
// and the occasional stats snapshot.
func (b *Bridge) housekeeping(publishStats bool) {
	now := b.clock.NowUS()
	b.engine.CheckTimeout(now)
	b.controller.UpdateRelay()

	if publishStats {
		b.publish(StatsMessage{
			Type:          "stats",
			TimestampUS:   now,
			Timer:         b.controller.TimerStats(),
			Network:       b.controller.NetworkStats(),
			Relay:         b.controller.RelayStats(),
			DroppedOnsets: b.droppedOnsets.Load(),
		})
	}
}

func (b *Bridge) publish(msg any) {
	if b.telemetry == nil {
		return
	}
	if err := b.telemetry.Send(msg); err != nil {
		applog.Warnf("Bridge: telemetry send failed: %v", err)
	}
}
