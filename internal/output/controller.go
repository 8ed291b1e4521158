// SPDX-License-Identifier: MIT
/*
Package output drives the synchronized outputs: a 24-PPQN MIDI beat clock
over UDP and a relay pulse per detected onset.

The clock runs on its own goroutine, firing at the BPM-derived interval. Each
firing does bounded work: encode one 13-byte packet, one non-blocking socket
write, counter updates. Tempo changes swap the interval atomically so a firing
never observes a torn value.
*/
package output

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"clapsync/internal/config"
	applog "clapsync/internal/log"
	"clapsync/internal/midi"
	"clapsync/internal/timing"
)

// ClockSink carries the two packet flows toward the peer: start/stop on the
// control flow, timing clocks on the data flow.
type ClockSink interface {
	SendControl(pkt []byte) error
	SendData(pkt []byte) error
	Close() error
}

// Controller is the output stage. A nil sink disables the MIDI side, a nil
// relay disables the relay side; both nil is a valid (silent) configuration.
type Controller struct {
	cfg    config.OutputConfig
	minBPM float64
	maxBPM float64
	clock  timing.Clock
	sink   ClockSink
	relay  *Relay
	enc    *midi.Encoder

	intervalUS atomic.Uint64
	bpm        atomic.Uint64 // math.Float64bits encoding.

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	// Clock-goroutine state, untouched elsewhere while running.
	pulsePos   int
	lastFireUS uint64

	stats statsTracker
}

// NewController creates a Controller. The encoder SSRC distinguishes this
// sender's stream on the wire.
func NewController(cfg config.OutputConfig, bpmCfg config.BPMConfig, clock timing.Clock, sink ClockSink, relay *Relay, ssrc uint32) *Controller {
	if cfg.PPQN <= 0 {
		cfg.PPQN = config.DefaultPPQN
	}
	if bpmCfg.MinBPM <= 0 {
		bpmCfg.MinBPM = config.DefaultMinBPM
	}
	if bpmCfg.MaxBPM <= 0 {
		bpmCfg.MaxBPM = config.DefaultMaxBPM
	}
	c := &Controller{
		cfg:    cfg,
		minBPM: bpmCfg.MinBPM,
		maxBPM: bpmCfg.MaxBPM,
		clock:  clock,
		sink:   sink,
		relay:  relay,
		enc:    midi.NewEncoder(ssrc),
	}
	if !c.setInterval(cfg.InitialBPM) {
		c.setInterval(config.DefaultInitialBPM)
	}
	return c
}

// Start begins the protocol clock at the given tempo, emitting a start
// message first. Safe to call repeatedly; subsequent calls are no-ops while
// running.
func (c *Controller) Start(bpm float64) {
	c.mu.Lock()
	if c.ticker != nil {
		c.mu.Unlock()
		applog.Warnf("Controller: Start called but already running.")
		return
	}

	if !c.setInterval(bpm) {
		applog.Warnf("Controller: Start with out-of-range tempo %.1f, keeping %.1f", bpm, c.BPM())
	}
	c.pulsePos = 0
	c.lastFireUS = 0

	if c.sink != nil && c.cfg.SendStartStop {
		err := c.sink.SendControl(c.enc.Encode(midi.StatusStart, c.clock.NowUS()))
		c.stats.recordControlSend(err)
	}

	interval := time.Duration(c.intervalUS.Load()) * time.Microsecond
	c.ticker = time.NewTicker(interval)
	c.doneChan = make(chan struct{})
	c.stopOnce = sync.Once{}

	ticker := c.ticker
	doneChan := c.doneChan
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		applog.Infof("Controller: Clock started (%.1f BPM, interval %s)", c.BPM(), interval)
		for {
			select {
			case <-ticker.C:
				c.fire(c.clock.NowUS())
			case <-doneChan:
				applog.Infof("Controller: Clock goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop halts the clock and emits a stop message. It does not return until
// the clock goroutine has exited, so no firing can follow it. Safe to call
// repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.ticker == nil {
		c.mu.Unlock()
		applog.Debugf("Controller: Stop called but not running.")
		return
	}

	c.stopOnce.Do(func() {
		close(c.doneChan)
		c.ticker.Stop()
		c.ticker = nil
	})
	c.mu.Unlock()

	c.wg.Wait()

	if c.sink != nil && c.cfg.SendStartStop {
		err := c.sink.SendControl(c.enc.Encode(midi.StatusStop, c.clock.NowUS()))
		c.stats.recordControlSend(err)
	}
	applog.Infof("Controller: Clock stopped.")
}

// Running reports whether the clock is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

// SetBPM retunes the clock period. A tempo outside the configured valid
// range is silently ignored (reported false); the pulse position is never
// reset by a tempo change, so no pulse is dropped or duplicated.
func (c *Controller) SetBPM(bpm float64) bool {
	if !c.setInterval(bpm) {
		applog.Debugf("Controller: ignoring out-of-range tempo %.1f", bpm)
		return false
	}

	c.mu.Lock()
	if c.ticker != nil {
		c.ticker.Reset(time.Duration(c.intervalUS.Load()) * time.Microsecond)
	}
	c.mu.Unlock()
	return true
}

// BPM returns the current tempo.
func (c *Controller) BPM() float64 {
	return math.Float64frombits(c.bpm.Load())
}

// IntervalUS returns the clock period the next firing will observe.
func (c *Controller) IntervalUS() uint64 {
	return c.intervalUS.Load()
}

// PulseRelay fires the relay for the current onset, subject to debounce.
// It reports whether the pulse was accepted. A controller without a relay
// always reports false.
func (c *Controller) PulseRelay() bool {
	if c.relay == nil {
		return false
	}
	now := c.clock.NowUS()
	c.relay.Update(now)
	return c.relay.Pulse(now)
}

// UpdateRelay advances relay deactivation; the bridge calls it from its
// housekeeping loop so a pulse ends on time even with no onsets arriving.
func (c *Controller) UpdateRelay() {
	if c.relay != nil {
		c.relay.Update(c.clock.NowUS())
	}
}

// TimerStats returns a snapshot of the clock statistics.
func (c *Controller) TimerStats() TimerStats {
	c.mu.Lock()
	pos := c.pulsePos
	c.mu.Unlock()
	return c.stats.timerSnapshot(pos)
}

// NetworkStats returns a snapshot of the datagram counters.
func (c *Controller) NetworkStats() NetworkStats {
	return c.stats.networkSnapshot()
}

// RelayStats returns a snapshot of the relay counters.
func (c *Controller) RelayStats() RelayStats {
	if c.relay == nil {
		return RelayStats{}
	}
	return c.relay.Stats()
}

// ResetStats clears the accumulated statistics.
func (c *Controller) ResetStats() {
	c.stats.reset()
}

// Close stops the clock and releases the sink and relay.
func (c *Controller) Close() error {
	c.Stop()

	var firstErr error
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			firstErr = err
		}
	}
	if c.relay != nil {
		if err := c.relay.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fire is one clock firing: advance the pulse position, send one clock
// packet, update jitter and handler-time statistics, service the relay.
func (c *Controller) fire(nowUS uint64) {
	first := c.lastFireUS == 0
	if !first {
		c.stats.recordFiring(nowUS-c.lastFireUS, false)
	} else {
		c.stats.recordFiring(0, true)
	}
	c.lastFireUS = nowUS

	c.mu.Lock()
	c.pulsePos = (c.pulsePos + 1) % c.cfg.PPQN
	c.mu.Unlock()

	if c.sink != nil {
		c.stats.recordSend(c.sink.SendData(c.enc.Encode(midi.StatusClock, nowUS)))
	}

	if c.relay != nil {
		c.relay.Update(nowUS)
	}

	c.stats.recordHandler(c.clock.NowUS() - nowUS)
}

// setInterval validates the tempo and swaps the derived period in atomically.
func (c *Controller) setInterval(bpm float64) bool {
	if bpm < c.minBPM || bpm > c.maxBPM {
		return false
	}

	c.intervalUS.Store(uint64(60000000 / bpm / float64(c.cfg.PPQN)))
	c.bpm.Store(math.Float64bits(bpm))
	return true
}
