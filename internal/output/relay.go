// SPDX-License-Identifier: MIT
package output

import (
	"sync"
	"time"

	"clapsync/internal/config"
	"clapsync/internal/gpio"
	applog "clapsync/internal/log"
)

// Relay pulses the GPIO relay line in sync with detected onsets. A pulse
// request inside the pulse+debounce window of the previous activation is
// rejected, never queued.
//
// Deactivation is timestamp-driven through Update so the behavior is fully
// deterministic under test; a wall-clock timer backstops it in case the
// update loop stalls with the relay energized.
type Relay struct {
	driver gpio.Driver

	pulseUS    uint64
	debounceUS uint64
	watchdogUS uint64

	mu            sync.Mutex
	active        bool
	activatedAtUS uint64
	everActivated bool
	backstop      *time.Timer

	pulses        uint64
	rejected      uint64
	watchdogTrips uint64
}

// NewRelay creates a Relay over the given driver. Zero durations fall back to
// package defaults.
func NewRelay(driver gpio.Driver, cfg config.OutputConfig) *Relay {
	if cfg.RelayPulseUS == 0 {
		cfg.RelayPulseUS = config.DefaultRelayPulseUS
	}
	if cfg.RelayDebounceUS == 0 {
		cfg.RelayDebounceUS = config.DefaultRelayDebounceUS
	}
	if cfg.RelayWatchdogUS == 0 {
		cfg.RelayWatchdogUS = config.DefaultRelayWatchdogUS
	}
	return &Relay{
		driver:     driver,
		pulseUS:    cfg.RelayPulseUS,
		debounceUS: cfg.RelayDebounceUS,
		watchdogUS: cfg.RelayWatchdogUS,
	}
}

// Pulse attempts to energize the relay at the given timestamp. It reports
// whether the pulse was accepted; a request during the previous pulse or its
// debounce window is ignored.
func (r *Relay) Pulse(nowUS uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active || (r.everActivated && nowUS-r.activatedAtUS < r.pulseUS+r.debounceUS) {
		r.rejected++
		return false
	}

	if err := r.driver.Set(true); err != nil {
		applog.Errorf("Relay: failed to energize: %v", err)
		r.rejected++
		return false
	}

	r.active = true
	r.activatedAtUS = nowUS
	r.everActivated = true
	r.pulses++

	// Backstop in wall-clock time: if Update stops being called, the relay
	// must still come down.
	if r.backstop != nil {
		r.backstop.Stop()
	}
	r.backstop = time.AfterFunc(time.Duration(r.pulseUS+r.watchdogUS)*time.Microsecond, r.forceOff)

	return true
}

// Update advances the relay state machine: deactivates once the pulse
// duration has elapsed, and force-clears a relay stuck past the watchdog
// margin (a failed deactivation write leaves it energized).
func (r *Relay) Update(nowUS uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}

	elapsed := nowUS - r.activatedAtUS
	if elapsed < r.pulseUS {
		return
	}

	if err := r.driver.Set(false); err == nil {
		r.active = false
		r.stopBackstop()
		return
	}

	if elapsed >= r.pulseUS+r.watchdogUS {
		applog.Errorf("Relay: stuck past watchdog margin, forcing off")
		r.watchdogTrips++
		r.driver.Set(false)
		r.active = false
		r.stopBackstop()
	}
}

// Active reports whether the relay is currently energized.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stats returns a snapshot of the pulse counters.
func (r *Relay) Stats() RelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RelayStats{
		Pulses:        r.pulses,
		Rejected:      r.rejected,
		WatchdogTrips: r.watchdogTrips,
	}
}

// Close forces the relay off and releases the driver.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.stopBackstop()
	if r.active {
		r.driver.Set(false)
		r.active = false
	}
	r.mu.Unlock()
	return r.driver.Close()
}

// forceOff is the backstop timer body.
func (r *Relay) forceOff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	applog.Warnf("Relay: backstop timer fired, forcing off")
	r.watchdogTrips++
	r.driver.Set(false)
	r.active = false
}

// stopBackstop must be called with the mutex held.
func (r *Relay) stopBackstop() {
	if r.backstop != nil {
		r.backstop.Stop()
		r.backstop = nil
	}
}
