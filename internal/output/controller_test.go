// SPDX-License-Identifier: MIT
package output

import (
	"errors"
	"sync"
	"testing"
	"time"

	"clapsync/internal/config"
	"clapsync/internal/gpio"
	"clapsync/internal/midi"
	"clapsync/internal/timing"
)

// fakeSink records sent packets. The encoder reuses its buffer, so packets
// are copied on receipt like a real socket write would.
type fakeSink struct {
	mu      sync.Mutex
	control [][]byte
	data    [][]byte
	fail    bool
	closed  bool
}

func (s *fakeSink) SendControl(pkt []byte) error {
	return s.record(&s.control, pkt)
}

func (s *fakeSink) SendData(pkt []byte) error {
	return s.record(&s.data, pkt)
}

func (s *fakeSink) record(dst *[][]byte, pkt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("simulated send failure")
	}
	*dst = append(*dst, append([]byte{}, pkt...))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) counts() (control, data int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.control), len(s.data)
}

func newTestController(sink ClockSink, relay *Relay, clock timing.Clock) *Controller {
	cfg := config.NewConfig()
	return NewController(cfg.Output, cfg.BPM, clock, sink, relay, 42)
}

func TestIntervalDerivation(t *testing.T) {
	c := newTestController(nil, nil, timing.NewManualClock(0))

	tests := []struct {
		bpm  float64
		want uint64
	}{
		{120, 20833},
		{140, 17857},
		{60, 41666},
		{240, 10416},
	}
	for _, tt := range tests {
		if !c.SetBPM(tt.bpm) {
			t.Errorf("SetBPM(%.0f) rejected", tt.bpm)
			continue
		}
		if got := c.IntervalUS(); got != tt.want {
			t.Errorf("interval at %.0f BPM: got %d, want %d", tt.bpm, got, tt.want)
		}
	}
}

func TestOutOfRangeTempoIgnored(t *testing.T) {
	c := newTestController(nil, nil, timing.NewManualClock(0))

	before := c.IntervalUS()
	for _, bpm := range []float64{0, 39.9, 240.1, -10} {
		if c.SetBPM(bpm) {
			t.Errorf("SetBPM(%.1f) accepted", bpm)
		}
	}
	if got := c.IntervalUS(); got != before {
		t.Errorf("interval changed by rejected tempo: %d -> %d", before, got)
	}
}

func TestFireSendsClockAndWrapsPulsePosition(t *testing.T) {
	sink := &fakeSink{}
	clock := timing.NewManualClock(1000)
	c := newTestController(sink, nil, clock)

	// Two quarter notes of firings at a perfectly even period.
	for i := 0; i < 48; i++ {
		c.fire(clock.NowUS())
		clock.Advance(20833)
	}

	_, data := sink.counts()
	if data != 48 {
		t.Fatalf("clock packets: got %d, want 48", data)
	}

	pkt, err := midi.Decode(sink.data[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Status != midi.StatusClock {
		t.Errorf("status: got 0x%02X, want 0x%02X", pkt.Status, midi.StatusClock)
	}
	if pkt.Sequence != 1 || pkt.SSRC != 42 {
		t.Errorf("header: %+v", pkt)
	}

	stats := c.TimerStats()
	if stats.Firings != 48 || stats.ClocksSent != 48 {
		t.Errorf("stats: %+v", stats)
	}
	if stats.PulsePosition != 0 {
		t.Errorf("pulse position after 48 firings: got %d, want 0", stats.PulsePosition)
	}
	if stats.MeanIntervalUS != 20833 || stats.JitterUS != 0 {
		t.Errorf("even firings: mean=%f jitter=%f", stats.MeanIntervalUS, stats.JitterUS)
	}
}

func TestJitterReflectsUnevenFirings(t *testing.T) {
	clock := timing.NewManualClock(1000)
	c := newTestController(&fakeSink{}, nil, clock)

	deltas := []uint64{20833, 21000, 20600, 20900, 20750}
	c.fire(clock.NowUS())
	for _, d := range deltas {
		clock.Advance(d)
		c.fire(clock.NowUS())
	}

	if got := c.TimerStats().JitterUS; got <= 0 {
		t.Errorf("jitter: got %f, want > 0", got)
	}
}

func TestSendFailuresCountedNotRetried(t *testing.T) {
	sink := &fakeSink{fail: true}
	clock := timing.NewManualClock(1000)
	c := newTestController(sink, nil, clock)

	for i := 0; i < 10; i++ {
		c.fire(clock.NowUS())
		clock.Advance(20833)
	}

	net := c.NetworkStats()
	if net.SendFailures != 10 || net.PacketsSent != 0 {
		t.Errorf("network stats: %+v", net)
	}
	// Firings keep happening regardless of transport health.
	if got := c.TimerStats().Firings; got != 10 {
		t.Errorf("firings: got %d, want 10", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	sink := &fakeSink{}
	c := newTestController(sink, nil, timing.NewSystemClock())

	c.Start(120)
	if !c.Running() {
		t.Fatal("not running after Start")
	}

	// A second Start is a no-op.
	c.Start(120)

	time.Sleep(60 * time.Millisecond)
	c.Stop()
	if c.Running() {
		t.Fatal("still running after Stop")
	}

	control, data := sink.counts()
	if control != 2 {
		t.Fatalf("control packets: got %d, want start+stop", control)
	}
	if first, err := midi.Decode(sink.control[0]); err != nil || first.Status != midi.StatusStart {
		t.Errorf("first control packet: %+v, %v", first, err)
	}
	if last, err := midi.Decode(sink.control[1]); err != nil || last.Status != midi.StatusStop {
		t.Errorf("last control packet: %+v, %v", last, err)
	}
	if data < 1 {
		t.Error("no clock packets sent while running")
	}

	// Stop is synchronous: nothing fires after it returns.
	time.Sleep(40 * time.Millisecond)
	_, after := sink.counts()
	if after != data {
		t.Errorf("clock packets after Stop: %d -> %d", data, after)
	}

	// A second Stop is a no-op.
	c.Stop()
}

func TestSetBPMWhileRunning(t *testing.T) {
	sink := &fakeSink{}
	c := newTestController(sink, nil, timing.NewSystemClock())

	c.Start(120)
	defer c.Stop()

	if !c.SetBPM(140) {
		t.Fatal("SetBPM(140) rejected while running")
	}
	if got := c.IntervalUS(); got != 17857 {
		t.Errorf("interval: got %d, want 17857", got)
	}
	if got := c.BPM(); got != 140 {
		t.Errorf("BPM: got %f, want 140", got)
	}
}

func TestPulseRelayDebounce(t *testing.T) {
	driver := gpio.NewFakeDriver()
	clock := timing.NewManualClock(1000)
	relay := NewRelay(driver, config.NewConfig().Output)
	c := newTestController(nil, relay, clock)

	if !c.PulseRelay() {
		t.Fatal("first pulse rejected")
	}
	if c.PulseRelay() {
		t.Error("pulse during active window accepted")
	}

	clock.Advance(config.DefaultRelayPulseUS + config.DefaultRelayDebounceUS)
	if !c.PulseRelay() {
		t.Error("pulse after debounce rejected")
	}

	stats := c.RelayStats()
	if stats.Pulses != 2 || stats.Rejected != 1 {
		t.Errorf("relay stats: %+v", stats)
	}
}

func TestDisabledOutputs(t *testing.T) {
	clock := timing.NewManualClock(1000)
	c := newTestController(nil, nil, clock)

	// No sink, no relay: firings still account, nothing panics.
	c.fire(clock.NowUS())
	if c.PulseRelay() {
		t.Error("PulseRelay reported success with no relay")
	}
	if got := c.TimerStats().Firings; got != 1 {
		t.Errorf("firings: got %d, want 1", got)
	}
	if got := c.RelayStats(); got != (RelayStats{}) {
		t.Errorf("relay stats: %+v", got)
	}
}

func TestCloseReleasesSinkAndRelay(t *testing.T) {
	sink := &fakeSink{}
	driver := gpio.NewFakeDriver()
	relay := NewRelay(driver, config.NewConfig().Output)
	c := newTestController(sink, relay, timing.NewSystemClock())

	c.Start(120)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sink.closed || !driver.Closed {
		t.Error("Close did not release sink and relay")
	}
	if c.Running() {
		t.Error("still running after Close")
	}
}
