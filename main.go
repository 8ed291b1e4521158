// SPDX-License-Identifier: MIT
package main

import (
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"clapsync/cmd"
	"clapsync/internal/audio"
	"clapsync/internal/bpm"
	"clapsync/internal/bridge"
	"clapsync/internal/config"
	"clapsync/internal/detect"
	"clapsync/internal/gpio"
	applog "clapsync/internal/log"
	"clapsync/internal/output"
	"clapsync/internal/telemetry"
	"clapsync/internal/timing"
	"clapsync/internal/transport"
	"clapsync/internal/transport/udp"
	"clapsync/pkg/build"
)

// main is the entry point for the acoustic-trigger metronome.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Initialize PortAudio
//   - Parse command line arguments
//   - Execute one-off commands if requested
//   - Construct the detection / tempo / output pipeline
//
// 2. Concurrent Phase (Hot Path):
//   - Start the event bridge and clock controller
//   - Begin input stream processing
//   - Start recording if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the input stream, bridge, and clock
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Initialize build information including version, commit hash, and build time
	build.Initialize()

	// Limit OS threads to optimize for real-time audio processing:
	// - One thread dedicated to the audio callback (time-critical)
	// - One thread for the clock loop and I/O
	runtime.GOMAXPROCS(2)

	// Initialize PortAudio subsystem
	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	// Parse command line arguments and build configuration
	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	} else if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	// Handle one-off commands (e.g., device listing) that don't require
	// the pipeline to be running
	if cfg.Command != "" {
		if err := executeCommand(cfg.Command); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	clock := timing.NewSystemClock()

	// Telemetry transports. All are optional; the fanout skips nil entries
	// and falls back to the debug log when nothing else is configured.
	var mqttTransport transport.Transport
	if cfg.Telemetry.MQTTEnabled {
		mqttTransport, err = telemetry.NewMQTTTransport(
			cfg.Telemetry.MQTTBroker, "clapsync", cfg.Telemetry.MQTTTopic)
		if err != nil {
			applog.Fatalf("%v", err)
		}
	}
	var wsTransport transport.Transport
	if cfg.Telemetry.WSEnabled {
		wsTransport = transport.NewWebSocketTransport(cfg.Telemetry.WSListenAddr)
	}
	var logTransport transport.Transport
	if cfg.Debug || (mqttTransport == nil && wsTransport == nil) {
		logTransport = transport.NewLoggingTransport()
	}
	events := transport.NewFanout(mqttTransport, wsTransport, logTransport)

	// Relay output on a GPIO line. A missing GPIO chip (development machine)
	// downgrades to relay-less operation rather than failing startup.
	var relay *output.Relay
	if cfg.Output.Mode == config.ModeRelayOnly || cfg.Output.Mode == config.ModeBoth {
		driver, err := gpio.NewRealDriver(cfg.Output.RelayGPIOLine)
		if err != nil {
			applog.Warnf("Relay unavailable, continuing without it: %v", err)
		} else {
			relay = output.NewRelay(driver, cfg.Output)
		}
	}

	// MIDI clock over UDP.
	var sink output.ClockSink
	if cfg.Output.Mode == config.ModeMIDIOnly || cfg.Output.Mode == config.ModeBoth {
		link, err := udp.NewClockLink(cfg.Output.PeerAddress)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		sink = link
	}

	engine := bpm.NewEngine()
	controller := output.NewController(cfg.Output, cfg.BPM, clock, sink, relay, rand.Uint32())
	eventBridge := bridge.NewBridge(cfg.Output, clock, engine, controller, events)

	detector := detect.NewDetector(cfg.Detect)
	// Detector telemetry is emitted from the audio callback; hand it off on
	// a buffered channel so the hot path never waits on a publish.
	detectorTelemetry := make(chan detect.Telemetry, 16)
	detector.OnTelemetry(func(t detect.Telemetry) {
		select {
		case detectorTelemetry <- t:
		default:
		}
	})
	go func() {
		for t := range detectorTelemetry {
			if err := events.Send(t); err != nil {
				applog.Debugf("Telemetry: detector snapshot dropped: %v", err)
			}
		}
	}()

	capture := audio.NewEngine(cfg, clock, detector, eventBridge.OnOnset)

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	eventBridge.Start()

	// CRITICAL: Start of real-time audio processing
	// The first call to StartInputStream triggers PortAudio to begin
	// calling the callback function, marking the start of the hot path
	if err := capture.StartInputStream(); err != nil {
		applog.Fatalf("%v", err)
	}

	if cfg.Recording.Enabled {
		if err := capture.StartRecording(""); err != nil {
			applog.Fatalf("%v", err)
		}
	}

	applog.Infof("%s %s listening (mode=%s, peer=%s)",
		build.GetBuildFlags().Name, build.GetBuildFlags().Version,
		cfg.Output.Mode, cfg.Output.PeerAddress)

	// Block until termination signal is received
	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if cfg.Recording.Enabled {
		if err := capture.StopRecording(); err != nil {
			applog.Errorf("Error stopping recording: %v", err)
		}
	}

	if err := capture.Close(); err != nil {
		applog.Errorf("Error closing audio engine: %v", err)
	}

	eventBridge.Stop()

	if err := controller.Close(); err != nil {
		applog.Errorf("Error closing clock controller: %v", err)
	}

	close(detectorTelemetry)
	if err := events.Close(); err != nil {
		applog.Errorf("Error closing telemetry: %v", err)
	}
}

// executeCommand handles one-off commands that don't require the pipeline
// to be running, such as listing available audio devices.
func executeCommand(command string) error {
	switch command {
	case "list":
		return audio.ListDevices()
	}
	return nil
}
