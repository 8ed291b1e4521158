// SPDX-License-Identifier: MIT
package config

// Core configuration constants that define the boundaries and defaults
// for the acoustic-trigger metronome pipeline.
const (
	// Audio capture defaults.
	DefaultDeviceID        = MinDeviceID // System default input device.
	DefaultSampleRate      = 8000        // Envelope sampling rate (Hz).
	DefaultFramesPerBuffer = 256         // Capture buffer size in frames.
	DefaultChannels        = 1           // Mono microphone input.

	// Detection defaults (12-bit amplitude domain, 0-4095).
	DefaultWindowSize          = 100   // DetectionWindow ring capacity.
	DefaultThresholdFactor     = 0.8   // threshold = factor*(max-min)+min.
	DefaultThresholdMargin     = 80    // Hysteresis above threshold for arming.
	DefaultMinSignalAmplitude  = 200   // Minimum rise height for a valid onset.
	DefaultClippingThreshold   = 4000  // Amplitudes at or above are clipped.
	DefaultDebouncePeriodUS    = 50000 // 50 ms onset dead-time.
	DefaultKickRiseTimeUS      = 4000  // Rise time above this classifies a kick.
	DefaultNoiseUpdateInterval = 16    // Samples between noise-floor recomputes.

	// Tempo defaults.
	DefaultMinBPM = 40
	DefaultMaxBPM = 240

	// Output defaults.
	DefaultPPQN            = 24               // MIDI beat clock pulses per quarter note.
	DefaultControlPort     = 5004             // RTP-MIDI control port.
	DefaultPeerAddress     = "127.0.0.1:5004"
	DefaultRelayPulseUS    = 50000            // 50 ms relay pulse.
	DefaultRelayDebounceUS = 10000            // 10 ms minimum off-time after a pulse.
	DefaultRelayWatchdogUS = 100000           // Force-off margin for a stuck relay.
	DefaultRelayGPIOLine   = 17               // BCM line for the relay output.
	DefaultInitialBPM      = 120

	// Hardware and processing limits.
	MinDeviceID   = -1     // -1 represents the system default device.
	MinSampleRate = 4000   // Minimum usable envelope rate (Hz).
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz).
	MaxAmplitude  = 4095   // 12-bit amplitude ceiling.
)

// OutputMode selects which synchronized outputs are active.
type OutputMode string

const (
	ModeMIDIOnly  OutputMode = "midi"
	ModeRelayOnly OutputMode = "relay"
	ModeBoth      OutputMode = "both"
	ModeDisabled  OutputMode = "disabled"
)

// Config represents the main application configuration, loaded from YAML
// and/or command-line flags.
type Config struct {
	Debug    bool   `yaml:"debug"`             // Verbose logging and diagnostics.
	LogLevel string `yaml:"log_level"`         // "debug", "info", "warn", "error".
	Command  string `yaml:"command,omitempty"` // One-off command (e.g. "list").

	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Detect    DetectConfig    `yaml:"detect"`    // Onset detector settings.
	BPM       BPMConfig       `yaml:"bpm"`       // Tempo estimator settings.
	Output    OutputConfig    `yaml:"output"`    // Clock, network, relay settings.
	Recording RecordingConfig `yaml:"recording"` // WAV capture of the analyzed input.
	Telemetry TelemetryConfig `yaml:"telemetry"` // MQTT / WebSocket publication.
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Envelope sampling rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per capture callback.
	Channels        int     `yaml:"channels"`          // Input channels (mono mix applied beyond 1).
	LowLatency      bool    `yaml:"low_latency"`       // Request low-latency settings from the device.
}

// DetectConfig holds onset detector tuning.
type DetectConfig struct {
	WindowSize          int     `yaml:"window_size"`           // Rolling min/max window capacity.
	ThresholdFactor     float64 `yaml:"threshold_factor"`      // Adaptive threshold factor.
	ThresholdMargin     uint16  `yaml:"threshold_margin"`      // Arming hysteresis.
	MinSignalAmplitude  uint16  `yaml:"min_signal_amplitude"`  // Minimum rise height.
	DebouncePeriodUS    uint64  `yaml:"debounce_period_us"`    // Onset dead-time.
	KickRiseTimeUS      uint64  `yaml:"kick_rise_time_us"`     // Kick classification boundary.
	NoiseUpdateInterval int     `yaml:"noise_update_interval"` // Noise-floor recompute cadence.
	NoiseFloorEnforce   bool    `yaml:"noise_floor_enforce"`   // Gate arming on noise floor + min amplitude.
}

// BPMConfig holds tempo estimator bounds.
type BPMConfig struct {
	MinBPM float64 `yaml:"min_bpm"` // Lower bound of the valid tempo range.
	MaxBPM float64 `yaml:"max_bpm"` // Upper bound of the valid tempo range.
}

// OutputConfig holds clock generator, network, and relay settings.
type OutputConfig struct {
	Mode            OutputMode `yaml:"mode"`              // midi / relay / both / disabled.
	PeerAddress     string     `yaml:"peer_address"`      // UDP peer for clock packets (host:port).
	ControlPort     uint16     `yaml:"control_port"`      // RTP-MIDI control port (data = control+1).
	PPQN            int        `yaml:"ppqn"`              // Pulses per quarter note.
	SendStartStop   bool       `yaml:"send_start_stop"`   // Emit 0xFA/0xFC around the clock stream.
	AutoSync        bool       `yaml:"auto_sync"`         // Start the clock when tempo first stabilizes.
	InitialBPM      float64    `yaml:"initial_bpm"`       // Tempo before the first estimate arrives.
	RelayPulseUS    uint64     `yaml:"relay_pulse_us"`    // Relay pulse duration.
	RelayDebounceUS uint64     `yaml:"relay_debounce_us"` // Minimum off-time after a pulse.
	RelayWatchdogUS uint64     `yaml:"relay_watchdog_us"` // Stuck-relay force-off margin.
	RelayGPIOLine   int        `yaml:"relay_gpio_line"`   // BCM line number for the relay.
}

// RecordingConfig holds settings for recording the analyzed input to WAV.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the capture stream.
	OutputDir string `yaml:"output_dir"` // Directory for recording files.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth for recorded audio.
}

// TelemetryConfig holds MQTT and WebSocket publication settings.
type TelemetryConfig struct {
	MQTTEnabled  bool   `yaml:"mqtt_enabled"`   // Publish events to an MQTT broker.
	MQTTBroker   string `yaml:"mqtt_broker"`    // Broker URL (tcp://host:1883).
	MQTTTopic    string `yaml:"mqtt_topic"`     // Topic prefix for publications.
	WSEnabled    bool   `yaml:"ws_enabled"`     // Serve a WebSocket event stream.
	WSListenAddr string `yaml:"ws_listen_addr"` // Listen address for the stream (":8080").
}

// NewConfig creates a Config instance with default values. This is the base
// configuration before applying a YAML file, environment variables, or flags.
func NewConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        DefaultChannels,
			LowLatency:      true,
		},
		Detect: DetectConfig{
			WindowSize:          DefaultWindowSize,
			ThresholdFactor:     DefaultThresholdFactor,
			ThresholdMargin:     DefaultThresholdMargin,
			MinSignalAmplitude:  DefaultMinSignalAmplitude,
			DebouncePeriodUS:    DefaultDebouncePeriodUS,
			KickRiseTimeUS:      DefaultKickRiseTimeUS,
			NoiseUpdateInterval: DefaultNoiseUpdateInterval,
			NoiseFloorEnforce:   false,
		},
		BPM: BPMConfig{
			MinBPM: DefaultMinBPM,
			MaxBPM: DefaultMaxBPM,
		},
		Output: OutputConfig{
			Mode:            ModeBoth,
			PeerAddress:     DefaultPeerAddress,
			ControlPort:     DefaultControlPort,
			PPQN:            DefaultPPQN,
			SendStartStop:   true,
			AutoSync:        true,
			InitialBPM:      DefaultInitialBPM,
			RelayPulseUS:    DefaultRelayPulseUS,
			RelayDebounceUS: DefaultRelayDebounceUS,
			RelayWatchdogUS: DefaultRelayWatchdogUS,
			RelayGPIOLine:   DefaultRelayGPIOLine,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Telemetry: TelemetryConfig{
			MQTTEnabled:  false,
			MQTTBroker:   "tcp://127.0.0.1:1883",
			MQTTTopic:    "clapsync",
			WSEnabled:    false,
			WSListenAddr: ":8080",
		},
	}
}
