// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches default locations ("config.yaml"). If no file is
// found, built-in defaults are used. After loading, environment variable
// overrides are applied and the final configuration is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"/etc/clapsync/config.yaml",
		}
		found := false
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				found = true
				break
			}
		}
		if !found {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Detect.WindowSize <= 1 {
		return fmt.Errorf("detect.window_size must be at least 2, got %d", c.Detect.WindowSize)
	}
	if c.Detect.ThresholdFactor <= 0 || c.Detect.ThresholdFactor > 1 {
		return fmt.Errorf("detect.threshold_factor %.2f outside (0, 1]", c.Detect.ThresholdFactor)
	}
	if c.BPM.MinBPM <= 0 || c.BPM.MaxBPM <= c.BPM.MinBPM {
		return fmt.Errorf("bpm range [%.0f, %.0f] is invalid", c.BPM.MinBPM, c.BPM.MaxBPM)
	}
	if c.Output.PPQN <= 0 {
		return fmt.Errorf("output.ppqn must be positive, got %d", c.Output.PPQN)
	}
	switch c.Output.Mode {
	case ModeMIDIOnly, ModeRelayOnly, ModeBoth, ModeDisabled:
	default:
		return fmt.Errorf("output.mode '%s' unknown (midi/relay/both/disabled)", c.Output.Mode)
	}
	if c.Output.Mode != ModeRelayOnly && c.Output.Mode != ModeDisabled && c.Output.PeerAddress == "" {
		return fmt.Errorf("output.peer_address must be set when MIDI output is enabled")
	}
	return nil
}

// applyEnvOverrides applies CLAPSYNC_* environment variables on top of the
// loaded configuration. Only operationally useful knobs are exposed this way.
func (cfg *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("CLAPSYNC_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("CLAPSYNC_PEER_ADDRESS"); ok {
		cfg.Output.PeerAddress = val
	}
	if val, ok := os.LookupEnv("CLAPSYNC_OUTPUT_MODE"); ok {
		cfg.Output.Mode = OutputMode(val)
	}
	if val, ok := os.LookupEnv("CLAPSYNC_MQTT_BROKER"); ok {
		cfg.Telemetry.MQTTBroker = val
		cfg.Telemetry.MQTTEnabled = true
	}
}
