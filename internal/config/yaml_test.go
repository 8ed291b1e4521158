// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Output.PPQN != DefaultPPQN {
		t.Errorf("default ppqn: got %d, want %d", cfg.Output.PPQN, DefaultPPQN)
	}
	if cfg.Detect.WindowSize != DefaultWindowSize {
		t.Errorf("default window size: got %d, want %d", cfg.Detect.WindowSize, DefaultWindowSize)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
output:
  mode: relay
  relay_pulse_us: 75000
detect:
  noise_floor_enforce: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Output.Mode != ModeRelayOnly {
		t.Errorf("output mode: got %s, want relay", cfg.Output.Mode)
	}
	if cfg.Output.RelayPulseUS != 75000 {
		t.Errorf("relay pulse: got %d, want 75000", cfg.Output.RelayPulseUS)
	}
	if !cfg.Detect.NoiseFloorEnforce {
		t.Error("noise_floor_enforce should be true")
	}
	// Untouched sections keep defaults.
	if cfg.Output.PPQN != DefaultPPQN {
		t.Errorf("ppqn default lost: got %d", cfg.Output.PPQN)
	}
}

func TestLoadConfig_ValidationRejectsBadMode(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "output:\n  mode: loud\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "output.mode") {
		t.Errorf("expected mode validation error, got %v", err)
	}
}

func TestLoadConfig_ValidationRejectsBadBPMRange(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "bpm:\n  min_bpm: 240\n  max_bpm: 40\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "bpm range") {
		t.Errorf("expected bpm range error, got %v", err)
	}
}
