// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"clapsync/internal/config"
	"clapsync/internal/detect"
	"clapsync/internal/timing"
	"clapsync/pkg/synth"
)

func newRecordingEngine(t *testing.T) (*Engine, *config.Config) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Recording.OutputDir = t.TempDir()
	detector := detect.NewDetector(cfg.Detect)
	return NewEngine(cfg, timing.NewManualClock(0), detector, nil), cfg
}

func TestRecordingRoundTrip(t *testing.T) {
	e, cfg := newRecordingEngine(t)

	path := filepath.Join(cfg.Recording.OutputDir, "test.wav")
	if err := e.StartRecording(path); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	samples := synth.SineWave(256, cfg.Audio.SampleRate, 440)
	e.writeRecording(samples)

	if err := e.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}

	if int(dec.BitDepth) != cfg.Recording.BitDepth {
		t.Errorf("bit depth: got %d, want %d", dec.BitDepth, cfg.Recording.BitDepth)
	}
	if int(dec.SampleRate) != int(cfg.Audio.SampleRate) {
		t.Errorf("sample rate: got %d, want %.0f", dec.SampleRate, cfg.Audio.SampleRate)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("samples: got %d, want %d", len(buf.Data), len(samples))
	}

	// 16-bit recording truncates the int32 samples by 16 bits.
	for i := range samples {
		if buf.Data[i] != int(samples[i]>>16) {
			t.Fatalf("sample %d: got %d, want %d", i, buf.Data[i], samples[i]>>16)
		}
	}
}

func TestRecordingDerivedFilename(t *testing.T) {
	e, cfg := newRecordingEngine(t)

	if err := e.StartRecording(""); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	e.writeRecording(synth.SineWave(64, cfg.Audio.SampleRate, 440))
	if err := e.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(cfg.Recording.OutputDir, "capture-*.wav"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("derived recording file: matches=%v err=%v", matches, err)
	}
}

func TestStartRecordingTwiceFails(t *testing.T) {
	e, cfg := newRecordingEngine(t)

	path := filepath.Join(cfg.Recording.OutputDir, "test.wav")
	if err := e.StartRecording(path); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := e.StartRecording(path); err == nil {
		t.Error("second StartRecording succeeded")
	}
	e.StopRecording()
}

func TestStopRecordingWhenIdleIsNoOp(t *testing.T) {
	e, _ := newRecordingEngine(t)
	if err := e.StopRecording(); err != nil {
		t.Errorf("StopRecording when idle: %v", err)
	}
}
