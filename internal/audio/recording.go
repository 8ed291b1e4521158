// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "clapsync/internal/log"
)

// StartRecording begins writing the analyzed input to a WAV file. An empty
// filename derives one from the configured output directory and the current
// time.
func (e *Engine) StartRecording(filename string) error {
	if atomic.LoadInt32(&e.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	if filename == "" {
		dir := e.cfg.Recording.OutputDir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording directory: %w", err)
		}
		filename = filepath.Join(dir,
			"capture-"+time.Now().UTC().Format("02-01-2006-150405")+".wav")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.wavFile = file

	bitDepth := e.cfg.Recording.BitDepth
	switch bitDepth {
	case 16, 24, 32:
	default:
		bitDepth = 16
	}
	// Captured samples are int32 full scale; the encoder gets them shifted
	// down to the recorded depth.
	e.bitShift = uint(32 - bitDepth)

	e.wavEncoder = wav.NewEncoder(file, int(e.cfg.Audio.SampleRate),
		bitDepth, e.cfg.Audio.Channels, 1)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: e.cfg.Audio.Channels,
			SampleRate:  int(e.cfg.Audio.SampleRate),
		},
		Data: make([]int, e.cfg.Audio.FramesPerBuffer*e.cfg.Audio.Channels),
	}

	atomic.StoreInt32(&e.isRecording, 1)
	applog.Infof("Audio: recording to %s (%d-bit)", filename, bitDepth)

	return nil
}

// StopRecording finalizes the WAV file.
func (e *Engine) StopRecording() error {
	if atomic.LoadInt32(&e.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&e.isRecording, 0)

	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			return err
		}
		e.wavEncoder = nil
	}

	if e.wavFile != nil {
		if err := e.wavFile.Close(); err != nil {
			return err
		}
		e.wavFile = nil
	}

	return nil
}

// writeRecording appends one capture buffer to the WAV file. Called from the
// stream callback while the recording flag is set.
func (e *Engine) writeRecording(buffer []int32) {
	e.sampleBuf.Data = e.sampleBuf.Data[:len(buffer)]
	for i, sample := range buffer {
		e.sampleBuf.Data[i] = int(sample >> e.bitShift)
	}

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("Audio: error writing to WAV file: %v", err)
	}
}
