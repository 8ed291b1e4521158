// SPDX-License-Identifier: MIT
/*
Package audio implements the microphone capture front end:
- Lock-free audio capture using PortAudio
- Per-sample conversion to the detector's 12-bit amplitude domain
- WAV recording with atomic state management

Thread Safety:
- Uses atomic operations for state management
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
*/
package audio

import (
	"math"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"clapsync/internal/config"
	"clapsync/internal/detect"
	applog "clapsync/internal/log"
	"clapsync/internal/timing"
)

// amplitudeShift maps the int32 sample magnitude onto the 12-bit domain:
// 2^31 >> 19 == 2^12.
const amplitudeShift = 19

// Engine owns the capture stream and drives the onset detector from the
// PortAudio callback. The callback is the single sampling context; the
// detector is touched from nowhere else while the stream runs.
type Engine struct {
	cfg      *config.Config
	clock    timing.Clock
	detector *detect.Detector
	onOnset  func(detect.OnsetEvent)

	// Audio input handling.
	inputBuffer    []int32
	inputDevice    *portaudio.DeviceInfo
	inputLatency   time.Duration
	inputStream    *portaudio.Stream
	samplePeriodUS float64

	// Recording state and buffers.
	isRecording int32 // Atomic flag for thread-safe state.
	wavEncoder  *wav.Encoder
	wavFile     *os.File
	sampleBuf   *audio.IntBuffer
	bitShift    uint
}

// NewEngine creates a capture engine. onOnset receives every detected onset
// from the callback context and must not block; the bridge's enqueue
// satisfies that.
func NewEngine(cfg *config.Config, clock timing.Clock, detector *detect.Detector, onOnset func(detect.OnsetEvent)) *Engine {
	inputSize := cfg.Audio.FramesPerBuffer * cfg.Audio.Channels

	return &Engine{
		cfg:            cfg,
		clock:          clock,
		detector:       detector,
		onOnset:        onOnset,
		inputBuffer:    make([]int32, inputSize),
		samplePeriodUS: 1e6 / cfg.Audio.SampleRate,
	}
}

// StartInputStream resolves the input device and begins capture. The first
// callback marks the start of the hot path.
func (e *Engine) StartInputStream() error {
	device, err := InputDevice(e.cfg.Audio.InputDevice)
	if err != nil {
		return err
	}
	e.inputDevice = device

	if e.cfg.Audio.LowLatency {
		e.inputLatency = device.DefaultLowInputLatency
	} else {
		e.inputLatency = device.DefaultHighInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.cfg.Audio.Channels,
			Device:   device,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: e.cfg.Audio.FramesPerBuffer,
		SampleRate:      e.cfg.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		return err
	}

	applog.Infof("Audio: capture started on '%s' (%.0f Hz, %d frames/buffer)",
		device.Name, e.cfg.Audio.SampleRate, e.cfg.Audio.FramesPerBuffer)
	return nil
}

// StopInputStream halts capture and releases the stream.
func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}
		if err := e.inputStream.Close(); err != nil {
			return err
		}
		e.inputStream = nil
	}
	return nil
}

// Close stops recording and capture.
func (e *Engine) Close() error {
	if atomic.LoadInt32(&e.isRecording) == 1 {
		if err := e.StopRecording(); err != nil {
			return err
		}
	}
	return e.StopInputStream()
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	copy(e.inputBuffer, in)
	e.processBuffer(e.inputBuffer[:len(in)], e.clock.NowUS())

	if atomic.LoadInt32(&e.isRecording) == 1 && e.wavEncoder != nil {
		e.writeRecording(e.inputBuffer[:len(in)])
	}
}

// processBuffer feeds one capture buffer through the detector, assigning each
// frame a timestamp spaced at the nominal sample period from the buffer
// arrival time. Multi-channel input uses the first channel.
func (e *Engine) processBuffer(buffer []int32, baseUS uint64) {
	channels := e.cfg.Audio.Channels
	if channels < 1 {
		channels = 1
	}

	frame := 0
	for i := 0; i < len(buffer); i += channels {
		ts := baseUS + uint64(float64(frame)*e.samplePeriodUS)
		if ev, ok := e.detector.ProcessSample(amplitudeFromSample(buffer[i]), ts); ok {
			if e.onOnset != nil {
				e.onOnset(ev)
			}
		}
		frame++
	}
}

// amplitudeFromSample rectifies a full-scale int32 sample into the 12-bit
// amplitude domain.
func amplitudeFromSample(sample int32) uint16 {
	if sample == math.MinInt32 {
		return config.MaxAmplitude
	}
	if sample < 0 {
		sample = -sample
	}
	amp := uint32(sample) >> amplitudeShift
	if amp > config.MaxAmplitude {
		amp = config.MaxAmplitude
	}
	return uint16(amp)
}
