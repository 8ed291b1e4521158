// SPDX-License-Identifier: MIT
//
// Package synth generates synthetic amplitude envelopes and tap sequences for
// tests. Signals live in the detector's 12-bit domain (0-4095).
package synth

import "math"

// Constant returns n samples at a fixed level.
func Constant(level uint16, n int) []uint16 {
	buf := make([]uint16, n)
	for i := range buf {
		buf[i] = level
	}
	return buf
}

// Clap returns a percussive envelope: a linear rise from baseline to peak
// over riseSamples, then an exponential-style decay back to baseline over
// fallSamples. The shape is sharp enough to arm an adaptive threshold seeded
// with baseline samples.
func Clap(baseline, peak uint16, riseSamples, fallSamples int) []uint16 {
	buf := make([]uint16, 0, riseSamples+fallSamples)
	for i := 1; i <= riseSamples; i++ {
		v := float64(baseline) + float64(peak-baseline)*float64(i)/float64(riseSamples)
		buf = append(buf, uint16(v))
	}
	for i := 1; i <= fallSamples; i++ {
		v := float64(baseline) + float64(peak-baseline)*math.Exp(-4*float64(i)/float64(fallSamples))
		buf = append(buf, uint16(v))
	}
	return buf
}

// Taps returns n timestamps starting at startUS spaced intervalUS apart.
func Taps(startUS, intervalUS uint64, n int) []uint64 {
	taps := make([]uint64, n)
	for i := range taps {
		taps[i] = startUS + uint64(i)*intervalUS
	}
	return taps
}

// SineWave returns size int32 samples of a full-scale sine at the given
// frequency, for exercising the capture conversion path.
func SineWave(size int, sampleRate, frequency float64) []int32 {
	buf := make([]int32, size)
	for i := range buf {
		t := float64(i) / sampleRate
		buf[i] = int32(math.Sin(2*math.Pi*frequency*t) * math.MaxInt32 * 0.9)
	}
	return buf
}
