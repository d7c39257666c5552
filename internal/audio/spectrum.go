// Package audio implements the feature extractor (spec §4.A): it turns
// an FFT magnitude spectrum into band energies, onset strengths, and
// spectral shape descriptors, one tick at a time.
package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// SpectrumComputer turns raw mono PCM samples into a normalised FFT
// magnitude spectrum, reusing scratch buffers across calls to keep
// per-tick allocation flat on the real-time path.
type SpectrumComputer struct {
	fft        *fourier.FFT
	windowFunc []float64
	windowed   []float64
	coeffs     []complex128
	sampleRate float64
}

// NewSpectrumComputer builds a computer for a fixed analysis window
// size (spec uses 1024-sample windows with a 512-sample hop for live
// onset detection).
func NewSpectrumComputer(windowSize int, sampleRate float64) *SpectrumComputer {
	return &SpectrumComputer{
		fft:        fourier.NewFFT(windowSize),
		windowFunc: window.Hann(make([]float64, windowSize)),
		windowed:   make([]float64, windowSize),
		sampleRate: sampleRate,
	}
}

// SampleRate reports the sample rate this computer was built for.
func (s *SpectrumComputer) SampleRate() float64 { return s.sampleRate }

// Magnitudes computes a normalised magnitude spectrum for one window of
// mono samples. The window length must match the configured size.
func (s *SpectrumComputer) Magnitudes(samples []float64) []float64 {
	if len(samples) != len(s.windowFunc) {
		return nil
	}
	copy(s.windowed, samples)
	for i, w := range s.windowFunc {
		s.windowed[i] *= w
	}
	s.coeffs = s.fft.Coefficients(s.coeffs, s.windowed)

	mags := make([]float64, len(s.coeffs))
	var peak float64
	for i, c := range s.coeffs {
		m := cmplxAbs(c)
		mags[i] = m
		if m > peak {
			peak = m
		}
	}
	if peak > 1e-12 {
		for i := range mags {
			mags[i] /= peak
		}
	}
	return mags
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
