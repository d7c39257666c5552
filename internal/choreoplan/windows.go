package choreoplan

import "github.com/cartomix/choreo/internal/audio"

// windowFeature is the raw per-analysis-window output shared by onset
// detection and the energy profile, so the FFT only runs once per
// 512-sample hop over the whole buffer.
type windowFeature struct {
	timeMs float64
	bands  audio.Bands
	flux   float64
}

// analyzeWindows slides the 1024-window/512-hop analysis across the
// full buffer once, returning every window's bands and spectral flux.
func analyzeWindows(samples []float64, sampleRate float64) []windowFeature {
	if len(samples) < onsetWindowSize {
		return nil
	}
	spectrumC := audio.NewSpectrumComputer(onsetWindowSize, sampleRate)
	extractor := audio.NewFeatureExtractor(sampleRate)

	var out []windowFeature
	for start := 0; start+onsetWindowSize <= len(samples); start += onsetHopSize {
		mags := spectrumC.Magnitudes(samples[start : start+onsetWindowSize])
		feat := extractor.Update(mags)
		out = append(out, windowFeature{
			timeMs: float64(start) / sampleRate * 1000,
			bands:  feat.Bands,
			flux:   feat.Spectral.Flux,
		})
	}
	return out
}
