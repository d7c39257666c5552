package audio

import "math"

const fluxHistoryLimit = 10

// Bands holds the three coarse energy bands and the overall weighted
// energy derived from them (spec §4.A).
type Bands struct {
	Bass   float64
	Mid    float64
	High   float64
	Energy float64
}

// Onsets holds the band onset strengths (spec's "band onsets"), one
// per percussive frequency range.
type Onsets struct {
	Kick  float64
	Snare float64
	Hihat float64
}

// Spectral holds the shape descriptors computed from the magnitude
// spectrum.
type Spectral struct {
	Centroid float64
	Flux     float64
	Rolloff  float64
	Flatness float64
}

// Features is the full per-tick output of the feature extractor.
type Features struct {
	Bands    Bands
	Onsets   Onsets
	Spectral Spectral
}

// frequency ranges for the three percussive onset bands, in Hz (spec §3).
const (
	kickLowHz, kickHighHz   = 20, 344
	snareLowHz, snareHighHz = 430, 1290
	hihatLowHz, hihatHighHz = 2600, 6900
)

// FeatureExtractor is a pure per-call transform from a magnitude
// spectrum to Features, except for a short ring of recent spectra it
// keeps to compute spectral flux.
type FeatureExtractor struct {
	sampleRate float64
	history    [][]float64
}

// NewFeatureExtractor builds an extractor for spectra produced at the
// given sample rate.
func NewFeatureExtractor(sampleRate float64) *FeatureExtractor {
	return &FeatureExtractor{sampleRate: sampleRate}
}

// Update computes Features for one magnitude spectrum. An empty
// spectrum fails silently, returning the zero value, matching the
// real-time path's no-panics contract (spec §7).
func (e *FeatureExtractor) Update(spectrum []float64) Features {
	n := len(spectrum)
	if n == 0 {
		return Features{}
	}

	f := Features{
		Bands:    computeBands(spectrum),
		Onsets:   e.computeOnsets(spectrum),
		Spectral: e.computeSpectral(spectrum),
	}

	e.history = append(e.history, append([]float64(nil), spectrum...))
	if len(e.history) > fluxHistoryLimit {
		e.history = e.history[len(e.history)-fluxHistoryLimit:]
	}
	return f
}

func computeBands(spectrum []float64) Bands {
	bass := meanRange(spectrum, 0, 5)
	mid := meanRange(spectrum, 5, 30)
	high := meanRange(spectrum, 30, 100)
	return Bands{
		Bass:   bass,
		Mid:    mid,
		High:   high,
		Energy: 0.5*bass + 0.3*mid + 0.2*high,
	}
}

func (e *FeatureExtractor) binWidth(n int) float64 {
	if n < 2 {
		return 0
	}
	return (e.sampleRate / 2) / float64(n-1)
}

func (e *FeatureExtractor) computeOnsets(spectrum []float64) Onsets {
	bw := e.binWidth(len(spectrum))
	if bw <= 0 {
		return Onsets{}
	}
	return Onsets{
		Kick:  meanHzRange(spectrum, bw, kickLowHz, kickHighHz),
		Snare: meanHzRange(spectrum, bw, snareLowHz, snareHighHz),
		Hihat: meanHzRange(spectrum, bw, hihatLowHz, hihatHighHz),
	}
}

func (e *FeatureExtractor) computeSpectral(spectrum []float64) Spectral {
	return Spectral{
		Centroid: e.centroid(spectrum),
		Flux:     e.flux(spectrum),
		Rolloff:  e.rolloff(spectrum),
		Flatness: flatness(spectrum),
	}
}

// centroid is the weighted mean frequency, normalised against a 10 kHz
// reference and clamped to [0,1].
func (e *FeatureExtractor) centroid(spectrum []float64) float64 {
	bw := e.binWidth(len(spectrum))
	var weighted, total float64
	for i, mag := range spectrum {
		freq := float64(i) * bw
		weighted += freq * mag
		total += mag
	}
	if total < 1e-9 {
		return 0
	}
	return clamp01((weighted / total) / 10000)
}

// flux sums the positive bin-wise deltas against the most recent
// spectrum in history, normalised by spectrum length. With no prior
// spectrum, flux is 0.
func (e *FeatureExtractor) flux(spectrum []float64) float64 {
	if len(e.history) == 0 {
		return 0
	}
	prev := e.history[len(e.history)-1]
	n := len(spectrum)
	if len(prev) != n {
		return 0
	}
	var sum float64
	for i := range spectrum {
		d := spectrum[i] - prev[i]
		if d > 0 {
			sum += d
		}
	}
	return clamp01(sum / float64(n))
}

// rolloff is the normalised bin index at which cumulative energy first
// reaches 85% of total energy.
func (e *FeatureExtractor) rolloff(spectrum []float64) float64 {
	var total float64
	for _, mag := range spectrum {
		total += mag * mag
	}
	if total < 1e-9 {
		return 0
	}
	target := total * 0.85
	var cumulative float64
	for i, mag := range spectrum {
		cumulative += mag * mag
		if cumulative >= target {
			return clamp01(float64(i) / float64(len(spectrum)-1))
		}
	}
	return 1
}

// flatness is the ratio of the geometric mean to the arithmetic mean
// of the magnitudes, a measure of how noise-like the spectrum is.
func flatness(spectrum []float64) float64 {
	var logSum, sum float64
	count := 0
	for _, mag := range spectrum {
		if mag <= 1e-12 {
			continue
		}
		logSum += math.Log(mag)
		sum += mag
		count++
	}
	if count == 0 || sum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(count))
	arithMean := sum / float64(count)
	if arithMean < 1e-12 {
		return 0
	}
	return clamp01(geoMean / arithMean)
}

func meanRange(spectrum []float64, lo, hi int) float64 {
	if hi > len(spectrum) {
		hi = len(spectrum)
	}
	if lo >= hi {
		return 0
	}
	var sum float64
	for i := lo; i < hi; i++ {
		sum += spectrum[i]
	}
	return sum / float64(hi-lo)
}

func meanHzRange(spectrum []float64, binWidth, loHz, hiHz float64) float64 {
	lo := int(math.Floor(loHz / binWidth))
	hi := int(math.Ceil(hiHz / binWidth))
	return meanRange(spectrum, lo, hi+1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
