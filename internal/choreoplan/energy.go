package choreoplan

import "math"

const (
	energyResolutionMs = 50

	noveltySmoothWindow   = 20
	noveltyThreshold      = 0.15
	minSectionGapBeats    = 8
	introOutroFraction    = 0.08
	dropEnergyThreshold   = 0.8
	chorusEnergyThreshold = 0.65
	breakdownEnergyMax    = 0.25
	verseEnergyMax        = 0.4
	repeatEnergyTolerance = 0.1

	patternWindowBeats  = 4
	patternHopBeats     = 1
	patternSimilarity   = 0.80
	patternMinOccurs    = 2

	dropSmoothWindow     = 15
	dropLookbackSamples  = 5
	dropRiseThreshold    = 0.3
	dropEnergyFloor      = 0.7
	dropDedupeMs         = 2000
	buildupEnergyFloor   = 0.4
)

// buildEnergyProfile resamples the per-window bands onto a fixed
// 50ms grid, normalising band energies against the buffer's peak band
// energy (spec §4.H step 4).
func buildEnergyProfile(windows []windowFeature, durationMs float64) []EnergySample {
	if len(windows) == 0 {
		return nil
	}
	peak := 0.0
	for _, w := range windows {
		peak = math.Max(peak, math.Max(w.bands.Bass, math.Max(w.bands.Mid, w.bands.High)))
	}
	if peak < 1e-9 {
		peak = 1
	}

	var profile []EnergySample
	wi := 0
	for t := 0.0; t <= durationMs; t += energyResolutionMs {
		for wi+1 < len(windows) && windows[wi+1].timeMs <= t {
			wi++
		}
		b := windows[wi].bands
		bass, mid, high := b.Bass/peak, b.Mid/peak, b.High/peak
		profile = append(profile, EnergySample{
			TimeMs:    t,
			Bass:      bass,
			Mid:       mid,
			High:      high,
			Composite: 0.5*bass + 0.3*mid + 0.2*high,
		})
	}
	return profile
}

// smoothComposite returns a moving average of composite energy over
// the given window length.
func smoothComposite(profile []EnergySample, window int) []float64 {
	out := make([]float64, len(profile))
	for i := range profile {
		lo := max(0, i-window/2)
		hi := min(len(profile), i+window/2+1)
		var sum float64
		for j := lo; j < hi; j++ {
			sum += profile[j].Composite
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// detectSections finds novelty-driven boundaries in smoothed energy
// and classifies the resulting segments by relative position and
// energy (spec §4.H step 5).
func detectSections(profile []EnergySample, beats []float64) []Section {
	if len(profile) == 0 || len(beats) == 0 {
		return nil
	}
	smoothed := smoothComposite(profile, noveltySmoothWindow)

	boundaries := []int{0}
	lastBoundarySample := 0
	samplesPerBeat := float64(len(profile)) / float64(len(beats))
	minGapSamples := int(float64(minSectionGapBeats) * samplesPerBeat)

	for i := noveltySmoothWindow; i < len(smoothed)-noveltySmoothWindow; i++ {
		if i-lastBoundarySample < minGapSamples {
			continue
		}
		pre := avgRange(smoothed, i-noveltySmoothWindow, i)
		post := avgRange(smoothed, i, i+noveltySmoothWindow)
		if math.Abs(post-pre) > noveltyThreshold {
			boundaries = append(boundaries, i)
			lastBoundarySample = i
		}
	}
	boundaries = append(boundaries, len(profile))

	var sections []Section
	seen := make(map[SectionType][]float64)
	for i := 0; i < len(boundaries)-1; i++ {
		startSample, endSample := boundaries[i], boundaries[i+1]
		energy := avgRange(smoothed, startSample, endSample)
		startBeat := sampleToBeat(startSample, samplesPerBeat)
		endBeat := sampleToBeat(endSample, samplesPerBeat)

		relStart := float64(startSample) / float64(len(profile))
		relEnd := float64(endSample) / float64(len(profile))
		typ := classifySection(relStart, relEnd, energy)

		isRepeat := false
		for _, e := range seen[typ] {
			if math.Abs(e-energy) <= repeatEnergyTolerance {
				isRepeat = true
				break
			}
		}
		seen[typ] = append(seen[typ], energy)

		sections = append(sections, Section{
			Type:      typ,
			StartBeat: startBeat,
			EndBeat:   endBeat,
			Energy:    energy,
			IsRepeat:  isRepeat,
		})
	}
	return sections
}

func classifySection(relStart, relEnd, energy float64) SectionType {
	switch {
	case relStart < introOutroFraction:
		return SectionIntro
	case relEnd > 1-introOutroFraction:
		return SectionOutro
	case energy > dropEnergyThreshold:
		return SectionDrop
	case energy > chorusEnergyThreshold:
		return SectionChorus
	case energy < breakdownEnergyMax:
		return SectionBreakdown
	case energy < verseEnergyMax:
		return SectionVerse
	default:
		return SectionVerse
	}
}

func avgRange(xs []float64, lo, hi int) float64 {
	lo = max(0, lo)
	hi = min(len(xs), hi)
	if lo >= hi {
		return 0
	}
	var sum float64
	for i := lo; i < hi; i++ {
		sum += xs[i]
	}
	return sum / float64(hi-lo)
}

func sampleToBeat(sample int, samplesPerBeat float64) int {
	if samplesPerBeat <= 0 {
		return 0
	}
	return int(float64(sample) / samplesPerBeat)
}

// detectRepeatedPatterns fingerprints 4-beat windows (1-beat hop) as
// an integer energy curve and groups windows with ≥80% element-wise
// similarity into pattern groups with ≥2 occurrences (spec §4.H
// step 6).
func detectRepeatedPatterns(profile []EnergySample, beats []float64) []RepeatedPattern {
	if len(beats) < patternWindowBeats+1 {
		return nil
	}
	samplesPerBeat := float64(len(profile)) / float64(len(beats))

	type fingerprint struct {
		startBeat int
		curve     []int
	}
	var prints []fingerprint
	for b := 0; b+patternWindowBeats <= len(beats); b += patternHopBeats {
		lo := sampleToSampleIndex(b, samplesPerBeat)
		hi := sampleToSampleIndex(b+patternWindowBeats, samplesPerBeat)
		prints = append(prints, fingerprint{startBeat: b, curve: quantiseCurve(profile, lo, hi)})
	}

	used := make([]bool, len(prints))
	var patterns []RepeatedPattern
	id := 0
	for i := range prints {
		if used[i] {
			continue
		}
		group := []int{prints[i].startBeat}
		var energySum float64
		for j := i + 1; j < len(prints); j++ {
			if used[j] {
				continue
			}
			if curveSimilarity(prints[i].curve, prints[j].curve) >= patternSimilarity {
				group = append(group, prints[j].startBeat)
				used[j] = true
			}
		}
		if len(group) >= patternMinOccurs {
			for _, c := range prints[i].curve {
				energySum += float64(c)
			}
			patterns = append(patterns, RepeatedPattern{
				ID:            patternID(id),
				Occurrences:   group,
				DurationBeats: patternWindowBeats,
				Energy:        energySum / float64(len(prints[i].curve)) / 10,
			})
			id++
		}
	}
	return patterns
}

func patternID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "pattern_" + string(letters[i%len(letters)])
}

func sampleToSampleIndex(beat int, samplesPerBeat float64) int {
	return int(float64(beat) * samplesPerBeat)
}

// quantiseCurve buckets composite energy in [lo,hi) into a 10-level
// integer curve, the "fingerprint" compared for pattern similarity.
func quantiseCurve(profile []EnergySample, lo, hi int) []int {
	lo = max(0, lo)
	hi = min(len(profile), hi)
	curve := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		curve = append(curve, int(profile[i].Composite*10))
	}
	return curve
}

func curveSimilarity(a, b []int) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(n)
}

// detectDrops finds smoothed-energy rises of ≥0.3 above the 15-sample
// average from 5 samples earlier, where the current sample exceeds
// 0.7, deduplicated within 2 seconds; each drop's buildup starts at
// the last time energy fell below 0.4 before it (spec §4.H step 7).
func detectDrops(profile []EnergySample) ([]Drop, []Buildup) {
	if len(profile) == 0 {
		return nil, nil
	}
	smoothed := smoothComposite(profile, dropSmoothWindow)

	var drops []Drop
	var buildups []Buildup
	lastDropMs := math.Inf(-1)
	lastBelowFloorMs := 0.0

	for i, s := range smoothed {
		if profile[i].Composite < buildupEnergyFloor {
			lastBelowFloorMs = profile[i].TimeMs
		}
		if i < dropLookbackSamples+noveltySmoothWindow {
			continue
		}
		lookback := avgRange(smoothed, i-dropLookbackSamples-dropSmoothWindow, i-dropLookbackSamples)
		if s-lookback >= dropRiseThreshold && s > dropEnergyFloor {
			t := profile[i].TimeMs
			if t-lastDropMs < dropDedupeMs {
				continue
			}
			drops = append(drops, Drop{TimeMs: t, Intensity: s})
			buildups = append(buildups, Buildup{StartTimeMs: lastBelowFloorMs, DropTimeMs: t})
			lastDropMs = t
		}
	}
	return drops, buildups
}
