package choreoplan

// AnalyzeSong runs the full offline pipeline (spec §4.H) over a mono
// PCM buffer: onset envelope, BPM estimate, beat grid, energy profile,
// section detection, repeated-pattern detection, and drop/buildup
// markers.
func AnalyzeSong(samples []float64, sampleRate float64) *SongMap {
	durationMs := float64(len(samples)) / sampleRate * 1000

	windows := analyzeWindows(samples, sampleRate)
	onsets := detectOnsets(windows)
	bpm := estimateBPM(onsets)
	beats, downbeats := quantiseToGrid(durationMs, bpm)

	profile := buildEnergyProfile(windows, durationMs)
	sections := detectSections(profile, beats)
	patterns := detectRepeatedPatterns(profile, beats)
	drops, buildups := detectDrops(profile)

	return &SongMap{
		DurationMs:       durationMs,
		BPM:              bpm,
		TimeSignature:    [2]int{4, 4},
		Beats:            beats,
		Downbeats:        downbeats,
		Sections:         sections,
		RepeatedPatterns: patterns,
		EnergyProfile:    profile,
		Drops:            drops,
		Buildups:         buildups,
	}
}
