package choreoplan

import "gonum.org/v1/gonum/stat"

const (
	onsetWindowSize    = 1024
	onsetHopSize       = 512
	totalFluxOnset     = 0.1
	strongFluxOnset    = 0.3
	minOnsetIntervalMs = 200
	maxOnsetIntervalMs = 2000
	bpmHistBinMs       = 20
	minPlanBPM         = 60
	maxPlanBPM         = 180
)

// onsetEvent is one detected onset in the offline analysis window.
type onsetEvent struct {
	timeMs          float64
	totalFlux       float64
	bass, mid, high float64
}

// detectOnsets filters the windowed features for an onset wherever
// total spectral flux exceeds 0.1 (spec §4.H step 1).
func detectOnsets(windows []windowFeature) []onsetEvent {
	var events []onsetEvent
	for _, w := range windows {
		if w.flux > totalFluxOnset {
			events = append(events, onsetEvent{
				timeMs:    w.timeMs,
				totalFlux: w.flux,
				bass:      w.bands.Bass,
				mid:       w.bands.Mid,
				high:      w.bands.High,
			})
		}
	}
	return events
}

// estimateBPM finds the peak of a 20ms-binned histogram of intervals
// between strong onsets (flux > 0.3) within [200,2000]ms, then folds
// the result into [60,180] BPM by doubling or halving (spec §4.H
// step 2).
func estimateBPM(events []onsetEvent) float64 {
	var strong []onsetEvent
	for _, e := range events {
		if e.totalFlux > strongFluxOnset {
			strong = append(strong, e)
		}
	}
	if len(strong) < 2 {
		return minPlanBPM
	}

	var intervals []float64
	for i := 1; i < len(strong); i++ {
		d := strong[i].timeMs - strong[i-1].timeMs
		if d >= minOnsetIntervalMs && d <= maxOnsetIntervalMs {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return minPlanBPM
	}

	numBins := int((maxOnsetIntervalMs-minOnsetIntervalMs)/bpmHistBinMs) + 1
	counts := make([]int, numBins)
	for _, d := range intervals {
		bin := int((d - minOnsetIntervalMs) / bpmHistBinMs)
		if bin >= 0 && bin < numBins {
			counts[bin]++
		}
	}

	bestBin, bestCount := 0, -1
	for i, c := range counts {
		if c > bestCount {
			bestCount = c
			bestBin = i
		}
	}
	peakIntervalMs := minOnsetIntervalMs + float64(bestBin)*bpmHistBinMs + bpmHistBinMs/2
	bpm := 60000 / peakIntervalMs

	for bpm < minPlanBPM {
		bpm *= 2
	}
	for bpm > maxPlanBPM {
		bpm /= 2
	}
	return bpm
}

// quantiseToGrid lays a fixed-BPM beat grid across the full duration
// (spec §4.H step 3). Every 4th beat is a downbeat.
func quantiseToGrid(durationMs, bpm float64) (beats []float64, downbeats []int) {
	beatDurationMs := 60000 / bpm
	for t, i := 0.0, 0; t <= durationMs; t, i = t+beatDurationMs, i+1 {
		beats = append(beats, t)
		if i%4 == 0 {
			downbeats = append(downbeats, i)
		}
	}
	return beats, downbeats
}

// meanStd is a thin wrapper around gonum/stat returning the mean and
// standard deviation of xs. Nothing in the package calls it.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean = stat.Mean(xs, nil)
	std = stat.StdDev(xs, nil)
	return mean, std
}
