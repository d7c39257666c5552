// Package beat implements the beat and phrase tracker (spec §4.B): an
// adaptive-threshold detector over bass energy that estimates BPM and
// keeps bar/phrase counters in sync with detected beats.
package beat

import (
	"math"
	"sort"
)

const (
	historyLimit     = 60
	beatRingLimit    = 16
	minIntervalMs    = 250
	maxIntervalMs    = 1500
	minBPM           = 60
	maxBPM           = 200
	fallbackBPM      = 120
	barModulus       = 16
	phraseModulus    = 8
	phraseCycleBeats = 32
)

// PhraseSection is one of the five named spans of the 32-beat phrase
// cycle: three 8-beat spans (intro, verse A, verse B) followed by two
// 4-beat spans (chorus, drop) (spec §4.B).
type PhraseSection string

const (
	SectionIntro  PhraseSection = "INTRO"
	SectionVerseA PhraseSection = "VERSE_A"
	SectionVerseB PhraseSection = "VERSE_B"
	SectionChorus PhraseSection = "CHORUS"
	SectionDrop   PhraseSection = "DROP"
)

// State is the tracker's estimate of tempo and position, the durable
// shape of spec §3's "beat tracker state".
type State struct {
	BPM          float64
	Confidence   float64
	BeatPos      float64
	BeatCounter  int
	BarCounter   int
	PhraseCounter int
	JustDetected bool
}

// Tracker holds the rolling history an adaptive threshold is computed
// from, plus the beat timestamps used to estimate tempo.
type Tracker struct {
	bassHistory []float64
	beatTimes   []float64 // ms, monotonic
	lastBeatMs  float64
	haveLast    bool

	beatCounter   int
	barCounter    int
	phraseCounter int

	autoBPM   bool
	manualBPM float64
}

// NewTracker builds an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{autoBPM: true}
}

// SetBPM overrides the estimated BPM with a fixed value and disables
// auto-detection, matching the inbound engine API's `set_bpm`.
func (t *Tracker) SetBPM(bpm float64) {
	t.manualBPM = bpm
	t.autoBPM = false
}

// SetAutoBPM toggles automatic BPM estimation back on or off.
func (t *Tracker) SetAutoBPM(auto bool) {
	t.autoBPM = auto
}

// AutoBPM reports whether automatic BPM estimation is active.
func (t *Tracker) AutoBPM() bool { return t.autoBPM }

// Update pushes one tick's bass energy and current timestamp (ms,
// monotonic) through the detector and returns the resulting state.
func (t *Tracker) Update(bass float64, nowMs float64) State {
	t.bassHistory = append(t.bassHistory, bass)
	if len(t.bassHistory) > historyLimit {
		t.bassHistory = t.bassHistory[len(t.bassHistory)-historyLimit:]
	}

	detected := false
	threshold := t.adaptiveThreshold()
	if bass > threshold && t.intervalOK(nowMs) {
		t.beatTimes = append(t.beatTimes, nowMs)
		if len(t.beatTimes) > beatRingLimit {
			t.beatTimes = t.beatTimes[len(t.beatTimes)-beatRingLimit:]
		}
		t.lastBeatMs = nowMs
		t.haveLast = true
		detected = true

		t.beatCounter++
		t.barCounter = t.beatCounter % barModulus
		t.phraseCounter = t.beatCounter % phraseModulus
	}

	bpm, confidence := t.estimateBPM()
	if !t.autoBPM && t.manualBPM > 0 {
		bpm, confidence = t.manualBPM, 1
	}
	beatDurationMs := 60000 / bpm

	var beatPos float64
	if t.haveLast {
		elapsed := math.Mod(nowMs, beatDurationMs)
		beatPos = elapsed / beatDurationMs
	}

	return State{
		BPM:           bpm,
		Confidence:    confidence,
		BeatPos:       beatPos,
		BeatCounter:   t.beatCounter,
		BarCounter:    t.barCounter,
		PhraseCounter: t.phraseCounter,
		JustDetected:  detected,
	}
}

// TapBeat manually registers a beat at nowMs, subject to the same
// min/max interval guard as automatic detection (spec §4.B).
func (t *Tracker) TapBeat(nowMs float64) bool {
	if !t.intervalOK(nowMs) {
		return false
	}
	t.beatTimes = append(t.beatTimes, nowMs)
	if len(t.beatTimes) > beatRingLimit {
		t.beatTimes = t.beatTimes[len(t.beatTimes)-beatRingLimit:]
	}
	t.lastBeatMs = nowMs
	t.haveLast = true
	t.beatCounter++
	t.barCounter = t.beatCounter % barModulus
	t.phraseCounter = t.beatCounter % phraseModulus
	return true
}

func (t *Tracker) intervalOK(nowMs float64) bool {
	if !t.haveLast {
		return true
	}
	delta := nowMs - t.lastBeatMs
	return delta >= minIntervalMs && delta <= maxIntervalMs
}

// adaptiveThreshold is τ = max(μ·1.3, μ + (peak − μ)·0.35, peak·0.4).
func (t *Tracker) adaptiveThreshold() float64 {
	if len(t.bassHistory) == 0 {
		return math.Inf(1)
	}
	mean, peak := meanAndPeak(t.bassHistory)
	a := mean * 1.3
	b := mean + (peak-mean)*0.35
	c := peak * 0.4
	return math.Max(a, math.Max(b, c))
}

func meanAndPeak(xs []float64) (mean, peak float64) {
	var sum float64
	for _, x := range xs {
		sum += x
		if x > peak {
			peak = x
		}
	}
	mean = sum / float64(len(xs))
	return mean, peak
}

// estimateBPM computes BPM from the median adjacent interval between
// recent beats, with confidence drawn from their coefficient of
// variation. Fewer than 2 beats falls back to 120 BPM, 0 confidence
// (spec §4.B's failure mode).
func (t *Tracker) estimateBPM() (bpm, confidence float64) {
	if len(t.beatTimes) < 2 {
		return fallbackBPM, 0
	}
	intervals := make([]float64, 0, len(t.beatTimes)-1)
	for i := 1; i < len(t.beatTimes); i++ {
		intervals = append(intervals, t.beatTimes[i]-t.beatTimes[i-1])
	}
	median := medianOf(intervals)
	if median <= 0 {
		return fallbackBPM, 0
	}
	bpm = 60000 / median
	for bpm < minBPM {
		bpm *= 2
	}
	for bpm > maxBPM {
		bpm /= 2
	}

	mean, _ := meanAndPeak(intervals)
	var variance float64
	for _, v := range intervals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(intervals))
	sigma := math.Sqrt(variance)
	if mean <= 0 {
		confidence = 0
	} else {
		confidence = math.Max(0, 1-2*sigma/mean)
	}
	return bpm, confidence
}

func medianOf(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// PhraseSectionFor maps a beat index into its 32-beat phrase cycle
// section (spec §4.B).
func PhraseSectionFor(beatIndex int) PhraseSection {
	switch pos := beatIndex % phraseCycleBeats; {
	case pos <= 7:
		return SectionIntro
	case pos <= 15:
		return SectionVerseA
	case pos <= 23:
		return SectionVerseB
	case pos <= 27:
		return SectionChorus
	default:
		return SectionDrop
	}
}
