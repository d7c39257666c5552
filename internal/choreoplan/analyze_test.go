package choreoplan

import (
	"math"
	"testing"
)

const testSampleRate = 8000.0

// syntheticTone builds a buffer of the given duration filled with a
// low-frequency tone scaled by amplitude, used to drive energy up or
// down for section/drop detection tests without real audio.
func syntheticTone(durationMs, amplitude, freqHz float64) []float64 {
	n := int(durationMs / 1000 * testSampleRate)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / testSampleRate
		out[i] = amplitude * math.Sin(2*math.Pi*freqHz*t)
	}
	return out
}

func TestAnalyzeSongProducesBeatsWithinBPMRange(t *testing.T) {
	samples := syntheticTone(4000, 0.5, 110)
	sm := AnalyzeSong(samples, testSampleRate)
	if sm.BPM < minPlanBPM || sm.BPM > maxPlanBPM {
		t.Fatalf("expected BPM within [%d,%d], got %f", minPlanBPM, maxPlanBPM, sm.BPM)
	}
	if len(sm.Beats) == 0 {
		t.Fatal("expected at least one beat in the grid")
	}
}

func TestEveryFourthBeatIsDownbeat(t *testing.T) {
	beats, downbeats := quantiseToGrid(4000, 120)
	if len(beats) == 0 {
		t.Fatal("expected beats to be generated")
	}
	for _, d := range downbeats {
		if d%4 != 0 {
			t.Fatalf("expected downbeat index %d to be a multiple of 4", d)
		}
	}
}

func TestOfflineDropDetectionOnSyntheticRise(t *testing.T) {
	quiet := syntheticTone(4000, 0.2, 110)
	rise := syntheticTone(100, 0.9, 110)
	loud := syntheticTone(3000, 0.9, 110)

	samples := append(append(append([]float64{}, quiet...), rise...), loud...)
	sm := AnalyzeSong(samples, testSampleRate)

	if len(sm.Drops) == 0 {
		t.Fatal("expected at least one drop marker on a synthetic energy rise")
	}
	for _, d := range sm.Drops {
		if d.Intensity < dropEnergyFloor {
			t.Fatalf("expected drop intensity >= %f, got %f", dropEnergyFloor, d.Intensity)
		}
	}
}

func TestClassifySectionBoundaryRules(t *testing.T) {
	cases := []struct {
		relStart, relEnd, energy float64
		want                     SectionType
	}{
		{0.01, 0.1, 0.5, SectionIntro},
		{0.5, 0.9, 0.9, SectionDrop},
		{0.5, 0.9, 0.7, SectionChorus},
		{0.5, 0.9, 0.1, SectionBreakdown},
	}
	for _, c := range cases {
		if got := classifySection(c.relStart, c.relEnd, c.energy); got != c.want {
			t.Errorf("classifySection(%v,%v,%v) = %s, want %s", c.relStart, c.relEnd, c.energy, got, c.want)
		}
	}
}
