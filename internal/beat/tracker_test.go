package beat

import "testing"

func TestFewerThanTwoBeatsFallsBackTo120(t *testing.T) {
	tr := NewTracker()
	state := tr.Update(0.1, 0)
	if state.BPM != fallbackBPM || state.Confidence != 0 {
		t.Fatalf("expected fallback {120, 0}, got {%f, %f}", state.BPM, state.Confidence)
	}
}

func TestSteadyMetronomeConvergesNear120BPM(t *testing.T) {
	tr := NewTracker()
	// 500ms between beats == 120 BPM. Feed quiet samples between beats
	// and a spike on each beat so the adaptive threshold fires.
	var last State
	beatIntervalMs := 500.0
	for i := 0; i < 40; i++ {
		ms := float64(i) * 50
		bass := 0.05
		if i%10 == 0 {
			bass = 1.0
		}
		last = tr.Update(bass, ms)
		_ = beatIntervalMs
	}
	if last.BPM < 100 || last.BPM > 140 {
		t.Fatalf("expected BPM near 120 for a steady metronome, got %f", last.BPM)
	}
}

func TestIntervalGuardRejectsTooFastBeats(t *testing.T) {
	tr := NewTracker()
	tr.Update(1.0, 0)
	// second beat arrives 100ms later, under the 250ms minimum
	state := tr.Update(1.0, 100)
	if state.JustDetected {
		t.Fatal("expected beat within minimum interval to be rejected")
	}
}

func TestTapBeatAdvancesCounters(t *testing.T) {
	tr := NewTracker()
	if !tr.TapBeat(0) {
		t.Fatal("expected first tap to register")
	}
	if !tr.TapBeat(500) {
		t.Fatal("expected second tap 500ms later to register")
	}
	if tr.beatCounter != 2 {
		t.Fatalf("expected beat counter 2, got %d", tr.beatCounter)
	}
}

func TestBarCounterWrapsAtSixteen(t *testing.T) {
	tr := NewTracker()
	now := 0.0
	for i := 0; i < 17; i++ {
		tr.TapBeat(now)
		now += 500
	}
	if tr.barCounter != 1 {
		t.Fatalf("expected bar counter to wrap to 1 after 17 beats, got %d", tr.barCounter)
	}
}

func TestPhraseSectionBoundaries(t *testing.T) {
	cases := []struct {
		beat int
		want PhraseSection
	}{
		{0, SectionIntro},
		{7, SectionIntro},
		{8, SectionVerseA},
		{15, SectionVerseA},
		{16, SectionVerseB},
		{23, SectionVerseB},
		{24, SectionChorus},
		{27, SectionChorus},
		{28, SectionDrop},
		{31, SectionDrop},
		{32, SectionIntro}, // cycle wraps
	}
	for _, c := range cases {
		if got := PhraseSectionFor(c.beat); got != c.want {
			t.Errorf("PhraseSectionFor(%d) = %s, want %s", c.beat, got, c.want)
		}
	}
}
