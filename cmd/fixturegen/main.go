package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/cartomix/choreo/internal/fixtures"
	"github.com/cartomix/choreo/internal/frame"
)

// fixturegen produces deterministic WAV audio and frame-set package
// fixtures used by tests and demos.
func main() {
	outDir := flag.String("out", "./testdata/fixtures", "output directory for generated fixtures")
	seed := flag.Int("seed", 1337, "random seed for deterministic fixtures")
	bpmLadderStr := flag.String("bpm-ladder", "80,100,120,128,140,160", "comma-separated BPM ladder")
	includeSwing := flag.Bool("include-swing", true, "include swing/shuffle fixtures")
	includeTempoRamp := flag.Bool("include-tempo-ramp", true, "include dynamic tempo fixtures")
	rampStart := flag.Float64("ramp-start-bpm", 128, "tempo ramp start BPM")
	rampEnd := flag.Float64("ramp-end-bpm", 100, "tempo ramp end BPM")

	includePhraseTrack := flag.Bool("include-phrase-track", true, "include a phrase track with sections")
	phraseBPM := flag.Float64("phrase-bpm", 128, "BPM for the phrase track")
	includeClubNoise := flag.Bool("include-club-noise", true, "include club ambient noise fixtures")

	includeFrameSets := flag.Bool("include-frame-sets", true, "include synthesized frame-set packages")
	frameSetCategoriesStr := flag.String("frame-set-categories", "character,text,symbol", "comma-separated frame-set categories")
	framesPerSet := flag.Int("frames-per-set", 12, "frames per synthesized frame set")

	flag.Parse()

	var ladder []float64
	for _, s := range strings.Split(*bpmLadderStr, ",") {
		var v float64
		_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &v)
		if err == nil {
			ladder = append(ladder, v)
		}
	}
	if len(ladder) == 0 {
		ladder = []float64{120}
	}

	var categories []frame.Category
	for _, c := range strings.Split(*frameSetCategoriesStr, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			categories = append(categories, frame.Category(c))
		}
	}

	cfg := fixtures.Config{
		OutputDir:          *outDir,
		SampleRate:         48000,
		Seed:               int64(*seed),
		BPMLadder:          ladder,
		SwingRatio:         0.6,
		IncludeSwing:       *includeSwing,
		IncludeRamp:        *includeTempoRamp,
		RampStartBPM:       *rampStart,
		RampEndBPM:         *rampEnd,
		IncludePhraseTrack: *includePhraseTrack,
		PhraseBPM:          *phraseBPM,
		IncludeClubNoise:   *includeClubNoise,
		IncludeFrameSets:   *includeFrameSets,
		FrameSetCategories: categories,
		FramesPerSet:       *framesPerSet,
	}

	manifest, err := fixtures.Generate(cfg)
	if err != nil {
		log.Fatalf("generate fixtures: %v", err)
	}

	log.Printf("fixturegen wrote %d fixtures to %s (sample_rate=%d)", len(manifest.Fixtures), cfg.OutputDir, cfg.SampleRate)
}
