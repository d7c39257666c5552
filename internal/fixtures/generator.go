// Package fixtures synthesizes deterministic test inputs for the
// choreography engine: click-track and phrase-structured WAV audio for
// the beat/section detectors, and frame-set .zip packages for the
// scanner, both driven by the same seed so a fixture run is
// reproducible across machines.
package fixtures

import (
	"archive/zip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cartomix/choreo/internal/frame"
)

// Config controls which fixtures are emitted.
type Config struct {
	OutputDir  string
	SampleRate int
	Seed       int64

	// Audio fixtures
	BPMLadder          []float64
	SwingRatio         float64 // e.g., 0.6 means offbeat delayed to 60% of beat duration
	IncludeSwing       bool
	IncludeRamp        bool
	RampStartBPM       float64
	RampEndBPM         float64
	IncludePhraseTrack bool
	PhraseBPM          float64
	IncludeClubNoise   bool

	// Frame-set fixtures
	IncludeFrameSets  bool
	FrameSetCategories []frame.Category // defaults to all three if empty
	FramesPerSet      int               // defaults to 12
}

// Manifest describes generated fixtures for tests/consumers.
type Manifest struct {
	SampleRate int               `json:"sample_rate"`
	Seed       int64             `json:"seed"`
	Fixtures   []ManifestFixture `json:"fixtures"`
}

type ManifestFixture struct {
	File        string            `json:"file"`
	Type        string            `json:"type"`
	BPM         float64           `json:"bpm,omitempty"`
	TargetBPM   float64           `json:"target_bpm,omitempty"`
	Beats       int               `json:"beats,omitempty"`
	DurationSec float64           `json:"duration_sec"`
	SwingRatio  float64           `json:"swing_ratio,omitempty"`
	Sections    []ManifestSection `json:"sections,omitempty"`
	NoiseType   string            `json:"noise_type,omitempty"`
	Category    string            `json:"category,omitempty"`
	FrameCount  int               `json:"frame_count,omitempty"`
}

// ManifestSection describes a section within a phrase track.
type ManifestSection struct {
	Type      string  `json:"type"` // intro, verse, chorus, drop, breakdown, outro
	StartBeat int     `json:"start_beat"`
	EndBeat   int     `json:"end_beat"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Energy    int     `json:"energy"` // 1-10
}

// Generate writes WAV and frame-set fixtures plus a manifest.json into
// OutputDir.
func Generate(cfg Config) (*Manifest, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./testdata/fixtures"
	}
	if cfg.FramesPerSet == 0 {
		cfg.FramesPerSet = 12
	}
	if len(cfg.FrameSetCategories) == 0 {
		cfg.FrameSetCategories = []frame.Category{frame.CategoryCharacter, frame.CategoryText, frame.CategorySymbol}
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir output: %w", err)
	}

	manifest := &Manifest{SampleRate: cfg.SampleRate, Seed: cfg.Seed}

	for _, bpm := range cfg.BPMLadder {
		filename := fmt.Sprintf("click_%dbpm.wav", int(bpm))
		path := filepath.Join(cfg.OutputDir, filename)
		durationSec := renderClickTrack(path, cfg.SampleRate, bpm, 32 /*beats*/, 0, 1.0)
		manifest.Fixtures = append(manifest.Fixtures, ManifestFixture{
			File:        filename,
			Type:        "click",
			BPM:         bpm,
			Beats:       32,
			DurationSec: durationSec,
		})
	}

	if cfg.IncludeSwing && len(cfg.BPMLadder) > 0 {
		bpm := cfg.BPMLadder[len(cfg.BPMLadder)/2]
		filename := "swing_click.wav"
		path := filepath.Join(cfg.OutputDir, filename)
		durationSec := renderClickTrack(path, cfg.SampleRate, bpm, 32, cfg.SwingRatio, 1.0)
		manifest.Fixtures = append(manifest.Fixtures, ManifestFixture{
			File:        filename,
			Type:        "swing_click",
			BPM:         bpm,
			SwingRatio:  cfg.SwingRatio,
			Beats:       32,
			DurationSec: durationSec,
		})
	}

	if cfg.IncludeRamp {
		filename := "tempo_ramp.wav"
		path := filepath.Join(cfg.OutputDir, filename)
		durationSec := renderTempoRamp(path, cfg.SampleRate, cfg.RampStartBPM, cfg.RampEndBPM, 64)
		manifest.Fixtures = append(manifest.Fixtures, ManifestFixture{
			File:        filename,
			Type:        "tempo_ramp",
			BPM:         cfg.RampStartBPM,
			TargetBPM:   cfg.RampEndBPM,
			Beats:       64,
			DurationSec: durationSec,
		})
	}

	if cfg.IncludePhraseTrack {
		bpm := cfg.PhraseBPM
		if bpm == 0 {
			bpm = 128
		}
		filename := "phrase_track.wav"
		path := filepath.Join(cfg.OutputDir, filename)
		durationSec, sections := renderPhraseTrack(path, cfg.SampleRate, bpm)
		manifest.Fixtures = append(manifest.Fixtures, ManifestFixture{
			File:        filename,
			Type:        "phrase_track",
			BPM:         bpm,
			DurationSec: durationSec,
			Sections:    sections,
		})
	}

	if cfg.IncludeClubNoise {
		for _, noiseType := range []string{"crowd", "reverb_tail", "pink_noise"} {
			filename := fmt.Sprintf("club_noise_%s.wav", noiseType)
			path := filepath.Join(cfg.OutputDir, filename)
			durationSec := renderClubNoise(path, cfg.SampleRate, noiseType, cfg.Seed)
			manifest.Fixtures = append(manifest.Fixtures, ManifestFixture{
				File:        filename,
				Type:        "club_noise",
				NoiseType:   noiseType,
				DurationSec: durationSec,
			})
		}
	}

	if cfg.IncludeFrameSets {
		for i, category := range cfg.FrameSetCategories {
			filename := fmt.Sprintf("frameset_%s.zip", category)
			path := filepath.Join(cfg.OutputDir, filename)
			frameCount, err := renderFrameSetPackage(path, category, cfg.FramesPerSet, cfg.Seed+int64(i))
			if err != nil {
				return nil, fmt.Errorf("render frame set %s: %w", category, err)
			}
			manifest.Fixtures = append(manifest.Fixtures, ManifestFixture{
				File:       filename,
				Type:       "frame_set",
				Category:   string(category),
				FrameCount: frameCount,
			})
		}
	}

	manifestPath := filepath.Join(cfg.OutputDir, "manifest.json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return manifest, nil
}

// renderClickTrack writes a mono WAV with short clicks per beat.
func renderClickTrack(path string, sampleRate int, bpm float64, beats int, swingRatio float64, amplitude float64) float64 {
	secondsPerBeat := 60.0 / bpm
	totalDuration := secondsPerBeat * float64(beats)
	samples := int(totalDuration * float64(sampleRate))
	data := make([]float64, samples)

	clickLen := int(0.01 * float64(sampleRate)) // 10ms click
	for i := 0; i < beats; i++ {
		offsetSec := secondsPerBeat * float64(i)
		// Swing applies to off-beats (odd beats)
		if swingRatio > 0 && i%2 == 1 {
			offsetSec = secondsPerBeat*float64(i-1) + secondsPerBeat*swingRatio
		}
		offset := int(offsetSec * float64(sampleRate))
		for j := 0; j < clickLen && offset+j < len(data); j++ {
			data[offset+j] += amplitude * math.Exp(-4*float64(j)/float64(clickLen))
		}
	}

	writeWAV(path, data, sampleRate)
	return totalDuration
}

// renderTempoRamp writes clicks whose interval ramps linearly from start to end BPM.
func renderTempoRamp(path string, sampleRate int, startBPM, endBPM float64, beats int) float64 {
	data := []float64{}
	currentTime := 0.0
	clickLen := int(0.01 * float64(sampleRate))

	for i := 0; i < beats; i++ {
		progress := float64(i) / float64(beats-1)
		bpm := startBPM + (endBPM-startBPM)*progress
		secondsPerBeat := 60.0 / bpm
		offset := int(currentTime * float64(sampleRate))

		ensure := offset + clickLen
		if ensure > len(data) {
			data = append(data, make([]float64, ensure-len(data))...)
		}

		for j := 0; j < clickLen; j++ {
			data[offset+j] += math.Exp(-4 * float64(j) / float64(clickLen))
		}

		currentTime += secondsPerBeat
	}

	writeWAV(path, data, sampleRate)
	return currentTime
}

// writeWAV writes mono 16-bit PCM WAV.
func writeWAV(path string, samples []float64, sampleRate int) {
	buf := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf[i] = int16(s * 32767)
	}

	byteRate := sampleRate * 2
	blockAlign := int16(2)
	bitsPerSample := int16(16)
	dataSize := len(buf) * 2
	riffSize := 36 + dataSize

	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	f.Write([]byte("RIFF"))
	binary.Write(f, binary.LittleEndian, uint32(riffSize))
	f.Write([]byte("WAVE"))
	f.Write([]byte("fmt "))
	binary.Write(f, binary.LittleEndian, uint32(16))
	binary.Write(f, binary.LittleEndian, uint16(1))
	binary.Write(f, binary.LittleEndian, uint16(1))
	binary.Write(f, binary.LittleEndian, uint32(sampleRate))
	binary.Write(f, binary.LittleEndian, uint32(byteRate))
	binary.Write(f, binary.LittleEndian, blockAlign)
	binary.Write(f, binary.LittleEndian, bitsPerSample)
	f.Write([]byte("data"))
	binary.Write(f, binary.LittleEndian, uint32(dataSize))
	for _, v := range buf {
		binary.Write(f, binary.LittleEndian, v)
	}
}

// renderPhraseTrack creates a track with DJ-style phrase structure:
// intro, verse, chorus (build), drop, breakdown, outro, each with
// rising/falling energy so the section detector and energy profiler
// have real structure to find.
func renderPhraseTrack(path string, sampleRate int, bpm float64) (float64, []ManifestSection) {
	secondsPerBeat := 60.0 / bpm
	beatsPerBar := 4

	sectionDefs := []struct {
		typ    string
		bars   int
		energy int
	}{
		{"intro", 16, 3},
		{"verse", 32, 5},
		{"chorus", 16, 7},
		{"drop", 32, 10},
		{"breakdown", 16, 4},
		{"outro", 16, 2},
	}

	totalBeats := 0
	sections := []ManifestSection{}
	for _, def := range sectionDefs {
		beats := def.bars * beatsPerBar
		startBeat := totalBeats
		endBeat := totalBeats + beats
		sections = append(sections, ManifestSection{
			Type:      def.typ,
			StartBeat: startBeat,
			EndBeat:   endBeat,
			StartTime: float64(startBeat) * secondsPerBeat,
			EndTime:   float64(endBeat) * secondsPerBeat,
			Energy:    def.energy,
		})
		totalBeats = endBeat
	}

	totalDuration := float64(totalBeats) * secondsPerBeat
	totalSamples := int(totalDuration * float64(sampleRate))
	data := make([]float64, totalSamples)

	bassFreq := 110.0
	leadFreq := 440.0
	padFreqs := []float64{220.0, 261.63, 329.63}

	for _, section := range sections {
		startSample := int(section.StartTime * float64(sampleRate))
		endSample := int(section.EndTime * float64(sampleRate))
		energy := float64(section.Energy) / 10.0

		for beat := section.StartBeat; beat < section.EndBeat; beat++ {
			beatTime := float64(beat) * secondsPerBeat
			beatSample := int(beatTime * float64(sampleRate))

			if beat%beatsPerBar == 0 || (section.Type == "drop" && beat%2 == 0) {
				kickLen := int(0.15 * float64(sampleRate))
				for i := 0; i < kickLen && beatSample+i < totalSamples; i++ {
					t := float64(i) / float64(sampleRate)
					kickFreq := 60.0 * math.Exp(-15*t)
					amplitude := energy * 0.7 * math.Exp(-10*t)
					data[beatSample+i] += amplitude * math.Sin(2*math.Pi*kickFreq*t)
				}
			}

			if (beat%2 == 1 || section.Type == "drop") && energy > 0.3 {
				hatLen := int(0.02 * float64(sampleRate))
				for i := 0; i < hatLen && beatSample+i < totalSamples; i++ {
					t := float64(i) / float64(sampleRate)
					noise := float64(uint32(beat*1337+i)%65536)/32768.0 - 1.0
					amplitude := energy * 0.15 * math.Exp(-30*t)
					data[beatSample+i] += amplitude * noise
				}
			}
		}

		if section.Type == "verse" || section.Type == "chorus" || section.Type == "drop" {
			for i := startSample; i < endSample; i++ {
				t := float64(i) / float64(sampleRate)
				beatPos := t / secondsPerBeat
				barPos := beatPos / float64(beatsPerBar)
				bassAmp := energy * 0.3 * (0.5 + 0.5*math.Sin(2*math.Pi*barPos))
				data[i] += bassAmp * math.Sin(2*math.Pi*bassFreq*t)
			}
		}

		if section.Type == "chorus" || section.Type == "drop" {
			for i := startSample; i < endSample; i++ {
				t := float64(i) / float64(sampleRate)
				leadAmp := energy * 0.2
				data[i] += leadAmp * math.Sin(2*math.Pi*leadFreq*t)
			}
		}

		for _, freq := range padFreqs {
			for i := startSample; i < endSample; i++ {
				t := float64(i) / float64(sampleRate)
				padAmp := energy * 0.1
				data[i] += padAmp * math.Sin(2*math.Pi*freq*t)
			}
		}
	}

	fadeSamples := int(0.5 * float64(sampleRate))
	for i := 0; i < fadeSamples; i++ {
		gain := float64(i) / float64(fadeSamples)
		data[i] *= gain
		data[totalSamples-1-i] *= gain
	}

	writeWAV(path, data, sampleRate)
	return totalDuration, sections
}

// renderClubNoise creates ambient noise fixtures for testing the
// no-discernible-tempo edge case: structureless input a beat tracker
// must decline to find a tempo in rather than hallucinate one.
func renderClubNoise(path string, sampleRate int, noiseType string, seed int64) float64 {
	durationSec := 10.0
	totalSamples := int(durationSec * float64(sampleRate))
	data := make([]float64, totalSamples)

	rng := uint64(seed)
	nextRand := func() float64 {
		rng = rng*6364136223846793005 + 1442695040888963407
		return float64(rng>>33) / float64(1<<31)
	}

	switch noiseType {
	case "crowd":
		var lowpass float64
		for i := 0; i < totalSamples; i++ {
			t := float64(i) / float64(sampleRate)
			noise := nextRand()*2 - 1
			lowpass = lowpass*0.98 + noise*0.02
			mod := 0.5 + 0.3*math.Sin(2*math.Pi*0.2*t) + 0.2*math.Sin(2*math.Pi*0.07*t)
			data[i] = lowpass * mod * 0.4
		}

	case "reverb_tail":
		var lowpass float64
		for i := 0; i < totalSamples; i++ {
			t := float64(i) / float64(sampleRate)
			noise := nextRand()*2 - 1
			decay := math.Exp(-0.5 * t)
			filterCoef := 0.9 + 0.09*t/durationSec
			lowpass = lowpass*filterCoef + noise*(1-filterCoef)
			data[i] = lowpass * decay * 0.5
		}

	case "pink_noise":
		var b [7]float64
		for i := 0; i < totalSamples; i++ {
			white := nextRand()*2 - 1
			b[0] = 0.99886*b[0] + white*0.0555179
			b[1] = 0.99332*b[1] + white*0.0750759
			b[2] = 0.96900*b[2] + white*0.1538520
			b[3] = 0.86650*b[3] + white*0.3104856
			b[4] = 0.55000*b[4] + white*0.5329522
			b[5] = -0.7616*b[5] - white*0.0168980
			pink := b[0] + b[1] + b[2] + b[3] + b[4] + b[5] + b[6] + white*0.5362
			b[6] = white * 0.115926
			data[i] = pink * 0.11
		}
	}

	fadeSamples := int(0.2 * float64(sampleRate))
	for i := 0; i < fadeSamples; i++ {
		gain := float64(i) / float64(fadeSamples)
		data[i] *= gain
		data[totalSamples-1-i] *= gain
	}

	writeWAV(path, data, sampleRate)
	return durationSec
}

// fixtureMeta/fixtureManifest mirror internal/scanner's meta.json and
// manifest.json shapes (spec §6) so generated packages are accepted by
// the real scanner unmodified.
type fixtureMeta struct {
	Version    int    `json:"version"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Created    string `json:"created"`
	Generator  string `json:"generator"`
	FrameCount int    `json:"frameCount"`
}

type fixtureManifest struct {
	AtlasWidth  int                    `json:"atlasWidth"`
	AtlasHeight int                    `json:"atlasHeight"`
	CellSize    int                    `json:"cellSize"`
	Frames      []fixtureManifestFrame `json:"frames"`
}

type fixtureManifestFrame struct {
	Pose      string `json:"pose"`
	Energy    string `json:"energy"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Role      string `json:"role"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	W         int    `json:"w"`
	H         int    `json:"h"`
}

var (
	fixtureEnergies   = []frame.Energy{frame.EnergyLow, frame.EnergyMid, frame.EnergyHigh}
	fixtureTypes      = []frame.Type{frame.TypeBody, frame.TypeCloseup, frame.TypeHands, frame.TypeFeet, frame.TypeMandala, frame.TypeAcrobatic}
	fixtureDirections = []frame.Direction{frame.DirectionLeft, frame.DirectionCenter, frame.DirectionRight}
	fixtureRoles      = []frame.Role{frame.RoleBase, frame.RoleAlt, frame.RoleFlourish, frame.RoleSmooth}
)

// renderFrameSetPackage writes a frame-set .zip package (meta.json,
// manifest.json, atlas.webp) containing frameCount synthetic frames
// laid out on a grid atlas. The atlas is a placeholder byte blob, not
// a real WebP image, since nothing downstream decodes its pixels
// (internal/scanner validates atlas structure, not atlas content).
func renderFrameSetPackage(path string, category frame.Category, frameCount int, seed int64) (int, error) {
	const cellSize = 64
	cols := 4
	rows := (frameCount + cols - 1) / cols
	atlasWidth := cols * cellSize
	atlasHeight := rows * cellSize

	frames := make([]fixtureManifestFrame, frameCount)
	for i := 0; i < frameCount; i++ {
		col := i % cols
		row := i / cols
		frames[i] = fixtureManifestFrame{
			Pose:      fmt.Sprintf("pose_%03d", i),
			Energy:    string(fixtureEnergies[(i+int(seed))%len(fixtureEnergies)]),
			Type:      string(fixtureTypes[(i+int(seed))%len(fixtureTypes)]),
			Direction: string(fixtureDirections[(i+int(seed))%len(fixtureDirections)]),
			Role:      string(fixtureRoles[(i+int(seed))%len(fixtureRoles)]),
			X:         col * cellSize,
			Y:         row * cellSize,
			W:         cellSize,
			H:         cellSize,
		}
	}

	manifestBytes, err := json.Marshal(fixtureManifest{
		AtlasWidth:  atlasWidth,
		AtlasHeight: atlasHeight,
		CellSize:    cellSize,
		Frames:      frames,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal manifest: %w", err)
	}

	metaBytes, err := json.Marshal(fixtureMeta{
		Version:    1,
		Name:       fmt.Sprintf("%s_fixture", category),
		Category:   string(category),
		Created:    "2026-01-01T00:00:00Z",
		Generator:  "choreo-fixtures",
		FrameCount: frameCount,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal meta: %w", err)
	}

	atlasBytes := make([]byte, atlasWidth*atlasHeight)
	rng := uint64(seed) + 1
	for i := range atlasBytes {
		rng = rng*6364136223846793005 + 1442695040888963407
		atlasBytes[i] = byte(rng >> 56)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create package: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range map[string][]byte{
		"meta.json":     metaBytes,
		"manifest.json": manifestBytes,
		"atlas.webp":    atlasBytes,
	} {
		w, err := zw.Create(name)
		if err != nil {
			return 0, fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return 0, fmt.Errorf("write zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zip: %w", err)
	}

	return frameCount, nil
}
