package fixtures

import (
	"archive/zip"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cartomix/choreo/internal/frame"
)

func TestGenerateProducesAudioAndManifest(t *testing.T) {
	dir := t.TempDir()

	cfg := Config{
		OutputDir:          dir,
		SampleRate:         48000,
		BPMLadder:          []float64{120, 128},
		SwingRatio:         0.6,
		IncludeSwing:       true,
		IncludeRamp:        true,
		RampStartBPM:       128,
		RampEndBPM:         100,
		IncludePhraseTrack: true,
		IncludeClubNoise:   true,
	}

	manifest, err := Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(manifest.Fixtures) < 6 {
		t.Fatalf("expected at least 6 fixtures, got %d", len(manifest.Fixtures))
	}

	wavPath := filepath.Join(dir, "click_120bpm.wav")
	if _, err := os.Stat(wavPath); err != nil {
		t.Fatalf("wav missing: %v", err)
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}

	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("not a wav header")
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate != uint32(cfg.SampleRate) {
		t.Fatalf("unexpected sample rate %d", sampleRate)
	}
}

func TestGeneratePhraseTrackHasSixSections(t *testing.T) {
	dir := t.TempDir()
	manifest, err := Generate(Config{OutputDir: dir, IncludePhraseTrack: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var phrase *ManifestFixture
	for i := range manifest.Fixtures {
		if manifest.Fixtures[i].Type == "phrase_track" {
			phrase = &manifest.Fixtures[i]
		}
	}
	if phrase == nil {
		t.Fatal("expected a phrase_track fixture")
	}
	if len(phrase.Sections) != 6 {
		t.Fatalf("got %d sections, want 6", len(phrase.Sections))
	}
	if phrase.Sections[0].Type != "intro" || phrase.Sections[5].Type != "outro" {
		t.Fatalf("unexpected section order: %+v", phrase.Sections)
	}
}

func TestGenerateFrameSetsAreValidZipPackages(t *testing.T) {
	dir := t.TempDir()
	manifest, err := Generate(Config{
		OutputDir:         dir,
		IncludeFrameSets:  true,
		FramesPerSet:      10,
		FrameSetCategories: []frame.Category{frame.CategoryCharacter},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var fixture *ManifestFixture
	for i := range manifest.Fixtures {
		if manifest.Fixtures[i].Type == "frame_set" {
			fixture = &manifest.Fixtures[i]
		}
	}
	if fixture == nil {
		t.Fatal("expected a frame_set fixture")
	}
	if fixture.FrameCount != 10 {
		t.Fatalf("frame count = %d, want 10", fixture.FrameCount)
	}

	path := filepath.Join(dir, fixture.File)
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open package: %v", err)
	}
	defer r.Close()

	found := map[string][]byte{}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		found[f.Name] = content
	}

	for _, name := range []string{"meta.json", "manifest.json", "atlas.webp"} {
		if _, ok := found[name]; !ok {
			t.Fatalf("package missing %s", name)
		}
	}

	var m fixtureManifest
	if err := json.Unmarshal(found["manifest.json"], &m); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if len(m.Frames) != 10 {
		t.Fatalf("manifest has %d frames, want 10", len(m.Frames))
	}
	for _, fr := range m.Frames {
		if fr.X+fr.W > m.AtlasWidth || fr.Y+fr.H > m.AtlasHeight {
			t.Fatalf("frame rect out of bounds: %+v in atlas %dx%d", fr, m.AtlasWidth, m.AtlasHeight)
		}
	}
	if len(found["atlas.webp"]) != m.AtlasWidth*m.AtlasHeight {
		t.Fatalf("atlas byte length = %d, want %d", len(found["atlas.webp"]), m.AtlasWidth*m.AtlasHeight)
	}
}

func TestGenerateFrameSetDeterministicForSameSeed(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	cfg := func(dir string) Config {
		return Config{
			OutputDir:         dir,
			Seed:              42,
			IncludeFrameSets:  true,
			FramesPerSet:      6,
			FrameSetCategories: []frame.Category{frame.CategorySymbol},
		}
	}

	if _, err := Generate(cfg(dirA)); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	if _, err := Generate(cfg(dirB)); err != nil {
		t.Fatalf("generate b: %v", err)
	}

	a, err := os.ReadFile(filepath.Join(dirA, "frameset_symbol.zip"))
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dirB, "frameset_symbol.zip"))
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("package sizes differ: %d vs %d", len(a), len(b))
	}
}
