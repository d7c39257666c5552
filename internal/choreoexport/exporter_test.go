package choreoexport

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cartomix/choreo/internal/choreoplan"
)

func testSongs() []SongExport {
	return []SongExport{
		{
			Path:    "/music/test.wav",
			SongMap: &choreoplan.SongMap{DurationMs: 4000, BPM: 128},
			Plan: []choreoplan.BeatChoreography{
				{BeatIndex: 0, TimestampMs: 0, FrameID: "low_center_01", TransitionMode: "cut", SectionType: choreoplan.SectionIntro, ExpectedEnergy: 0.3},
				{BeatIndex: 1, TimestampMs: 468.75, FrameID: "mid_left_02", TransitionMode: "slide", SectionType: choreoplan.SectionVerse, IsSignatureMove: true, PatternID: "p0", ExpectedEnergy: 0.5},
			},
		},
	}
}

func TestWriteBundleCreatesArtifacts(t *testing.T) {
	dir := t.TempDir()

	res, err := WriteBundle(dir, "demo", testSongs())
	if err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	for _, path := range []string{res.TimelineJSONPath, res.BeatSheetCSVPath, res.ChecksumsPath, res.BundlePath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected file %s: %v", path, err)
		}
	}

	if filepath.Ext(res.TimelineJSONPath) != ".json" {
		t.Fatalf("expected .json timeline, got %s", res.TimelineJSONPath)
	}
}

func TestWriteBundleRejectsEmptyInput(t *testing.T) {
	if _, err := WriteBundle(t.TempDir(), "demo", nil); err == nil {
		t.Fatal("expected error for no songs to export")
	}
}

func TestTimelineJSONRoundTrips(t *testing.T) {
	dir := t.TempDir()
	res, err := WriteBundle(dir, "demo", testSongs())
	if err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	data, err := os.ReadFile(res.TimelineJSONPath)
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	var got []SongExport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	if len(got) != 1 || len(got[0].Plan) != 2 {
		t.Fatalf("round-tripped timeline mismatch: %+v", got)
	}
	if got[0].Plan[1].FrameID != "mid_left_02" {
		t.Fatalf("FrameID = %q, want mid_left_02", got[0].Plan[1].FrameID)
	}
}

func TestBeatSheetCSVHasHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	res, err := WriteBundle(dir, "demo", testSongs())
	if err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	f, err := os.Open(res.BeatSheetCSVPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 { // header + 2 beats
		t.Fatalf("got %d rows, want 3 (header + 2 beats)", len(rows))
	}
	if rows[0][0] != "song_path" {
		t.Fatalf("header[0] = %q, want song_path", rows[0][0])
	}
	if rows[2][6] != "true" {
		t.Fatalf("is_signature_move for second beat = %q, want true", rows[2][6])
	}
}

func TestChecksumsVerifyAgainstBundledFiles(t *testing.T) {
	dir := t.TempDir()
	res, err := WriteBundle(dir, "demo", testSongs())
	if err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	if err := VerifyChecksums(res.ChecksumsPath, dir); err != nil {
		t.Fatalf("VerifyChecksums: %v", err)
	}
}

func TestChecksumsDetectTampering(t *testing.T) {
	dir := t.TempDir()
	res, err := WriteBundle(dir, "demo", testSongs())
	if err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	if err := os.WriteFile(res.TimelineJSONPath, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if err := VerifyChecksums(res.ChecksumsPath, dir); err == nil {
		t.Fatal("expected checksum mismatch after tampering")
	}
}

func TestFileSHA256IsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	a, err := FileSHA256(path)
	if err != nil {
		t.Fatalf("FileSHA256: %v", err)
	}
	b, err := FileSHA256(path)
	if err != nil {
		t.Fatalf("FileSHA256: %v", err)
	}
	if a != b {
		t.Fatalf("FileSHA256 not deterministic: %q vs %q", a, b)
	}
}
