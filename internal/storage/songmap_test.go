package storage

import (
	"testing"

	"github.com/cartomix/choreo/internal/choreoplan"
)

func testBeatPlan(songMapLen int) []choreoplan.BeatChoreography {
	plan := make([]choreoplan.BeatChoreography, 0, songMapLen)
	for i := 0; i < songMapLen; i++ {
		plan = append(plan, choreoplan.BeatChoreography{
			BeatIndex:       i,
			TimestampMs:     float64(i) * 484,
			FrameID:         "low_center_01",
			TransitionMode:  "cut",
			TransitionSpeed: 1.0,
			Phase:           "GROOVE",
			SectionType:     choreoplan.SectionVerse,
			PatternID:       "",
			ExpectedEnergy:  0.4,
		})
	}
	return plan
}

func TestUpsertSongAndGetByHash(t *testing.T) {
	db := newTestDB(t)

	s := &Song{ContentHash: "song-hash-1", Path: "/music/a.wav", Title: "A", Artist: "Artist", DurationMs: 60000, SampleRate: 44100}
	id, err := db.UpsertSong(s)
	if err != nil {
		t.Fatalf("UpsertSong: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero song id")
	}

	got, err := db.GetSongByHash("song-hash-1")
	if err != nil {
		t.Fatalf("GetSongByHash: %v", err)
	}
	if got.Title != "A" || got.Artist != "Artist" {
		t.Errorf("GetSongByHash mismatch: got %+v", got)
	}
}

func TestUpsertSongMapRoundTrip(t *testing.T) {
	db := newTestDB(t)

	songID, err := db.UpsertSong(&Song{ContentHash: "h", Path: "/a.wav", DurationMs: 60000, SampleRate: 44100})
	if err != nil {
		t.Fatalf("UpsertSong: %v", err)
	}

	sm := &choreoplan.SongMap{
		DurationMs:    60000,
		BPM:           124.0,
		TimeSignature: [2]int{4, 4},
		Beats:         []float64{0, 484, 968, 1452},
		Downbeats:     []int{0},
		EnergyProfile: []choreoplan.EnergySample{{TimeMs: 0, Composite: 0.1}},
		Drops:         []choreoplan.Drop{{TimeMs: 30000, Intensity: 0.9}},
	}
	plan := testBeatPlan(len(sm.Beats))

	songMapID, err := db.UpsertSongMap(songID, 1, sm, plan)
	if err != nil {
		t.Fatalf("UpsertSongMap: %v", err)
	}
	if songMapID == 0 {
		t.Fatal("expected non-zero song map id")
	}

	loaded, loadedID, err := db.LatestSongMap(songID)
	if err != nil {
		t.Fatalf("LatestSongMap: %v", err)
	}
	if loadedID != songMapID {
		t.Fatalf("LatestSongMap id = %d, want %d", loadedID, songMapID)
	}
	if loaded.BPM != sm.BPM {
		t.Errorf("BPM = %v, want %v", loaded.BPM, sm.BPM)
	}
	if len(loaded.Beats) != len(sm.Beats) {
		t.Errorf("Beats len = %d, want %d", len(loaded.Beats), len(sm.Beats))
	}

	beats, err := db.LoadBeatChoreography(songMapID)
	if err != nil {
		t.Fatalf("LoadBeatChoreography: %v", err)
	}
	if len(beats) != len(plan) {
		t.Fatalf("LoadBeatChoreography returned %d beats, want %d", len(beats), len(plan))
	}
	for i, b := range beats {
		if b.BeatIndex != plan[i].BeatIndex || b.FrameID != plan[i].FrameID {
			t.Errorf("beat %d mismatch: got %+v", i, b)
		}
	}
}

func TestUpsertSongMapNewVersionLeavesOldIntact(t *testing.T) {
	db := newTestDB(t)

	songID, _ := db.UpsertSong(&Song{ContentHash: "h2", Path: "/b.wav"})
	sm1 := &choreoplan.SongMap{BPM: 100, TimeSignature: [2]int{4, 4}, Beats: []float64{0, 500}}
	sm2 := &choreoplan.SongMap{BPM: 128, TimeSignature: [2]int{4, 4}, Beats: []float64{0, 470}}

	if _, err := db.UpsertSongMap(songID, 1, sm1, nil); err != nil {
		t.Fatalf("UpsertSongMap v1: %v", err)
	}
	if _, err := db.UpsertSongMap(songID, 2, sm2, nil); err != nil {
		t.Fatalf("UpsertSongMap v2: %v", err)
	}

	latest, _, err := db.LatestSongMap(songID)
	if err != nil {
		t.Fatalf("LatestSongMap: %v", err)
	}
	if latest.BPM != 128 {
		t.Errorf("LatestSongMap BPM = %v, want 128 (the v2 row)", latest.BPM)
	}

	var v1BPM float64
	if err := db.QueryRow("SELECT bpm FROM song_maps WHERE song_id = ? AND version = 1", songID).Scan(&v1BPM); err != nil {
		t.Fatalf("query v1 song map: %v", err)
	}
	if v1BPM != 100 {
		t.Errorf("v1 song map BPM = %v, want 100 (left intact by the v2 upsert)", v1BPM)
	}
}
