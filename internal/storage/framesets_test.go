package storage

import (
	"reflect"
	"sort"
	"testing"

	"github.com/cartomix/choreo/internal/frame"
)

func testFrames() []*frame.Frame {
	return []*frame.Frame{
		{
			ID:        "low_center_01",
			Image:     "atlas#0",
			Energy:    frame.EnergyLow,
			Direction: frame.DirectionCenter,
			Type:      frame.TypeBody,
			Role:      frame.RoleBase,
			Pose:      "stand",
			Weight:    1.0,
		},
		{
			ID:                   "low_center_01~mirror",
			Image:                "atlas#0",
			Energy:               frame.EnergyLow,
			Direction:            frame.DirectionCenter,
			Type:                 frame.TypeBody,
			Role:                 frame.RoleAlt,
			Pose:                 "stand",
			DerivedFrom:          "low_center_01",
			DerivedOp:            &frame.Operation{Kind: frame.OpMirror},
			Weight:               0.8,
			PreferredTransitions: []string{"low_center_01"},
		},
		{
			ID:          "mid_left_02~zoom1.50",
			Image:       "atlas#1",
			Energy:      frame.EnergyMid,
			Direction:   frame.DirectionLeft,
			Type:        frame.TypeCloseup,
			Role:        frame.RoleFlourish,
			Pose:        "reach",
			DerivedFrom: "mid_left_02",
			DerivedOp:   &frame.Operation{Kind: frame.OpZoom, Factor: 1.5, OffsetY: 0.25},
			Weight:      1.2,
		},
	}
}

func TestUpsertFrameSetAssignsID(t *testing.T) {
	db := newTestDB(t)

	fs := &FrameSet{
		Category:     "character",
		ManifestHash: "abc123",
		SourcePath:   "/data/packs/dancer.zip",
		CellWidth:    256,
		CellHeight:   256,
		AtlasWidth:   2048,
		AtlasHeight:  2048,
		AtlasHash:    "deadbeef",
		FrameCount:   3,
	}

	id, err := db.UpsertFrameSet(fs)
	if err != nil {
		t.Fatalf("UpsertFrameSet: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := db.GetFrameSet(id)
	if err != nil {
		t.Fatalf("GetFrameSet: %v", err)
	}
	if got.ManifestHash != fs.ManifestHash || got.SourcePath != fs.SourcePath {
		t.Errorf("GetFrameSet mismatch: got %+v", got)
	}
}

func TestGetFrameSetByManifestHashFindsExistingRow(t *testing.T) {
	db := newTestDB(t)

	fs := &FrameSet{Category: "character", ManifestHash: "hash-1", SourcePath: "/data/packs/dancer.zip", FrameCount: 3}
	id, err := db.UpsertFrameSet(fs)
	if err != nil {
		t.Fatalf("UpsertFrameSet: %v", err)
	}

	got, err := db.GetFrameSetByManifestHash("hash-1")
	if err != nil {
		t.Fatalf("GetFrameSetByManifestHash: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("GetFrameSetByManifestHash = %+v, want row with id %d", got, id)
	}

	miss, err := db.GetFrameSetByManifestHash("no-such-hash")
	if err != nil {
		t.Fatalf("GetFrameSetByManifestHash (miss): %v", err)
	}
	if miss != nil {
		t.Fatalf("expected nil for unknown hash, got %+v", miss)
	}
}

func TestUpsertFrameSetIsIdempotentByManifestHash(t *testing.T) {
	db := newTestDB(t)

	fs := &FrameSet{Category: "character", ManifestHash: "same-hash", SourcePath: "/a.zip", FrameCount: 1}
	id1, err := db.UpsertFrameSet(fs)
	if err != nil {
		t.Fatalf("first UpsertFrameSet: %v", err)
	}

	fs.SourcePath = "/a-moved.zip"
	id2, err := db.UpsertFrameSet(fs)
	if err != nil {
		t.Fatalf("second UpsertFrameSet: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id for re-upsert, got %d and %d", id1, id2)
	}

	got, err := db.GetFrameSet(id1)
	if err != nil {
		t.Fatalf("GetFrameSet: %v", err)
	}
	if got.SourcePath != "/a-moved.zip" {
		t.Errorf("SourcePath = %q, want updated value", got.SourcePath)
	}
}

func TestReplaceFramesRoundTrips(t *testing.T) {
	db := newTestDB(t)

	fsID, err := db.UpsertFrameSet(&FrameSet{Category: "character", ManifestHash: "h1", FrameCount: 0})
	if err != nil {
		t.Fatalf("UpsertFrameSet: %v", err)
	}

	frames := testFrames()
	if err := db.ReplaceFrames(fsID, frames); err != nil {
		t.Fatalf("ReplaceFrames: %v", err)
	}

	loaded, err := db.LoadFrames(fsID)
	if err != nil {
		t.Fatalf("LoadFrames: %v", err)
	}
	if len(loaded) != len(frames) {
		t.Fatalf("LoadFrames returned %d frames, want %d", len(loaded), len(frames))
	}

	byID := make(map[string]*frame.Frame, len(loaded))
	for _, f := range loaded {
		byID[f.ID] = f
	}

	for _, want := range frames {
		got, ok := byID[want.ID]
		if !ok {
			t.Fatalf("frame %q missing after round trip", want.ID)
		}
		if got.Energy != want.Energy || got.Direction != want.Direction || got.Type != want.Type {
			t.Errorf("frame %q tags mismatch: got %+v, want %+v", want.ID, got, want)
		}
		if (got.DerivedOp == nil) != (want.DerivedOp == nil) {
			t.Fatalf("frame %q DerivedOp nilness mismatch", want.ID)
		}
		if got.DerivedOp != nil && *got.DerivedOp != *want.DerivedOp {
			t.Errorf("frame %q DerivedOp = %+v, want %+v", want.ID, *got.DerivedOp, *want.DerivedOp)
		}
		sort.Strings(got.PreferredTransitions)
		sort.Strings(want.PreferredTransitions)
		if !reflect.DeepEqual(got.PreferredTransitions, want.PreferredTransitions) && len(want.PreferredTransitions) > 0 {
			t.Errorf("frame %q PreferredTransitions = %v, want %v", want.ID, got.PreferredTransitions, want.PreferredTransitions)
		}
	}

	updated, err := db.GetFrameSet(fsID)
	if err != nil {
		t.Fatalf("GetFrameSet: %v", err)
	}
	if updated.FrameCount != len(frames) {
		t.Errorf("FrameCount = %d, want %d", updated.FrameCount, len(frames))
	}
}

func TestReplaceFramesIsWholesale(t *testing.T) {
	db := newTestDB(t)

	fsID, _ := db.UpsertFrameSet(&FrameSet{Category: "character", ManifestHash: "h2"})
	if err := db.ReplaceFrames(fsID, testFrames()); err != nil {
		t.Fatalf("first ReplaceFrames: %v", err)
	}

	smaller := testFrames()[:1]
	if err := db.ReplaceFrames(fsID, smaller); err != nil {
		t.Fatalf("second ReplaceFrames: %v", err)
	}

	loaded, err := db.LoadFrames(fsID)
	if err != nil {
		t.Fatalf("LoadFrames: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected wholesale replace to leave 1 frame, got %d", len(loaded))
	}
}

func TestListFrameSets(t *testing.T) {
	db := newTestDB(t)

	for i, hash := range []string{"h-a", "h-b", "h-c"} {
		if _, err := db.UpsertFrameSet(&FrameSet{Category: "symbol", ManifestHash: hash, FrameCount: i}); err != nil {
			t.Fatalf("UpsertFrameSet(%s): %v", hash, err)
		}
	}

	all, err := db.ListFrameSets()
	if err != nil {
		t.Fatalf("ListFrameSets: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListFrameSets returned %d entries, want 3", len(all))
	}
}
