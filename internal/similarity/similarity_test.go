package similarity

import (
	"log/slog"
	"testing"

	"github.com/cartomix/choreo/internal/frame"
	"github.com/cartomix/choreo/internal/storage"
)

func testFrames() []*frame.Frame {
	return []*frame.Frame{
		{ID: "q", Pose: "stand", Energy: frame.EnergyLow, Direction: frame.DirectionLeft, Type: frame.TypeBody},
		{ID: "a", Pose: "reach", Energy: frame.EnergyMid, Direction: frame.DirectionRight, Type: frame.TypeBody},
		{ID: "b", Pose: "kick", Energy: frame.EnergyLow, Direction: frame.DirectionLeft, Type: frame.TypeBody},
		{ID: "c", Pose: "pose", Energy: frame.EnergyHigh, Direction: frame.DirectionCenter, Type: frame.TypeCloseup},
	}
}

func TestComputeDirectionSimilarity(t *testing.T) {
	tests := []struct {
		name         string
		a, b         frame.Direction
		wantScore    float64
		wantOpposite bool
	}{
		{"opposite", frame.DirectionLeft, frame.DirectionRight, 1.0, true},
		{"same", frame.DirectionLeft, frame.DirectionLeft, 0.0, false},
		{"center involved", frame.DirectionCenter, frame.DirectionLeft, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, opposite := computeDirectionSimilarity(tt.a, tt.b)
			if score != tt.wantScore || opposite != tt.wantOpposite {
				t.Errorf("computeDirectionSimilarity(%v, %v) = %v, %v, want %v, %v", tt.a, tt.b, score, opposite, tt.wantScore, tt.wantOpposite)
			}
		})
	}
}

func TestComputeEnergySimilarity(t *testing.T) {
	tests := []struct {
		name      string
		a, b      frame.Energy
		wantScore float64
		wantStep  int
	}{
		{"same", frame.EnergyLow, frame.EnergyLow, 0.6, 0},
		{"step up", frame.EnergyLow, frame.EnergyMid, 1.0, 1},
		{"step down", frame.EnergyHigh, frame.EnergyMid, 1.0, -1},
		{"two-step jump", frame.EnergyLow, frame.EnergyHigh, 0.0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, step := computeEnergySimilarity(tt.a, tt.b)
			if score != tt.wantScore || step != tt.wantStep {
				t.Errorf("computeEnergySimilarity(%v, %v) = %v, %v, want %v, %v", tt.a, tt.b, score, step, tt.wantScore, tt.wantStep)
			}
		})
	}
}

func TestFindSimilarRanksOppositeDirectionHighest(t *testing.T) {
	frames := testFrames()
	query := frames[0] // q: low, left, body

	results := FindSimilar(query, frames, 0)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (excluding self)", len(results))
	}
	if results[0].FrameID != "a" {
		t.Fatalf("top match = %q, want a (opposite direction + same type + step up)", results[0].FrameID)
	}
	if !results[0].DirectionOpposition {
		t.Errorf("expected top match to be flagged direction-opposite")
	}
}

func TestFindSimilarRespectsLimit(t *testing.T) {
	frames := testFrames()
	results := FindSimilar(frames[0], frames, 1)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestFindSimilarEmptyInputs(t *testing.T) {
	if got := FindSimilar(nil, testFrames(), 5); got != nil {
		t.Errorf("FindSimilar(nil, ...) = %v, want nil", got)
	}
	if got := FindSimilar(testFrames()[0], nil, 5); got != nil {
		t.Errorf("FindSimilar(..., nil) = %v, want nil", got)
	}
}

func TestBuildExplanationCoversEachBranch(t *testing.T) {
	cases := []struct {
		opposite, typeEqual bool
		step                int
		want                string
	}{
		{true, true, 0, "opposite direction; same focus type; same energy"},
		{false, false, 1, "energy step up"},
		{false, false, -1, "energy step down"},
		{false, false, 2, "energy jump (+2)"},
	}
	for _, c := range cases {
		got := buildExplanation(c.opposite, c.typeEqual, c.step)
		if got != c.want {
			t.Errorf("buildExplanation(%v, %v, %d) = %q, want %q", c.opposite, c.typeEqual, c.step, got, c.want)
		}
	}
}

func TestComputeAndCachePopulatesStorage(t *testing.T) {
	db, err := storage.Open(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()

	pool := frame.NewPool(frame.CategoryCharacter)
	pool.Load(testFrames())

	if err := ComputeAndCache(db, pool, 2); err != nil {
		t.Fatalf("ComputeAndCache: %v", err)
	}

	top, err := db.TopSimilarFrames("q", 5)
	if err != nil {
		t.Fatalf("TopSimilarFrames: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d cached matches for q, want 2", len(top))
	}
	if top[0].FrameBID != "a" {
		t.Fatalf("top cached match for q = %q, want a", top[0].FrameBID)
	}
}
