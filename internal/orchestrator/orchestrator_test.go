package orchestrator

import (
	"math/rand"
	"testing"

	"github.com/cartomix/choreo/internal/choreoplan"
	"github.com/cartomix/choreo/internal/engine"
	"github.com/cartomix/choreo/internal/frame"
)

func testPool() *frame.Pool {
	p := frame.NewPool(frame.CategoryCharacter)
	p.Load([]*frame.Frame{
		{ID: "a", Energy: frame.EnergyLow, Direction: frame.DirectionLeft, Type: frame.TypeBody, Pose: "a", Weight: 1},
		{ID: "b", Energy: frame.EnergyMid, Direction: frame.DirectionRight, Type: frame.TypeBody, Pose: "b", Weight: 1},
		{ID: "c", Energy: frame.EnergyHigh, Direction: frame.DirectionCenter, Type: frame.TypeCloseup, Pose: "c", Weight: 1},
	})
	return p
}

func testPlan() []choreoplan.BeatChoreography {
	return []choreoplan.BeatChoreography{
		{BeatIndex: 0, TimestampMs: 0, FrameID: "a", TransitionMode: "cut", TargetRotation: 17.5, ExpectedEnergy: 0.5},
		{BeatIndex: 1, TimestampMs: 500, FrameID: "b", TransitionMode: "slide", TargetRotation: 24.5, ExpectedEnergy: 0.7},
		{BeatIndex: 2, TimestampMs: 1000, FrameID: "c", TransitionMode: "zoom_in", TargetRotation: 31.5, Flash: 0.4, ExpectedEnergy: 0.9},
	}
}

func TestFileModeWalksPlanByTimestamp(t *testing.T) {
	o := New(nil, engine.New(nil, 48000, nil), 48000, rand.New(rand.NewSource(1)))
	// switch mode well before t=0 so the mode-switch grace window has
	// already elapsed by the time playback starts.
	o.SetMode(ModeFile, -1000)
	o.LoadPlan(&choreoplan.SongMap{}, testPlan())

	rd := o.Update(nil, 0)
	if rd.FrameID != "a" {
		t.Fatalf("FrameID at t=0 = %q, want a", rd.FrameID)
	}
	if !rd.DidSelectFrame {
		t.Fatalf("expected DidSelectFrame at the first beat")
	}

	rd = o.Update(nil, 500)
	if rd.FrameID != "b" {
		t.Fatalf("FrameID at t=500 = %q, want b", rd.FrameID)
	}

	rd = o.Update(nil, 750)
	if rd.FrameID != "b" {
		t.Fatalf("FrameID at t=750 = %q, want b (no new beat crossed)", rd.FrameID)
	}
	if rd.DidSelectFrame {
		t.Fatalf("expected no new selection between beats")
	}
}

func TestFileModeEmptyPlanReturnsZeroDecision(t *testing.T) {
	o := New(nil, engine.New(nil, 48000, nil), 48000, nil)
	o.SetMode(ModeFile, -1000)
	rd := o.Update(nil, 0)
	if rd.DidSelectFrame || rd.FrameID != "" {
		t.Fatalf("expected zero decision with no plan loaded, got %+v", rd)
	}
}

func TestModeSwitchGraceWindowSuppressesFileSelection(t *testing.T) {
	o := New(nil, engine.New(nil, 48000, nil), 48000, nil)
	o.LoadPlan(&choreoplan.SongMap{}, testPlan())
	o.SetMode(ModeFile, 100)

	rd := o.Update(nil, 100)
	if rd.DidSelectFrame {
		t.Fatalf("expected selection suppressed within the mode-switch grace window")
	}

	rd = o.Update(nil, 700)
	if !rd.DidSelectFrame {
		t.Fatalf("expected selection to resume after the grace window elapses")
	}
}

func TestLiveModeSuppressesEngineSelectionDuringGrace(t *testing.T) {
	eng := engine.New(nil, 48000, nil)
	eng.LoadFramePool(testPool())
	o := New(nil, eng, 48000, nil)

	o.SetMode(ModeStream, 0)
	o.SetMode(ModeFile, 10)
	o.SetMode(ModeStream, 20)

	rd := o.Update(make([]float64, 256), 20)
	if rd.DidSelectFrame {
		t.Fatalf("expected engine selection suppressed immediately after switching back to stream")
	}
}

func TestFileToMicSwitchHoldsLastFileFrameID(t *testing.T) {
	eng := engine.New(nil, 48000, nil)
	eng.LoadFramePool(testPool())
	o := New(nil, eng, 48000, nil)

	o.SetMode(ModeFile, -1000)
	o.LoadPlan(&choreoplan.SongMap{}, testPlan())

	rd := o.Update(nil, 500)
	if rd.FrameID != "b" {
		t.Fatalf("FrameID before switch = %q, want b", rd.FrameID)
	}

	o.SetMode(ModeMic, 500)

	rd = o.Update(make([]float64, 256), 500)
	if rd.DidSelectFrame {
		t.Fatalf("expected selection suppressed right after the file-to-mic switch")
	}
	if rd.FrameID != "b" {
		t.Fatalf("FrameID during grace window = %q, want last file-mode frame b", rd.FrameID)
	}
}

func TestLiveModeRunsEngineUpdate(t *testing.T) {
	eng := engine.New(nil, 48000, nil)
	eng.LoadFramePool(testPool())
	o := New(nil, eng, 48000, nil)

	nowMs := 0.0
	for i := 0; i < 50; i++ {
		nowMs += 16.6
		o.Update(make([]float64, 256), nowMs)
	}
	// No panics, and the wrapped engine keeps ticking independently.
	if eng.GetTelemetry().PoolCounts["total"] != 3 {
		t.Fatalf("engine pool not wired through orchestrator")
	}
}
