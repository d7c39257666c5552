package physics

import (
	"math"
	"testing"
)

func TestOnBeatAppliesImpulse(t *testing.T) {
	in := NewIntegrator()
	in.OnBeat(0.8)
	if in.State().Squash != 0.85 {
		t.Fatalf("expected squash snapped to 0.85, got %f", in.State().Squash)
	}
	if in.State().Bounce != -40 {
		t.Fatalf("expected bounce -50*0.8=-40, got %f", in.State().Bounce)
	}
	if in.Effects().Flash != 0.24 {
		t.Fatalf("expected flash +0.3*0.8=0.24, got %f", in.Effects().Flash)
	}
}

func TestScalarsRelaxTowardRest(t *testing.T) {
	in := NewIntegrator()
	in.OnBeat(1.0)
	for i := 0; i < 100; i++ {
		in.Advance(16, Targets{}, 0)
	}
	if math.Abs(in.State().Squash-squashRest) > 0.05 {
		t.Fatalf("expected squash to relax near rest %f, got %f", squashRest, in.State().Squash)
	}
	if math.Abs(in.State().Bounce-bounceRest) > 0.5 {
		t.Fatalf("expected bounce to relax near rest %f, got %f", bounceRest, in.State().Bounce)
	}
}

func TestEffectsDecayTowardZero(t *testing.T) {
	in := NewIntegrator()
	in.OnBeat(1.0)
	for i := 0; i < 50; i++ {
		in.Advance(16, Targets{}, 0)
	}
	if in.Effects().Flash > 0.01 {
		t.Fatalf("expected flash to decay near zero, got %f", in.Effects().Flash)
	}
}

func TestTransitionProgressClampsAtOne(t *testing.T) {
	in := NewIntegrator()
	for i := 0; i < 100; i++ {
		in.Advance(16, Targets{}, 100)
	}
	if in.State().TransitionProgress != 1 {
		t.Fatalf("expected transition progress clamped to 1, got %f", in.State().TransitionProgress)
	}
}

func TestAdvanceClampsLargeDt(t *testing.T) {
	in := NewIntegrator()
	in.OnBeat(1.0)
	in.Advance(5000, Targets{}, 0) // 5s wall-clock should clamp to 0.1s of simulated time
	if in.Effects().Flash < 0.3*math.Exp(-flashDecayK*maxDtSeconds)-0.01 {
		t.Fatalf("expected dt clamp to limit decay to one 0.1s step, got flash %f", in.Effects().Flash)
	}
}

func TestRotationChasesBassTarget(t *testing.T) {
	in := NewIntegrator()
	for i := 0; i < 200; i++ {
		in.Advance(16, Targets{Bass: 1.0}, 0)
	}
	if math.Abs(in.State().Rotation.X-35) > 2 {
		t.Fatalf("expected rotation.x to settle near target 35, got %f", in.State().Rotation.X)
	}
}

func TestReverseTargetInvertsRotationDirection(t *testing.T) {
	in := NewIntegrator()
	for i := 0; i < 200; i++ {
		in.Advance(16, Targets{Bass: 1.0, Reverse: true}, 0)
	}
	if math.Abs(in.State().Rotation.X-(-35)) > 2 {
		t.Fatalf("expected rotation.x to settle near reversed target -35, got %f", in.State().Rotation.X)
	}
}
