// Package physics implements the physics/effects integrator (spec
// §4.G): a spring-damper solver for rotation, relaxation toward rest
// for squash/bounce/zoom, transition progress advance, and exponential
// decay for the effect envelopes.
package physics

import "math"

// spring constants per axis (spec §4.G).
const (
	springKX, springKZ = 140.0, 140.0
	springKY           = 70.0
	dampCX, dampCZ     = 8.0, 8.0
	dampCY             = 6.4

	squashRestRate     = 12.0
	bounceRestRate     = 10.0
	zoomRestRate       = 5.0
	brightnessRestRate = 6.0
	saturationRestRate = 6.0

	squashRest     = 1.0
	bounceRest     = 0.0
	zoomRest       = 1.15
	brightnessRest = 1.0
	saturationRest = 1.0

	flashDecayK    = 15.0
	glitchDecayK   = 10.0
	rgbSplitDecayK = 8.0

	maxDtSeconds = 0.1
)

// Vector3 is a per-axis (x,y,z) value, used for rotation and velocity.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// State is the physics solver's state (spec §3's "physics state").
type State struct {
	Rotation Vector3 `json:"rotation"`
	Velocity Vector3 `json:"velocity"`
	Squash   float64 `json:"squash"`
	Bounce   float64 `json:"bounce"`
	Tilt     float64 `json:"tilt"`
	Zoom     float64 `json:"zoom"`
	Pan      struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"pan"`

	TransitionProgress float64 `json:"transition_progress"`
}

// NewState returns a state at rest.
func NewState() State {
	return State{Squash: squashRest, Bounce: bounceRest, Zoom: zoomRest}
}

// Effects is the decaying effect-envelope state (spec §3's "effects
// state").
type Effects struct {
	RGBSplit   float64 `json:"rgb_split"`
	Flash      float64 `json:"flash"`
	Glitch     float64 `json:"glitch"`
	Scanlines  float64 `json:"scanlines"`
	HueShift   float64 `json:"hue_shift"`
	Aberration float64 `json:"aberration"`
	Brightness float64 `json:"brightness"` // rest 1.0, bumped by Burst/Freeze
	Saturation float64 `json:"saturation"` // rest 1.0, zeroed by Freeze
	Invert     bool    `json:"invert"`
	Grayscale  bool    `json:"grayscale"`
	Mirror     bool    `json:"mirror"`
	Strobe     bool    `json:"strobe"`
}

// Targets are the audio-derived targets the rotation spring chases
// (spec §4.G).
type Targets struct {
	Bass, Mid, High float64
	T               float64 // tick clock in milliseconds, for the y-axis sine term
	Reverse         bool    // trigger_reverse: invert the rotation targets
}

func (t Targets) rotationTargets() Vector3 {
	v := Vector3{
		X: t.Bass * 35,
		Y: t.Mid * 25 * math.Sin(t.T*0.005),
		Z: t.High * 15,
	}
	if t.Reverse {
		v.X, v.Y, v.Z = -v.X, -v.Y, -v.Z
	}
	return v
}

// Integrator advances State and Effects one tick at a time.
type Integrator struct {
	state   State
	effects Effects
}

// NewIntegrator builds an integrator at rest.
func NewIntegrator() *Integrator {
	return &Integrator{state: NewState(), effects: Effects{Brightness: brightnessRest, Saturation: saturationRest}}
}

// State returns the current physics state.
func (in *Integrator) State() State { return in.state }

// Effects returns the current effects state.
func (in *Integrator) Effects() Effects { return in.effects }

// OnBeat applies the beat impulse (spec §4.G: "on beat impulses,
// applied before the integrator"): squash snaps down, bounce kicks
// negative proportional to bass, flash bumps up.
func (in *Integrator) OnBeat(bass float64) {
	in.state.Squash = 0.85
	in.state.Bounce = -50 * bass
	in.effects.Flash += 0.3 * bass
}

// Advance steps the solver by dtMs milliseconds (clamped to 100ms,
// spec §4.G's `dt = min((now-prev)/1000, 0.1)`), given this tick's
// audio-derived targets and the currently selected transition speed.
func (in *Integrator) Advance(dtMs float64, targets Targets, transitionSpeed float64) {
	dt := math.Min(dtMs/1000, maxDtSeconds)
	in.advanceRotation(dt, targets)
	in.relaxScalars(dt)
	in.state.TransitionProgress = math.Min(1, in.state.TransitionProgress+transitionSpeed*dt)
	in.decayEffects(dt)
}

func (in *Integrator) advanceRotation(dt float64, targets Targets) {
	tgt := targets.rotationTargets()

	fx := (tgt.X-in.state.Rotation.X)*springKX - in.state.Velocity.X*dampCX
	fy := (tgt.Y-in.state.Rotation.Y)*springKY - in.state.Velocity.Y*dampCY
	fz := (tgt.Z-in.state.Rotation.Z)*springKZ - in.state.Velocity.Z*dampCZ

	in.state.Velocity.X += fx * dt
	in.state.Velocity.Y += fy * dt
	in.state.Velocity.Z += fz * dt

	in.state.Rotation.X += in.state.Velocity.X * dt
	in.state.Rotation.Y += in.state.Velocity.Y * dt
	in.state.Rotation.Z += in.state.Velocity.Z * dt
}

func (in *Integrator) relaxScalars(dt float64) {
	in.state.Squash += (squashRest - in.state.Squash) * (squashRestRate * dt)
	in.state.Bounce += (bounceRest - in.state.Bounce) * (bounceRestRate * dt)
	in.state.Zoom += (zoomRest - in.state.Zoom) * (zoomRestRate * dt)
	in.effects.Brightness += (brightnessRest - in.effects.Brightness) * (brightnessRestRate * dt)
	in.effects.Saturation += (saturationRest - in.effects.Saturation) * (saturationRestRate * dt)
}

// Burst applies trigger_burst's one-shot pre-integrator impulse: a
// squash snap plus a brightness bump, both of which relax back to rest
// through the normal relaxScalars pass on subsequent ticks.
func (in *Integrator) Burst() {
	in.state.Squash = 1.5
	in.effects.Brightness = 2.0
}

// Freeze applies trigger_freeze's one-shot pre-integrator impulse: a
// full desaturation plus a brightness bump, both relaxing back to rest
// the same way Burst's do.
func (in *Integrator) Freeze() {
	in.effects.Saturation = 0
	in.effects.Brightness = 1.5
}

func (in *Integrator) decayEffects(dt float64) {
	in.effects.Flash *= math.Exp(-flashDecayK * dt)
	in.effects.Glitch *= math.Exp(-glitchDecayK * dt)
	in.effects.RGBSplit *= math.Exp(-rgbSplitDecayK * dt)
}

// ResetTransition zeroes transition progress, called when a new
// transition begins.
func (in *Integrator) ResetTransition() {
	in.state.TransitionProgress = 0
}

// SetEffect applies an inbound `set_effect(name, value)` call (spec
// §6). The three decaying channels (rgb_split, flash, glitch) are
// additive bumps consistent with OnBeat's own `+=`; the remaining
// channels are set directly, and the four boolean channels treat
// value ≥ 0.5 as true.
func (in *Integrator) SetEffect(name string, value float64) bool {
	switch name {
	case "rgb_split":
		in.effects.RGBSplit += value
	case "flash":
		in.effects.Flash += value
	case "glitch":
		in.effects.Glitch += value
	case "scanlines":
		in.effects.Scanlines = value
	case "hue_shift":
		in.effects.HueShift = value
	case "aberration":
		in.effects.Aberration = value
	case "brightness":
		in.effects.Brightness = value
	case "saturation":
		in.effects.Saturation = value
	case "invert":
		in.effects.Invert = value >= 0.5
	case "grayscale":
		in.effects.Grayscale = value >= 0.5
	case "mirror":
		in.effects.Mirror = value >= 0.5
	case "strobe":
		in.effects.Strobe = value >= 0.5
	default:
		return false
	}
	return true
}
