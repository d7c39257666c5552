// Package orchestrator implements the dual-mode orchestrator (spec
// §4.I): in file mode it walks an offline choreography plan beat by
// beat; in stream/mic mode it drives the live engine tick by tick,
// periodically re-analyzing buffered audio in the background to keep a
// rough "expected energy" curve the live response is modulated
// against. Switching modes holds new frame selection for a short grace
// window so only the physics micro-expressions carry the transition.
package orchestrator

import (
	"log/slog"
	"math/rand"

	"github.com/cartomix/choreo/internal/choreoplan"
	"github.com/cartomix/choreo/internal/decision"
	"github.com/cartomix/choreo/internal/engine"
	"github.com/cartomix/choreo/internal/physics"
)

// Mode is the orchestrator's input source.
type Mode string

const (
	ModeFile   Mode = "file"
	ModeStream Mode = "stream"
	ModeMic    Mode = "mic"
)

const (
	// modeSwitchGraceMs is how long after a mode switch new frame
	// selection stays suppressed, letting only physics micro-expressions
	// carry the transition (spec §4.I).
	modeSwitchGraceMs = 500

	// energyRatioMin and energyRatioMax bound the live/expected energy
	// ratio the live physics response is scaled by (spec §4.I).
	energyRatioMin = 0.7
	energyRatioMax = 1.5

	// reanalysisIntervalMs and reanalysisTickCount are the two
	// independent triggers for stream mode's periodic background
	// re-analysis: whichever fires first restarts the window.
	reanalysisIntervalMs = 10000
	reanalysisTickCount  = 600
)

// Orchestrator wraps a live engine.Engine and an optional offline plan,
// presenting one Update entry point regardless of which mode is active.
type Orchestrator struct {
	logger *slog.Logger
	eng    *engine.Engine

	mode           Mode
	lastSwitchMs   float64
	haveLastSwitch bool

	// file mode
	songMap   *choreoplan.SongMap
	plan      []choreoplan.BeatChoreography
	beatCursor int
	filePhysics *physics.Integrator

	// stream/mic mode background re-analysis
	planner        *choreoplan.Planner
	sampleRate     float64
	streamBuffer   []float64
	ticksSinceScan int
	msSinceScan    float64
	haveScanWindow bool
	backgroundMap  *choreoplan.SongMap
	backgroundPlan []choreoplan.BeatChoreography
}

// New builds an orchestrator over a live engine. eng must already have
// its frame pool loaded for stream/mic mode selection to produce
// anything.
func New(logger *slog.Logger, eng *engine.Engine, sampleRate float64, rng *rand.Rand) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:      logger,
		eng:         eng,
		mode:        ModeStream,
		sampleRate:  sampleRate,
		planner:     choreoplan.NewPlanner(rng),
		filePhysics: physics.NewIntegrator(),
	}
}

// SetMode switches the input source, arming the mode-switch grace
// window and, for stream/mic, the live selection-suppression flag.
// Leaving file mode syncs the last file-mode frame id into the engine
// so the grace window's suppressed live ticks echo that frame instead
// of the engine's own last live pick.
func (o *Orchestrator) SetMode(mode Mode, nowMs float64) {
	if mode == o.mode {
		return
	}
	if o.mode == ModeFile {
		o.eng.SetCurrentFrameID(o.currentBeatEntry().FrameID)
	}
	o.mode = mode
	o.lastSwitchMs = nowMs
	o.haveLastSwitch = true
}

// Mode reports the active input source.
func (o *Orchestrator) Mode() Mode { return o.mode }

// SongMap returns the song map backing the loaded file-mode plan, or
// nil if none is loaded.
func (o *Orchestrator) SongMap() *choreoplan.SongMap { return o.songMap }

// BackgroundSongMap returns the most recent stream/mic-mode background
// re-analysis result, or nil before the first scan window completes.
func (o *Orchestrator) BackgroundSongMap() *choreoplan.SongMap { return o.backgroundMap }

// LoadPlan installs a pre-computed offline choreography (spec §4.H's
// output) for file mode.
func (o *Orchestrator) LoadPlan(sm *choreoplan.SongMap, plan []choreoplan.BeatChoreography) {
	o.songMap = sm
	o.plan = plan
	o.beatCursor = 0
	o.filePhysics = physics.NewIntegrator()
}

// Update advances the orchestrator by one tick. samples is ignored in
// file mode, where the plan already determines every frame and target.
func (o *Orchestrator) Update(samples []float64, nowMs float64) engine.RenderDecision {
	inGrace := o.haveLastSwitch && nowMs-o.lastSwitchMs < modeSwitchGraceMs

	if o.mode == ModeFile {
		return o.updateFile(nowMs, inGrace)
	}
	return o.updateLive(samples, nowMs, inGrace)
}

func (o *Orchestrator) updateLive(samples []float64, nowMs float64, inGrace bool) engine.RenderDecision {
	o.eng.SetSelectionSuppressed(inGrace)

	expected := o.expectedEnergyAt(nowMs)
	ratio := 1.0
	if expected > 0 {
		ratio = clamp(o.eng.LastEnergy()/expected, energyRatioMin, energyRatioMax)
	}
	o.eng.SetEnergyScale(ratio)

	o.scanForReanalysis(samples, nowMs)

	return o.eng.Update(samples, nowMs)
}

// scanForReanalysis buffers stream/mic samples and, once either 10
// seconds or 600 ticks have passed since the last scan, re-runs the
// offline analyzer+planner over the buffered window in the background
// (spec §4.I). The result only feeds expectedEnergyAt; it never
// overrides live selection.
func (o *Orchestrator) scanForReanalysis(samples []float64, nowMs float64) {
	o.streamBuffer = append(o.streamBuffer, samples...)
	o.ticksSinceScan++
	if !o.haveScanWindow {
		o.msSinceScan = nowMs
		o.haveScanWindow = true
	}
	elapsed := nowMs - o.msSinceScan

	if elapsed < reanalysisIntervalMs && o.ticksSinceScan < reanalysisTickCount {
		return
	}
	if len(o.streamBuffer) == 0 || o.sampleRate <= 0 {
		o.resetScanWindow(nowMs)
		return
	}

	sm := choreoplan.AnalyzeSong(o.streamBuffer, o.sampleRate)
	o.backgroundMap = sm
	if pool := o.eng.ActivePool(); pool != nil {
		o.backgroundPlan = o.planner.Plan(sm, pool)
	}
	o.logger.Debug("orchestrator background re-analysis complete", "beats", len(sm.Beats))
	o.resetScanWindow(nowMs)
}

func (o *Orchestrator) resetScanWindow(nowMs float64) {
	o.streamBuffer = nil
	o.ticksSinceScan = 0
	o.msSinceScan = nowMs
}

// expectedEnergyAt returns the expected energy of the background-plan
// beat whose timestamp is nearest to the time elapsed since the current
// scan window started, since background timestamps are relative to a
// scan buffer, not the stream's wall clock. Returns 0 (no modulation)
// if no background plan exists yet.
func (o *Orchestrator) expectedEnergyAt(nowMs float64) float64 {
	if len(o.backgroundPlan) == 0 {
		return 0
	}
	relMs := nowMs - o.msSinceScan
	best := o.backgroundPlan[0]
	bestDist := absF(best.TimestampMs - relMs)
	for _, entry := range o.backgroundPlan {
		if d := absF(entry.TimestampMs - relMs); d < bestDist {
			best, bestDist = entry, d
		}
	}
	return best.ExpectedEnergy
}

func (o *Orchestrator) updateFile(nowMs float64, inGrace bool) engine.RenderDecision {
	if len(o.plan) == 0 {
		return engine.RenderDecision{
			PhysicsSnapshot: o.filePhysics.State(),
			EffectsSnapshot: o.filePhysics.Effects(),
		}
	}

	didSelect := false
	for o.beatCursor < len(o.plan) && o.plan[o.beatCursor].TimestampMs <= nowMs {
		entry := o.plan[o.beatCursor]
		if !inGrace {
			bass := entry.TargetRotation / 35
			o.filePhysics.OnBeat(bass)
			o.filePhysics.ResetTransition()
			if entry.Flash != 0 {
				o.filePhysics.SetEffect("flash", entry.Flash)
			}
			didSelect = true
		}
		o.beatCursor++
	}

	current := o.currentBeatEntry()
	transitionMode := decision.TransitionMode(current.TransitionMode)
	bass := current.TargetRotation / 35
	o.filePhysics.Advance(nowMs-o.lastTickMs(), physics.Targets{Bass: bass, T: nowMs}, transitionMode.Speed())

	return engine.RenderDecision{
		FrameID:         current.FrameID,
		TransitionMode:  transitionMode,
		TransitionSpeed: transitionMode.Speed(),
		PhysicsSnapshot: o.filePhysics.State(),
		EffectsSnapshot: o.filePhysics.Effects(),
		IsTransitioning: o.filePhysics.State().TransitionProgress < 1,
		DidSelectFrame:  didSelect,
	}
}

// currentBeatEntry returns the most recently crossed plan entry, or the
// zero BeatChoreography if playback hasn't reached the first beat yet.
func (o *Orchestrator) currentBeatEntry() choreoplan.BeatChoreography {
	if o.beatCursor == 0 {
		return choreoplan.BeatChoreography{}
	}
	return o.plan[o.beatCursor-1]
}

// lastTickMs approximates the previous tick's timestamp from the
// current beat's position so file-mode playback can start from a
// scrubbed position without a dedicated Advance(0) priming call.
func (o *Orchestrator) lastTickMs() float64 {
	if o.beatCursor == 0 {
		return 0
	}
	return o.plan[o.beatCursor-1].TimestampMs
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
