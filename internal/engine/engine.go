// Package engine ties the feature extractor, beat tracker, kinetic
// state machine, pattern sequencer, deck mixer, and physics integrator
// into the single cooperative `update(audio_sample) -> render_decision`
// loop the rest of the system drives (spec §1's top-level data flow).
// Update runs synchronously and spawns no goroutines of its own,
// matching the single-threaded real-time contract (spec §5).
package engine

import (
	"log/slog"
	"math/rand"

	"github.com/cartomix/choreo/internal/audio"
	"github.com/cartomix/choreo/internal/beat"
	"github.com/cartomix/choreo/internal/decision"
	"github.com/cartomix/choreo/internal/frame"
	"github.com/cartomix/choreo/internal/kinetic"
	"github.com/cartomix/choreo/internal/mixer"
	"github.com/cartomix/choreo/internal/pattern"
	"github.com/cartomix/choreo/internal/physics"
)

// analysisWindowSize and analysisHopSize mirror the offline planner's
// onset windowing (spec §4.A): a 1024-sample analysis window advanced
// 512 samples at a time, so consecutive windows overlap by half.
const (
	analysisWindowSize = 1024
	analysisHopSize    = 512
)

const (
	minBPM = 60
	maxBPM = 200
)

// Mode selects which selector drives frame picks: the kinetic state
// machine or the pattern sequencer (spec §4.D/E both feed the same
// render loop, mutually exclusive per tick).
type Mode string

const (
	ModeKinetic Mode = "kinetic"
	ModePattern Mode = "pattern"
)

// Trigger is a one-shot manual override applied on the next tick (spec
// §6's "touch/input surface" triggers).
type Trigger string

const (
	TriggerStutter Trigger = "stutter"
	TriggerReverse Trigger = "reverse"
	TriggerGlitch  Trigger = "glitch"
	TriggerBurst   Trigger = "burst"
	TriggerFreeze  Trigger = "freeze"
)

// RenderDecision is the per-tick output handed to the renderer (spec
// §3's "render decision").
type RenderDecision struct {
	FrameID            string                  `json:"frame_id"`
	TransitionMode     decision.TransitionMode `json:"transition_mode"`
	TransitionSpeed    float64                 `json:"transition_speed"`
	PhysicsSnapshot    physics.State           `json:"physics"`
	EffectsSnapshot    physics.Effects         `json:"effects"`
	SequenceMode       string                  `json:"sequence_mode"`
	IsTransitioning    bool                    `json:"is_transitioning"`
	DidSelectFrame     bool                    `json:"did_select_frame"`
	LayeredFrames      []mixer.LayeredFrame    `json:"layered_frames"`
	CrossfaderPosition float64                 `json:"crossfader_position"`
}

// Telemetry is the read-only status snapshot exposed to the control
// surface (spec §6's `get_telemetry`).
type Telemetry struct {
	BPM           float64        `json:"bpm"`
	Confidence    float64        `json:"confidence"`
	Bar           int            `json:"bar"`
	Phrase        int            `json:"phrase"`
	BeatPos       float64        `json:"beat_pos"`
	SequenceMode  string         `json:"sequence_mode"`
	EngineMode    Mode           `json:"engine_mode"`
	ActivePattern pattern.Name   `json:"active_pattern"`
	CurrentNode   kinetic.NodeID `json:"current_node"`
	ActiveDeckIDs []int          `json:"active_deck_ids"`
	PoolCounts    map[string]int `json:"pool_counts"`
}

// Engine is the live runtime: one frame pool, one beat tracker, one
// kinetic machine, one pattern sequencer, one mixer, one physics
// integrator, wired into a single Update call per audio tick.
type Engine struct {
	logger *slog.Logger

	spectrum  *audio.SpectrumComputer
	extractor *audio.FeatureExtractor

	tracker   *beat.Tracker
	graph     *kinetic.Graph
	machine   *kinetic.Machine
	sequencer *pattern.Sequencer
	mixer     *mixer.Mixer
	physics   *physics.Integrator

	mode Mode
	pool *frame.Pool

	ring []float64

	lastFeatures audio.Features
	lastTickMs   float64
	haveLastTick bool

	currentFrameID string
	transitionMode decision.TransitionMode
	lastBeatState  beat.State

	pendingStutter bool
	reverseActive  bool

	energyScale        float64
	selectionSuppressed bool
}

// New builds an engine at rest: kinetic mode, empty pool, idle 4-deck
// mixer, physics at rest. rng may be nil, in which case each
// probabilistic component seeds its own deterministic default.
func New(logger *slog.Logger, sampleRate float64, rng *rand.Rand) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	graph := kinetic.NewGraph()
	return &Engine{
		logger:    logger,
		spectrum:  audio.NewSpectrumComputer(analysisWindowSize, sampleRate),
		extractor: audio.NewFeatureExtractor(sampleRate),
		tracker:   beat.NewTracker(),
		graph:     graph,
		machine:   kinetic.NewMachine(graph, rng),
		sequencer: pattern.NewSequencer(pattern.Groove, rng),
		mixer:     mixer.NewMixer(),
		physics:   physics.NewIntegrator(),
		mode:           ModeKinetic,
		transitionMode: decision.TransitionCut,
		energyScale:    1,
	}
}

// LoadFramePool replaces the pool the active selector (kinetic or
// pattern) draws from, and attaches it to deck 0 as the mixer's own
// sequencer pool (spec §4.F's "own pools").
func (e *Engine) LoadFramePool(pool *frame.Pool) {
	e.pool = pool
	if d := e.mixer.Deck(0); d != nil {
		d.SetPool(pool)
	}
}

// ActivePool returns the pool the active selector currently draws
// from, or nil if none is loaded.
func (e *Engine) ActivePool() *frame.Pool {
	return e.pool
}

// LoadDeck assigns a fresh load id to a mixer deck and its manual-
// advance frame list (spec §4.F's `load_deck`).
func (e *Engine) LoadDeck(deckID int, frameIDs []string) (loadID string, ok bool) {
	return e.mixer.LoadDeck(deckID, frameIDs)
}

// SetDeckMode changes a deck's role.
func (e *Engine) SetDeckMode(deckID int, role mixer.Role) bool {
	return e.mixer.SetMode(deckID, role)
}

// SetDeckOpacity sets a deck's blend opacity, clamped to [0,1].
func (e *Engine) SetDeckOpacity(deckID int, opacity float64) bool {
	return e.mixer.SetOpacity(deckID, opacity)
}

// SetCrossfader sets the crossfader position, clamped to [0,1].
func (e *Engine) SetCrossfader(v float64) {
	e.mixer.SetCrossfader(v)
}

// SetMode switches the active selector between kinetic and pattern
// (spec §4.I's `set_engine_mode`).
func (e *Engine) SetMode(mode Mode) {
	e.mode = mode
}

// Mode reports the currently active selector.
func (e *Engine) Mode() Mode { return e.mode }

// SetPattern switches the running pattern when in pattern mode.
func (e *Engine) SetPattern(name pattern.Name) {
	e.sequencer.SetActive(name)
}

// SetSequenceMode forces the kinetic machine's next-tick sequence
// mode, the touch/input surface's free-mode override (spec §6).
func (e *Engine) SetSequenceMode(mode kinetic.SequenceMode) {
	e.machine.SetSequenceMode(mode)
}

// SetBPM overrides the beat tracker's BPM, clamped to the tracker's
// supported range, and disables auto-estimation.
func (e *Engine) SetBPM(bpm float64) {
	if bpm < minBPM {
		bpm = minBPM
	}
	if bpm > maxBPM {
		bpm = maxBPM
	}
	e.tracker.SetBPM(bpm)
}

// SetAutoBPM toggles automatic BPM estimation.
func (e *Engine) SetAutoBPM(auto bool) {
	e.tracker.SetAutoBPM(auto)
}

// TapBeat manually registers a beat, subject to the tracker's interval
// guard (spec §4.B's `tap_beat`).
func (e *Engine) TapBeat(nowMs float64) bool {
	return e.tracker.TapBeat(nowMs)
}

// SetTrigger arms a one-shot manual override consumed on the next
// Update call (spec §6's touch/input triggers). Glitch, burst, and
// freeze apply immediately since they are physics/effect bumps, not
// selection changes; stutter is deferred to the pattern sequencer's own
// stutter-trigger handling. Reverse toggles a standing flag that
// inverts the rotation targets fed to the physics integrator each tick
// until triggered again. Burst and freeze are the one-shot
// pre-integrator impulses design note §9 calls for (squash+brightness
// for burst, saturation+brightness for freeze), not decaying effect
// bumps like glitch.
func (e *Engine) SetTrigger(t Trigger) bool {
	switch t {
	case TriggerStutter:
		e.pendingStutter = true
	case TriggerReverse:
		e.reverseActive = !e.reverseActive
	case TriggerGlitch:
		e.physics.SetEffect("glitch", 0.8)
	case TriggerBurst:
		e.physics.Burst()
	case TriggerFreeze:
		e.physics.Freeze()
	default:
		return false
	}
	return true
}

// SetEffect applies an inbound manual effect override directly to the
// physics integrator.
func (e *Engine) SetEffect(name string, value float64) bool {
	return e.physics.SetEffect(name, value)
}

// SetEnergyScale multiplies the band targets fed to the physics
// integrator (not beat detection), used by the dual-mode orchestrator
// to duck or boost the live physics response against an offline plan's
// expected energy (spec §4.I's live-energy modulation).
func (e *Engine) SetEnergyScale(factor float64) {
	e.energyScale = factor
}

// LastEnergy reports the most recently computed overall band energy,
// for the orchestrator's energy-ratio calculation.
func (e *Engine) LastEnergy() float64 {
	return e.lastFeatures.Bands.Energy
}

// SetSelectionSuppressed disables new frame selection while audio and
// physics continue to advance, used during the orchestrator's
// mode-switch grace window (spec §4.I's "micro-expressions only").
func (e *Engine) SetSelectionSuppressed(suppressed bool) {
	e.selectionSuppressed = suppressed
}

// SetCurrentFrameID overrides the frame id Update echoes back without
// touching transition or physics state. The orchestrator calls this
// when leaving file mode so a subsequent suppressed live tick reports
// the last file-mode frame id instead of the engine's own stale pick
// (spec §4.I scenario: a file-to-mic switch holds did_select_frame=false
// and frame_id pinned to the pre-switch frame for the grace window).
func (e *Engine) SetCurrentFrameID(id string) {
	e.currentFrameID = id
}

// Reset returns the engine to its post-New state, keeping the loaded
// frame pool and mixer deck assignments but clearing tracker, kinetic,
// and physics state.
func (e *Engine) Reset() {
	e.tracker = beat.NewTracker()
	e.machine = kinetic.NewMachine(e.graph, nil)
	e.physics = physics.NewIntegrator()
	e.ring = nil
	e.lastFeatures = audio.Features{}
	e.haveLastTick = false
	e.currentFrameID = ""
	e.transitionMode = decision.TransitionCut
	e.pendingStutter = false
	e.reverseActive = false
	e.energyScale = 1
	e.selectionSuppressed = false
}

// Update feeds one tick's raw mono PCM samples through the pipeline and
// returns the resulting render decision (spec §3's top-level `update`).
// samples accumulate into a sliding 1024/512 window/hop ring buffer;
// Features are recomputed each time a full window completes, and
// reused between boundaries since Update is called far more often than
// the window completes.
func (e *Engine) Update(samples []float64, nowMs float64) RenderDecision {
	dtMs := 0.0
	if e.haveLastTick && nowMs > e.lastTickMs {
		dtMs = nowMs - e.lastTickMs
	}
	e.lastTickMs = nowMs
	e.haveLastTick = true

	e.ring = append(e.ring, samples...)
	for len(e.ring) >= analysisWindowSize {
		mags := e.spectrum.Magnitudes(e.ring[:analysisWindowSize])
		if mags != nil {
			e.lastFeatures = e.extractor.Update(mags)
		}
		e.ring = e.ring[analysisHopSize:]
	}

	bands := e.lastFeatures.Bands
	beatState := e.tracker.Update(bands.Bass, nowMs)
	e.lastBeatState = beatState

	pick := e.selectFrame(beatState)
	e.applyPick(pick)

	if beatState.JustDetected {
		e.physics.OnBeat(bands.Bass)
	}
	targets := physics.Targets{
		Bass:    bands.Bass * e.energyScale,
		Mid:     bands.Mid * e.energyScale,
		High:    bands.High * e.energyScale,
		T:       nowMs,
		Reverse: e.reverseActive,
	}
	e.physics.Advance(dtMs, targets, e.transitionMode.Speed())

	return RenderDecision{
		FrameID:            e.currentFrameID,
		TransitionMode:     e.transitionMode,
		TransitionSpeed:    e.transitionMode.Speed(),
		PhysicsSnapshot:    e.physics.State(),
		EffectsSnapshot:    e.physics.Effects(),
		SequenceMode:       string(e.machine.State().SequenceMode),
		IsTransitioning:    e.physics.State().TransitionProgress < 1,
		DidSelectFrame:     pick.DidSelectFrame,
		LayeredFrames:      e.mixer.AdvanceLayers(),
		CrossfaderPosition: e.mixer.Crossfader(),
	}
}

// selectFrame runs the active selector against the loaded pool. An
// empty or absent pool is the EmptyPool failure mode of spec §7: the
// selector naturally returns did_select_frame=false, and the prior
// frame id carries over.
func (e *Engine) selectFrame(beatState beat.State) decision.Pick {
	stutter := e.pendingStutter
	e.pendingStutter = false

	if e.selectionSuppressed || e.pool == nil || e.pool.Len() == 0 {
		return decision.Pick{}
	}

	bands := e.lastFeatures.Bands
	if e.mode == ModePattern {
		return e.sequencer.Tick(pattern.Input{
			Bass: bands.Bass, Mid: bands.Mid, High: bands.High,
			BarCounter:     beatState.BarCounter,
			BeatDetected:   beatState.JustDetected,
			StutterTrigger: stutter,
		}, e.pool)
	}

	return e.machine.Tick(kinetic.Input{
		Bass: bands.Bass, Mid: bands.Mid, High: bands.High,
		BarCounter:    beatState.BarCounter,
		PhraseCounter: beatState.PhraseCounter,
		BeatDetected:  beatState.JustDetected,
		NowMs:         e.lastTickMs,
		Avail:         e.availability(),
	}, e.pool)
}

func (e *Engine) availability() kinetic.Availability {
	return kinetic.Availability{
		CloseupsAvailable: len(e.pool.ByType(frame.TypeCloseup)) > 0,
		HandsAvailable:    len(e.pool.ByType(frame.TypeHands)) > 0,
		FeetAvailable:     len(e.pool.ByType(frame.TypeFeet)) > 0,
	}
}

func (e *Engine) applyPick(pick decision.Pick) {
	if !pick.DidSelectFrame {
		return
	}
	e.currentFrameID = pick.FrameID
	e.transitionMode = pick.Transition
	e.physics.ResetTransition()
	if pick.FlashDelta != 0 {
		e.physics.SetEffect("flash", pick.FlashDelta)
	}
	if pick.GlitchDelta != 0 {
		e.physics.SetEffect("glitch", pick.GlitchDelta)
	}
}

// GetTelemetry returns the engine's current status snapshot, reflecting
// the beat/kinetic/pattern state as of the most recent Update call.
func (e *Engine) GetTelemetry() Telemetry {
	beatState := e.lastBeatState
	t := Telemetry{
		BPM:           beatState.BPM,
		Confidence:    beatState.Confidence,
		Bar:           beatState.BarCounter,
		Phrase:        beatState.PhraseCounter,
		BeatPos:       beatState.BeatPos,
		SequenceMode:  string(e.machine.State().SequenceMode),
		EngineMode:    e.mode,
		ActivePattern: e.sequencer.Active(),
		CurrentNode:   e.machine.State().CurrentNode,
		ActiveDeckIDs: e.mixer.SequencerDeckIDs(),
		PoolCounts:    e.poolCounts(),
	}
	return t
}

func (e *Engine) poolCounts() map[string]int {
	counts := map[string]int{"total": 0}
	if e.pool == nil {
		return counts
	}
	counts["total"] = e.pool.Len()
	counts["low"] = len(e.pool.ByEnergy(frame.EnergyLow))
	counts["mid"] = len(e.pool.ByEnergy(frame.EnergyMid))
	counts["high"] = len(e.pool.ByEnergy(frame.EnergyHigh))
	counts["closeup"] = len(e.pool.ByType(frame.TypeCloseup))
	counts["hands"] = len(e.pool.ByType(frame.TypeHands))
	counts["feet"] = len(e.pool.ByType(frame.TypeFeet))
	return counts
}
