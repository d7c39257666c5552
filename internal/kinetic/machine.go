package kinetic

import (
	"math/rand"

	"github.com/cartomix/choreo/internal/decision"
	"github.com/cartomix/choreo/internal/frame"
)

// SequenceMode is the category of movement the machine is currently
// emitting (spec §3).
type SequenceMode string

const (
	ModeGroove   SequenceMode = "groove"
	ModeEmote    SequenceMode = "emote"
	ModeImpact   SequenceMode = "impact"
	ModeFootwork SequenceMode = "footwork"
)

const transitionProbability = 0.30

// Availability reports which frame categories the pool can currently
// serve, used by the sequence-mode rule (spec §4.D step 2).
type Availability struct {
	CloseupsAvailable bool
	HandsAvailable    bool
	FeetAvailable     bool
}

// Input is one tick's worth of audio and timing context the machine
// reacts to.
type Input struct {
	Bass, Mid, High float64
	BarCounter      int
	PhraseCounter   int
	BeatDetected    bool
	NowMs           float64
	Avail           Availability
}

// State is the machine's externally visible position (spec §3's
// "kinetic state").
type State struct {
	CurrentNode   NodeID
	PreviousNode  NodeID
	IsLocked      bool
	LockReleaseMs float64
	SequenceMode  SequenceMode
}

// Machine runs the kinetic DAG: energy-gated, probabilistic transitions
// between movement nodes, with minimum-dwell locks and beat-synced
// frame selection.
type Machine struct {
	graph       *Graph
	state       State
	lastPose    map[string]int // pose -> consecutive reject count, keyed by last selected pose
	lastPoseID  string
	rejectCount int
	rng         *rand.Rand
	forcedMode  bool
}

// NewMachine builds a machine over the given graph, starting at idle.
// rng may be nil, in which case a source seeded with 1 is used, so an
// unseeded machine is still deterministic.
func NewMachine(g *Graph, rng *rand.Rand) *Machine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Machine{
		graph: g,
		state: State{CurrentNode: NodeIdle, SequenceMode: ModeGroove},
		rng:   rng,
	}
}

// State returns the machine's current externally visible state.
func (m *Machine) State() State { return m.state }

// SetSequenceMode forces the next tick's sequence mode, overriding the
// rule in updateSequenceMode for one tick — used by the touch/input
// surface's free-mode override (spec §6's "touch/input surface").
func (m *Machine) SetSequenceMode(mode SequenceMode) {
	m.state.SequenceMode = mode
	m.forcedMode = true
}

// Tick advances the machine one audio tick and, on a detected beat (or
// a node change), selects a frame from pool (spec §4.D).
func (m *Machine) Tick(in Input, pool *frame.Pool) decision.Pick {
	if m.state.IsLocked && in.NowMs < m.state.LockReleaseMs {
		// held: still select on beat so output keeps pulsing
		if in.BeatDetected {
			return m.selectFrame(in, pool)
		}
		return decision.Pick{}
	}
	m.state.IsLocked = false

	m.updateSequenceMode(in)
	m.maybeTransition(in)

	if in.BeatDetected {
		return m.selectFrame(in, pool)
	}
	return decision.Pick{}
}

func (m *Machine) updateSequenceMode(in Input) {
	if m.forcedMode {
		m.forcedMode = false
		return
	}
	switch {
	case in.High > 0.7 && in.Avail.CloseupsAvailable:
		m.state.SequenceMode = ModeEmote
	case in.Bass > 0.8 && in.Avail.HandsAvailable:
		m.state.SequenceMode = ModeImpact
	case in.BarCounter >= 12 && in.Avail.FeetAvailable:
		m.state.SequenceMode = ModeFootwork
	case in.PhraseCounter == 7:
		m.state.SequenceMode = ModeImpact
	default:
		m.state.SequenceMode = ModeGroove
	}
}

func (m *Machine) maybeTransition(in Input) {
	node, ok := m.graph.Node(m.state.CurrentNode)
	if !ok {
		return
	}
	energy := (in.Bass + in.Mid + in.High) / 3
	if energy <= node.ExitThreshold {
		return
	}

	var candidates []NodeID
	for _, nb := range node.Neighbors {
		if n, ok := m.graph.Node(nb); ok && energy >= n.EnergyRequired {
			candidates = append(candidates, nb)
		}
	}
	if len(candidates) == 0 {
		return
	}
	if m.rng.Float64() >= transitionProbability {
		return
	}

	chosen := candidates[m.rng.Intn(len(candidates))]
	m.state.PreviousNode = m.state.CurrentNode
	m.state.CurrentNode = chosen

	if next, ok := m.graph.Node(chosen); ok && next.MinDurationMs >= 500 {
		m.state.IsLocked = true
		m.state.LockReleaseMs = in.NowMs + next.MinDurationMs
	}
}

// selectFrame implements the per-sequence_mode frame selection rules
// of spec §4.D, rejecting up to three identical-pose picks in a row.
func (m *Machine) selectFrame(in Input, pool *frame.Pool) decision.Pick {
	candidates, transition, flash := m.candidatesFor(in, pool)
	if len(candidates) == 0 {
		candidates = pool.All()
	}
	if len(candidates) == 0 {
		return decision.Pick{}
	}

	picked := m.weightedPick(candidates)
	for attempt := 0; attempt < 3 && picked.Pose == m.lastPoseID && len(candidates) > 1; attempt++ {
		picked = m.weightedPick(candidates)
	}
	m.lastPoseID = picked.Pose

	return decision.Pick{
		FrameID:        picked.ID,
		Transition:     transition,
		FlashDelta:     flash,
		DidSelectFrame: true,
	}
}

func (m *Machine) candidatesFor(in Input, pool *frame.Pool) ([]*frame.Frame, decision.TransitionMode, float64) {
	switch m.state.SequenceMode {
	case ModeEmote:
		c := pool.ByType(frame.TypeCloseup)
		return c, decision.TransitionZoomIn, 0

	case ModeFootwork:
		c := pool.ByType(frame.TypeFeet)
		if len(c) == 0 {
			c = pool.ByEnergy(frame.EnergyMid)
		}
		return c, decision.TransitionCut, 0

	case ModeImpact:
		c := pool.ByType(frame.TypeMandala)
		if len(c) == 0 {
			c = pool.ByType(frame.TypeHands)
		}
		if len(c) == 0 {
			c = pool.ByEnergy(frame.EnergyHigh)
		}
		return c, decision.TransitionCut, 0.5

	default: // ModeGroove
		dir := frame.DirectionLeft
		if in.BarCounter%2 != 0 {
			dir = frame.DirectionRight
		}
		c := pool.Filter(frame.EnergyMid, dir, "")
		return c, decision.TransitionSlide, 0
	}
}

func (m *Machine) weightedPick(candidates []*frame.Frame) *frame.Frame {
	total := 0.0
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total <= 0 {
		return candidates[m.rng.Intn(len(candidates))]
	}
	r := m.rng.Float64() * total
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		if r < w {
			return c
		}
		r -= w
	}
	return candidates[len(candidates)-1]
}
