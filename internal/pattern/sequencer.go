// Package pattern implements the pattern sequencer (spec §4.E): it
// runs in place of the kinetic state machine when the engine is in
// pattern mode, advancing one of 15 named patterns on every detected
// beat.
package pattern

import (
	"math/rand"

	"github.com/cartomix/choreo/internal/decision"
	"github.com/cartomix/choreo/internal/frame"
)

// Name identifies one of the 15 built-in patterns.
type Name string

const (
	PingPong   Name = "ping_pong"
	ABAB       Name = "abab"
	AABB       Name = "aabb"
	ABAC       Name = "abac"
	Stutter    Name = "stutter"
	SnareRoll  Name = "snare_roll"
	BuildDrop  Name = "build_drop"
	Impact     Name = "impact"
	Vogue      Name = "vogue"
	Flow       Name = "flow"
	Chaos      Name = "chaos"
	Minimal    Name = "minimal"
	Groove     Name = "groove"
	Emote      Name = "emote"
	Footwork   Name = "footwork"
)

// Input is one tick's worth of audio context the sequencer reacts to.
type Input struct {
	Bass, Mid, High float64
	BarCounter      int
	BeatDetected    bool
	StutterTrigger  bool
}

// Sequencer advances a selected pattern's internal index on every
// detected beat and emits a frame pick.
type Sequencer struct {
	active      Name
	index       int
	cachedA     []string
	cachedB     []string
	cachedC     []string
	cacheBar    int
	lastPose    string
	rng         *rand.Rand
}

// NewSequencer builds a sequencer running the given pattern. rng may be
// nil, in which case a default deterministic source is used.
func NewSequencer(active Name, rng *rand.Rand) *Sequencer {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Sequencer{active: active, rng: rng}
}

// SetActive switches the running pattern and resets its internal index.
func (s *Sequencer) SetActive(name Name) {
	s.active = name
	s.index = 0
	s.cachedA, s.cachedB, s.cachedC = nil, nil, nil
}

// Active reports the currently running pattern.
func (s *Sequencer) Active() Name { return s.active }

// Tick advances the pattern if a beat was detected and returns the
// resulting pick. Off-beat ticks return the zero Pick.
func (s *Sequencer) Tick(in Input, pool *frame.Pool) decision.Pick {
	if !in.BeatDetected {
		return decision.Pick{}
	}
	pick := s.pickFor(in, pool)
	s.index++
	return pick
}

func (s *Sequencer) pickFor(in Input, pool *frame.Pool) decision.Pick {
	switch s.active {
	case PingPong:
		return s.pingPong(pool)
	case ABAB, AABB, ABAC:
		return s.lettered(in, pool)
	case Stutter, SnareRoll:
		return s.stutter(in, pool)
	case BuildDrop, Impact:
		return s.buildDrop(in, pool)
	case Vogue:
		return s.vogue(pool)
	case Flow:
		return s.flow(pool)
	case Chaos:
		return s.chaos(pool)
	case Minimal:
		return s.minimal(pool)
	case Groove:
		return s.groove(in, pool)
	case Emote:
		return s.emote(pool)
	case Footwork:
		return s.footwork(pool)
	default:
		return s.groove(in, pool)
	}
}

func (s *Sequencer) pingPong(pool *frame.Pool) decision.Pick {
	var candidates []*frame.Frame
	if s.index%2 == 0 {
		candidates = pool.ByDirection(frame.DirectionLeft)
	} else {
		candidates = pool.ByDirection(frame.DirectionRight)
	}
	if len(candidates) == 0 {
		all := pool.All()
		half := len(all) / 2
		if s.index%2 == 0 {
			candidates = all[:half]
		} else {
			candidates = all[half:]
		}
	}
	return s.pick(candidates, decision.TransitionCut, 0, 0)
}

// lettered implements abab/aabb/abac: cache A/B(/C) pools, refresh
// every 4 bars (abab/aabb) or 8 bars (abac), then emit the fixed
// sequence for this pattern with a cut transition.
func (s *Sequencer) lettered(in Input, pool *frame.Pool) decision.Pick {
	refreshEvery := 4
	if s.active == ABAC {
		refreshEvery = 8
	}
	if s.cachedA == nil || in.BarCounter-s.cacheBar >= refreshEvery {
		s.refreshLetterCache(pool)
		s.cacheBar = in.BarCounter
	}

	seq := s.letterSequence()
	letter := seq[s.index%len(seq)]
	var pool2 []string
	switch letter {
	case 'a':
		pool2 = s.cachedA
	case 'b':
		pool2 = s.cachedB
	case 'c':
		pool2 = s.cachedC
	}
	if len(pool2) == 0 {
		pool2 = s.cachedA
	}
	if len(pool2) == 0 {
		return decision.Pick{}
	}
	id := pool2[s.index%len(pool2)]
	return decision.Pick{FrameID: id, Transition: decision.TransitionCut, DidSelectFrame: true}
}

func (s *Sequencer) letterSequence() []int32 {
	switch s.active {
	case ABAB:
		return []int32{'a', 'b', 'a', 'b'}
	case AABB:
		return []int32{'a', 'a', 'b', 'b'}
	default: // ABAC
		return []int32{'a', 'b', 'a', 'c'}
	}
}

func (s *Sequencer) refreshLetterCache(pool *frame.Pool) {
	ids := func(frames []*frame.Frame) []string {
		out := make([]string, len(frames))
		for i, f := range frames {
			out[i] = f.ID
		}
		return out
	}
	s.cachedA = ids(pool.ByEnergy(frame.EnergyLow))
	s.cachedB = ids(pool.ByEnergy(frame.EnergyMid))
	s.cachedC = ids(pool.ByEnergy(frame.EnergyHigh))
}

func (s *Sequencer) stutter(in Input, pool *frame.Pool) decision.Pick {
	if in.Mid > 0.6 || in.StutterTrigger {
		return decision.Pick{FrameID: s.lastPose, Transition: "", GlitchDelta: 0.3, DidSelectFrame: s.lastPose != ""}
	}
	return s.pick(pool.ByEnergy(frame.EnergyHigh), decision.TransitionCut, 0, 0)
}

func (s *Sequencer) buildDrop(in Input, pool *frame.Pool) decision.Pick {
	if in.Bass > 0.7 {
		return s.pick(pool.ByEnergy(frame.EnergyHigh), decision.TransitionCut, 0.5, 0)
	}
	return s.pick(pool.ByEnergy(frame.EnergyLow), decision.TransitionMorph, 0, 0)
}

func (s *Sequencer) vogue(pool *frame.Pool) decision.Pick {
	c := pool.ByType(frame.TypeCloseup)
	if len(c) == 0 {
		c = pool.ByEnergy(frame.EnergyHigh)
	}
	return s.pick(c, decision.TransitionZoomIn, 0, 0)
}

func (s *Sequencer) flow(pool *frame.Pool) decision.Pick {
	return s.pick(pool.ByEnergy(frame.EnergyMid), decision.TransitionSmooth, 0, 0)
}

func (s *Sequencer) chaos(pool *frame.Pool) decision.Pick {
	return s.pick(pool.All(), decision.TransitionMorph, 0, s.rng.Float64()*0.5)
}

func (s *Sequencer) minimal(pool *frame.Pool) decision.Pick {
	return s.pick(pool.ByEnergy(frame.EnergyLow), decision.TransitionSmooth, 0, 0)
}

func (s *Sequencer) groove(in Input, pool *frame.Pool) decision.Pick {
	dir := frame.DirectionLeft
	if in.BarCounter%2 != 0 {
		dir = frame.DirectionRight
	}
	c := pool.Filter(frame.EnergyMid, dir, "")
	return s.pick(c, decision.TransitionSlide, 0, 0)
}

func (s *Sequencer) emote(pool *frame.Pool) decision.Pick {
	return s.pick(pool.ByType(frame.TypeCloseup), decision.TransitionZoomIn, 0, 0)
}

func (s *Sequencer) footwork(pool *frame.Pool) decision.Pick {
	c := pool.ByType(frame.TypeFeet)
	if len(c) == 0 {
		c = pool.ByEnergy(frame.EnergyMid)
	}
	return s.pick(c, decision.TransitionCut, 0, 0)
}

// pick chooses a frame uniformly at random from candidates, returning
// the zero Pick (no fallback to the rest of the pool) when candidates
// is empty, and rejects a repeated pose once
// (spec §4.E: "duplicates-of-current-pose avoided with one re-sample").
func (s *Sequencer) pick(candidates []*frame.Frame, mode decision.TransitionMode, flash, glitch float64) decision.Pick {
	if len(candidates) == 0 {
		return decision.Pick{}
	}
	chosen := candidates[s.rng.Intn(len(candidates))]
	if chosen.Pose == s.lastPose && len(candidates) > 1 {
		chosen = candidates[s.rng.Intn(len(candidates))]
	}
	s.lastPose = chosen.Pose
	return decision.Pick{
		FrameID:        chosen.ID,
		Transition:     mode,
		FlashDelta:     flash,
		GlitchDelta:    glitch,
		DidSelectFrame: true,
	}
}
