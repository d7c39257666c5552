package choreoplan

import (
	"math/rand"

	"github.com/cartomix/choreo/internal/decision"
	"github.com/cartomix/choreo/internal/frame"
)

// sectionMood buckets a section's type/energy into one of four moods
// used to weight the per-beat plan (spec §4.H's "Plan per beat").
type sectionMood string

const (
	moodAmbient sectionMood = "ambient"
	moodGroove  sectionMood = "groove"
	moodHype    sectionMood = "hype"
	moodPeak    sectionMood = "peak"
)

func moodFor(s Section) sectionMood {
	switch {
	case s.Type == SectionDrop || s.Energy > dropEnergyThreshold:
		return moodPeak
	case s.Type == SectionChorus || s.Energy > chorusEnergyThreshold:
		return moodHype
	case s.Type == SectionBreakdown || s.Type == SectionIntro || s.Type == SectionOutro:
		return moodAmbient
	default:
		return moodGroove
	}
}

// beatPhase is the beat-in-bar-driven pool selector used when no
// detected pattern covers the current beat (spec §4.H).
type beatPhase string

const (
	phaseWarmup    beatPhase = "warmup"
	phaseSwingLeft beatPhase = "swing_left"
	phaseSwingRight beatPhase = "swing_right"
	phaseDrop      beatPhase = "drop"
	phaseChaos     beatPhase = "chaos"
)

func phaseFor(beatInBar int) beatPhase {
	switch {
	case beatInBar <= 3:
		return phaseWarmup
	case beatInBar <= 7:
		return phaseSwingLeft
	case beatInBar <= 11:
		return phaseSwingRight
	case beatInBar <= 13:
		return phaseDrop
	default:
		return phaseChaos
	}
}

// Planner generates the per-beat choreography plan for a song map over
// a loaded frame pool.
type Planner struct {
	rng *rand.Rand
}

// NewPlanner builds a planner. rng may be nil for a default
// deterministic source.
func NewPlanner(rng *rand.Rand) *Planner {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Planner{rng: rng}
}

// Plan walks every beat of the song map and assigns it a frame,
// transition, and physics targets (spec §4.H).
func (p *Planner) Plan(sm *SongMap, pool *frame.Pool) []BeatChoreography {
	patternByBeat := indexPatternOccurrences(sm.RepeatedPatterns)
	downbeatSet := make(map[int]bool, len(sm.Downbeats))
	for _, d := range sm.Downbeats {
		downbeatSet[d] = true
	}

	var plan []BeatChoreography
	var lastFrame *frame.Frame

	for i, ts := range sm.Beats {
		section := sectionAt(sm.Sections, i)
		mood := moodFor(section)
		strength := beatStrengthAt(sm.EnergyProfile, ts)
		isDownbeat := downbeatSet[i]

		var candidates []*frame.Frame
		var phase beatPhase
		var patternID string
		var isSignature bool

		if occ, ok := patternByBeat[i]; ok {
			patternID = occ.id
			candidates, phase = p.signatureCandidates(occ, pool)
			isSignature = true
		} else {
			phase = phaseFor(i % 16)
			candidates = poolForPhase(phase, i, pool)
		}

		preferred := preferredCandidates(lastFrame, candidates)
		if len(preferred) > 0 {
			candidates = preferred
		}
		if len(candidates) == 0 {
			candidates = pool.All()
		}

		picked := weightedRandomFrame(p.rng, candidates)
		transition := transitionFor(isDownbeat, section.Type, phase, picked, strength)

		entry := BeatChoreography{
			BeatIndex:       i,
			TimestampMs:     ts,
			TransitionMode:  string(transition),
			TransitionSpeed: transition.Speed(),
			TargetRotation:  strength * section.Energy * 35,
			TargetSquash:    0.85,
			TargetBounce:    -50 * strength * section.Energy,
			FxMode:          string(mood),
			Phase:           string(phase),
			SectionType:     section.Type,
			IsSignatureMove: isSignature,
			PatternID:       patternID,
			ExpectedEnergy:  section.Energy,
		}
		if picked != nil {
			entry.FrameID = picked.ID
			lastFrame = picked
		}
		if strength > 0.7 {
			entry.Flash = 0.3 * strength
		}
		plan = append(plan, entry)
	}
	return plan
}

type patternOccurrence struct {
	id    string
	index int // which occurrence number this beat belongs to, for signature cycling
}

func indexPatternOccurrences(patterns []RepeatedPattern) map[int]patternOccurrence {
	out := make(map[int]patternOccurrence)
	for _, pat := range patterns {
		for occIdx, start := range pat.Occurrences {
			for b := start; b < start+pat.DurationBeats; b++ {
				out[b] = patternOccurrence{id: pat.ID, index: occIdx}
			}
		}
	}
	return out
}

// signatureCandidates picks one phase for a whole pattern occurrence,
// cycling warmup, swing-left, swing-right, drop by occurrence number,
// and returns that phase's frame pool. Plan then draws each beat's
// frame at random from the pool, so repeated occurrences of a pattern
// do not reuse the same frame sequence.
func (p *Planner) signatureCandidates(occ patternOccurrence, pool *frame.Pool) ([]*frame.Frame, beatPhase) {
	sequence := []beatPhase{phaseWarmup, phaseSwingLeft, phaseSwingRight, phaseDrop}
	phase := sequence[occ.index%len(sequence)]
	return poolForPhase(phase, occ.index, pool), phase
}

func poolForPhase(phase beatPhase, beatIndex int, pool *frame.Pool) []*frame.Frame {
	switch phase {
	case phaseWarmup:
		return pool.ByEnergy(frame.EnergyLow)
	case phaseSwingLeft:
		return pool.Filter(frame.EnergyMid, frame.DirectionLeft, "")
	case phaseSwingRight:
		return pool.Filter(frame.EnergyMid, frame.DirectionRight, "")
	case phaseDrop:
		c := pool.ByType(frame.TypeCloseup)
		if len(c) == 0 {
			c = pool.ByEnergy(frame.EnergyHigh)
		}
		return c
	default: // chaos
		return pool.All()
	}
}

func preferredCandidates(last *frame.Frame, candidates []*frame.Frame) []*frame.Frame {
	if last == nil || len(last.PreferredTransitions) == 0 {
		return nil
	}
	preferredIDs := make(map[string]bool, len(last.PreferredTransitions))
	for _, id := range last.PreferredTransitions {
		preferredIDs[id] = true
	}
	var out []*frame.Frame
	for _, c := range candidates {
		if preferredIDs[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func weightedRandomFrame(rng *rand.Rand, candidates []*frame.Frame) *frame.Frame {
	if len(candidates) == 0 {
		return nil
	}
	total := 0.0
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	r := rng.Float64() * total
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

func transitionFor(isDownbeat bool, sectionType SectionType, phase beatPhase, picked *frame.Frame, strength float64) decision.TransitionMode {
	switch {
	case isDownbeat && sectionType == SectionDrop:
		return decision.TransitionCut
	case picked != nil && picked.Type == frame.TypeCloseup:
		return decision.TransitionZoomIn
	case phase == phaseSwingLeft || phase == phaseSwingRight:
		return decision.TransitionSlide
	case phase == phaseWarmup:
		return decision.TransitionSmooth
	case strength > 0.7:
		return decision.TransitionCut
	default:
		return decision.TransitionMorph
	}
}

func sectionAt(sections []Section, beatIndex int) Section {
	for _, s := range sections {
		if beatIndex >= s.StartBeat && beatIndex < s.EndBeat {
			return s
		}
	}
	if len(sections) > 0 {
		return sections[len(sections)-1]
	}
	return Section{Type: SectionVerse}
}

func beatStrengthAt(profile []EnergySample, timeMs float64) float64 {
	if len(profile) == 0 {
		return 0
	}
	best := profile[0]
	bestDist := abs(best.TimeMs - timeMs)
	for _, s := range profile {
		if d := abs(s.TimeMs - timeMs); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best.Composite
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
