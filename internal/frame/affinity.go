package frame

import "sort"

// energyStep orders energies so "step up" and "step down" are
// well-defined for affinity scoring.
var energyStep = map[Energy]int{EnergyLow: 0, EnergyMid: 1, EnergyHigh: 2}

// ComputeAffinities populates each frame's PreferredTransitions with up
// to five opposite-direction candidates, three same-direction
// candidates from a different source, and three energy-step-up
// candidates (spec §4.C's compute_affinities). Candidates are ranked by
// a weighted compatibility score: direction opposition, type match, and
// energy step each contribute, then ties break on frame id for
// determinism.
func (p *Pool) ComputeAffinities() {
	for _, f := range p.frames {
		f.PreferredTransitions = p.affinitiesFor(f)
	}
}

func (p *Pool) affinitiesFor(f *Frame) []string {
	opposite := p.rankedCandidates(f, func(c *Frame) bool {
		return c.ID != f.ID && c.Direction != DirectionCenter && c.Direction != f.Direction
	}, 5)

	sameDir := p.rankedCandidates(f, func(c *Frame) bool {
		return c.ID != f.ID && c.DerivedFrom != f.ID && f.DerivedFrom != c.ID &&
			c.Direction == f.Direction
	}, 3)

	stepUp := p.rankedCandidates(f, func(c *Frame) bool {
		return c.ID != f.ID && energyStep[c.Energy] == energyStep[f.Energy]+1
	}, 3)

	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{opposite, sameDir, stepUp} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (p *Pool) rankedCandidates(f *Frame, match func(*Frame) bool, limit int) []string {
	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for _, c := range p.frames {
		if !match(c) {
			continue
		}
		candidates = append(candidates, scored{id: c.ID, score: affinityScore(f, c)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// affinityScore weighs direction opposition, type compatibility, and
// energy step between two frames into a single transition-compatibility
// score.
func affinityScore(a, b *Frame) float64 {
	score := 0.0
	if a.Direction != DirectionCenter && b.Direction != DirectionCenter && a.Direction != b.Direction {
		score += 0.5
	}
	if a.Type == b.Type {
		score += 0.3
	}
	step := energyStep[b.Energy] - energyStep[a.Energy]
	switch step {
	case 1:
		score += 0.4
	case 0:
		score += 0.2
	}
	score += b.Weight * 0.1
	return score
}

// energyPhases (and typePhases below) map an energy or type tag to the pattern phases it feeds
// (spec §4.C's compute_phase_affinities).
var energyPhases = map[Energy][]string{
	EnergyLow:  {"AMBIENT", "WARMUP", "FLOW"},
	EnergyMid:  {"SWING_LEFT", "SWING_RIGHT", "GROOVE"},
	EnergyHigh: {"DROP", "CHAOS", "GROOVE"},
}

var typePhases = map[Type][]string{
	TypeCloseup: {"VOGUE", "FLOW"},
}

// zoomPhases applies to any derived frame produced by a zoom operation,
// regardless of its resulting type.
var zoomPhases = []string{"DROP", "CHAOS"}

// PhaseAffinities reports which pattern phases this frame feeds,
// deduplicated, in a stable order: energy-driven phases first, then
// type-driven, then zoom-driven.
func (p *Pool) PhaseAffinities(f *Frame) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(phases []string) {
		for _, ph := range phases {
			if !seen[ph] {
				seen[ph] = true
				out = append(out, ph)
			}
		}
	}
	add(energyPhases[f.Energy])
	add(typePhases[f.Type])
	if f.DerivedOp != nil && f.DerivedOp.Kind == OpZoom {
		add(zoomPhases)
	}
	return out
}

// ComputePhaseAffinities is a convenience that runs PhaseAffinities over
// every frame in the pool and returns the phase -> frame id index.
func (p *Pool) ComputePhaseAffinities() map[string][]string {
	index := make(map[string][]string)
	for _, f := range p.frames {
		for _, phase := range p.PhaseAffinities(f) {
			index[phase] = append(index[phase], f.ID)
		}
	}
	return index
}
