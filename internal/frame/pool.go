package frame

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Pool is an ordered sequence of frames plus derived index views. The
// indices are references into the sequence (frame ids), never owning
// copies, and are rebuilt wholesale whenever the pool is mutated —
// there is no incremental index maintenance (spec §4.C invariant).
type Pool struct {
	category Category
	frames   []*Frame
	byID     map[string]*Frame

	byEnergy    map[Energy]mapset.Set[string]
	byDirection map[Direction]mapset.Set[string]
	byType      map[Type]mapset.Set[string]
}

// NewPool builds an empty pool for the given subject category.
func NewPool(category Category) *Pool {
	return &Pool{category: category}
}

// Category reports the pool's subject category.
func (p *Pool) Category() Category { return p.category }

// Len reports the number of frames currently in the pool.
func (p *Pool) Len() int { return len(p.frames) }

// All returns every frame in the pool, in load order.
func (p *Pool) All() []*Frame { return p.frames }

// Get resolves a frame by id.
func (p *Pool) Get(id string) (*Frame, bool) {
	f, ok := p.byID[id]
	return f, ok
}

// Load replaces the pool's contents and rebuilds all indices. Empty
// energy buckets are back-filled with the full frame set so that
// energy-gated selection never stalls for lack of candidates.
func (p *Pool) Load(frames []*Frame) {
	p.frames = append([]*Frame(nil), frames...)
	p.rebuild()
}

func (p *Pool) rebuild() {
	p.byID = make(map[string]*Frame, len(p.frames))
	p.byEnergy = map[Energy]mapset.Set[string]{
		EnergyLow:  mapset.NewThreadUnsafeSet[string](),
		EnergyMid:  mapset.NewThreadUnsafeSet[string](),
		EnergyHigh: mapset.NewThreadUnsafeSet[string](),
	}
	p.byDirection = map[Direction]mapset.Set[string]{
		DirectionLeft:   mapset.NewThreadUnsafeSet[string](),
		DirectionCenter: mapset.NewThreadUnsafeSet[string](),
		DirectionRight:  mapset.NewThreadUnsafeSet[string](),
	}
	p.byType = map[Type]mapset.Set[string]{
		TypeBody:      mapset.NewThreadUnsafeSet[string](),
		TypeCloseup:   mapset.NewThreadUnsafeSet[string](),
		TypeHands:     mapset.NewThreadUnsafeSet[string](),
		TypeFeet:      mapset.NewThreadUnsafeSet[string](),
		TypeMandala:   mapset.NewThreadUnsafeSet[string](),
		TypeAcrobatic: mapset.NewThreadUnsafeSet[string](),
	}

	for _, f := range p.frames {
		p.byID[f.ID] = f
		p.byEnergy[f.Energy].Add(f.ID)
		p.byDirection[f.Direction].Add(f.ID)
		p.byType[f.Type].Add(f.ID)
	}

	allIDs := make([]string, len(p.frames))
	for i, f := range p.frames {
		allIDs[i] = f.ID
	}
	for e, set := range p.byEnergy {
		if set.Cardinality() == 0 {
			p.byEnergy[e] = mapset.NewThreadUnsafeSet(allIDs...)
		}
	}
}

func (p *Pool) resolve(ids mapset.Set[string]) []*Frame {
	if ids == nil {
		return nil
	}
	out := make([]*Frame, 0, ids.Cardinality())
	for _, f := range p.frames {
		if ids.Contains(f.ID) {
			out = append(out, f)
		}
	}
	return out
}

// ByEnergy returns every frame tagged with the given energy.
func (p *Pool) ByEnergy(e Energy) []*Frame { return p.resolve(p.byEnergy[e]) }

// ByDirection returns every frame tagged with the given direction.
func (p *Pool) ByDirection(d Direction) []*Frame { return p.resolve(p.byDirection[d]) }

// ByType returns every frame tagged with the given type.
func (p *Pool) ByType(t Type) []*Frame { return p.resolve(p.byType[t]) }

// Filter returns the frames satisfying every non-empty predicate. Zero
// values mean "don't filter on this field".
func (p *Pool) Filter(energy Energy, direction Direction, typ Type) []*Frame {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, f := range p.frames {
		set.Add(f.ID)
	}
	if energy != "" {
		set = set.Intersect(p.byEnergy[energy])
	}
	if direction != "" {
		set = set.Intersect(p.byDirection[direction])
	}
	if typ != "" {
		set = set.Intersect(p.byType[typ])
	}
	return p.resolve(set)
}
