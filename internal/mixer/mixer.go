// Package mixer implements the deck mixer (spec §4.F): four decks that
// feed the kinetic/pattern selectors or produce layered output,
// composed behind a crossfader that is surfaced in the render decision
// but never gates selection.
package mixer

import (
	"github.com/google/uuid"

	"github.com/cartomix/choreo/internal/frame"
)

// Role is what a deck contributes to the current tick.
type Role string

const (
	RoleSequencer Role = "sequencer"
	RoleLayer     Role = "layer"
	RoleOff       Role = "off"
)

const deckCount = 4

// LayeredFrame is one deck's manually-advanced layer output.
type LayeredFrame struct {
	DeckID    int     `json:"deck_id"`
	FrameID   string  `json:"frame_id"`
	Opacity   float64 `json:"opacity"`
	BlendMode string  `json:"blend_mode"`
}

// Deck is one of the four fixed mixer channels.
type Deck struct {
	ID         int
	LoadID     string // uuid assigned when a frame set is loaded onto this deck
	Role       Role
	Opacity    float64
	Volume     float64
	frameIndex int
	pool       []string   // loaded frame ids, for layer-mode manual advance
	framePool  *frame.Pool // this deck's own pool, used by gather_frames
}

// SetPool attaches this deck's own frame pool (spec §3's "own pools").
func (d *Deck) SetPool(p *frame.Pool) { d.framePool = p }

// Pool returns this deck's own frame pool, or nil if none is loaded.
func (d *Deck) Pool() *frame.Pool { return d.framePool }

// Mixer holds the four decks and the crossfader position.
type Mixer struct {
	decks      [deckCount]*Deck
	crossfader float64 // [0,1], surfaced in output only
}

// NewMixer builds the default configuration: deck 0 is a sequencer,
// decks 1-3 are off (spec §4.F).
func NewMixer() *Mixer {
	m := &Mixer{}
	for i := 0; i < deckCount; i++ {
		role := RoleOff
		if i == 0 {
			role = RoleSequencer
		}
		m.decks[i] = &Deck{ID: i, Role: role, Opacity: 1, Volume: 1}
	}
	return m
}

// Deck returns the deck at the given index, or nil if out of range.
func (m *Mixer) Deck(id int) *Deck {
	if id < 0 || id >= deckCount {
		return nil
	}
	return m.decks[id]
}

// LoadDeck assigns a fresh load id to the deck and replaces its loaded
// frame pool.
func (m *Mixer) LoadDeck(id int, frameIDs []string) (loadID string, ok bool) {
	d := m.Deck(id)
	if d == nil {
		return "", false
	}
	d.LoadID = uuid.NewString()
	d.pool = append([]string(nil), frameIDs...)
	d.frameIndex = 0
	return d.LoadID, true
}

// SetMode changes a deck's role.
func (m *Mixer) SetMode(id int, role Role) bool {
	d := m.Deck(id)
	if d == nil {
		return false
	}
	d.Role = role
	return true
}

// SetOpacity sets a deck's blend opacity, clamped to [0,1].
func (m *Mixer) SetOpacity(id int, opacity float64) bool {
	d := m.Deck(id)
	if d == nil {
		return false
	}
	d.Opacity = clamp01(opacity)
	return true
}

// SetCrossfader sets the crossfader position, clamped to [0,1]. The
// crossfader never gates frame selection; it is carried through to the
// render decision for the renderer's own use.
func (m *Mixer) SetCrossfader(v float64) {
	m.crossfader = clamp01(v)
}

// Crossfader reports the current crossfader position.
func (m *Mixer) Crossfader() float64 { return m.crossfader }

// SequencerDeckIDs returns the ids of every deck currently in
// sequencer role, in deck-index order.
func (m *Mixer) SequencerDeckIDs() []int {
	var ids []int
	for _, d := range m.decks {
		if d.Role == RoleSequencer {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// GatherFrames applies selector to every sequencer-role deck's own pool
// and concatenates the results, so the kinetic/pattern selectors see a
// single combined candidate set regardless of how many decks are
// sequencing (spec §4.F's gather_frames).
func (m *Mixer) GatherFrames(selector func(*frame.Pool) []*frame.Frame) []*frame.Frame {
	var out []*frame.Frame
	for _, d := range m.decks {
		if d.Role != RoleSequencer || d.framePool == nil {
			continue
		}
		out = append(out, selector(d.framePool)...)
	}
	return out
}

// AdvanceLayers steps every layer-role deck's manual frame index by one
// and returns the resulting layered frames for this tick.
func (m *Mixer) AdvanceLayers() []LayeredFrame {
	var out []LayeredFrame
	for _, d := range m.decks {
		if d.Role != RoleLayer || len(d.pool) == 0 {
			continue
		}
		d.frameIndex = (d.frameIndex + 1) % len(d.pool)
		out = append(out, LayeredFrame{
			DeckID:    d.ID,
			FrameID:   d.pool[d.frameIndex],
			Opacity:   d.Opacity,
			BlendMode: "normal",
		})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
