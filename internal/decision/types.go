// Package decision holds the small vocabulary shared by the kinetic
// state machine, pattern sequencer, and deck mixer: how a frame
// transition is expressed, independent of which component picked it.
package decision

// TransitionMode names how the renderer should move from the current
// frame to the next (spec §3's render decision).
type TransitionMode string

const (
	TransitionCut    TransitionMode = "cut"
	TransitionSlide  TransitionMode = "slide"
	TransitionMorph  TransitionMode = "morph"
	TransitionSmooth TransitionMode = "smooth"
	TransitionZoomIn TransitionMode = "zoom_in"
)

// Speed returns the standard transition speed for a mode (spec §4.D:
// "start transition with speed 100 for cut, 8 for slide, 5 for morph,
// 3 for smooth, 6 for zoom_in").
func (m TransitionMode) Speed() float64 {
	switch m {
	case TransitionCut:
		return 100
	case TransitionSlide:
		return 8
	case TransitionMorph:
		return 5
	case TransitionSmooth:
		return 3
	case TransitionZoomIn:
		return 6
	default:
		return 5
	}
}

// Pick is a frame selection plus the transition that should carry the
// renderer to it, and any effect deltas the selection applies
// immediately (e.g. impact's flash bump).
type Pick struct {
	FrameID        string
	Transition     TransitionMode
	FlashDelta     float64
	GlitchDelta    float64
	DidSelectFrame bool
}
