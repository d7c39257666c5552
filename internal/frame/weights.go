package frame

// Weight factors (spec §3): source frames start at 1.0; mirrored
// derivation multiplies by 0.8; zoom derivation multiplies by 0.5;
// closeup-typed frames (including zooms retyped closeup at factor
// ≥ 1.5) multiply by 0.4. Factors compose multiplicatively, so a
// high-energy zoom-to-closeup variant carries both the zoom and the
// closeup factor.
const (
	baseWeight    = 1.0
	mirrorFactor  = 0.8
	zoomFactor    = 0.5
	closeupFactor = 0.4
)

// ComputeWeights assigns each frame's selection weight by multiplying
// the applicable factors above. It does not rebuild indices, since
// weight is not an index key.
func (p *Pool) ComputeWeights() {
	for _, f := range p.frames {
		w := baseWeight
		if f.DerivedOp != nil {
			switch f.DerivedOp.Kind {
			case OpMirror:
				w *= mirrorFactor
			case OpZoom:
				w *= zoomFactor
			}
		}
		if f.Type == TypeCloseup {
			w *= closeupFactor
		}
		f.Weight = w
	}
}
