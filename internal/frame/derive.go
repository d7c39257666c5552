package frame

// Derive synthesises mirror and zoom variants from the pool's source
// frames (spec §4.C) and appends them to the pool, rebuilding indices
// once at the end. It is idempotent: calling it twice does not
// duplicate variants, since derived ids are deterministic functions of
// their source id and operation.
func (p *Pool) Derive() {
	existing := make(map[string]bool, len(p.frames))
	for _, f := range p.frames {
		existing[f.ID] = true
	}

	var added []*Frame
	for _, f := range p.frames {
		if f.DerivedFrom != "" {
			continue // don't derive from a derived frame
		}
		added = append(added, p.deriveFrom(f, existing)...)
	}
	if len(added) == 0 {
		return
	}
	p.frames = append(p.frames, added...)
	p.rebuild()
}

func (p *Pool) deriveFrom(f *Frame, existing map[string]bool) []*Frame {
	var out []*Frame

	if p.category == CategoryCharacter && f.Type == TypeBody {
		if mirror := p.mirror(f, existing); mirror != nil {
			out = append(out, mirror)
		}
	}

	switch {
	case f.Type == TypeBody && f.Energy == EnergyHigh:
		if z := p.zoom(f, 1.6, 0, existing); z != nil {
			z.Type = TypeCloseup
			out = append(out, z)
			if p.category == CategoryCharacter && f.Energy != EnergyLow {
				if zm := p.mirror(z, existing); zm != nil {
					out = append(out, zm)
				}
			}
		}
	case f.Type == TypeBody && f.Energy == EnergyMid:
		if z := p.zoom(f, 1.25, 0, existing); z != nil {
			out = append(out, z)
			if p.category == CategoryCharacter && f.Energy != EnergyLow {
				if zm := p.mirror(z, existing); zm != nil {
					out = append(out, zm)
				}
			}
		}
	}

	return out
}

func (p *Pool) mirror(f *Frame, existing map[string]bool) *Frame {
	id := mirroredID(f.ID)
	if existing[id] {
		return nil
	}
	existing[id] = true
	cp := f.Clone()
	cp.ID = id
	cp.Direction = MirrorDirection(f.Direction)
	cp.DerivedFrom = f.ID
	cp.DerivedOp = &Operation{Kind: OpMirror}
	cp.Role = RoleAlt
	return cp
}

func (p *Pool) zoom(f *Frame, factor, offsetY float64, existing map[string]bool) *Frame {
	id := zoomedID(f.ID, factor)
	if existing[id] {
		return nil
	}
	existing[id] = true
	cp := f.Clone()
	cp.ID = id
	cp.DerivedFrom = f.ID
	cp.DerivedOp = &Operation{Kind: OpZoom, Factor: factor, OffsetY: offsetY}
	cp.Role = RoleFlourish
	return cp
}
