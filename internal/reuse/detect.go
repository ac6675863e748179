// Package reuse turns a release followed by an allocation of the same shape
// into in-place mutation when the released cell turns out to be unique.
package reuse

import (
	"fmt"

	"arcc/internal/arc"
	"arcc/internal/ownership"
	"arcc/internal/source"
	"arcc/internal/types"
)

// MissKind says why a release could not be reused.
type MissKind uint8

const (
	// TypeMismatch: the block allocates after the release, but not the
	// released shape.
	TypeMismatch MissKind = iota
	// IntermediateUse: the released object is touched between release and
	// allocation.
	IntermediateUse
	// NoDominance: a matching allocation exists only where the release does
	// not reach it.
	NoDominance
	// PossiblyShared: another alias outlives the site or a closure captured
	// the value.
	PossiblyShared
	// NoMatchingConstruct: nothing to reuse the cell for. Informational.
	NoMatchingConstruct
	// UnknownVariant: the old variant of an enum is not known statically
	// and its payload may hold references.
	UnknownVariant
)

func (k MissKind) String() string {
	switch k {
	case TypeMismatch:
		return "type mismatch"
	case IntermediateUse:
		return "intermediate use"
	case NoDominance:
		return "no dominance"
	case PossiblyShared:
		return "possibly shared"
	case NoMatchingConstruct:
		return "no matching construct"
	case UnknownVariant:
		return "unknown variant"
	}
	return fmt.Sprintf("MissKind(%d)", k)
}

// MissedReason is a MissKind plus the offending use for IntermediateUse.
type MissedReason struct {
	Kind MissKind
	Use  source.Span
}

func (r MissedReason) String() string {
	if r.Kind == IntermediateUse && !r.Use.Empty() {
		return fmt.Sprintf("%s at %s", r.Kind, r.Use)
	}
	return r.Kind.String()
}

// Actionable reports whether the miss counts against a function's FBIP
// status.
func (r MissedReason) Actionable() bool {
	return r.Kind != NoMatchingConstruct
}

// Candidate is a release/allocation pair that passed every check.
type Candidate struct {
	Block arc.BlockID
	Var   arc.VarID // released value
	Dst   arc.VarID // allocation result
	Type  types.TypeID
	// OldVariant is the variant held by Var, -1 for structs and tuples.
	OldVariant int
	// Unique is set when Var was allocated in the same block and never
	// shared before the release.
	Unique bool
	Span   source.Span
}

// Miss is a release that was not reused.
type Miss struct {
	Block  arc.BlockID
	Var    arc.VarID
	Type   types.TypeID
	Reason MissedReason
	Span   source.Span
}

// Detection is the result of Detect.
type Detection struct {
	Candidates []Candidate
	Misses     []Miss
}

type detector struct {
	f     *arc.Func
	cls   *types.Classifier
	sigs  arc.Signatures
	ids   *ownership.IdentityMap
	lv    *arc.Liveness
	dom   *arc.DomTree
	reach []bool

	claimed  map[arc.VarID]bool // construct destinations already paired
	captured map[arc.VarID]bool // classes captured by closures
}

// Detect scans every release of a cell-typed value. It does not modify f.
func Detect(f *arc.Func, cls *types.Classifier, sigs arc.Signatures) (Detection, error) {
	var det Detection
	if f == nil {
		return det, nil
	}
	ids, err := ownership.NewIdentityMap(f, ownership.Derive(f, f.Signature()))
	if err != nil {
		return det, fmt.Errorf("reuse detection: %w", err)
	}
	d := &detector{
		f:        f,
		cls:      cls,
		sigs:     sigs,
		ids:      ids,
		lv:       arc.ComputeLiveness(f, nil),
		dom:      arc.Dominators(f),
		reach:    arc.Reachable(f),
		claimed:  make(map[arc.VarID]bool),
		captured: make(map[arc.VarID]bool),
	}
	d.collectCaptures()

	for bi := range f.Blocks {
		if !d.reach[bi] {
			continue
		}
		b := &f.Blocks[bi]
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Kind != arc.InstrRcDec || !d.isCell(f.VarType(in.RcDec.Var)) {
				continue
			}
			cand, miss, ok := d.site(b, i)
			switch {
			case !ok:
			case miss != nil:
				det.Misses = append(det.Misses, *miss)
			default:
				det.Candidates = append(det.Candidates, cand)
			}
		}
	}
	return det, nil
}

func (d *detector) isCell(ty types.TypeID) bool {
	if d.cls.Class(ty) != types.DefiniteRef {
		return false
	}
	tt, ok := d.cls.Interner().Lookup(ty)
	return ok && tt.Kind.IsCell()
}

func (d *detector) collectCaptures() {
	for bi := range d.f.Blocks {
		for ii := range d.f.Blocks[bi].Instrs {
			in := &d.f.Blocks[bi].Instrs[ii]
			var caps []arc.VarID
			switch {
			case in.Kind == arc.InstrPartialApply:
				caps = in.PartialApply.Args
			case in.Kind == arc.InstrConstruct && in.Construct.Ctor.Kind == arc.CtorClosure:
				caps = in.Construct.Args
			}
			for _, v := range caps {
				d.captured[d.ids.Class(v)] = true
			}
		}
	}
}

func (d *detector) touches(in *arc.Instr, c arc.VarID) bool {
	for _, v := range in.Uses() {
		if d.ids.Class(v) == c {
			return true
		}
	}
	return false
}

// site classifies the release at b.Instrs[i]. ok is false when the release
// is not a reuse site at all.
func (d *detector) site(b *arc.Block, i int) (Candidate, *Miss, bool) {
	dec := &b.Instrs[i]
	x := dec.RcDec.Var
	ty := d.f.VarType(x)
	c := d.ids.Class(x)
	miss := func(r MissedReason) (Candidate, *Miss, bool) {
		return Candidate{}, &Miss{Block: b.ID, Var: x, Type: ty, Reason: r, Span: dec.Span}, true
	}

	j := -1
	otherAlloc := false
	for k := i + 1; k < len(b.Instrs); k++ {
		in := &b.Instrs[k]
		if in.Kind != arc.InstrConstruct || !in.Construct.Ctor.IsCell() {
			continue
		}
		if in.Construct.Ty == ty && !d.claimed[in.Construct.Dst] {
			j = k
			break
		}
		otherAlloc = true
	}
	if j < 0 {
		switch {
		case d.allocatedElsewhere(b.ID, ty):
			return miss(MissedReason{Kind: NoDominance})
		case otherAlloc:
			return miss(MissedReason{Kind: TypeMismatch})
		}
		return miss(MissedReason{Kind: NoMatchingConstruct})
	}
	cons := &b.Instrs[j]

	for k := i + 1; k < j; k++ {
		if d.touches(&b.Instrs[k], c) {
			return miss(MissedReason{Kind: IntermediateUse, Use: b.Instrs[k].Span})
		}
	}
	if d.touches(cons, c) {
		return miss(MissedReason{Kind: IntermediateUse, Use: cons.Span})
	}
	if d.captured[c] || d.aliasOutlives(b, j, x) {
		return miss(MissedReason{Kind: PossiblyShared})
	}

	old := -1
	if d.cls.Interner().MustLookup(ty).Kind == types.KindEnum {
		old = d.knownVariant(b, x)
		if old < 0 && d.payloadHoldsRefs(ty) {
			return miss(MissedReason{Kind: UnknownVariant})
		}
	}

	d.claimed[cons.Construct.Dst] = true
	return Candidate{
		Block:      b.ID,
		Var:        x,
		Dst:        cons.Construct.Dst,
		Type:       ty,
		OldVariant: old,
		Unique:     d.staticallyUnique(b, i, x),
		Span:       cons.Span,
	}, nil, true
}

// allocatedElsewhere reports a same-shape allocation in a reachable block
// that blk does not dominate.
func (d *detector) allocatedElsewhere(blk arc.BlockID, ty types.TypeID) bool {
	for bi := range d.f.Blocks {
		b := &d.f.Blocks[bi]
		if !d.reach[bi] || b.ID == blk || d.dom.Dominates(blk, b.ID) {
			continue
		}
		for ii := range b.Instrs {
			in := &b.Instrs[ii]
			if in.Kind == arc.InstrConstruct && in.Construct.Ty == ty {
				return true
			}
		}
	}
	return false
}

// aliasOutlives reports another member of x's copy class still in use after
// the allocation at j.
func (d *detector) aliasOutlives(b *arc.Block, j int, x arc.VarID) bool {
	after := arc.LiveBefore(b, d.lv.Out[b.ID], nil)[j+1]
	for _, v := range d.ids.Members(x) {
		if v != x && after.Has(v) {
			return true
		}
	}
	return false
}

// knownVariant finds the variant x holds on entry to the release: either
// from the allocation that defined it or from a switch on its tag that
// leads straight into b.
func (d *detector) knownVariant(b *arc.Block, x arc.VarID) int {
	c := d.ids.Class(x)
	for bi := range d.f.Blocks {
		for ii := range d.f.Blocks[bi].Instrs {
			in := &d.f.Blocks[bi].Instrs[ii]
			if in.Kind == arc.InstrConstruct && d.ids.Class(in.Construct.Dst) == c &&
				in.Construct.Ctor.Kind == arc.CtorEnumVariant {
				return int(in.Construct.Ctor.Variant)
			}
		}
	}

	preds := arc.Predecessors(d.f)[b.ID]
	if len(preds) != 1 {
		return -1
	}
	p := d.f.Block(preds[0])
	if p.Term.Kind != arc.TermSwitch {
		return -1
	}
	tag := d.tagSource(p.Term.Switch.Scrutinee)
	if tag == arc.NoVar || d.ids.Class(tag) != c {
		return -1
	}
	variant := -1
	for _, cs := range p.Term.Switch.Cases {
		if cs.Target != b.ID {
			continue
		}
		if variant >= 0 && variant != int(cs.Value) {
			return -1
		}
		variant = int(cs.Value)
	}
	if p.Term.Switch.Default == b.ID {
		return -1
	}
	return variant
}

// tagSource returns the enum whose tag defines v, when v = tag(e).
func (d *detector) tagSource(v arc.VarID) arc.VarID {
	for bi := range d.f.Blocks {
		for ii := range d.f.Blocks[bi].Instrs {
			in := &d.f.Blocks[bi].Instrs[ii]
			if in.Kind == arc.InstrLet && in.Let.Dst == v {
				val := in.Let.Value
				if val.Kind == arc.ValuePrim && val.Op == arc.OpTag && len(val.Args) == 1 {
					return val.Args[0]
				}
				return arc.NoVar
			}
		}
	}
	return arc.NoVar
}

func (d *detector) payloadHoldsRefs(ty types.TypeID) bool {
	info, ok := d.cls.Interner().EnumInfo(ty)
	if !ok {
		return true
	}
	for vi := range info.Variants {
		for _, ft := range d.cls.Interner().CellFields(ty, vi) {
			if d.cls.IsRef(ft) {
				return true
			}
		}
	}
	return false
}

// staticallyUnique reports that x was allocated earlier in b and nothing
// before the release could have shared it.
func (d *detector) staticallyUnique(b *arc.Block, i int, x arc.VarID) bool {
	c := d.ids.Class(x)
	def := -1
	for k := 0; k < i; k++ {
		if dst, ok := b.Instrs[k].Defined(); ok && dst == x && b.Instrs[k].Kind == arc.InstrConstruct {
			def = k
			break
		}
	}
	if def < 0 {
		return false
	}
	for k := def + 1; k < i; k++ {
		in := &b.Instrs[k]
		if in.Kind == arc.InstrRcInc && d.ids.Class(in.RcInc.Var) == c {
			return false
		}
		if in.Kind == arc.InstrLet && in.Let.Value.Kind == arc.ValueVar && d.ids.Class(in.Let.Value.Var) == c {
			return false
		}
		for _, op := range in.Operands(d.sigs) {
			if op.Consumed && d.ids.Class(op.Var) == c {
				return false
			}
		}
	}
	return true
}
