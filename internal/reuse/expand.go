package reuse

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"arcc/internal/arc"
	"arcc/internal/ownership"
	"arcc/internal/source"
	"arcc/internal/types"
)

// ErrSiteLost reports a candidate whose release or allocation is no longer
// where detection saw it.
var ErrSiteLost = errors.New("reuse site lost")

// claim is a retained projection of the old cell. On the fast path the
// projection takes over the field's count instead of retaining it.
type claim struct {
	field uint32
	proj  arc.VarID
	inc   int // index of the retain in the block
}

type expander struct {
	f    *arc.Func
	cls  *types.Classifier
	sigs arc.Signatures
	ids  *ownership.IdentityMap

	// renamed maps allocation results folded into a reused value by a
	// statically unique expansion.
	renamed map[arc.VarID]arc.VarID
}

// Expand rewrites every candidate of det in f and records arc.ReuseSite
// entries. Sites whose uniqueness was proven statically get only the
// in-place path; the others branch on IsShared.
func Expand(f *arc.Func, det Detection, cls *types.Classifier, sigs arc.Signatures) error {
	if f == nil || len(det.Candidates) == 0 {
		return nil
	}
	ids, err := ownership.NewIdentityMap(f, ownership.Derive(f, f.Signature()))
	if err != nil {
		return fmt.Errorf("reuse expansion: %w", err)
	}
	x := &expander{f: f, cls: cls, sigs: sigs, ids: ids, renamed: make(map[arc.VarID]arc.VarID)}

	// Later allocations first: everything before an expanded allocation
	// stays in its block, so earlier sites remain intact.
	type ordered struct {
		cand Candidate
		at   int
	}
	order := make([]ordered, 0, len(det.Candidates))
	for _, c := range det.Candidates {
		_, j, _, ok := x.locate(c)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrSiteLost, c.Var, f.Name)
		}
		order = append(order, ordered{cand: c, at: j})
	}
	slices.SortStableFunc(order, func(a, b ordered) int {
		if a.cand.Block != b.cand.Block {
			return cmp.Compare(a.cand.Block, b.cand.Block)
		}
		return cmp.Compare(b.at, a.at)
	})

	for _, o := range order {
		if err := x.expand(o.cand); err != nil {
			return err
		}
	}
	return nil
}

// locate finds the block, allocation index and release index of c.
func (x *expander) locate(c Candidate) (arc.BlockID, int, int, bool) {
	for bi := range x.f.Blocks {
		b := &x.f.Blocks[bi]
		for j := range b.Instrs {
			in := &b.Instrs[j]
			if in.Kind != arc.InstrConstruct || in.Construct.Dst != c.Dst {
				continue
			}
			for i := j - 1; i >= 0; i-- {
				if d := &b.Instrs[i]; d.Kind == arc.InstrRcDec && d.RcDec.Var == c.Var {
					return b.ID, j, i, true
				}
			}
			return arc.NoBlock, 0, 0, false
		}
	}
	return arc.NoBlock, 0, 0, false
}

// resolve follows the renames made by earlier expansions.
func (x *expander) resolve(v arc.VarID) arc.VarID {
	for {
		to, ok := x.renamed[v]
		if !ok {
			return v
		}
		v = to
	}
}

func (x *expander) expand(c Candidate) error {
	f := x.f
	c.Var, c.Dst = x.resolve(c.Var), x.resolve(c.Dst)
	bid, j, i, ok := x.locate(c)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrSiteLost, c.Var, f.Name)
	}
	b := f.Block(bid)
	cons := b.Instrs[j].Construct
	span := b.Instrs[j].Span
	in := x.cls.Interner()
	oldFields := in.CellFields(c.Type, max(c.OldVariant, 0))
	if tt := in.MustLookup(c.Type); tt.Kind == types.KindEnum && c.OldVariant < 0 {
		oldFields = nil
	}
	claims := x.claims(b, i, j, c.Var, oldFields)

	fast := x.fastPath(c, cons, oldFields, claims)
	for k := range fast {
		fast[k].Span = span
	}

	// Body before the allocation, minus the release and the claimed retains.
	erased := make(map[int]bool, len(claims))
	for _, cl := range claims {
		erased[cl.inc] = true
	}
	pre := make([]arc.Instr, 0, j)
	for k := 0; k < j; k++ {
		if k == i {
			continue
		}
		ins := b.Instrs[k]
		if erased[k] {
			if ins.RcInc.Count <= 1 {
				continue
			}
			ins.RcInc.Count--
		}
		pre = append(pre, ins)
	}
	rest := slices.Clone(b.Instrs[j+1:])

	if c.Unique {
		b.Instrs = append(append(pre, fast...), rest...)
		renameAll(f, cons.Dst, c.Var)
		x.renamed[cons.Dst] = c.Var
		ids, err := ownership.NewIdentityMap(f, ownership.Derive(f, f.Signature()))
		if err != nil {
			return fmt.Errorf("reuse expansion: %w", err)
		}
		x.ids = ids
		f.ReuseSites = append(f.ReuseSites, arc.ReuseSite{
			Block: bid, Fast: arc.NoBlock, Slow: arc.NoBlock, Var: c.Var, Type: c.Type, Span: span,
		})
		return nil
	}

	shared := f.NewVar("", in.Builtins().Bool)
	fastID, slowID, mergeID := f.NewBlock(), f.NewBlock(), f.NewBlock()
	b = f.Block(bid)

	merge := f.Block(mergeID)
	merge.Params = []arc.VarID{cons.Dst}
	merge.Instrs = rest
	merge.Term = b.Term

	fb := f.Block(fastID)
	fb.Instrs = fast
	fb.Term = arc.Jump(mergeID, c.Var)

	fresh := f.NewVar(f.Vars[cons.Dst].Name, c.Type)
	sb := f.Block(slowID)
	for _, cl := range claims {
		sb.Instrs = append(sb.Instrs, withSpan(arc.Inc(cl.proj, 1), span))
	}
	sb.Instrs = append(sb.Instrs,
		withSpan(arc.Dec(c.Var), span),
		arc.Instr{Kind: arc.InstrConstruct, Span: span, Construct: arc.ConstructInstr{
			Dst: fresh, Ty: c.Type, Ctor: cons.Ctor, Args: slices.Clone(cons.Args),
		}},
	)
	sb.Term = arc.Jump(mergeID, fresh)

	b.Instrs = append(pre, arc.Instr{Kind: arc.InstrIsShared, Span: span, IsShared: arc.IsSharedInstr{Dst: shared, Var: c.Var}})
	b.Term = arc.Branch(shared, slowID, fastID)

	f.ReuseSites = append(f.ReuseSites, arc.ReuseSite{
		Block: bid, Fast: fastID, Slow: slowID, Var: c.Var, Type: c.Type, Span: span,
	})
	return nil
}

// claims finds retained projections of reference fields of old made before
// the release at i whose count is not needed again before the allocation
// at j.
func (x *expander) claims(b *arc.Block, i, j int, old arc.VarID, fields []types.TypeID) []claim {
	oc := x.ids.Class(old)
	var out []claim
	taken := make(map[uint32]bool)
	for k := 0; k < i; k++ {
		in := &b.Instrs[k]
		if in.Kind != arc.InstrProject || x.ids.Class(in.Project.Value) != oc {
			continue
		}
		fi := in.Project.Field
		if int(fi) >= len(fields) || taken[fi] || !x.cls.IsRef(fields[fi]) {
			continue
		}
		q := in.Project.Dst
		qc := x.ids.Class(q)
		inc := -1
		for p := k + 1; p < i; p++ {
			pi := &b.Instrs[p]
			if pi.Kind == arc.InstrRcInc && x.ids.Class(pi.RcInc.Var) == qc {
				inc = p
				break
			}
			if x.consumes(pi, qc) {
				break
			}
		}
		if inc < 0 || x.consumedBetween(b, inc, j, qc) {
			continue
		}
		taken[fi] = true
		out = append(out, claim{field: fi, proj: q, inc: inc})
	}
	return out
}

func (x *expander) consumes(in *arc.Instr, c arc.VarID) bool {
	for _, op := range in.Operands(x.sigs) {
		if op.Consumed && x.ids.Class(op.Var) == c {
			return true
		}
	}
	return false
}

// consumedBetween checks (lo, hi) for consuming uses of class c.
func (x *expander) consumedBetween(b *arc.Block, lo, hi int, c arc.VarID) bool {
	for k := lo + 1; k < hi; k++ {
		if x.consumes(&b.Instrs[k], c) {
			return true
		}
	}
	return false
}

// fastPath builds the in-place rewrite of old into the new value.
func (x *expander) fastPath(c Candidate, cons arc.ConstructInstr, oldFields []types.TypeID, claims []claim) []arc.Instr {
	f := x.f
	claimed := make(map[uint32]arc.VarID, len(claims))
	for _, cl := range claims {
		claimed[cl.field] = cl.proj
	}
	var out []arc.Instr

	// Overwritten references nobody took over are released first.
	for fi, ft := range oldFields {
		idx := uint32(fi) // #nosec G115 -- bounded by field count
		if !x.cls.IsRef(ft) {
			continue
		}
		if _, ok := claimed[idx]; ok {
			continue
		}
		t := f.NewVar("", ft)
		out = append(out,
			arc.Instr{Kind: arc.InstrProject, Project: arc.ProjectInstr{Dst: t, Ty: ft, Value: c.Var, Field: idx}},
			arc.Dec(t),
		)
	}

	sameLayout := true
	if cons.Ctor.Kind == arc.CtorEnumVariant {
		if c.OldVariant < 0 || c.OldVariant != int(cons.Ctor.Variant) {
			sameLayout = false
			out = append(out, arc.Instr{Kind: arc.InstrSetTag, SetTag: arc.SetTagInstr{Base: c.Var, Tag: cons.Ctor.Variant}})
		}
	}

	for k, a := range cons.Args {
		idx := uint32(k) // #nosec G115 -- bounded by field count
		if q, ok := claimed[idx]; ok && sameLayout && x.ids.Class(a) == x.ids.Class(q) {
			// the field already holds this object
			continue
		}
		out = append(out, arc.Instr{Kind: arc.InstrSet, Set: arc.SetInstr{Base: c.Var, Field: idx, Value: a}})
	}
	return out
}

func withSpan(in arc.Instr, sp source.Span) arc.Instr {
	in.Span = sp
	return in
}

func renameAll(f *arc.Func, from, to arc.VarID) {
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		for ii := range b.Instrs {
			b.Instrs[ii].Rename(from, to)
		}
		b.Term.Rename(from, to)
	}
}
