// Package rcinsert places retains and releases on IR that has none.
//
// The result is deliberately naive: every reference-typed value owns one
// count from its definition until its last use, and every consumed position
// receives a count of its own. rcelim removes what is redundant.
package rcinsert

import (
	"arcc/internal/arc"
	"arcc/internal/source"
	"arcc/internal/types"
)

// Stats counts what Insert emitted. Incs is weighted by count.
type Stats struct {
	Incs        int `json:"incs"`
	Decs        int `json:"decs"`
	Trampolines int `json:"trampolines"`
}

type inserter struct {
	f        *arc.Func
	sigs     arc.Signatures
	track    func(arc.VarID) bool
	borrowed arc.VarSet
	lv       *arc.Liveness
	stats    Stats
}

type edge struct {
	from, to arc.BlockID
}

// Insert rewrites f in place. Parameter ownership is read from f.Params, so
// signatures must already be applied; sigs decides how call arguments are
// passed.
func Insert(f *arc.Func, sigs arc.Signatures, cls *types.Classifier) Stats {
	if f == nil || len(f.Blocks) == 0 {
		return Stats{}
	}
	ins := &inserter{
		f:        f,
		sigs:     sigs,
		borrowed: arc.NewVarSet(len(f.Vars)),
	}
	ins.track = func(v arc.VarID) bool {
		return v != arc.NoVar && int(v) < len(f.Vars) && cls.IsRef(f.VarType(v))
	}
	for _, p := range f.Params {
		if p.Ownership == arc.Borrowed {
			ins.borrowed.Add(p.Var)
		}
	}
	ins.lv = arc.ComputeLiveness(f, ins.track)
	reach := arc.Reachable(f)

	// Phase 1: edge gaps, from the original terminators
	gaps := ins.edgeGaps(reach)

	// Phase 2: per-block backward placement
	for i := range f.Blocks {
		if reach[i] {
			ins.block(f.Blocks[i].ID)
		}
	}

	// Phase 3: releases for values that die on an edge
	ins.cleanupEdges(gaps, reach)
	return ins.stats
}

// owns reports whether the frame holds a count of v.
func (ins *inserter) owns(v arc.VarID) bool {
	return ins.track(v) && !ins.borrowed.Has(v)
}

func (ins *inserter) inc(v arc.VarID, n int, sp source.Span) arc.Instr {
	ins.stats.Incs += n
	in := arc.Inc(v, uint32(n)) // #nosec G115 -- bounded by operand count
	in.Span = sp
	return in
}

func (ins *inserter) dec(v arc.VarID, sp source.Span) arc.Instr {
	ins.stats.Decs++
	in := arc.Dec(v)
	in.Span = sp
	return in
}

type occurrence struct {
	consumed int
	read     bool
}

// tally groups operands by variable, keeping first-seen order.
func (ins *inserter) tally(ops []arc.Operand) ([]arc.VarID, map[arc.VarID]*occurrence) {
	var order []arc.VarID
	occ := make(map[arc.VarID]*occurrence, len(ops))
	for _, op := range ops {
		if !ins.track(op.Var) {
			continue
		}
		o, ok := occ[op.Var]
		if !ok {
			o = &occurrence{}
			occ[op.Var] = o
			order = append(order, op.Var)
		}
		if op.Consumed {
			o.consumed++
		} else {
			o.read = true
		}
	}
	return order, occ
}

// retains computes the retains needed before an instruction whose operands
// are ops, given the variables live after it. dead lists variables read by
// the instruction that die with it.
func (ins *inserter) retains(ops []arc.Operand, after arc.VarSet, sp source.Span) (pre []arc.Instr, dead []arc.VarID) {
	order, occ := ins.tally(ops)
	for _, v := range order {
		o := occ[v]
		if ins.borrowed.Has(v) {
			if o.consumed > 0 {
				pre = append(pre, ins.inc(v, o.consumed, sp))
			}
			continue
		}
		live := after.Has(v)
		n := o.consumed
		// the last consuming use moves the frame's own count
		if n > 0 && !live && !o.read {
			n--
		}
		if n > 0 {
			pre = append(pre, ins.inc(v, n, sp))
		}
		if o.read && !live {
			dead = append(dead, v)
		}
	}
	return pre, dead
}

func (ins *inserter) block(bid arc.BlockID) {
	f := ins.f
	b := f.Block(bid)
	lb := arc.LiveBefore(b, ins.lv.Out[bid], ins.track)

	out := make([]arc.Instr, 0, 2*len(b.Instrs)+2)
	out = append(out, ins.deadOnEntry(bid, lb[0])...)

	for i := range b.Instrs {
		in := b.Instrs[i]
		after := lb[i+1]
		pre, dead := ins.retains(in.Operands(ins.sigs), after, in.Span)
		out = append(out, pre...)
		out = append(out, in)

		if d, ok := in.Defined(); ok && ins.track(d) {
			live := after.Has(d)
			switch {
			case in.Kind == arc.InstrProject:
				// projections borrow from their base until retained
				if live {
					out = append(out, ins.inc(d, 1, in.Span))
				}
			case !live:
				out = append(out, ins.dec(d, in.Span))
			}
		}
		for _, v := range dead {
			out = append(out, ins.dec(v, in.Span))
		}
	}

	// Values read by the terminator that die are released on the edges.
	pre, _ := ins.retains(b.Term.Operands(), ins.lv.Out[bid], source.NoSpan)
	out = append(out, pre...)
	b.Instrs = out
}

// deadOnEntry releases owned parameters that are never used.
func (ins *inserter) deadOnEntry(bid arc.BlockID, liveIn arc.VarSet) []arc.Instr {
	f := ins.f
	var params []arc.VarID
	if bid == f.Entry {
		for _, p := range f.Params {
			params = append(params, p.Var)
		}
	}
	params = append(params, f.Block(bid).Params...)

	var out []arc.Instr
	for _, v := range params {
		if ins.owns(v) && !liveIn.Has(v) {
			out = append(out, ins.dec(v, source.NoSpan))
		}
	}
	return out
}

// edgeGaps computes, per CFG edge, the owned values that are live leaving
// the predecessor (or read by its terminator) but not live entering the
// successor.
func (ins *inserter) edgeGaps(reach []bool) map[edge]arc.VarSet {
	f := ins.f
	gaps := make(map[edge]arc.VarSet)
	for i := range f.Blocks {
		if !reach[i] {
			continue
		}
		b := &f.Blocks[i]
		base := ins.lv.Out[i].Clone()
		for _, op := range b.Term.Operands() {
			if !op.Consumed && ins.track(op.Var) {
				base.Add(op.Var)
			}
		}
		for _, s := range b.Term.Successors() {
			g := arc.NewVarSet(len(f.Vars))
			for _, v := range base.Slice() {
				if ins.owns(v) && !ins.lv.In[s].Has(v) {
					g.Add(v)
				}
			}
			gaps[edge{b.ID, s}] = g
		}
	}
	return gaps
}

func (ins *inserter) cleanupEdges(gaps map[edge]arc.VarSet, reach []bool) {
	f := ins.f
	preds := arc.Predecessors(f)
	n := len(f.Blocks)
	for i := 0; i < n; i++ {
		if !reach[i] {
			continue
		}
		s := f.Blocks[i].ID
		var ps []arc.BlockID
		for _, p := range preds[i] {
			if reach[p] {
				ps = append(ps, p)
			}
		}
		if len(ps) == 0 {
			continue
		}

		// The entry block also has the implicit edge from the caller.
		agree := s != f.Entry
		first := gaps[edge{ps[0], s}]
		for _, p := range ps[1:] {
			if !gaps[edge{p, s}].Equal(first) {
				agree = false
				break
			}
		}
		if agree {
			if first.Len() > 0 {
				f.Blocks[i].Insert(0, ins.decs(first)...)
			}
			continue
		}

		for _, p := range ps {
			g := gaps[edge{p, s}]
			if g.Len() == 0 {
				continue
			}
			t := f.NewBlock()
			f.Blocks[t].Instrs = ins.decs(g)
			f.Blocks[t].Term = arc.Jump(s)
			f.Blocks[p].Term.Retarget(s, t)
			ins.stats.Trampolines++
		}
	}
}

func (ins *inserter) decs(g arc.VarSet) []arc.Instr {
	vs := g.Slice()
	out := make([]arc.Instr, len(vs))
	for i, v := range vs {
		out[i] = ins.dec(v, source.NoSpan)
	}
	return out
}
