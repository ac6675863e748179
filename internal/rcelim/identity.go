package rcelim

import (
	"arcc/internal/arc"
	"arcc/internal/ownership"
)

// identity deletes a retain/release pair on one object when nothing between
// them consumes the object and something else provably keeps it alive: its
// root is a borrowed parameter or is still held by the frame after the pair
// (used later in the block or live out), or the variable is itself a root
// held past the pair.
func (e *eliminator) identity() int {
	lv := arc.ComputeLiveness(e.f, nil)
	removed := 0
	for bi := range e.f.Blocks {
		b := &e.f.Blocks[bi]
		for e.identityOnce(b, lv.Out[bi]) {
			removed++
		}
	}
	return removed
}

func (e *eliminator) identityOnce(b *arc.Block, out arc.VarSet) bool {
	for k := range b.Instrs {
		in := &b.Instrs[k]
		if in.Kind != arc.InstrRcInc {
			continue
		}
		w := in.RcInc.Var
		c := e.class(w)
		l := e.firstDec(b, k, c)
		if l < 0 || e.consumedBetween(b, k, l, c) {
			continue
		}
		r := e.ids.Root(w)
		if r == arc.NoVar {
			continue
		}
		rc := e.class(r)
		held := e.ids.Derived(r).Kind == ownership.BorrowedParam ||
			e.usedAfter(b, l, rc) || e.liveOut(out, rc)
		if rc != c && mutatesBetween(b, k, l) {
			// a write into the root may drop the projected field
			held = false
		}
		if held {
			removePair(b, k, l)
			return true
		}
	}
	return false
}

// usedAfter reports a use of class c after index i, terminator included.
func (e *eliminator) usedAfter(b *arc.Block, i int, c arc.VarID) bool {
	for j := i + 1; j < len(b.Instrs); j++ {
		if e.touches(&b.Instrs[j], c) {
			return true
		}
	}
	for _, v := range b.Term.Uses() {
		if e.class(v) == c {
			return true
		}
	}
	return false
}

func (e *eliminator) liveOut(out arc.VarSet, c arc.VarID) bool {
	for _, v := range e.ids.Members(c) {
		if out.Has(v) {
			return true
		}
	}
	return false
}
