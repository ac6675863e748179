package rcelim

import "arcc/internal/arc"

func (e *eliminator) batched(st *Stats) {
	for bi := range e.f.Blocks {
		b := &e.f.Blocks[bi]
		for e.topDown(b) {
			st.Batched++
		}
		for e.bottomUp(b) {
			st.Batched++
		}
		st.Folded += e.fold(b)
	}
	for e.crossBlock() {
		st.CrossBlock++
	}
	for e.joinPoint() {
		st.JoinPoint++
	}
	for bi := range e.f.Blocks {
		st.Folded += e.fold(&e.f.Blocks[bi])
	}
}

// topDown pairs a retain with the next instruction touching its object when
// that instruction is a release.
func (e *eliminator) topDown(b *arc.Block) bool {
	for k := range b.Instrs {
		in := &b.Instrs[k]
		if in.Kind != arc.InstrRcInc {
			continue
		}
		c := e.class(in.RcInc.Var)
		for m := k + 1; m < len(b.Instrs); m++ {
			next := &b.Instrs[m]
			if !e.touches(next, c) {
				continue
			}
			if e.isDec(next, c) {
				removePair(b, k, m)
				return true
			}
			break
		}
	}
	return false
}

// bottomUp pairs a release with the previous instruction touching its
// object when that instruction is a retain. A release followed by a retain
// is left alone: the object may be freed in between.
func (e *eliminator) bottomUp(b *arc.Block) bool {
	for m := len(b.Instrs) - 1; m >= 0; m-- {
		in := &b.Instrs[m]
		if in.Kind != arc.InstrRcDec {
			continue
		}
		c := e.class(in.RcDec.Var)
		for k := m - 1; k >= 0; k-- {
			prev := &b.Instrs[k]
			if !e.touches(prev, c) {
				continue
			}
			if e.isInc(prev, c) {
				removePair(b, k, m)
				return true
			}
			break
		}
	}
	return false
}

// fold merges adjacent retains of one object.
func (e *eliminator) fold(b *arc.Block) int {
	folded := 0
	for i := 0; i+1 < len(b.Instrs); {
		cur, next := &b.Instrs[i], &b.Instrs[i+1]
		if cur.Kind == arc.InstrRcInc && e.isInc(next, e.class(cur.RcInc.Var)) {
			cur.RcInc.Count += next.RcInc.Count
			deleteAt(b, i+1)
			folded++
			continue
		}
		i++
	}
	return folded
}

// trailingInc returns the class retained by the last instruction of b when
// the terminator does not touch it.
func (e *eliminator) trailingInc(b *arc.Block) (arc.VarID, bool) {
	n := len(b.Instrs)
	if n == 0 || b.Instrs[n-1].Kind != arc.InstrRcInc {
		return arc.NoVar, false
	}
	c := e.class(b.Instrs[n-1].RcInc.Var)
	for _, v := range b.Term.Uses() {
		if e.class(v) == c {
			return arc.NoVar, false
		}
	}
	return c, true
}

func (e *eliminator) leadingDec(b *arc.Block, c arc.VarID) bool {
	return len(b.Instrs) > 0 && e.isDec(&b.Instrs[0], c)
}

// crossBlock cancels a trailing retain against a leading release in every
// successor, when each successor is reached only from this block.
func (e *eliminator) crossBlock() bool {
	f := e.f
	preds := arc.Predecessors(f)
	for pi := range f.Blocks {
		p := &f.Blocks[pi]
		c, ok := e.trailingInc(p)
		if !ok {
			continue
		}
		succs := p.Term.Successors()
		if len(succs) == 0 {
			continue
		}
		match := true
		for _, s := range succs {
			if s == f.Entry || s == p.ID || len(preds[s]) != 1 || !e.leadingDec(f.Block(s), c) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		takeCount(p, len(p.Instrs)-1)
		for _, s := range succs {
			deleteAt(f.Block(s), 0)
		}
		return true
	}
	return false
}

// joinPoint cancels a leading release of a merge block against a trailing
// retain in every predecessor, when each predecessor flows only into it.
func (e *eliminator) joinPoint() bool {
	f := e.f
	preds := arc.Predecessors(f)
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		if b.ID == f.Entry || len(preds[bi]) < 2 || len(b.Instrs) == 0 || b.Instrs[0].Kind != arc.InstrRcDec {
			continue
		}
		c := e.class(b.Instrs[0].RcDec.Var)
		match := true
		for _, pid := range preds[bi] {
			p := f.Block(pid)
			pc, ok := e.trailingInc(p)
			succs := p.Term.Successors()
			if pid == b.ID || !ok || pc != c || len(succs) != 1 {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		for _, pid := range preds[bi] {
			p := f.Block(pid)
			takeCount(p, len(p.Instrs)-1)
		}
		deleteAt(b, 0)
		return true
	}
	return false
}
