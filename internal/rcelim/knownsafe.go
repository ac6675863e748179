package rcelim

import (
	"arcc/internal/arc"
	"arcc/internal/ownership"
)

// GuardInterval is a retain of Guard at Start whose count stays with the
// frame until the release at End: nothing in between consumes or mutates
// the object, so it is alive for the whole interval.
type GuardInterval struct {
	Block arc.BlockID
	Guard arc.VarID
	Start int
	End   int
}

// Contains reports whether [k, m] lies strictly inside the interval.
func (g GuardInterval) Contains(k, m int) bool {
	return g.Start < k && m < g.End
}

// Guards lists the guard intervals of block bid in order of their start.
func Guards(f *arc.Func, bid arc.BlockID, ids *ownership.IdentityMap, sigs arc.Signatures) []GuardInterval {
	e := &eliminator{f: f, ids: ids, sigs: sigs}
	return e.guards(f.Block(bid))
}

func (e *eliminator) guards(b *arc.Block) []GuardInterval {
	var out []GuardInterval
	for i := range b.Instrs {
		in := &b.Instrs[i]
		if in.Kind != arc.InstrRcInc {
			continue
		}
		g := in.RcInc.Var
		c := e.class(g)
		j := e.firstDec(b, i, c)
		if j < 0 || e.consumedBetween(b, i, j, c) || mutatesBetween(b, i, j) {
			continue
		}
		out = append(out, GuardInterval{Block: b.ID, Guard: g, Start: i, End: j})
	}
	return out
}

// knownSafe deletes retain/release pairs nested in a guard interval whose
// guard covers the pair's object. The pair's own count is never consumed,
// and the guard keeps the object alive regardless of other uses.
func (e *eliminator) knownSafe() int {
	removed := 0
	for bi := range e.f.Blocks {
		b := &e.f.Blocks[bi]
		for e.knownSafeOnce(b) {
			removed++
		}
	}
	return removed
}

func (e *eliminator) knownSafeOnce(b *arc.Block) bool {
	for _, g := range e.guards(b) {
		for k := g.Start + 1; k < g.End; k++ {
			in := &b.Instrs[k]
			if in.Kind != arc.InstrRcInc {
				continue
			}
			w := in.RcInc.Var
			c := e.class(w)
			m := e.firstDec(b, k, c)
			if m < 0 || !g.Contains(k, m) {
				continue
			}
			if !e.ids.SameObject(w, b.Instrs[m].RcDec.Var) || !e.ids.Covers(g.Guard, w) {
				continue
			}
			if e.consumedBetween(b, k, m, c) {
				continue
			}
			removePair(b, k, m)
			return true
		}
	}
	return false
}
