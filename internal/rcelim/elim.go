// Package rcelim removes redundant retain/release pairs from conservatively
// instrumented ARC IR.
//
// Sub-passes run in a fixed order: known-safe, identity-aware, batched. Each
// one rewrites until it finds nothing more to delete, so the work is bounded
// by the number of RC instructions in the function.
package rcelim

import (
	"fmt"

	"arcc/internal/arc"
	"arcc/internal/ownership"
)

// Stats counts eliminated pairs per sub-pass. Folded counts adjacent retains
// merged into one counted retain; it removes no count.
type Stats struct {
	KnownSafe  int `json:"known_safe"`
	Identity   int `json:"identity"`
	Batched    int `json:"batched"`
	CrossBlock int `json:"cross_block"`
	JoinPoint  int `json:"join_point"`
	Folded     int `json:"folded"`
}

// Pairs returns the number of retain/release pairs removed.
func (s Stats) Pairs() int {
	return s.KnownSafe + s.Identity + s.Batched + s.CrossBlock + s.JoinPoint
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.KnownSafe += o.KnownSafe
	s.Identity += o.Identity
	s.Batched += o.Batched
	s.CrossBlock += o.CrossBlock
	s.JoinPoint += o.JoinPoint
	s.Folded += o.Folded
}

// Run eliminates pairs in f. ids must describe f; sigs decides which call
// arguments are consumed.
func Run(f *arc.Func, ids *ownership.IdentityMap, sigs arc.Signatures) Stats {
	var st Stats
	if f == nil || ids == nil {
		return st
	}
	e := &eliminator{f: f, ids: ids, sigs: sigs}
	st.KnownSafe = e.knownSafe()
	st.Identity = e.identity()
	e.batched(&st)
	return st
}

// Optimize derives ownership for f and runs the pipeline.
func Optimize(f *arc.Func, sigs arc.Signatures) (Stats, error) {
	ids, err := ownership.NewIdentityMap(f, ownership.Derive(f, f.Signature()))
	if err != nil {
		return Stats{}, fmt.Errorf("rc elimination: %w", err)
	}
	return Run(f, ids, sigs), nil
}

type eliminator struct {
	f    *arc.Func
	ids  *ownership.IdentityMap
	sigs arc.Signatures
}

func (e *eliminator) class(v arc.VarID) arc.VarID {
	return e.ids.Class(v)
}

// isInc reports whether instrs[i] retains a member of class c.
func (e *eliminator) isInc(in *arc.Instr, c arc.VarID) bool {
	return in.Kind == arc.InstrRcInc && e.class(in.RcInc.Var) == c
}

func (e *eliminator) isDec(in *arc.Instr, c arc.VarID) bool {
	return in.Kind == arc.InstrRcDec && e.class(in.RcDec.Var) == c
}

// touches reports whether the instruction names any member of class c.
func (e *eliminator) touches(in *arc.Instr, c arc.VarID) bool {
	for _, v := range in.Uses() {
		if e.class(v) == c {
			return true
		}
	}
	return false
}

// consumes reports whether the instruction takes over a count of class c.
// Releases count as consuming.
func (e *eliminator) consumes(in *arc.Instr, c arc.VarID) bool {
	for _, op := range in.Operands(e.sigs) {
		if op.Consumed && e.class(op.Var) == c {
			return true
		}
	}
	return false
}

// firstDec returns the index of the first release of class c after from, or
// -1.
func (e *eliminator) firstDec(b *arc.Block, from int, c arc.VarID) int {
	for i := from + 1; i < len(b.Instrs); i++ {
		if e.isDec(&b.Instrs[i], c) {
			return i
		}
	}
	return -1
}

// consumedBetween reports a consuming use of class c strictly inside (lo, hi).
func (e *eliminator) consumedBetween(b *arc.Block, lo, hi int, c arc.VarID) bool {
	for i := lo + 1; i < hi; i++ {
		if e.consumes(&b.Instrs[i], c) {
			return true
		}
	}
	return false
}

// mutatesBetween reports an in-place write inside [lo, hi].
func mutatesBetween(b *arc.Block, lo, hi int) bool {
	for i := lo; i <= hi && i < len(b.Instrs); i++ {
		switch b.Instrs[i].Kind {
		case arc.InstrSet, arc.InstrSetTag, arc.InstrReset, arc.InstrReuse:
			return true
		}
	}
	return false
}

// removePair takes one count off the retain at k and deletes the release at
// m. A retain reaching zero is deleted.
func removePair(b *arc.Block, k, m int) {
	if inc := &b.Instrs[k]; inc.RcInc.Count > 1 {
		inc.RcInc.Count--
		deleteAt(b, m)
		return
	}
	deleteAt(b, max(k, m))
	deleteAt(b, min(k, m))
}

// takeCount takes one count off the retain at k.
func takeCount(b *arc.Block, k int) {
	if inc := &b.Instrs[k]; inc.RcInc.Count > 1 {
		inc.RcInc.Count--
		return
	}
	deleteAt(b, k)
}

func deleteAt(b *arc.Block, i int) {
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
}
