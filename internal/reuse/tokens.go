package reuse

import (
	"fmt"

	"arcc/internal/arc"
)

// Tokenize rewrites every candidate of det into the Reset/Reuse form: the
// release becomes `t = reset x` and the allocation `y = reuse t ctor(...)`.
// The form keeps the uniqueness decision at run time instead of expanding
// it into IsShared branches.
func Tokenize(f *arc.Func, det Detection) error {
	for _, c := range det.Candidates {
		x := &expander{f: f}
		bid, j, i, ok := x.locate(c)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrSiteLost, c.Var, f.Name)
		}
		tok := f.NewVar("", c.Type)
		b := f.Block(bid)
		dec := b.Instrs[i]
		b.Instrs[i] = arc.Instr{Kind: arc.InstrReset, Span: dec.Span, Reset: arc.ResetInstr{Var: c.Var, Token: tok}}
		cons := b.Instrs[j]
		b.Instrs[j] = arc.Instr{Kind: arc.InstrReuse, Span: cons.Span, Reuse: arc.ReuseInstr{
			Token: tok,
			Dst:   cons.Construct.Dst,
			Ty:    cons.Construct.Ty,
			Ctor:  cons.Construct.Ctor,
			Args:  cons.Construct.Args,
		}}
	}
	return nil
}
