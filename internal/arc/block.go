package arc

import "slices"

// Block is a basic block. Params receive the arguments of incoming jumps.
type Block struct {
	ID     BlockID
	Params []VarID
	Instrs []Instr
	Term   Terminator
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

// Insert places instrs before position i of the body.
func (b *Block) Insert(i int, instrs ...Instr) {
	b.Instrs = slices.Insert(b.Instrs, i, instrs...)
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() Block {
	out := Block{
		ID:     b.ID,
		Params: slices.Clone(b.Params),
		Instrs: make([]Instr, len(b.Instrs)),
		Term:   b.Term.Clone(),
	}
	for i := range b.Instrs {
		out.Instrs[i] = b.Instrs[i].Clone()
	}
	return out
}
