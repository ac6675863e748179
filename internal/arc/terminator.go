package arc

import "slices"

// TermKind selects which payload of a Terminator is live.
type TermKind uint8

const (
	TermNone TermKind = iota // block not yet sealed
	TermReturn
	TermJump
	TermBranch
	TermSwitch
	TermUnreachable
)

// Terminator ends a block. Only the field matching Kind is meaningful.
type Terminator struct {
	Kind TermKind

	Return ReturnTerm
	Jump   JumpTerm
	Branch BranchTerm
	Switch SwitchTerm
}

// ReturnTerm returns Value; NoVar returns unit.
type ReturnTerm struct {
	Value VarID
}

// JumpTerm passes Args to the target's block parameters.
type JumpTerm struct {
	Target BlockID
	Args   []VarID
}

// BranchTerm goes to Then when the bool Cond is true and to Else otherwise.
type BranchTerm struct {
	Cond VarID
	Then BlockID
	Else BlockID
}

// SwitchCase is one arm of a SwitchTerm.
type SwitchCase struct {
	Value  int64
	Target BlockID
}

// SwitchTerm dispatches on an integer scrutinee (usually an enum tag).
// With a NoBlock Default an unmatched value is a runtime error.
type SwitchTerm struct {
	Scrutinee VarID
	Cases     []SwitchCase
	Default   BlockID
}

// Successors lists distinct successor blocks in first-seen order.
func (t *Terminator) Successors() []BlockID {
	var out []BlockID
	add := func(b BlockID) {
		if b != NoBlock && !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	switch t.Kind {
	case TermJump:
		add(t.Jump.Target)
	case TermBranch:
		add(t.Branch.Then)
		add(t.Branch.Else)
	case TermSwitch:
		for _, c := range t.Switch.Cases {
			add(c.Target)
		}
		add(t.Switch.Default)
	}
	return out
}

// Retarget redirects every edge to from so it points at to.
func (t *Terminator) Retarget(from, to BlockID) {
	swap := func(b *BlockID) {
		if *b == from {
			*b = to
		}
	}
	switch t.Kind {
	case TermJump:
		swap(&t.Jump.Target)
	case TermBranch:
		swap(&t.Branch.Then)
		swap(&t.Branch.Else)
	case TermSwitch:
		for i := range t.Switch.Cases {
			swap(&t.Switch.Cases[i].Target)
		}
		swap(&t.Switch.Default)
	}
}

// Clone returns a deep copy of the terminator.
func (t Terminator) Clone() Terminator {
	t.Jump.Args = slices.Clone(t.Jump.Args)
	t.Switch.Cases = slices.Clone(t.Switch.Cases)
	return t
}

// Return builds a return terminator.
func Return(v VarID) Terminator {
	return Terminator{Kind: TermReturn, Return: ReturnTerm{Value: v}}
}

// Jump builds a jump terminator.
func Jump(target BlockID, args ...VarID) Terminator {
	return Terminator{Kind: TermJump, Jump: JumpTerm{Target: target, Args: args}}
}

// Branch builds a two-way conditional terminator.
func Branch(cond VarID, then, els BlockID) Terminator {
	return Terminator{Kind: TermBranch, Branch: BranchTerm{Cond: cond, Then: then, Else: els}}
}
