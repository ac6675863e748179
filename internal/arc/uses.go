package arc

import "slices"

// Operand is one variable occurrence in an instruction or terminator.
// Consumed occurrences take over one count of the variable; the others only
// read it.
type Operand struct {
	Var      VarID
	Consumed bool
}

// Defined returns the variable the instruction defines.
func (in *Instr) Defined() (VarID, bool) {
	switch in.Kind {
	case InstrLet:
		return in.Let.Dst, true
	case InstrApply:
		return in.Apply.Dst, true
	case InstrApplyIndirect:
		return in.ApplyIndirect.Dst, true
	case InstrPartialApply:
		return in.PartialApply.Dst, true
	case InstrProject:
		return in.Project.Dst, true
	case InstrConstruct:
		return in.Construct.Dst, true
	case InstrIsShared:
		return in.IsShared.Dst, true
	case InstrReset:
		return in.Reset.Token, true
	case InstrReuse:
		return in.Reuse.Dst, true
	}
	return NoVar, false
}

// Operands lists variable occurrences in order. sigs decides whether direct
// call arguments are consumed; nil treats every callee as taking owned args.
func (in *Instr) Operands(sigs Signatures) []Operand {
	switch in.Kind {
	case InstrLet:
		v := in.Let.Value
		switch v.Kind {
		case ValueVar:
			return []Operand{{Var: v.Var, Consumed: true}}
		case ValuePrim:
			return readAll(v.Args)
		}
		return nil
	case InstrApply:
		out := make([]Operand, len(in.Apply.Args))
		for i, a := range in.Apply.Args {
			out[i] = Operand{Var: a, Consumed: ArgOwnership(sigs, in.Apply.Func, i) == Owned}
		}
		return out
	case InstrApplyIndirect:
		out := make([]Operand, 0, len(in.ApplyIndirect.Args)+1)
		out = append(out, Operand{Var: in.ApplyIndirect.Closure, Consumed: true})
		return append(out, consumeAll(in.ApplyIndirect.Args)...)
	case InstrPartialApply:
		return consumeAll(in.PartialApply.Args)
	case InstrProject:
		return []Operand{{Var: in.Project.Value}}
	case InstrConstruct:
		return consumeAll(in.Construct.Args)
	case InstrRcInc:
		return []Operand{{Var: in.RcInc.Var}}
	case InstrRcDec:
		return []Operand{{Var: in.RcDec.Var, Consumed: true}}
	case InstrIsShared:
		return []Operand{{Var: in.IsShared.Var}}
	case InstrSet:
		return []Operand{{Var: in.Set.Base}, {Var: in.Set.Value, Consumed: true}}
	case InstrSetTag:
		return []Operand{{Var: in.SetTag.Base}}
	case InstrReset:
		return []Operand{{Var: in.Reset.Var, Consumed: true}}
	case InstrReuse:
		out := make([]Operand, 0, len(in.Reuse.Args)+1)
		out = append(out, Operand{Var: in.Reuse.Token, Consumed: true})
		return append(out, consumeAll(in.Reuse.Args)...)
	}
	return nil
}

// Uses lists every variable the instruction reads, in operand order.
func (in *Instr) Uses() []VarID {
	ops := in.Operands(nil)
	out := make([]VarID, len(ops))
	for i, op := range ops {
		out[i] = op.Var
	}
	return out
}

// UsesVar reports whether v occurs among the operands.
func (in *Instr) UsesVar(v VarID) bool {
	return slices.Contains(in.Uses(), v)
}

// Rename replaces every use of from with to. Definitions are untouched.
func (in *Instr) Rename(from, to VarID) {
	sub := func(v *VarID) {
		if *v == from {
			*v = to
		}
	}
	subAll := func(vs []VarID) {
		for i := range vs {
			sub(&vs[i])
		}
	}
	switch in.Kind {
	case InstrLet:
		sub(&in.Let.Value.Var)
		subAll(in.Let.Value.Args)
	case InstrApply:
		subAll(in.Apply.Args)
	case InstrApplyIndirect:
		sub(&in.ApplyIndirect.Closure)
		subAll(in.ApplyIndirect.Args)
	case InstrPartialApply:
		subAll(in.PartialApply.Args)
	case InstrProject:
		sub(&in.Project.Value)
	case InstrConstruct:
		subAll(in.Construct.Args)
	case InstrRcInc:
		sub(&in.RcInc.Var)
	case InstrRcDec:
		sub(&in.RcDec.Var)
	case InstrIsShared:
		sub(&in.IsShared.Var)
	case InstrSet:
		sub(&in.Set.Base)
		sub(&in.Set.Value)
	case InstrSetTag:
		sub(&in.SetTag.Base)
	case InstrReset:
		sub(&in.Reset.Var)
	case InstrReuse:
		sub(&in.Reuse.Token)
		subAll(in.Reuse.Args)
	}
}

// Clone returns a deep copy of the instruction.
func (in Instr) Clone() Instr {
	in.Let.Value.Args = slices.Clone(in.Let.Value.Args)
	in.Apply.Args = slices.Clone(in.Apply.Args)
	in.ApplyIndirect.Args = slices.Clone(in.ApplyIndirect.Args)
	in.PartialApply.Args = slices.Clone(in.PartialApply.Args)
	in.Construct.Args = slices.Clone(in.Construct.Args)
	in.Reuse.Args = slices.Clone(in.Reuse.Args)
	return in
}

// Operands lists terminator occurrences. Returned and forwarded values are
// consumed; conditions are only read.
func (t *Terminator) Operands() []Operand {
	switch t.Kind {
	case TermReturn:
		if t.Return.Value == NoVar {
			return nil
		}
		return []Operand{{Var: t.Return.Value, Consumed: true}}
	case TermJump:
		return consumeAll(t.Jump.Args)
	case TermBranch:
		return []Operand{{Var: t.Branch.Cond}}
	case TermSwitch:
		return []Operand{{Var: t.Switch.Scrutinee}}
	}
	return nil
}

// Uses lists every variable the terminator reads.
func (t *Terminator) Uses() []VarID {
	ops := t.Operands()
	out := make([]VarID, len(ops))
	for i, op := range ops {
		out[i] = op.Var
	}
	return out
}

// UsesVar reports whether v occurs in the terminator.
func (t *Terminator) UsesVar(v VarID) bool {
	return slices.Contains(t.Uses(), v)
}

// Rename replaces uses of from with to.
func (t *Terminator) Rename(from, to VarID) {
	switch t.Kind {
	case TermReturn:
		if t.Return.Value == from {
			t.Return.Value = to
		}
	case TermJump:
		for i := range t.Jump.Args {
			if t.Jump.Args[i] == from {
				t.Jump.Args[i] = to
			}
		}
	case TermBranch:
		if t.Branch.Cond == from {
			t.Branch.Cond = to
		}
	case TermSwitch:
		if t.Switch.Scrutinee == from {
			t.Switch.Scrutinee = to
		}
	}
}

func consumeAll(vs []VarID) []Operand {
	out := make([]Operand, len(vs))
	for i, v := range vs {
		out[i] = Operand{Var: v, Consumed: true}
	}
	return out
}

func readAll(vs []VarID) []Operand {
	out := make([]Operand, len(vs))
	for i, v := range vs {
		out[i] = Operand{Var: v}
	}
	return out
}
