package arc

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"arcc/internal/types"
)

// DumpModule writes a human-readable representation of every function.
func DumpModule(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	for i, f := range m.Funcs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := DumpFunc(w, f, m.Types); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunc writes one function. typesIn may be nil, then types print as ids.
func DumpFunc(w io.Writer, f *Func, typesIn *types.Interner) error {
	if w == nil || f == nil {
		return nil
	}
	var b strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s: %s %s", p.Var, typeStr(typesIn, f.VarType(p.Var)), p.Ownership)
	}
	fmt.Fprintf(&b, "fn %s(%s) -> %s", f.Name, strings.Join(params, ", "), typeStr(typesIn, f.Result))
	if f.FBIP != FBIPDiagnostic {
		fmt.Fprintf(&b, " fbip=%s", f.FBIP)
	}
	b.WriteString(" {\n")
	for i := range f.Blocks {
		blk := &f.Blocks[i]
		b.WriteString(blk.ID.String())
		if len(blk.Params) > 0 {
			ps := make([]string, len(blk.Params))
			for j, p := range blk.Params {
				ps[j] = fmt.Sprintf("%s: %s", p, typeStr(typesIn, f.VarType(p)))
			}
			fmt.Fprintf(&b, "(%s)", strings.Join(ps, ", "))
		}
		if blk.ID == f.Entry {
			b.WriteString(" entry")
		}
		b.WriteString(":\n")
		for j := range blk.Instrs {
			fmt.Fprintf(&b, "  %s\n", FormatInstr(&blk.Instrs[j], f, typesIn))
		}
		fmt.Fprintf(&b, "  %s\n", FormatTerm(&blk.Term))
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatInstr renders one instruction.
func FormatInstr(in *Instr, f *Func, typesIn *types.Interner) string {
	ty := func(v VarID) string {
		if f == nil {
			return "?"
		}
		return typeStr(typesIn, f.VarType(v))
	}
	switch in.Kind {
	case InstrLet:
		return fmt.Sprintf("%s: %s = %s", in.Let.Dst, ty(in.Let.Dst), formatValue(in.Let.Value))
	case InstrApply:
		return fmt.Sprintf("%s: %s = apply %s(%s)", in.Apply.Dst, ty(in.Apply.Dst), in.Apply.Func, joinVars(in.Apply.Args))
	case InstrApplyIndirect:
		return fmt.Sprintf("%s: %s = apply_indirect %s(%s)", in.ApplyIndirect.Dst, ty(in.ApplyIndirect.Dst), in.ApplyIndirect.Closure, joinVars(in.ApplyIndirect.Args))
	case InstrPartialApply:
		return fmt.Sprintf("%s: %s = partial_apply %s(%s)", in.PartialApply.Dst, ty(in.PartialApply.Dst), in.PartialApply.Func, joinVars(in.PartialApply.Args))
	case InstrProject:
		return fmt.Sprintf("%s: %s = project %s.%d", in.Project.Dst, ty(in.Project.Dst), in.Project.Value, in.Project.Field)
	case InstrConstruct:
		return fmt.Sprintf("%s: %s = construct %s(%s)", in.Construct.Dst, ty(in.Construct.Dst), formatCtor(in.Construct.Ctor), joinVars(in.Construct.Args))
	case InstrRcInc:
		if in.RcInc.Count != 1 {
			return fmt.Sprintf("rc_inc %s x%d", in.RcInc.Var, in.RcInc.Count)
		}
		return fmt.Sprintf("rc_inc %s", in.RcInc.Var)
	case InstrRcDec:
		return fmt.Sprintf("rc_dec %s", in.RcDec.Var)
	case InstrIsShared:
		return fmt.Sprintf("%s: bool = is_shared %s", in.IsShared.Dst, in.IsShared.Var)
	case InstrSet:
		return fmt.Sprintf("set %s.%d = %s", in.Set.Base, in.Set.Field, in.Set.Value)
	case InstrSetTag:
		return fmt.Sprintf("set_tag %s = %d", in.SetTag.Base, in.SetTag.Tag)
	case InstrReset:
		return fmt.Sprintf("%s = reset %s", in.Reset.Token, in.Reset.Var)
	case InstrReuse:
		return fmt.Sprintf("%s: %s = reuse %s %s(%s)", in.Reuse.Dst, ty(in.Reuse.Dst), in.Reuse.Token, formatCtor(in.Reuse.Ctor), joinVars(in.Reuse.Args))
	}
	return in.Kind.String()
}

// FormatTerm renders a terminator.
func FormatTerm(t *Terminator) string {
	switch t.Kind {
	case TermReturn:
		return "return " + t.Return.Value.String()
	case TermJump:
		if len(t.Jump.Args) == 0 {
			return "jump " + t.Jump.Target.String()
		}
		return fmt.Sprintf("jump %s(%s)", t.Jump.Target, joinVars(t.Jump.Args))
	case TermBranch:
		return fmt.Sprintf("branch %s, %s, %s", t.Branch.Cond, t.Branch.Then, t.Branch.Else)
	case TermSwitch:
		parts := make([]string, 0, len(t.Switch.Cases)+1)
		for _, c := range t.Switch.Cases {
			parts = append(parts, fmt.Sprintf("%d => %s", c.Value, c.Target))
		}
		if t.Switch.Default != NoBlock {
			parts = append(parts, "_ => "+t.Switch.Default.String())
		}
		return fmt.Sprintf("switch %s [%s]", t.Switch.Scrutinee, strings.Join(parts, ", "))
	case TermUnreachable:
		return "unreachable"
	}
	return "<unterminated>"
}

func formatValue(v Value) string {
	switch v.Kind {
	case ValueVar:
		return v.Var.String()
	case ValueLit:
		return formatLit(v.Lit)
	case ValuePrim:
		return fmt.Sprintf("%s(%s)", v.Op, joinVars(v.Args))
	}
	return "?"
}

func formatLit(l Literal) string {
	switch l.Kind {
	case LitUnit:
		return "()"
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitChar:
		return strconv.QuoteRune(rune(l.Int))
	case LitString:
		return strconv.Quote(l.Str)
	}
	return "?"
}

func formatCtor(c Ctor) string {
	switch c.Kind {
	case CtorEnumVariant:
		return fmt.Sprintf("variant#%d", c.Variant)
	case CtorClosure:
		return "closure " + c.Func
	}
	return c.Kind.String()
}

func joinVars(vs []VarID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func typeStr(typesIn *types.Interner, id types.TypeID) string {
	if typesIn == nil {
		return fmt.Sprintf("T%d", id)
	}
	return typesIn.String(id)
}
