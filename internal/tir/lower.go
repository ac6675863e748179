package tir

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	"fortio.org/safecast"
	"gopkg.in/yaml.v3"

	"arcc/internal/arc"
	"arcc/internal/diag"
	"arcc/internal/types"
)

type funcReader struct {
	*reader
	b      *arc.Builder
	vars   map[string]arc.VarID
	blocks map[string]arc.BlockID
	docs   []blockDoc
	instrs [][]instrDoc
}

func (r *reader) readFunc(n *yaml.Node) *arc.Func {
	var d funcDoc
	if err := n.Decode(&d); err != nil {
		r.errorf(diag.TirSyntax, n, "%v", err)
		return nil
	}
	fname := name(d.Name)
	if fname == "" {
		r.errorf(diag.TirSyntax, n, "function without a name")
		return nil
	}
	if r.funcs[fname] {
		r.errorf(diag.TirDuplicateFunc, n, "function %q declared twice", fname)
		return nil
	}
	r.funcs[fname] = true
	if len(d.Blocks) == 0 {
		r.errorf(diag.TirInvalidFunc, n, "function %q has no blocks", fname)
		return nil
	}

	before := r.errs
	result := r.in.Builtins().Unit
	if d.Result != "" {
		result = r.typeOf(n, d.Result)
	}
	fr := &funcReader{
		reader: r,
		b:      arc.NewBuilder(fname, result),
		vars:   make(map[string]arc.VarID),
		blocks: make(map[string]arc.BlockID),
	}
	f := fr.b.F
	f.Span = r.span(n)
	mode, err := arc.ParseFBIPMode(d.FBIP)
	if err != nil {
		r.errorf(diag.TirBadFBIPMode, n, "%v", err)
	}
	f.FBIP = mode
	f.FBIPDeclared = d.FBIP != ""

	for _, p := range d.Params {
		own, declared := r.ownership(n, p.Ownership)
		fr.define(n, p.Name, r.typeOf(n, p.Type), func(nm string, ty types.TypeID) arc.VarID {
			return fr.b.Param(nm, ty, own)
		})
		f.Params[len(f.Params)-1].Declared = declared
	}

	fr.declareBlocks(d.Blocks)
	for i := range fr.docs {
		fr.lowerBlock(&d.Blocks[i], i)
	}
	if r.errs > before {
		return nil
	}
	if err := arc.ValidateFunc(f); err != nil {
		r.errorf(diag.TirInvalidFunc, n, "function %q: %v", fname, err)
		return nil
	}
	return f
}

// define binds a name once per function.
func (fr *funcReader) define(n *yaml.Node, raw string, ty types.TypeID, mk func(string, types.TypeID) arc.VarID) arc.VarID {
	nm := name(raw)
	if nm == "" {
		return mk("", ty)
	}
	if _, dup := fr.vars[nm]; dup {
		fr.errorf(diag.TirDuplicateName, n, "variable %q defined twice", nm)
	}
	v := mk(nm, ty)
	fr.vars[nm] = v
	return v
}

func (fr *funcReader) newVar(nm string, ty types.TypeID) arc.VarID {
	return fr.b.F.NewVar(nm, ty)
}

func (fr *funcReader) use(n *yaml.Node, raw string) arc.VarID {
	if raw == "()" || raw == "" {
		return arc.NoVar
	}
	v, ok := fr.vars[name(raw)]
	if !ok {
		fr.errorf(diag.TirUnknownVar, n, "unknown variable %q", raw)
		return arc.NoVar
	}
	return v
}

func (fr *funcReader) uses(n *yaml.Node, raws []string) []arc.VarID {
	out := make([]arc.VarID, len(raws))
	for i, raw := range raws {
		out[i] = fr.use(n, raw)
	}
	return out
}

func (fr *funcReader) block(n *yaml.Node, raw string) arc.BlockID {
	id, ok := fr.blocks[name(raw)]
	if !ok {
		fr.errorf(diag.TirUnknownBlock, n, "unknown block %q", raw)
		return arc.NoBlock
	}
	return id
}

// declareBlocks creates every block and binds every name the body defines,
// so that uses may precede definitions in document order.
func (fr *funcReader) declareBlocks(nodes []yaml.Node) {
	fr.docs = make([]blockDoc, len(nodes))
	fr.instrs = make([][]instrDoc, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if err := n.Decode(&fr.docs[i]); err != nil {
			fr.errorf(diag.TirSyntax, n, "%v", err)
		}
		id := fr.b.F.Entry
		if i > 0 {
			id = fr.b.NewBlock()
		}
		bn := name(fr.docs[i].Name)
		if bn == "" {
			bn = fmt.Sprintf("bb%d", i)
		}
		if _, dup := fr.blocks[bn]; dup {
			fr.errorf(diag.TirDuplicateName, n, "block %q defined twice", bn)
		}
		fr.blocks[bn] = id
		for _, p := range fr.docs[i].Params {
			fr.define(n, p.Name, fr.typeOf(n, p.Type), func(nm string, ty types.TypeID) arc.VarID {
				return fr.b.BlockParam(id, nm, ty)
			})
		}
	}

	for i := range nodes {
		doc := &fr.docs[i]
		fr.instrs[i] = make([]instrDoc, len(doc.Instrs))
		for j := range doc.Instrs {
			in := &doc.Instrs[j]
			d := &fr.instrs[i][j]
			if err := in.Decode(d); err != nil {
				fr.errorf(diag.TirSyntax, in, "%v", err)
				continue
			}
			var ty types.TypeID
			switch {
			case d.Type != "":
				ty = fr.typeOf(in, d.Type)
			case d.Op == "let" && d.Var != "", d.Op == "project":
				// filled in once the source is known
			case d.Op == "apply":
				ty = fr.applyResult(d)
			case d.Op == "apply_indirect":
				ty = fr.in.Builtins().Unit
			default:
				fr.errorf(diag.TirUnknownType, in, "%s needs a type", d.Op)
			}
			if d.Dst != "" {
				fr.define(in, d.Dst, ty, fr.newVar)
			}
		}
	}
}

func (fr *funcReader) lowerBlock(n *yaml.Node, i int) {
	doc := &fr.docs[i]
	id := fr.blocks[name(doc.Name)]
	if doc.Name == "" {
		id = fr.blocks[fmt.Sprintf("bb%d", i)]
	}
	fr.b.SetBlock(id)
	for j := range doc.Instrs {
		fr.lowerInstr(&doc.Instrs[j], &fr.instrs[i][j])
	}
	fr.lowerTerm(n, &doc.Term)
}

// dst returns the variable declareBlocks bound for the instruction.
func (fr *funcReader) dst(d *instrDoc, ty types.TypeID) arc.VarID {
	if d.Dst == "" {
		return fr.newVar("", ty)
	}
	return fr.vars[name(d.Dst)]
}

func (fr *funcReader) lowerInstr(n *yaml.Node, d *instrDoc) {
	f := fr.b.F
	fr.b.At(fr.span(n))
	var ty types.TypeID
	if d.Type != "" {
		ty, _ = parseType(fr.in, d.Type)
	}
	switch d.Op {
	case "let":
		dst := fr.dst(d, ty)
		val := arc.Value{}
		switch {
		case d.Var != "":
			val = arc.Value{Kind: arc.ValueVar, Var: fr.use(n, d.Var)}
			if ty == types.NoTypeID && val.Var != arc.NoVar {
				ty = f.VarType(val.Var)
				f.Vars[dst].Type = ty
			}
		case d.Prim != "":
			op, ok := arc.ParsePrimOp(d.Prim)
			if !ok {
				fr.errorf(diag.TirBadInstr, n, "unknown primitive %q", d.Prim)
				return
			}
			if len(d.Args) != op.Arity() {
				fr.errorf(diag.TirBadInstr, n, "%s takes %d arguments, got %d", op, op.Arity(), len(d.Args))
				return
			}
			val = arc.Value{Kind: arc.ValuePrim, Op: op, Args: fr.uses(n, d.Args)}
		case d.Lit.Kind != 0:
			lit, err := fr.literal(&d.Lit, ty)
			if err != nil {
				fr.errorf(diag.TirBadInstr, n, "%v", err)
				return
			}
			val = arc.Value{Kind: arc.ValueLit, Lit: lit}
		default:
			fr.errorf(diag.TirBadInstr, n, "let needs lit, var or prim")
			return
		}
		fr.b.Emit(arc.Instr{Kind: arc.InstrLet, Let: arc.LetInstr{Dst: dst, Ty: ty, Value: val}})
		fr.checkInstr(n, d, ty, arc.Ctor{})

	case "apply":
		if ty == types.NoTypeID {
			ty = fr.applyResult(d)
		}
		dst := fr.dst(d, ty)
		fr.b.Emit(arc.Instr{Kind: arc.InstrApply, Apply: arc.ApplyInstr{Dst: dst, Ty: ty, Func: name(d.Func), Args: fr.uses(n, d.Args)}})
		fr.checkInstr(n, d, ty, arc.Ctor{})

	case "apply_indirect":
		if ty == types.NoTypeID {
			ty = fr.in.Builtins().Unit
		}
		dst := fr.dst(d, ty)
		fr.b.Emit(arc.Instr{Kind: arc.InstrApplyIndirect, ApplyIndirect: arc.ApplyIndirectInstr{
			Dst: dst, Ty: ty, Closure: fr.use(n, d.Closure), Args: fr.uses(n, d.Args),
		}})
		fr.checkInstr(n, d, ty, arc.Ctor{})

	case "partial_apply":
		dst := fr.dst(d, ty)
		fr.b.Emit(arc.Instr{Kind: arc.InstrPartialApply, PartialApply: arc.PartialApplyInstr{
			Dst: dst, Ty: ty, Func: name(d.Func), Args: fr.uses(n, d.Args),
		}})
		fr.checkInstr(n, d, ty, arc.Ctor{})

	case "project":
		base := fr.use(n, d.Value)
		if base == arc.NoVar {
			return
		}
		field, fty, ok := fr.field(n, f.VarType(base), d)
		if !ok {
			return
		}
		if ty == types.NoTypeID {
			ty = fty
		}
		dst := fr.dst(d, ty)
		f.Vars[dst].Type = ty
		fr.b.Emit(arc.Instr{Kind: arc.InstrProject, Project: arc.ProjectInstr{Dst: dst, Ty: ty, Value: base, Field: field}})

	case "construct":
		ctor, ok := fr.ctor(n, ty, d)
		if !ok {
			return
		}
		dst := fr.dst(d, ty)
		fr.b.Emit(arc.Instr{Kind: arc.InstrConstruct, Construct: arc.ConstructInstr{Dst: dst, Ty: ty, Ctor: ctor, Args: fr.uses(n, d.Args)}})
		fr.checkInstr(n, d, ty, ctor)

	default:
		fr.errorf(diag.TirBadInstr, n, "unknown op %q", d.Op)
	}
}

func (fr *funcReader) literal(n *yaml.Node, ty types.TypeID) (arc.Literal, error) {
	tt, _ := fr.in.Lookup(ty)
	switch tt.Kind {
	case types.KindUnit:
		return arc.Literal{Kind: arc.LitUnit}, nil
	case types.KindBool:
		var v bool
		err := n.Decode(&v)
		return arc.Literal{Kind: arc.LitBool, Bool: v}, err
	case types.KindInt, types.KindByte:
		var v int64
		err := n.Decode(&v)
		return arc.Literal{Kind: arc.LitInt, Int: v}, err
	case types.KindFloat:
		var v float64
		err := n.Decode(&v)
		return arc.Literal{Kind: arc.LitFloat, Float: v}, err
	case types.KindChar:
		r, size := utf8.DecodeRuneInString(n.Value)
		if size == 0 || size != len(n.Value) {
			return arc.Literal{}, fmt.Errorf("char literal must be one character, got %q", n.Value)
		}
		return arc.Literal{Kind: arc.LitChar, Int: int64(r)}, nil
	case types.KindString:
		return arc.Literal{Kind: arc.LitString, Str: n.Value}, nil
	}
	return arc.Literal{}, fmt.Errorf("no literals of type %s", fr.in.String(ty))
}

// field resolves a field by index or by name. Enum payload fields are
// named within the given variant.
func (fr *funcReader) field(n *yaml.Node, base types.TypeID, d *instrDoc) (uint32, types.TypeID, bool) {
	tt, _ := fr.in.Lookup(base)
	variant := 0
	if tt.Kind == types.KindEnum {
		if d.Variant == "" {
			fr.errorf(diag.TirUnknownVariant, n, "projection from an enum needs a variant")
			return 0, types.NoTypeID, false
		}
		vi, ok := fr.in.VariantIndex(base, name(d.Variant))
		if !ok {
			fr.errorf(diag.TirUnknownVariant, n, "%s has no variant %q", fr.in.String(base), d.Variant)
			return 0, types.NoTypeID, false
		}
		variant = vi
	}
	fields := fr.in.CellFields(base, variant)
	idx, err := strconv.Atoi(d.Field)
	if err != nil {
		idx = -1
		switch tt.Kind {
		case types.KindStruct:
			if i, ok := fr.in.FieldIndex(base, name(d.Field)); ok {
				idx = i
			}
		case types.KindEnum:
			info, _ := fr.in.EnumInfo(base)
			idx = slices.IndexFunc(info.Variants[variant].Fields, func(f types.Field) bool { return f.Name == name(d.Field) })
		}
	}
	if idx < 0 || idx >= len(fields) {
		fr.errorf(diag.TirUnknownField, n, "%s has no field %q", fr.in.String(base), d.Field)
		return 0, types.NoTypeID, false
	}
	field, err := safecast.Conv[uint32](idx)
	if err != nil {
		fr.errorf(diag.TirUnknownField, n, "field index %d out of range", idx)
		return 0, types.NoTypeID, false
	}
	return field, fields[idx], true
}

func (fr *funcReader) ctor(n *yaml.Node, ty types.TypeID, d *instrDoc) (arc.Ctor, bool) {
	tt, ok := fr.in.Lookup(ty)
	if !ok {
		fr.errorf(diag.TirUnknownType, n, "construct needs a type")
		return arc.Ctor{}, false
	}
	switch tt.Kind {
	case types.KindStruct:
		return arc.Ctor{Kind: arc.CtorStruct}, true
	case types.KindTuple:
		return arc.Ctor{Kind: arc.CtorTuple}, true
	case types.KindList:
		return arc.Ctor{Kind: arc.CtorListLit}, true
	case types.KindSet:
		return arc.Ctor{Kind: arc.CtorSetLit}, true
	case types.KindMap:
		if len(d.Args)%2 != 0 {
			fr.errorf(diag.TirBadInstr, n, "map literal takes keys and values in pairs")
			return arc.Ctor{}, false
		}
		return arc.Ctor{Kind: arc.CtorMapLit}, true
	case types.KindFn:
		if d.Closure == "" {
			fr.errorf(diag.TirBadInstr, n, "closure construct needs the closure function")
			return arc.Ctor{}, false
		}
		return arc.Ctor{Kind: arc.CtorClosure, Func: name(d.Closure)}, true
	case types.KindEnum:
		vi, ok := fr.in.VariantIndex(ty, name(d.Variant))
		if !ok {
			fr.errorf(diag.TirUnknownVariant, n, "%s has no variant %q", fr.in.String(ty), d.Variant)
			return arc.Ctor{}, false
		}
		v, _ := safecast.Conv[uint32](vi)
		return arc.Ctor{Kind: arc.CtorEnumVariant, Variant: v}, true
	}
	fr.errorf(diag.TirBadInstr, n, "cannot construct %s", fr.in.String(ty))
	return arc.Ctor{}, false
}

func (fr *funcReader) lowerTerm(blk *yaml.Node, n *yaml.Node) {
	if n.Kind == 0 {
		fr.errorf(diag.TirBadInstr, blk, "block without a terminator")
		return
	}
	if n.Kind == yaml.ScalarNode {
		if n.Value != "unreachable" {
			fr.errorf(diag.TirBadInstr, n, "unknown terminator %q", n.Value)
			return
		}
		fr.b.Unreachable()
		return
	}
	var d termDoc
	if err := n.Decode(&d); err != nil {
		fr.errorf(diag.TirSyntax, n, "%v", err)
		return
	}
	switch {
	case d.Return != nil:
		fr.b.Return(fr.use(n, *d.Return))
		fr.expect(n, "return value", fr.b.F.Result, fr.typeOfUse(*d.Return))
	case d.Jump != "":
		target := fr.block(n, d.Jump)
		fr.b.Jump(target, fr.uses(n, d.Args)...)
		fr.checkJump(n, d.Jump, target, d.Args)
	case d.Branch != "":
		fr.b.Branch(fr.use(n, d.Branch), fr.block(n, d.Then), fr.block(n, d.Else))
		fr.expect(n, "branch condition", fr.in.Builtins().Bool, fr.typeOfUse(d.Branch))
	case d.Switch != "":
		cases := make([]arc.SwitchCase, 0, len(d.Cases))
		for v, target := range d.Cases {
			cases = append(cases, arc.SwitchCase{Value: v, Target: fr.block(n, target)})
		}
		slices.SortFunc(cases, func(a, b arc.SwitchCase) int { return cmp.Compare(a.Value, b.Value) })
		def := arc.NoBlock
		if d.Default != "" {
			def = fr.block(n, d.Default)
		}
		fr.b.Switch(fr.use(n, d.Switch), cases, def)
	default:
		fr.errorf(diag.TirBadInstr, n, "unknown terminator")
	}
}
