package interp

import (
	"math"
	"unicode/utf8"

	"arcc/internal/arc"
	"arcc/internal/drop"
	"arcc/internal/rt"
	"arcc/internal/types"
)

func (m *Machine) exec(fr *frame, in *arc.Instr) *Error {
	switch in.Kind {
	case arc.InstrLet:
		v, err := m.evalLet(fr, &in.Let)
		if err != nil {
			return err
		}
		fr.set(in.Let.Dst, v)
	case arc.InstrApply:
		args, err := m.getAll(fr, in.Apply.Args)
		if err != nil {
			return err
		}
		v, err := m.apply(in.Apply.Func, args)
		if err != nil {
			return err
		}
		fr.set(in.Apply.Dst, v)
	case arc.InstrApplyIndirect:
		v, err := m.applyIndirect(fr, &in.ApplyIndirect)
		if err != nil {
			return err
		}
		fr.set(in.ApplyIndirect.Dst, v)
	case arc.InstrPartialApply:
		args, err := m.getAll(fr, in.PartialApply.Args)
		if err != nil {
			return err
		}
		fr.set(in.PartialApply.Dst, m.closure(fr, in.PartialApply.Ty, in.PartialApply.Func, in.PartialApply.Args, args))
	case arc.InstrProject:
		v, err := m.project(fr, &in.Project)
		if err != nil {
			return err
		}
		fr.set(in.Project.Dst, v)
	case arc.InstrConstruct:
		args, err := m.getAll(fr, in.Construct.Args)
		if err != nil {
			return err
		}
		v, err := m.construct(fr, in.Construct.Ty, in.Construct.Ctor, in.Construct.Args, args)
		if err != nil {
			return err
		}
		fr.set(in.Construct.Dst, v)
	case arc.InstrRcInc:
		v, err := m.get(fr, in.RcInc.Var)
		if err != nil {
			return err
		}
		if v.IsRef() {
			m.rt.Retain(m.Heap().Get(v.H), in.RcInc.Count)
		}
	case arc.InstrRcDec:
		v, err := m.get(fr, in.RcDec.Var)
		if err != nil {
			return err
		}
		m.release(v)
	case arc.InstrIsShared:
		v, err := m.get(fr, in.IsShared.Var)
		if err != nil {
			return err
		}
		fr.set(in.IsShared.Dst, rt.Bool(v.IsRef() && m.rt.IsShared(m.Heap().Get(v.H))))
	case arc.InstrSet:
		return m.set(fr, &in.Set)
	case arc.InstrSetTag:
		return m.setTag(fr, &in.SetTag)
	case arc.InstrReset:
		v, err := m.get(fr, in.Reset.Var)
		if err != nil {
			return err
		}
		token := rt.Value{Kind: rt.VRef}
		if v.IsRef() && m.rt.Reset(m.Heap().Get(v.H)) != nil {
			token = v
		}
		fr.set(in.Reset.Token, token)
	case arc.InstrReuse:
		return m.reuse(fr, &in.Reuse)
	default:
		return m.errorf(ErrTypeMismatch, "cannot execute %s", in.Kind)
	}
	return nil
}

func (m *Machine) evalLet(fr *frame, let *arc.LetInstr) (rt.Value, *Error) {
	switch let.Value.Kind {
	case arc.ValueVar:
		return m.get(fr, let.Value.Var)
	case arc.ValueLit:
		return m.literal(let.Ty, let.Value.Lit), nil
	case arc.ValuePrim:
		args, err := m.getAll(fr, let.Value.Args)
		if err != nil {
			return rt.Value{}, err
		}
		if len(args) != let.Value.Op.Arity() {
			return rt.Value{}, m.errorf(ErrArity, "%s takes %d operands, got %d", let.Value.Op, let.Value.Op.Arity(), len(args))
		}
		return m.prim(let.Value.Op, let.Ty, args)
	}
	return rt.Value{}, m.errorf(ErrTypeMismatch, "unknown let form")
}

func (m *Machine) literal(ty types.TypeID, lit arc.Literal) rt.Value {
	switch lit.Kind {
	case arc.LitBool:
		return rt.Bool(lit.Bool)
	case arc.LitInt:
		return rt.Int(lit.Int)
	case arc.LitFloat:
		return rt.Float(lit.Float)
	case arc.LitChar:
		return rt.Value{Kind: rt.VChar, I: lit.Int}
	case arc.LitString:
		if ty == types.NoTypeID {
			ty = m.in.Builtins().String
		}
		return rt.Ref(m.Heap().AllocString(ty, lit.Str))
	}
	return rt.Unit()
}

func (m *Machine) prim(op arc.PrimOp, ty types.TypeID, args []rt.Value) (rt.Value, *Error) {
	a := args[0]
	switch op {
	case arc.OpNot:
		if a.Kind != rt.VBool {
			return rt.Value{}, m.errorf(ErrTypeMismatch, "not of %s", a)
		}
		return rt.Bool(a.I == 0), nil
	case arc.OpNeg:
		switch a.Kind {
		case rt.VInt:
			return rt.Int(-a.I), nil
		case rt.VFloat:
			return rt.Float(-a.F), nil
		}
		return rt.Value{}, m.errorf(ErrTypeMismatch, "neg of %s", a)
	case arc.OpTag:
		if a.IsRef() {
			return rt.Int(int64(m.Heap().Get(a.H).Tag)), nil
		}
		return rt.Int(a.I), nil
	case arc.OpLen:
		if !a.IsRef() {
			return rt.Value{}, m.errorf(ErrTypeMismatch, "len of %s", a)
		}
		o := m.Heap().Get(a.H)
		switch o.Kind {
		case rt.OKString:
			return rt.Int(int64(utf8.RuneCountInString(o.Str))), nil
		case rt.OKMap:
			return rt.Int(int64(len(o.Elems) / 2)), nil
		}
		return rt.Int(int64(len(o.Elems))), nil
	}

	b := args[1]
	switch op {
	case arc.OpAnd, arc.OpOr:
		if a.Kind != rt.VBool || b.Kind != rt.VBool {
			return rt.Value{}, m.errorf(ErrTypeMismatch, "%s of %s and %s", op, a, b)
		}
		if op == arc.OpAnd {
			return rt.Bool(a.I != 0 && b.I != 0), nil
		}
		return rt.Bool(a.I != 0 || b.I != 0), nil
	case arc.OpEq:
		return rt.Bool(m.equal(a, b)), nil
	case arc.OpNe:
		return rt.Bool(!m.equal(a, b)), nil
	case arc.OpConcat:
		sa, ok1 := m.str(a)
		sb, ok2 := m.str(b)
		if !ok1 || !ok2 {
			return rt.Value{}, m.errorf(ErrTypeMismatch, "concat of %s and %s", a, b)
		}
		if ty == types.NoTypeID {
			ty = m.in.Builtins().String
		}
		return rt.Ref(m.Heap().AllocString(ty, sa+sb)), nil
	case arc.OpLt, arc.OpLe, arc.OpGt, arc.OpGe:
		c, ok := m.compare(a, b)
		if !ok {
			return rt.Value{}, m.errorf(ErrTypeMismatch, "%s of %s and %s", op, a, b)
		}
		switch op {
		case arc.OpLt:
			return rt.Bool(c < 0), nil
		case arc.OpLe:
			return rt.Bool(c <= 0), nil
		case arc.OpGt:
			return rt.Bool(c > 0), nil
		}
		return rt.Bool(c >= 0), nil
	}
	return m.arith(op, a, b)
}

func (m *Machine) arith(op arc.PrimOp, a, b rt.Value) (rt.Value, *Error) {
	switch {
	case a.Kind == rt.VInt && b.Kind == rt.VInt:
		switch op {
		case arc.OpAdd:
			return rt.Int(a.I + b.I), nil
		case arc.OpSub:
			return rt.Int(a.I - b.I), nil
		case arc.OpMul:
			return rt.Int(a.I * b.I), nil
		case arc.OpDiv, arc.OpRem:
			if b.I == 0 {
				return rt.Value{}, m.errorf(ErrDivByZero, "%s by zero", op)
			}
			if op == arc.OpDiv {
				return rt.Int(a.I / b.I), nil
			}
			return rt.Int(a.I % b.I), nil
		}
	case a.Kind == rt.VFloat && b.Kind == rt.VFloat:
		switch op {
		case arc.OpAdd:
			return rt.Float(a.F + b.F), nil
		case arc.OpSub:
			return rt.Float(a.F - b.F), nil
		case arc.OpMul:
			return rt.Float(a.F * b.F), nil
		case arc.OpDiv:
			return rt.Float(a.F / b.F), nil
		case arc.OpRem:
			return rt.Float(math.Mod(a.F, b.F)), nil
		}
	}
	return rt.Value{}, m.errorf(ErrTypeMismatch, "%s of %s and %s", op, a, b)
}

func (m *Machine) str(v rt.Value) (string, bool) {
	if !v.IsRef() {
		return "", false
	}
	o := m.Heap().Get(v.H)
	return o.Str, o.Kind == rt.OKString
}

func (m *Machine) compare(a, b rt.Value) (int, bool) {
	if sa, ok := m.str(a); ok {
		sb, ok := m.str(b)
		if !ok {
			return 0, false
		}
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		}
		return 0, true
	}
	if a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case rt.VInt, rt.VChar:
		switch {
		case a.I < b.I:
			return -1, true
		case a.I > b.I:
			return 1, true
		}
		return 0, true
	case rt.VFloat:
		switch {
		case a.F < b.F:
			return -1, true
		case a.F > b.F:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// equal compares structurally; handles of equal objects may differ.
func (m *Machine) equal(a, b rt.Value) bool {
	if a.IsRef() != b.IsRef() {
		return false
	}
	if !a.IsRef() {
		return a.Kind == b.Kind && a.I == b.I && a.F == b.F
	}
	if a.H == b.H {
		return true
	}
	oa, ob := m.Heap().Get(a.H), m.Heap().Get(b.H)
	if oa.Kind != ob.Kind || oa.Tag != ob.Tag || oa.Str != ob.Str || oa.Func != ob.Func ||
		len(oa.Fields) != len(ob.Fields) || len(oa.Elems) != len(ob.Elems) {
		return false
	}
	for i := range oa.Fields {
		if !m.equal(oa.Fields[i], ob.Fields[i]) {
			return false
		}
	}
	for i := range oa.Elems {
		if !m.equal(oa.Elems[i], ob.Elems[i]) {
			return false
		}
	}
	return true
}

func (m *Machine) apply(name string, args []rt.Value) (rt.Value, *Error) {
	if fn, ok := m.funcs[name]; ok {
		return m.invoke(fn, args)
	}
	ext, ok := m.mod.Extern(name)
	if !ok {
		return rt.Value{}, m.errorf(ErrUnknownFunc, "no function %q", name)
	}
	impl := m.externs[name]
	if impl == nil {
		return rt.Value{}, m.errorf(ErrUnknownFunc, "extern %q has no implementation", name)
	}
	if len(args) != len(ext.Params) {
		return rt.Value{}, m.errorf(ErrArity, "%s takes %d arguments, got %d", name, len(ext.Params), len(args))
	}
	v, err := impl(m, ExternCall{Name: name, Args: args, Types: ext.Params, Result: ext.Result})
	if err != nil {
		return rt.Value{}, m.errorf(ErrExtern, "%s: %v", name, err)
	}
	for i, a := range args {
		if i >= len(ext.Sig) || ext.Sig[i] == arc.Owned {
			m.release(a)
		}
	}
	return v, nil
}

// applyIndirect hands every capture to the target as an owned argument and
// then consumes the closure itself.
func (m *Machine) applyIndirect(fr *frame, ai *arc.ApplyIndirectInstr) (rt.Value, *Error) {
	cv, err := m.get(fr, ai.Closure)
	if err != nil {
		return rt.Value{}, err
	}
	rest, err := m.getAll(fr, ai.Args)
	if err != nil {
		return rt.Value{}, err
	}
	if !cv.IsRef() {
		return rt.Value{}, m.errorf(ErrTypeMismatch, "call through %s", cv)
	}
	c := m.Heap().Get(cv.H)
	if c.Kind != rt.OKClosure {
		return rt.Value{}, m.errorf(ErrTypeMismatch, "call through a %s", c.Kind)
	}
	args := make([]rt.Value, 0, len(c.Fields)+len(rest))
	for _, capt := range c.Fields {
		if capt.IsRef() {
			m.rt.Retain(m.Heap().Get(capt.H), 1)
		}
		args = append(args, capt)
	}
	args = append(args, rest...)
	target := c.Func
	m.rt.Release(c)
	return m.apply(target, args)
}

func (m *Machine) closure(fr *frame, ty types.TypeID, fn string, vars []arc.VarID, captures []rt.Value) rt.Value {
	capTypes := make([]types.TypeID, len(vars))
	for i, v := range vars {
		capTypes[i] = fr.fn.VarType(v)
	}
	info := drop.ComputeClosureEnv(ty, capTypes, m.cls)
	return rt.Ref(m.Heap().Alloc(&rt.Object{
		Kind:   rt.OKClosure,
		Type:   ty,
		Func:   fn,
		Fields: captures,
		Drop:   &info,
	}))
}

func (m *Machine) project(fr *frame, p *arc.ProjectInstr) (rt.Value, *Error) {
	base, err := m.get(fr, p.Value)
	if err != nil {
		return rt.Value{}, err
	}
	if !base.IsRef() {
		return rt.Value{}, m.errorf(ErrTypeMismatch, "project field %d of %s", p.Field, base)
	}
	o := m.Heap().Get(base.H)
	if int(p.Field) >= len(o.Fields) {
		return rt.Value{}, m.errorf(ErrOutOfBounds, "field %d of a %s with %d fields", p.Field, o.Kind, len(o.Fields))
	}
	return o.Fields[p.Field], nil
}

// descriptor returns the shared drop descriptor of ty, if it needs one.
func (m *Machine) descriptor(ty types.TypeID) *drop.Info {
	if info, ok := m.infos[ty]; ok {
		return info
	}
	var out *drop.Info
	if info, ok := m.drops.Get(ty); ok {
		out = &info
	}
	m.infos[ty] = out
	return out
}

func (m *Machine) construct(fr *frame, ty types.TypeID, ctor arc.Ctor, vars []arc.VarID, args []rt.Value) (rt.Value, *Error) {
	switch ctor.Kind {
	case arc.CtorStruct, arc.CtorTuple, arc.CtorEnumVariant:
		if !m.cls.IsRef(ty) {
			// payload-free enums are plain tags
			return rt.Int(int64(ctor.Variant)), nil
		}
		return rt.Ref(m.Heap().AllocCell(ty, ctor.Variant, args, m.descriptor(ty))), nil
	case arc.CtorListLit:
		return m.collection(rt.OKList, ty, args), nil
	case arc.CtorSetLit:
		return m.collection(rt.OKSet, ty, args), nil
	case arc.CtorMapLit:
		if len(args)%2 != 0 {
			return rt.Value{}, m.errorf(ErrArity, "map literal with %d operands", len(args))
		}
		return m.collection(rt.OKMap, ty, args), nil
	case arc.CtorClosure:
		return m.closure(fr, ty, ctor.Func, vars, args), nil
	}
	return rt.Value{}, m.errorf(ErrTypeMismatch, "unknown constructor %s", ctor.Kind)
}

func (m *Machine) collection(kind rt.ObjectKind, ty types.TypeID, elems []rt.Value) rt.Value {
	return rt.Ref(m.Heap().Alloc(&rt.Object{Kind: kind, Type: ty, Elems: elems, Drop: m.descriptor(ty)}))
}

func (m *Machine) cell(fr *frame, base arc.VarID) (*rt.Object, *Error) {
	v, err := m.get(fr, base)
	if err != nil {
		return nil, err
	}
	if !v.IsRef() {
		return nil, m.errorf(ErrTypeMismatch, "store into %s", v)
	}
	o := m.Heap().Get(v.H)
	if o.Kind != rt.OKCell {
		return nil, m.errorf(ErrTypeMismatch, "store into a %s", o.Kind)
	}
	return o, nil
}

func (m *Machine) set(fr *frame, s *arc.SetInstr) *Error {
	o, err := m.cell(fr, s.Base)
	if err != nil {
		return err
	}
	v, err := m.get(fr, s.Value)
	if err != nil {
		return err
	}
	for int(s.Field) >= len(o.Fields) {
		o.Fields = append(o.Fields, rt.Unit())
	}
	o.Fields[s.Field] = v
	return nil
}

func (m *Machine) setTag(fr *frame, s *arc.SetTagInstr) *Error {
	o, err := m.cell(fr, s.Base)
	if err != nil {
		return err
	}
	n := len(m.in.CellFields(o.Type, int(s.Tag)))
	for len(o.Fields) < n {
		o.Fields = append(o.Fields, rt.Unit())
	}
	o.Fields = o.Fields[:n]
	o.Tag = s.Tag
	return nil
}

func (m *Machine) reuse(fr *frame, ru *arc.ReuseInstr) *Error {
	tok, err := m.get(fr, ru.Token)
	if err != nil {
		return err
	}
	args, err := m.getAll(fr, ru.Args)
	if err != nil {
		return err
	}
	if !tok.IsRef() || !ru.Ctor.IsCell() {
		if tok.IsRef() {
			m.release(tok)
		}
		v, err := m.construct(fr, ru.Ty, ru.Ctor, ru.Args, args)
		if err != nil {
			return err
		}
		fr.set(ru.Dst, v)
		return nil
	}
	o := m.Heap().Get(tok.H)
	o.Kind = rt.OKCell
	o.Type = ru.Ty
	o.Tag = ru.Ctor.Variant
	o.Fields = append(o.Fields[:0], args...)
	o.Elems = nil
	o.Drop = m.descriptor(ru.Ty)
	m.Heap().NoteReuse()
	fr.set(ru.Dst, tok)
	return nil
}
