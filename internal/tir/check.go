package tir

import (
	"gopkg.in/yaml.v3"

	"arcc/internal/arc"
	"arcc/internal/diag"
	"arcc/internal/types"
)

// callee is the declared type of a function or extern.
type callee struct {
	params []types.TypeID
	result types.TypeID
}

// declareCallees records every function header before bodies are read so
// that calls may precede the callee's definition. Malformed headers are
// reported later by readFunc.
func (r *reader) declareCallees(funcs []yaml.Node, externs []arc.Extern) {
	r.callees = make(map[string]callee, len(funcs)+len(externs))
	for _, e := range externs {
		r.callees[e.Name] = callee{params: e.Params, result: e.Result}
	}
	for i := range funcs {
		var d funcDoc
		if err := funcs[i].Decode(&d); err != nil {
			continue
		}
		fn := name(d.Name)
		if _, dup := r.callees[fn]; dup || fn == "" {
			continue
		}
		c := callee{result: r.in.Builtins().Unit}
		if d.Result != "" {
			c.result, _ = parseType(r.in, d.Result)
		}
		for _, p := range d.Params {
			ty, _ := parseType(r.in, p.Type)
			c.params = append(c.params, ty)
		}
		r.callees[fn] = c
	}
}

// applyResult is the type of a call whose instruction names none.
func (fr *funcReader) applyResult(d *instrDoc) types.TypeID {
	if c, ok := fr.callees[name(d.Func)]; ok && c.result != types.NoTypeID {
		return c.result
	}
	return fr.in.Builtins().Unit
}

// typeOfUse is the type of an operand, or NoTypeID when it is unknown.
func (fr *funcReader) typeOfUse(raw string) types.TypeID {
	if raw == "()" || raw == "" {
		return fr.in.Builtins().Unit
	}
	v, ok := fr.vars[name(raw)]
	if !ok {
		return types.NoTypeID
	}
	return fr.b.F.VarType(v)
}

// expect reports a mismatch unless one side is already unknown.
func (fr *funcReader) expect(n *yaml.Node, what string, want, got types.TypeID) {
	if want == types.NoTypeID || got == types.NoTypeID || want == got {
		return
	}
	fr.errorf(diag.TirTypeMismatch, n, "%s: expected %s, got %s", what, fr.in.String(want), fr.in.String(got))
}

func (fr *funcReader) checkArgs(n *yaml.Node, what string, want []types.TypeID, args []string) {
	if len(want) != len(args) {
		fr.errorf(diag.TirArity, n, "%s takes %d arguments, got %d", what, len(want), len(args))
		return
	}
	for i, raw := range args {
		fr.expect(n, what+" argument "+raw, want[i], fr.typeOfUse(raw))
	}
}

// checkCaptures matches captures against the leading parameters of fn.
func (fr *funcReader) checkCaptures(n *yaml.Node, fn string, args []string) {
	c, ok := fr.callees[fn]
	if !ok {
		return
	}
	if len(args) > len(c.params) {
		fr.errorf(diag.TirArity, n, "`%s` takes %d arguments, %d captured", fn, len(c.params), len(args))
		return
	}
	fr.checkArgs(n, "capture of `"+fn+"`", c.params[:len(args)], args)
}

func (fr *funcReader) checkInstr(n *yaml.Node, d *instrDoc, ty types.TypeID, ctor arc.Ctor) {
	switch d.Op {
	case "let":
		if d.Var != "" {
			fr.expect(n, "copy of "+d.Var, ty, fr.typeOfUse(d.Var))
		}
	case "apply":
		fn := name(d.Func)
		c, ok := fr.callees[fn]
		if !ok {
			return
		}
		fr.checkArgs(n, "call to `"+fn+"`", c.params, d.Args)
		fr.expect(n, "result of `"+fn+"`", c.result, ty)
	case "apply_indirect":
		info, ok := fr.in.FnInfo(fr.typeOfUse(d.Closure))
		if !ok {
			fr.errorf(diag.TirTypeMismatch, n, "%s is not a function", d.Closure)
			return
		}
		fr.checkArgs(n, "call through "+d.Closure, info.Params, d.Args)
		fr.expect(n, "result of "+d.Closure, info.Result, ty)
	case "partial_apply":
		fr.checkCaptures(n, name(d.Func), d.Args)
	case "construct":
		fr.checkConstruct(n, d, ty, ctor)
	}
}

func (fr *funcReader) checkConstruct(n *yaml.Node, d *instrDoc, ty types.TypeID, ctor arc.Ctor) {
	what := "construct " + fr.in.String(ty)
	tt, _ := fr.in.Lookup(ty)
	switch ctor.Kind {
	case arc.CtorStruct, arc.CtorTuple, arc.CtorEnumVariant:
		fr.checkArgs(n, what, fr.in.CellFields(ty, int(ctor.Variant)), d.Args)
	case arc.CtorListLit, arc.CtorSetLit:
		for _, raw := range d.Args {
			fr.expect(n, what+" element "+raw, tt.Elem, fr.typeOfUse(raw))
		}
	case arc.CtorMapLit:
		for i, raw := range d.Args {
			want := tt.Value
			if i%2 == 0 {
				want = tt.Elem
			}
			fr.expect(n, what+" entry "+raw, want, fr.typeOfUse(raw))
		}
	case arc.CtorClosure:
		fr.checkCaptures(n, ctor.Func, d.Args)
	}
}

func (fr *funcReader) checkJump(n *yaml.Node, raw string, target arc.BlockID, args []string) {
	if target == arc.NoBlock {
		return
	}
	params := fr.b.F.Block(target).Params
	want := make([]types.TypeID, len(params))
	for i, p := range params {
		want[i] = fr.b.F.VarType(p)
	}
	fr.checkArgs(n, "jump to "+raw, want, args)
}
