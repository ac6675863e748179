package interp_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcc/internal/arc"
	"arcc/internal/interp"
	"arcc/internal/ownership"
	"arcc/internal/rcelim"
	"arcc/internal/rcinsert"
	"arcc/internal/reuse"
	"arcc/internal/rt"
	"arcc/internal/types"
)

type env struct {
	in   *types.Interner
	bt   types.Builtins
	p    types.TypeID // P { x: int, y: int }
	box  types.TypeID // Box { v: str }
	list types.TypeID // List = Nil | Cons(head: int, tail: List)
	cls  *types.Classifier
}

func newEnv() *env {
	in := types.NewInterner()
	bt := in.Builtins()
	e := &env{in: in, bt: bt}
	e.p = in.RegisterStruct("P")
	in.SetStructFields(e.p, []types.Field{{Name: "x", Type: bt.Int}, {Name: "y", Type: bt.Int}})
	e.box = in.RegisterStruct("Box")
	in.SetStructFields(e.box, []types.Field{{Name: "v", Type: bt.String}})
	e.list = in.RegisterEnum("List")
	in.SetEnumVariants(e.list, []types.Variant{
		{Name: "Nil"},
		{Name: "Cons", Fields: []types.Field{{Name: "head", Type: bt.Int}, {Name: "tail", Type: e.list}}},
	})
	e.cls = types.NewClassifier(in)
	return e
}

var (
	structCtor = arc.Ctor{Kind: arc.CtorStruct}
	nilCtor    = arc.Ctor{Kind: arc.CtorEnumVariant, Variant: 0}
	consCtor   = arc.Ctor{Kind: arc.CtorEnumVariant, Variant: 1}
)

func str(b *arc.Builder, ty types.TypeID, s string) arc.VarID {
	return b.Lit(ty, arc.Literal{Kind: arc.LitString, Str: s})
}

// compile runs the pipeline on a fresh module. The conservative form stops
// after insertion.
func compile(t *testing.T, e *env, mod *arc.Module, optimize bool) *arc.Module {
	t.Helper()
	sigs := ownership.InferSignatures(mod, e.cls, nil)
	ownership.Apply(mod, sigs)
	for _, f := range mod.Funcs {
		rcinsert.Insert(f, sigs, e.cls)
		if !optimize {
			continue
		}
		if _, err := rcelim.Optimize(f, sigs); err != nil {
			t.Fatalf("%s: %v", f.Name, err)
		}
		det, err := reuse.Detect(f, e.cls, sigs)
		if err != nil {
			t.Fatalf("%s: %v", f.Name, err)
		}
		if err := reuse.Expand(f, det, e.cls, sigs); err != nil {
			t.Fatalf("%s: %v", f.Name, err)
		}
	}
	for _, f := range mod.Funcs {
		if err := arc.ValidateFunc(f); err != nil {
			t.Fatalf("%s: invalid IR: %v", f.Name, err)
		}
	}
	return mod
}

func incAll(e *env) *arc.Func {
	b := arc.NewBuilder("inc_all", e.list)
	l := b.Param("l", e.list, arc.Borrowed)
	nilBlk, consBlk := b.NewBlock(), b.NewBlock()
	tag := b.Prim(e.bt.Int, arc.OpTag, l)
	b.Switch(tag, []arc.SwitchCase{{Value: 0, Target: nilBlk}, {Value: 1, Target: consBlk}}, arc.NoBlock)

	b.SetBlock(nilBlk)
	b.Return(l)

	b.SetBlock(consBlk)
	h := b.Project(e.bt.Int, l, 0)
	tail := b.Project(e.list, l, 1)
	h1 := b.Prim(e.bt.Int, arc.OpAdd, h, b.Int(e.bt.Int, 1))
	t1 := b.Apply(e.list, "inc_all", tail)
	b.Return(b.Construct(e.list, consCtor, h1, t1))
	return b.F
}

func listMain(e *env) *arc.Func {
	b := arc.NewBuilder("main", e.list)
	l := b.Construct(e.list, nilCtor)
	for _, n := range []int64{3, 2, 1} {
		l = b.Construct(e.list, consCtor, b.Int(e.bt.Int, n), l)
	}
	b.Return(b.Apply(e.list, "inc_all", l))
	return b.F
}

func bump(e *env) *arc.Func {
	b := arc.NewBuilder("bump", e.p)
	p := b.Param("p", e.p, arc.Owned)
	b.F.Params[0].Declared = true
	x := b.Project(e.bt.Int, p, 0)
	y := b.Project(e.bt.Int, p, 1)
	x1 := b.Prim(e.bt.Int, arc.OpAdd, x, b.Int(e.bt.Int, 1))
	b.Return(b.Construct(e.p, structCtor, x1, y))
	return b.F
}

func recordMain(e *env, keepAlias bool) *arc.Func {
	result := e.p
	if keepAlias {
		result = e.in.Tuple(e.p, e.p)
	}
	b := arc.NewBuilder("main", result)
	p := b.Construct(e.p, structCtor, b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 2))
	q := b.Apply(e.p, "bump", p)
	if keepAlias {
		b.Return(b.Construct(result, arc.Ctor{Kind: arc.CtorTuple}, q, p))
	} else {
		b.Return(q)
	}
	return b.F
}

func showLen(e *env) *arc.Func {
	b := arc.NewBuilder("show_len", e.bt.Int)
	bx := b.Param("b", e.box, arc.Borrowed)
	v := b.Project(e.bt.String, bx, 0)
	b.Return(b.Prim(e.bt.Int, arc.OpLen, v))
	return b.F
}

func closureMain(e *env) *arc.Func {
	b := arc.NewBuilder("main", e.bt.Int)
	bx := b.Construct(e.box, structCtor, str(b, e.bt.String, "hello"))
	c := b.PartialApply(e.in.Fn(nil, e.bt.Int), "show_len", bx)
	b.Return(b.ApplyIndirect(e.bt.Int, c))
	return b.F
}

func choose(e *env) *arc.Func {
	b := arc.NewBuilder("choose", e.bt.String)
	flag := b.Param("flag", e.bt.Bool, arc.Owned)
	x := b.Param("a", e.bt.String, arc.Borrowed)
	y := b.Param("b", e.bt.String, arc.Borrowed)
	then, els := b.NewBlock(), b.NewBlock()
	b.Branch(flag, then, els)
	b.SetBlock(then)
	b.Return(x)
	b.SetBlock(els)
	b.Return(y)
	return b.F
}

func chooseMain(e *env) *arc.Func {
	b := arc.NewBuilder("main", e.bt.String)
	flag := b.Lit(e.bt.Bool, arc.Literal{Kind: arc.LitBool, Bool: true})
	x := str(b, e.bt.String, "x")
	y := str(b, e.bt.String, "y")
	b.Return(b.Apply(e.bt.String, "choose", flag, x, y))
	return b.F
}

func printMain(e *env) *arc.Func {
	b := arc.NewBuilder("main", e.bt.Unit)
	s := str(b, e.bt.String, "hello")
	b.Return(b.Apply(e.bt.Unit, "print", s))
	return b.F
}

// Each program runs in conservative and optimized form; both must agree
// on the value, free everything and the optimized one must not do more
// counting work.
func TestDualExecution(t *testing.T) {
	tests := []struct {
		name    string
		funcs   func(e *env) []*arc.Func
		externs bool
		want    string
		output  string
	}{
		{name: "list", funcs: func(e *env) []*arc.Func { return []*arc.Func{incAll(e), listMain(e)} },
			want: "List.Cons(2, List.Cons(3, List.Cons(4, List.Nil)))"},
		{name: "record", funcs: func(e *env) []*arc.Func { return []*arc.Func{bump(e), recordMain(e, false)} },
			want: "P{x: 2, y: 2}"},
		{name: "shared record", funcs: func(e *env) []*arc.Func { return []*arc.Func{bump(e), recordMain(e, true)} },
			want: "(P{x: 2, y: 2}, P{x: 1, y: 2})"},
		{name: "closure", funcs: func(e *env) []*arc.Func { return []*arc.Func{showLen(e), closureMain(e)} },
			want: "5"},
		{name: "branch", funcs: func(e *env) []*arc.Func { return []*arc.Func{choose(e), chooseMain(e)} },
			want: `"x"`},
		{name: "extern", funcs: func(e *env) []*arc.Func { return []*arc.Func{printMain(e)} },
			externs: true, want: "()", output: "hello\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results [2]interp.Result
			for i, optimize := range []bool{false, true} {
				e := newEnv()
				mod := &arc.Module{Types: e.in, Funcs: tt.funcs(e)}
				var out bytes.Buffer
				opts := interp.Options{Mode: rt.ModeSingle}
				if tt.externs {
					mod.Externs = []arc.Extern{{
						Name:   "print",
						Params: []types.TypeID{e.bt.String},
						Sig:    arc.Signature{arc.Borrowed},
						Result: e.bt.Unit,
					}}
					opts.Externs = interp.StdExterns(&out)
				}
				compile(t, e, mod, optimize)
				res, err := interp.Run(context.Background(), mod, e.cls, "main", opts)
				if err != nil {
					t.Fatalf("optimize=%v: %v", optimize, err)
				}
				if res.Value != tt.want {
					t.Errorf("optimize=%v: value = %s, want %s", optimize, res.Value, tt.want)
				}
				if len(res.Leaks) != 0 || res.Stats.Live() != 0 {
					t.Errorf("optimize=%v: leaked %v", optimize, res.Leaks)
				}
				if out.String() != tt.output {
					t.Errorf("optimize=%v: output = %q, want %q", optimize, out.String(), tt.output)
				}
				results[i] = res
			}
			cons, opt := results[0].Stats, results[1].Stats
			if opt.Retains+opt.Releases > cons.Retains+cons.Releases {
				t.Errorf("optimized form counts more: %+v vs %+v", opt, cons)
			}
			if opt.Allocs > cons.Allocs {
				t.Errorf("optimized form allocates more: %d vs %d", opt.Allocs, cons.Allocs)
			}
		})
	}
}

func TestReuseSavesAllocations(t *testing.T) {
	e := newEnv()
	mod := compile(t, e, &arc.Module{Types: e.in, Funcs: []*arc.Func{bump(e), recordMain(e, false)}}, true)
	res, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	// the unique fast path rewrites the argument in place
	want := rt.Stats{Allocs: 1, Frees: 1, Releases: 1}
	if diff := cmp.Diff(want, res.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedReuseTakesSlowPath(t *testing.T) {
	e := newEnv()
	mod := compile(t, e, &arc.Module{Types: e.in, Funcs: []*arc.Func{bump(e), recordMain(e, true)}}, true)
	res, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{Mode: rt.ModeAtomic})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Reuses != 0 || res.Stats.Allocs != 3 {
		t.Errorf("expected three allocations and no reuse, got %+v", res.Stats)
	}
}

func TestHeapFaultsBecomeErrors(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("main", e.bt.Unit)
	s := str(b, e.bt.String, "x")
	b.Emit(arc.Dec(s))
	b.Emit(arc.Dec(s))
	b.Return(arc.NoVar)
	mod := &arc.Module{Types: e.in, Funcs: []*arc.Func{b.F}}

	_, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{})
	var ierr *interp.Error
	if !errors.As(err, &ierr) || ierr.Code != interp.ErrHeapFault {
		t.Fatalf("expected a heap fault, got %v", err)
	}
	var fault *rt.Fault
	if !errors.As(err, &fault) || fault.Code != rt.FaultUseAfterFree {
		t.Fatalf("expected use after free, got %v", err)
	}
	if len(ierr.Backtrace) != 1 || ierr.Backtrace[0].Func != "main" {
		t.Errorf("backtrace = %+v", ierr.Backtrace)
	}
}

func TestMissingReleaseLeaks(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("main", e.bt.Unit)
	str(b, e.bt.String, "x")
	b.Return(arc.NoVar)
	mod := &arc.Module{Types: e.in, Funcs: []*arc.Func{b.F}}

	res, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Leaks) != 1 {
		t.Fatalf("leaks = %v", res.Leaks)
	}
}

func TestStepLimit(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("main", e.bt.Unit)
	loop := b.NewBlock()
	b.Jump(loop)
	b.SetBlock(loop)
	b.Jump(loop)
	mod := &arc.Module{Types: e.in, Funcs: []*arc.Func{b.F}}

	_, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{MaxSteps: 100})
	var ierr *interp.Error
	if !errors.As(err, &ierr) || ierr.Code != interp.ErrStepLimit {
		t.Fatalf("expected the step limit, got %v", err)
	}
}

func TestPrimitives(t *testing.T) {
	e := newEnv()
	tests := []struct {
		name string
		ty   types.TypeID
		op   arc.PrimOp
		args []arc.Literal
		want string
	}{
		{"add", e.bt.Int, arc.OpAdd, []arc.Literal{{Kind: arc.LitInt, Int: 2}, {Kind: arc.LitInt, Int: 3}}, "5"},
		{"rem", e.bt.Int, arc.OpRem, []arc.Literal{{Kind: arc.LitInt, Int: 7}, {Kind: arc.LitInt, Int: 4}}, "3"},
		{"fdiv", e.bt.Float, arc.OpDiv, []arc.Literal{{Kind: arc.LitFloat, Float: 1}, {Kind: arc.LitFloat, Float: 4}}, "0.25"},
		{"lt", e.bt.Bool, arc.OpLt, []arc.Literal{{Kind: arc.LitInt, Int: 1}, {Kind: arc.LitInt, Int: 2}}, "true"},
		{"str eq", e.bt.Bool, arc.OpEq, []arc.Literal{{Kind: arc.LitString, Str: "a"}, {Kind: arc.LitString, Str: "a"}}, "true"},
		{"concat", e.bt.String, arc.OpConcat, []arc.Literal{{Kind: arc.LitString, Str: "ab"}, {Kind: arc.LitString, Str: "cd"}}, `"abcd"`},
		{"len", e.bt.Int, arc.OpLen, []arc.Literal{{Kind: arc.LitString, Str: "héllo"}}, "5"},
		{"not", e.bt.Bool, arc.OpNot, []arc.Literal{{Kind: arc.LitBool, Bool: true}}, "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := arc.NewBuilder("main", tt.ty)
			var args []arc.VarID
			for _, lit := range tt.args {
				ty := e.bt.Int
				switch lit.Kind {
				case arc.LitString:
					ty = e.bt.String
				case arc.LitFloat:
					ty = e.bt.Float
				case arc.LitBool:
					ty = e.bt.Bool
				}
				args = append(args, b.Lit(ty, lit))
			}
			b.Return(b.Prim(tt.ty, tt.op, args...))
			mod := compile(t, e, &arc.Module{Types: e.in, Funcs: []*arc.Func{b.F}}, true)
			res, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{})
			if err != nil {
				t.Fatal(err)
			}
			if res.Value != tt.want {
				t.Errorf("got %s, want %s", res.Value, tt.want)
			}
			if len(res.Leaks) != 0 {
				t.Errorf("leaks: %v", res.Leaks)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("main", e.bt.Int)
	b.Return(b.Prim(e.bt.Int, arc.OpDiv, b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 0)))
	mod := &arc.Module{Types: e.in, Funcs: []*arc.Func{b.F}}
	_, err := interp.Run(context.Background(), mod, e.cls, "main", interp.Options{})
	var ierr *interp.Error
	if !errors.As(err, &ierr) || ierr.Code != interp.ErrDivByZero {
		t.Fatalf("expected division by zero, got %v", err)
	}
}
