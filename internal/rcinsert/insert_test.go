package rcinsert_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcc/internal/arc"
	"arcc/internal/ownership"
	"arcc/internal/rcinsert"
	"arcc/internal/types"
)

type env struct {
	in   *types.Interner
	bt   types.Builtins
	box  types.TypeID
	pair types.TypeID
	cls  *types.Classifier
}

func newEnv() *env {
	in := types.NewInterner()
	bt := in.Builtins()
	box := in.RegisterStruct("Box")
	in.SetStructFields(box, []types.Field{{Name: "v", Type: bt.String}})
	pair := in.RegisterStruct("Pair")
	in.SetStructFields(pair, []types.Field{{Name: "a", Type: box}, {Name: "b", Type: box}})
	return &env{in: in, bt: bt, box: box, pair: pair, cls: types.NewClassifier(in)}
}

func body(f *arc.Func, blk arc.BlockID) []string {
	b := f.Block(blk)
	out := make([]string, len(b.Instrs))
	for i := range b.Instrs {
		out[i] = arc.FormatInstr(&b.Instrs[i], nil, nil)
	}
	return out
}

func insert(t *testing.T, e *env, f *arc.Func, sigs arc.SignatureMap) rcinsert.Stats {
	t.Helper()
	st := rcinsert.Insert(f, sigs, e.cls)
	if err := arc.ValidateFunc(f); err != nil {
		t.Fatalf("invalid IR after insertion: %v", err)
	}
	return st
}

func TestConsumedTwiceAndUnusedParam(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("dup", e.pair)
	x := b.Param("x", e.box, arc.Owned)
	b.Param("y", e.box, arc.Owned)
	b.Return(b.Construct(e.pair, arc.Ctor{Kind: arc.CtorStruct}, x, x))

	st := insert(t, e, b.F, nil)
	want := []string{
		"rc_dec %1",
		"rc_inc %0",
		"%2: ? = construct struct(%0, %0)",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rcinsert.Stats{Incs: 1, Decs: 1}, st); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestBorrowedParamIsRetainedNeverReleased(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("give", e.bt.String)
	p := b.Param("p", e.bt.String, arc.Borrowed)
	n := b.Prim(e.bt.Int, arc.OpLen, p)
	b.Apply(e.bt.Unit, "show", n)
	b.Return(b.Apply(e.bt.String, "keep", p))

	insert(t, e, b.F, arc.SignatureMap{"keep": {arc.Owned}})
	want := []string{
		"%1: ? = len(%0)",
		"%2: ? = apply show(%1)",
		"rc_inc %0",
		"%3: ? = apply keep(%0)",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestLastUseBorrowedReleasesAfter(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("measure", e.bt.Int)
	s := b.Param("s", e.bt.String, arc.Owned)
	n := b.Apply(e.bt.Int, "peek", s)
	b.Return(n)

	insert(t, e, b.F, arc.SignatureMap{"peek": {arc.Borrowed}})
	want := []string{
		"%1: ? = apply peek(%0)",
		"rc_dec %0",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectionRetainedBeforeBaseRelease(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("first", e.box)
	p := b.Param("p", e.pair, arc.Owned)
	b.Return(b.Project(e.box, p, 0))

	insert(t, e, b.F, nil)
	want := []string{
		"%1: ? = project %0.0",
		"rc_inc %1",
		"rc_dec %0",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadDefinitionReleased(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("waste", e.bt.Unit)
	b.Apply(e.bt.String, "make")
	b.Return(arc.NoVar)

	insert(t, e, b.F, nil)
	want := []string{
		"%0: ? = apply make()",
		"rc_dec %0",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestJumpArgsAndUnusedBlockParams(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("fwd", e.bt.Unit)
	s := b.Param("s", e.bt.String, arc.Owned)
	next := b.NewBlock()
	b.BlockParam(next, "a", e.bt.String)
	b.BlockParam(next, "b", e.bt.String)
	b.Jump(next, s, s)
	b.SetBlock(next)
	b.Return(arc.NoVar)

	insert(t, e, b.F, nil)
	if diff := cmp.Diff([]string{"rc_inc %0"}, body(b.F, 0)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rc_dec %1", "rc_dec %2"}, body(b.F, next)); diff != "" {
		t.Errorf("successor mismatch (-want +got):\n%s", diff)
	}
}

func TestEdgeReleaseAtSinglePredecessor(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("pick", e.bt.String)
	s := b.Param("s", e.bt.String, arc.Owned)
	c := b.Param("c", e.bt.Bool, arc.Owned)
	keep, other := b.NewBlock(), b.NewBlock()
	b.Branch(c, keep, other)
	b.SetBlock(keep)
	b.Return(s)
	b.SetBlock(other)
	b.Return(b.Lit(e.bt.String, arc.Literal{Kind: arc.LitString, Str: "x"}))

	st := insert(t, e, b.F, nil)
	if len(body(b.F, keep)) != 0 {
		t.Errorf("returned value must move, got %v", body(b.F, keep))
	}
	want := []string{"rc_dec %0", `%2: ? = "x"`}
	if diff := cmp.Diff(want, body(b.F, other)); diff != "" {
		t.Errorf("edge release mismatch (-want +got):\n%s", diff)
	}
	if st.Trampolines != 0 {
		t.Errorf("expected no trampolines, got %d", st.Trampolines)
	}
}

func TestTrampolineOnDisagreeingEdges(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("maybe", e.bt.Unit)
	s := b.Param("s", e.bt.String, arc.Owned)
	c := b.Param("c", e.bt.Bool, arc.Owned)
	use, done := b.NewBlock(), b.NewBlock()
	b.Branch(c, use, done)
	b.SetBlock(use)
	b.Apply(e.bt.Unit, "show", b.Prim(e.bt.Int, arc.OpLen, s))
	b.Jump(done)
	b.SetBlock(done)
	b.Return(arc.NoVar)

	st := insert(t, e, b.F, nil)
	if st.Trampolines != 1 {
		t.Fatalf("expected one trampoline, got %d", st.Trampolines)
	}
	tramp := arc.BlockID(len(b.F.Blocks) - 1)
	if got := b.F.Block(0).Term; got.Branch.Else != tramp || got.Branch.Then != use {
		t.Errorf("entry must branch through the trampoline, got %s", arc.FormatTerm(&got))
	}
	if diff := cmp.Diff([]string{"rc_dec %0"}, body(b.F, tramp)); diff != "" {
		t.Errorf("trampoline mismatch (-want +got):\n%s", diff)
	}
	if got := b.F.Block(tramp).Term; got.Kind != arc.TermJump || got.Jump.Target != done {
		t.Errorf("trampoline must jump to the join, got %s", arc.FormatTerm(&got))
	}
	if len(body(b.F, done)) != 0 {
		t.Errorf("join must stay empty, got %v", body(b.F, done))
	}
	want := []string{"%2: ? = len(%0)", "rc_dec %0", "%3: ? = apply show(%2)"}
	if diff := cmp.Diff(want, body(b.F, use)); diff != "" {
		t.Errorf("use block mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertAfterInference(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("size", e.bt.Int)
	l := b.Param("l", e.bt.String, arc.Borrowed)
	b.Return(b.Prim(e.bt.Int, arc.OpLen, l))
	m := &arc.Module{Types: e.in, Funcs: []*arc.Func{b.F}}

	sigs := ownership.InferSignatures(m, e.cls, nil)
	ownership.Apply(m, sigs)
	st := insert(t, e, b.F, sigs)
	if st.Incs != 0 || st.Decs != 0 {
		t.Errorf("a borrowed read needs no RC, got %+v", st)
	}
}
