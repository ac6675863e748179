package rcelim_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcc/internal/arc"
	"arcc/internal/ownership"
	"arcc/internal/rcelim"
	"arcc/internal/rcinsert"
	"arcc/internal/types"
)

type env struct {
	in   *types.Interner
	bt   types.Builtins
	box  types.TypeID
	pair types.TypeID
	cls  *types.Classifier
	sigs arc.SignatureMap
}

func newEnv() *env {
	in := types.NewInterner()
	bt := in.Builtins()
	box := in.RegisterStruct("Box")
	in.SetStructFields(box, []types.Field{{Name: "v", Type: bt.String}})
	pair := in.RegisterStruct("Pair")
	in.SetStructFields(pair, []types.Field{{Name: "a", Type: box}, {Name: "b", Type: box}})
	return &env{
		in: in, bt: bt, box: box, pair: pair,
		cls: types.NewClassifier(in),
		sigs: arc.SignatureMap{
			"show": {arc.Borrowed},
			"peek": {arc.Borrowed},
			"take": {arc.Owned},
		},
	}
}

func body(f *arc.Func, blk arc.BlockID) []string {
	b := f.Block(blk)
	out := make([]string, len(b.Instrs))
	for i := range b.Instrs {
		out[i] = arc.FormatInstr(&b.Instrs[i], nil, nil)
	}
	return out
}

func optimize(t *testing.T, e *env, f *arc.Func) rcelim.Stats {
	t.Helper()
	st, err := rcelim.Optimize(f, e.sigs)
	if err != nil {
		t.Fatal(err)
	}
	if err := arc.ValidateFunc(f); err != nil {
		t.Fatalf("invalid IR after elimination: %v", err)
	}
	return st
}

func identities(t *testing.T, f *arc.Func) *ownership.IdentityMap {
	t.Helper()
	ids, err := ownership.NewIdentityMap(f, ownership.Derive(f, f.Signature()))
	if err != nil {
		t.Fatal(err)
	}
	return ids
}

// guarded: p is retained around a region that retains and releases p.a.
func guarded(e *env) *arc.Func {
	b := arc.NewBuilder("guarded", e.bt.Unit)
	p := b.Param("p", e.pair, arc.Owned)
	a := b.Project(e.box, p, 0)
	b.Emit(arc.Inc(p, 1))
	b.Emit(arc.Inc(a, 1))
	b.Apply(e.bt.Unit, "show", a)
	b.Apply(e.bt.Unit, "peek", p)
	b.Emit(arc.Dec(a))
	b.Emit(arc.Dec(p))
	b.Emit(arc.Dec(p))
	b.Return(arc.NoVar)
	return b.F
}

func TestGuards(t *testing.T) {
	e := newEnv()
	f := guarded(e)
	got := rcelim.Guards(f, 0, identities(t, f), e.sigs)
	want := []rcelim.GuardInterval{
		{Block: 0, Guard: 0, Start: 1, End: 6},
		{Block: 0, Guard: 1, Start: 2, End: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("guards mismatch (-want +got):\n%s", diff)
	}
}

func TestKnownSafeThenIdentity(t *testing.T) {
	e := newEnv()
	f := guarded(e)
	st := optimize(t, e, f)
	if st.KnownSafe != 1 || st.Identity != 1 || st.Pairs() != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	want := []string{
		"%1: ? = project %0.0",
		"%2: ? = apply show(%1)",
		"%3: ? = apply peek(%0)",
		"rc_dec %0",
	}
	if diff := cmp.Diff(want, body(f, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestGuardBrokenByConsume(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("moved", e.bt.Unit)
	p := b.Param("p", e.pair, arc.Owned)
	a := b.Project(e.box, p, 0)
	b.Emit(arc.Inc(p, 1))
	b.Emit(arc.Inc(a, 1))
	b.Apply(e.bt.Unit, "take", p)
	b.Apply(e.bt.Unit, "show", a)
	b.Emit(arc.Dec(a))
	b.Emit(arc.Dec(p))
	b.Return(arc.NoVar)

	got := rcelim.Guards(b.F, 0, identities(t, b.F), e.sigs)
	for _, g := range got {
		if g.Guard == p {
			t.Errorf("a consumed retain is not a guard: %+v", g)
		}
	}
	st := optimize(t, e, b.F)
	if st.KnownSafe != 0 {
		t.Errorf("nested pair must survive, got %+v", st)
	}
}

func TestIdentityBorrowedRoot(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("look", e.bt.Unit)
	p := b.Param("p", e.pair, arc.Borrowed)
	a := b.Project(e.box, p, 0)
	b.Emit(arc.Inc(a, 1))
	b.Apply(e.bt.Unit, "show", a)
	b.Emit(arc.Dec(a))
	b.Return(arc.NoVar)

	st := optimize(t, e, b.F)
	if st.Identity != 1 {
		t.Errorf("expected one identity pair, got %+v", st)
	}
	if diff := cmp.Diff([]string{"%1: ? = project %0.0", "%2: ? = apply show(%1)"}, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentityKeepsPairWhenRootReleasedEarly(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("outlive", e.bt.Unit)
	p := b.Param("p", e.pair, arc.Owned)
	a := b.Project(e.box, p, 0)
	b.Emit(arc.Inc(a, 1))
	b.Emit(arc.Dec(p))
	b.Apply(e.bt.Unit, "show", a)
	b.Emit(arc.Dec(a))
	b.Return(arc.NoVar)
	before := body(b.F, 0)

	st := optimize(t, e, b.F)
	if st.Pairs() != 0 {
		t.Errorf("p dies before the release of p.a, nothing may go: %+v", st)
	}
	if diff := cmp.Diff(before, body(b.F, 0)); diff != "" {
		t.Errorf("body changed (-before +after):\n%s", diff)
	}
}

func TestBatchedIntraBlock(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *arc.Builder, x arc.VarID)
		pairs int
		want  []string
	}{
		{
			name: "adjacent",
			build: func(b *arc.Builder, x arc.VarID) {
				b.Emit(arc.Inc(x, 1))
				b.Emit(arc.Dec(x))
			},
			pairs: 1,
			want:  []string{},
		},
		{
			name: "counted retain is decremented",
			build: func(b *arc.Builder, x arc.VarID) {
				b.Emit(arc.Inc(x, 3))
				b.Emit(arc.Dec(x))
			},
			pairs: 1,
			want:  []string{"rc_inc %0 x2"},
		},
		{
			name: "release before retain",
			build: func(b *arc.Builder, x arc.VarID) {
				b.Emit(arc.Dec(x))
				b.Emit(arc.Inc(x, 1))
			},
			want: []string{"rc_dec %0", "rc_inc %0"},
		},
		{
			name: "is_shared is a use",
			build: func(b *arc.Builder, x arc.VarID) {
				b.Emit(arc.Inc(x, 1))
				b.Emit(arc.Instr{Kind: arc.InstrIsShared, IsShared: arc.IsSharedInstr{Dst: b.F.NewVar("", 0), Var: x}})
				b.Emit(arc.Dec(x))
			},
			want: []string{"rc_inc %0", "%1: bool = is_shared %0", "rc_dec %0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			b := arc.NewBuilder("leak", e.bt.Unit)
			x := b.Param("x", e.box, arc.Owned)
			tt.build(b, x)
			b.Return(arc.NoVar)

			st := optimize(t, e, b.F)
			if st.Batched != tt.pairs {
				t.Errorf("expected %d batched pairs, got %+v", tt.pairs, st)
			}
			if diff := cmp.Diff(tt.want, body(b.F, 0)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFoldAdjacentRetains(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("twice", e.pair)
	x := b.Param("x", e.box, arc.Owned)
	y := b.Copy(x)
	b.Emit(arc.Inc(x, 1))
	b.Emit(arc.Inc(y, 2))
	b.Return(b.Construct(e.pair, arc.Ctor{Kind: arc.CtorStruct}, x, y))

	st := optimize(t, e, b.F)
	if st.Folded != 1 || st.Pairs() != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	want := []string{"%1: ? = %0", "rc_inc %0 x3", "%2: ? = construct struct(%0, %1)"}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossBlock(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("split", e.bt.Unit)
	x := b.Param("x", e.box, arc.Owned)
	c := b.Param("c", e.bt.Bool, arc.Owned)
	left, right := b.NewBlock(), b.NewBlock()
	b.Emit(arc.Inc(x, 1))
	b.Branch(c, left, right)

	b.SetBlock(left)
	b.Emit(arc.Dec(x))
	b.Apply(e.bt.Unit, "take", x)
	b.Return(arc.NoVar)

	b.SetBlock(right)
	b.Emit(arc.Dec(x))
	b.Emit(arc.Dec(x))
	b.Return(arc.NoVar)

	st := optimize(t, e, b.F)
	if st.CrossBlock != 1 {
		t.Fatalf("expected one cross-block pair, got %+v", st)
	}
	if len(body(b.F, 0)) != 0 {
		t.Errorf("entry retain must be gone, got %v", body(b.F, 0))
	}
	if diff := cmp.Diff([]string{"%2: ? = apply take(%0)"}, body(b.F, left)); diff != "" {
		t.Errorf("left mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rc_dec %0"}, body(b.F, right)); diff != "" {
		t.Errorf("right mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinPoint(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("merge", e.bt.Unit)
	x := b.Param("x", e.box, arc.Owned)
	c := b.Param("c", e.bt.Bool, arc.Owned)
	left, right, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
	b.Branch(c, left, right)

	b.SetBlock(left)
	b.Apply(e.bt.Unit, "show", x)
	b.Emit(arc.Inc(x, 1))
	b.Jump(join)

	b.SetBlock(right)
	b.Emit(arc.Inc(x, 1))
	b.Jump(join)

	b.SetBlock(join)
	b.Emit(arc.Dec(x))
	b.Apply(e.bt.Unit, "take", x)
	b.Return(arc.NoVar)

	st := optimize(t, e, b.F)
	if st.JoinPoint != 1 {
		t.Fatalf("expected one join-point pair, got %+v", st)
	}
	if diff := cmp.Diff([]string{"%2: ? = apply show(%0)"}, body(b.F, left)); diff != "" {
		t.Errorf("left mismatch (-want +got):\n%s", diff)
	}
	if len(body(b.F, right)) != 0 {
		t.Errorf("right must be empty, got %v", body(b.F, right))
	}
	if diff := cmp.Diff([]string{"%3: ? = apply take(%0)"}, body(b.F, join)); diff != "" {
		t.Errorf("join mismatch (-want +got):\n%s", diff)
	}
}

func TestIdempotent(t *testing.T) {
	e := newEnv()
	builders := []func() *arc.Func{
		func() *arc.Func { return guarded(e) },
		func() *arc.Func {
			// swap(p) = Pair(p.b, p.a) with p also shown
			b := arc.NewBuilder("swap", e.pair)
			p := b.Param("p", e.pair, arc.Owned)
			b.Apply(e.bt.Unit, "show", p)
			x := b.Project(e.box, p, 0)
			y := b.Project(e.box, p, 1)
			b.Return(b.Construct(e.pair, arc.Ctor{Kind: arc.CtorStruct}, y, x))
			return b.F
		},
		func() *arc.Func {
			// twice(s, c) = if c { take(s); take(s) } else { show(s) }
			b := arc.NewBuilder("twice", e.bt.Unit)
			s := b.Param("s", e.bt.String, arc.Owned)
			c := b.Param("c", e.bt.Bool, arc.Owned)
			yes, no := b.NewBlock(), b.NewBlock()
			b.Branch(c, yes, no)
			b.SetBlock(yes)
			b.Apply(e.bt.Unit, "take", s)
			b.Apply(e.bt.Unit, "take", s)
			b.Return(arc.NoVar)
			b.SetBlock(no)
			b.Apply(e.bt.Unit, "show", s)
			b.Return(arc.NoVar)
			return b.F
		},
	}
	for _, build := range builders {
		f := build()
		if f.Name != "guarded" {
			rcinsert.Insert(f, e.sigs, e.cls)
		}
		optimize(t, e, f)
		var first strings.Builder
		if err := arc.DumpFunc(&first, f, nil); err != nil {
			t.Fatal(err)
		}
		st := optimize(t, e, f)
		var second strings.Builder
		if err := arc.DumpFunc(&second, f, nil); err != nil {
			t.Fatal(err)
		}
		if st != (rcelim.Stats{}) {
			t.Errorf("%s: second run changed %+v", f.Name, st)
		}
		if diff := cmp.Diff(first.String(), second.String()); diff != "" {
			t.Errorf("%s: second run rewrote the body (-first +second):\n%s", f.Name, diff)
		}
	}
}
