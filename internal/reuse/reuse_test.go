package reuse_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcc/internal/arc"
	"arcc/internal/rcelim"
	"arcc/internal/rcinsert"
	"arcc/internal/reuse"
	"arcc/internal/source"
	"arcc/internal/types"
)

type env struct {
	in   *types.Interner
	bt   types.Builtins
	p    types.TypeID // P { x: int, y: int }
	box  types.TypeID // Box { v: str }
	pair types.TypeID // Pair { a: Box, b: Box }
	list types.TypeID // List = Nil | Cons(head: int, tail: List)
	fn   types.TypeID
	cls  *types.Classifier
	sigs arc.SignatureMap
}

func newEnv() *env {
	in := types.NewInterner()
	bt := in.Builtins()
	e := &env{in: in, bt: bt}
	e.p = in.RegisterStruct("P")
	in.SetStructFields(e.p, []types.Field{{Name: "x", Type: bt.Int}, {Name: "y", Type: bt.Int}})
	e.box = in.RegisterStruct("Box")
	in.SetStructFields(e.box, []types.Field{{Name: "v", Type: bt.String}})
	e.pair = in.RegisterStruct("Pair")
	in.SetStructFields(e.pair, []types.Field{{Name: "a", Type: e.box}, {Name: "b", Type: e.box}})
	e.list = in.RegisterEnum("List")
	in.SetEnumVariants(e.list, []types.Variant{
		{Name: "Nil"},
		{Name: "Cons", Fields: []types.Field{{Name: "head", Type: bt.Int}, {Name: "tail", Type: e.list}}},
	})
	e.fn = in.Fn(nil, bt.Unit)
	e.cls = types.NewClassifier(in)
	e.sigs = arc.SignatureMap{
		"show":  {arc.Borrowed},
		"take":  {arc.Owned},
		"cb":    {arc.Owned},
		"empty": {},
	}
	return e
}

var structCtor = arc.Ctor{Kind: arc.CtorStruct}

func body(f *arc.Func, blk arc.BlockID) []string {
	b := f.Block(blk)
	out := make([]string, len(b.Instrs))
	for i := range b.Instrs {
		out[i] = arc.FormatInstr(&b.Instrs[i], nil, nil)
	}
	return out
}

// prepare runs insertion and elimination so the function looks like what
// the reuse pass sees in the pipeline.
func prepare(t *testing.T, e *env, f *arc.Func) reuse.Detection {
	t.Helper()
	rcinsert.Insert(f, e.sigs, e.cls)
	if _, err := rcelim.Optimize(f, e.sigs); err != nil {
		t.Fatal(err)
	}
	det, err := reuse.Detect(f, e.cls, e.sigs)
	if err != nil {
		t.Fatal(err)
	}
	return det
}

func expand(t *testing.T, e *env, f *arc.Func, det reuse.Detection) {
	t.Helper()
	if err := reuse.Expand(f, det, e.cls, e.sigs); err != nil {
		t.Fatal(err)
	}
	if err := arc.ValidateFunc(f); err != nil {
		t.Fatalf("invalid IR after expansion: %v", err)
	}
}

func missKinds(det reuse.Detection) []reuse.MissKind {
	out := make([]reuse.MissKind, len(det.Misses))
	for i, m := range det.Misses {
		out[i] = m.Reason.Kind
	}
	return out
}

// P{x: 1, y: 2} replaced by P{x: 3, y: 4} with nothing else referring to it.
func TestUniqueRecordBecomesTwoSets(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("replace", e.p)
	first := b.Construct(e.p, structCtor, b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 2))
	second := b.Construct(e.p, structCtor, b.Int(e.bt.Int, 3), b.Int(e.bt.Int, 4))
	b.Return(second)

	det := prepare(t, e, b.F)
	if len(det.Candidates) != 1 || !det.Candidates[0].Unique {
		t.Fatalf("expected one statically unique candidate, got %+v", det)
	}
	expand(t, e, b.F, det)

	want := []string{
		"%0: ? = 1",
		"%1: ? = 2",
		"%2: ? = construct struct(%0, %1)",
		"%3: ? = 3",
		"%4: ? = 4",
		"set %2.0 = %3",
		"set %2.1 = %4",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if got := b.F.Block(0).Term.Return.Value; got != first {
		t.Errorf("expected the reused cell to be returned, got %s", got)
	}
	if incs, decs := b.F.CountRC(); incs != 0 || decs != 0 {
		t.Errorf("expected no RC operations, got %d incs %d decs", incs, decs)
	}
	want2 := []arc.ReuseSite{{Block: 0, Fast: arc.NoBlock, Slow: arc.NoBlock, Var: first, Type: e.p}}
	if diff := cmp.Diff(want2, b.F.ReuseSites); diff != "" {
		t.Errorf("reuse sites mismatch (-want +got):\n%s", diff)
	}
}

// The same program with an alias of the first record kept alive across the
// replacement keeps its release and allocation.
func TestAliasedRecordKeepsReleaseAndConstruct(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("aliased", e.p)
	a, c := b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 2)
	p := b.Construct(e.p, structCtor, a, c)
	z := b.Copy(p)
	b.Apply(e.bt.Unit, "show", p)
	q := b.Construct(e.p, structCtor, b.Int(e.bt.Int, 3), b.Int(e.bt.Int, 4))
	b.Apply(e.bt.Unit, "show", z)
	b.Return(q)

	det := prepare(t, e, b.F)
	if len(det.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", det.Candidates)
	}
	if diff := cmp.Diff([]reuse.MissKind{reuse.PossiblyShared, reuse.NoMatchingConstruct}, missKinds(det)); diff != "" {
		t.Errorf("misses mismatch (-want +got):\n%s", diff)
	}
	expand(t, e, b.F, det)

	want := []string{
		"%0: ? = 1",
		"%1: ? = 2",
		"%2: ? = construct struct(%0, %1)",
		"rc_inc %2",
		"%3: ? = %2",
		"%4: ? = apply show(%2)",
		"rc_dec %2",
		"%5: ? = 3",
		"%6: ? = 4",
		"%7: ? = construct struct(%5, %6)",
		"%8: ? = apply show(%3)",
		"rc_dec %3",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

// A unique site in entry folds the second box into the first; the release
// of the second box on one branch must still be found afterwards.
func TestUniqueSiteRenameKeepsLaterSites(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("rebox", e.box)
	s := b.Param("s", e.bt.String, arc.Owned)
	c := b.Param("c", e.bt.Bool, arc.Owned)
	first := b.Construct(e.box, structCtor, s)
	second := b.Construct(e.box, structCtor, s)
	left, right, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
	r := b.BlockParam(join, "r", e.box)
	b.Branch(c, left, right)

	b.SetBlock(left)
	b.Jump(join, b.Construct(e.box, structCtor, s))

	b.SetBlock(right)
	b.Jump(join, second)

	b.SetBlock(join)
	b.Return(r)

	det := prepare(t, e, b.F)
	if len(det.Candidates) != 2 {
		t.Fatalf("expected two candidates, got %+v", det)
	}
	expand(t, e, b.F, det)

	if len(b.F.ReuseSites) != 2 {
		t.Fatalf("expected two reuse sites, got %+v", b.F.ReuseSites)
	}
	for _, site := range b.F.ReuseSites {
		if site.Var != first {
			t.Errorf("site in %s reuses %s, want %s", site.Block, site.Var, first)
		}
	}
	for bi := range b.F.Blocks {
		blk := &b.F.Blocks[bi]
		for ii := range blk.Instrs {
			if blk.Instrs[ii].UsesVar(second) {
				t.Errorf("%s still refers to the folded value: %s", blk.ID, arc.FormatInstr(&blk.Instrs[ii], nil, nil))
			}
		}
		if blk.Term.UsesVar(second) {
			t.Errorf("%s terminator still refers to the folded value", blk.ID)
		}
	}
}

func TestSharedCapableParamBranches(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("update", e.p)
	p := b.Param("p", e.p, arc.Owned)
	q := b.Construct(e.p, structCtor, b.Int(e.bt.Int, 3), b.Int(e.bt.Int, 4))
	b.Return(q)

	det := prepare(t, e, b.F)
	if len(det.Candidates) != 1 || det.Candidates[0].Unique {
		t.Fatalf("expected one dynamic candidate, got %+v", det)
	}
	expand(t, e, b.F, det)

	f := b.F
	if diff := cmp.Diff([]string{"%1: ? = 3", "%2: ? = 4", "%4: bool = is_shared %0"}, body(f, 0)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
	site := f.ReuseSites[0]
	if got := f.Block(0).Term; got.Kind != arc.TermBranch || got.Branch.Then != site.Slow || got.Branch.Else != site.Fast {
		t.Fatalf("entry must branch shared->slow, unique->fast: %s", arc.FormatTerm(&got))
	}
	if diff := cmp.Diff([]string{"set %0.0 = %1", "set %0.1 = %2"}, body(f, site.Fast)); diff != "" {
		t.Errorf("fast path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rc_dec %0", "%5: ? = construct struct(%1, %2)"}, body(f, site.Slow)); diff != "" {
		t.Errorf("slow path mismatch (-want +got):\n%s", diff)
	}
	fastTerm, slowTerm := f.Block(site.Fast).Term, f.Block(site.Slow).Term
	if arc.FormatTerm(&fastTerm) != "jump bb3(%0)" || arc.FormatTerm(&slowTerm) != "jump bb3(%5)" {
		t.Errorf("unexpected jumps: %s / %s", arc.FormatTerm(&fastTerm), arc.FormatTerm(&slowTerm))
	}
	merge := f.Block(3)
	if diff := cmp.Diff([]arc.VarID{q}, merge.Params); diff != "" {
		t.Errorf("merge params mismatch (-want +got):\n%s", diff)
	}
	if merge.Term.Kind != arc.TermReturn || merge.Term.Return.Value != q {
		t.Errorf("merge must return the allocation result")
	}
	if site.Var != p {
		t.Errorf("site must record the reused value, got %s", site.Var)
	}
}

func TestSwapClaimsBothProjections(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("swap", e.pair)
	p := b.Param("p", e.pair, arc.Owned)
	x := b.Project(e.box, p, 0)
	y := b.Project(e.box, p, 1)
	b.Return(b.Construct(e.pair, structCtor, y, x))

	det := prepare(t, e, b.F)
	expand(t, e, b.F, det)

	f := b.F
	site := f.ReuseSites[0]
	if diff := cmp.Diff([]string{"%1: ? = project %0.0", "%2: ? = project %0.1", "%4: bool = is_shared %0"}, body(f, 0)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"set %0.0 = %2", "set %0.1 = %1"}, body(f, site.Fast)); diff != "" {
		t.Errorf("fast path mismatch (-want +got):\n%s", diff)
	}
	want := []string{"rc_inc %1", "rc_inc %2", "rc_dec %0", "%5: ? = construct struct(%2, %1)"}
	if diff := cmp.Diff(want, body(f, site.Slow)); diff != "" {
		t.Errorf("slow path mismatch (-want +got):\n%s", diff)
	}
}

func TestSelfSetAndUnclaimedFieldRelease(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("setA", e.pair)
	p := b.Param("p", e.pair, arc.Owned)
	n := b.Param("n", e.box, arc.Owned)
	kept := b.Project(e.box, p, 1)
	b.Return(b.Construct(e.pair, structCtor, n, kept))

	det := prepare(t, e, b.F)
	expand(t, e, b.F, det)

	f := b.F
	site := f.ReuseSites[0]
	want := []string{"%4: ? = project %0.0", "rc_dec %4", "set %0.0 = %1"}
	if diff := cmp.Diff(want, body(f, site.Fast)); diff != "" {
		t.Errorf("fast path mismatch (-want +got):\n%s", diff)
	}
	want = []string{"rc_inc %2", "rc_dec %0", "%6: ? = construct struct(%1, %2)"}
	if diff := cmp.Diff(want, body(f, site.Slow)); diff != "" {
		t.Errorf("slow path mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumVariantFromSwitch(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("bump", e.list)
	l := b.Param("l", e.list, arc.Owned)
	tag := b.Prim(e.bt.Int, arc.OpTag, l)
	nilBlk, consBlk := b.NewBlock(), b.NewBlock()
	b.Switch(tag, []arc.SwitchCase{{Value: 0, Target: nilBlk}, {Value: 1, Target: consBlk}}, arc.NoBlock)

	b.SetBlock(nilBlk)
	b.Return(l)

	b.SetBlock(consBlk)
	h := b.Project(e.bt.Int, l, 0)
	tail := b.Project(e.list, l, 1)
	h2 := b.Prim(e.bt.Int, arc.OpAdd, h, b.Int(e.bt.Int, 1))
	b.Return(b.Construct(e.list, arc.Ctor{Kind: arc.CtorEnumVariant, Variant: 1}, h2, tail))

	det := prepare(t, e, b.F)
	if len(det.Candidates) != 1 || det.Candidates[0].OldVariant != 1 {
		t.Fatalf("expected a Cons candidate, got %+v", det)
	}
	expand(t, e, b.F, det)

	f := b.F
	site := f.ReuseSites[0]
	if site.Block != consBlk {
		t.Errorf("expected the site in %s, got %s", consBlk, site.Block)
	}
	if diff := cmp.Diff([]string{"set %0.0 = %5"}, body(f, site.Fast)); diff != "" {
		t.Errorf("fast path mismatch (-want +got):\n%s", diff)
	}
	want := []string{"rc_inc %3", "rc_dec %0", "%8: ? = construct variant#1(%5, %3)"}
	if diff := cmp.Diff(want, body(f, site.Slow)); diff != "" {
		t.Errorf("slow path mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumChangingVariantSetsTag(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("prepend", e.list)
	empty := b.Construct(e.list, arc.Ctor{Kind: arc.CtorEnumVariant, Variant: 0})
	tail := b.Apply(e.list, "empty")
	cons := b.Construct(e.list, arc.Ctor{Kind: arc.CtorEnumVariant, Variant: 1}, b.Int(e.bt.Int, 7), tail)
	b.Return(cons)

	det := prepare(t, e, b.F)
	if len(det.Candidates) != 1 || det.Candidates[0].OldVariant != 0 || !det.Candidates[0].Unique {
		t.Fatalf("expected a unique Nil candidate, got %+v", det)
	}
	expand(t, e, b.F, det)
	want := []string{
		"%0: ? = construct variant#0()",
		"%1: ? = apply empty()",
		"%2: ? = 7",
		"set_tag %0 = 1",
		"set %0.0 = %2",
		"set %0.1 = %1",
	}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if b.F.Block(0).Term.Return.Value != empty {
		t.Errorf("expected the Nil cell to be returned")
	}
}

func TestMisses(t *testing.T) {
	e := newEnv()
	span := source.Span{File: 1, Start: 40, End: 47}
	tests := []struct {
		name  string
		build func(b *arc.Builder)
		want  []reuse.MissKind
		cands int
	}{
		{
			name: "type mismatch",
			build: func(b *arc.Builder) {
				b.Param("p", e.p, arc.Owned)
				s := b.Param("s", e.bt.String, arc.Owned)
				b.Return(b.Construct(e.box, structCtor, s))
			},
			want: []reuse.MissKind{reuse.TypeMismatch},
		},
		{
			name: "nothing to reuse",
			build: func(b *arc.Builder) {
				b.Param("p", e.p, arc.Owned)
				b.Return(b.Int(e.bt.Int, 1))
			},
			want: []reuse.MissKind{reuse.NoMatchingConstruct},
		},
		{
			name: "no dominance",
			build: func(b *arc.Builder) {
				p := b.Param("p", e.p, arc.Owned)
				c := b.Param("c", e.bt.Bool, arc.Owned)
				left, right := b.NewBlock(), b.NewBlock()
				b.Branch(c, left, right)
				b.SetBlock(left)
				b.Apply(e.bt.Unit, "show", p)
				b.Return(arc.NoVar)
				b.SetBlock(right)
				q := b.Construct(e.p, structCtor, b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 2))
				b.Apply(e.bt.Unit, "take", q)
				b.Return(arc.NoVar)
			},
			want:  []reuse.MissKind{reuse.NoDominance},
			cands: 1,
		},
		{
			name: "intermediate use",
			build: func(b *arc.Builder) {
				p := b.Param("p", e.p, arc.Owned)
				one, two := b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 2)
				z := b.Copy(p)
				b.Apply(e.bt.Unit, "show", p)
				b.At(span).Apply(e.bt.Unit, "show", z)
				b.At(source.NoSpan)
				r := b.Construct(e.p, structCtor, one, two)
				b.Apply(e.bt.Unit, "take", r)
				b.Return(arc.NoVar)
			},
			want:  []reuse.MissKind{reuse.IntermediateUse},
			cands: 1,
		},
		{
			name: "captured by closure",
			build: func(b *arc.Builder) {
				p := b.Param("p", e.p, arc.Owned)
				one, two := b.Int(e.bt.Int, 1), b.Int(e.bt.Int, 2)
				k := b.PartialApply(e.fn, "cb", p)
				b.Apply(e.bt.Unit, "show", p)
				r := b.Construct(e.p, structCtor, one, two)
				b.Apply(e.bt.Unit, "take", r)
				b.Apply(e.bt.Unit, "take", k)
				b.Return(arc.NoVar)
			},
			want: []reuse.MissKind{reuse.PossiblyShared},
		},
		{
			name: "unknown variant",
			build: func(b *arc.Builder) {
				b.Param("l", e.list, arc.Owned)
				one := b.Int(e.bt.Int, 1)
				n := b.Apply(e.list, "empty")
				b.Return(b.Construct(e.list, arc.Ctor{Kind: arc.CtorEnumVariant, Variant: 1}, one, n))
			},
			want: []reuse.MissKind{reuse.UnknownVariant},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := arc.NewBuilder(tt.name, e.bt.Unit)
			tt.build(b)
			det := prepare(t, e, b.F)
			if diff := cmp.Diff(tt.want, missKinds(det)); diff != "" {
				t.Errorf("misses mismatch (-want +got):\n%s", diff)
			}
			if len(det.Candidates) != tt.cands {
				t.Errorf("expected %d candidates, got %+v", tt.cands, det.Candidates)
			}
			for _, m := range det.Misses {
				if m.Reason.Kind == reuse.IntermediateUse && m.Reason.Use != span {
					t.Errorf("intermediate use must point at the use, got %s", m.Reason.Use)
				}
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	e := newEnv()
	b := arc.NewBuilder("update", e.p)
	b.Param("p", e.p, arc.Owned)
	b.Return(b.Construct(e.p, structCtor, b.Int(e.bt.Int, 3), b.Int(e.bt.Int, 4)))

	det := prepare(t, e, b.F)
	if err := reuse.Tokenize(b.F, det); err != nil {
		t.Fatal(err)
	}
	want := []string{"%4 = reset %0", "%1: ? = 3", "%2: ? = 4", "%3: ? = reuse %4 struct(%1, %2)"}
	if diff := cmp.Diff(want, body(b.F, 0)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if err := arc.ValidateFunc(b.F); err != nil {
		t.Fatal(err)
	}
}
