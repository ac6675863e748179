package ownership_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcc/internal/arc"
	"arcc/internal/ownership"
	"arcc/internal/types"
)

type fixture struct {
	in   *types.Interner
	bt   types.Builtins
	box  types.TypeID // struct Box { v: str }
	pair types.TypeID // struct Pair { a: Box, b: Box }
	list types.TypeID
}

func newFixture() *fixture {
	in := types.NewInterner()
	bt := in.Builtins()
	box := in.RegisterStruct("Box")
	in.SetStructFields(box, []types.Field{{Name: "v", Type: bt.String}})
	pair := in.RegisterStruct("Pair")
	in.SetStructFields(pair, []types.Field{{Name: "a", Type: box}, {Name: "b", Type: box}})
	return &fixture{in: in, bt: bt, box: box, pair: pair, list: in.Intern(types.MakeList(bt.Int))}
}

func (fx *fixture) module(funcs ...*arc.Func) *arc.Module {
	return &arc.Module{Types: fx.in, Funcs: funcs}
}

func TestInferSignatures(t *testing.T) {
	fx := newFixture()

	// length(l) = len(l): only reads.
	b := arc.NewBuilder("length", fx.bt.Int)
	l := b.Param("l", fx.list, arc.Borrowed)
	b.Return(b.Prim(fx.bt.Int, arc.OpLen, l))
	length := b.F

	// ident(x) = x
	b = arc.NewBuilder("ident", fx.bt.String)
	b.Return(b.Param("x", fx.bt.String, arc.Borrowed))
	ident := b.F

	// wrap(s, n) = Box(s); n is scalar.
	b = arc.NewBuilder("wrap", fx.box)
	s := b.Param("s", fx.bt.String, arc.Borrowed)
	b.Param("n", fx.bt.Int, arc.Borrowed)
	b.Return(b.Construct(fx.box, arc.Ctor{Kind: arc.CtorStruct}, s))
	wrap := b.F

	// forward(s) = wrap(s, 1); measure(l) = length(l)
	b = arc.NewBuilder("forward", fx.box)
	s = b.Param("s", fx.bt.String, arc.Borrowed)
	b.Return(b.Apply(fx.box, "wrap", s, b.Int(fx.bt.Int, 1)))
	forward := b.F

	b = arc.NewBuilder("measure", fx.bt.Int)
	l = b.Param("l", fx.list, arc.Borrowed)
	b.Return(b.Apply(fx.bt.Int, "length", l))
	measure := b.F

	// first(p) = p.a projects a reference out of p.
	b = arc.NewBuilder("first", fx.box)
	p := b.Param("p", fx.pair, arc.Borrowed)
	b.Return(b.Project(fx.box, p, 0))
	first := b.F

	m := fx.module(length, ident, wrap, forward, measure, first)
	sigs := ownership.InferSignatures(m, types.NewClassifier(fx.in), nil)

	want := arc.SignatureMap{
		"length":  {arc.Borrowed},
		"ident":   {arc.Owned},
		"wrap":    {arc.Owned, arc.Owned},
		"forward": {arc.Owned},
		"measure": {arc.Borrowed},
		"first":   {arc.Owned},
	}
	if diff := cmp.Diff(want, sigs); diff != "" {
		t.Errorf("signatures mismatch (-want +got):\n%s", diff)
	}

	ownership.Apply(m, sigs)
	if ident.Params[0].Ownership != arc.Owned || length.Params[0].Ownership != arc.Borrowed {
		t.Error("Apply must copy signatures onto params")
	}
}

func TestInferSignaturesMutualRecursion(t *testing.T) {
	fx := newFixture()
	// ping(x, c) = pong(x, c); pong(x, c) = if c { ping(x, c) } else { x }
	b := arc.NewBuilder("ping", fx.bt.String)
	x := b.Param("x", fx.bt.String, arc.Borrowed)
	c := b.Param("c", fx.bt.Bool, arc.Owned)
	b.Return(b.Apply(fx.bt.String, "pong", x, c))
	ping := b.F

	b = arc.NewBuilder("pong", fx.bt.String)
	x = b.Param("x", fx.bt.String, arc.Borrowed)
	c = b.Param("c", fx.bt.Bool, arc.Owned)
	again, done := b.NewBlock(), b.NewBlock()
	b.Branch(c, again, done)
	b.SetBlock(again)
	b.Return(b.Apply(fx.bt.String, "ping", x, c))
	b.SetBlock(done)
	b.Return(x)
	pong := b.F

	sigs := ownership.InferSignatures(fx.module(ping, pong), types.NewClassifier(fx.in), nil)
	if sigs["ping"][0] != arc.Owned || sigs["pong"][0] != arc.Owned {
		t.Errorf("expected both owned, got %v", sigs)
	}
}

func TestDeclaredAndClosureParams(t *testing.T) {
	fx := newFixture()
	b := arc.NewBuilder("pinned", fx.bt.Int)
	s := b.Param("s", fx.bt.String, arc.Owned)
	b.F.Params[0].Declared = true
	b.Return(b.Prim(fx.bt.Int, arc.OpLen, s))
	pinned := b.F

	b = arc.NewBuilder("callback", fx.bt.Int)
	s = b.Param("s", fx.bt.String, arc.Borrowed)
	b.Return(b.Prim(fx.bt.Int, arc.OpLen, s))
	callback := b.F

	b = arc.NewBuilder("make", fx.in.Fn(nil, fx.bt.Int))
	s = b.Param("s", fx.bt.String, arc.Borrowed)
	b.Return(b.PartialApply(fx.in.Fn(nil, fx.bt.Int), "callback", s))
	mk := b.F

	sigs := ownership.InferSignatures(fx.module(pinned, callback, mk), types.NewClassifier(fx.in), nil)
	if sigs["pinned"][0] != arc.Owned {
		t.Error("declared owned param must stay owned")
	}
	if sigs["callback"][0] != arc.Owned {
		t.Error("closure targets take every param owned")
	}
	if sigs["make"][0] != arc.Owned {
		t.Error("captured param must be owned")
	}
}

func TestSignatureCacheInvalidation(t *testing.T) {
	fx := newFixture()
	cls := types.NewClassifier(fx.in)

	build := func(calleeReturnsArg bool) *arc.Module {
		b := arc.NewBuilder("callee", fx.bt.Int)
		x := b.Param("x", fx.bt.String, arc.Borrowed)
		if calleeReturnsArg {
			b.Apply(fx.bt.Int, "sink", x)
		}
		b.Return(b.Prim(fx.bt.Int, arc.OpLen, x))
		callee := b.F

		b = arc.NewBuilder("caller", fx.bt.Int)
		y := b.Param("y", fx.bt.String, arc.Borrowed)
		b.Return(b.Apply(fx.bt.Int, "callee", y))
		caller := b.F

		b = arc.NewBuilder("other", fx.bt.Int)
		b.Return(b.Int(fx.bt.Int, 7))
		other := b.F
		return fx.module(callee, caller, other)
	}

	cache := ownership.NewSignatureCache()
	first := ownership.InferSignatures(build(false), cls, cache)
	if cache.Misses() != 3 {
		t.Fatalf("cold cache: expected 3 misses, got %d", cache.Misses())
	}
	again := ownership.InferSignatures(build(false), cls, cache)
	if cache.Hits() != 3 || cache.Misses() != 0 {
		t.Errorf("warm cache: expected 3 hits, got %d hits %d misses", cache.Hits(), cache.Misses())
	}
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("cached result differs (-cold +warm):\n%s", diff)
	}

	// callee now passes x to an unknown function, so it must own x; caller's
	// entry is stale through its dependency even though its body is equal.
	changed := ownership.InferSignatures(build(true), cls, cache)
	if cache.Misses() != 2 || cache.Hits() != 1 {
		t.Errorf("expected callee and caller recomputed, got %d hits %d misses", cache.Hits(), cache.Misses())
	}
	if changed["caller"][0] != arc.Owned {
		t.Errorf("caller must observe callee's new signature, got %v", changed["caller"])
	}
}

func TestIdentityMapChains(t *testing.T) {
	fx := newFixture()
	b := arc.NewBuilder("chain", fx.bt.String)
	c := b.Param("c", fx.pair, arc.Owned)
	bv := b.Project(fx.box, c, 0)
	a := b.Project(fx.bt.String, bv, 0)
	alias := b.Copy(a)
	fresh := b.Construct(fx.box, arc.Ctor{Kind: arc.CtorStruct}, alias)
	b.Return(b.Project(fx.bt.String, fresh, 0))
	f := b.F

	derived := ownership.Derive(f, nil)
	if derived[bv].Kind != ownership.BorrowedFrom || derived[bv].Source != c {
		t.Errorf("unexpected derived for b: %v", derived[bv])
	}
	if derived[fresh].Kind != ownership.Fresh || derived[c].Kind != ownership.Owned {
		t.Errorf("unexpected derived kinds: fresh=%v c=%v", derived[fresh], derived[c])
	}

	ids, err := ownership.NewIdentityMap(f, derived)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []arc.VarID{a, bv, c, alias} {
		if got := ids.Root(v); got != c {
			t.Errorf("root(%s): expected %s, got %s", v, c, got)
		}
	}
	if ids.Root(fresh) != fresh || ids.Root(c) != c {
		t.Error("fresh and owned variables are their own roots")
	}
	if !ids.SameObject(a, alias) || ids.SameObject(a, bv) {
		t.Error("copies share identity, projections do not")
	}
	if !ids.Covers(c, a) || !ids.Covers(bv, alias) || ids.Covers(a, bv) {
		t.Error("unexpected coverage")
	}
	if diff := cmp.Diff([]arc.VarID{a, alias}, ids.Members(alias)); diff != "" {
		t.Errorf("members mismatch:\n%s", diff)
	}
}

func TestIdentityMapCycle(t *testing.T) {
	fx := newFixture()
	b := arc.NewBuilder("loop", fx.bt.Unit)
	x := b.Param("x", fx.box, arc.Owned)
	y := b.Param("y", fx.box, arc.Owned)
	b.Return(arc.NoVar)

	derived := make([]ownership.Derived, len(b.F.Vars))
	derived[x] = ownership.Derived{Kind: ownership.BorrowedFrom, Source: y}
	derived[y] = ownership.Derived{Kind: ownership.BorrowedFrom, Source: x}
	_, err := ownership.NewIdentityMap(b.F, derived)
	if !errors.Is(err, ownership.ErrOwnershipCycle) {
		t.Fatalf("expected ErrOwnershipCycle, got %v", err)
	}
}

func TestDeriveBorrowedParam(t *testing.T) {
	fx := newFixture()
	b := arc.NewBuilder("peek", fx.bt.Int)
	l := b.Param("l", fx.list, arc.Borrowed)
	b.Return(b.Prim(fx.bt.Int, arc.OpLen, l))
	derived := ownership.Derive(b.F, arc.Signature{arc.Borrowed})
	if derived[l].Kind != ownership.BorrowedParam {
		t.Errorf("expected borrowed param, got %v", derived[l])
	}
	derived = ownership.Derive(b.F, arc.Signature{arc.Owned})
	if derived[l].Kind != ownership.Owned {
		t.Errorf("expected owned, got %v", derived[l])
	}
}
