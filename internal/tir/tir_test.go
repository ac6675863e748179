package tir_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcc/internal/arc"
	"arcc/internal/diag"
	"arcc/internal/source"
	"arcc/internal/tir"
	"arcc/internal/types"
)

const listModule = `types:
  - enum: List
    variants:
      - {name: Nil}
      - {name: Cons, fields: [{name: head, type: int}, {name: tail, type: List}]}
  - struct: Box
    fields: [{name: v, type: str}, {name: n, type: int}]
externs:
  - {name: show, params: [{type: str, ownership: borrowed}], result: unit}
functions:
  - name: bump
    fbip: required
    params: [{name: l, type: List}]
    result: List
    blocks:
      - name: entry
        instrs:
          - {op: let, dst: t, type: int, prim: tag, args: [l]}
        term: {switch: t, cases: {1: cons, 0: done}}
      - name: done
        term: {return: l}
      - name: cons
        instrs:
          - {op: project, dst: h, value: l, variant: Cons, field: head}
          - {op: project, dst: rest, value: l, variant: Cons, field: 1}
          - {op: let, dst: one, type: int, lit: 1}
          - {op: let, dst: h2, type: int, prim: add, args: [h, one]}
          - {op: construct, dst: r, type: List, variant: Cons, args: [h2, rest]}
        term: {return: r}
  - name: label
    params: [{name: b, type: Box, ownership: owned}]
    result: str
    blocks:
      - instrs:
          - {op: project, dst: s, value: b, field: v}
          - {op: let, dst: c, var: s}
          - {op: apply, func: show, args: [c]}
          - {op: let, dst: greeting, type: str, lit: "hi"}
        term: {return: greeting}
`

func read(t *testing.T, src string) (*arc.Module, *diag.Bag, error) {
	t.Helper()
	fs := source.NewFileSet()
	id := fs.AddVirtual("test.tir.yaml", []byte(src))
	bag := diag.NewBag(32)
	m, err := tir.Read(fs, id, diag.BagReporter{Bag: bag})
	return m, bag, err
}

func TestReadModule(t *testing.T) {
	m, bag, err := read(t, listModule)
	if err != nil {
		t.Fatalf("unexpected error: %v (%+v)", err, bag.Items())
	}
	if len(m.Funcs) != 2 || len(m.Externs) != 1 {
		t.Fatalf("expected 2 functions and 1 extern, got %d and %d", len(m.Funcs), len(m.Externs))
	}
	if diff := cmp.Diff(arc.Signature{arc.Borrowed}, m.Externs[0].Sig); diff != "" {
		t.Errorf("extern signature mismatch (-want +got):\n%s", diff)
	}

	bump := m.Func("bump")
	if bump.FBIP != arc.FBIPRequired {
		t.Errorf("expected fbip=required, got %s", bump.FBIP)
	}
	var sb strings.Builder
	if err := arc.DumpFunc(&sb, bump, m.Types); err != nil {
		t.Fatal(err)
	}
	want := `fn bump(%0: List owned) -> List fbip=required {
bb0 entry:
  %1: int = tag(%0)
  switch %1 [0 => bb1, 1 => bb2]
bb1:
  return %0
bb2:
  %2: int = project %0.0
  %3: List = project %0.1
  %4: int = 1
  %5: int = add(%2, %4)
  %6: List = construct variant#1(%5, %3)
  return %6
}
`
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	label := m.Func("label")
	if !label.Params[0].Declared || label.Params[0].Ownership != arc.Owned {
		t.Errorf("declared owned marker lost: %+v", label.Params[0])
	}
	if bump.Params[0].Declared {
		t.Errorf("unmarked parameter must not be declared")
	}
	bt := m.Types.Builtins()
	if got := label.VarType(2); got != bt.String {
		t.Errorf("copy must take the type of its source, got %s", m.Types.String(got))
	}
	body := label.Block(0).Instrs
	if body[2].Kind != arc.InstrApply || label.VarType(body[2].Apply.Dst) != bt.Unit {
		t.Errorf("call without a destination must bind a unit value")
	}
	if lit := body[3].Let.Value.Lit; lit.Kind != arc.LitString || lit.Str != "hi" {
		t.Errorf("unexpected literal %+v", lit)
	}
	if body[0].Span.Empty() {
		t.Errorf("instructions must carry spans")
	}
}

func TestParseTypes(t *testing.T) {
	src := `types:
  - opaque: Handle
functions:
  - name: f
    params:
      - {name: a, type: "map[str, list[int]]"}
      - {name: b, type: "(int, str)"}
      - {name: c, type: "fn(int, str) -> bool"}
      - {name: d, type: "set[Handle]"}
      - {name: e, type: "()"}
    blocks:
      - term: {return: ()}
`
	m, bag, err := read(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v (%+v)", err, bag.Items())
	}
	f := m.Funcs[0]
	var got []string
	for _, p := range f.Params {
		got = append(got, m.Types.String(f.VarType(p.Var)))
	}
	want := []string{"map[str, list[int]]", "(int, str)", "fn(int, str) -> bool", "set[Handle]", "unit"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	if f.Block(0).Term.Return.Value != arc.NoVar {
		t.Errorf("unit return must carry no value")
	}
}

func TestNamesAreNormalized(t *testing.T) {
	src := "types:\n  - struct: \"Cafe\u0301\"\n    fields: [{name: x, type: int}]\nfunctions:\n  - name: f\n    params: [{name: p, type: \"Café\"}]\n    blocks:\n      - term: {return: ()}\n"
	m, bag, err := read(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v (%+v)", err, bag.Items())
	}
	id, ok := m.Types.ByName("Café")
	if !ok || m.Funcs[0].VarType(0) != id {
		t.Errorf("decomposed and composed spellings must name the same type")
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
		line uint32
	}{
		{
			name: "syntax",
			src:  "functions: [\n",
			code: diag.TirSyntax,
			line: 1,
		},
		{
			name: "unknown type",
			src:  "functions:\n  - name: f\n    params: [{name: p, type: Nope}]\n    blocks:\n      - term: {return: ()}\n",
			code: diag.TirUnknownType,
			line: 2,
		},
		{
			name: "unknown variable",
			src:  "functions:\n  - name: f\n    blocks:\n      - instrs:\n          - {op: apply, func: g, args: [x]}\n        term: {return: ()}\n",
			code: diag.TirUnknownVar,
			line: 5,
		},
		{
			name: "unknown block",
			src:  "functions:\n  - name: f\n    blocks:\n      - term: {jump: nowhere}\n",
			code: diag.TirUnknownBlock,
			line: 4,
		},
		{
			name: "bad fbip marker",
			src:  "functions:\n  - name: f\n    fbip: always\n    blocks:\n      - term: {return: ()}\n",
			code: diag.TirBadFBIPMode,
			line: 2,
		},
		{
			name: "duplicate function",
			src:  "functions:\n  - name: f\n    blocks:\n      - term: {return: ()}\n  - name: f\n    blocks:\n      - term: {return: ()}\n",
			code: diag.TirDuplicateFunc,
			line: 5,
		},
		{
			name: "duplicate variable",
			src:  "functions:\n  - name: f\n    params: [{name: a, type: int}]\n    blocks:\n      - instrs:\n          - {op: let, dst: a, type: int, lit: 1}\n        term: {return: a}\n",
			code: diag.TirDuplicateName,
			line: 6,
		},
		{
			name: "invalid body",
			src:  "functions:\n  - name: f\n    params: [{name: c, type: bool}]\n    blocks:\n      - term: {branch: c, then: bb1, else: bb1}\n      - params: [{name: x, type: int}]\n        term: {return: ()}\n",
			code: diag.TirInvalidFunc,
			line: 2,
		},
		{
			name: "return type",
			src:  "functions:\n  - name: f\n    blocks:\n      - instrs:\n          - {op: let, dst: s, type: str, lit: hi}\n        term: {return: s}\n",
			code: diag.TirTypeMismatch,
			line: 6,
		},
		{
			name: "constructor field type",
			src:  "types:\n  - struct: Box\n    fields: [{name: s, type: str}]\nfunctions:\n  - name: f\n    result: Box\n    blocks:\n      - instrs:\n          - {op: let, dst: n, type: int, lit: 3}\n          - {op: construct, dst: b, type: Box, args: [n]}\n        term: {return: b}\n",
			code: diag.TirTypeMismatch,
			line: 10,
		},
		{
			name: "constructor arity",
			src:  "types:\n  - struct: P\n    fields: [{name: a, type: str}, {name: b, type: str}]\nfunctions:\n  - name: f\n    params: [{name: s, type: str}]\n    result: P\n    blocks:\n      - instrs:\n          - {op: construct, dst: p, type: P, args: [s]}\n        term: {return: p}\n",
			code: diag.TirArity,
			line: 10,
		},
		{
			name: "argument type of a later function",
			src:  "functions:\n  - name: f\n    blocks:\n      - instrs:\n          - {op: let, dst: n, type: int, lit: 1}\n          - {op: apply, func: g, args: [n]}\n        term: {return: ()}\n  - name: g\n    params: [{name: b, type: str}]\n    blocks:\n      - term: {return: ()}\n",
			code: diag.TirTypeMismatch,
			line: 6,
		},
		{
			name: "call arity",
			src:  "functions:\n  - name: g\n    params: [{name: a, type: str}, {name: b, type: str}]\n    blocks:\n      - term: {return: ()}\n  - name: f\n    params: [{name: s, type: str}]\n    blocks:\n      - instrs:\n          - {op: apply, func: g, args: [s]}\n        term: {return: ()}\n",
			code: diag.TirArity,
			line: 10,
		},
		{
			name: "jump argument type",
			src:  "functions:\n  - name: f\n    blocks:\n      - instrs:\n          - {op: let, dst: s, type: str, lit: hi}\n        term: {jump: next, args: [s]}\n      - name: next\n        params: [{name: x, type: int}]\n        term: {return: ()}\n",
			code: diag.TirTypeMismatch,
			line: 6,
		},
		{
			name: "extern argument type",
			src:  "externs:\n  - {name: show, params: [{type: str}], result: unit}\nfunctions:\n  - name: f\n    blocks:\n      - instrs:\n          - {op: let, dst: n, type: int, lit: 1}\n          - {op: apply, func: show, args: [n]}\n        term: {return: ()}\n",
			code: diag.TirTypeMismatch,
			line: 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := source.NewFileSet()
			id := fs.AddVirtual("bad.tir.yaml", []byte(tt.src))
			bag := diag.NewBag(8)
			m, err := tir.Read(fs, id, diag.BagReporter{Bag: bag})
			if !errors.Is(err, tir.ErrInvalid) || m != nil {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if bag.Len() == 0 {
				t.Fatal("expected a diagnostic")
			}
			d := bag.Items()[0]
			if d.Code != tt.code {
				t.Errorf("expected %s, got %s: %s", tt.code.ID(), d.Code.ID(), d.Message)
			}
			start, _ := fs.Resolve(d.Primary)
			if start.Line != tt.line {
				t.Errorf("expected the diagnostic on line %d, got %d", tt.line, start.Line)
			}
		})
	}
}

func TestReadFeedsClassifier(t *testing.T) {
	m, _, err := read(t, listModule)
	if err != nil {
		t.Fatal(err)
	}
	cls := types.NewClassifier(m.Types)
	list, _ := m.Types.ByName("List")
	if cls.Class(list) != types.DefiniteRef {
		t.Errorf("List must be a counted type")
	}
}
