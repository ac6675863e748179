package arc

import (
	"slices"

	"arcc/internal/source"
	"arcc/internal/types"
)

// Var is an entry of the function's variable table.
type Var struct {
	Name string
	Type types.TypeID
}

// Param is a function parameter.
type Param struct {
	Var VarID
	// Ownership is the calling convention. Before borrow inference it holds
	// the declared marker; inference may only turn Borrowed into Owned.
	Ownership Ownership
	// Declared is set when the input pinned the convention explicitly.
	Declared bool
}

// ReuseSite records one reset/reuse rewrite for the FBIP checker.
type ReuseSite struct {
	Block BlockID // block that held the release
	Fast  BlockID // NoBlock when the fast path was inlined
	Slow  BlockID // NoBlock when uniqueness was proven statically
	Var   VarID   // the reused value
	Type  types.TypeID
	Span  source.Span
}

// Func is one compiled function.
type Func struct {
	Name   string
	Span   source.Span
	Params []Param
	Result types.TypeID
	Vars   []Var
	Blocks []Block
	Entry  BlockID
	FBIP   FBIPMode

	// FBIPDeclared is set when the input carried an explicit marker.
	FBIPDeclared bool
	ReuseSites   []ReuseSite
}

// NewVar appends a variable to the table.
func (f *Func) NewVar(name string, ty types.TypeID) VarID {
	id := toVarID(len(f.Vars))
	f.Vars = append(f.Vars, Var{Name: name, Type: ty})
	return id
}

// VarType returns the declared type of v.
func (f *Func) VarType(v VarID) types.TypeID {
	if int(v) >= len(f.Vars) {
		return types.NoTypeID
	}
	return f.Vars[v].Type
}

// NewBlock appends an empty block and returns its id.
func (f *Func) NewBlock() BlockID {
	id := toBlockID(len(f.Blocks))
	f.Blocks = append(f.Blocks, Block{ID: id})
	return id
}

// Block returns the block with the given id.
func (f *Func) Block(id BlockID) *Block {
	return &f.Blocks[id]
}

// ParamIndex returns the position of v among the parameters.
func (f *Func) ParamIndex(v VarID) (int, bool) {
	idx := slices.IndexFunc(f.Params, func(p Param) bool { return p.Var == v })
	return idx, idx >= 0
}

// Signature returns the current calling convention of the function.
func (f *Func) Signature() Signature {
	sig := make(Signature, len(f.Params))
	for i, p := range f.Params {
		sig[i] = p.Ownership
	}
	return sig
}

// Callees lists every function named by Apply, PartialApply or closure
// constructors, without duplicates, in first-seen order.
func (f *Func) Callees() []string {
	var out []string
	add := func(name string) {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			switch in.Kind {
			case InstrApply:
				add(in.Apply.Func)
			case InstrPartialApply:
				add(in.PartialApply.Func)
			case InstrConstruct:
				if in.Construct.Ctor.Kind == CtorClosure {
					add(in.Construct.Ctor.Func)
				}
			}
		}
	}
	return out
}

// Clone returns a deep copy that shares nothing with f.
func (f *Func) Clone() *Func {
	out := *f
	out.Params = slices.Clone(f.Params)
	out.Vars = slices.Clone(f.Vars)
	out.ReuseSites = slices.Clone(f.ReuseSites)
	out.Blocks = make([]Block, len(f.Blocks))
	for i := range f.Blocks {
		out.Blocks[i] = f.Blocks[i].Clone()
	}
	return &out
}

// CountRC returns the number of retains (weighted by count) and releases.
func (f *Func) CountRC() (incs, decs int) {
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			switch in.Kind {
			case InstrRcInc:
				incs += int(in.RcInc.Count)
			case InstrRcDec:
				decs++
			}
		}
	}
	return incs, decs
}

// Extern is a function implemented outside the module.
type Extern struct {
	Name   string
	Params []types.TypeID
	Sig    Signature
	Result types.TypeID
}

// Module groups the functions compiled together.
type Module struct {
	Types   *types.Interner
	Funcs   []*Func
	Externs []Extern
}

// Func finds a function by name.
func (m *Module) Func(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Extern finds an extern declaration by name.
func (m *Module) Extern(name string) (Extern, bool) {
	for _, e := range m.Externs {
		if e.Name == name {
			return e, true
		}
	}
	return Extern{}, false
}
