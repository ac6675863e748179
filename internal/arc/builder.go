package arc

import (
	"arcc/internal/source"
	"arcc/internal/types"
)

// Builder assembles a Func block by block. The typed-IR reader and tests use
// it; passes edit Func directly.
type Builder struct {
	F    *Func
	cur  BlockID
	span source.Span
}

// NewBuilder starts a function with an empty entry block.
func NewBuilder(name string, result types.TypeID) *Builder {
	f := &Func{Name: name, Result: result}
	entry := f.NewBlock()
	f.Entry = entry
	return &Builder{F: f, cur: entry}
}

// Param declares a parameter of the function.
func (b *Builder) Param(name string, ty types.TypeID, own Ownership) VarID {
	v := b.F.NewVar(name, ty)
	b.F.Params = append(b.F.Params, Param{Var: v, Ownership: own})
	return v
}

// NewBlock appends a block without switching to it.
func (b *Builder) NewBlock() BlockID {
	return b.F.NewBlock()
}

// BlockParam adds a parameter to blk.
func (b *Builder) BlockParam(blk BlockID, name string, ty types.TypeID) VarID {
	v := b.F.NewVar(name, ty)
	b.F.Blocks[blk].Params = append(b.F.Blocks[blk].Params, v)
	return v
}

// SetBlock makes blk the insertion point.
func (b *Builder) SetBlock(blk BlockID) {
	b.cur = blk
}

// Current returns the insertion block.
func (b *Builder) Current() BlockID {
	return b.cur
}

// At sets the span attached to subsequently emitted instructions.
func (b *Builder) At(sp source.Span) *Builder {
	b.span = sp
	return b
}

// Emit appends a raw instruction.
func (b *Builder) Emit(in Instr) {
	if in.Span.Empty() {
		in.Span = b.span
	}
	blk := &b.F.Blocks[b.cur]
	blk.Instrs = append(blk.Instrs, in)
}

func (b *Builder) dst(ty types.TypeID) VarID {
	return b.F.NewVar("", ty)
}

// Lit binds a literal.
func (b *Builder) Lit(ty types.TypeID, lit Literal) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrLet, Let: LetInstr{Dst: d, Ty: ty, Value: Value{Kind: ValueLit, Lit: lit}}})
	return d
}

// Int binds an integer literal.
func (b *Builder) Int(ty types.TypeID, n int64) VarID {
	return b.Lit(ty, Literal{Kind: LitInt, Int: n})
}

// Copy binds a copy of src.
func (b *Builder) Copy(src VarID) VarID {
	ty := b.F.VarType(src)
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrLet, Let: LetInstr{Dst: d, Ty: ty, Value: Value{Kind: ValueVar, Var: src}}})
	return d
}

// Prim binds a primitive operation.
func (b *Builder) Prim(ty types.TypeID, op PrimOp, args ...VarID) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrLet, Let: LetInstr{Dst: d, Ty: ty, Value: Value{Kind: ValuePrim, Op: op, Args: args}}})
	return d
}

// Apply emits a direct call.
func (b *Builder) Apply(ty types.TypeID, fn string, args ...VarID) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrApply, Apply: ApplyInstr{Dst: d, Ty: ty, Func: fn, Args: args}})
	return d
}

// ApplyIndirect emits a closure call.
func (b *Builder) ApplyIndirect(ty types.TypeID, closure VarID, args ...VarID) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrApplyIndirect, ApplyIndirect: ApplyIndirectInstr{Dst: d, Ty: ty, Closure: closure, Args: args}})
	return d
}

// PartialApply emits closure creation.
func (b *Builder) PartialApply(ty types.TypeID, fn string, captures ...VarID) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrPartialApply, PartialApply: PartialApplyInstr{Dst: d, Ty: ty, Func: fn, Args: captures}})
	return d
}

// Project emits a field read.
func (b *Builder) Project(ty types.TypeID, v VarID, field uint32) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrProject, Project: ProjectInstr{Dst: d, Ty: ty, Value: v, Field: field}})
	return d
}

// Construct emits an allocation.
func (b *Builder) Construct(ty types.TypeID, ctor Ctor, args ...VarID) VarID {
	d := b.dst(ty)
	b.Emit(Instr{Kind: InstrConstruct, Construct: ConstructInstr{Dst: d, Ty: ty, Ctor: ctor, Args: args}})
	return d
}

// Return terminates the current block.
func (b *Builder) Return(v VarID) {
	b.F.Blocks[b.cur].Term = Return(v)
}

// Jump terminates the current block with a jump.
func (b *Builder) Jump(target BlockID, args ...VarID) {
	b.F.Blocks[b.cur].Term = Jump(target, args...)
}

// Branch terminates the current block with a conditional.
func (b *Builder) Branch(cond VarID, then, els BlockID) {
	b.F.Blocks[b.cur].Term = Branch(cond, then, els)
}

// Switch terminates the current block with a multi-way dispatch.
func (b *Builder) Switch(scrutinee VarID, cases []SwitchCase, def BlockID) {
	b.F.Blocks[b.cur].Term = Terminator{Kind: TermSwitch, Switch: SwitchTerm{Scrutinee: scrutinee, Cases: cases, Default: def}}
}

// Unreachable terminates the current block as unreachable.
func (b *Builder) Unreachable() {
	b.F.Blocks[b.cur].Term = Terminator{Kind: TermUnreachable}
}
