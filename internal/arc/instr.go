package arc

import (
	"arcc/internal/source"
	"arcc/internal/types"
)

// InstrKind enumerates instruction kinds in ARC IR.
type InstrKind uint8

const (
	// InstrLet represents a copy, literal or primitive operation.
	InstrLet InstrKind = iota
	// InstrApply represents a direct call.
	InstrApply
	// InstrApplyIndirect represents a call through a closure value.
	InstrApplyIndirect
	// InstrPartialApply represents closure creation capturing arguments.
	InstrPartialApply
	// InstrProject represents a field read that borrows from its base.
	InstrProject
	// InstrConstruct represents a heap allocation of a constructor.
	InstrConstruct
	// InstrRcInc represents a retain.
	InstrRcInc
	// InstrRcDec represents a release.
	InstrRcDec
	// InstrIsShared represents a uniqueness test (refcount > 1).
	InstrIsShared
	// InstrSet represents an in-place field store.
	InstrSet
	// InstrSetTag represents an in-place enum tag store.
	InstrSetTag
	// InstrReset represents a release that may hand the cell to a Reuse.
	InstrReset
	// InstrReuse represents a construction into a reset cell.
	InstrReuse
)

func (k InstrKind) String() string {
	switch k {
	case InstrLet:
		return "let"
	case InstrApply:
		return "apply"
	case InstrApplyIndirect:
		return "apply_indirect"
	case InstrPartialApply:
		return "partial_apply"
	case InstrProject:
		return "project"
	case InstrConstruct:
		return "construct"
	case InstrRcInc:
		return "rc_inc"
	case InstrRcDec:
		return "rc_dec"
	case InstrIsShared:
		return "is_shared"
	case InstrSet:
		return "set"
	case InstrSetTag:
		return "set_tag"
	case InstrReset:
		return "reset"
	case InstrReuse:
		return "reuse"
	}
	return "?"
}

// Instr represents an ARC IR instruction. Exactly the payload named by Kind
// is meaningful.
type Instr struct {
	Kind InstrKind
	Span source.Span

	Let           LetInstr
	Apply         ApplyInstr
	ApplyIndirect ApplyIndirectInstr
	PartialApply  PartialApplyInstr
	Project       ProjectInstr
	Construct     ConstructInstr
	RcInc         RcIncInstr
	RcDec         RcDecInstr
	IsShared      IsSharedInstr
	Set           SetInstr
	SetTag        SetTagInstr
	Reset         ResetInstr
	Reuse         ReuseInstr
}

// ValueKind distinguishes the right-hand side of a Let.
type ValueKind uint8

const (
	// ValueVar copies another variable.
	ValueVar ValueKind = iota
	// ValueLit materializes a literal.
	ValueLit
	// ValuePrim applies a primitive operator.
	ValuePrim
)

// LitKind enumerates literal kinds.
type LitKind uint8

const (
	LitUnit LitKind = iota
	LitBool
	LitInt
	LitFloat
	LitChar
	LitString
)

// Literal is a constant value.
type Literal struct {
	Kind  LitKind
	Bool  bool
	Int   int64
	Float float64
	Str   string // LitString payload; LitChar uses Int
}

// PrimOp enumerates primitive operators. Primitive operators read their
// arguments without consuming them.
type PrimOp uint8

const (
	OpAdd PrimOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
	OpNeg
	// OpTag reads the variant index of an enum value.
	OpTag
	// OpLen reads the length of a string or collection.
	OpLen
	// OpConcat concatenates two strings into a fresh string.
	OpConcat
)

var primOpNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpRem: "rem",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
	OpAnd: "and", OpOr: "or", OpNot: "not", OpNeg: "neg",
	OpTag: "tag", OpLen: "len", OpConcat: "concat",
}

func (op PrimOp) String() string {
	if int(op) < len(primOpNames) {
		return primOpNames[op]
	}
	return "?"
}

// ParsePrimOp resolves an operator by its printed name.
func ParsePrimOp(name string) (PrimOp, bool) {
	for i, n := range primOpNames {
		if n == name {
			return PrimOp(i), true // #nosec G115 -- small table
		}
	}
	return 0, false
}

// Arity reports the number of arguments the operator expects.
func (op PrimOp) Arity() int {
	switch op {
	case OpNot, OpNeg, OpTag, OpLen:
		return 1
	}
	return 2
}

// Value is the right-hand side of a Let.
type Value struct {
	Kind ValueKind
	Var  VarID
	Lit  Literal
	Op   PrimOp
	Args []VarID
}

// LetInstr binds Dst to a copy, literal or primitive result.
type LetInstr struct {
	Dst   VarID
	Ty    types.TypeID
	Value Value
}

// ApplyInstr calls a named function.
type ApplyInstr struct {
	Dst  VarID
	Ty   types.TypeID
	Func string
	Args []VarID
}

// ApplyIndirectInstr calls a closure value.
type ApplyIndirectInstr struct {
	Dst     VarID
	Ty      types.TypeID
	Closure VarID
	Args    []VarID
}

// PartialApplyInstr builds a closure over Func capturing Args.
type PartialApplyInstr struct {
	Dst  VarID
	Ty   types.TypeID
	Func string
	Args []VarID
}

// ProjectInstr reads field Field of Value. For enums the field indexes the
// payload of the current variant.
type ProjectInstr struct {
	Dst   VarID
	Ty    types.TypeID
	Value VarID
	Field uint32
}

// CtorKind enumerates constructor shapes.
type CtorKind uint8

const (
	CtorStruct CtorKind = iota
	CtorEnumVariant
	CtorTuple
	CtorListLit
	CtorMapLit
	CtorSetLit
	CtorClosure
)

func (k CtorKind) String() string {
	switch k {
	case CtorStruct:
		return "struct"
	case CtorEnumVariant:
		return "variant"
	case CtorTuple:
		return "tuple"
	case CtorListLit:
		return "list"
	case CtorMapLit:
		return "map"
	case CtorSetLit:
		return "set"
	case CtorClosure:
		return "closure"
	}
	return "?"
}

// Ctor describes what Construct builds.
type Ctor struct {
	Kind    CtorKind
	Variant uint32 // CtorEnumVariant
	Func    string // CtorClosure
}

// IsCell reports whether the constructor builds a fixed-shape cell that
// Set/SetTag can overwrite in place.
func (c Ctor) IsCell() bool {
	return c.Kind == CtorStruct || c.Kind == CtorTuple || c.Kind == CtorEnumVariant
}

// ConstructInstr allocates a fresh value. Map literals take keys and values
// interleaved.
type ConstructInstr struct {
	Dst  VarID
	Ty   types.TypeID
	Ctor Ctor
	Args []VarID
}

// RcIncInstr retains Var Count times.
type RcIncInstr struct {
	Var   VarID
	Count uint32
}

// RcDecInstr releases Var once.
type RcDecInstr struct {
	Var VarID
}

// IsSharedInstr sets Dst to whether Var's count exceeds one.
type IsSharedInstr struct {
	Dst VarID
	Var VarID
}

// SetInstr stores Value into field Field of Base, taking over its count.
// The previous field value is not released.
type SetInstr struct {
	Base  VarID
	Field uint32
	Value VarID
}

// SetTagInstr rewrites the variant index of an enum cell.
type SetTagInstr struct {
	Base VarID
	Tag  uint32
}

// ResetInstr releases Var; when Var was unique its fields are released and
// the cell is handed to Token, otherwise Token is empty.
type ResetInstr struct {
	Var   VarID
	Token VarID
}

// ReuseInstr constructs into Token's cell when present and allocates
// otherwise.
type ReuseInstr struct {
	Token VarID
	Dst   VarID
	Ty    types.TypeID
	Ctor  Ctor
	Args  []VarID
}

// Inc builds an RcInc instruction.
func Inc(v VarID, count uint32) Instr {
	return Instr{Kind: InstrRcInc, RcInc: RcIncInstr{Var: v, Count: count}}
}

// Dec builds an RcDec instruction.
func Dec(v VarID) Instr {
	return Instr{Kind: InstrRcDec, RcDec: RcDecInstr{Var: v}}
}

// IsRC reports whether the instruction is a retain or a release.
func (in *Instr) IsRC() bool {
	return in.Kind == InstrRcInc || in.Kind == InstrRcDec
}

// RCVar returns the variable of an RcInc/RcDec.
func (in *Instr) RCVar() VarID {
	switch in.Kind {
	case InstrRcInc:
		return in.RcInc.Var
	case InstrRcDec:
		return in.RcDec.Var
	}
	return NoVar
}
