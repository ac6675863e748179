package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for primitive types.
type Builtins struct {
	Invalid TypeID
	Unit    TypeID
	Bool    TypeID
	Int     TypeID
	Float   TypeID
	Char    TypeID
	Byte    TypeID
	String  TypeID
}

// StructInfo stores metadata for a nominal struct type.
type StructInfo struct {
	Name   string
	Fields []Field
}

// EnumInfo stores metadata for a nominal enum type.
type EnumInfo struct {
	Name     string
	Variants []Variant
}

// FnInfo stores the signature of a function type.
type FnInfo struct {
	Params []TypeID
	Result TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Nominal types (structs, enums, opaque handles) get a fresh slot on
// registration so they may refer to themselves.
type Interner struct {
	types    []Type
	index    map[Type]TypeID
	builtins Builtins

	structs []StructInfo
	enums   []EnumInfo
	tuples  [][]TypeID
	fns     []FnInfo
	opaques []string

	shapes map[string]TypeID // tuple/fn shape -> id
	named  map[string]TypeID
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:  make(map[Type]TypeID, 64),
		shapes: make(map[string]TypeID),
		named:  make(map[string]TypeID),
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.Int = in.Intern(Type{Kind: KindInt})
	in.builtins.Float = in.Intern(Type{Kind: KindFloat})
	in.builtins.Char = in.Intern(Type{Kind: KindChar})
	in.builtins.Byte = in.Intern(Type{Kind: KindByte})
	in.builtins.String = in.Intern(Type{Kind: KindString})
	for name, id := range map[string]TypeID{
		"unit": in.builtins.Unit, "bool": in.builtins.Bool, "int": in.builtins.Int,
		"float": in.builtins.Float, "char": in.builtins.Char, "byte": in.builtins.Byte,
		"str": in.builtins.String,
	} {
		in.named[name] = id
	}
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Len returns the number of interned types including the invalid sentinel.
func (in *Interner) Len() int {
	return len(in.types)
}

// Intern ensures the provided structural descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	if id, ok := in.index[t]; ok {
		return id
	}
	return in.internRaw(t)
}

func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[t] = id
	return id
}

func slot(n int) uint32 {
	s, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("type table overflow: %w", err))
	}
	return s
}

// Tuple interns a tuple of the given element types. The empty tuple is unit.
func (in *Interner) Tuple(elems ...TypeID) TypeID {
	if len(elems) == 0 {
		return in.builtins.Unit
	}
	key := "tuple(" + joinIDs(elems) + ")"
	if id, ok := in.shapes[key]; ok {
		return id
	}
	in.tuples = append(in.tuples, slices.Clone(elems))
	id := in.internRaw(Type{Kind: KindTuple, Payload: slot(len(in.tuples) - 1)})
	in.shapes[key] = id
	return id
}

// Fn interns a function (closure) type.
func (in *Interner) Fn(params []TypeID, result TypeID) TypeID {
	key := "fn(" + joinIDs(params) + ")" + strconv.FormatUint(uint64(result), 10)
	if id, ok := in.shapes[key]; ok {
		return id
	}
	in.fns = append(in.fns, FnInfo{Params: slices.Clone(params), Result: result})
	id := in.internRaw(Type{Kind: KindFn, Payload: slot(len(in.fns) - 1)})
	in.shapes[key] = id
	return id
}

// RegisterStruct allocates a nominal struct type slot. Fields are set later
// with SetStructFields so recursive definitions can refer to the id.
func (in *Interner) RegisterStruct(name string) TypeID {
	in.structs = append(in.structs, StructInfo{Name: name})
	id := in.internRaw(Type{Kind: KindStruct, Payload: slot(len(in.structs) - 1)})
	in.named[name] = id
	return id
}

// SetStructFields stores the resolved field descriptors for the struct type.
func (in *Interner) SetStructFields(id TypeID, fields []Field) {
	if info := in.structInfo(id); info != nil {
		info.Fields = slices.Clone(fields)
	}
}

// RegisterEnum allocates a nominal enum type slot.
func (in *Interner) RegisterEnum(name string) TypeID {
	in.enums = append(in.enums, EnumInfo{Name: name})
	id := in.internRaw(Type{Kind: KindEnum, Payload: slot(len(in.enums) - 1)})
	in.named[name] = id
	return id
}

// SetEnumVariants stores the variants of the enum type.
func (in *Interner) SetEnumVariants(id TypeID, variants []Variant) {
	info := in.enumInfo(id)
	if info == nil {
		return
	}
	info.Variants = make([]Variant, len(variants))
	for i, v := range variants {
		info.Variants[i] = Variant{Name: v.Name, Fields: slices.Clone(v.Fields)}
	}
}

// RegisterOpaque allocates an external handle type.
func (in *Interner) RegisterOpaque(name string) TypeID {
	in.opaques = append(in.opaques, name)
	id := in.internRaw(Type{Kind: KindOpaque, Payload: slot(len(in.opaques) - 1)})
	in.named[name] = id
	return id
}

// ByName resolves a nominal or builtin type name.
func (in *Interner) ByName(name string) (TypeID, bool) {
	id, ok := in.named[name]
	return id, ok
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// StructInfo returns metadata for the provided struct TypeID.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	info := in.structInfo(id)
	return info, info != nil
}

// EnumInfo returns metadata for the provided enum TypeID.
func (in *Interner) EnumInfo(id TypeID) (*EnumInfo, bool) {
	info := in.enumInfo(id)
	return info, info != nil
}

// FnInfo returns the signature of a fn type.
func (in *Interner) FnInfo(id TypeID) (FnInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn {
		return FnInfo{}, false
	}
	return in.fns[tt.Payload], true
}

// CellFields returns the field types of a struct or tuple cell, or of the
// given variant of an enum. Other kinds have no fields.
func (in *Interner) CellFields(id TypeID, variant int) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return nil
	}
	switch tt.Kind {
	case KindStruct:
		fields := in.structs[tt.Payload].Fields
		out := make([]TypeID, len(fields))
		for i, f := range fields {
			out[i] = f.Type
		}
		return out
	case KindTuple:
		return slices.Clone(in.tuples[tt.Payload])
	case KindEnum:
		vars := in.enums[tt.Payload].Variants
		if variant < 0 || variant >= len(vars) {
			return nil
		}
		out := make([]TypeID, len(vars[variant].Fields))
		for i, f := range vars[variant].Fields {
			out[i] = f.Type
		}
		return out
	}
	return nil
}

// VariantIndex finds the variant by name.
func (in *Interner) VariantIndex(id TypeID, name string) (int, bool) {
	info := in.enumInfo(id)
	if info == nil {
		return 0, false
	}
	idx := slices.IndexFunc(info.Variants, func(v Variant) bool { return v.Name == name })
	return idx, idx >= 0
}

// FieldIndex finds a struct field by name.
func (in *Interner) FieldIndex(id TypeID, name string) (int, bool) {
	info := in.structInfo(id)
	if info == nil {
		return 0, false
	}
	idx := slices.IndexFunc(info.Fields, func(f Field) bool { return f.Name == name })
	return idx, idx >= 0
}

func (in *Interner) structInfo(id TypeID) *StructInfo {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindStruct {
		return nil
	}
	return &in.structs[tt.Payload]
}

func (in *Interner) enumInfo(id TypeID) *EnumInfo {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindEnum {
		return nil
	}
	return &in.enums[tt.Payload]
}

// String renders a type the way the typed-IR reader spells it.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "?"
	}
	switch tt.Kind {
	case KindStruct:
		return in.structs[tt.Payload].Name
	case KindEnum:
		return in.enums[tt.Payload].Name
	case KindOpaque:
		return in.opaques[tt.Payload]
	case KindList:
		return "list[" + in.String(tt.Elem) + "]"
	case KindSet:
		return "set[" + in.String(tt.Elem) + "]"
	case KindMap:
		return "map[" + in.String(tt.Elem) + ", " + in.String(tt.Value) + "]"
	case KindTuple:
		parts := make([]string, 0, len(in.tuples[tt.Payload]))
		for _, e := range in.tuples[tt.Payload] {
			parts = append(parts, in.String(e))
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindFn:
		info := in.fns[tt.Payload]
		parts := make([]string, 0, len(info.Params))
		for _, p := range info.Params {
			parts = append(parts, in.String(p))
		}
		return "fn(" + strings.Join(parts, ", ") + ") -> " + in.String(info.Result)
	default:
		return tt.Kind.String()
	}
}

func joinIDs(ids []TypeID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}
