package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindBool
	KindInt
	KindFloat
	KindChar
	KindByte
	KindString
	KindStruct
	KindTuple
	KindEnum
	KindList
	KindMap
	KindSet
	KindFn
	// KindOpaque is an externally defined handle whose layout is unknown.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindByte:
		return "byte"
	case KindString:
		return "str"
	case KindStruct:
		return "struct"
	case KindTuple:
		return "tuple"
	case KindEnum:
		return "enum"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindFn:
		return "fn"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind    Kind
	Elem    TypeID // list/set element, map key
	Value   TypeID // map value
	Payload uint32 // slot in the struct/enum/tuple/fn/opaque side tables
}

// Field is a named slot of a struct or an enum variant payload.
type Field struct {
	Name string
	Type TypeID
}

// Variant is one constructor of an enum.
type Variant struct {
	Name   string
	Fields []Field
}

// MakeList describes list[elem].
func MakeList(elem TypeID) Type {
	return Type{Kind: KindList, Elem: elem}
}

// MakeSet describes set[elem].
func MakeSet(elem TypeID) Type {
	return Type{Kind: KindSet, Elem: elem}
}

// MakeMap describes map[key, value].
func MakeMap(key, value TypeID) Type {
	return Type{Kind: KindMap, Elem: key, Value: value}
}

// IsCell reports whether values of the kind are fixed-shape heap cells
// that can be overwritten field by field.
func (k Kind) IsCell() bool {
	return k == KindStruct || k == KindTuple || k == KindEnum
}
