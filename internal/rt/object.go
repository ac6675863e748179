// Package rt is the reference runtime of the retain/release contract: a
// handle-based heap, two counter implementations and the drop machinery
// that runs descriptors when a count reaches zero.
package rt

import (
	"fmt"

	"arcc/internal/drop"
	"arcc/internal/types"
)

// Handle identifies a heap object. Handles are never reused within a run.
type Handle uint64

// ValueKind tags a Value.
type ValueKind uint8

const (
	VUnit ValueKind = iota
	VBool
	VInt
	VFloat
	VChar
	VRef
)

// Value is a scalar or a reference to a heap object.
type Value struct {
	Kind ValueKind
	I    int64 // VBool (0/1), VInt, VChar
	F    float64
	H    Handle // VRef
}

func Unit() Value { return Value{Kind: VUnit} }
func Int(n int64) Value { return Value{Kind: VInt, I: n} }
func Float(f float64) Value { return Value{Kind: VFloat, F: f} }
func Char(r rune) Value { return Value{Kind: VChar, I: int64(r)} }
func Ref(h Handle) Value { return Value{Kind: VRef, H: h} }
func Bool(b bool) Value {
	if b {
		return Value{Kind: VBool, I: 1}
	}
	return Value{Kind: VBool}
}

// IsRef reports whether the value points into the heap.
func (v Value) IsRef() bool {
	return v.Kind == VRef && v.H != 0
}

func (v Value) String() string {
	switch v.Kind {
	case VUnit:
		return "()"
	case VBool:
		return fmt.Sprint(v.I != 0)
	case VInt:
		return fmt.Sprint(v.I)
	case VFloat:
		return fmt.Sprint(v.F)
	case VChar:
		return fmt.Sprintf("%q", rune(v.I))
	case VRef:
		return fmt.Sprintf("#%d", v.H)
	}
	return "?"
}

// ObjectKind is the layout family of a heap object.
type ObjectKind uint8

const (
	OKString ObjectKind = iota
	OKCell              // struct, tuple, enum variant
	OKList
	OKSet
	OKMap // Elems holds keys and values interleaved
	OKClosure
)

func (k ObjectKind) String() string {
	switch k {
	case OKString:
		return "string"
	case OKCell:
		return "cell"
	case OKList:
		return "list"
	case OKSet:
		return "set"
	case OKMap:
		return "map"
	case OKClosure:
		return "closure"
	}
	return "object"
}

// Object is one heap cell.
type Object struct {
	Kind    ObjectKind
	Type    types.TypeID
	Tag     uint32  // enum variant
	Fields  []Value // cell fields, closure captures
	Elems   []Value // collections
	Str     string
	Func    string     // closure target
	Drop    *drop.Info // nil releases every reference inside
	Alive   bool
	AllocID uint64

	rc int64
}

// children lists the references the object releases when it dies.
func (o *Object) children() []Value {
	if o.Drop == nil {
		out := make([]Value, 0, len(o.Fields)+len(o.Elems))
		out = append(out, o.Fields...)
		return append(out, o.Elems...)
	}
	info := o.Drop
	var out []Value
	pick := func(slots []drop.Slot) {
		for _, s := range slots {
			if int(s.Index) < len(o.Fields) {
				out = append(out, o.Fields[s.Index])
			}
		}
	}
	switch info.Kind {
	case drop.Fields, drop.ClosureEnv:
		pick(info.Fields)
	case drop.Enum:
		if int(o.Tag) < len(info.Variants) {
			pick(info.Variants[o.Tag])
		}
	case drop.Collection:
		out = append(out, o.Elems...)
	case drop.Map:
		for i := 0; i+1 < len(o.Elems); i += 2 {
			if info.DecKeys {
				out = append(out, o.Elems[i])
			}
			if info.DecValues {
				out = append(out, o.Elems[i+1])
			}
		}
	}
	return out
}
