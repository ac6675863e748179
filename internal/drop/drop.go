// Package drop builds the descriptors that tell the runtime which children
// to release when a count reaches zero.
package drop

import (
	"fmt"

	"fortio.org/safecast"

	"arcc/internal/types"
)

// Kind is the shape of a drop descriptor.
type Kind uint8

const (
	// Trivial: free the cell, nothing inside is counted.
	Trivial Kind = iota
	// Fields: release the listed fields, then free.
	Fields
	// Enum: switch on the tag and release the fields of that variant.
	Enum
	// Collection: release every element, then free the buffer.
	Collection
	// Map: release keys and/or values, then free.
	Map
	// ClosureEnv: release the listed captures of a closure environment.
	ClosureEnv
)

func (k Kind) String() string {
	switch k {
	case Trivial:
		return "trivial"
	case Fields:
		return "fields"
	case Enum:
		return "enum"
	case Collection:
		return "collection"
	case Map:
		return "map"
	case ClosureEnv:
		return "closure_env"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Slot is a counted child: field index and its type. The index stands in
// for a byte offset.
type Slot struct {
	Index uint32       `json:"index" msgpack:"i"`
	Type  types.TypeID `json:"type" msgpack:"t"`
}

// Info is the drop descriptor of one type.
type Info struct {
	Type types.TypeID `json:"type" msgpack:"ty"`
	Kind Kind         `json:"kind" msgpack:"k"`

	// Fields and ClosureEnv.
	Fields []Slot `json:"fields,omitempty" msgpack:"f,omitempty"`
	// Enum, indexed by variant tag.
	Variants [][]Slot `json:"variants,omitempty" msgpack:"v,omitempty"`
	// Collection element, map key.
	Elem types.TypeID `json:"elem,omitempty" msgpack:"e,omitempty"`
	// Map value.
	Value     types.TypeID `json:"value,omitempty" msgpack:"val,omitempty"`
	DecKeys   bool         `json:"dec_keys,omitempty" msgpack:"dk,omitempty"`
	DecValues bool         `json:"dec_values,omitempty" msgpack:"dv,omitempty"`
}

// Releases counts the child releases the descriptor performs for one value
// of the given variant (ignored unless Kind is Enum). Collections and maps
// release per element and report -1.
func (i *Info) Releases(variant int) int {
	switch i.Kind {
	case Fields, ClosureEnv:
		return len(i.Fields)
	case Enum:
		if variant < 0 || variant >= len(i.Variants) {
			return 0
		}
		return len(i.Variants[variant])
	case Collection, Map:
		return -1
	}
	return 0
}

// Compute builds the descriptor of id. ok is false for scalar types, which
// have no count and need no descriptor.
func Compute(id types.TypeID, cls *types.Classifier) (Info, bool) {
	if !cls.IsRef(id) {
		return Info{}, false
	}
	in := cls.Interner()
	info := Info{Type: id, Kind: Trivial}
	tt, ok := in.Lookup(id)
	if !ok {
		return info, true
	}
	switch tt.Kind {
	case types.KindList, types.KindSet:
		if cls.IsRef(tt.Elem) {
			info.Kind = Collection
			info.Elem = tt.Elem
		}
	case types.KindMap:
		dk, dv := cls.IsRef(tt.Elem), cls.IsRef(tt.Value)
		if dk || dv {
			info.Kind = Map
			info.Elem, info.Value = tt.Elem, tt.Value
			info.DecKeys, info.DecValues = dk, dv
		}
	case types.KindStruct, types.KindTuple:
		if slots := refSlots(in.CellFields(id, 0), cls); len(slots) > 0 {
			info.Kind = Fields
			info.Fields = slots
		}
	case types.KindEnum:
		enum, _ := in.EnumInfo(id)
		variants := make([][]Slot, len(enum.Variants))
		counted := false
		for vi := range enum.Variants {
			variants[vi] = refSlots(in.CellFields(id, vi), cls)
			counted = counted || len(variants[vi]) > 0
		}
		if counted {
			info.Kind = Enum
			info.Variants = variants
		}
	}
	// Strings, function values and opaque handles release nothing inside
	// the cell itself; closure environments get their own descriptor.
	return info, true
}

// ComputeClosureEnv builds the descriptor of a closure environment holding
// captures of the given types.
func ComputeClosureEnv(fn types.TypeID, captures []types.TypeID, cls *types.Classifier) Info {
	slots := refSlots(captures, cls)
	if len(slots) == 0 {
		return Info{Type: fn, Kind: Trivial}
	}
	return Info{Type: fn, Kind: ClosureEnv, Fields: slots}
}

func refSlots(fields []types.TypeID, cls *types.Classifier) []Slot {
	var out []Slot
	for i, ft := range fields {
		if !cls.IsRef(ft) {
			continue
		}
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			panic(fmt.Errorf("field index overflow: %w", err))
		}
		out = append(out, Slot{Index: idx, Type: ft})
	}
	return out
}
