package drop

import (
	"fmt"
	"strings"

	"arcc/internal/types"
)

// Format renders a descriptor for dumps, for example
//
//	drop List: enum {Nil: [], Cons: [1: List]}
func Format(info *Info, in *types.Interner) string {
	var b strings.Builder
	fmt.Fprintf(&b, "drop %s: %s", in.String(info.Type), info.Kind)
	switch info.Kind {
	case Fields, ClosureEnv:
		b.WriteString(" ")
		writeSlots(&b, info.Fields, in)
	case Enum:
		enum, _ := in.EnumInfo(info.Type)
		b.WriteString(" {")
		for vi, slots := range info.Variants {
			if vi > 0 {
				b.WriteString(", ")
			}
			name := fmt.Sprintf("#%d", vi)
			if enum != nil && vi < len(enum.Variants) {
				name = enum.Variants[vi].Name
			}
			b.WriteString(name + ": ")
			writeSlots(&b, slots, in)
		}
		b.WriteString("}")
	case Collection:
		fmt.Fprintf(&b, " elem %s", in.String(info.Elem))
	case Map:
		if info.DecKeys {
			fmt.Fprintf(&b, " keys %s", in.String(info.Elem))
		}
		if info.DecValues {
			fmt.Fprintf(&b, " values %s", in.String(info.Value))
		}
	}
	return b.String()
}

func writeSlots(b *strings.Builder, slots []Slot, in *types.Interner) {
	b.WriteString("[")
	for i, s := range slots {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%d: %s", s.Index, in.String(s.Type))
	}
	b.WriteString("]")
}
