package interp

import (
	"strconv"
	"strings"

	"arcc/internal/rt"
	"arcc/internal/types"
)

// Render prints v as a value of type ty. The output depends only on the
// contents of the heap, never on handles, so it can be compared across
// runs.
func (m *Machine) Render(v rt.Value, ty types.TypeID) string {
	var sb strings.Builder
	m.render(&sb, v, ty)
	return sb.String()
}

func (m *Machine) render(sb *strings.Builder, v rt.Value, ty types.TypeID) {
	tt, _ := m.in.Lookup(ty)
	if !v.IsRef() {
		if v.Kind == rt.VInt && tt.Kind == types.KindEnum {
			if info, ok := m.in.EnumInfo(ty); ok && int(v.I) < len(info.Variants) && v.I >= 0 {
				sb.WriteString(info.Name + "." + info.Variants[v.I].Name)
				return
			}
		}
		sb.WriteString(v.String())
		return
	}
	o := m.Heap().Get(v.H)
	if o.Type != types.NoTypeID {
		ty = o.Type
		tt, _ = m.in.Lookup(ty)
	}
	switch o.Kind {
	case rt.OKString:
		sb.WriteString(strconv.Quote(o.Str))
	case rt.OKClosure:
		sb.WriteString("<closure " + o.Func + ">")
	case rt.OKList:
		m.renderSeq(sb, "[", "]", o.Elems, tt.Elem)
	case rt.OKSet:
		m.renderSeq(sb, "set{", "}", o.Elems, tt.Elem)
	case rt.OKMap:
		sb.WriteString("{")
		for i := 0; i+1 < len(o.Elems); i += 2 {
			if i > 0 {
				sb.WriteString(", ")
			}
			m.render(sb, o.Elems[i], tt.Elem)
			sb.WriteString(": ")
			m.render(sb, o.Elems[i+1], tt.Value)
		}
		sb.WriteString("}")
	case rt.OKCell:
		m.renderCell(sb, o, ty, tt)
	}
}

func (m *Machine) renderSeq(sb *strings.Builder, open, closing string, elems []rt.Value, elem types.TypeID) {
	sb.WriteString(open)
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		m.render(sb, e, elem)
	}
	sb.WriteString(closing)
}

func (m *Machine) renderCell(sb *strings.Builder, o *rt.Object, ty types.TypeID, tt types.Type) {
	fields := m.in.CellFields(ty, int(o.Tag))
	fieldType := func(i int) types.TypeID {
		if i < len(fields) {
			return fields[i]
		}
		return types.NoTypeID
	}
	switch tt.Kind {
	case types.KindStruct:
		info, _ := m.in.StructInfo(ty)
		sb.WriteString(info.Name + "{")
		for i, f := range o.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i < len(info.Fields) {
				sb.WriteString(info.Fields[i].Name + ": ")
			}
			m.render(sb, f, fieldType(i))
		}
		sb.WriteString("}")
		return
	case types.KindEnum:
		info, _ := m.in.EnumInfo(ty)
		name := strconv.Itoa(int(o.Tag))
		if int(o.Tag) < len(info.Variants) {
			name = info.Variants[o.Tag].Name
		}
		sb.WriteString(info.Name + "." + name)
		if len(o.Fields) == 0 {
			return
		}
	}
	sb.WriteString("(")
	for i, f := range o.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		m.render(sb, f, fieldType(i))
	}
	sb.WriteString(")")
}
