package interp

import (
	"fmt"
	"io"
	"strings"

	"arcc/internal/rt"
)

// StdExterns returns the host functions `arcc run` provides:
//
//	print(...)     writes its rendered arguments to w, returns unit
//	to_str(x) str  renders x into a fresh string
func StdExterns(w io.Writer) map[string]Extern {
	return map[string]Extern{
		"print": func(m *Machine, c ExternCall) (rt.Value, error) {
			parts := make([]string, len(c.Args))
			for i, a := range c.Args {
				if s, ok := m.str(a); ok {
					parts[i] = s
					continue
				}
				parts[i] = m.Render(a, c.Types[i])
			}
			if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
				return rt.Value{}, err
			}
			return rt.Unit(), nil
		},
		"to_str": func(m *Machine, c ExternCall) (rt.Value, error) {
			if len(c.Args) != 1 {
				return rt.Value{}, fmt.Errorf("to_str takes one argument")
			}
			return rt.Ref(m.Heap().AllocString(c.Result, m.Render(c.Args[0], c.Types[0]))), nil
		},
	}
}
