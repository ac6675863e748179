package ownership

import (
	"errors"
	"fmt"
	"slices"

	"arcc/internal/arc"
)

// ErrOwnershipCycle reports a BorrowedFrom chain that loops. It is always a
// compiler defect.
var ErrOwnershipCycle = errors.New("cyclic ownership chain")

// IdentityMap resolves reference-count identity. Two variables are the same
// object when they are in one copy class (linked by `let x = y`); Root
// follows BorrowedFrom chains to the variable that owns the storage.
type IdentityMap struct {
	derived []Derived
	class   []arc.VarID
	root    []arc.VarID
	members map[arc.VarID][]arc.VarID
}

// NewIdentityMap builds the map for f. It fails with ErrOwnershipCycle when
// a chain does not terminate.
func NewIdentityMap(f *arc.Func, derived []Derived) (*IdentityMap, error) {
	n := len(f.Vars)
	m := &IdentityMap{
		derived: derived,
		class:   make([]arc.VarID, n),
		root:    make([]arc.VarID, n),
		members: make(map[arc.VarID][]arc.VarID),
	}
	for i := range m.class {
		m.class[i] = arc.VarID(i) // #nosec G115 -- bounded by table size
	}
	// Copy classes: union along Let copies, representative = lowest id.
	for _, bid := range arc.ReversePostorder(f) {
		b := f.Block(bid)
		for ii := range b.Instrs {
			in := &b.Instrs[ii]
			if in.Kind == arc.InstrLet && in.Let.Value.Kind == arc.ValueVar {
				m.union(in.Let.Dst, in.Let.Value.Var)
			}
		}
	}
	for i := range m.class {
		v := arc.VarID(i) // #nosec G115
		c := m.find(v)
		m.class[i] = c
		m.members[c] = append(m.members[c], v)
	}
	for i := range m.root {
		r, err := m.resolve(arc.VarID(i)) // #nosec G115
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		m.root[i] = r
	}
	return m, nil
}

func (m *IdentityMap) find(v arc.VarID) arc.VarID {
	for m.class[v] != v {
		m.class[v] = m.class[m.class[v]]
		v = m.class[v]
	}
	return v
}

func (m *IdentityMap) union(a, b arc.VarID) {
	ra, rb := m.find(a), m.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		m.class[rb] = ra
	} else {
		m.class[ra] = rb
	}
}

func (m *IdentityMap) resolve(v arc.VarID) (arc.VarID, error) {
	seen := make(map[arc.VarID]bool)
	cur := v
	for int(cur) < len(m.derived) && m.derived[cur].Kind == BorrowedFrom {
		if seen[cur] {
			return arc.NoVar, fmt.Errorf("%w through %s", ErrOwnershipCycle, cur)
		}
		seen[cur] = true
		cur = m.derived[cur].Source
	}
	return cur, nil
}

// Root returns the variable at the end of v's BorrowedFrom chain. Fresh and
// Owned variables are their own roots.
func (m *IdentityMap) Root(v arc.VarID) arc.VarID {
	if int(v) >= len(m.root) {
		return arc.NoVar
	}
	return m.root[v]
}

// Class returns the copy-class representative of v.
func (m *IdentityMap) Class(v arc.VarID) arc.VarID {
	if int(v) >= len(m.class) {
		return arc.NoVar
	}
	return m.class[v]
}

// Members lists every variable in v's copy class in ascending order.
func (m *IdentityMap) Members(v arc.VarID) []arc.VarID {
	return m.members[m.Class(v)]
}

// SameObject reports whether a and b denote one reference-counted object.
func (m *IdentityMap) SameObject(a, b arc.VarID) bool {
	ca := m.Class(a)
	return ca != arc.NoVar && ca == m.Class(b)
}

// Derived returns the ownership entry of v.
func (m *IdentityMap) Derived(v arc.VarID) Derived {
	if int(v) >= len(m.derived) {
		return Derived{}
	}
	return m.derived[v]
}

// Chain lists the copy classes from v up to its root: v's own class first.
func (m *IdentityMap) Chain(v arc.VarID) []arc.VarID {
	var out []arc.VarID
	cur := v
	for int(cur) < len(m.derived) {
		c := m.Class(cur)
		if slices.Contains(out, c) {
			break
		}
		out = append(out, c)
		if m.derived[cur].Kind != BorrowedFrom {
			break
		}
		cur = m.derived[cur].Source
	}
	return out
}

// Covers reports whether keeping g alive keeps w's object alive: g is the
// same object as w or one of the objects w was projected out of.
func (m *IdentityMap) Covers(g, w arc.VarID) bool {
	return slices.Contains(m.Chain(w), m.Class(g))
}
