package ownership

import (
	"fmt"

	"arcc/internal/arc"
)

// DerivedKind classifies how a variable came to hold its value.
type DerivedKind uint8

const (
	// Owned values carry an independent count (call results, owned
	// parameters, literals, block parameters).
	Owned DerivedKind = iota
	// Fresh values were just allocated and are uniquely referenced.
	Fresh
	// BorrowedFrom values alias a projection of Source.
	BorrowedFrom
	// BorrowedParam marks a parameter the caller keeps alive.
	BorrowedParam
)

func (k DerivedKind) String() string {
	switch k {
	case Fresh:
		return "fresh"
	case BorrowedFrom:
		return "borrowed-from"
	case BorrowedParam:
		return "borrowed-param"
	default:
		return "owned"
	}
}

// Derived is the ownership entry of one variable.
type Derived struct {
	Kind   DerivedKind
	Source arc.VarID // BorrowedFrom only
}

func (d Derived) String() string {
	if d.Kind == BorrowedFrom {
		return fmt.Sprintf("borrowed-from(%s)", d.Source)
	}
	return d.Kind.String()
}

// Derive classifies every variable of f in one forward pass over reverse
// postorder. sig is the function's own signature; nil uses the parameter
// markers stored on f. Unreachable code keeps the default Owned.
func Derive(f *arc.Func, sig arc.Signature) []Derived {
	out := make([]Derived, len(f.Vars))
	for i, p := range f.Params {
		own := p.Ownership
		if i < len(sig) {
			own = sig[i]
		}
		if own == arc.Borrowed {
			out[p.Var] = Derived{Kind: BorrowedParam}
		}
	}
	for _, bid := range arc.ReversePostorder(f) {
		b := f.Block(bid)
		for ii := range b.Instrs {
			in := &b.Instrs[ii]
			switch in.Kind {
			case arc.InstrProject:
				out[in.Project.Dst] = Derived{Kind: BorrowedFrom, Source: in.Project.Value}
			case arc.InstrLet:
				if in.Let.Value.Kind == arc.ValueVar {
					out[in.Let.Dst] = out[in.Let.Value.Var]
				}
			case arc.InstrConstruct:
				out[in.Construct.Dst] = Derived{Kind: Fresh}
			case arc.InstrPartialApply:
				out[in.PartialApply.Dst] = Derived{Kind: Fresh}
			case arc.InstrReuse:
				out[in.Reuse.Dst] = Derived{Kind: Fresh}
			}
		}
	}
	return out
}
