package arc

import (
	"errors"
	"fmt"
)

// ErrInvalidIR wraps every validation failure.
var ErrInvalidIR = errors.New("invalid ARC IR")

// Validate checks module invariants.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if err := ValidateFunc(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateFunc checks the invariants every pass must preserve.
func ValidateFunc(f *Func) error {
	if f == nil {
		return nil
	}
	var errs []error

	// 1. Block table is an arena indexed by id
	if err := validateBlockIDs(f); err != nil {
		errs = append(errs, err)
	}

	// 2. Every block ends with a terminator pointing at existing blocks
	if err := validateTerminators(f); err != nil {
		errs = append(errs, err)
	}

	// 3. Each variable is defined once and used only where defined
	if err := validateDefs(f); err != nil {
		errs = append(errs, err)
	}

	// 4. RC instructions are well formed
	if err := validateRC(f); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: function %s: %w", ErrInvalidIR, f.Name, err)
	}
	return nil
}

func validateBlockIDs(f *Func) error {
	if len(f.Blocks) == 0 {
		return errors.New("function has no blocks")
	}
	var errs []error
	if int(f.Entry) >= len(f.Blocks) {
		errs = append(errs, fmt.Errorf("entry %s out of range", f.Entry))
	}
	for i := range f.Blocks {
		if int(f.Blocks[i].ID) != i {
			errs = append(errs, fmt.Errorf("bb%d: stored with id %s", i, f.Blocks[i].ID))
		}
	}
	return errors.Join(errs...)
}

func validateTerminators(f *Func) error {
	var errs []error
	exists := func(id BlockID) bool { return int(id) < len(f.Blocks) }
	for i := range f.Blocks {
		b := &f.Blocks[i]
		t := &b.Term
		switch t.Kind {
		case TermNone:
			errs = append(errs, fmt.Errorf("bb%d: unterminated block", i))
		case TermJump:
			if !exists(t.Jump.Target) {
				errs = append(errs, fmt.Errorf("bb%d: jump to missing %s", i, t.Jump.Target))
				continue
			}
			if want := len(f.Blocks[t.Jump.Target].Params); want != len(t.Jump.Args) {
				errs = append(errs, fmt.Errorf("bb%d: jump passes %d args, %s takes %d", i, len(t.Jump.Args), t.Jump.Target, want))
			}
		case TermBranch:
			for _, target := range []BlockID{t.Branch.Then, t.Branch.Else} {
				if !exists(target) {
					errs = append(errs, fmt.Errorf("bb%d: branch to missing %s", i, target))
				} else if len(f.Blocks[target].Params) != 0 {
					errs = append(errs, fmt.Errorf("bb%d: branch target %s takes params", i, target))
				}
			}
		case TermSwitch:
			targets := make([]BlockID, 0, len(t.Switch.Cases)+1)
			for _, c := range t.Switch.Cases {
				targets = append(targets, c.Target)
			}
			if t.Switch.Default != NoBlock {
				targets = append(targets, t.Switch.Default)
			}
			for _, target := range targets {
				if !exists(target) {
					errs = append(errs, fmt.Errorf("bb%d: switch to missing %s", i, target))
				} else if len(f.Blocks[target].Params) != 0 {
					errs = append(errs, fmt.Errorf("bb%d: switch target %s takes params", i, target))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// validateDefs checks single definition and def-before-use along dominance.
func validateDefs(f *Func) error {
	var errs []error
	type site struct {
		block BlockID
		index int // -1 for params and block params
	}
	defs := make(map[VarID]site, len(f.Vars))
	define := func(v VarID, s site) {
		if int(v) >= len(f.Vars) {
			errs = append(errs, fmt.Errorf("%s: definition of %s outside the variable table", s.block, v))
			return
		}
		if _, dup := defs[v]; dup {
			errs = append(errs, fmt.Errorf("%s: %s defined twice", s.block, v))
			return
		}
		defs[v] = s
	}
	for _, p := range f.Params {
		define(p.Var, site{block: f.Entry, index: -1})
	}
	for i := range f.Blocks {
		b := &f.Blocks[i]
		for _, p := range b.Params {
			define(p, site{block: b.ID, index: -1})
		}
		for j := range b.Instrs {
			if d, ok := b.Instrs[j].Defined(); ok {
				define(d, site{block: b.ID, index: j})
			}
		}
	}

	dom := Dominators(f)
	reach := Reachable(f)
	check := func(b BlockID, at int, v VarID) {
		s, ok := defs[v]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: use of undefined %s", b, v))
			return
		}
		if s.block == b {
			if s.index >= at {
				errs = append(errs, fmt.Errorf("%s: %s used before its definition", b, v))
			}
			return
		}
		if !dom.Dominates(s.block, b) {
			errs = append(errs, fmt.Errorf("%s: %s defined in %s which does not dominate the use", b, v, s.block))
		}
	}
	for i := range f.Blocks {
		b := &f.Blocks[i]
		if !reach[i] {
			continue
		}
		for j := range b.Instrs {
			for _, v := range b.Instrs[j].Uses() {
				check(b.ID, j, v)
			}
		}
		for _, v := range b.Term.Uses() {
			check(b.ID, len(b.Instrs), v)
		}
	}
	return errors.Join(errs...)
}

func validateRC(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		for j, in := range f.Blocks[i].Instrs {
			if in.Kind == InstrRcInc && in.RcInc.Count == 0 {
				errs = append(errs, fmt.Errorf("bb%d: instr %d: rc_inc with zero count", i, j))
			}
		}
	}
	return errors.Join(errs...)
}
