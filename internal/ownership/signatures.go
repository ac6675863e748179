package ownership

import (
	"arcc/internal/arc"
	"arcc/internal/types"
)

// InferSignatures computes the borrow signature of every function in the
// module. cache may be nil; when present, entries whose body and callee
// signatures are unchanged are reused and every entry is refreshed.
func InferSignatures(m *arc.Module, cls *types.Classifier, cache *SignatureCache) arc.SignatureMap {
	sigs := make(arc.SignatureMap, len(m.Funcs)+len(m.Externs))
	for _, e := range m.Externs {
		sigs[e.Name] = e.Sig
	}

	closureTargets := closureTargets(m)
	keys := make(map[string]string, len(m.Funcs))
	for _, f := range m.Funcs {
		keys[f.Name] = bodyKey(f, cls, closureTargets[f.Name])
	}

	fixed := make(map[string]bool, len(m.Funcs))
	if cache != nil {
		for name, sig := range cache.valid(m, keys, sigs) {
			sigs[name] = sig
			fixed[name] = true
		}
	}

	var work []*arc.Func
	for _, f := range m.Funcs {
		if fixed[f.Name] {
			continue
		}
		sigs[f.Name] = initialSignature(f, cls, closureTargets[f.Name])
		work = append(work, f)
	}

	// Monotone: each round only turns Borrowed into Owned, so the loop ends
	// after at most one round per parameter.
	for changed := true; changed; {
		changed = false
		for _, f := range work {
			if promote(f, cls, sigs) {
				changed = true
			}
		}
	}

	if cache != nil {
		cache.record(m, keys, sigs, len(work))
	}
	return sigs
}

// Apply writes inferred signatures onto the function parameters.
func Apply(m *arc.Module, sigs arc.SignatureMap) {
	for _, f := range m.Funcs {
		sig, ok := sigs[f.Name]
		if !ok {
			continue
		}
		for i := range f.Params {
			if i < len(sig) {
				f.Params[i].Ownership = sig[i]
			}
		}
	}
}

// closureTargets collects functions referenced by closures. They get
// all-owned parameters so that every closure shares one calling convention.
func closureTargets(m *arc.Module) map[string]bool {
	out := make(map[string]bool)
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				switch {
				case in.Kind == arc.InstrPartialApply:
					out[in.PartialApply.Func] = true
				case in.Kind == arc.InstrConstruct && in.Construct.Ctor.Kind == arc.CtorClosure:
					out[in.Construct.Ctor.Func] = true
				}
			}
		}
	}
	return out
}

func initialSignature(f *arc.Func, cls *types.Classifier, closureTarget bool) arc.Signature {
	sig := make(arc.Signature, len(f.Params))
	for i, p := range f.Params {
		switch {
		case closureTarget, !cls.IsRef(f.VarType(p.Var)):
			sig[i] = arc.Owned
		case p.Declared && p.Ownership == arc.Owned:
			sig[i] = arc.Owned
		default:
			sig[i] = arc.Borrowed
		}
	}
	return sig
}

// promote runs one pass over f and reports whether its signature changed.
func promote(f *arc.Func, cls *types.Classifier, sigs arc.SignatureMap) bool {
	mine := sigs[f.Name]
	changed := false
	own := func(v arc.VarID) {
		if idx, ok := f.ParamIndex(v); ok && mine[idx] == arc.Borrowed {
			mine[idx] = arc.Owned
			changed = true
		}
	}
	ownAll := func(vs []arc.VarID) {
		for _, v := range vs {
			own(v)
		}
	}

	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		for ii := range b.Instrs {
			in := &b.Instrs[ii]
			switch in.Kind {
			case arc.InstrApply:
				for i, a := range in.Apply.Args {
					if arc.ArgOwnership(sigs, in.Apply.Func, i) == arc.Owned {
						own(a)
					}
				}
			case arc.InstrApplyIndirect:
				own(in.ApplyIndirect.Closure)
				ownAll(in.ApplyIndirect.Args)
			case arc.InstrPartialApply:
				ownAll(in.PartialApply.Args)
			case arc.InstrConstruct:
				ownAll(in.Construct.Args)
			case arc.InstrProject:
				// Reference fields are only reachable while the base lives.
				if cls.IsRef(in.Project.Ty) {
					own(in.Project.Value)
				}
			}
		}
		if b.Term.Kind == arc.TermReturn {
			own(b.Term.Return.Value)
		}
	}
	return changed
}
