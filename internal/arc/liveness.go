package arc

// Liveness holds live-in/live-out sets per block for the tracked variables.
type Liveness struct {
	In  []VarSet
	Out []VarSet
}

// ComputeLiveness runs the backward use/def fixpoint. track selects the
// variables of interest (usually reference-typed ones); nil tracks all.
func ComputeLiveness(f *Func, track func(VarID) bool) *Liveness {
	n := len(f.Blocks)
	if track == nil {
		track = func(VarID) bool { return true }
	}
	use := make([]VarSet, n)
	def := make([]VarSet, n)
	for i := range f.Blocks {
		use[i], def[i] = blockUseDef(&f.Blocks[i], len(f.Vars), track)
	}

	lv := &Liveness{In: make([]VarSet, n), Out: make([]VarSet, n)}
	for i := range lv.In {
		lv.In[i] = NewVarSet(len(f.Vars))
		lv.Out[i] = NewVarSet(len(f.Vars))
	}
	succs := Successors(f)
	order := Postorder(f)
	for changed := true; changed; {
		changed = false
		for _, b := range order {
			out := NewVarSet(len(f.Vars))
			for _, s := range succs[b] {
				out.UnionWith(lv.In[s])
			}
			in := out.Clone()
			for _, v := range def[b].Slice() {
				in.Remove(v)
			}
			in.UnionWith(use[b])
			if !out.Equal(lv.Out[b]) || !in.Equal(lv.In[b]) {
				lv.Out[b] = out
				lv.In[b] = in
				changed = true
			}
		}
	}
	return lv
}

// blockUseDef returns upward-exposed uses and definitions of a block.
// Block parameters count as definitions.
func blockUseDef(b *Block, nvars int, track func(VarID) bool) (use, def VarSet) {
	use = NewVarSet(nvars)
	def = NewVarSet(nvars)
	for _, v := range b.Term.Uses() {
		if track(v) {
			use.Add(v)
		}
	}
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		in := &b.Instrs[i]
		if d, ok := in.Defined(); ok && track(d) {
			def.Add(d)
			use.Remove(d)
		}
		for _, v := range in.Uses() {
			if track(v) {
				use.Add(v)
			}
		}
	}
	for _, p := range b.Params {
		if track(p) {
			def.Add(p)
			use.Remove(p)
		}
	}
	return use, def
}

// LiveBefore returns, for a block with the given live-out set, the live set
// before every instruction; the last entry is the set before the terminator.
func LiveBefore(b *Block, out VarSet, track func(VarID) bool) []VarSet {
	if track == nil {
		track = func(VarID) bool { return true }
	}
	res := make([]VarSet, len(b.Instrs)+1)
	cur := out.Clone()
	for _, v := range b.Term.Uses() {
		if track(v) {
			cur.Add(v)
		}
	}
	res[len(b.Instrs)] = cur.Clone()
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		in := &b.Instrs[i]
		if d, ok := in.Defined(); ok {
			cur.Remove(d)
		}
		for _, v := range in.Uses() {
			if track(v) {
				cur.Add(v)
			}
		}
		res[i] = cur.Clone()
	}
	return res
}
