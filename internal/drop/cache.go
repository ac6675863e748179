package drop

import (
	"cmp"
	"slices"
	"sync"

	"arcc/internal/arc"
	"arcc/internal/types"
)

// Cache holds one descriptor per type. Entries are written once and never
// replaced; the cache is safe for concurrent use by pipeline workers.
type Cache struct {
	cls  *types.Classifier
	mu   sync.RWMutex
	byTy map[types.TypeID]Info
}

// NewCache creates an empty cache computing descriptors with cls.
func NewCache(cls *types.Classifier) *Cache {
	return &Cache{cls: cls, byTy: make(map[types.TypeID]Info, 64)}
}

// Get returns the descriptor of id, computing it on first use. ok is false
// for scalar types.
func (c *Cache) Get(id types.TypeID) (Info, bool) {
	c.mu.RLock()
	info, ok := c.byTy[id]
	c.mu.RUnlock()
	if ok {
		return info, true
	}
	computed, ok := Compute(id, c.cls)
	if !ok {
		return Info{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, dup := c.byTy[id]; dup {
		return prev, true
	}
	c.byTy[id] = computed
	return computed, true
}

// Seed stores descriptors loaded from a disk cache. Types already present
// keep their entry.
func (c *Cache) Seed(infos []Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range infos {
		if _, dup := c.byTy[info.Type]; !dup {
			c.byTy[info.Type] = info
		}
	}
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byTy)
}

// Snapshot returns every descriptor ordered by type id.
func (c *Cache) Snapshot() []Info {
	c.mu.RLock()
	out := make([]Info, 0, len(c.byTy))
	for _, info := range c.byTy {
		out = append(out, info)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.Type, b.Type) })
	return out
}

// Collect returns the descriptors of every type released in f, in order of
// first release.
func Collect(f *arc.Func, c *Cache) []Info {
	if f == nil {
		return nil
	}
	seen := make(map[types.TypeID]bool)
	var out []Info
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			var v arc.VarID
			switch in.Kind {
			case arc.InstrRcDec:
				v = in.RcDec.Var
			case arc.InstrReset:
				v = in.Reset.Var
			default:
				continue
			}
			ty := f.VarType(v)
			if seen[ty] {
				continue
			}
			seen[ty] = true
			if info, ok := c.Get(ty); ok {
				out = append(out, info)
			}
		}
	}
	return out
}

// Closure is the environment descriptor of one closure-creating site.
type Closure struct {
	Func string `json:"func" msgpack:"fn"`
	Info Info   `json:"info" msgpack:"info"`
}

// Closures describes the environments built by f, one per callee and
// capture shape, in program order.
func Closures(f *arc.Func, cls *types.Classifier) []Closure {
	if f == nil {
		return nil
	}
	var out []Closure
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			var (
				name string
				fn   types.TypeID
				caps []arc.VarID
			)
			switch {
			case in.Kind == arc.InstrPartialApply:
				name, fn, caps = in.PartialApply.Func, in.PartialApply.Ty, in.PartialApply.Args
			case in.Kind == arc.InstrConstruct && in.Construct.Ctor.Kind == arc.CtorClosure:
				name, fn, caps = in.Construct.Ctor.Func, in.Construct.Ty, in.Construct.Args
			default:
				continue
			}
			tys := make([]types.TypeID, len(caps))
			for i, v := range caps {
				tys[i] = f.VarType(v)
			}
			env := Closure{Func: name, Info: ComputeClosureEnv(fn, tys, cls)}
			if slices.ContainsFunc(out, func(o Closure) bool { return o.Func == env.Func && slices.Equal(o.Info.Fields, env.Info.Fields) }) {
				continue
			}
			out = append(out, env)
		}
	}
	return out
}
