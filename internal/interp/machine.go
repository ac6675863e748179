// Package interp executes ARC IR on the reference runtime. It performs
// exactly the retains and releases written in the IR, so running the
// conservative and the optimized form of a program side by side checks the
// optimizer: both must compute the same value and leave the heap empty.
package interp

import (
	"context"
	"errors"

	"arcc/internal/arc"
	"arcc/internal/drop"
	"arcc/internal/rt"
	"arcc/internal/source"
	"arcc/internal/types"
)

const (
	DefaultMaxSteps = 50_000_000
	DefaultMaxDepth = 10_000
)

// Options configures a Machine.
type Options struct {
	Mode     rt.Mode
	Externs  map[string]Extern
	Drops    *drop.Cache // shared descriptor cache; nil builds a private one
	MaxSteps int64
	MaxDepth int
}

// ExternCall is what an extern implementation receives. Args are borrowed
// for the duration of the call; the machine releases the owned ones after
// it returns.
type ExternCall struct {
	Name   string
	Args   []rt.Value
	Types  []types.TypeID
	Result types.TypeID
}

// Extern implements a function declared outside the module. The returned
// value carries one count owned by the caller.
type Extern func(m *Machine, c ExternCall) (rt.Value, error)

type frame struct {
	fn   *arc.Func
	vals []rt.Value
	init []bool
	span source.Span
}

// Machine runs the functions of one module against one runtime.
type Machine struct {
	mod     *arc.Module
	cls     *types.Classifier
	in      *types.Interner
	rt      rt.Runtime
	drops   *drop.Cache
	infos   map[types.TypeID]*drop.Info
	funcs   map[string]*arc.Func
	externs map[string]Extern

	ctx      context.Context
	stack    []*frame
	steps    int64
	maxSteps int64
	maxDepth int
}

// New prepares a machine; the runtime is created from opts.Mode.
func New(mod *arc.Module, cls *types.Classifier, opts Options) *Machine {
	m := &Machine{
		mod:      mod,
		cls:      cls,
		in:       cls.Interner(),
		rt:       rt.New(opts.Mode),
		drops:    opts.Drops,
		infos:    make(map[types.TypeID]*drop.Info),
		funcs:    make(map[string]*arc.Func, len(mod.Funcs)),
		externs:  opts.Externs,
		maxSteps: opts.MaxSteps,
		maxDepth: opts.MaxDepth,
	}
	if m.drops == nil {
		m.drops = drop.NewCache(cls)
	}
	if m.maxSteps <= 0 {
		m.maxSteps = DefaultMaxSteps
	}
	if m.maxDepth <= 0 {
		m.maxDepth = DefaultMaxDepth
	}
	for _, f := range mod.Funcs {
		m.funcs[f.Name] = f
	}
	return m
}

// Runtime returns the runtime the machine allocates on.
func (m *Machine) Runtime() rt.Runtime { return m.rt }

// Heap returns the heap of the runtime.
func (m *Machine) Heap() *rt.Heap { return m.rt.Heap() }

// Call runs the named function. It takes over one count of every argument
// and returns a value whose count belongs to the caller. Heap faults come
// back as an *Error with the fault attached.
func (m *Machine) Call(ctx context.Context, name string, args ...rt.Value) (res rt.Value, err error) {
	fn, ok := m.funcs[name]
	if !ok {
		return rt.Value{}, m.errorf(ErrUnknownFunc, "no function %q", name)
	}
	m.ctx = ctx
	m.stack = m.stack[:0]
	m.steps = 0
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var fault *rt.Fault
		if e, isErr := r.(error); isErr && errors.As(e, &fault) {
			ierr := m.errorf(ErrHeapFault, "%s", fault.Error())
			ierr.Fault = fault
			res, err = rt.Value{}, ierr
			return
		}
		panic(r)
	}()

	out, ierr := m.invoke(fn, args)
	if ierr != nil {
		return rt.Value{}, ierr
	}
	// the host held the counts of borrowed arguments
	for i, p := range fn.Params {
		if p.Ownership == arc.Borrowed && i < len(args) {
			m.release(args[i])
		}
	}
	return out, nil
}

// Release drops a count the host holds.
func (m *Machine) Release(v rt.Value) {
	m.release(v)
}

func (m *Machine) release(v rt.Value) {
	if v.IsRef() {
		m.rt.Release(m.Heap().Get(v.H))
	}
}

func (m *Machine) invoke(fn *arc.Func, args []rt.Value) (rt.Value, *Error) {
	if len(args) != len(fn.Params) {
		return rt.Value{}, m.errorf(ErrArity, "%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	if len(m.stack) >= m.maxDepth {
		return rt.Value{}, m.errorf(ErrStackOverflow, "call depth exceeds %d", m.maxDepth)
	}
	fr := &frame{
		fn:   fn,
		vals: make([]rt.Value, len(fn.Vars)),
		init: make([]bool, len(fn.Vars)),
		span: fn.Span,
	}
	for i, p := range fn.Params {
		fr.set(p.Var, args[i])
	}
	m.stack = append(m.stack, fr)
	res, err := m.run(fr)
	if err != nil {
		return rt.Value{}, err
	}
	m.stack = m.stack[:len(m.stack)-1]
	return res, nil
}

func (fr *frame) set(v arc.VarID, val rt.Value) {
	fr.vals[v] = val
	fr.init[v] = true
}

func (m *Machine) get(fr *frame, v arc.VarID) (rt.Value, *Error) {
	if v == arc.NoVar || int(v) >= len(fr.vals) || !fr.init[v] {
		return rt.Value{}, m.errorf(ErrUninitialized, "read of %s before it is defined", v)
	}
	return fr.vals[v], nil
}

func (m *Machine) getAll(fr *frame, vs []arc.VarID) ([]rt.Value, *Error) {
	out := make([]rt.Value, len(vs))
	for i, v := range vs {
		val, err := m.get(fr, v)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func (m *Machine) tick() *Error {
	m.steps++
	if m.steps > m.maxSteps {
		return m.errorf(ErrStepLimit, "step limit of %d exceeded", m.maxSteps)
	}
	if m.ctx != nil && m.steps%4096 == 0 {
		if err := m.ctx.Err(); err != nil {
			return m.errorf(ErrCanceled, "%v", err)
		}
	}
	return nil
}

func (m *Machine) run(fr *frame) (rt.Value, *Error) {
	fn := fr.fn
	cur := fn.Entry
	for {
		b := fn.Block(cur)
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if !in.Span.Empty() {
				fr.span = in.Span
			}
			if err := m.tick(); err != nil {
				return rt.Value{}, err
			}
			if err := m.exec(fr, in); err != nil {
				return rt.Value{}, err
			}
		}
		if err := m.tick(); err != nil {
			return rt.Value{}, err
		}
		next, done, res, err := m.term(fr, &b.Term)
		if err != nil || done {
			return res, err
		}
		cur = next
	}
}

func (m *Machine) term(fr *frame, t *arc.Terminator) (next arc.BlockID, done bool, res rt.Value, err *Error) {
	switch t.Kind {
	case arc.TermReturn:
		if t.Return.Value == arc.NoVar {
			return arc.NoBlock, true, rt.Unit(), nil
		}
		v, err := m.get(fr, t.Return.Value)
		return arc.NoBlock, true, v, err
	case arc.TermJump:
		vals, err := m.getAll(fr, t.Jump.Args)
		if err != nil {
			return arc.NoBlock, false, rt.Value{}, err
		}
		target := fr.fn.Block(t.Jump.Target)
		if len(vals) != len(target.Params) {
			return arc.NoBlock, false, rt.Value{}, m.errorf(ErrArity, "%s takes %d block arguments, got %d", target.ID, len(target.Params), len(vals))
		}
		for i, p := range target.Params {
			fr.set(p, vals[i])
		}
		return t.Jump.Target, false, rt.Value{}, nil
	case arc.TermBranch:
		c, err := m.get(fr, t.Branch.Cond)
		if err != nil {
			return arc.NoBlock, false, rt.Value{}, err
		}
		if c.Kind != rt.VBool {
			return arc.NoBlock, false, rt.Value{}, m.errorf(ErrTypeMismatch, "branch on %s", c)
		}
		if c.I != 0 {
			return t.Branch.Then, false, rt.Value{}, nil
		}
		return t.Branch.Else, false, rt.Value{}, nil
	case arc.TermSwitch:
		s, err := m.get(fr, t.Switch.Scrutinee)
		if err != nil {
			return arc.NoBlock, false, rt.Value{}, err
		}
		for _, c := range t.Switch.Cases {
			if c.Value == s.I {
				return c.Target, false, rt.Value{}, nil
			}
		}
		if t.Switch.Default == arc.NoBlock {
			return arc.NoBlock, false, rt.Value{}, m.errorf(ErrNoCase, "no switch case for %d", s.I)
		}
		return t.Switch.Default, false, rt.Value{}, nil
	}
	return arc.NoBlock, false, rt.Value{}, m.errorf(ErrUnreachable, "reached an unreachable terminator in %s", fr.fn.Name)
}

// Result is the outcome of Run.
type Result struct {
	Value string   `json:"value"`
	Stats rt.Stats `json:"stats"`
	Leaks []string `json:"leaks,omitempty"`
}

// Run calls entry on a fresh machine, renders the returned value and then
// releases it, so Leaks lists what the program itself failed to free.
func Run(ctx context.Context, mod *arc.Module, cls *types.Classifier, entry string, opts Options, args ...rt.Value) (Result, error) {
	m := New(mod, cls, opts)
	v, err := m.Call(ctx, entry, args...)
	if err != nil {
		return Result{}, err
	}
	res := Result{Value: m.Render(v, mod.Func(entry).Result)}
	m.release(v)
	res.Stats = m.Heap().Stats()
	res.Leaks = m.Heap().Leaks(16)
	return res, nil
}
