package rt

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"arcc/internal/types"
)

// AbortFunc ends the process after an unrecoverable runtime fault. A
// release is a non-failing primitive for its callers, so a panic escaping
// a drop hook lands here instead of unwinding through them.
var AbortFunc = func(msg string) {
	fmt.Fprintln(os.Stderr, "arcc runtime: fatal: "+msg)
	os.Exit(134)
}

// Hook runs user teardown logic when an object is freed, before its
// children are released. Reset cells do not run it.
type Hook func(o *Object)

// Runtime is the retain/release contract. Implementations are chosen once
// per program by New and never switch.
type Runtime interface {
	Mode() Mode
	Heap() *Heap
	// Retain adds n counts to o.
	Retain(o *Object, n uint32)
	// Release drops one count and tears o down when it reaches zero.
	Release(o *Object)
	// IsShared reports a count above one.
	IsShared(o *Object) bool
	// Count returns the current count.
	Count(o *Object) int64
	// Reset hands back o itself when it is unique, after releasing its
	// children; otherwise it releases o and returns nil.
	Reset(o *Object) *Object
	// SetHook installs a teardown hook for objects of type ty.
	SetHook(ty types.TypeID, h Hook)
}

// New returns the runtime for mode.
func New(mode Mode) Runtime {
	if mode == ModeSingle {
		s := &Single{}
		s.init()
		return s
	}
	a := &Atomic{}
	a.init()
	return a
}

type core struct {
	heap  *Heap
	mu    sync.RWMutex
	hooks map[types.TypeID]Hook
}

func (c *core) init() {
	c.heap = newHeap()
	c.hooks = make(map[types.TypeID]Hook)
}

func (c *core) Heap() *Heap { return c.heap }

func (c *core) SetHook(ty types.TypeID, h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[ty] = h
}

func (c *core) hook(ty types.TypeID) Hook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks[ty]
}

// runHook calls the hook of o, converting a panic into an abort.
func (c *core) runHook(o *Object) {
	h := c.hook(o.Type)
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			AbortFunc(fmt.Sprintf("drop hook for type#%d panicked: %v", o.Type, r))
		}
	}()
	h(o)
}

// teardown frees dead and every child whose count release brings to zero.
// It walks a worklist so deep structures do not grow the Go stack.
func (c *core) teardown(dead *Object, release func(*Object) bool) {
	work := []*Object{dead}
	for len(work) > 0 {
		o := work[len(work)-1]
		work = work[:len(work)-1]
		c.runHook(o)
		for _, v := range o.children() {
			if !v.IsRef() {
				continue
			}
			child := c.heap.Get(v.H)
			if release(child) {
				work = append(work, child)
			}
		}
		c.heap.free(o)
	}
}

// releaseChildren drops the children of a unique object that stays alive
// and empties it, so a later release frees only the cell.
func (c *core) releaseChildren(o *Object, release func(*Object) bool) {
	for _, v := range o.children() {
		if !v.IsRef() {
			continue
		}
		if child := c.heap.Get(v.H); release(child) {
			c.teardown(child, release)
		}
	}
	o.Fields = o.Fields[:0]
	o.Elems = nil
}

// Atomic counts with sync/atomic; its sequentially consistent operations
// give the relaxed increment, the releasing decrement and the acquire
// before teardown.
type Atomic struct {
	core
}

func (*Atomic) Mode() Mode { return ModeAtomic }

func (a *Atomic) Retain(o *Object, n uint32) {
	atomic.AddInt64(&o.rc, int64(n))
	a.heap.retains.Add(int64(n))
}

// dec drops one count and reports whether it reached zero.
func (a *Atomic) dec(o *Object) bool {
	a.heap.releases.Add(1)
	n := atomic.AddInt64(&o.rc, -1)
	if n < 0 {
		panic(&Fault{Code: FaultOverRelease, Msg: fmt.Sprintf("alloc=%d (%s)", o.AllocID, o.Kind)})
	}
	return n == 0
}

func (a *Atomic) Release(o *Object) {
	if a.dec(o) {
		a.teardown(o, a.dec)
	}
}

func (*Atomic) IsShared(o *Object) bool { return atomic.LoadInt64(&o.rc) > 1 }

func (*Atomic) Count(o *Object) int64 { return atomic.LoadInt64(&o.rc) }

func (a *Atomic) Reset(o *Object) *Object {
	if atomic.LoadInt64(&o.rc) == 1 {
		a.releaseChildren(o, a.dec)
		return o
	}
	a.Release(o)
	return nil
}

// Single counts with plain integers. Objects must not cross goroutines.
type Single struct {
	core
}

func (*Single) Mode() Mode { return ModeSingle }

func (s *Single) Retain(o *Object, n uint32) {
	o.rc += int64(n)
	s.heap.retains.Add(int64(n))
}

func (s *Single) dec(o *Object) bool {
	s.heap.releases.Add(1)
	o.rc--
	if o.rc < 0 {
		panic(&Fault{Code: FaultOverRelease, Msg: fmt.Sprintf("alloc=%d (%s)", o.AllocID, o.Kind)})
	}
	return o.rc == 0
}

func (s *Single) Release(o *Object) {
	if s.dec(o) {
		s.teardown(o, s.dec)
	}
}

func (*Single) IsShared(o *Object) bool { return o.rc > 1 }

func (*Single) Count(o *Object) int64 { return o.rc }

func (s *Single) Reset(o *Object) *Object {
	if o.rc == 1 {
		s.releaseChildren(o, s.dec)
		return o
	}
	s.Release(o)
	return nil
}
