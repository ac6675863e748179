package rt

import (
	"fmt"
	"sync"
	"sync/atomic"

	"arcc/internal/drop"
	"arcc/internal/types"
)

// FaultCode classifies heap misuse.
type FaultCode uint8

const (
	FaultInvalidHandle FaultCode = iota + 1
	FaultUseAfterFree
	FaultDoubleFree
	FaultOverRelease
)

func (c FaultCode) String() string {
	switch c {
	case FaultInvalidHandle:
		return "invalid handle"
	case FaultUseAfterFree:
		return "use after free"
	case FaultDoubleFree:
		return "double free"
	case FaultOverRelease:
		return "release of a dead object"
	}
	return "fault"
}

// Fault is raised (as a panic value) when the program misuses the heap:
// the symptom of a wrong retain/release sequence.
type Fault struct {
	Code FaultCode
	Msg  string
}

func (f *Fault) Error() string {
	return f.Code.String() + ": " + f.Msg
}

// Stats counts heap traffic.
type Stats struct {
	Allocs   int64 `json:"allocs"`
	Frees    int64 `json:"frees"`
	Retains  int64 `json:"retains"`
	Releases int64 `json:"releases"`
	Reuses   int64 `json:"reuses"`
}

// Live is the number of objects allocated and not yet freed.
func (s Stats) Live() int64 {
	return s.Allocs - s.Frees
}

// Heap stores every object of a run. Allocation and lookup are locked;
// counting is left to the Runtime implementations.
type Heap struct {
	mu          sync.RWMutex
	next        Handle
	nextAllocID uint64
	objs        map[Handle]*Object

	allocs, frees, retains, releases, reuses atomic.Int64
}

func newHeap() *Heap {
	return &Heap{next: 1, nextAllocID: 1, objs: make(map[Handle]*Object, 128)}
}

// Alloc stores o with a count of one.
func (h *Heap) Alloc(o *Object) Handle {
	h.mu.Lock()
	handle := h.next
	h.next++
	o.AllocID = h.nextAllocID
	h.nextAllocID++
	o.Alive = true
	o.rc = 1
	h.objs[handle] = o
	h.mu.Unlock()
	h.allocs.Add(1)
	return handle
}

// AllocString allocates a string object.
func (h *Heap) AllocString(ty types.TypeID, s string) Handle {
	return h.Alloc(&Object{Kind: OKString, Type: ty, Str: s})
}

// AllocCell allocates a struct, tuple or enum cell.
func (h *Heap) AllocCell(ty types.TypeID, tag uint32, fields []Value, info *drop.Info) Handle {
	return h.Alloc(&Object{Kind: OKCell, Type: ty, Tag: tag, Fields: append([]Value(nil), fields...), Drop: info})
}

// Get resolves a live object.
func (h *Heap) Get(handle Handle) *Object {
	h.mu.RLock()
	obj, ok := h.objs[handle]
	h.mu.RUnlock()
	if handle == 0 || !ok || obj == nil {
		panic(&Fault{Code: FaultInvalidHandle, Msg: fmt.Sprintf("handle %d", handle)})
	}
	if !obj.Alive {
		panic(&Fault{Code: FaultUseAfterFree, Msg: fmt.Sprintf("handle %d (alloc=%d, %s)", handle, obj.AllocID, obj.Kind)})
	}
	return obj
}

// NoteReuse counts an allocation served by a reset cell.
func (h *Heap) NoteReuse() {
	h.reuses.Add(1)
}

// Stats returns a snapshot of the counters.
func (h *Heap) Stats() Stats {
	return Stats{
		Allocs:   h.allocs.Load(),
		Frees:    h.frees.Load(),
		Retains:  h.retains.Load(),
		Releases: h.releases.Load(),
		Reuses:   h.reuses.Load(),
	}
}

// Leaks lists live objects, at most limit of them (0 for all).
func (h *Heap) Leaks(limit int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for handle := Handle(1); handle < h.next; handle++ {
		obj, ok := h.objs[handle]
		if !ok || !obj.Alive {
			continue
		}
		out = append(out, fmt.Sprintf("%s#%d(rc=%d,type=type#%d)", obj.Kind, handle, atomic.LoadInt64(&obj.rc), obj.Type))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (h *Heap) free(o *Object) {
	if !o.Alive {
		panic(&Fault{Code: FaultDoubleFree, Msg: fmt.Sprintf("alloc=%d (%s)", o.AllocID, o.Kind)})
	}
	o.Alive = false
	o.Fields, o.Elems, o.Str = nil, nil, ""
	h.frees.Add(1)
}
