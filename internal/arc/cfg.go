package arc

import "slices"

// Successors returns the successor lists of every block.
func Successors(f *Func) [][]BlockID {
	out := make([][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		out[i] = f.Blocks[i].Term.Successors()
	}
	return out
}

// Predecessors returns the distinct predecessors of every block, ordered by
// block id.
func Predecessors(f *Func) [][]BlockID {
	out := make([][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		for _, s := range f.Blocks[i].Term.Successors() {
			if int(s) < len(out) {
				out[s] = append(out[s], BlockID(i)) // #nosec G115
			}
		}
	}
	return out
}

// Postorder lists blocks reachable from the entry in DFS postorder.
func Postorder(f *Func) []BlockID {
	if len(f.Blocks) == 0 {
		return nil
	}
	visited := make([]bool, len(f.Blocks))
	var order []BlockID
	type frame struct {
		block BlockID
		succs []BlockID
		next  int
	}
	stack := []frame{{block: f.Entry, succs: f.Blocks[f.Entry].Term.Successors()}}
	visited[f.Entry] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.succs) {
			s := top.succs[top.next]
			top.next++
			if int(s) < len(visited) && !visited[s] {
				visited[s] = true
				stack = append(stack, frame{block: s, succs: f.Blocks[s].Term.Successors()})
			}
			continue
		}
		order = append(order, top.block)
		stack = stack[:len(stack)-1]
	}
	return order
}

// ReversePostorder lists reachable blocks in reverse postorder.
func ReversePostorder(f *Func) []BlockID {
	order := Postorder(f)
	slices.Reverse(order)
	return order
}

// Reachable marks blocks reachable from the entry.
func Reachable(f *Func) []bool {
	out := make([]bool, len(f.Blocks))
	for _, b := range Postorder(f) {
		out[b] = true
	}
	return out
}

// DomTree holds immediate dominators of the reachable blocks.
type DomTree struct {
	idom  []BlockID // NoBlock for the entry and unreachable blocks
	depth []int
	entry BlockID
}

// Dominators computes immediate dominators with the iterative
// Cooper-Harvey-Kennedy scheme over reverse postorder.
func Dominators(f *Func) *DomTree {
	n := len(f.Blocks)
	rpo := ReversePostorder(f)
	index := make([]int, n)
	for i := range index {
		index[i] = -1
	}
	for i, b := range rpo {
		index[b] = i
	}
	preds := Predecessors(f)
	idom := make([]BlockID, n)
	for i := range idom {
		idom[i] = NoBlock
	}
	if n == 0 {
		return &DomTree{}
	}
	idom[f.Entry] = f.Entry

	intersect := func(a, b BlockID) BlockID {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			newIdom := NoBlock
			for _, p := range preds[b] {
				if index[p] < 0 || idom[p] == NoBlock {
					continue
				}
				if newIdom == NoBlock {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != NoBlock && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	t := &DomTree{idom: idom, depth: make([]int, n), entry: f.Entry}
	for _, b := range rpo {
		if b != f.Entry && idom[b] != NoBlock {
			t.depth[b] = t.depth[idom[b]] + 1
		}
	}
	t.idom[f.Entry] = NoBlock
	return t
}

// Idom returns the immediate dominator of b (NoBlock for the entry).
func (t *DomTree) Idom(b BlockID) BlockID {
	if int(b) >= len(t.idom) {
		return NoBlock
	}
	return t.idom[b]
}

// Dominates reports whether a dominates b. Every block dominates itself.
func (t *DomTree) Dominates(a, b BlockID) bool {
	if int(a) >= len(t.idom) || int(b) >= len(t.idom) {
		return false
	}
	if a == b {
		return true
	}
	if b != t.entry && t.idom[b] == NoBlock {
		return false
	}
	for t.depth[b] > t.depth[a] {
		b = t.idom[b]
	}
	return a == b
}
