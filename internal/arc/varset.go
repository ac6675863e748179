package arc

import "math/bits"

// VarSet is a dense bit set of variables.
type VarSet struct {
	words []uint64
}

// NewVarSet returns an empty set sized for n variables.
func NewVarSet(n int) VarSet {
	return VarSet{words: make([]uint64, (n+63)/64)}
}

func (s *VarSet) grow(v VarID) {
	need := int(v)/64 + 1
	if need > len(s.words) {
		s.words = append(s.words, make([]uint64, need-len(s.words))...)
	}
}

func (s *VarSet) Add(v VarID) {
	s.grow(v)
	s.words[v/64] |= 1 << (v % 64)
}

func (s *VarSet) Remove(v VarID) {
	if int(v)/64 < len(s.words) {
		s.words[v/64] &^= 1 << (v % 64)
	}
}

func (s VarSet) Has(v VarID) bool {
	if v == NoVar || int(v)/64 >= len(s.words) {
		return false
	}
	return s.words[v/64]&(1<<(v%64)) != 0
}

// UnionWith adds every member of other; it reports whether s changed.
func (s *VarSet) UnionWith(other VarSet) bool {
	changed := false
	if len(other.words) > len(s.words) {
		s.words = append(s.words, make([]uint64, len(other.words)-len(s.words))...)
	}
	for i, w := range other.words {
		if n := s.words[i] | w; n != s.words[i] {
			s.words[i] = n
			changed = true
		}
	}
	return changed
}

// Len returns the number of members.
func (s VarSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy.
func (s VarSet) Clone() VarSet {
	return VarSet{words: append([]uint64(nil), s.words...)}
}

// Slice lists members in ascending order.
func (s VarSet) Slice() []VarID {
	out := make([]VarID, 0, s.Len())
	for i, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, VarID(i*64+b)) // #nosec G115 -- bounded by table size
			w &^= 1 << b
		}
	}
	return out
}

// Equal reports set equality.
func (s VarSet) Equal(other VarSet) bool {
	n := max(len(s.words), len(other.words))
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(s.words) {
			a = s.words[i]
		}
		if i < len(other.words) {
			b = other.words[i]
		}
		if a != b {
			return false
		}
	}
	return true
}
