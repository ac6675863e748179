package arc

import (
	"fmt"
	"math"

	"fortio.org/safecast"
)

// VarID indexes Func.Vars. Indices are stable for the lifetime of a function.
type VarID uint32

// BlockID indexes Func.Blocks.
type BlockID uint32

const (
	// NoVar marks an absent variable (unit return, no token).
	NoVar VarID = math.MaxUint32
	// NoBlock marks an absent block (switch without default).
	NoBlock BlockID = math.MaxUint32
)

func (v VarID) String() string {
	if v == NoVar {
		return "_"
	}
	return fmt.Sprintf("%%%d", uint32(v))
}

func (b BlockID) String() string {
	if b == NoBlock {
		return "bb?"
	}
	return fmt.Sprintf("bb%d", uint32(b))
}

// Ownership is the calling convention of a parameter.
type Ownership uint8

const (
	// Owned parameters transfer one count from the caller to the callee.
	Owned Ownership = iota
	// Borrowed parameters are kept alive by the caller; the callee neither
	// retains nor releases them unless it needs its own count.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// Signature is the per-parameter ownership of a function.
type Signature []Ownership

// Equal reports whether both signatures agree on every parameter.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Signatures resolves callee signatures. Unknown callees are treated as
// taking every argument owned.
type Signatures interface {
	Lookup(name string) (Signature, bool)
}

// SignatureMap is the plain map implementation of Signatures.
type SignatureMap map[string]Signature

func (m SignatureMap) Lookup(name string) (Signature, bool) {
	s, ok := m[name]
	return s, ok
}

// ArgOwnership returns how the callee takes its i-th argument.
func ArgOwnership(sigs Signatures, callee string, i int) Ownership {
	if sigs == nil {
		return Owned
	}
	sig, ok := sigs.Lookup(callee)
	if !ok || i >= len(sig) {
		return Owned
	}
	return sig[i]
}

// FBIPMode selects how missed reuse is reported for a function.
type FBIPMode uint8

const (
	// FBIPDiagnostic reports missed reuse as warnings.
	FBIPDiagnostic FBIPMode = iota
	// FBIPRequired turns missed reuse into errors.
	FBIPRequired
	// FBIPOff disables the checker for the function.
	FBIPOff
)

func (m FBIPMode) String() string {
	switch m {
	case FBIPRequired:
		return "required"
	case FBIPOff:
		return "off"
	default:
		return "diagnostic"
	}
}

// ParseFBIPMode accepts the marker spellings used by the typed IR and config.
func ParseFBIPMode(s string) (FBIPMode, error) {
	switch s {
	case "", "diagnostic":
		return FBIPDiagnostic, nil
	case "required":
		return FBIPRequired, nil
	case "off":
		return FBIPOff, nil
	}
	return FBIPDiagnostic, fmt.Errorf("unknown fbip mode %q", s)
}

func toVarID(n int) VarID {
	id, err := safecast.Conv[uint32](n)
	if err != nil || id == math.MaxUint32 {
		panic(fmt.Errorf("variable table overflow: %d", n))
	}
	return VarID(id)
}

func toBlockID(n int) BlockID {
	id, err := safecast.Conv[uint32](n)
	if err != nil || id == math.MaxUint32 {
		panic(fmt.Errorf("block table overflow: %d", n))
	}
	return BlockID(id)
}
