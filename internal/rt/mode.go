package rt

import "fmt"

// Mode selects the counter implementation for a whole program.
type Mode uint8

const (
	// ModeAtomic is safe when objects cross goroutines.
	ModeAtomic Mode = iota
	// ModeSingle uses plain integers and must stay on one goroutine.
	ModeSingle
)

func (m Mode) String() string {
	if m == ModeSingle {
		return "single"
	}
	return "atomic"
}

// ParseMode accepts the --runtime spellings.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "atomic":
		return ModeAtomic, nil
	case "single":
		return ModeSingle, nil
	}
	return ModeAtomic, fmt.Errorf("unknown runtime mode %q (want atomic or single)", s)
}
