package types

// ArcClass tells the RC passes whether values of a type carry a count.
type ArcClass uint8

const (
	// Scalar values are copied bitwise and never counted.
	Scalar ArcClass = iota
	// DefiniteRef values are always heap cells with a count.
	DefiniteRef
	// PossibleRef values may be heap cells (opaque handles); they are
	// counted like DefiniteRef but never reused in place.
	PossibleRef
)

func (c ArcClass) String() string {
	switch c {
	case Scalar:
		return "scalar"
	case DefiniteRef:
		return "ref"
	case PossibleRef:
		return "maybe-ref"
	default:
		return "?"
	}
}

// Classifier answers ArcClass queries. Classes are computed once when the
// classifier is built; the interner must not gain types afterwards for the
// cached answers to cover them, later ids are classified on demand.
// A Classifier is safe for concurrent use.
type Classifier struct {
	in    *Interner
	cache []ArcClass
}

// NewClassifier classifies every type currently in the interner.
func NewClassifier(in *Interner) *Classifier {
	c := &Classifier{in: in, cache: make([]ArcClass, in.Len())}
	for id := range c.cache {
		c.cache[id] = c.classify(TypeID(id)) // #nosec G115 -- bounded by interner size
	}
	return c
}

// Interner exposes the type table the classifier was built from.
func (c *Classifier) Interner() *Interner {
	return c.in
}

// Class returns the ArcClass of the type.
func (c *Classifier) Class(id TypeID) ArcClass {
	if int(id) < len(c.cache) {
		return c.cache[id]
	}
	return c.classify(id)
}

// IsRef reports whether values of the type need retain/release.
func (c *Classifier) IsRef(id TypeID) bool {
	return c.Class(id) != Scalar
}

// classify needs no recursion guard: aggregates are boxed, so a recursive
// type is a DefiniteRef without looking at its fields.
func (c *Classifier) classify(id TypeID) ArcClass {
	tt, ok := c.in.Lookup(id)
	if !ok {
		return Scalar
	}
	switch tt.Kind {
	case KindInvalid, KindUnit, KindBool, KindInt, KindFloat, KindChar, KindByte:
		return Scalar
	case KindString, KindList, KindMap, KindSet, KindFn, KindStruct, KindTuple:
		return DefiniteRef
	case KindEnum:
		for _, v := range c.in.enums[tt.Payload].Variants {
			if len(v.Fields) > 0 {
				return DefiniteRef
			}
		}
		return Scalar
	case KindOpaque:
		return PossibleRef
	}
	return PossibleRef
}
