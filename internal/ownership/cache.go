package ownership

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"arcc/internal/arc"
	"arcc/internal/types"
)

// SignatureCacheVersion is bumped whenever inference rules change.
const SignatureCacheVersion = 1

// SigEntry is one memoized signature together with what it was computed
// from: the function body and the signatures of its callees at that time.
type SigEntry struct {
	Key  string            `msgpack:"key"`
	Sig  arc.Signature     `msgpack:"sig"`
	Deps map[string]string `msgpack:"deps"`
}

// SignatureCache memoizes borrow signatures across runs. An entry is used
// only while its body key matches and every callee signature it depended on
// is still the same; a changed callee invalidates all transitive callers.
type SignatureCache struct {
	Version int                 `msgpack:"v"`
	Entries map[string]SigEntry `msgpack:"entries"`

	hits   int
	misses int
}

// NewSignatureCache returns an empty cache.
func NewSignatureCache() *SignatureCache {
	return &SignatureCache{Version: SignatureCacheVersion, Entries: make(map[string]SigEntry)}
}

// Hits returns how many signatures the last inference reused.
func (c *SignatureCache) Hits() int { return c.hits }

// Misses returns how many signatures the last inference recomputed.
func (c *SignatureCache) Misses() int { return c.misses }

// valid returns the cached signatures that can be reused as-is. externs must
// already be present in current.
func (c *SignatureCache) valid(m *arc.Module, keys map[string]string, current arc.SignatureMap) map[string]arc.Signature {
	if c.Version != SignatureCacheVersion || len(c.Entries) == 0 {
		return nil
	}
	ok := make(map[string]bool, len(m.Funcs))
	for _, f := range m.Funcs {
		if e, found := c.Entries[f.Name]; found && e.Key == keys[f.Name] && len(e.Sig) == len(f.Params) {
			ok[f.Name] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for name := range ok {
			for dep, want := range c.Entries[name].Deps {
				if depKey(m, dep, ok, c, current) != want {
					delete(ok, name)
					changed = true
					break
				}
			}
		}
	}
	out := make(map[string]arc.Signature, len(ok))
	for name := range ok {
		out[name] = append(arc.Signature(nil), c.Entries[name].Sig...)
	}
	return out
}

// depKey resolves the signature key a dependency has right now, or "!" when
// it is a module function whose entry is not reusable.
func depKey(m *arc.Module, dep string, ok map[string]bool, c *SignatureCache, current arc.SignatureMap) string {
	if m.Func(dep) != nil {
		if !ok[dep] {
			return "!"
		}
		return sigKey(c.Entries[dep].Sig, true)
	}
	sig, known := current[dep]
	return sigKey(sig, known)
}

func (c *SignatureCache) record(m *arc.Module, keys map[string]string, sigs arc.SignatureMap, recomputed int) {
	c.Version = SignatureCacheVersion
	c.misses = recomputed
	c.hits = len(m.Funcs) - recomputed
	entries := make(map[string]SigEntry, len(m.Funcs))
	for _, f := range m.Funcs {
		deps := make(map[string]string)
		for _, callee := range f.Callees() {
			sig, known := sigs[callee]
			deps[callee] = sigKey(sig, known)
		}
		entries[f.Name] = SigEntry{
			Key:  keys[f.Name],
			Sig:  append(arc.Signature(nil), sigs[f.Name]...),
			Deps: deps,
		}
	}
	c.Entries = entries
}

func sigKey(sig arc.Signature, known bool) string {
	if !known {
		return "?"
	}
	var b strings.Builder
	for _, o := range sig {
		if o == arc.Borrowed {
			b.WriteByte('b')
		} else {
			b.WriteByte('o')
		}
	}
	return b.String()
}

// bodyKey content-addresses everything inference reads from a function.
func bodyKey(f *arc.Func, cls *types.Classifier, closureTarget bool) string {
	h := sha256.New()
	_ = arc.DumpFunc(h, f, nil)
	for _, p := range f.Params {
		if p.Declared {
			h.Write([]byte{'d', byte(p.Ownership)})
		} else {
			h.Write([]byte{'-'})
		}
	}
	refs := make([]byte, len(f.Vars))
	for i, v := range f.Vars {
		refs[i] = '0'
		if cls.IsRef(v.Type) {
			refs[i] = '1'
		}
	}
	h.Write(refs)
	if closureTarget {
		h.Write([]byte("closure"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
