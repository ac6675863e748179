package tir

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"arcc/internal/types"
)

// parseType resolves a type expression:
//
//	int | str | Name | list[T] | set[T] | map[K, V] | (A, B) | () | fn(A, B) -> R
func parseType(in *types.Interner, src string) (types.TypeID, error) {
	p := &typeParser{in: in, src: norm.NFC.String(src)}
	id, err := p.parse()
	if err != nil {
		return types.NoTypeID, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return types.NoTypeID, fmt.Errorf("unexpected %q in type %q", p.src[p.pos:], src)
	}
	return id, nil
}

type typeParser struct {
	in  *types.Interner
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) eat(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.eat(tok) {
		return fmt.Errorf("expected %q at offset %d in type %q", tok, p.pos, p.src)
	}
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if r >= 0x80 || unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *typeParser) list(closer string) ([]types.TypeID, error) {
	var out []types.TypeID
	if p.eat(closer) {
		return out, nil
	}
	for {
		id, err := p.parse()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
		if p.eat(closer) {
			return out, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *typeParser) parse() (types.TypeID, error) {
	if p.eat("(") {
		elems, err := p.list(")")
		if err != nil {
			return types.NoTypeID, err
		}
		return p.in.Tuple(elems...), nil
	}
	name := p.ident()
	switch name {
	case "":
		return types.NoTypeID, fmt.Errorf("expected a type at offset %d in %q", p.pos, p.src)
	case "list", "set":
		if err := p.expect("["); err != nil {
			return types.NoTypeID, err
		}
		elem, err := p.parse()
		if err != nil {
			return types.NoTypeID, err
		}
		if err := p.expect("]"); err != nil {
			return types.NoTypeID, err
		}
		if name == "set" {
			return p.in.Intern(types.MakeSet(elem)), nil
		}
		return p.in.Intern(types.MakeList(elem)), nil
	case "map":
		if err := p.expect("["); err != nil {
			return types.NoTypeID, err
		}
		kv, err := p.list("]")
		if err != nil {
			return types.NoTypeID, err
		}
		if len(kv) != 2 {
			return types.NoTypeID, fmt.Errorf("map takes a key and a value type in %q", p.src)
		}
		return p.in.Intern(types.MakeMap(kv[0], kv[1])), nil
	case "fn":
		if err := p.expect("("); err != nil {
			return types.NoTypeID, err
		}
		params, err := p.list(")")
		if err != nil {
			return types.NoTypeID, err
		}
		result := p.in.Builtins().Unit
		if p.eat("->") {
			if result, err = p.parse(); err != nil {
				return types.NoTypeID, err
			}
		}
		return p.in.Fn(params, result), nil
	}
	id, ok := p.in.ByName(name)
	if !ok {
		return types.NoTypeID, fmt.Errorf("%w %q", errUnknownType, name)
	}
	return id, nil
}
