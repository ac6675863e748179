package tir

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"arcc/internal/arc"
	"arcc/internal/diag"
	"arcc/internal/source"
	"arcc/internal/types"
)

// ErrInvalid is returned when the document produced error diagnostics.
var ErrInvalid = errors.New("invalid typed IR")

var errUnknownType = errors.New("unknown type")

type reader struct {
	fs   *source.FileSet
	file source.FileID
	rep  diag.Reporter
	in   *types.Interner
	errs int

	funcs   map[string]bool
	callees map[string]callee
}

// ReadFile loads path into fs and reads it.
func ReadFile(fs *source.FileSet, path string, rep diag.Reporter) (*arc.Module, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, err
	}
	return Read(fs, id, rep)
}

// Read decodes the typed IR held by file id. Problems are reported through
// rep with their positions; the module is returned only when none of them
// is an error.
func Read(fs *source.FileSet, id source.FileID, rep diag.Reporter) (*arc.Module, error) {
	r := &reader{fs: fs, file: id, rep: rep, in: types.NewInterner(), funcs: make(map[string]bool)}
	if r.rep == nil {
		r.rep = diag.NopReporter{}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(fs.Get(id).Content, &root); err != nil {
		r.errorAt(diag.TirSyntax, fs.SpanAt(id, source.LineCol{Line: 1, Col: 1}, 0), err.Error())
		return nil, fmt.Errorf("%w: %s", ErrInvalid, fs.Get(id).Path)
	}
	var doc moduleDoc
	if len(root.Content) > 0 {
		if err := root.Content[0].Decode(&doc); err != nil {
			r.errorf(diag.TirSyntax, root.Content[0], "%v", err)
		}
	}

	m := &arc.Module{Types: r.in}
	r.readTypes(doc.Types)
	m.Externs = r.readExterns(doc.Externs)
	r.declareCallees(doc.Functions, m.Externs)
	for i := range doc.Functions {
		if f := r.readFunc(&doc.Functions[i]); f != nil {
			m.Funcs = append(m.Funcs, f)
		}
	}
	if r.errs > 0 {
		return nil, fmt.Errorf("%w: %s: %d errors", ErrInvalid, fs.Get(id).Path, r.errs)
	}
	return m, nil
}

func name(s string) string {
	return norm.NFC.String(s)
}

// span covers the rest of the node's line.
func (r *reader) span(n *yaml.Node) source.Span {
	if n == nil || n.Line == 0 {
		return source.NoSpan
	}
	line, err := safecast.Conv[uint32](n.Line)
	if err != nil {
		return source.NoSpan
	}
	col, err := safecast.Conv[uint32](n.Column)
	if err != nil {
		return source.NoSpan
	}
	text := r.fs.Get(r.file).GetLine(line)
	width := uint32(1)
	if rest := len(text) - int(col) + 1; rest > 1 {
		if w, err := safecast.Conv[uint32](rest); err == nil {
			width = w
		}
	}
	return r.fs.SpanAt(r.file, source.LineCol{Line: line, Col: col}, width)
}

func (r *reader) errorAt(code diag.Code, sp source.Span, msg string) {
	diag.ReportError(r.rep, code, sp, msg).Emit()
	r.errs++
}

func (r *reader) errorf(code diag.Code, n *yaml.Node, format string, args ...any) {
	r.errorAt(code, r.span(n), fmt.Sprintf(format, args...))
}

func (r *reader) typeOf(n *yaml.Node, expr string) types.TypeID {
	if expr == "" {
		r.errorf(diag.TirUnknownType, n, "missing type")
		return types.NoTypeID
	}
	id, err := parseType(r.in, expr)
	if err != nil {
		r.errorf(diag.TirUnknownType, n, "%v", err)
		return types.NoTypeID
	}
	return id
}

// readTypes registers every nominal name before resolving fields so that
// declarations may refer to each other in any order.
func (r *reader) readTypes(nodes []yaml.Node) {
	docs := make([]typeDoc, len(nodes))
	ids := make([]types.TypeID, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if err := n.Decode(&docs[i]); err != nil {
			r.errorf(diag.TirSyntax, n, "%v", err)
			continue
		}
		d := &docs[i]
		var nm string
		register := r.in.RegisterStruct
		switch {
		case d.Struct != "":
			nm = name(d.Struct)
		case d.Enum != "":
			nm, register = name(d.Enum), r.in.RegisterEnum
		case d.Opaque != "":
			nm, register = name(d.Opaque), r.in.RegisterOpaque
		default:
			r.errorf(diag.TirSyntax, n, "type declaration needs struct, enum or opaque")
			continue
		}
		if _, dup := r.in.ByName(nm); dup {
			r.errorf(diag.TirDuplicateName, n, "type %q declared twice", nm)
			continue
		}
		ids[i] = register(nm)
	}

	for i := range nodes {
		d, id, n := &docs[i], ids[i], &nodes[i]
		if id == types.NoTypeID {
			continue
		}
		switch {
		case d.Struct != "":
			r.in.SetStructFields(id, r.fields(n, d.Fields))
		case d.Enum != "":
			variants := make([]types.Variant, len(d.Variants))
			seen := make(map[string]bool, len(d.Variants))
			for vi, v := range d.Variants {
				vn := name(v.Name)
				if seen[vn] {
					r.errorf(diag.TirDuplicateName, n, "variant %q declared twice", vn)
				}
				seen[vn] = true
				variants[vi] = types.Variant{Name: vn, Fields: r.fields(n, v.Fields)}
			}
			r.in.SetEnumVariants(id, variants)
		}
	}
}

func (r *reader) fields(n *yaml.Node, docs []fieldDoc) []types.Field {
	out := make([]types.Field, len(docs))
	for i, fd := range docs {
		out[i] = types.Field{Name: name(fd.Name), Type: r.typeOf(n, fd.Type)}
	}
	return out
}

func (r *reader) ownership(n *yaml.Node, s string) (arc.Ownership, bool) {
	switch s {
	case "":
		return arc.Owned, false
	case "owned":
		return arc.Owned, true
	case "borrowed":
		return arc.Borrowed, true
	}
	r.errorf(diag.TirBadOwnership, n, "ownership must be owned or borrowed, got %q", s)
	return arc.Owned, false
}

func (r *reader) readExterns(nodes []yaml.Node) []arc.Extern {
	var out []arc.Extern
	for i := range nodes {
		n := &nodes[i]
		var d externDoc
		if err := n.Decode(&d); err != nil {
			r.errorf(diag.TirSyntax, n, "%v", err)
			continue
		}
		e := arc.Extern{Name: name(d.Name), Result: r.in.Builtins().Unit}
		if r.funcs[e.Name] {
			r.errorf(diag.TirDuplicateFunc, n, "function %q declared twice", e.Name)
			continue
		}
		r.funcs[e.Name] = true
		if d.Result != "" {
			e.Result = r.typeOf(n, d.Result)
		}
		for _, p := range d.Params {
			own, _ := r.ownership(n, p.Ownership)
			e.Params = append(e.Params, r.typeOf(n, p.Type))
			e.Sig = append(e.Sig, own)
		}
		out = append(out, e)
	}
	return out
}
