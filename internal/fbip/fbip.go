// Package fbip checks that functions written in functional style actually
// run in place, and reports the release/allocation sites that do not.
package fbip

import (
	"fmt"

	"arcc/internal/arc"
	"arcc/internal/diag"
	"arcc/internal/reuse"
	"arcc/internal/source"
	"arcc/internal/types"
)

// Achieved is a site rewritten into in-place reuse.
type Achieved struct {
	Block arc.BlockID
	Var   arc.VarID
	Type  types.TypeID
	Span  source.Span
}

// Missed is a release that still allocates afresh.
type Missed struct {
	Block  arc.BlockID
	Var    arc.VarID
	Name   string
	Type   types.TypeID
	Reason reuse.MissedReason
	Span   source.Span
}

// Report is the FBIP status of one function.
type Report struct {
	Func     string
	Span     source.Span
	Achieved []Achieved
	Missed   []Missed
	IsFBIP   bool
}

// Check builds the report of f from the reuse sites recorded on it and the
// misses of the detection that preceded the rewrite.
func Check(f *arc.Func, det reuse.Detection) Report {
	rep := Report{Func: f.Name, Span: f.Span}
	for _, s := range f.ReuseSites {
		rep.Achieved = append(rep.Achieved, Achieved{Block: s.Block, Var: s.Var, Type: s.Type, Span: s.Span})
	}
	// Tokenized functions carry their sites as Reset/Reuse pairs.
	if len(f.ReuseSites) == 0 {
		for bi := range f.Blocks {
			b := &f.Blocks[bi]
			for ii := range b.Instrs {
				in := &b.Instrs[ii]
				if in.Kind != arc.InstrReset {
					continue
				}
				rep.Achieved = append(rep.Achieved, Achieved{
					Block: b.ID, Var: in.Reset.Var, Type: f.VarType(in.Reset.Var), Span: in.Span,
				})
			}
		}
	}

	actionable := 0
	for _, m := range det.Misses {
		name := ""
		if int(m.Var) < len(f.Vars) {
			name = f.Vars[m.Var].Name
		}
		rep.Missed = append(rep.Missed, Missed{
			Block: m.Block, Var: m.Var, Name: name, Type: m.Type, Reason: m.Reason, Span: m.Span,
		})
		if m.Reason.Actionable() {
			actionable++
		}
	}
	rep.IsFBIP = len(rep.Achieved) > 0 && actionable == 0
	return rep
}

// Actionable returns the misses that count against the function.
func (r *Report) Actionable() []Missed {
	var out []Missed
	for _, m := range r.Missed {
		if m.Reason.Actionable() {
			out = append(out, m)
		}
	}
	return out
}

// Emit reports the findings through rep. Diagnostic mode reports warnings,
// Required mode reports errors with a fix-it hint, Off reports nothing.
// The returned count is the number of errors emitted.
func (r *Report) Emit(rep diag.Reporter, mode arc.FBIPMode) int {
	if rep == nil || mode == arc.FBIPOff {
		return 0
	}
	errs := 0
	for _, m := range r.Actionable() {
		msg := fmt.Sprintf("`%s` is not reused in place in `%s`: %s", m.display(), r.Func, m.Reason.Kind)
		var b *diag.ReportBuilder
		if mode == arc.FBIPRequired {
			b = diag.ReportError(rep, diag.FbipMissedReuse, m.Span, msg).WithFix(fixFor(m.Reason.Kind))
			errs++
		} else {
			b = diag.ReportWarning(rep, diag.FbipMissedReuse, m.Span, msg)
		}
		if m.Reason.Kind == reuse.IntermediateUse && !m.Reason.Use.Empty() {
			b = b.WithNote(m.Reason.Use, "used here after its release")
		}
		b.Emit()
	}
	if mode == arc.FBIPRequired && !r.IsFBIP && errs == 0 {
		diag.ReportError(rep, diag.FbipNotInPlace, r.Span,
			fmt.Sprintf("`%s` is marked fbip=required but reuses no allocation", r.Func)).
			WithFix("rebuild a released value of the same shape, or drop the fbip marker").
			Emit()
		errs++
	}
	return errs
}

func (m Missed) display() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Var.String()
}

func fixFor(k reuse.MissKind) string {
	switch k {
	case reuse.TypeMismatch:
		return "allocate a value of the released type"
	case reuse.IntermediateUse:
		return "move the use before the release"
	case reuse.NoDominance:
		return "allocate on the path that releases the value"
	case reuse.PossiblyShared:
		return "drop the other references before rebuilding the value"
	case reuse.UnknownVariant:
		return "match on the value before rebuilding it"
	}
	return "make the released value unique"
}
