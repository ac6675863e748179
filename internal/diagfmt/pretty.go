package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"arcc/internal/diag"
	"arcc/internal/source"
)

type palette struct {
	err, warn, info, note, fix, loc, gutter, caret *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan, color.Bold),
		note:   mk(color.FgBlue, color.Bold),
		fix:    mk(color.FgGreen, color.Bold),
		loc:    mk(color.Bold),
		gutter: mk(color.FgBlue),
		caret:  mk(color.FgGreen, color.Bold),
	}
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty writes every diagnostic of bag as
//
//	path:line:col: error FBP2001: message
//	   3 | reuse line
//	     |     ^~~~
//	  note: path:line:col: text
//	  fix: title
//
// The bag should be sorted beforehand.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) error {
	p := newPalette(opts.Color)
	for _, d := range bag.Items() {
		if err := prettyOne(w, p, d, fs, opts); err != nil {
			return err
		}
	}
	return nil
}

func prettyOne(w io.Writer, p palette, d diag.Diagnostic, fs *source.FileSet, opts PrettyOpts) error {
	var sb strings.Builder
	sb.WriteString(p.loc.Sprint(location(d.Primary, fs, opts.PathMode)))
	sb.WriteString(": ")
	sb.WriteString(p.severity(d.Severity).Sprintf("%s %s", d.Severity.Label(), d.Code.ID()))
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	sb.WriteString("\n")
	writeContext(&sb, p, d.Primary, fs, opts.Context)
	if opts.ShowNotes {
		for _, n := range d.Notes {
			fmt.Fprintf(&sb, "  %s %s: %s\n", p.note.Sprint("note:"), location(n.Span, fs, opts.PathMode), n.Msg)
		}
	}
	if opts.ShowFixes {
		for _, f := range d.Fixes {
			fmt.Fprintf(&sb, "  %s %s\n", p.fix.Sprint("fix:"), f.Title)
			for _, e := range f.Edits {
				fmt.Fprintf(&sb, "    %s: replace with %q\n", location(e.Span, fs, opts.PathMode), e.NewText)
			}
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func location(span source.Span, fs *source.FileSet, mode PathMode) string {
	if !resolvable(fs, span) {
		return "<unknown>"
	}
	start, _ := fs.Resolve(span)
	return formatPath(fs.Get(span.File).Path, mode) + ":" + start.String()
}

// writeContext prints up to extra lines before the primary line, the line
// itself and a caret line under the span. Columns are measured in display
// width so wide characters keep the caret aligned.
func writeContext(sb *strings.Builder, p palette, span source.Span, fs *source.FileSet, extra int) {
	if !resolvable(fs, span) {
		return
	}
	f := fs.Get(span.File)
	start, end := fs.Resolve(span)
	line := f.GetLine(start.Line)
	if line == "" && start.Line > 1 {
		return
	}
	width := len(fmt.Sprint(start.Line))
	first := int(start.Line) - extra
	if first < 1 {
		first = 1
	}
	for n := first; n <= int(start.Line); n++ {
		text := f.GetLine(uint32(n)) // #nosec G115 -- bounded by start.Line
		fmt.Fprintf(sb, " %s %s\n", p.gutter.Sprintf("%*d |", width, n), expandTabs(text))
	}

	col := int(start.Col) - 1
	if col > len(line) {
		col = len(line)
	}
	stop := len(line)
	if end.Line == start.Line && int(end.Col)-1 <= len(line) {
		stop = int(end.Col) - 1
	}
	if stop <= col {
		stop = col + 1
	}
	pad := runewidth.StringWidth(expandTabs(line[:col]))
	mark := 1
	if stop <= len(line) {
		mark = max(1, runewidth.StringWidth(expandTabs(line[col:stop])))
	}
	fmt.Fprintf(sb, " %s %s%s\n",
		p.gutter.Sprintf("%*s |", width, ""),
		strings.Repeat(" ", pad),
		p.caret.Sprint("^"+strings.Repeat("~", mark-1)))
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}

// Short writes one line per diagnostic: "path:line:col: severity CODE: message".
func Short(w io.Writer, bag *diag.Bag, fs *source.FileSet, mode PathMode) error {
	for _, d := range bag.Items() {
		if _, err := fmt.Fprintf(w, "%s: %s %s: %s\n", location(d.Primary, fs, mode), d.Severity.Label(), d.Code.ID(), d.Message); err != nil {
			return err
		}
	}
	return nil
}
