// Package diagfmt renders diagnostic bags for people and tools: a pretty
// form with source context, a JSON document and SARIF 2.1.0.
package diagfmt

import (
	"os"
	"path/filepath"

	"arcc/internal/source"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto prints paths relative to the working directory when the
	// file lies below it.
	PathModeAuto PathMode = iota
	PathModeAbsolute
	PathModeBasename
	// PathModeAsIs keeps the path the file was loaded with.
	PathModeAsIs
)

// PrettyOpts configures Pretty.
type PrettyOpts struct {
	Color     bool
	Context   int // lines shown before the primary line
	PathMode  PathMode
	ShowNotes bool
	ShowFixes bool
}

// JSONOpts configures JSON.
type JSONOpts struct {
	IncludePositions bool
	PathMode         PathMode
	Max              int // 0 keeps every item
	IncludeNotes     bool
	IncludeFixes     bool
}

// SarifRunMeta describes the tool in SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
}

func formatPath(path string, mode PathMode) string {
	switch mode {
	case PathModeAsIs:
		return path
	case PathModeBasename:
		return filepath.Base(path)
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, abs); err == nil && filepath.IsLocal(rel) {
		return filepath.ToSlash(rel)
	}
	return path
}

// resolvable reports whether span points into a file of fs.
func resolvable(fs *source.FileSet, span source.Span) bool {
	return fs != nil && int(span.File) < fs.Len()
}
