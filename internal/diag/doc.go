// Package diag defines the diagnostic model shared by the ARC pipeline.
//
// # Purpose
//
//   - Provide deterministic data structures for findings produced by the
//     typed-IR reader, the FBIP checker and internal consistency checks.
//   - Offer light-weight utilities (Reporter, Bag) that let passes emit
//     diagnostics without coupling to storage or formatting.
//   - Model fix-it hints as structured Fix records.
//
// # Scope
//
// Package diag does not format or print anything. Rendering lives in
// internal/diagfmt; the driver decides which diagnostics fail a build.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity – Info, Warning or Error (severity.go).
//   - Code – numeric identifier with a stable string form (codes.go).
//   - Message – short actionable text.
//   - Primary span – the source.Span of the offending site.
//   - Notes – optional secondary spans/messages.
//   - Fixes – optional fix-it hints.
//
// # Error classes
//
// Internal defects (ARC9xxx) halt compilation of the affected function and
// are never attributed to the user. FBIP findings (FBP codes) are warnings
// or errors depending on the function's enforcement mode. Input problems
// (TIR codes) are ordinary errors.
package diag
