package interp

import (
	"fmt"
	"strings"

	"arcc/internal/rt"
	"arcc/internal/source"
)

// ErrorCode identifies the kind of execution failure.
type ErrorCode int

// Stable error codes.
const (
	ErrTypeMismatch  ErrorCode = 3001 // INT3001
	ErrUnknownFunc   ErrorCode = 3002 // INT3002
	ErrArity         ErrorCode = 3003 // INT3003
	ErrDivByZero     ErrorCode = 3004 // INT3004
	ErrOutOfBounds   ErrorCode = 3005 // INT3005
	ErrNoCase        ErrorCode = 3006 // INT3006
	ErrUnreachable   ErrorCode = 3007 // INT3007
	ErrStepLimit     ErrorCode = 3008 // INT3008
	ErrStackOverflow ErrorCode = 3009 // INT3009
	ErrHeapFault     ErrorCode = 3010 // INT3010
	ErrExtern        ErrorCode = 3011 // INT3011
	ErrCanceled      ErrorCode = 3012 // INT3012
	ErrUninitialized ErrorCode = 3013 // INT3013
)

func (c ErrorCode) String() string {
	return fmt.Sprintf("INT%d", c)
}

// Frame is one entry of a backtrace.
type Frame struct {
	Func string
	Span source.Span
}

// Error is an execution failure with the call stack that led to it.
type Error struct {
	Code      ErrorCode
	Message   string
	Span      source.Span
	Backtrace []Frame // innermost first
	Fault     *rt.Fault
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Fault == nil {
		return nil
	}
	return e.Fault
}

// Format renders the error with resolved positions.
func (e *Error) Format(files *source.FileSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "error %s: %s\n", e.Code, e.Message)
	sb.WriteString("at ")
	sb.WriteString(formatSpan(e.Span, files))
	sb.WriteString("\n")
	if len(e.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, fr := range e.Backtrace {
			fmt.Fprintf(&sb, "  %d: %s at %s\n", i, fr.Func, formatSpan(fr.Span, files))
		}
	}
	return sb.String()
}

func formatSpan(span source.Span, files *source.FileSet) string {
	if files == nil || span.Empty() {
		return "<no-span>"
	}
	file := files.Get(span.File)
	if file == nil {
		return "<no-span>"
	}
	start, _ := files.Resolve(span)
	return file.Path + ":" + start.String()
}

func (m *Machine) errorf(code ErrorCode, format string, args ...any) *Error {
	e := &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	for i := len(m.stack) - 1; i >= 0; i-- {
		fr := m.stack[i]
		e.Backtrace = append(e.Backtrace, Frame{Func: fr.fn.Name, Span: fr.span})
	}
	if len(m.stack) > 0 {
		e.Span = m.stack[len(m.stack)-1].span
	}
	return e
}
