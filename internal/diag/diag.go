// Package diag defines the structured errors and warnings produced while
// compiling a stylesheet.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable identifier for a failure mode.
type Code string

const (
	// SyntaxError reports a malformed :local(...), composes/extends block or
	// an unterminated construct.
	SyntaxError Code = "SYNTAX_ERROR"
	// UnknownCompositionTarget reports a composes of a local name that was
	// never declared.
	UnknownCompositionTarget Code = "UNKNOWN_COMPOSITION_TARGET"
	// CircularComposition reports a name that composes itself.
	CircularComposition Code = "CIRCULAR_COMPOSITION"
	// UnresolvableImport reports an import the resolver could not locate.
	UnresolvableImport Code = "UNRESOLVABLE_IMPORT"
	// MalformedURL reports an empty url() argument. It is a warning.
	MalformedURL Code = "MALFORMED_URL"
	// ImpureSelector reports a selector without local names in pure mode.
	ImpureSelector Code = "IMPURE_SELECTOR"
	// SyntaxWarning reports a problem found by the tree-sitter cross-check.
	SyntaxWarning Code = "SYNTAX_WARNING"
	// InternalError reports a broken invariant inside the compiler.
	InternalError Code = "INTERNAL_ERROR"
)

// Severity separates fatal errors from warnings.
type Severity string

const (
	Fatal   Severity = "error"
	Warning Severity = "warning"
)

// Severity returns the severity attached to a code.
func (c Code) Severity() Severity {
	switch c {
	case MalformedURL, SyntaxWarning:
		return Warning
	default:
		return Fatal
	}
}

// Error is a single diagnostic. Offset is a byte offset into the source;
// Line and Column are one-based and derived from it.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Offset  int    `json:"offset"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	cause   error
}

// New creates a diagnostic positioned at offset within source.
func New(code Code, source string, offset int, format string, args ...any) *Error {
	line, col := Position(source, offset)
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
		Line:    line,
		Column:  col,
	}
}

// Wrap creates a diagnostic without a source position around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteByte(':')
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "%d:%d: ", e.Line, e.Column)
	} else if e.File != "" {
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Fatal reports whether the diagnostic aborts compilation of its module.
func (e *Error) Fatal() bool {
	return e.Code.Severity() == Fatal
}

// Is matches another *Error by code so errors.Is works against sentinels
// such as &Error{Code: CircularComposition}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Position converts a byte offset into a one-based line and column.
func Position(source string, offset int) (line, column int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	line = 1 + strings.Count(source[:offset], "\n")
	lineStart := strings.LastIndexByte(source[:offset], '\n') + 1
	return line, offset - lineStart + 1
}

// List is an ordered collection of diagnostics.
type List []*Error

// HasFatal reports whether any diagnostic is fatal.
func (l List) HasFatal() bool {
	for _, e := range l {
		if e.Fatal() {
			return true
		}
	}
	return false
}

// Fatal returns only the fatal diagnostics.
func (l List) Fatal() List {
	var out List
	for _, e := range l {
		if e.Fatal() {
			out = append(out, e)
		}
	}
	return out
}

// Warnings returns only the non-fatal diagnostics.
func (l List) Warnings() List {
	var out List
	for _, e := range l {
		if !e.Fatal() {
			out = append(out, e)
		}
	}
	return out
}

// WithFile stamps file on every diagnostic that does not carry one yet.
func (l List) WithFile(file string) List {
	for _, e := range l {
		if e.File == "" {
			e.File = file
		}
	}
	return l
}

// Sort orders diagnostics by file and offset.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].File != l[j].File {
			return l[i].File < l[j].File
		}
		return l[i].Offset < l[j].Offset
	})
}

// Err joins the fatal diagnostics into a single error, or returns nil.
func (l List) Err() error {
	fatal := l.Fatal()
	if len(fatal) == 0 {
		return nil
	}
	errs := make([]error, len(fatal))
	for i, e := range fatal {
		errs[i] = e
	}
	return errors.Join(errs...)
}
