// Package fault defines the closed error taxonomy shared by the registry,
// cache, and installer. Every error that crosses the operation surface is
// (or wraps) an *Error so hosts can branch on its Kind.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure.
type Kind string

// Error kinds.
const (
	// KindTransport covers connection failures and non-success HTTP statuses.
	KindTransport Kind = "transport"
	// KindDecode covers responses or files that could not be parsed.
	KindDecode Kind = "decode"
	// KindNotFound covers missing registry records, archive entries, and files.
	KindNotFound Kind = "not_found"
	// KindValidation covers rejected input such as unsafe plugin ids.
	KindValidation Kind = "validation"
	// KindIO covers local filesystem failures.
	KindIO Kind = "io"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindTransport, KindDecode, KindNotFound, KindValidation, KindIO}

// Sentinel values for errors.Is matching by kind.
var (
	ErrTransport  = &Error{Kind: KindTransport}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrIO         = &Error{Kind: KindIO}
)

// Error is a categorized failure.
type Error struct {
	Kind    Kind   // Category of the failure
	Package string // Registry package name, when one is involved
	Step    string // Resolution or install step that failed (e.g. "latest-tag")
	Message string // Human-readable description
	Err     error  // Wrapped cause
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps err.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Package != "" {
		fmt.Fprintf(&b, "%s: ", e.Package)
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	b.WriteString(msg)

	if e.Step != "" {
		fmt.Fprintf(&b, " (step %s)", e.Step)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// WithPackage returns a copy with the package name set.
func (e *Error) WithPackage(name string) *Error {
	c := *e
	c.Package = name
	return &c
}

// WithStep returns a copy with the step set.
func (e *Error) WithStep(step string) *Error {
	c := *e
	c.Step = step
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StepOf returns the step of the first *Error in err's chain that has one.
func StepOf(err error) string {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return ""
		}
		if fe.Step != "" {
			return fe.Step
		}
		err = fe.Err
	}
	return ""
}
