package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the configuration layer, the
// engine and the harness.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInvalidConfiguration
	KindEngineInitialisation
	KindScriptNotFound
	KindScriptEvaluation
	KindParameterError
	KindDatabaseError
	KindEngineTerminated
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidConfiguration:
		return "InvalidConfiguration"
	case KindEngineInitialisation:
		return "EngineInitialisation"
	case KindScriptNotFound:
		return "ScriptNotFound"
	case KindScriptEvaluation:
		return "ScriptEvaluation"
	case KindParameterError:
		return "ParameterError"
	case KindDatabaseError:
		return "DatabaseError"
	case KindEngineTerminated:
		return "EngineTerminated"
	}
	return "Unknown"
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrEngineInitialisation = &Error{Kind: KindEngineInitialisation}
	ErrScriptNotFound       = &Error{Kind: KindScriptNotFound}
	ErrScriptEvaluation     = &Error{Kind: KindScriptEvaluation}
	ErrParameterError       = &Error{Kind: KindParameterError}
	ErrDatabaseError        = &Error{Kind: KindDatabaseError}
	ErrEngineTerminated     = &Error{Kind: KindEngineTerminated}
)

// Error is a classified failure. Op names the operation that failed
// ("build", "create", "parse", "execute", ...) and Err carries the diagnostic.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError returns an *Error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf formats a diagnostic and wraps it into an *Error.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels (no Op, no Err) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Diagnostic returns the innermost message of a classified error, without
// the kind and op prefixes.
func Diagnostic(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
