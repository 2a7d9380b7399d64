package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the host lifecycle the error occurred.
type Phase string

const (
	PhaseLoad        Phase = "load"        // module bytes → compiled module
	PhaseHost        Phase = "host"        // host function registration
	PhaseInstantiate Phase = "instantiate" // guest instantiation
	PhaseProcess     Phase = "process"     // lazy process execution
	PhaseHTTP        Phase = "http"        // outgoing HTTP bridge
	PhaseRPC         Phase = "rpc"         // JSON-RPC endpoint
	PhaseRuntime     Phase = "runtime"     // everything after instantiation
)

// Kind categorizes the error.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindTypeMismatch  Kind = "type_mismatch"
	KindInvalidInput  Kind = "invalid_input"
	KindMissingImport Kind = "missing_import"
	KindRegistration  Kind = "registration"
	KindInstantiation Kind = "instantiation"
	KindUnavailable   Kind = "unavailable"
	KindCanceled      Kind = "canceled"
	KindInternal      Kind = "internal"
)

// Error is the structured error type used across the host.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Entity string
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
	}
	if e.Detail != "" {
		if e.Entity != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Phase and Kind so callers can test error classes with
// sentinel values like &Error{Phase: PhaseLoad, Kind: KindNotFound}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Entity(name string) *Builder {
	b.err.Entity = name
	return b
}

func (b *Builder) Detail(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Convenience constructors for the common cases.

func NotFound(phase Phase, entity string) *Error {
	return New(phase, KindNotFound).Entity(entity).Build()
}

func InvalidInput(phase Phase, detail string) *Error {
	return New(phase, KindInvalidInput).Detail("%s", detail).Build()
}

func Load(entity string, cause error) *Error {
	return New(PhaseLoad, KindInvalidInput).Entity(entity).Cause(cause).Build()
}

func Registration(namespace, fn string, cause error) *Error {
	return New(PhaseHost, KindRegistration).
		Entity(namespace + "#" + fn).
		Cause(cause).
		Build()
}

func Instantiation(cause error) *Error {
	return New(PhaseInstantiate, KindInstantiation).Cause(cause).Build()
}

func Process(entity string, cause error) *Error {
	return New(PhaseProcess, KindInternal).Entity(entity).Cause(cause).Build()
}
