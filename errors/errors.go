package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLayout   Phase = "layout"   // signature construction
	PhaseBind     Phase = "bind"     // set/reset of arguments
	PhaseCapture  Phase = "capture"  // building a device image
	PhaseRelease  Phase = "release"  // tearing down a capture
	PhaseProgram  Phase = "program"  // symbol and entry point lookup
	PhaseDevice   Phase = "device"   // device memory and residency
	PhaseManifest Phase = "manifest" // manifest parsing
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds  Kind = "out_of_bounds"
	KindSizeMismatch Kind = "size_mismatch"
	KindIncomplete   Kind = "incomplete"
	KindNoCapture    Kind = "no_capture"
	KindInvalidInput Kind = "invalid_input"
	KindNotResident  Kind = "not_resident"
	KindTranslation  Kind = "translation"
	KindAllocation   Kind = "allocation"
	KindNotFound     Kind = "not_found"
	KindUnsupported  Kind = "unsupported"
	KindInvalidData  Kind = "invalid_data"
	KindInUse        Kind = "in_use"
)

// NoParam marks an error that is not tied to a parameter index.
const NoParam = -1

// Error is the structured error type used throughout the runtime
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	WitType string
	Detail  string
	Path    []string
	Param   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Param >= 0 {
		fmt.Fprintf(&b, " (param %d)", e.Param)
	}

	if e.WitType != "" {
		b.WriteString(": WIT type ")
		b.WriteString(e.WitType)
	}

	if e.Detail != "" {
		if e.WitType != "" {
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

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Contract reports whether the error signals misuse by the caller rather
// than an environmental failure.
func (e *Error) Contract() bool {
	switch e.Kind {
	case KindOutOfBounds, KindSizeMismatch, KindIncomplete, KindNoCapture, KindInvalidInput:
		return true
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
			Param: NoParam,
		},
	}
}

// Path sets the kernel/parameter path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Param sets the parameter index
func (b *Builder) Param(index int) *Builder {
	b.err.Param = index
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Param:  index,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// SizeMismatch creates a size mismatch error for a bind call
func SizeMismatch(path []string, index, got, want int) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindSizeMismatch,
		Path:   path,
		Param:  index,
		Detail: fmt.Sprintf("argument size %d does not match declared size %d", got, want),
		Value:  got,
	}
}

// Incomplete creates an error listing parameters that are still unbound
func Incomplete(phase Phase, kernel string, missing []int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIncomplete,
		Path:   pathOf(kernel),
		Param:  NoParam,
		Detail: fmt.Sprintf("%d argument(s) not set: %v", len(missing), missing),
		Value:  missing,
	}
}

// NotResident creates an error for a resource the device cannot address
func NotResident(phase Phase, path []string, index int, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotResident,
		Path:   path,
		Param:  index,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Param:  NoParam,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// NoCapture creates an error for a release that has no matching capture
func NoCapture(kernel string, id string) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindNoCapture,
		Path:   pathOf(kernel),
		Param:  NoParam,
		Detail: fmt.Sprintf("capture %s is not outstanding", id),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Param:  NoParam,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Param:  NoParam,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Param:  NoParam,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Param:  NoParam,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Param:  NoParam,
		Detail: detail,
		Cause:  cause,
	}
}

func pathOf(kernel string) []string {
	if kernel == "" {
		return nil
	}
	return []string{kernel}
}
