// Package errors provides structured error types for the kernel runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the kernel/parameter path, the parameter index, the
// WIT type name of the parameter and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCapture, errors.KindNotResident).
//		Path("saxpy", "x").
//		Param(2).
//		Detail("buffer freed before capture").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SizeMismatch(path, 1, 4, 8)
//	err := errors.OutOfBounds(errors.PhaseBind, path, 10, 5)
//
// Kinds fall in two classes. Contract kinds (out_of_bounds, size_mismatch,
// incomplete, no_capture, invalid_input) report misuse by the calling layer;
// Contract reports true for them. All other kinds are environmental failures
// that only abort the invocation they occurred in.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
