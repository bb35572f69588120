package stacktrace

import (
	"fmt"
	"io"
	"slices"

	"gitlab.com/tozd/go/errors"
)

// ErrInvalidArgument is returned when Sanitize is called without an error.
var ErrInvalidArgument = errors.Base("invalid argument")

// Sanitize removes the leading frames declared by typeName from err's stack
// trace and returns an error whose trace starts at the first frame outside it.
//
// Only the contiguous run at the top of the stack is removed: frames of
// typeName found below the first foreign frame are kept, as are the stacks
// of err's causes. An empty typeName matches nothing. When every frame
// matches, the result carries an empty trace.
//
// Trimming works on program counters. A program counter whose inlined calls
// mix typeName frames with the caller's frames is kept whole, so the trace
// can still begin with a typeName frame unless typeName's entry points are
// marked //go:noinline.
//
// The returned error has err's message, details and cause and unwraps to
// err. If nothing is removed and err already is an errors.E, err itself is
// returned, which makes Sanitize idempotent.
func Sanitize(err error, typeName string) (errors.E, error) {
	if err == nil {
		return nil, errors.WithDetails(ErrInvalidArgument, "argument", "err")
	}

	pcs := StackOf(err)
	trimmed := TrimLeading(pcs, typeName)
	if len(trimmed) == len(pcs) {
		if e, ok := err.(errors.E); ok {
			return e, nil
		}
	}

	// Re-sanitizing keeps a single wrapper around the original error.
	if s, ok := err.(*sanitizedError); ok {
		err = s.err
	}
	return &sanitizedError{err: err, stack: trimmed}, nil
}

// TrimLeading returns pcs without its leading program counters declared by typeName.
// A program counter standing for inlined calls is removed only when every
// call it expands to is declared by typeName.
func TrimLeading(pcs []uintptr, typeName string) []uintptr {
	if typeName == "" {
		return slices.Clone(pcs)
	}
	return TrimLeadingFunc(pcs, func(f Frame) bool {
		return f.DeclaringType() == typeName
	})
}

// TrimLeadingFunc is TrimLeading with an arbitrary frame predicate, for
// call chains spanning several packages.
func TrimLeadingFunc(pcs []uintptr, match func(Frame) bool) []uintptr {
	k := leading(pcs, func(pc uintptr) bool {
		frames := Frames([]uintptr{pc})
		for _, f := range frames {
			if !match(f) {
				return false
			}
		}
		return len(frames) > 0
	})
	return slices.Clone(pcs[k:])
}

// TrimPrefix returns frames without its leading frames declared by typeName.
func TrimPrefix(frames []Frame, typeName string) []Frame {
	if typeName == "" {
		return slices.Clone(frames)
	}
	k := leading(frames, func(f Frame) bool {
		return f.DeclaringType() == typeName
	})
	return slices.Clone(frames[k:])
}

// leading counts the elements at the start of s satisfying match.
func leading[T any](s []T, match func(T) bool) int {
	k := 0
	for k < len(s) && match(s[k]) {
		k++
	}
	return k
}

// sanitizedError replaces the stack trace of the error it wraps.
type sanitizedError struct {
	err   error
	stack []uintptr
}

func (e *sanitizedError) Error() string {
	return e.err.Error()
}

func (e *sanitizedError) StackTrace() []uintptr {
	return e.stack
}

func (e *sanitizedError) Details() map[string]interface{} {
	return errors.Details(e.err)
}

func (e *sanitizedError) Cause() error {
	return errors.Cause(e.err)
}

func (e *sanitizedError) Unwrap() error {
	return e.err
}

// Format prints the message for %s and %v, and adds the trimmed stack for %+v.
func (e *sanitizedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, e.Error())
			for _, frame := range Frames(e.stack) {
				_, _ = fmt.Fprintf(s, "\n%s\n\t%s:%d", frame.Function, frame.File, frame.Line)
			}
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}
