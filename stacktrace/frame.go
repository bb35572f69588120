// Package stacktrace trims logger-owned frames from the top of error stack traces.
//
// Errors carry their stack as the program counters returned by
// StackTrace() []uintptr, the contract used by gitlab.com/tozd/go/errors.
// Stacks recorded by github.com/pkg/errors are read as well.
// Go declares functions in packages rather than classes, so the declaring
// type of a frame is the import path of the package its function lives in.
package stacktrace

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// maxCallers bounds the depth captured by Callers
const maxCallers = 64

// Frame is one resolved entry of a stack trace
type Frame struct {
	PC       uintptr
	Function string
	File     string
	Line     int
}

// DeclaringType returns the import path of the package declaring the frame's function.
func (f Frame) DeclaringType() string {
	return DeclaringType(f.Function)
}

func (f Frame) String() string {
	return fmt.Sprintf("%s:%d %s", f.File, f.Line, f.Function)
}

// DeclaringType extracts the package import path from a fully qualified
// function name as reported by the runtime, e.g.
//
//	github.com/acme/app.(*Server).Serve.func1 -> github.com/acme/app
//	gopkg.in/yaml%2ev3.Marshal               -> gopkg.in/yaml.v3
func DeclaringType(function string) string {
	if function == "" {
		return ""
	}
	// Dots are only meaningful after the last slash; the runtime escapes
	// dots inside the final path element as %2e.
	start := strings.LastIndexByte(function, '/') + 1
	pkg := function
	if dot := strings.IndexByte(function[start:], '.'); dot >= 0 {
		pkg = function[:start+dot]
	}
	return strings.ReplaceAll(pkg, "%2e", ".")
}

// DeclaringTypeOf returns the import path of the package declaring v's type.
// Pointers are dereferenced; builtin and unnamed types yield "".
func DeclaringTypeOf(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath()
}

// Callers captures the program counters of the calling goroutine.
// skip 0 starts at the caller of Callers.
func Callers(skip int) []uintptr {
	pcs := make([]uintptr, maxCallers)
	// skip [runtime.Callers, Callers]
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// Frames resolves program counters, expanding inlined calls.
func Frames(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		out = append(out, Frame{
			PC:       frame.PC,
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}

// StackOf returns the stack recorded on err itself. Causes are not inspected.
// Both StackTrace() []uintptr and the github.com/pkg/errors
// StackTrace() errors.StackTrace methods are recognized.
func StackOf(err error) []uintptr {
	switch st := err.(type) {
	case interface{ StackTrace() []uintptr }:
		return st.StackTrace()
	case interface{ StackTrace() pkgerrors.StackTrace }:
		frames := st.StackTrace()
		if len(frames) == 0 {
			return nil
		}
		// pkg/errors frames hold the same return addresses runtime.Callers does.
		pcs := make([]uintptr, len(frames))
		for i, f := range frames {
			pcs[i] = uintptr(f)
		}
		return pcs
	}
	return nil
}
