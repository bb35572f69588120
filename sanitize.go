package tracelog

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gitlab.com/tozd/go/errors"

	"github.com/dianlight/tracelog/stacktrace"
)

// loggerTypeName is the declaring type of every frame in this package.
var loggerTypeName = stacktrace.DeclaringTypeOf(Logger{})

// SanitizeStackTrace removes this package's frames from the top of err's
// stack trace, so the trace starts at the code that called the logger.
// It fails only when err is nil.
func SanitizeStackTrace(err error) (errors.E, error) {
	return stacktrace.Sanitize(err, loggerTypeName)
}

// NewError returns an error, optionally wrapping cause, whose stack trace
// starts at the caller of NewError.
//
//go:noinline
func NewError(msg string, cause error) errors.E {
	var err errors.E
	if cause == nil {
		err = errors.New(msg)
	} else {
		err = errors.Wrap(cause, msg)
	}
	return mustSanitize(err)
}

// ErrorOrPanic reports err with msg on the default logger. When trace
// logging is enabled it panics with a sanitized error instead, so problems
// surface immediately during development.
//
//go:noinline
func ErrorOrPanic(msg string, err error) {
	defaultLogger.Load().errorOrPanic(context.Background(), msg, err)
}

// ErrorOrPanic reports err with msg, or panics with it when the logger has
// trace logging enabled.
//
//go:noinline
func (l *Logger) ErrorOrPanic(msg string, err error) {
	l.errorOrPanic(context.Background(), msg, err)
}

// ErrorOrPanicContext is ErrorOrPanic with context.
//
//go:noinline
func (l *Logger) ErrorOrPanicContext(ctx context.Context, msg string, err error) {
	l.errorOrPanic(ctx, msg, err)
}

func (l *Logger) errorOrPanic(ctx context.Context, msg string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l.Enabled(ctx, LevelTrace) {
		var e errors.E
		if err == nil {
			e = errors.New(msg)
		} else {
			e = errors.Wrap(err, msg)
		}
		panic(mustSanitize(e))
	}
	if err == nil {
		l.logContext(ctx, LevelError, msg)
		return
	}
	// Errors without a stack keep their type for ErrorFormatter.
	if len(stacktrace.StackOf(err)) == 0 {
		l.logContext(ctx, LevelError, msg, "error", err)
		return
	}
	l.logContext(ctx, LevelError, msg, "error", mustSanitize(err))
}

// mustSanitize sanitizes an error known to be non-nil.
func mustSanitize(err error) errors.E {
	sanitized, serr := SanitizeStackTrace(err)
	if serr != nil {
		panic(serr)
	}
	return sanitized
}

// sanitizingHandler wraps next so stack-carrying error attributes reach it
// without this package's frames on top, whether they are passed per record
// or bound with Logger.With.
func sanitizingHandler(next slog.Handler) slog.Handler {
	return slogmulti.
		Pipe(
			slogmulti.NewWithAttrsInlineMiddleware(sanitizeWithAttrs),
			slogmulti.NewHandleInlineMiddleware(sanitizeRecord),
		).
		Handler(next)
}

func sanitizeWithAttrs(attrs []slog.Attr, next func([]slog.Attr) slog.Handler) slog.Handler {
	var out []slog.Attr
	for i, attr := range attrs {
		sanitized, ok := sanitizeAttr(attr)
		if !ok {
			continue
		}
		if out == nil {
			out = slices.Clone(attrs)
		}
		out[i] = sanitized
	}
	if out == nil {
		return next(attrs)
	}
	return next(out)
}

func sanitizeRecord(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
	changed := false
	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		if sanitized, ok := sanitizeAttr(attr); ok {
			attr = sanitized
			changed = true
		}
		attrs = append(attrs, attr)
		return true
	})
	if !changed {
		return next(ctx, record)
	}

	nr := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	nr.AddAttrs(attrs...)
	return next(ctx, nr)
}

// sanitizeAttr rewrites attr when it holds an error with a stack trace,
// descending into groups.
func sanitizeAttr(attr slog.Attr) (slog.Attr, bool) {
	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		out := make([]slog.Attr, len(group))
		changed := false
		for i, a := range group {
			var ok bool
			out[i], ok = sanitizeAttr(a)
			changed = changed || ok
		}
		if !changed {
			return attr, false
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(out...)}, true
	case slog.KindAny:
		err, ok := attr.Value.Any().(error)
		if !ok || err == nil {
			return attr, false
		}
		stack := stacktrace.StackOf(err)
		if len(stack) == 0 {
			return attr, false
		}
		sanitized, serr := SanitizeStackTrace(err)
		if serr != nil || len(sanitized.StackTrace()) == len(stack) {
			return attr, false
		}
		return slog.Any(attr.Key, sanitized), true
	default:
		return attr, false
	}
}

// isPipelineFrame reports frames of the logging machinery between a
// logging call and an attribute formatter.
func isPipelineFrame(f stacktrace.Frame) bool {
	pkg := f.DeclaringType()
	return pkg == loggerTypeName ||
		pkg == "log/slog" ||
		strings.HasPrefix(pkg, "log/slog/") ||
		strings.HasPrefix(pkg, "github.com/samber/")
}
