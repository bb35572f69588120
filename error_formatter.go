package tracelog

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/fatih/color"
	slogformatter "github.com/samber/slog-formatter"
	"gitlab.com/tozd/go/errors"

	"github.com/dianlight/tracelog/stacktrace"
)

func stackTraceFormatter(frames []stacktrace.Frame) string {
	config := currentFormatterConfig()
	if config.MaxStackFrames > 0 && len(frames) > config.MaxStackFrames {
		frames = frames[:config.MaxStackFrames]
	}

	stackLines := make([]string, 0, len(frames))
	for _, frame := range frames {
		stackLines = append(stackLines, fmt.Sprintf("%s:%s: %s",
			color.GreenString(frame.File),
			color.BlueString("%d", frame.Line),
			color.HiWhiteString(frame.Function)))
	}

	if config.MultilineStacktrace {
		return strings.Join(stackLines, "\n")
	}
	return strings.Join(stackLines, " -> ")
}

// ErrorFormatter transforms a plain go error into a readable group with the
// stack of the logging call.
//
// Example:
//
//	err := reader.Close()
//	tracelog.Error("close failed", "error", err)
//
// passed to ErrorFormatter("error"), will be transformed into:
//
//	"error": {
//	  "message": "file already closed",
//	  "type": "*errors.errorString",
//	  "stacktrace": "main.go:12: main.run -> ..."
//	}
func ErrorFormatter(fieldName string) slogformatter.Formatter {
	return slogformatter.FormatByFieldType(fieldName, func(err error) slog.Value {
		// Trim the formatter, slog and this package down to the logging call.
		stack := stacktrace.TrimLeadingFunc(stacktrace.Callers(0), isPipelineFrame)
		return slog.GroupValue(
			slog.String("message", err.Error()),
			slog.String("type", reflect.TypeOf(err).String()),
			slog.String("stacktrace", stackTraceFormatter(stacktrace.Frames(stack))),
		)
	})
}

// TozdErrorFormatter formats gitlab.com/tozd/go/errors with colored stacktraces
func TozdErrorFormatter() slogformatter.Formatter {
	return slogformatter.FormatByType(func(v errors.E) slog.Value {
		attrs := []slog.Attr{slog.String("message", v.Error())}

		if details := errors.Details(v); len(details) > 0 {
			detailAttrs := make([]any, 0, len(details))
			for k, val := range details {
				detailAttrs = append(detailAttrs, slog.Any(k, val))
			}
			attrs = append(attrs, slog.Group("details", detailAttrs...))
		}

		if stack := v.StackTrace(); len(stack) > 0 {
			attrs = append(attrs, slog.String("stacktrace", stackTraceFormatter(stacktrace.Frames(stack))))
		}

		if cause := errors.Cause(v); cause != nil && cause != v {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}

		return slog.GroupValue(attrs...)
	})
}
