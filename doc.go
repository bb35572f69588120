// Package tracelog provides structured logging on top of log/slog with
// special care for errors carrying stack traces from gitlab.com/tozd/go/errors.
//
// # Stack Trace Sanitizing
//
// Errors created or reported through the logger would otherwise start their
// stack trace inside the logger itself. tracelog removes those leading
// frames, so every logged trace starts at the code that called the logger.
//
//	func load() error {
//	    // The trace of err starts in load, not in tracelog.
//	    err := tracelog.NewError("config missing", nil)
//	    tracelog.Error("Load failed", "error", err)
//	    return err
//	}
//
// Any stack-carrying error passed as a log attribute is sanitized before it
// is formatted, unless disabled with EnableStackTraceSanitizing(false). The
// same operation is available directly as SanitizeStackTrace, and for any
// other package through the stacktrace subpackage.
//
// ErrorOrPanic reports an error at error level in production and panics
// with the sanitized error while trace logging is enabled.
//
// # Tozd Errors Integration
//
//	err := errors.WithStack(errors.New("something went wrong"))
//	tracelog.Error("Operation failed", "error", err)
//
//	detailedErr := errors.WithDetails(err, "user_id", "12345", "operation", "login")
//	tracelog.Error("Detailed error", "error", detailedErr)
//
//	chainedErr := errors.Wrap(detailedErr, "authentication failed")
//	tracelog.Error("Chained error", "error", chainedErr)
//
// Details are rendered under "error.details", the cause under "error.cause"
// and the stack under "error.stacktrace", colored when the output is a color
// terminal. Stack traces are limited to FormatterConfig.MaxStackFrames
// frames (20 by default).
//
// # Configuration
//
//	tracelog.EnableColors(true)
//	tracelog.EnableMultilineStacktrace(true)
//	tracelog.SetFormatterConfig(tracelog.FormatterConfig{
//	    EnableColors:        true,
//	    EnableFormatting:    true,
//	    TimeFormat:          time.RFC3339,
//	    SanitizeStackTraces: true,
//	    MaxStackFrames:      20,
//	})
//
// LoadConfig reads the same settings from YAML and TRACELOG_* environment
// variables:
//
//	cfg, err := tracelog.LoadConfig(yamlBytes)
//	if err != nil {
//	    return err
//	}
//	return cfg.Apply()
package tracelog
