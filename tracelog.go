package tracelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogformatter "github.com/samber/slog-formatter"
	"gitlab.com/tozd/go/errors"

	"github.com/dianlight/tracelog/stacktrace"
)

// Custom log levels extending slog.Level
const (
	LevelTrace  slog.Level = -8
	LevelDebug  slog.Level = slog.LevelDebug
	LevelInfo   slog.Level = slog.LevelInfo
	LevelNotice slog.Level = 2
	LevelWarn   slog.Level = slog.LevelWarn
	LevelError  slog.Level = slog.LevelError
	LevelFatal  slog.Level = 12
)

var (
	// ErrEmptyLevel is returned by SetLevelFromString for a blank level.
	ErrEmptyLevel = errors.Base("log level cannot be empty")
	// ErrUnknownLevel is returned by SetLevelFromString for an unsupported level.
	ErrUnknownLevel = errors.Base("invalid log level")
)

// Logger wraps slog.Logger with stack-aware error helpers
type Logger struct {
	*slog.Logger
	commonKeys []string
}

// levelNames maps level strings to slog.Level values
var levelNames = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"notice":  LevelNotice,
	"warn":    LevelWarn,
	"warning": LevelWarn, // alias for warn
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// reverseLevelNames maps slog.Level values to canonical string names
var reverseLevelNames = map[slog.Level]string{
	LevelTrace:  "TRACE",
	LevelDebug:  "DEBUG",
	LevelInfo:   "INFO",
	LevelNotice: "NOTICE",
	LevelWarn:   "WARN",
	LevelError:  "ERROR",
	LevelFatal:  "FATAL",
}

var levelColorNumbers = map[string]uint8{
	"TRACE":  7,
	"DEBUG":  6,
	"INFO":   2,
	"NOTICE": 4,
	"WARN":   3,
	"ERROR":  1,
	"FATAL":  9,
}

// defaultCommonKeys is the default list of context keys to extract
var defaultCommonKeys = []string{"X-Trace-Id", "X-Span-Id", "request_id", "user_id", "session_id", "trace_id", "span_id"}

// FormatterConfig holds configuration for log formatting
type FormatterConfig struct {
	EnableColors        bool   `koanf:"enable_colors"`
	EnableFormatting    bool   `koanf:"enable_formatting"`
	TimeFormat          string `koanf:"time_format"`
	MultilineStacktrace bool   `koanf:"multiline_stacktrace"`
	// SanitizeStackTraces trims the logger's own frames from logged errors.
	SanitizeStackTraces bool `koanf:"sanitize_stack_traces"`
	// MaxStackFrames caps rendered stack traces; 0 renders every frame.
	MaxStackFrames int `koanf:"max_stack_frames"`
	// Output defaults to os.Stderr when nil.
	Output io.Writer `koanf:"-"`
}

// defaultFormatterConfig provides default configuration
var defaultFormatterConfig = FormatterConfig{
	EnableColors:        true, // disabled automatically if the output is not a color terminal
	EnableFormatting:    true,
	TimeFormat:          time.RFC3339,
	MultilineStacktrace: false,
	SanitizeStackTraces: true,
	MaxStackFrames:      20,
	Output:              os.Stderr,
}

var (
	programLevel      = new(slog.LevelVar) // Info by default
	mu                sync.RWMutex         // protects logger configuration changes
	formatterConfig   FormatterConfig      // current formatter configuration
	formatterConfigMu sync.RWMutex         // protects formatter configuration changes
)

func init() {
	formatterConfig = normalizeConfig(defaultFormatterConfig)
	initializeLogger()
}

func normalizeConfig(config FormatterConfig) FormatterConfig {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}
	if config.MaxStackFrames < 0 {
		config.MaxStackFrames = 0
	}
	config.EnableColors = config.EnableColors && isTerminalSupported(config.Output)
	return config
}

func currentFormatterConfig() FormatterConfig {
	formatterConfigMu.RLock()
	defer formatterConfigMu.RUnlock()
	return formatterConfig
}

// isTerminalSupported checks if w is a terminal that supports colors
func isTerminalSupported(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) || strings.Contains(os.Getenv("TERM"), "color")
}

// extractContextToArgs extracts context values and converts them to args format
func extractContextToArgs(ctx context.Context, commonKeys []string) []any {
	if ctx == nil {
		return nil
	}
	if commonKeys == nil {
		commonKeys = defaultCommonKeys
	}

	var args []any
	for _, key := range commonKeys {
		if val := ctx.Value(key); val != nil {
			args = append(args, key, val)
		}
	}
	return args
}

// createBaseHandler builds the handler chain:
// stack sanitizing middleware -> attribute formatters -> tint output.
func createBaseHandler(level slog.Leveler) slog.Handler {
	config := currentFormatterConfig()
	noColor := !config.EnableColors

	pp.SetDefaultOutput(config.Output)
	pp.Default.SetColoringEnabled(!noColor)
	color.NoColor = noColor

	var handler slog.Handler = tint.NewHandler(config.Output, &tint.Options{
		Level:      level,
		TimeFormat: config.TimeFormat,
		NoColor:    noColor,
		AddSource:  true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a = replaceLogLevel(groups, a)

			// Expand a context passed as an attribute into its common keys.
			if a.Key == "context" {
				if ctx, ok := a.Value.Any().(context.Context); ok {
					if args := extractContextToArgs(ctx, defaultCommonKeys); len(args) > 0 {
						return slog.Group("ctx", args...)
					}
				}
			}
			return a
		},
	})

	if config.EnableFormatting {
		formatters := []slogformatter.Formatter{
			// tozd errors first so the generic formatter only sees plain errors
			TozdErrorFormatter(),
			ErrorFormatter("error"),
			ErrorFormatter("err"),
			UnixTimestampFormatter("timestamp"),
			slogformatter.TimeFormatter(config.TimeFormat, time.Local),
		}
		handler = slogformatter.NewFormatterHandler(formatters...)(handler)
	}

	if config.SanitizeStackTraces {
		handler = sanitizingHandler(handler)
	}

	return handler
}

// defaultLogger is swapped whole on reconfiguration while package-level
// logging functions may be reading it.
var defaultLogger atomic.Pointer[Logger]

// initializeLogger sets up the default slog configuration
func initializeLogger() {
	logger := &Logger{
		Logger:     slog.New(createBaseHandler(programLevel)),
		commonKeys: defaultCommonKeys,
	}
	defaultLogger.Store(logger)
	slog.SetDefault(logger.Logger)
}

// replaceLogLevel customizes the display names for custom log levels
func replaceLogLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	// Already a string when another formatter got there first.
	if val, ok := a.Value.Any().(slog.Level); ok {
		if name, exists := reverseLevelNames[val]; exists {
			a.Value = slog.StringValue(name)
			a = tint.Attr(levelColorNumbers[name], a)
		}
	}
	return a
}

// callerPC returns the program counter of the first frame outside this
// package, skipping extra further frames.
func callerPC(extra int) uintptr {
	frames := stacktrace.Frames(stacktrace.Callers(1))
	internal := len(frames) - len(stacktrace.TrimPrefix(frames, loggerTypeName))

	var pcs [1]uintptr
	// skip [runtime.Callers, callerPC, internal frames..., extra frames...]
	if runtime.Callers(2+internal+extra, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// WithCaller returns the "caller" attribute of the first function outside
// this package, skipping skipFrames further frames.
// Usage: tracelog.Debug("message", tracelog.WithCaller(0)..., "key", "value")
func WithCaller(skipFrames int) []any {
	pc := callerPC(skipFrames)
	if pc == 0 {
		return []any{"caller", "unknown:unknown:0"}
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	file := frame.File
	if idx := strings.LastIndex(file, "/"); idx != -1 {
		file = file[idx+1:]
	}
	function := frame.Function
	if idx := strings.LastIndex(function, "."); idx != -1 {
		function = function[idx+1:]
	}
	return []any{"caller", fmt.Sprintf("%s:%s:%d", file, function, frame.Line)}
}

// log is the low-level logging method for methods that take ...any.
// The record is attributed to the first caller outside this package.
func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, callerPC(0))
	r.Add(args...)
	_ = l.Handler().Handle(ctx, r)
}

func (l *Logger) logContext(ctx context.Context, level slog.Level, msg string, args ...any) {
	args = append(args, extractContextToArgs(ctx, l.commonKeys)...)
	l.log(ctx, level, msg, args...)
}

// Trace logs a message at trace level
func Trace(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs a message at trace level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelTrace, msg, args...)
}

// Debug logs a message at debug level
func Debug(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelDebug, msg, args...)
}

// DebugContext logs a message at debug level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelDebug, msg, args...)
}

// Info logs a message at info level
func Info(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelInfo, msg, args...)
}

// InfoContext logs a message at info level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelInfo, msg, args...)
}

// Notice logs a message at notice level
func Notice(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelNotice, msg, args...)
}

// NoticeContext logs a message at notice level with context
func NoticeContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelNotice, msg, args...)
}

// Warn logs a message at warning level
func Warn(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelWarn, msg, args...)
}

// WarnContext logs a message at warning level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelWarn, msg, args...)
}

// Error logs a message at error level
func Error(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelError, msg, args...)
}

// ErrorContext logs a message at error level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelError, msg, args...)
}

// Fatal logs a message at fatal level and exits the program
func Fatal(msg string, args ...any) {
	defaultLogger.Load().log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// FatalContext logs a message at fatal level with context and panics so deferred functions run
func FatalContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.Load().logContext(ctx, LevelFatal, msg, args...)
	panic("Fatal log called, exiting program")
}

// Dump pretty prints values to the configured output.
func Dump(values ...any) {
	_, _ = pp.Fprintln(currentFormatterConfig().Output, values...)
}

// SetLevel sets the minimum log level
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return programLevel.Level()
}

// SetLevelFromString sets the log level from a string representation.
// Supported levels: trace, debug, info, notice, warn/warning, error, fatal.
// The comparison is case-insensitive.
func SetLevelFromString(levelStr string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}
	SetLevel(level)
	return nil
}

func parseLevel(levelStr string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(levelStr))
	if normalized == "" {
		return 0, errors.WithStack(ErrEmptyLevel)
	}
	level, exists := levelNames[normalized]
	if !exists {
		return 0, errors.Errorf("%w '%s': supported levels are %s", ErrUnknownLevel, levelStr, getSupportedLevelsString())
	}
	return level, nil
}

// GetLevelString returns the current log level as a string
func GetLevelString() string {
	level := GetLevel()
	if name, exists := reverseLevelNames[level]; exists {
		return name
	}
	return level.String()
}

// IsLevelEnabled checks if logging is enabled for the given level
func IsLevelEnabled(level slog.Level) bool {
	return GetLevel() <= level
}

// getSupportedLevelsString returns a sorted, comma-separated list of level names
func getSupportedLevelsString() string {
	levels := make([]string, 0, len(levelNames))
	for name := range levelNames {
		levels = append(levels, name)
	}
	sort.Strings(levels)
	return strings.Join(levels, ", ")
}

// updateFormatterConfig applies change to the formatter configuration and rebuilds the default logger.
func updateFormatterConfig(change func(*FormatterConfig)) {
	formatterConfigMu.Lock()
	config := formatterConfig
	change(&config)
	formatterConfig = normalizeConfig(config)
	formatterConfigMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	initializeLogger()
}

// SetFormatterConfig updates the formatter configuration and reinitializes the logger
func SetFormatterConfig(config FormatterConfig) {
	updateFormatterConfig(func(c *FormatterConfig) { *c = config })
}

// GetFormatterConfig returns the current formatter configuration
func GetFormatterConfig() FormatterConfig {
	return currentFormatterConfig()
}

// EnableColors enables or disables colored output
func EnableColors(enabled bool) {
	updateFormatterConfig(func(c *FormatterConfig) { c.EnableColors = enabled })
}

// IsColorsEnabled returns true if colors are enabled and the output supports them
func IsColorsEnabled() bool {
	return currentFormatterConfig().EnableColors
}

// EnableMultilineStacktrace toggles multi-line stack trace formatting.
func EnableMultilineStacktrace(enabled bool) {
	updateFormatterConfig(func(c *FormatterConfig) { c.MultilineStacktrace = enabled })
}

// IsMultilineStacktraceEnabled returns true if multi-line stack traces are enabled.
func IsMultilineStacktraceEnabled() bool {
	return currentFormatterConfig().MultilineStacktrace
}

// EnableStackTraceSanitizing toggles trimming of the logger's own frames from logged errors.
func EnableStackTraceSanitizing(enabled bool) {
	updateFormatterConfig(func(c *FormatterConfig) { c.SanitizeStackTraces = enabled })
}

// IsStackTraceSanitizingEnabled returns true if logged errors are sanitized.
func IsStackTraceSanitizingEnabled() bool {
	return currentFormatterConfig().SanitizeStackTraces
}

// SetMaxStackFrames caps the number of rendered stack frames; 0 removes the cap.
func SetMaxStackFrames(n int) {
	updateFormatterConfig(func(c *FormatterConfig) { c.MaxStackFrames = n })
}

// SetTimeFormat sets the time format for log timestamps
func SetTimeFormat(format string) {
	updateFormatterConfig(func(c *FormatterConfig) { c.TimeFormat = format })
}

// GetTimeFormat returns the current time format
func GetTimeFormat() string {
	return currentFormatterConfig().TimeFormat
}

// SetOutput redirects log output; nil restores os.Stderr.
func SetOutput(w io.Writer) {
	updateFormatterConfig(func(c *FormatterConfig) { c.Output = w })
}

// LoggerOption is a functional option for configuring a Logger
type LoggerOption func(*Logger)

// WithCommonKeys sets custom context keys to extract from context.Context
func WithCommonKeys(keys []string) LoggerOption {
	return func(l *Logger) {
		l.commonKeys = keys
	}
}

// WithAddCommonKeys adds custom context keys to the default set of common keys
func WithAddCommonKeys(keys []string) LoggerOption {
	return func(l *Logger) {
		l.commonKeys = append(append([]string(nil), defaultCommonKeys...), keys...)
	}
}

// WithLevel sets the minimum log level for the logger instance.
// The global default logger's level is not affected.
func WithLevel(level slog.Level) LoggerOption {
	return func(l *Logger) {
		l.Logger = slog.New(createBaseHandler(level))
	}
}

// NewLogger creates a new Logger instance with the default configuration
func NewLogger(opts ...LoggerOption) *Logger {
	logger := &Logger{
		Logger:     slog.Default(),
		commonKeys: defaultCommonKeys,
	}
	for _, opt := range opts {
		opt(logger)
	}
	return logger
}

// NewLoggerWithLevel creates a new Logger instance with a specific minimum level
func NewLoggerWithLevel(level slog.Level, opts ...LoggerOption) *Logger {
	// explicit opts may override the level again
	opts = append([]LoggerOption{WithLevel(level)}, opts...)
	return NewLogger(opts...)
}

// Trace logs a message at trace level
func (l *Logger) Trace(msg string, args ...any) {
	l.log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs a message at trace level with context
func (l *Logger) TraceContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, LevelTrace, msg, args...)
}

// Notice logs a message at notice level
func (l *Logger) Notice(msg string, args ...any) {
	l.log(context.Background(), LevelNotice, msg, args...)
}

// NoticeContext logs a message at notice level with context
func (l *Logger) NoticeContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, LevelNotice, msg, args...)
}

// Fatal logs a message at fatal level and panics so deferred functions run
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(context.Background(), LevelFatal, msg, args...)
	panic("Fatal log called, exiting program")
}

// FatalContext logs a message at fatal level with context and panics so deferred functions run
func (l *Logger) FatalContext(ctx context.Context, msg string, args ...any) {
	l.logContext(ctx, LevelFatal, msg, args...)
	panic("Fatal log called, exiting program")
}
