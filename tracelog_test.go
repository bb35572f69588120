package tracelog_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"gitlab.com/tozd/go/errors"

	"github.com/dianlight/tracelog"
)

type TracelogSuite struct {
	suite.Suite
	originalLevel  slog.Level
	originalConfig tracelog.FormatterConfig
	output         *bytes.Buffer
}

func (suite *TracelogSuite) SetupTest() {
	suite.originalLevel = tracelog.GetLevel()
	suite.originalConfig = tracelog.GetFormatterConfig()
	suite.output = &bytes.Buffer{}
	tracelog.SetOutput(suite.output)
}

func (suite *TracelogSuite) TearDownTest() {
	tracelog.SetFormatterConfig(suite.originalConfig)
	tracelog.SetLevel(suite.originalLevel)
}

func (suite *TracelogSuite) TestSetAndGetLevel() {
	levels := []slog.Level{
		tracelog.LevelTrace,
		tracelog.LevelDebug,
		tracelog.LevelInfo,
		tracelog.LevelNotice,
		tracelog.LevelWarn,
		tracelog.LevelError,
		tracelog.LevelFatal,
	}

	for _, level := range levels {
		tracelog.SetLevel(level)
		suite.Equal(level, tracelog.GetLevel())
	}
}

func (suite *TracelogSuite) TestSetLevelFromString() {
	testCases := []struct {
		input         string
		expectedLevel slog.Level
		expectedErr   error
	}{
		{"trace", tracelog.LevelTrace, nil},
		{"debug", tracelog.LevelDebug, nil},
		{"info", tracelog.LevelInfo, nil},
		{"notice", tracelog.LevelNotice, nil},
		{"warn", tracelog.LevelWarn, nil},
		{"warning", tracelog.LevelWarn, nil}, // alias
		{"error", tracelog.LevelError, nil},
		{"fatal", tracelog.LevelFatal, nil},

		// Case-insensitive
		{"TRACE", tracelog.LevelTrace, nil},
		{"Notice", tracelog.LevelNotice, nil},
		{"Warning", tracelog.LevelWarn, nil},

		// With whitespace
		{"  trace  ", tracelog.LevelTrace, nil},
		{"\tdebug\n", tracelog.LevelDebug, nil},

		// Invalid
		{"invalid", 0, tracelog.ErrUnknownLevel},
		{"", 0, tracelog.ErrEmptyLevel},
		{"   ", 0, tracelog.ErrEmptyLevel},
		{"tracee", 0, tracelog.ErrUnknownLevel},
	}

	for _, tc := range testCases {
		suite.Run(tc.input, func() {
			tracelog.SetLevel(tracelog.LevelInfo)
			err := tracelog.SetLevelFromString(tc.input)

			if tc.expectedErr != nil {
				suite.ErrorIs(err, tc.expectedErr)
				suite.Equal(tracelog.LevelInfo, tracelog.GetLevel(), "level must not change on error")
				return
			}
			suite.NoError(err)
			suite.Equal(tc.expectedLevel, tracelog.GetLevel())
		})
	}
}

func (suite *TracelogSuite) TestSetLevelFromStringErrorMessages() {
	err := tracelog.SetLevelFromString("")
	suite.Require().Error(err)
	suite.Contains(err.Error(), "log level cannot be empty")

	err = tracelog.SetLevelFromString("invalid")
	suite.Require().Error(err)
	suite.Contains(err.Error(), "invalid log level 'invalid'")
	suite.Contains(err.Error(), "supported levels are debug, error, fatal, info, notice, trace, warn, warning")
}

func (suite *TracelogSuite) TestGetLevelString() {
	testCases := []struct {
		level          slog.Level
		expectedString string
	}{
		{tracelog.LevelTrace, "TRACE"},
		{tracelog.LevelDebug, "DEBUG"},
		{tracelog.LevelInfo, "INFO"},
		{tracelog.LevelNotice, "NOTICE"},
		{tracelog.LevelWarn, "WARN"},
		{tracelog.LevelError, "ERROR"},
		{tracelog.LevelFatal, "FATAL"},
		{slog.Level(1), "INFO+1"},
	}

	for _, tc := range testCases {
		suite.Run(tc.expectedString, func() {
			tracelog.SetLevel(tc.level)
			suite.Equal(tc.expectedString, tracelog.GetLevelString())
		})
	}
}

func (suite *TracelogSuite) TestIsLevelEnabled() {
	tracelog.SetLevel(tracelog.LevelInfo)

	suite.True(tracelog.IsLevelEnabled(tracelog.LevelInfo))
	suite.True(tracelog.IsLevelEnabled(tracelog.LevelNotice))
	suite.True(tracelog.IsLevelEnabled(tracelog.LevelWarn))
	suite.True(tracelog.IsLevelEnabled(tracelog.LevelError))
	suite.True(tracelog.IsLevelEnabled(tracelog.LevelFatal))

	suite.False(tracelog.IsLevelEnabled(tracelog.LevelTrace))
	suite.False(tracelog.IsLevelEnabled(tracelog.LevelDebug))
}

func (suite *TracelogSuite) TestCustomLevels() {
	suite.Equal(slog.Level(-8), tracelog.LevelTrace)
	suite.Equal(slog.LevelDebug, tracelog.LevelDebug)
	suite.Equal(slog.LevelInfo, tracelog.LevelInfo)
	suite.Equal(slog.Level(2), tracelog.LevelNotice)
	suite.Equal(slog.LevelWarn, tracelog.LevelWarn)
	suite.Equal(slog.LevelError, tracelog.LevelError)
	suite.Equal(slog.Level(12), tracelog.LevelFatal)
}

func (suite *TracelogSuite) TestLoggingFunctionsRespectLevel() {
	tracelog.SetLevel(tracelog.LevelNotice)

	tracelog.Trace("trace message")
	tracelog.Debug("debug message")
	tracelog.Info("info message")
	tracelog.Notice("notice message", "key", "value")
	tracelog.Warn("warn message")
	tracelog.Error("error message")

	out := suite.output.String()
	suite.NotContains(out, "trace message")
	suite.NotContains(out, "debug message")
	suite.NotContains(out, "info message")
	suite.Contains(out, "NOTICE")
	suite.Contains(out, "notice message")
	suite.Contains(out, "key=value")
	suite.Contains(out, "warn message")
	suite.Contains(out, "error message")
}

func (suite *TracelogSuite) TestContextLoggingFunctions() {
	tracelog.SetLevel(tracelog.LevelTrace)
	//nolint:staticcheck // plain string keys are what the logger extracts
	ctx := context.WithValue(context.Background(), "request_id", "req-12345")

	tracelog.TraceContext(ctx, "trace message")
	tracelog.DebugContext(ctx, "debug message")
	tracelog.InfoContext(ctx, "info message")
	tracelog.NoticeContext(ctx, "notice message")
	tracelog.WarnContext(ctx, "warn message")
	tracelog.ErrorContext(ctx, "error message")

	out := suite.output.String()
	suite.Equal(6, strings.Count(out, "request_id=req-12345"))
}

func (suite *TracelogSuite) TestSourceIsCaller() {
	tracelog.Info("where am I")

	out := suite.output.String()
	suite.Contains(out, "tracelog_test.go:")
	suite.NotContains(out, "tracelog.go:")
}

func (suite *TracelogSuite) TestLoggerMethodsSourceIsCaller() {
	logger := tracelog.NewLoggerWithLevel(tracelog.LevelTrace)
	logger.Trace("trace from logger")
	logger.Notice("notice from logger")

	out := suite.output.String()
	suite.Contains(out, "trace from logger")
	suite.Contains(out, "notice from logger")
	suite.Equal(2, strings.Count(out, "tracelog_test.go:"))
	suite.NotContains(out, "tracelog.go:")
}

func (suite *TracelogSuite) TestWithCaller() {
	args := tracelog.WithCaller(0)
	suite.Require().Len(args, 2)
	suite.Equal("caller", args[0])
	suite.Contains(args[1], "tracelog_test.go:")
	suite.Contains(args[1], "TestWithCaller")
}

func (suite *TracelogSuite) TestConcurrency() {
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(level slog.Level) {
			defer wg.Done()

			tracelog.SetLevel(level)
			_ = tracelog.GetLevel()
			_ = tracelog.GetLevelString()
			_ = tracelog.IsLevelEnabled(level)
			_, _ = tracelog.SanitizeStackTrace(errors.New("concurrent"))
		}(slog.Level(i - 4))
	}

	wg.Wait()
}

func (suite *TracelogSuite) TestLoggingWhileReconfiguring() {
	tracelog.SetOutput(io.Discard)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				tracelog.Info("logging", "iteration", j)
				tracelog.NoticeContext(context.Background(), "logging with context")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				tracelog.SetTimeFormat("15:04:05")
				tracelog.EnableMultilineStacktrace(j%2 == 0)
			}
		}()
	}

	wg.Wait()
}

func (suite *TracelogSuite) TestNewLogger() {
	logger := tracelog.NewLogger()
	suite.NotNil(logger)
	suite.NotNil(logger.Logger)
}

func (suite *TracelogSuite) TestLoggerWithLevelFunctionality() {
	debugLogger := tracelog.NewLoggerWithLevel(tracelog.LevelDebug)

	// The global level does not apply to a logger with its own level.
	tracelog.SetLevel(tracelog.LevelError)
	debugLogger.Debug("debug from level-specific logger")

	suite.Contains(suite.output.String(), "debug from level-specific logger")
}

func (suite *TracelogSuite) TestLoggerCommonKeys() {
	logger := tracelog.NewLogger(tracelog.WithAddCommonKeys([]string{"tenant"}))
	//nolint:staticcheck // plain string keys are what the logger extracts
	ctx := context.WithValue(context.Background(), "tenant", "acme")
	logger.NoticeContext(ctx, "tenant scoped")

	suite.Contains(suite.output.String(), "tenant=acme")
}

func (suite *TracelogSuite) TestLoggerEmbeddedSlogFunctionality() {
	logger := tracelog.NewLogger()

	logger.With("component", "test").Info("structured message")
	logger.WithGroup("group").Info("grouped message", "key", "value")

	out := suite.output.String()
	suite.Contains(out, "component=test")
	suite.Contains(out, "group.key=value")
}

func (suite *TracelogSuite) TestFormatterConfig() {
	config := tracelog.GetFormatterConfig()
	suite.True(config.EnableFormatting)
	suite.True(config.SanitizeStackTraces)

	tracelog.SetFormatterConfig(tracelog.FormatterConfig{
		EnableColors:        true,
		EnableFormatting:    true,
		TimeFormat:          "2006-01-02 15:04:05",
		SanitizeStackTraces: false,
		MaxStackFrames:      -3,
		Output:              suite.output,
	})

	updated := tracelog.GetFormatterConfig()
	suite.True(updated.EnableFormatting)
	suite.False(updated.SanitizeStackTraces)
	suite.Equal("2006-01-02 15:04:05", updated.TimeFormat)
	suite.Equal(0, updated.MaxStackFrames)
	// A buffer is never a color terminal.
	suite.False(updated.EnableColors)
}

func (suite *TracelogSuite) TestFormatterConfigDefaultsFilled() {
	tracelog.SetFormatterConfig(tracelog.FormatterConfig{})

	config := tracelog.GetFormatterConfig()
	suite.NotNil(config.Output)
	suite.NotEmpty(config.TimeFormat)
}

func (suite *TracelogSuite) TestColorConfiguration() {
	tracelog.EnableColors(true)
	// Depends on the output being a color terminal; a buffer is not.
	suite.False(tracelog.IsColorsEnabled())

	tracelog.EnableColors(false)
	suite.False(tracelog.IsColorsEnabled())
}

func (suite *TracelogSuite) TestToggles() {
	tracelog.EnableMultilineStacktrace(true)
	suite.True(tracelog.IsMultilineStacktraceEnabled())
	tracelog.EnableMultilineStacktrace(false)
	suite.False(tracelog.IsMultilineStacktraceEnabled())

	tracelog.EnableStackTraceSanitizing(false)
	suite.False(tracelog.IsStackTraceSanitizingEnabled())
	tracelog.EnableStackTraceSanitizing(true)
	suite.True(tracelog.IsStackTraceSanitizingEnabled())

	tracelog.SetMaxStackFrames(3)
	suite.Equal(3, tracelog.GetFormatterConfig().MaxStackFrames)
}

func (suite *TracelogSuite) TestTimeFormatConfiguration() {
	customFormat := "2006-01-02 15:04:05"

	tracelog.SetTimeFormat(customFormat)
	suite.Equal(customFormat, tracelog.GetTimeFormat())

	tracelog.SetTimeFormat("2006-01-02T15:04:05Z07:00")
	suite.Equal("2006-01-02T15:04:05Z07:00", tracelog.GetTimeFormat())
}

func (suite *TracelogSuite) TestUnixTimestampFormatting() {
	tracelog.SetTimeFormat("2006-01-02")
	tracelog.Info("with timestamp", "timestamp", int64(86400*365+43200))

	suite.Contains(suite.output.String(), "timestamp=1971-01-01")
}

func (suite *TracelogSuite) TestDump() {
	tracelog.Dump(map[string]int{"frames": 2})
	suite.Contains(suite.output.String(), "frames")
}

func TestTracelogSuite(t *testing.T) {
	suite.Run(t, new(TracelogSuite))
}
