package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/dianlight/tracelog"
	"github.com/dianlight/tracelog/stacktrace"
)

const exampleConfig = `
level: trace
formatter:
  max_stack_frames: 6
  sanitize_stack_traces: true
`

func openStore(path string) error {
	if _, err := os.Stat(path); err != nil {
		return tracelog.NewError("store unavailable", err)
	}
	return nil
}

func main() {
	fmt.Println("=== TraceLog Demonstration ===")

	cfg, err := tracelog.LoadConfig([]byte(exampleConfig))
	if err != nil {
		tracelog.Fatal("invalid configuration", "error", err)
	}
	if err := cfg.Apply(); err != nil {
		tracelog.Fatal("cannot apply configuration", "error", err)
	}

	fmt.Println()
	fmt.Println("1. Logging functions:")
	tracelog.Trace("trace message")
	tracelog.Debug("debug message")
	tracelog.Info("info message", "component", "demo")
	slog.Info("slog message through the same handler", "component", "demo")
	tracelog.Notice("notice message", "action", "demonstration")
	tracelog.Warn("warning message", tracelog.WithCaller(0)...)

	fmt.Println()
	fmt.Println("2. Context logging:")
	//nolint:staticcheck // plain string keys are what the logger extracts
	ctx := context.WithValue(context.Background(), "request_id", "demo-123")
	tracelog.InfoContext(ctx, "request processed", "duration", time.Millisecond*150)

	fmt.Println()
	fmt.Println("3. Errors created by the logger start at the caller:")
	storeErr := openStore("/nonexistent/store.db")
	tracelog.Error("open failed", "error", storeErr)
	if e, ok := storeErr.(errors.E); ok {
		fmt.Printf("top frame: %s\n", stacktrace.Frames(e.StackTrace())[0])
	}

	fmt.Println()
	fmt.Println("4. Sanitizing an arbitrary error:")
	detailed := errors.WithDetails(errors.New("quota exceeded"), "bucket", "media", "limit", 100)
	sanitized, err := tracelog.SanitizeStackTrace(detailed)
	if err != nil {
		tracelog.Fatal("sanitize failed", "error", err)
	}
	tracelog.Error("unchanged when no logger frames lead the trace", "error", sanitized, "same", sanitized == detailed)

	_, err = tracelog.SanitizeStackTrace(nil)
	tracelog.Warn("nil input is rejected", "error", err)

	fmt.Println()
	fmt.Println("5. ErrorOrPanic:")
	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("recovered in trace mode: %v\n", r)
			}
		}()
		tracelog.ErrorOrPanic("unexpected state", errors.New("invariant broken"))
	}()
	tracelog.SetLevel(tracelog.LevelInfo)
	tracelog.ErrorOrPanic("unexpected state", errors.New("invariant broken"))

	fmt.Println()
	fmt.Println("6. Multiline stack traces:")
	tracelog.EnableMultilineStacktrace(true)
	tracelog.Error("multiline", "error", errors.New("spread over lines"))
	tracelog.EnableMultilineStacktrace(false)

	fmt.Println()
	fmt.Println("7. Dump:")
	tracelog.Dump(cfg)
}
