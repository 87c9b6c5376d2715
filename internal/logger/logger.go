package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"log/slog"
)

var (
	levelVar slog.LevelVar
	active   atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	active.Store(build(os.Stdout))
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput swaps the destination for all subsequent log lines.
func SetOutput(w io.Writer) {
	active.Store(build(w))
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// SetLevel adjusts verbosity. Unknown names fall back to info.
func SetLevel(level string) {
	lv, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		lv = slog.LevelInfo
	}
	levelVar.Set(lv)
}

func logf(lv slog.Level, format string, v ...any) {
	active.Load().Log(context.Background(), lv, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

// InfoBlock logs a multi-line block one line at a time so every line carries
// its own timestamp and level.
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if line = strings.TrimRight(line, " \t"); line != "" {
			logf(slog.LevelInfo, "%s", line)
		}
	}
}
