// Package logging provides a small leveled logger shared by every
// background component (WAL worker, recovery, Sandstone flusher). The
// call sites only ever need Info/Warn/Error/Debug with key-value pairs,
// so this wraps log/slog rather than pulling in a third-party logger for
// the leveled-record path itself; Error additionally forwards to an
// optional Reporter (Sentry in production, a no-op everywhere else).
package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Logger is the leveled logger handed to every long-running component.
type Logger struct {
	s        *slog.Logger
	reporter Reporter
}

// New returns a Logger writing structured text to stderr at the given
// level ("debug", "info", "warn", "error"; unknown values default to info).
func New(component string, level string) *Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &Logger{s: slog.New(h).With("component", component), reporter: NoopReporter()}
}

// Nop returns a Logger that discards everything, for tests and for
// callers that don't want any output.
func Nop() *Logger {
	h := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return &Logger{s: slog.New(h), reporter: NoopReporter()}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) Debug(msg string, args ...any) { l.s.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.s.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warn(msg, args...) }

// Error logs at error level and, if a Reporter is attached, also forwards
// the error to it. args is scanned for a value of type error (used as the
// reported error, falling back to errors.New(msg) when none is present);
// every other key-value pair becomes a Sentry tag.
func (l *Logger) Error(msg string, args ...any) {
	l.s.Error(msg, args...)
	reportedErr, tags := errAndTagsFrom(msg, args)
	l.reporter.ReportError(reportedErr, tags)
}

// With returns a Logger with additional fields attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...), reporter: l.reporter}
}

// WithReporter returns a Logger that forwards every Error call to r in
// addition to logging it. r is typically the sentryReporter built by
// NewSentryReporter, shared across every component logger in the process.
func (l *Logger) WithReporter(r Reporter) *Logger {
	return &Logger{s: l.s, reporter: r}
}

func errAndTagsFrom(msg string, args []any) (error, map[string]string) {
	var reportedErr error
	tags := make(map[string]string, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, ok := args[i+1].(error); ok {
			reportedErr = err
			continue
		}
		tags[key] = fmt.Sprint(args[i+1])
	}
	if reportedErr == nil {
		reportedErr = errors.New(msg)
	}
	return reportedErr, tags
}
