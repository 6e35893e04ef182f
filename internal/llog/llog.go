// Package llog wraps log/slog in the small leveled-logging call style the
// teacher's server package used (one log line per notable event, a level
// word baked into the message), so matcher construction and every stage of
// mid_process can thread a single Logger down from the CLI entry point
// instead of importing slog directly everywhere.
//
// This generalizes the original Rust llmatcher.rs's Logger::new(level),
// which also gated a handful of named levels (warn/info/debug/trace) behind
// one integer threshold before handing formatted lines to the host.
package llog

import (
	"context"
	"io"
	"log/slog"
)

// Level mirrors the four levels the original Logger distinguished, in
// increasing verbosity.
type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	case LevelTrace:
		return slog.Level(-8) // below slog.LevelDebug, matching "trace" verbosity
	}
	return slog.LevelInfo
}

// Logger is the handle threaded through matcher construction and the token
// parser; every component that wants to log takes one of these rather than
// reaching for the global slog logger, so a host embedding llmask can
// redirect or silence it without touching package state.
type Logger struct {
	base *slog.Logger
	lvl  Level
}

// New builds a Logger writing level-tagged JSON lines to w, active at lvl
// and above.
func New(w io.Writer, lvl Level) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl.slogLevel()})
	return &Logger{base: slog.New(h), lvl: lvl}
}

// Discard returns a Logger that drops everything, for tests and hosts that
// don't want matcher-internal logging at all.
func Discard() *Logger {
	return New(io.Discard, LevelWarn)
}

// With returns a Logger that includes the given key/value pairs on every
// subsequent call, e.g. Logger.With("matcher_id", id).
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...), lvl: l.lvl}
}

func (l *Logger) Warn(msg string, args ...any)  { l.base.Log(context.Background(), slog.LevelWarn, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Log(context.Background(), slog.LevelInfo, msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.base.Log(context.Background(), slog.LevelDebug, msg, args...) }
func (l *Logger) Trace(msg string, args ...any) {
	l.base.Log(context.Background(), LevelTrace.slogLevel(), msg, args...)
}

// Enabled reports whether lvl would actually be emitted, so callers can
// skip building an expensive log argument (e.g. rendering a whole mask) when
// it would be discarded anyway.
func (l *Logger) Enabled(lvl Level) bool {
	return l.base.Enabled(context.Background(), lvl.slogLevel())
}
