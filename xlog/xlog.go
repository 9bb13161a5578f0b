// Package xlog is the ambient structured-logging seam shared by every
// package in this repository: a github.com/joeycumines/logiface logger
// backed by log/slog (via logiface-slog), so callers get leveled,
// structured fields (peer, method, reason, ...) instead of
// formatted strings. Every component accepts an optional *Logger; nil is
// replaced with a discard logger, matching the package-level
// optional-logger pattern the corpus uses throughout.
package xlog

import (
	"io"
	"log/slog"

	"github.com/joeycumines/logiface"
	slogbackend "github.com/joeycumines/logiface-slog"
)

// Event is the concrete event type this repository's loggers use.
type Event = slogbackend.Event

// Logger is a leveled structured logger bound to Event.
type Logger = logiface.Logger[*Event]

// Level re-exports logiface's level type so callers configuring a
// Logger need not import logiface directly.
type Level = logiface.Level

const (
	LevelDebug = logiface.LevelDebug
	LevelInfo  = logiface.LevelInformational
)

// New wraps an slog.Handler as a Logger. Additional options (e.g.
// WithLevel) are applied on top.
func New(handler slog.Handler, opts ...logiface.Option[*Event]) *Logger {
	return logiface.New[*Event](append([]logiface.Option[*Event]{slogbackend.NewLogger(handler)}, opts...)...)
}

// WithLevel lowers (or raises) the minimum level the Logger emits; the
// default is LevelInfo.
func WithLevel(level Level) logiface.Option[*Event] {
	return logiface.WithLevel[*Event](level)
}

// NewDiscard returns a Logger that drops everything, used as the
// fallback when a component is constructed without an explicit logger.
func NewDiscard() *Logger {
	return New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l if non-nil, otherwise a discard Logger. Every
// component that takes an optional *Logger calls this once at
// construction time rather than nil-checking on every log call.
func OrDiscard(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return NewDiscard()
}
