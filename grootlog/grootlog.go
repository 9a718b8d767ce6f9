// Package grootlog is the thin logrus wrapper every grootfs package
// logs through. Diagnostics destined for the CLI's standard error
// (spec.md §6, the "groot: " prefix) are a separate, user-facing
// contract and are not routed through here.
package grootlog

import "github.com/sirupsen/logrus"

// Logger is the structured logger handed to every component. The zero
// value is not usable; construct one with New.
type Logger struct {
	entry *logrus.Entry
	debug bool
}

// New builds a Logger that writes structured fields through entry.
// debugEnabled toggles per-handler-entry debug lines (spec.md §7).
func New(entry *logrus.Entry, debugEnabled bool) *Logger {
	return &Logger{entry: entry, debug: debugEnabled}
}

// With returns a derived Logger carrying an additional field, e.g.
// log.With("path", p).Warnf("...").
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), debug: l.debug}
}

// WithDebug returns a copy of l with its debug gate set to enabled,
// letting a caller (node.NewRoot, given node.Options.Debug) turn on
// Debugf for a tree without the original Logger's caller needing to
// know about it.
func (l *Logger) WithDebug(enabled bool) *Logger {
	return &Logger{entry: l.entry, debug: enabled}
}

// Debugf emits one line per handler entry with the interesting
// arguments, only when the runtime debug flag is set.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.entry.Debugf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
