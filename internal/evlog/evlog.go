// Package evlog wraps an injectable logrus logger for the dispatch loop,
// the selector task, and the registry, defaulting to a no-op logger when
// the caller supplies none.
package evlog

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper so call sites can log structured fields
// without reaching for *logrus.Entry directly everywhere.
type Logger struct {
	l *logrus.Logger
}

var (
	noop     *Logger
	noopOnce sync.Once
)

// Default returns the package no-op logger: output is discarded, so a
// context that never calls SetLogger pays no logging cost and emits
// nothing.
func Default() *Logger {
	noopOnce.Do(func() {
		l := logrus.New()
		l.SetOutput(io.Discard)
		noop = &Logger{l: l}
	})
	return noop
}

// New wraps an existing *logrus.Logger. A nil logger yields Default().
func New(l *logrus.Logger) *Logger {
	if l == nil {
		return Default()
	}
	return &Logger{l: l}
}

func (lg *Logger) Debugf(format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.l.Debugf(format, args...)
}

func (lg *Logger) Warnf(format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.l.Warnf(format, args...)
}

func (lg *Logger) WithField(key string, value interface{}) *logrus.Entry {
	if lg == nil {
		return Default().l.WithField(key, value)
	}
	return lg.l.WithField(key, value)
}
