// Package logging provides the structured Logger contract used
// throughout the engine and the append-only delivered-message log sink.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the contract every package logs through. It mirrors the
// level set of a conventional leveled logger plus a runtime debug
// toggle, so operators can raise verbosity without restarting the node.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields Fields) Logger
	ToggleDebug(on bool)
}

// Fields is a structured key-value attachment for a single log line
// (round key, peer id, phase, etc.), never string-interpolated into the
// message itself.
type Fields map[string]interface{}

// LogrusLogger backs Logger with a *logrus.Logger.
type LogrusLogger struct {
	entry *logrus.Entry
	base  *logrus.Logger
}

// NewLogrusLogger builds a Logger writing structured (JSON) lines to
// stderr at the given level ("debug", "info", "warn", "error").
func NewLogrusLogger(level string) *LogrusLogger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
	return &LogrusLogger{entry: logrus.NewEntry(base), base: base}
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *LogrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *LogrusLogger) WithFields(fields Fields) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields)), base: l.base}
}

func (l *LogrusLogger) ToggleDebug(on bool) {
	if on {
		l.base.SetLevel(logrus.DebugLevel)
	} else {
		l.base.SetLevel(logrus.InfoLevel)
	}
}
