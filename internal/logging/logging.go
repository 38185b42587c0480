// Package logging defines the Logger interface C1-C12 log through and a
// default logrus-backed implementation (SPEC_FULL.md §4.8), so internal
// diagnostics compose with the host's own log(level, message) callback
// instead of fighting over stdout.
package logging

import "github.com/sirupsen/logrus"

// Logger is the sink every component logs through. kv are alternating
// key/value pairs, matching the structured-field style this corpus's
// moby-moby lineage uses rather than pre-formatted strings.
type Logger interface {
	Error(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Info(msg string, kv ...any)
	Debug(msg string, kv ...any)
}

// Level mirrors the host log(level, message) callback's four levels
// (spec.md §6).
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

// logrusLogger adapts *logrus.Logger to Logger.
type logrusLogger struct {
	entry *logrus.Logger
}

// New builds a Logger backed by logrus at the given level.
func New(level Level) Logger {
	l := logrus.New()
	l.SetLevel(toLogrusLevel(level))
	return &logrusLogger{entry: l}
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case LevelError:
		return logrus.ErrorLevel
	case LevelWarning:
		return logrus.WarnLevel
	case LevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func (l *logrusLogger) fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *logrusLogger) Error(msg string, kv ...any) { l.entry.WithFields(l.fields(kv)).Error(msg) }
func (l *logrusLogger) Warn(msg string, kv ...any)  { l.entry.WithFields(l.fields(kv)).Warn(msg) }
func (l *logrusLogger) Info(msg string, kv ...any)  { l.entry.WithFields(l.fields(kv)).Info(msg) }
func (l *logrusLogger) Debug(msg string, kv ...any) { l.entry.WithFields(l.fields(kv)).Debug(msg) }

// Nop is a Logger that discards everything, used by tests and by any
// component constructed without an explicit logger.
type Nop struct{}

func (Nop) Error(string, ...any) {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Info(string, ...any)  {}
func (Nop) Debug(string, ...any) {}
