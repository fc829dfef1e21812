package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// ParseLevel converts debug, info, warn, error or fatal (any case) into a
// Level. Empty is info.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelFromName(s); ok {
		return l, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// exit is swapped in tests.
var exit = os.Exit

// log emits one entry. skip counts the frames between the caller of the
// public method and log itself.
func (l *BaseLogger) log(skip int, level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip+2, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(fieldAttrs(l.fields, fields)...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
	if level == FatalLevel {
		exit(1)
	}
}

func (l *BaseLogger) logf(level Level, format string, args []interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.log(2, level, fmt.Sprintf(format, args...), nil)
}

// Enabled reports whether level passes the logger's minimum.
func (l *BaseLogger) Enabled(level Level) bool { return level >= l.level }

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(1, DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(1, InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(1, WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(1, ErrorLevel, msg, fields) }

// Fatal logs and exits the process with status 1.
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.log(1, FatalLevel, msg, fields) }

func (l *BaseLogger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args) }
func (l *BaseLogger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args) }
func (l *BaseLogger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args) }
func (l *BaseLogger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args) }
func (l *BaseLogger) Fatalf(format string, args ...interface{}) { l.logf(FatalLevel, format, args) }

// child returns a logger with extra merged over the current fields. It keeps
// the handler's redaction and sampling options.
func (l *BaseLogger) child(extra Fields) *BaseLogger {
	nl := *l
	nl.fields = make(Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	for k, v := range extra {
		nl.fields[k] = v
	}
	if h, ok := l.slogLogger.Handler().(*bridgeHandler); ok {
		nh := *h
		nh.logger = &nl
		nl.slogLogger = slog.New(&nh)
	}
	return &nl
}

func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	extra := make(Fields, len(fields))
	for _, f := range fields {
		extra[f.Key] = f.Value
	}
	return l.child(extra)
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.child(Fields{key: value})
}

// WithError attaches err under the error key; nil is a no-op.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.child(Fields{ErrorKey: err.Error()})
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.child(Fields{ComponentKey: component})
}

// NewNopLogger returns a logger that discards everything, Fatal included.
func NewNopLogger() Logger {
	return NewLogger(WithLevel(FatalLevel+1), WithOutput(&NullOutput{}))
}
