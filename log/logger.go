/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"os"
	"time"

	"github.com/ssgreg/logf"
)

// Field is a single key-value pair of a structured log entry.
type Field = logf.Field

// Field constructors.
var (
	Error      = logf.Error // key is "error"
	NamedError = logf.NamedError
	String     = logf.String
	Bytes      = logf.Bytes
	Int        = logf.Int
	Int64      = logf.Int64
	Bool       = logf.Bool
	Duration   = logf.Duration
	Time       = logf.Time
	Any        = logf.Any
)

// DurationIn returns a "duration" field holding val expressed in whole units (e.g. milliseconds).
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", int64(val/unit))
}

// CloseFunc flushes buffered entries and releases the output. It must be called before the program exits.
type CloseFunc func()

// FieldLogger writes structured entries.
type FieldLogger interface {
	With(fields ...Field) FieldLogger
	WithLevel(level Level) FieldLogger

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops every entry.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger creates a logger writing entries asynchronously to the output selected in cfg.
// Every entry gets the "pid" field.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	out := newOutput(cfg)
	channel, closeChannel := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, out),
		EnableSyncOnError: true,
	})

	logger := logf.NewLogger(toLogfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		logger = logger.WithCaller().WithCallerSkip(1) // skip the adapter frame
	}
	return &LogfAdapter{logger}, func() {
		closeChannel()
		if out.closer != nil {
			_ = out.closer.Close()
		}
	}
}

// With returns a logger that adds fields to every entry.
func (l *LogfAdapter) With(fields ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fields...)}
}

// WithLevel returns a logger that additionally drops entries below level.
// The level of the parent still applies, so only raising it makes a difference.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{l.Logger.WithLevel(toLogfLevel(level))}
}

// Debug logs msg at "debug" level.
func (l *LogfAdapter) Debug(msg string, fields ...Field) { l.Logger.Debug(msg, fields...) }

// Info logs msg at "info" level.
func (l *LogfAdapter) Info(msg string, fields ...Field) { l.Logger.Info(msg, fields...) }

// Warn logs msg at "warn" level.
func (l *LogfAdapter) Warn(msg string, fields ...Field) { l.Logger.Warn(msg, fields...) }

// Error logs msg at "error" level.
func (l *LogfAdapter) Error(msg string, fields ...Field) { l.Logger.Error(msg, fields...) }

var logfLevels = map[Level]logf.Level{
	LevelError: logf.LevelError,
	LevelWarn:  logf.LevelWarn,
	LevelInfo:  logf.LevelInfo,
	LevelDebug: logf.LevelDebug,
}

func toLogfLevel(level Level) logf.Level {
	if l, ok := logfLevels[level]; ok {
		return l
	}
	return logf.LevelInfo
}
