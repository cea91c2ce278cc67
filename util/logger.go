// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages through zap.  The printf-style API
// is kept so call sites read like plain log lines; structured context
// is attached with [Logger.With].
type Logger struct {
	level      LogLevel
	mu         sync.Mutex
	output     io.Writer
	timestamps bool
	fields     []interface{}
	sugar      *zap.SugaredLogger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug) to stderr.
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// NewFileLogger is like NewLogger but writes to a size-rotated file.
func NewFileLogger(verbosity int, path string, maxSizeMB, maxBackups int) *Logger {
	l := NewLogger(verbosity)
	l.timestamps = true
	l.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	})
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	l.timestamps = on
	l.mu.Unlock()
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.output = w
	l.mu.Unlock()
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that adds the key/value pairs to every
// line.  The parent is not affected.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		fields:     fields,
		sugar:      l.sugar.With(keysAndValues...),
	}
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.logger().Infof(format, args...)
	}
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.logger().Warnf(format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.logger().Logf(verboseLevel, format, args...)
	}
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.logger().Debugf(format, args...)
	}
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger().Errorf(format, args...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.logger().Sync()
}

func (l *Logger) logger() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

// rebuild recreates the zap core after an output or format change.
func (l *Logger) rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()

	enc := zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		NameKey:          "logger",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      bracketLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if l.timestamps {
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(l.output),
		zapLevel(l.level),
	)
	l.sugar = zap.New(core).Sugar().With(l.fields...)
}

// verboseLevel sits below zap's debug level so verbose lines keep their
// own tag.
const verboseLevel = zapcore.DebugLevel - 1

// zapLevel maps verbosity onto the minimum zap level that can pass the
// gates in the logging methods above.
func zapLevel(v LogLevel) zapcore.Level {
	switch {
	case v >= LogVerbose:
		return verboseLevel
	case v >= LogNormal:
		return zapcore.InfoLevel
	default:
		return zapcore.ErrorLevel
	}
}

var levelTags = map[zapcore.Level]string{
	verboseLevel:       "[VRB]",
	zapcore.DebugLevel: "[DBG]",
	zapcore.InfoLevel:  "[INF]",
	zapcore.WarnLevel:  "[WRN]",
	zapcore.ErrorLevel: "[ERR]",
}

func bracketLevelEncoder(lvl zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
	if tag, ok := levelTags[lvl]; ok {
		pae.AppendString(tag)
		return
	}
	pae.AppendString(fmt.Sprintf("[%s]", lvl.CapitalString()))
}
