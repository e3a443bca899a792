package observability

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	base *zap.Logger
}

func NewLogger(level string) *Logger {
	cfg := zap.NewProductionConfig()
	parsed := new(zapcore.Level)
	if err := parsed.Set(level); err != nil {
		*parsed = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(*parsed)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewExample()
	}

	return &Logger{base: base}
}

// NewNopLogger discards everything; used by tests and optional wiring.
func NewNopLogger() *Logger {
	return &Logger{base: zap.NewNop()}
}

// NewLoggerWithCore wraps an existing zap core, e.g. an observer in tests.
func NewLoggerWithCore(core zapcore.Core) *Logger {
	return &Logger{base: zap.New(core)}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base.Info(message, toZapFields(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.base.Warn(message, toZapFields(fields)...)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base.Error(message, toZapFields(fields)...)
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}

func toZapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
