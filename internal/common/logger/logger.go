package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"ai-planner/internal/common/config"
)

// Logger defines the minimal logging interface used across the planner.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	With(fields map[string]interface{}) Logger
	Sync() error
}

const redacted = "[REDACTED]"

// Field names whose values never reach the log, compared case-insensitively.
var sensitiveKeys = map[string]struct{}{
	"apikey":        {},
	"api_key":       {},
	"authorization": {},
	"password":      {},
	"cookie":        {},
}

// groqKeyPrefix marks Groq API keys wherever they show up in a string value.
const groqKeyPrefix = "gsk_"

func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// build returns a zap logger. format is "json" or "console"; output is
// "stdout", "stderr" or a file path.
func build(level, format, output string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	if output != "" {
		cfg.OutputPaths = []string{output}
	}
	return cfg.Build()
}

// FromConfig creates the application Logger. Every entry carries the
// service name, version and environment.
func FromConfig(app config.AppConfig, cfg config.LoggingConfig) (Logger, error) {
	l, err := build(cfg.Level, cfg.Format, cfg.Output)
	if err != nil {
		return nil, err
	}
	return &zapWrapper{l: l.With(
		zap.String("service", app.Name),
		zap.String("version", app.Version),
		zap.String("env", app.Environment),
	)}, nil
}

// NewZapAdapter wraps an existing *zap.Logger.
func NewZapAdapter(l *zap.Logger) Logger {
	return &zapWrapper{l: l}
}

// NewTestLogger writes through testing.T.
func NewTestLogger(t testing.TB) Logger {
	return &zapWrapper{l: zaptest.NewLogger(t)}
}

func NewNoOpLogger() Logger {
	return &zapWrapper{l: zap.NewNop()}
}

type zapWrapper struct {
	l *zap.Logger
}

func (z *zapWrapper) Debug(msg string, fields map[string]interface{}) {
	z.l.Debug(msg, toZapFields(fields)...)
}

func (z *zapWrapper) Info(msg string, fields map[string]interface{}) {
	z.l.Info(msg, toZapFields(fields)...)
}

func (z *zapWrapper) Warn(msg string, fields map[string]interface{}) {
	z.l.Warn(msg, toZapFields(fields)...)
}

func (z *zapWrapper) Error(msg string, fields map[string]interface{}) {
	z.l.Error(msg, toZapFields(fields)...)
}

func (z *zapWrapper) WithFields(fields map[string]interface{}) Logger {
	return &zapWrapper{l: z.l.With(toZapFields(fields)...)}
}

func (z *zapWrapper) WithError(err error) Logger {
	return &zapWrapper{l: z.l.With(zap.String("error", scrub(err.Error())))}
}

func (z *zapWrapper) With(fields map[string]interface{}) Logger {
	return z.WithFields(fields)
}

func (z *zapWrapper) Sync() error {
	return z.l.Sync()
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out = append(out, zap.String(k, redacted))
			continue
		}
		switch val := v.(type) {
		case error:
			out = append(out, zap.String(k, scrub(val.Error())))
		case string:
			out = append(out, zap.String(k, scrub(val)))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

// scrub masks anything that looks like a Groq key inside s.
func scrub(s string) string {
	i := strings.Index(s, groqKeyPrefix)
	if i < 0 {
		return s
	}
	var b strings.Builder
	for i >= 0 {
		b.WriteString(s[:i])
		b.WriteString(redacted)
		s = s[i+len(groqKeyPrefix):]
		end := strings.IndexFunc(s, func(r rune) bool {
			return !(r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
		})
		if end < 0 {
			end = len(s)
		}
		s = s[end:]
		i = strings.Index(s, groqKeyPrefix)
	}
	b.WriteString(s)
	return b.String()
}
