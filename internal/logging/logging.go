package logging

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
	mu    sync.RWMutex
)

// Logger is the structured logging surface used across the assistant.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
	Sync() error
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}
func (noopLogger) Fatalw(string, ...interface{}) {}
func (noopLogger) Sync() error                   { return nil }

// current starts as a noop so packages can log before main calls Init.
var current Logger = noopLogger{}

// Init builds the process logger from LOG_LEVEL and redirects the standard
// library logger into zap. Safe to call more than once.
func Init() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.Config{
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.Level = zap.NewAtomicLevelAt(levelFromEnv(os.Getenv("LOG_LEVEL")))

		logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			logger, _ = zap.NewProduction()
		}
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
		SetLogger(sugar)
	})
	return sugar
}

func levelFromEnv(v string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Sugar returns the logger built by Init, or nil before Init.
func Sugar() *zap.SugaredLogger { return sugar }

// SetLogger swaps the package logger. Passing nil restores the Init logger
// (or the noop logger if Init was never called). Tests use this with a
// zaptest/observer core to assert on emitted entries.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case l != nil:
		current = l
	case sugar != nil:
		current = sugar
	default:
		current = noopLogger{}
	}
}

// GetLogger returns the active Logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Infow(msg string, keysAndValues ...interface{})  { GetLogger().Infow(msg, keysAndValues...) }
func Debugw(msg string, keysAndValues ...interface{}) { GetLogger().Debugw(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { GetLogger().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { GetLogger().Errorw(msg, keysAndValues...) }
func Fatalw(msg string, keysAndValues ...interface{}) { GetLogger().Fatalw(msg, keysAndValues...) }

// FatalExitf logs at fatal level and exits with status 1.
func FatalExitf(msg string, keysAndValues ...interface{}) {
	GetLogger().Fatalw(msg, keysAndValues...)
	os.Exit(1)
}

// Sync flushes buffered entries.
func Sync() error { return GetLogger().Sync() }

type ctxKeyType struct{}

// WithFields returns a context carrying kv; existing fields are kept first.
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(ctxKeyType{}).([]interface{})
	merged := make([]interface{}, 0, len(prev)+len(kv))
	merged = append(merged, prev...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, ctxKeyType{}, merged)
}

// FromContext returns fields attached with WithFields.
func FromContext(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(ctxKeyType{}).([]interface{})
	return v
}

func merge(ctx context.Context, kv []interface{}) []interface{} {
	ctxFields := FromContext(ctx)
	if len(ctxFields) == 0 {
		return kv
	}
	merged := make([]interface{}, 0, len(ctxFields)+len(kv))
	merged = append(merged, ctxFields...)
	return append(merged, kv...)
}

func InfowCtx(ctx context.Context, msg string, kv ...interface{})  { Infow(msg, merge(ctx, kv)...) }
func DebugwCtx(ctx context.Context, msg string, kv ...interface{}) { Debugw(msg, merge(ctx, kv)...) }
func WarnwCtx(ctx context.Context, msg string, kv ...interface{})  { Warnw(msg, merge(ctx, kv)...) }
func ErrorwCtx(ctx context.Context, msg string, kv ...interface{}) { Errorw(msg, merge(ctx, kv)...) }

// Field helpers use dot-separated keys so log queries stay uniform.

func UserFields(userID, userName string) []interface{} {
	if userName == "" {
		return []interface{}{"user.id", userID}
	}
	return []interface{}{"user.id", userID, "user.name", userName}
}

func GuildFields(guildID, guildName string) []interface{} {
	if guildName == "" {
		return []interface{}{"guild.id", guildID}
	}
	return []interface{}{"guild.id", guildID, "guild.name", guildName}
}

func ChannelFields(channelID, channelName string) []interface{} {
	if channelName == "" {
		return []interface{}{"channel.id", channelID}
	}
	return []interface{}{"channel.id", channelID, "channel.name", channelName}
}

// IntentFields describes a dispatched inference.
func IntentFields(intent string, understood bool, correlationID string) []interface{} {
	return []interface{}{"intent.name", intent, "intent.understood", understood, "correlation_id", correlationID}
}

// CaptureFields describes a follow-up capture buffer for a speaker.
func CaptureFields(speakerID string, bytes int, correlationID string) []interface{} {
	return []interface{}{"user.id", speakerID, "capture.bytes", bytes, "correlation_id", correlationID}
}
