package log

import (
	"context"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var (
	level         = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	defaultLogger atomic.Pointer[zap.Logger]
)

func init() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	defaultLogger.Store(zap.New(core))
}

// SetVerbose lowers the default level to Debug.
func SetVerbose(verbose bool) {
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Logger returns the logger stored in ctx by With(), or the default logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return defaultLogger.Load()
}

// With returns a copy of ctx whose logger carries the given key/value pairs.
func With(ctx context.Context, keyValues ...interface{}) context.Context {
	return context.WithValue(ctx, loggerKey{}, Logger(ctx).Sugar().With(keyValues...).Desugar())
}

// Fatal logs the message with the default logger, then calls os.Exit(1).
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Load().Fatal(msg, fields...)
}
