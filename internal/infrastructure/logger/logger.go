package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"service": "foodmarket"}

	return cfg.Build()
}

type ctxKey struct{}

// WithTrace stores a request-scoped logger carrying traceID in ctx.
func WithTrace(ctx context.Context, base *zap.Logger, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, base.With(zap.String("traceId", traceID)))
}

// FromContext returns the request-scoped logger, or fallback when none was
// stored.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return fallback
}
