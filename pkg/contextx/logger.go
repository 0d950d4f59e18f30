package contextx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger, ok
}

func LoggerFromContextOrDefault(ctx context.Context) *slog.Logger {
	if logger, ok := LoggerFromContext(ctx); ok {
		return logger
	}
	return slog.Default()
}

// WithLogAttrs returns ctx carrying the context logger enriched with args.
func WithLogAttrs(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, LoggerFromContextOrDefault(ctx).With(args...))
}
