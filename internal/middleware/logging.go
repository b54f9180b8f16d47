package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// with its procedure, peer and duration. Failures carrying a connect code log
// at WARN; any other error logs at ERROR.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			level, msg := slog.LevelInfo, "RPC ok"
			attrs := []slog.Attr{
				slog.String("procedure", req.Spec().Procedure),
				slog.String("peer", req.Peer().Addr),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			var connectErr *connect.Error
			switch {
			case err == nil:
			case errors.As(err, &connectErr):
				level, msg = slog.LevelWarn, "RPC error"
				attrs = append(attrs,
					slog.String("code", connectErr.Code().String()),
					slog.String("error", connectErr.Message()),
				)
			default:
				level, msg = slog.LevelError, "RPC error"
				attrs = append(attrs, slog.Any("error", err))
			}
			logger.LogAttrs(ctx, level, msg, attrs...)

			return resp, err
		}
	}
}
