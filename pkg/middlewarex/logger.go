package middlewarex

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/zenazn/goji/web/mutil"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := contextx.WithLogAttrs(r.Context(),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(ctx)
		logger(ctx).Info("request", RequestLogRestapi(r))

		lw := mutil.WrapWriter(w)
		next.ServeHTTP(lw, r)

		logger(ctx).Info("response", ResponseLogRestapi(lw, startTime))
	})
}

func RequestLogRestapi(r *http.Request) slog.Attr {
	return slog.Group("request_info",
		slog.String("query", r.URL.RawQuery),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()),
		slog.String("ip", r.RemoteAddr),
	)
}

func ResponseLogRestapi(w mutil.WriterProxy, startTime time.Time) slog.Attr {
	status := w.Status()
	if status == 0 {
		status = http.StatusOK
	}
	return slog.Group("response_info",
		slog.Int("status", status),
		slog.Int("size", w.BytesWritten()),
		slog.Int64("duration", time.Since(startTime).Milliseconds()),
	)
}
