package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestLogger logs one line per request once the handler returns.
// Server errors log at error level, client errors at warn.
func requestLogger(lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", r.RemoteAddr,
			}
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				fields = append(fields, "request_id", rid)
			}

			switch {
			case status >= http.StatusInternalServerError:
				lg.Errorw("request completed", fields...)
			case status >= http.StatusBadRequest:
				lg.Warnw("request completed", fields...)
			default:
				lg.Infow("request completed", fields...)
			}
		})
	}
}
