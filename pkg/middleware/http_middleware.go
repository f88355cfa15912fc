package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request with status and latency.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", ClientIP(r)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Error("HTTP request", fields...)
				return
			}
			logger.Info("HTTP request", fields...)
		})
	}
}

// Recoverer turns a handler panic into a JSON 500.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Panic recovered in HTTP handler",
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "Internal server error"})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds each request with the handler timeout unless the incoming
// context already carries a deadline.
func Timeout(cfg *resilience.TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := cfg.HandlerContext(r.Context())
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
