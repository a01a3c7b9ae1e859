package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
)

// RequestLogger logs each request's method, path, status and duration at
// info level, in the style of the rest of the ambient logging, and records
// the same fields to the HTTP request metrics.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)
			dur := time.Since(start)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", dur).
				Msg("http request")

			metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), dur.Seconds())
		})
	}
}
