package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Metrics is the optional instrumentation hook for HTTP request
// handling. A nil Metrics disables instrumentation at zero cost.
type Metrics interface {
	RecordRequest(method, route string, status int, duration time.Duration)
}

// instrument wraps next so every request's method, matched route
// pattern, status and duration are recorded, skipped entirely when m
// is nil.
func instrument(m Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.RecordRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
