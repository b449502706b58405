package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docassistant/docassistant/internal/telemetry"
)

// trace wraps every request in an HTTP span. When telemetry is
// disabled, StartHTTPSpan returns a no-op span at negligible cost.
func trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		ctx, span := telemetry.StartHTTPSpan(r.Context(), r.Method, route, telemetry.ClientIP(r.RemoteAddr))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetAttributes(telemetry.HTTPRoute(pattern))
			}
		}
		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))
	})
}
