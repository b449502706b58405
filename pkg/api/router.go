package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/metrics"
)

// NewRouter assembles the full HTTP surface: unauthenticated health
// and metrics endpoints, the login/logout pair, and every
// session-gated API, WebSocket, preview and download route.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(permissiveCORS)
	r.Use(rewriteStaticImages)
	r.Use(trace)
	r.Use(instrument(deps.Metrics))

	health := &healthHandler{deps: deps}
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	auth := &authHandler{deps: deps}
	r.Post("/login", auth.Login)

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireActiveSession)

		r.Get("/logout", auth.Logout)
		r.Get("/api/user/status", auth.UserStatus)

		projects := &projectsHandler{deps: deps}
		r.Get("/api/projects/search", projects.Search)
		r.Post("/api/projects/search", projects.Search)

		uploads := &uploadHandler{deps: deps}
		r.Get("/api/upload-project", uploads.UploadProject)
		r.Post("/api/upload-project", uploads.UploadProject)
		r.Get("/api/upload-standards", uploads.UploadStandards)
		r.Post("/api/upload-standards", uploads.UploadStandards)
		r.Get("/api/upload-files", uploads.UploadFiles)
		r.Post("/api/upload-files", uploads.UploadFiles)

		downloads := &downloadHandler{deps: deps}
		r.Get("/download/{token}/*", downloads.Download)
		r.Get("/spec_images/{name}", downloads.SpecImage)

		preview := &previewHandler{deps: deps}
		r.Get("/kkfileview/onlinePreview", preview.OnlinePreview)
		r.HandleFunc("/kkfileview/*", preview.Proxy)
		r.Get("/onlyoffice/editor", preview.Editor)

		ws := newWSHandler(deps)
		r.Get("/ws/v2/chat", ws.Chat)
		r.Get("/ws_chat_stream", ws.LegacyChatStream)

		if deps.DebugEndpointsEnabled {
			debug := &debugHandler{deps: deps}
			r.Get("/debug/session-states", debug.SessionStates)
		}
	})

	// The editor callback is called server-to-server by the OnlyOffice
	// document server, which never carries our session cookie.
	preview := &previewHandler{deps: deps}
	r.Post("/onlyoffice/callback", preview.Callback)

	return r
}

// permissiveCORS allows the browser-based chat UI to be served from a
// different origin than the API during development. Production
// deployments sit behind a reverse proxy that pins the origin.
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rewriteStaticImages maps the legacy /static/images/<name> path used
// by older rendered documents onto the current /spec_images/<name>
// route, so stale links embedded in already-published documents keep
// resolving.
func rewriteStaticImages(next http.Handler) http.Handler {
	const prefix = "/static/images/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, prefix) {
			r.URL.Path = "/spec_images/" + strings.TrimPrefix(r.URL.Path, prefix)
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.InfoCtx(r.Context(), "http request completed",
			logger.RequestID(requestID),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.DurationMs(float64(time.Since(start).Microseconds())/1000),
		)
	})
}
