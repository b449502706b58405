package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docassistant/docassistant/pkg/auth"
)

type previewHandler struct {
	deps *Deps
}

// OnlinePreview handles GET /kkfileview/onlinePreview.
func (h *previewHandler) OnlinePreview(w http.ResponseWriter, r *http.Request) {
	h.deps.PreviewProxy.OnlinePreview(w, r)
}

// Proxy handles ANY /kkfileview/{path}, forwarding everything else the
// viewer needs (assets, the rendered document itself) to the upstream.
func (h *previewHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	h.deps.PreviewProxy.ReverseProxy(w, r, chi.URLParam(r, "*"))
}

// Editor handles GET /onlyoffice/editor.
func (h *previewHandler) Editor(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		fail(w, http.StatusUnauthorized, "not logged in")
		return
	}
	h.deps.Editor.Editor(w, r, username)
}

// Callback handles POST /onlyoffice/callback.
func (h *previewHandler) Callback(w http.ResponseWriter, r *http.Request) {
	h.deps.Editor.Callback(w, r)
}
