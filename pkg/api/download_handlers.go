package api

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/apperrors"
)

type downloadHandler struct {
	deps *Deps
}

// Download handles GET /download/{token}/{filename...}: resolves a
// single-use download token minted by OpenFile/OpenDirectory and
// streams the underlying file from its rooted store.
func (h *downloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	entry, err := h.deps.Sessions.ResolveDownloadToken(token)
	if err != nil {
		fail(w, apperrors.HTTPStatus(err), err.Error())
		return
	}

	root, ok := h.deps.FileRoots(entry.DocType)
	if !ok {
		fail(w, http.StatusInternalServerError, "no file root for requested document type")
		return
	}

	stream, err := root.ReadStream(r.Context(), entry.RelativePath)
	if err != nil {
		fail(w, apperrors.HTTPStatus(err), err.Error())
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", contentTypeFor(entry.Filename))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+entry.Filename+"\"")
	if _, err := io.Copy(w, stream); err != nil {
		logger.WarnCtx(r.Context(), "download stream interrupted", logger.Err(err))
	}
}

// SpecImage handles GET /spec_images/{name}: serves a static image
// referenced from rendered specification documents.
func (h *downloadHandler) SpecImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || filepath.Base(name) != name {
		fail(w, http.StatusBadRequest, "invalid image name")
		return
	}
	http.ServeFile(w, r, filepath.Join(h.deps.SpecImagesDir, name))
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
