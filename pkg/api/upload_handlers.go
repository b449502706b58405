package api

import (
	"net/http"
	"strconv"

	"github.com/docassistant/docassistant/pkg/apperrors"
	"github.com/docassistant/docassistant/pkg/session"
)

type uploadHandler struct {
	deps *Deps
}

// UploadProject handles GET|POST /api/upload-project, writing into the
// project document root.
func (h *uploadHandler) UploadProject(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, session.DocTypeProject)
}

// UploadStandards handles GET|POST /api/upload-standards, writing into
// the specification document root.
func (h *uploadHandler) UploadStandards(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, session.DocTypeSpec)
}

// UploadFiles handles GET|POST /api/upload-files, writing into the
// management document root.
func (h *uploadHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, session.DocTypeManagement)
}

func (h *uploadHandler) upload(w http.ResponseWriter, r *http.Request, docType session.DocType) {
	if r.Method == http.MethodGet {
		ok(w, map[string]string{"docType": string(docType)})
		return
	}

	root, found := h.deps.FileRoots(docType)
	if !found {
		fail(w, http.StatusInternalServerError, "no file root for requested document type")
		return
	}

	overwrite, _ := strconv.ParseBool(r.FormValue("overwrite"))

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	destDir := r.FormValue("dest_dir")
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		fail(w, http.StatusBadRequest, "no file provided")
		return
	}

	saved := make([]string, 0, len(files))
	for _, fh := range files {
		relPath := fh.Filename
		if destDir != "" {
			relPath = destDir + "/" + fh.Filename
		}
		if !overwrite && root.FileExists(relPath) {
			fail(w, http.StatusConflict, "file already exists: "+relPath)
			return
		}

		src, err := fh.Open()
		if err != nil {
			fail(w, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
			return
		}
		storedPath, err := root.SaveUpload(r.Context(), src, relPath)
		src.Close()
		if err != nil {
			fail(w, apperrors.HTTPStatus(err), err.Error())
			return
		}
		saved = append(saved, storedPath)
	}

	ok(w, map[string]any{"saved": saved})
}
