package api

import (
	"net/http"

	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/indexstore"
)

type projectsHandler struct {
	deps *Deps
}

// Search handles GET|POST /api/projects/search: a thin filter over
// the project document index by year, project name, status or
// filename substring.
func (h *projectsHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			for k, v := range r.PostForm {
				if len(v) > 0 && q.Get(k) == "" {
					q.Set(k, v[0])
				}
			}
		}
	}

	query := indexstore.Query{}
	docType := string(index.DocTypeProject)
	query.DocType = &docType
	setExactFilter(&query.Year, q.Get("year"))
	setExactFilter(&query.ProjectName, q.Get("project_name"))
	setExactFilter(&query.Status, q.Get("status"))
	setSubstringFilter(&query.FileName, q.Get("filename"))

	rows, err := h.deps.Index.Find(r.Context(), query)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, rows)
}

func setExactFilter(dst **string, value string) {
	if value == "" {
		return
	}
	v := value
	*dst = &v
}

func setSubstringFilter(dst **string, value string) {
	if value == "" {
		return
	}
	v := "%" + value + "%"
	*dst = &v
}
