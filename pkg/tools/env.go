// Package tools implements the tool-calling surface the chat
// orchestrator exposes to the model: project/specification lookup,
// file reading and diffing, knowledge-base retrieval and review
// document generation.
package tools

import (
	"encoding/json"
	"net/http"

	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/embeddings"
	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

// Env is the shared environment handed to every tool invocation,
// rather than threading SessionManager, IndexService and friends
// through each tool's own argument list.
type Env struct {
	Sessions   *session.Manager
	Index      *index.Service
	Files      map[index.DocType]*fileservice.Service
	Embeddings *embeddings.Client
	Config     *config.Config

	// TemplateFiles and OutputFiles root writeReviewDoc's template
	// lookups and rendered-document writes, the same way Files roots
	// every other tool's document access.
	TemplateFiles *fileservice.Service
	OutputFiles   *fileservice.Service

	// EmbeddingsAvailable reflects AppKernel's startup health-check
	// feature flag; tools fall back to substring matching when false.
	EmbeddingsAvailable func() bool

	HTTPClient *http.Client
}

func (e *Env) embeddingsAvailable() bool {
	return e.EmbeddingsAvailable != nil && e.EmbeddingsAvailable()
}

// toolResponse is the shape every tool serializes itself into, mirrors
// ToolBaseResponse's optional token/hint envelope.
type toolResponse struct {
	Content any    `json:"content"`
	Token   string `json:"token,omitempty"`
	Hint    string `json:"hint"`
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"content":"","hint":"internal error serializing tool response"}`
	}
	return string(data)
}

func truncate(content string, limit int) (string, bool) {
	if limit <= 0 || len(content) <= limit {
		return content, false
	}
	return content[:limit], true
}

func downloadURL(token, filename string) string {
	return "/download/" + token + "/" + filename
}

// RegisterAll registers every tool in this package against host, bound
// to env.
func RegisterAll(host *toolhost.Host, env *Env) {
	registerQueryProjectFiles(host, env)
	registerOpenSpecificationFiles(host, env)
	registerReadProjectFile(host, env)
	registerDiffProjectFile(host, env)
	registerQueryKnowledgeBase(host, env)
	registerWriteReviewDoc(host, env)
}
