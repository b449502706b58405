package api

import (
	"net/http"

	"github.com/docassistant/docassistant/pkg/auth"
	"github.com/docassistant/docassistant/pkg/chat"
	"github.com/docassistant/docassistant/pkg/embeddings"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/preview"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/streamproxy"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

// Deps is every collaborator the router needs to wire its handlers.
// AppKernel constructs one of these after bringing up every domain
// service and passes it to NewRouter.
type Deps struct {
	Auth     *auth.TokenAuth
	Users    *auth.UsersDB
	Sessions *session.Manager
	Index    *index.Service
	Tools    *toolhost.Host

	Embeddings *embeddings.Client

	FileRoots preview.FileRootResolver

	ChatConfig        chat.Config
	StreamProxyConfig streamproxy.Config
	HTTPClient        *http.Client

	PreviewProxy *preview.PreviewProxy
	Editor       *preview.EditorBridge

	SpecImagesDir string

	DebugEndpointsEnabled bool

	Metrics     Metrics
	ChatMetrics chat.Metrics
}
