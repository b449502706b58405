// Package preview hosts the two external-viewer bridges: a reverse
// proxy to a kkFileView-style document viewer, and an OnlyOffice
// collaborative-editing bridge that signs editor configs and applies
// save callbacks back onto the managed file trees.
package preview

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/apperrors"
	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/docassistant/docassistant/pkg/session"
)

// PreviewConfig configures the kkFileView-style viewer upstream.
type PreviewConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

// PreviewProxy reverse-proxies document preview requests to an
// external viewer, defeating its content cache with a per-request
// token appended to the requested filename.
type PreviewProxy struct {
	cfg        PreviewConfig
	httpClient *http.Client
}

// NewPreviewProxy constructs a PreviewProxy against a shared HTTP
// client.
func NewPreviewProxy(cfg PreviewConfig, httpClient *http.Client) *PreviewProxy {
	return &PreviewProxy{cfg: cfg, httpClient: httpClient}
}

// OnlinePreview handles GET /kkfileview/onlinePreview?file_url=...: it
// rewrites the target filename with a fresh cache-busting token,
// base64+URL-encodes it per the upstream's expected convention, and
// streams the proxied response back verbatim.
func (p *PreviewProxy) OnlinePreview(w http.ResponseWriter, r *http.Request) {
	fileURL := r.URL.Query().Get("file_url")
	if fileURL == "" {
		http.Error(w, "missing file_url", http.StatusBadRequest)
		return
	}

	rewritten, err := cacheBust(fileURL)
	if err != nil {
		http.Error(w, "invalid file_url", http.StatusBadRequest)
		return
	}

	target := strings.TrimRight(p.cfg.BaseURL, "/") + "/onlinePreview?url=" + url.QueryEscape(rewritten)
	p.proxy(w, r, target)
}

// cacheBust appends an 8-hex token to the URL's filename component,
// then base64-encodes the whole URL and URL-encodes that, matching
// the upstream viewer's expected query shape.
func cacheBust(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", err
	}

	dir, name := filepath.Split(parsed.Path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	var tokenBytes [4]byte
	if _, err := rand.Read(tokenBytes[:]); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes[:])
	parsed.Path = dir + base + "-" + token + ext

	encoded := base64.StdEncoding.EncodeToString([]byte(parsed.String()))
	return url.QueryEscape(encoded), nil
}

// ReverseProxy handles ANY /kkfileview/{path} for the viewer's own
// static assets and API calls, streamed through unmodified.
func (p *PreviewProxy) ReverseProxy(w http.ResponseWriter, r *http.Request, path string) {
	target := strings.TrimRight(p.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	p.proxy(w, r, target)
}

func (p *PreviewProxy) proxy(w http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusBadGateway)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.WarnCtx(r.Context(), "preview proxy upstream call failed", logger.Err(err))
		http.Error(w, "upstream viewer unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// EditorConfig configures OnlyOffice JWT signing.
type EditorConfig struct {
	JWTSecret string
	JWTEnable bool
}

// FileRootResolver returns the fileservice.Service managing the
// rooted tree for a given document type.
type FileRootResolver func(docType session.DocType) (*fileservice.Service, bool)

// EditorBridge hands out signed OnlyOffice editor configs and applies
// save callbacks back onto the underlying managed file.
type EditorBridge struct {
	cfg        EditorConfig
	sessions   *session.Manager
	roots      FileRootResolver
	httpClient *http.Client
	callbackURL string
	downloadURLPrefix string
}

// NewEditorBridge constructs an EditorBridge. downloadURLPrefix and
// callbackURL are this application's own externally reachable
// /download/{token}/{filename} and /onlyoffice/callback URLs.
func NewEditorBridge(cfg EditorConfig, sessions *session.Manager, roots FileRootResolver, httpClient *http.Client, downloadURLPrefix, callbackURL string) *EditorBridge {
	return &EditorBridge{
		cfg:               cfg,
		sessions:          sessions,
		roots:             roots,
		httpClient:        httpClient,
		downloadURLPrefix: downloadURLPrefix,
		callbackURL:       callbackURL,
	}
}

var documentFamilyByExt = map[string]string{
	".doc": "word", ".docx": "word", ".odt": "word", ".rtf": "word", ".txt": "word",
	".xls": "cell", ".xlsx": "cell", ".ods": "cell", ".csv": "cell",
	".ppt": "slide", ".pptx": "slide", ".odp": "slide",
	".pdf": "pdf",
}

func documentFamily(ext string) (string, error) {
	family, ok := documentFamilyByExt[strings.ToLower(ext)]
	if !ok {
		return "", apperrors.ToolArgInvalidf("unsupported editor file extension %q", ext)
	}
	return family, nil
}

var editorPageTemplate = template.Must(template.New("editor").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Filename}}</title></head>
<body>
<div id="onlyoffice-editor"></div>
<script type="text/javascript" src="{{.APIJSURL}}"></script>
<script type="text/javascript">
  new DocsAPI.DocEditor("onlyoffice-editor", {{.ConfigJSON}});
</script>
</body>
</html>`))

// Editor handles GET /onlyoffice/editor?filepath=&token=: it resolves
// the download token back to a managed file, joins (or starts) a
// collaborative edit, and renders a page that boots the OnlyOffice
// editor against a signed config.
func (b *EditorBridge) Editor(w http.ResponseWriter, r *http.Request, username string) {
	filePath := r.URL.Query().Get("filepath")
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	downloadable, err := b.sessions.ResolveDownloadToken(token)
	if err != nil {
		http.Error(w, "unknown or expired token", apperrors.HTTPStatus(err))
		return
	}
	if filePath == "" {
		filePath = downloadable.RelativePath
	}

	ext := filepath.Ext(downloadable.Filename)
	family, err := documentFamily(ext)
	if err != nil {
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	userID, fileKey, err := b.sessions.RegisterEditingFile(username, filePath, downloadable.DocType)
	if err != nil {
		http.Error(w, err.Error(), apperrors.HTTPStatus(err))
		return
	}

	documentURL := strings.TrimRight(b.downloadURLPrefix, "/") + "/" + token + "/" + url.PathEscape(downloadable.Filename)

	config := map[string]any{
		"documentType": family,
		"document": map[string]any{
			"fileType": strings.TrimPrefix(ext, "."),
			"key":      fileKey,
			"title":    downloadable.Filename,
			"url":      documentURL,
		},
		"editorConfig": map[string]any{
			"callbackUrl": b.callbackURL,
			"user": map[string]any{
				"id":   userID,
				"name": username,
			},
		},
	}

	if b.cfg.JWTEnable {
		token, err := b.signConfig(config)
		if err != nil {
			logger.WarnCtx(r.Context(), "failed to sign editor config", logger.Username(username), logger.Err(err))
			http.Error(w, "failed to sign editor config", http.StatusInternalServerError)
			return
		}
		config["token"] = token
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		http.Error(w, "failed to encode editor config", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = editorPageTemplate.Execute(w, struct {
		Filename    string
		APIJSURL    string
		ConfigJSON  template.JS
	}{
		Filename:   downloadable.Filename,
		APIJSURL:   "/web-apps/apps/api/documents/api.js",
		ConfigJSON: template.JS(configJSON),
	})
}

// signConfig computes the OnlyOffice HMAC-SHA-256 JWT over config.
func (b *EditorBridge) signConfig(config map[string]any) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(config)
	if err != nil {
		return "", err
	}

	segment := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	mac := hmac.New(sha256.New, []byte(b.cfg.JWTSecret))
	mac.Write([]byte(segment))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return segment + "." + sig, nil
}

type callbackBody struct {
	Status int    `json:"status"`
	URL    string `json:"url"`
	Key    string `json:"key"`
}

type callbackResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message,omitempty"`
}

// Callback handles POST /onlyoffice/callback: on a save status (2 or
// 6) it downloads the edited document and atomically overwrites the
// managed file, then clears the editing registration.
func (b *EditorBridge) Callback(w http.ResponseWriter, r *http.Request) {
	var body callbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCallbackResponse(w, 1, "invalid callback body")
		return
	}

	if body.Status != 2 && body.Status != 6 {
		writeCallbackResponse(w, 0, "")
		return
	}

	filePath, docType, err := b.sessions.EditingFilePath(body.Key)
	if err != nil {
		writeCallbackResponse(w, 1, "unknown editing session")
		return
	}

	svc, ok := b.roots(docType)
	if !ok {
		writeCallbackResponse(w, 1, "no managed root for edited file")
		return
	}

	docResp, err := b.httpClient.Get(body.URL)
	if err != nil {
		writeCallbackResponse(w, 1, fmt.Sprintf("failed to fetch saved document: %v", err))
		return
	}
	defer docResp.Body.Close()

	if _, err := svc.SaveUpload(r.Context(), docResp.Body, filePath); err != nil {
		logger.WarnCtx(r.Context(), "failed to persist onlyoffice callback save", logger.Err(err))
		writeCallbackResponse(w, 1, fmt.Sprintf("failed to save document: %v", err))
		return
	}

	b.sessions.UnregisterEditingFile(body.Key)
	writeCallbackResponse(w, 0, "")
}

func writeCallbackResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(callbackResponse{Error: code, Message: message})
}
