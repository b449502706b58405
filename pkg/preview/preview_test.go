package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/docassistant/docassistant/pkg/session"
)

func TestCacheBustAppendsTokenToFilename(t *testing.T) {
	rewritten, err := cacheBust("http://files.internal/docs/report.pdf")
	require.NoError(t, err)

	decoded, err := url.QueryUnescape(rewritten)
	require.NoError(t, err)
	rawBytes, err := base64.StdEncoding.DecodeString(decoded)
	require.NoError(t, err)
	raw := string(rawBytes)

	assert.True(t, strings.HasPrefix(raw, "http://files.internal/docs/report-"))
	assert.True(t, strings.HasSuffix(raw, ".pdf"))
	assert.NotEqual(t, "http://files.internal/docs/report.pdf", raw)
}

func TestDocumentFamilyMapsKnownExtensions(t *testing.T) {
	family, err := documentFamily(".docx")
	require.NoError(t, err)
	assert.Equal(t, "word", family)

	family, err = documentFamily(".xlsx")
	require.NoError(t, err)
	assert.Equal(t, "cell", family)

	_, err = documentFamily(".bin")
	assert.Error(t, err)
}

func TestPreviewProxyOnlinePreviewForwardsRequest(t *testing.T) {
	var gotURL string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		w.Header().Set("X-Upstream", "yes")
		fmt.Fprint(w, "preview body")
	}))
	defer upstream.Close()

	p := NewPreviewProxy(PreviewConfig{BaseURL: upstream.URL}, upstream.Client())

	req := httptest.NewRequest(http.MethodGet, "/kkfileview/onlinePreview?file_url=http://files.internal/a.pdf", nil)
	w := httptest.NewRecorder()
	p.OnlinePreview(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "preview body", string(body))
	assert.NotEmpty(t, gotURL)
}

func TestEditorBridgeCallbackPersistsSavedDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.docx"), []byte("original"), 0644))

	svc, err := fileservice.New(fileservice.Config{RootDir: dir, MaxConcurrentIO: 2})
	require.NoError(t, err)

	docServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("revised content"))
	}))
	defer docServer.Close()

	sessions := session.New(session.Config{
		OverallInactivityTimeout: time.Minute,
		DownloadLinkValidity:     time.Minute,
	})
	_, err = sessions.AttemptLogin("dana", "10.0.0.1", "sess-1")
	require.NoError(t, err)

	_, fileKey, err := sessions.RegisterEditingFile("dana", "report.docx", session.DocTypeProject)
	require.NoError(t, err)

	bridge := NewEditorBridge(
		EditorConfig{},
		sessions,
		func(docType session.DocType) (*fileservice.Service, bool) {
			if docType == session.DocTypeProject {
				return svc, true
			}
			return nil, false
		},
		docServer.Client(),
		"/download",
		"/onlyoffice/callback",
	)

	body := fmt.Sprintf(`{"status":2,"url":%q,"key":%q}`, docServer.URL, fileKey)
	req := httptest.NewRequest(http.MethodPost, "/onlyoffice/callback", bytes.NewBufferString(body)).WithContext(context.Background())
	w := httptest.NewRecorder()
	bridge.Callback(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.JSONEq(t, `{"error":0}`, w.Body.String())

	saved, err := os.ReadFile(filepath.Join(dir, "report.docx"))
	require.NoError(t, err)
	assert.Equal(t, "revised content", string(saved))

	_, _, err = sessions.EditingFilePath(fileKey)
	assert.Error(t, err)
}
