// Package session tracks per-user login state, WebSocket attachment,
// working-file/working-directory token registries, and the
// collaborative-editing key used by the preview/editor bridge.
package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/apperrors"
)

// DocType identifies which rooted tree a FileEntry's path resolves
// against.
type DocType string

const (
	DocTypeProject    DocType = "project"
	DocTypeSpec       DocType = "spec"
	DocTypeManagement DocType = "management"
)

// FileEntry is a single token-addressable file a tool or the user has
// opened during a session.
type FileEntry struct {
	Token        string
	RelativePath string
	DocType      DocType
	OpenedByLLM  bool
	OpenedByUser bool
	ExpiresAt    time.Time
}

// DirEntry is a named working directory the user is scoped to, with
// its own set of file tokens.
type DirEntry struct {
	DirectoryPath string
	DirectoryToken string
	ExpiresAt     time.Time
	Files         []FileEntry
}

// EditingFile is the collaborative-editing registration for a single
// user within a session.
type EditingFile struct {
	FileKey  string
	UserID   string
	FilePath string
	DocType  DocType
}

// UserSession is the full state tracked for one logged-in user.
type UserSession struct {
	Username         string
	SessionID        string
	IPAddress        string
	LoginTime        time.Time
	LastHTTPActivity time.Time

	WebSocket     *websocket.Conn
	IsWSConnected bool

	WorkingFiles     []FileEntry
	WorkingDirectory *DirEntry
	EditingFile      EditingFile
}

// DownloadableFile is what the resolver returns for a valid token.
type DownloadableFile struct {
	Token        string
	RelativePath string
	Filename     string
	DocType      DocType
	ExpiresAt    time.Time
}

// Config configures SessionManager timeouts.
type Config struct {
	OverallInactivityTimeout time.Duration
	DownloadLinkValidity     time.Duration
}

// Metrics is the optional instrumentation hook for login activity. A
// nil Metrics disables instrumentation at zero cost.
type Metrics interface {
	RecordLogin(outcome string)
	SetActiveSessions(n int)
}

// Manager is the single-mutex session state table described by the
// UserSession invariants: at most one session per username, exclusive
// login while the prior session is still active, token expiry tied to
// DownloadLinkValidity.
type Manager struct {
	cfg     Config
	metrics Metrics

	mu    sync.Mutex
	users map[string]*UserSession
}

// New constructs an empty Manager.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, users: make(map[string]*UserSession)}
}

// SetMetrics attaches an instrumentation sink. Passing nil disables
// instrumentation.
func (m *Manager) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// AttemptLogin enforces exclusive login: if an existing session for
// username had HTTP activity within OverallInactivityTimeout, the
// attempt is rejected. Otherwise the (possibly stale) session is
// replaced.
func (m *Manager) AttemptLogin(username, ip, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.users[username]; ok {
		if now.Sub(existing.LastHTTPActivity) < m.cfg.OverallInactivityTimeout {
			if m.metrics != nil {
				m.metrics.RecordLogin("denied")
			}
			return false, apperrors.ErrExclusiveLoginDenied
		}
	}

	m.users[username] = &UserSession{
		Username:         username,
		SessionID:        sessionID,
		IPAddress:        ip,
		LoginTime:        now,
		LastHTTPActivity: now,
		EditingFile:      EditingFile{UserID: uuid.NewString()[:8]},
	}
	if m.metrics != nil {
		m.metrics.RecordLogin("ok")
		m.metrics.SetActiveSessions(len(m.users))
	}
	return true, nil
}

// Logout removes the session and closes any attached WebSocket.
func (m *Manager) Logout(username string) error {
	m.mu.Lock()
	sess, ok := m.users[username]
	if ok {
		delete(m.users, username)
	}
	remaining := len(m.users)
	m.mu.Unlock()

	if !ok {
		return apperrors.NotFoundf("session for user %q", username)
	}
	if m.metrics != nil {
		m.metrics.SetActiveSessions(remaining)
	}
	if sess.WebSocket != nil {
		_ = sess.WebSocket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logged out"),
			time.Now().Add(time.Second))
		_ = sess.WebSocket.Close()
	}
	return nil
}

// AttachWebSocket binds conn to username's session if sessionID
// matches, rejecting (and leaving it to the caller to close conn)
// otherwise. This, together with the Manager mutex, prevents a
// concurrent logout/re-login from attaching a stale connection.
func (m *Manager) AttachWebSocket(username, sessionID string, conn *websocket.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.users[username]
	if !ok || sess.SessionID != sessionID {
		return apperrors.Unauthorizedf("session %s does not match an active login for %s", sessionID, username)
	}

	sess.WebSocket = conn
	sess.IsWSConnected = true
	return nil
}

// DetachWebSocket clears the WebSocket handle without logging the
// user out, used when a connection drops but the HTTP session is
// still within its inactivity window.
func (m *Manager) DetachWebSocket(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.users[username]; ok {
		sess.WebSocket = nil
		sess.IsWSConnected = false
	}
}

// Get returns a copy of username's session state, or ErrNotFound.
func (m *Manager) Get(username string) (*UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.users[username]
	if !ok {
		return nil, apperrors.NotFoundf("session for user %q", username)
	}
	copySess := *sess
	return &copySess, nil
}

// UsernameBySessionID resolves a session id back to its username.
func (m *Manager) UsernameBySessionID(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for username, sess := range m.users {
		if sess.SessionID == sessionID {
			return username, nil
		}
	}
	return "", apperrors.NotFoundf("session id %q", sessionID)
}

// RecordHTTPActivity updates the idle clock used by exclusive login
// and the inactivity sweeper.
func (m *Manager) RecordHTTPActivity(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.users[username]; ok {
		sess.LastHTTPActivity = time.Now()
	}
}

// ClearWorkingDirectory discards the user's current DirEntry and its
// tokens.
func (m *Manager) ClearWorkingDirectory(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.users[username]
	if !ok {
		return apperrors.NotFoundf("session for user %q", username)
	}
	sess.WorkingDirectory = nil
	return nil
}

// OpenFile registers a newly opened file under the user's
// WorkingFiles, minting a fresh token, and notifies the attached
// WebSocket (if any) with a file_open_request envelope.
func (m *Manager) OpenFile(ctx context.Context, username, relPath string, docType DocType, openedByLLM bool) (*FileEntry, error) {
	m.mu.Lock()
	sess, ok := m.users[username]
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.NotFoundf("session for user %q", username)
	}

	entry := FileEntry{
		Token:        uuid.NewString(),
		RelativePath: relPath,
		DocType:      docType,
		OpenedByLLM:  openedByLLM,
		OpenedByUser: true,
		ExpiresAt:    time.Now().Add(m.cfg.DownloadLinkValidity),
	}
	sess.WorkingFiles = append(sess.WorkingFiles, entry)

	conn := sess.WebSocket
	connected := sess.IsWSConnected
	m.mu.Unlock()

	if connected && conn != nil {
		payload := map[string]any{
			"type": "file_open_request",
			"payload": map[string]any{
				"filename":       filepath.Base(relPath),
				"download_token": entry.Token,
				"format":         extOf(relPath),
			},
		}
		if err := conn.WriteJSON(payload); err != nil {
			logger.WarnCtx(ctx, "failed to send file_open_request", logger.Username(username), logger.Err(err))
		}
	}

	return &entry, nil
}

// OpenDirectory replaces the user's working directory view wholesale,
// minting a directory token plus a token per file, and notifies the
// attached WebSocket with a directory_update envelope.
func (m *Manager) OpenDirectory(ctx context.Context, username, dirPath string, files []string) (*DirEntry, error) {
	m.mu.Lock()
	sess, ok := m.users[username]
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.NotFoundf("session for user %q", username)
	}

	expiresAt := time.Now().Add(m.cfg.DownloadLinkValidity)
	entries := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, FileEntry{
			Token:        uuid.NewString(),
			RelativePath: f,
			DocType:      DocTypeProject,
			ExpiresAt:    expiresAt,
		})
	}

	dir := &DirEntry{
		DirectoryPath:  dirPath,
		DirectoryToken: uuid.NewString(),
		ExpiresAt:      expiresAt,
		Files:          entries,
	}
	sess.WorkingDirectory = dir

	conn := sess.WebSocket
	connected := sess.IsWSConnected
	m.mu.Unlock()

	if connected && conn != nil {
		filesPayload := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			filesPayload = append(filesPayload, map[string]any{
				"filename":       filepath.Base(e.RelativePath),
				"file_path":      e.RelativePath,
				"download_token": e.Token,
				"format":         extOf(e.RelativePath),
			})
		}
		payload := map[string]any{
			"type": "directory_update",
			"payload": map[string]any{
				"directory":       dirPath,
				"directory_token": dir.DirectoryToken,
				"files":           filesPayload,
			},
		}
		if err := conn.WriteJSON(payload); err != nil {
			logger.WarnCtx(ctx, "failed to send directory_update", logger.Username(username), logger.Err(err))
		}
	}

	return dir, nil
}

// ResolveDownloadToken looks up a token across every session's
// WorkingFiles and WorkingDirectory, returning ErrNotFound once it is
// missing or expired.
func (m *Manager) ResolveDownloadToken(token string) (*DownloadableFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, sess := range m.users {
		for _, entry := range sess.WorkingFiles {
			if entry.Token == token {
				if now.After(entry.ExpiresAt) {
					return nil, apperrors.NotFoundf("download token %q expired", token)
				}
				return &DownloadableFile{
					Token:        entry.Token,
					RelativePath: entry.RelativePath,
					Filename:     filepath.Base(entry.RelativePath),
					DocType:      entry.DocType,
					ExpiresAt:    entry.ExpiresAt,
				}, nil
			}
		}
		if sess.WorkingDirectory != nil {
			for _, entry := range sess.WorkingDirectory.Files {
				if entry.Token == token {
					if now.After(entry.ExpiresAt) {
						return nil, apperrors.NotFoundf("download token %q expired", token)
					}
					return &DownloadableFile{
						Token:        entry.Token,
						RelativePath: entry.RelativePath,
						Filename:     filepath.Base(entry.RelativePath),
						DocType:      DocTypeProject,
						ExpiresAt:    entry.ExpiresAt,
					}, nil
				}
			}
		}
	}
	return nil, apperrors.NotFoundf("download token %q", token)
}

// RegisterEditingFile joins a collaborative editing session for
// filePath: if another user is already editing it, its file key is
// reused, otherwise a fresh key is minted. Returns (userID, fileKey).
func (m *Manager) RegisterEditingFile(username, filePath string, docType DocType) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.users[username]
	if !ok {
		return "", "", apperrors.NotFoundf("session for user %q", username)
	}

	var fileKey string
	for _, other := range m.users {
		if other.EditingFile.FilePath == filePath && other.EditingFile.FileKey != "" {
			fileKey = other.EditingFile.FileKey
			break
		}
	}

	userID := uuid.NewString()[:8]
	if fileKey == "" {
		fileKey = uuid.NewString()[:12]
	}

	sess.EditingFile = EditingFile{FileKey: fileKey, UserID: userID, FilePath: filePath, DocType: docType}
	return userID, fileKey, nil
}

// EditingFilePath resolves a file key back to the path and doc type
// being edited.
func (m *Manager) EditingFilePath(fileKey string) (string, DocType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.users {
		if sess.EditingFile.FileKey == fileKey {
			return sess.EditingFile.FilePath, sess.EditingFile.DocType, nil
		}
	}
	return "", "", apperrors.NotFoundf("editing file key %q", fileKey)
}

// UnregisterEditingFile clears the editing registration matching
// fileKey for whichever user holds it. A save callback firing after
// every collaborator has already left is not an error.
func (m *Manager) UnregisterEditingFile(fileKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.users {
		if sess.EditingFile.FileKey == fileKey {
			sess.EditingFile = EditingFile{}
		}
	}
}

// SweepExpiredTokens prunes expired WorkingFiles entries and, when
// its expiry has passed, the WorkingDirectory as a whole.
func (m *Manager) SweepExpiredTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, sess := range m.users {
		kept := sess.WorkingFiles[:0]
		for _, entry := range sess.WorkingFiles {
			if now.Before(entry.ExpiresAt) {
				kept = append(kept, entry)
			}
		}
		sess.WorkingFiles = kept

		if sess.WorkingDirectory != nil && !now.Before(sess.WorkingDirectory.ExpiresAt) {
			sess.WorkingDirectory = nil
		}
	}
}

// SweepInactiveSessions logs out every session whose
// LastHTTPActivity exceeds OverallInactivityTimeout, closing any
// attached WebSocket.
func (m *Manager) SweepInactiveSessions(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var evicted []*UserSession
	for username, sess := range m.users {
		if now.Sub(sess.LastHTTPActivity) >= m.cfg.OverallInactivityTimeout {
			evicted = append(evicted, sess)
			delete(m.users, username)
		}
	}
	remaining := len(m.users)
	m.mu.Unlock()

	if len(evicted) > 0 && m.metrics != nil {
		m.metrics.SetActiveSessions(remaining)
	}

	for _, sess := range evicted {
		logger.InfoCtx(ctx, "evicting inactive session", logger.Username(sess.Username), logger.SessionID(sess.SessionID))
		if sess.WebSocket != nil {
			_ = sess.WebSocket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session timed out"),
				time.Now().Add(time.Second))
			_ = sess.WebSocket.Close()
		}
	}
}

// DebugSnapshot is the wire shape of the /debug/session-states
// endpoint.
type DebugSnapshot struct {
	Username         string `json:"username"`
	SessionID        string `json:"session_id"`
	IPAddress        string `json:"ip_address"`
	LoginTime        string `json:"login_time"`
	LastHTTPActivity string `json:"last_http_activity"`
	IsWSConnected    bool   `json:"is_websocket_connected"`
	WorkingFileCount int    `json:"working_files_count"`
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// AllSessionsDebug returns a point-in-time snapshot of every active
// session, for the gated /debug/session-states endpoint.
func (m *Manager) AllSessionsDebug() []DebugSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DebugSnapshot, 0, len(m.users))
	for _, sess := range m.users {
		snap := DebugSnapshot{
			Username:         sess.Username,
			SessionID:        sess.SessionID,
			IPAddress:        sess.IPAddress,
			LoginTime:        sess.LoginTime.Format(time.RFC3339),
			LastHTTPActivity: sess.LastHTTPActivity.Format(time.RFC3339),
			IsWSConnected:    sess.IsWSConnected,
			WorkingFileCount: len(sess.WorkingFiles),
		}
		if sess.WorkingDirectory != nil {
			snap.WorkingDirectory = sess.WorkingDirectory.DirectoryPath
		}
		out = append(out, snap)
	}
	return out
}

func extOf(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "txt"
	}
	return strings.ToLower(ext)
}
