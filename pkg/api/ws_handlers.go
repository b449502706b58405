package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/auth"
	"github.com/docassistant/docassistant/pkg/chat"
	"github.com/docassistant/docassistant/pkg/streamproxy"
)

// closeInvalidSession sends a close-control frame with code 1008 before
// tearing down conn, so the client can distinguish a rejected session
// attach from an ordinary network drop.
func closeInvalidSession(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Invalid session")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	conn.Close()
}

type wsHandler struct {
	deps     *Deps
	upgrader websocket.Upgrader
}

func newWSHandler(deps *Deps) *wsHandler {
	return &wsHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Chat handles WS /ws/v2/chat: upgrades the connection and runs a
// tool-calling Orchestrator for the lifetime of the socket.
func (h *wsHandler) Chat(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		fail(w, http.StatusUnauthorized, "not logged in")
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCtx(r.Context(), "websocket upgrade failed", logger.Username(username), logger.Err(err))
		return
	}

	if err := h.deps.Sessions.AttachWebSocket(username, sessionID, conn); err != nil {
		logger.WarnCtx(r.Context(), "rejecting websocket attach", logger.Username(username), logger.Err(err))
		closeInvalidSession(conn)
		return
	}
	defer h.deps.Sessions.DetachWebSocket(username)

	orch := chat.New(conn, h.deps.Tools, h.deps.HTTPClient, h.deps.ChatConfig, h.deps.ChatMetrics, username, sessionID)
	if err := orch.Run(r.Context()); err != nil {
		logger.WarnCtx(r.Context(), "chat orchestrator exited", logger.Username(username), logger.Err(err))
	}
}

// LegacyChatStream handles WS /ws_chat_stream: upgrades the connection
// and bridges it to the legacy upstream SSE chat API.
func (h *wsHandler) LegacyChatStream(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		fail(w, http.StatusUnauthorized, "not logged in")
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCtx(r.Context(), "websocket upgrade failed", logger.Username(username), logger.Err(err))
		return
	}

	if err := h.deps.Sessions.AttachWebSocket(username, sessionID, conn); err != nil {
		logger.WarnCtx(r.Context(), "rejecting websocket attach", logger.Username(username), logger.Err(err))
		closeInvalidSession(conn)
		return
	}
	defer h.deps.Sessions.DetachWebSocket(username)

	bridge := streamproxy.New(conn, h.deps.HTTPClient, h.deps.StreamProxyConfig, username)
	if err := bridge.Run(r.Context()); err != nil {
		logger.WarnCtx(r.Context(), "stream proxy bridge exited", logger.Username(username), logger.Err(err))
	}
}
