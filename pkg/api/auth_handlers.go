package api

import (
	"encoding/json"
	"net/http"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/apperrors"
	"github.com/docassistant/docassistant/pkg/auth"
)

type authHandler struct {
	deps *Deps
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /login: verifies credentials, enforces exclusive
// login, and issues the signed session cookie.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.deps.Users.Verify(req.Username, req.Password); err != nil {
		fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sessionID := newSessionID()
	granted, err := h.deps.Sessions.AttemptLogin(req.Username, clientIP(r), sessionID)
	if err != nil {
		fail(w, apperrors.HTTPStatus(err), err.Error())
		return
	}
	if !granted {
		fail(w, http.StatusConflict, "another session is already active for this user")
		return
	}

	if err := h.deps.Auth.IssueCookie(w, req.Username, sessionID); err != nil {
		logger.ErrorCtx(r.Context(), "failed to issue session cookie", logger.Username(req.Username), logger.Err(err))
		fail(w, http.StatusInternalServerError, "failed to establish session")
		return
	}

	ok(w, map[string]string{"username": req.Username})
}

// Logout handles GET /logout: clears the session cookie and the
// server-side session state.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.UsernameFromContext(r.Context())
	h.deps.Auth.ClearCookie(w)
	if username != "" {
		_ = h.deps.Sessions.Logout(username)
	}
	ok(w, nil)
}

// UserStatus handles GET /api/user/status: reports the authenticated
// username for the currently active session.
func (h *authHandler) UserStatus(w http.ResponseWriter, r *http.Request) {
	username, ok2 := auth.UsernameFromContext(r.Context())
	if !ok2 {
		fail(w, http.StatusUnauthorized, "not logged in")
		return
	}
	ok(w, map[string]string{"username": username})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
