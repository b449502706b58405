// Package auth implements the cookie-session authentication layer:
// a signed, stateless session cookie plus local bcrypt-hashed user
// credentials, cross-checked against the live session state held by
// pkg/session.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/apperrors"
	"github.com/docassistant/docassistant/pkg/session"
)

// CookieName is the name of the signed session cookie.
const CookieName = "docassistant_session"

type ctxKey int

const usernameCtxKey ctxKey = iota

// Claims is the payload of the signed session cookie: {username,
// sessionId, issuedAt}, matching the original's signed-cookie session
// shape without a server-side cookie store.
type Claims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}

// TokenAuth mints and verifies the session cookie and enforces the
// verifyActiveSession checks against the live SessionManager.
type TokenAuth struct {
	secret   []byte
	sessions *session.Manager
}

// New constructs a TokenAuth bound to a SessionManager.
func New(secret string, sessions *session.Manager) *TokenAuth {
	return &TokenAuth{secret: []byte(secret), sessions: sessions}
}

// IssueCookie mints a signed session cookie for username/sessionID and
// attaches it to the response.
func (a *TokenAuth) IssueCookie(w http.ResponseWriter, username, sessionID string) error {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
		Username:  username,
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return apperrors.UpstreamErrorf("failed to sign session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie on the client.
func (a *TokenAuth) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// decode verifies the cookie's signature and returns its claims.
func (a *TokenAuth) decode(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, apperrors.Unauthorizedf("missing session cookie")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorizedf("invalid session cookie")
	}
	return claims, nil
}

// RequireSession is lightweight auth: it only checks that the cookie
// decodes to a known user, without cross-checking SessionManager.
func (a *TokenAuth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.decode(r)
		if err != nil {
			http.Error(w, "unauthorized", apperrors.HTTPStatus(err))
			return
		}
		ctx := context.WithValue(r.Context(), usernameCtxKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActiveSession implements verifyActiveSession: beyond cookie
// validity, it cross-checks the live SessionManager state. A user with
// no session, or whose session id differs from the cookie's, gets the
// cookie cleared and a 401; the stored session is left in place. It
// does not compare LastHTTPActivity with the idle timeout, so an idle
// session passes until SweepInactiveSessions removes it.
func (a *TokenAuth) RequireActiveSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := a.decode(r)
		if err != nil {
			http.Error(w, "unauthorized", apperrors.HTTPStatus(err))
			return
		}

		sess, err := a.sessions.Get(claims.Username)
		if err != nil {
			logger.WarnCtx(ctx, "active session check failed: user not in session manager", logger.Username(claims.Username))
			a.ClearCookie(w)
			http.Error(w, "session expired or invalid, please log in again", http.StatusUnauthorized)
			return
		}

		if sess.SessionID != claims.SessionID {
			logger.WarnCtx(ctx, "active session check failed: session id mismatch",
				logger.Username(claims.Username), logger.SessionID(claims.SessionID))
			a.ClearCookie(w)
			http.Error(w, "session conflict, please log in again", http.StatusUnauthorized)
			return
		}

		a.sessions.RecordHTTPActivity(claims.Username)

		reqCtx := context.WithValue(ctx, usernameCtxKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(reqCtx))
	})
}

// UsernameFromContext returns the username stamped by RequireSession
// or RequireActiveSession, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameCtxKey).(string)
	return username, ok
}
