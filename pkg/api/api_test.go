package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docassistant/docassistant/pkg/auth"
	"github.com/docassistant/docassistant/pkg/session"
)

func TestLoginRejectsBadCredentials(t *testing.T) {
	deps := newTestDepsForAuthOnly(t)
	h := &authHandler{deps: deps}

	body, _ := json.Marshal(loginRequest{Username: "alice", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginGrantsExclusiveSession(t *testing.T) {
	deps := newTestDepsForAuthOnly(t)
	h := &authHandler{deps: deps}

	login := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(loginRequest{Username: "alice", Password: "correct-horse"})
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		return rec
	}

	first := login()
	require.Equal(t, http.StatusOK, first.Code)

	second := login()
	assert.Equal(t, http.StatusConflict, second.Code)
}

func newTestDepsForAuthOnly(t *testing.T) *Deps {
	t.Helper()

	usersPath := filepath.Join(t.TempDir(), "users.json")
	users, err := auth.LoadUsersDB(usersPath)
	require.NoError(t, err)
	require.NoError(t, users.AddUser("alice", "correct-horse"))

	sessions := session.New(session.Config{
		OverallInactivityTimeout: time.Hour,
		DownloadLinkValidity:     time.Hour,
	})

	return &Deps{
		Auth:     auth.New("test-secret", sessions),
		Users:    users,
		Sessions: sessions,
	}
}

func TestSetExactAndSubstringFilter(t *testing.T) {
	var exact *string
	setExactFilter(&exact, "2026")
	require.NotNil(t, exact)
	assert.Equal(t, "2026", *exact)

	var sub *string
	setSubstringFilter(&sub, "report")
	require.NotNil(t, sub)
	assert.Equal(t, "%report%", *sub)

	var empty *string
	setExactFilter(&empty, "")
	assert.Nil(t, empty)
}
