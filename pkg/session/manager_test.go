package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docassistant/docassistant/pkg/apperrors"
)

func newTestManager() *Manager {
	return New(Config{
		OverallInactivityTimeout: 50 * time.Millisecond,
		DownloadLinkValidity:     50 * time.Millisecond,
	})
}

func TestAttemptLoginExclusivity(t *testing.T) {
	m := newTestManager()

	ok, err := m.AttemptLogin("alice", "10.0.0.1", "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.AttemptLogin("alice", "10.0.0.2", "sess-2")
	assert.True(t, errors.Is(err, apperrors.ErrExclusiveLoginDenied))

	time.Sleep(60 * time.Millisecond)

	ok, err = m.AttemptLogin("alice", "10.0.0.2", "sess-2")
	require.NoError(t, err)
	assert.True(t, ok)

	sess, err := m.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", sess.SessionID)
}

func TestLogoutRemovesSession(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("bob", "10.0.0.1", "sess-1")

	require.NoError(t, m.Logout("bob"))
	_, err := m.Get("bob")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestOpenFileMintsToken(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("carol", "10.0.0.1", "sess-1")

	entry, err := m.OpenFile(context.Background(), "carol", "2024/acme/design.pdf", DocTypeProject, true)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.Token)

	resolved, err := m.ResolveDownloadToken(entry.Token)
	require.NoError(t, err)
	assert.Equal(t, "design.pdf", resolved.Filename)
}

func TestResolveDownloadTokenExpires(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("dave", "10.0.0.1", "sess-1")

	entry, err := m.OpenFile(context.Background(), "dave", "a.pdf", DocTypeProject, false)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = m.ResolveDownloadToken(entry.Token)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestOpenDirectoryReplacesPrevious(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("erin", "10.0.0.1", "sess-1")

	dir1, err := m.OpenDirectory(context.Background(), "erin", "2024/acme", []string{"a.pdf"})
	require.NoError(t, err)
	_, err = m.ResolveDownloadToken(dir1.Files[0].Token)
	require.NoError(t, err)

	dir2, err := m.OpenDirectory(context.Background(), "erin", "2024/other", []string{"b.pdf"})
	require.NoError(t, err)

	_, err = m.ResolveDownloadToken(dir1.Files[0].Token)
	assert.Error(t, err)

	_, err = m.ResolveDownloadToken(dir2.Files[0].Token)
	require.NoError(t, err)
}

func TestRegisterEditingFileSharesKeyAcrossCollaborators(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("frank", "10.0.0.1", "sess-1")
	_, _ = m.AttemptLogin("grace", "10.0.0.2", "sess-2")

	_, key1, err := m.RegisterEditingFile("frank", "shared/doc.docx", DocTypeProject)
	require.NoError(t, err)

	_, key2, err := m.RegisterEditingFile("grace", "shared/doc.docx", DocTypeProject)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)

	path, docType, err := m.EditingFilePath(key1)
	require.NoError(t, err)
	assert.Equal(t, "shared/doc.docx", path)
	assert.Equal(t, DocTypeProject, docType)
}

func TestSweepInactiveSessionsEvicts(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("henry", "10.0.0.1", "sess-1")

	time.Sleep(60 * time.Millisecond)
	m.SweepInactiveSessions(context.Background())

	_, err := m.Get("henry")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSweepExpiredTokensPrunesWorkingFiles(t *testing.T) {
	m := newTestManager()
	_, _ = m.AttemptLogin("irene", "10.0.0.1", "sess-1")
	_, err := m.OpenFile(context.Background(), "irene", "a.pdf", DocTypeProject, false)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	m.SweepExpiredTokens()

	sess, err := m.Get("irene")
	require.NoError(t, err)
	assert.Empty(t, sess.WorkingFiles)
}
