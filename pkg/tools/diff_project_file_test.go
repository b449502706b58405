package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffProjectFileTextDocuments(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "report-v1.txt"), "line one\nline two\nline three\n")
	writeTestFile(t, filepath.Join(projectRoot, "report-v2.txt"), "line one\nline TWO\nline three\n")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := diffProjectFile(ctx, env, "alice", diffProjectFileArgs{
		RelativeFile1Path: "report-v1.txt",
		RelativeFile2Path: "report-v2.txt",
		DocumentType:      documentTypeReport,
	})

	var resp diffFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Content, "line two")
	assert.Contains(t, resp.Content, "line TWO")
	assert.NotEmpty(t, resp.Token1)
	assert.NotEmpty(t, resp.Token2)
}

func TestDiffProjectFileRejectsUnknownDocumentType(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	out := diffProjectFile(ctx, env, "alice", diffProjectFileArgs{
		RelativeFile1Path: "a.txt",
		RelativeFile2Path: "b.txt",
		DocumentType:      "not a real type",
	})

	var resp diffFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "unknown document type")
}

func TestDiffProjectFileRejectsMismatchedExtensions(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "a.txt"), "content")
	writeTestFile(t, filepath.Join(projectRoot, "b.md"), "content")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	out := diffProjectFile(ctx, env, "alice", diffProjectFileArgs{
		RelativeFile1Path: "a.txt",
		RelativeFile2Path: "b.md",
		DocumentType:      documentTypeReport,
	})

	var resp diffFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "same extension")
}

func TestDiffProjectFileEstimateRequiresXlsx(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "a.txt"), "content")
	writeTestFile(t, filepath.Join(projectRoot, "b.txt"), "content")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	out := diffProjectFile(ctx, env, "alice", diffProjectFileArgs{
		RelativeFile1Path: "a.txt",
		RelativeFile2Path: "b.txt",
		DocumentType:      documentTypeEstimate,
	})

	var resp diffFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, ".xlsx")
}
