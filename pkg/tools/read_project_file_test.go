package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadProjectFileOrdinaryDocument(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "notes.txt"), "site visit notes")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := readProjectFile(ctx, env, "alice", readProjectFileArgs{
		RelativeFilePath: "notes.txt",
		FileCategory:     categoryOrdinary,
	})

	var resp readFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "site visit notes", resp.Content)
	assert.NotEmpty(t, resp.Token)
}

func TestReadProjectFileMissingReturnsHint(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := readProjectFile(ctx, env, "alice", readProjectFileArgs{
		RelativeFilePath: "missing.txt",
		FileCategory:     categoryOrdinary,
	})

	var resp readFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Content)
	assert.Contains(t, resp.Hint, "not found")
}

func TestReadProjectFileDrawingRegistersWithoutContent(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "plan.dwg"), "binary-ish content")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := readProjectFile(ctx, env, "alice", readProjectFileArgs{
		RelativeFilePath: "plan.dwg",
		FileCategory:     categoryDrawing,
	})

	var resp readFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Content)
	assert.NotEmpty(t, resp.Token)
}

func TestReadProjectFileUnknownCategory(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "notes.txt"), "content")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := readProjectFile(ctx, env, "alice", readProjectFileArgs{
		RelativeFilePath: "notes.txt",
		FileCategory:     "unknown",
	})

	var resp readFileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "unknown file category")
}
