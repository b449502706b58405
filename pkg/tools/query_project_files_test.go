package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryProjectFilesListsAll(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "2024", "acme-bridge", "design.pdf"), "hello")
	writeTestFile(t, filepath.Join(projectRoot, "2024", "acme-bridge", "estimate.xlsx"), "hello")
	writeTestFile(t, filepath.Join(projectRoot, "2023", "contoso-tower", "design.pdf"), "hello")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()
	require.NoError(t, env.Index.Start(ctx))
	defer env.Index.Stop(ctx)

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := queryProjectFiles(ctx, env, "alice", queryProjectFilesArgs{ProjectName: "/ALL"})
	var resp queryProjectFilesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	names, ok := resp.ProjectName.(string)
	require.True(t, ok)
	assert.Contains(t, names, "acme-bridge")
	assert.Contains(t, names, "contoso-tower")
}

func TestQueryProjectFilesExactMatchRegistersWorkingDirectory(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "2024", "acme-bridge", "design.pdf"), "hello")
	writeTestFile(t, filepath.Join(projectRoot, "2024", "acme-bridge", "estimate.xlsx"), "hello")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()
	require.NoError(t, env.Index.Start(ctx))
	defer env.Index.Stop(ctx)

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := queryProjectFiles(ctx, env, "alice", queryProjectFilesArgs{ProjectName: "acme-bridge"})
	var resp queryProjectFilesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	assert.Equal(t, "acme-bridge", resp.ProjectName)
	assert.Len(t, resp.ProjectFiles, 2)

	sess, err := env.Sessions.Get("alice")
	require.NoError(t, err)
	require.NotNil(t, sess.WorkingDirectory)
	assert.Contains(t, sess.WorkingDirectory.DirectoryPath, "acme-bridge")
}

func TestQueryProjectFilesAmbiguousSubstring(t *testing.T) {
	projectRoot := t.TempDir()
	writeTestFile(t, filepath.Join(projectRoot, "2024", "bridge-north", "design.pdf"), "hello")
	writeTestFile(t, filepath.Join(projectRoot, "2024", "bridge-south", "design.pdf"), "hello")

	env := newTestEnv(t, projectRoot, "")
	ctx := context.Background()
	require.NoError(t, env.Index.Start(ctx))
	defer env.Index.Stop(ctx)

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := queryProjectFiles(ctx, env, "alice", queryProjectFilesArgs{ProjectName: "bridge"})
	var resp queryProjectFilesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	candidates, ok := resp.ProjectName.([]any)
	require.True(t, ok)
	assert.Len(t, candidates, 2)
}
