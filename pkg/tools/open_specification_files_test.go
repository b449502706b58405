package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSpecificationFilesListsAll(t *testing.T) {
	specRoot := t.TempDir()
	writeTestFile(t, filepath.Join(specRoot, "钢结构规范", "steel-handbook", "steel-handbook.md"), "steel design guidance")
	writeTestFile(t, filepath.Join(specRoot, "钢结构规范", "steel-annex", "steel-annex.txt"), "annex content")

	env := newTestEnv(t, "", specRoot)
	env.Config.Documents.SpecCategories = []string{"钢结构规范"}
	ctx := context.Background()
	require.NoError(t, env.Index.Start(ctx))
	defer env.Index.Stop(ctx)

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := openSpecificationFiles(ctx, env, "alice", openSpecificationFilesArgs{
		QuerySpecFilename: "/ALL",
		Category:          "钢结构规范",
	})

	var resp openSpecFilesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Files, 2)
}

func TestOpenSpecificationFilesRejectsUnknownCategory(t *testing.T) {
	specRoot := t.TempDir()
	env := newTestEnv(t, "", specRoot)
	env.Config.Documents.SpecCategories = []string{"钢结构规范"}
	ctx := context.Background()

	out := openSpecificationFiles(ctx, env, "alice", openSpecificationFilesArgs{
		QuerySpecFilename: "/ALL",
		Category:          "not-a-category",
	})

	var resp openSpecFilesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "unknown specification category")
}

func TestOpenSpecificationFilesSubstringReadsContent(t *testing.T) {
	specRoot := t.TempDir()
	writeTestFile(t, filepath.Join(specRoot, "钢结构规范", "steel-handbook", "steel-handbook.md"), "steel design guidance text")

	env := newTestEnv(t, "", specRoot)
	env.Config.Documents.SpecCategories = []string{"钢结构规范"}
	ctx := context.Background()
	require.NoError(t, env.Index.Start(ctx))
	defer env.Index.Stop(ctx)

	_, err := env.Sessions.AttemptLogin("alice", "127.0.0.1", "sess-1")
	require.NoError(t, err)

	out := openSpecificationFiles(ctx, env, "alice", openSpecificationFilesArgs{
		QuerySpecFilename: "steel-handbook",
		Category:          "钢结构规范",
		ReadFile:          true,
	})

	var resp openSpecFilesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Content, "steel design guidance")
	assert.NotEmpty(t, resp.Token)
}
