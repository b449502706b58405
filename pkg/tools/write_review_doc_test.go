package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReviewDocGetManualReturnsInstructions(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")

	ctx := context.Background()
	_, err := env.TemplateFiles.SaveBytes(ctx, []byte("fill in each section under 验收意见"), "acceptance.txt")
	require.NoError(t, err)

	out := writeReviewDoc(ctx, env, "alice", writeReviewDocArgs{TemplateType: "acceptance"})

	var resp writeReviewDocResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Content, "验收意见")
}

func TestWriteReviewDocGetManualMissingTemplate(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")

	out := writeReviewDoc(context.Background(), env, "alice", writeReviewDocArgs{TemplateType: "does-not-exist"})

	var resp writeReviewDocResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "no instructions found")
}

func TestWriteReviewDocGetManualRejectsTemplateTypeEscape(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")

	out := writeReviewDoc(context.Background(), env, "alice", writeReviewDocArgs{TemplateType: "../../etc/passwd"})

	var resp writeReviewDocResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "invalid template_type")
}

func TestWriteReviewDocRequiresProjectNameAndContent(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")

	no := false
	out := writeReviewDoc(context.Background(), env, "alice", writeReviewDocArgs{
		TemplateType: "acceptance",
		GetManual:    &no,
	})

	var resp writeReviewDocResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "project_name and content are required")
}

func TestWriteReviewDocRejectsProjectNameEscape(t *testing.T) {
	projectRoot := t.TempDir()
	env := newTestEnv(t, projectRoot, "")

	ctx := context.Background()
	_, err := env.TemplateFiles.SaveBytes(ctx, []byte("binary docx content"), "acceptance.docx")
	require.NoError(t, err)

	no := false
	out := writeReviewDoc(ctx, env, "alice", writeReviewDocArgs{
		TemplateType: "acceptance",
		ProjectName:  "../../escape",
		Content:      map[string]string{"x": "y"},
		GetManual:    &no,
	})

	var resp writeReviewDocResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Hint, "invalid project_name or template_type")
}
