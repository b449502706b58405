package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{S3Bucket: "docassistant-backups"}.Enabled())
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	u, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUploadOnNilUploaderIsNoop(t *testing.T) {
	var u *Uploader
	assert.NoError(t, u.Upload(context.Background(), "/tmp/does-not-matter.zip"))
}
