package kernel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docassistant/docassistant/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.GetDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.PublicBaseURL = "http://127.0.0.1:0"
	cfg.Documents.ProjectsRoot = filepath.Join(dir, "projects")
	cfg.Documents.SpecRoot = filepath.Join(dir, "specs")
	cfg.Documents.ManagementRoot = filepath.Join(dir, "management")
	cfg.Index.StorePath = filepath.Join(dir, "index.db")
	cfg.Auth.UsersDBPath = filepath.Join(dir, "users.json")
	cfg.Auth.SessionSecret = "test-secret"
	cfg.Chat.HistoryRoot = filepath.Join(dir, "history")
	cfg.Chat.OpenAIAPIKey = "unused-in-this-test"
	cfg.Embeddings.URL = ""
	cfg.Session.CleanupInterval = 50 * time.Millisecond
	cfg.Metrics.Enabled = false
	cfg.Telemetry.Enabled = false

	return cfg
}

func TestNewBuildsKernelAndStartsIndex(t *testing.T) {
	cfg := testConfig(t)

	k, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, k)
	require.False(t, k.embeddingsAvailable)
	require.Len(t, k.fileRoots, 3)
	require.Nil(t, k.backupUpload)
}

func TestRunShutsDownCleanlyOnContextCancel(t *testing.T) {
	cfg := testConfig(t)

	k, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("kernel did not shut down in time")
	}
}
