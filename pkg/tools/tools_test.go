package tools

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/indexstore"
	"github.com/docassistant/docassistant/pkg/session"
)

func newTestEnv(t *testing.T, projectRoot, specRoot string) *Env {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "index.db")
	store, err := indexstore.New(indexstore.Config{Type: indexstore.DatabaseTypeSQLite, SQLitePath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	roots := []index.Root{}
	if projectRoot != "" {
		roots = append(roots, index.Root{DocType: index.DocTypeProject, Path: projectRoot})
	}
	if specRoot != "" {
		roots = append(roots, index.Root{DocType: index.DocTypeSpec, Path: specRoot})
	}
	idx := index.New(store, index.Config{Roots: roots, Cooldown: 20 * time.Millisecond, Persist: "rescan"})

	files := map[index.DocType]*fileservice.Service{}
	if projectRoot != "" {
		fs, err := fileservice.New(fileservice.Config{RootDir: projectRoot})
		require.NoError(t, err)
		files[index.DocTypeProject] = fs
	}
	if specRoot != "" {
		fs, err := fileservice.New(fileservice.Config{RootDir: specRoot})
		require.NoError(t, err)
		files[index.DocTypeSpec] = fs
	}

	sessions := session.New(session.Config{
		OverallInactivityTimeout: time.Minute,
		DownloadLinkValidity:     time.Minute,
	})

	cfg := config.GetDefaultConfig()

	templateRoot := t.TempDir()
	outputRoot := t.TempDir()
	templateFiles, err := fileservice.New(fileservice.Config{RootDir: templateRoot})
	require.NoError(t, err)
	outputFiles, err := fileservice.New(fileservice.Config{RootDir: outputRoot})
	require.NoError(t, err)
	cfg.Review.TemplateRoot = templateRoot
	cfg.Review.DefaultOutputRoot = outputRoot

	return &Env{
		Sessions:            sessions,
		Index:               idx,
		Files:               files,
		Config:              cfg,
		TemplateFiles:       templateFiles,
		OutputFiles:         outputFiles,
		EmbeddingsAvailable: func() bool { return false },
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
