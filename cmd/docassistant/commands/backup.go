package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docassistant/docassistant/pkg/backup"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/spf13/cobra"
)

var (
	backupDocType string
	backupSrc     string
)

var backupCmd = &cobra.Command{Use: "backup", Short: "Back up a document root to a local archive"}
var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Zip a document root (or a subdirectory of it) into a timestamped archive",
	Long: `Produce a timestamped .zip of the given document root, writing it under
the configured local backup directory. If an S3 bucket is configured, the
archive is also uploaded there, best-effort.

Examples:
  # Back up the whole projects root
  docassistant backup create --doc-type project

  # Back up a single project directory
  docassistant backup create --doc-type project --src acme-corp`,
	RunE: runBackupCreate,
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupDocType, "doc-type", "project", "Document root to back up: project, spec or management")
	backupCreateCmd.Flags().StringVar(&backupSrc, "src", ".", "Path to back up, relative to the document root")
	backupCmd.AddCommand(backupCreateCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	root, err := backupDocTypeRoot(cfg, backupDocType)
	if err != nil {
		return err
	}

	ctx := context.Background()
	uploader, err := backup.New(ctx, backup.Config{S3Bucket: cfg.Backup.S3Bucket, S3Region: cfg.Backup.S3Region})
	if err != nil {
		return fmt.Errorf("construct backup uploader: %w", err)
	}

	svc, err := fileservice.New(fileservice.Config{RootDir: root, BackupUpload: uploader})
	if err != nil {
		return fmt.Errorf("open %s file service: %w", backupDocType, err)
	}

	destAbs := filepath.Join(cfg.Backup.LocalDestDir, fmt.Sprintf("%s-%s.zip", backupDocType, time.Now().Format("20060102-150405")))
	archivePath, err := svc.BackupDirectory(ctx, backupSrc, destAbs)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Printf("Backup written to %s\n", archivePath)
	if cfg.Backup.S3Bucket != "" {
		fmt.Printf("Uploaded to s3://%s (best-effort; check logs for upload errors)\n", cfg.Backup.S3Bucket)
	}
	return nil
}

func backupDocTypeRoot(cfg *config.Config, docType string) (string, error) {
	switch docType {
	case "project":
		return cfg.Documents.ProjectsRoot, nil
	case "spec":
		return cfg.Documents.SpecRoot, nil
	case "management":
		return cfg.Documents.ManagementRoot, nil
	default:
		return "", fmt.Errorf("unknown doc-type %q: must be project, spec or management", docType)
	}
}
