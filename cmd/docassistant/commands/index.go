package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/docassistant/docassistant/internal/cli/output"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/indexstore"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and maintain the document index",
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Force a full rebuild of the document index",
	Long: `Truncate the index store and walk every configured document root
from scratch, regardless of the configured persist mode.`,
	RunE: runIndexRescan,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per document type in the index",
	RunE:  runIndexStats,
}

func init() {
	indexCmd.AddCommand(rescanCmd)
	indexCmd.AddCommand(statsCmd)
}

func openStore(cfg *config.Config, truncate bool) (*indexstore.Store, error) {
	return indexstore.New(indexstore.Config{
		Type:       indexstore.DatabaseType(cfg.Index.StoreDriver),
		SQLitePath: cfg.Index.StorePath,
		Postgres: indexstore.PostgresConfig{
			Host:     cfg.Index.Postgres.Host,
			Port:     cfg.Index.Postgres.Port,
			User:     cfg.Index.Postgres.User,
			Password: cfg.Index.Postgres.Password,
			Database: cfg.Index.Postgres.Database,
			SSLMode:  cfg.Index.Postgres.SSLMode,
		},
		Truncate: truncate,
	})
}

func runIndexRescan(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	store, err := openStore(cfg, true)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer store.Close()

	svc := index.New(store, index.Config{
		Roots: []index.Root{
			{DocType: index.DocTypeProject, Path: cfg.Documents.ProjectsRoot},
			{DocType: index.DocTypeSpec, Path: cfg.Documents.SpecRoot},
			{DocType: index.DocTypeManagement, Path: cfg.Documents.ManagementRoot},
		},
		Cooldown:       cfg.Index.WatcherCooldown,
		Persist:        cfg.Index.Persist,
		ScanCronHour:   cfg.Index.ScanCronHour,
		ScanCronMinute: cfg.Index.ScanCronMinute,
	})

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("rescan: %w", err)
	}
	svc.Stop(ctx)

	table := output.NewTableData("Doc Type", "Rows")
	for _, docType := range []index.DocType{index.DocTypeProject, index.DocTypeSpec, index.DocTypeManagement} {
		dt := string(docType)
		rows, err := store.Find(ctx, indexstore.Query{DocType: &dt})
		if err != nil {
			return fmt.Errorf("count %s: %w", docType, err)
		}
		table.AddRow(string(docType), fmt.Sprintf("%d", len(rows)))
	}

	fmt.Println("Rescan complete.")
	return output.PrintTable(os.Stdout, table)
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	store, err := openStore(cfg, false)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	table := output.NewTableData("Doc Type", "Rows")
	for _, docType := range []index.DocType{index.DocTypeProject, index.DocTypeSpec, index.DocTypeManagement} {
		dt := string(docType)
		rows, err := store.Find(ctx, indexstore.Query{DocType: &dt})
		if err != nil {
			return fmt.Errorf("count %s: %w", docType, err)
		}
		table.AddRow(string(docType), fmt.Sprintf("%d", len(rows)))
	}

	return output.PrintTable(os.Stdout, table)
}
