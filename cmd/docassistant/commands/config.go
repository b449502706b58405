package commands

import (
	"fmt"
	"os"

	"github.com/docassistant/docassistant/internal/cli/output"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, applying defaults and running struct
validation, and report whether it is valid.`,
	RunE: runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration is invalid: %v\n", err)
		return err
	}

	fmt.Println("Configuration is valid.")
	return output.SimpleTable(os.Stdout, [][2]string{
		{"Source", configSource(GetConfigFile())},
		{"Server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)},
		{"Index store", fmt.Sprintf("%s (%s)", cfg.Index.StoreDriver, cfg.Index.Persist)},
		{"Projects root", cfg.Documents.ProjectsRoot},
		{"Spec root", cfg.Documents.SpecRoot},
		{"Management root", cfg.Documents.ManagementRoot},
	})
}
