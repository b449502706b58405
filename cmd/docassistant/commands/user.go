package commands

import (
	"fmt"
	"os"

	"github.com/docassistant/docassistant/internal/cli/output"
	"github.com/docassistant/docassistant/internal/cli/prompt"
	"github.com/docassistant/docassistant/pkg/auth"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new user",
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing users",
	RunE:  runUserList,
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	db, err := auth.LoadUsersDB(cfg.Auth.UsersDBPath)
	if err != nil {
		return fmt.Errorf("load users db: %w", err)
	}

	username, err := prompt.InputRequired("Username")
	if err != nil {
		return err
	}

	password, err := prompt.NewPassword()
	if err != nil {
		return err
	}

	if err := db.AddUser(username, password); err != nil {
		return fmt.Errorf("add user: %w", err)
	}

	fmt.Printf("User %q added.\n", username)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	db, err := auth.LoadUsersDB(cfg.Auth.UsersDBPath)
	if err != nil {
		return fmt.Errorf("load users db: %w", err)
	}

	table := output.NewTableData("Username")
	for _, username := range db.ListUsernames() {
		table.AddRow(username)
	}

	return output.PrintTable(os.Stdout, table)
}
