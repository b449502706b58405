package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/docassistant/docassistant/internal/cli/output"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect live server sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions known to a running server",
	Long: `Call a running server's debug session-states endpoint and print
the result. Requires the server to have been started with debug
endpoints enabled.`,
	RunE: runSessionsList,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
}

type apiResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(cfg.Server.PublicBaseURL + "/debug/session-states")
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("server returned an error: %s", body.Error)
	}

	var snapshots []session.DebugSnapshot
	if err := json.Unmarshal(body.Data, &snapshots); err != nil {
		return fmt.Errorf("decode session states: %w", err)
	}

	table := output.NewTableData("Username", "Session ID", "IP", "WS Connected", "Working Files")
	for _, s := range snapshots {
		table.AddRow(
			s.Username,
			s.SessionID,
			s.IPAddress,
			fmt.Sprintf("%t", s.IsWSConnected),
			fmt.Sprintf("%d", s.WorkingFileCount),
		)
	}

	return output.PrintTable(os.Stdout, table)
}
