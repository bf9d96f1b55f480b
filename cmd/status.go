package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// statusPayload mirrors the daemon's /api/status response body.
type statusPayload struct {
	App          string  `json:"app"`
	Phase        string  `json:"phase"`
	PID          int     `json:"pid"`
	StartedAt    string  `json:"started_at"`
	UptimeSec    float64 `json:"uptime_sec"`
	Launches     int     `json:"launches"`
	RestartCount int     `json:"restart_count"`
	MaxRestarts  int     `json:"max_restarts"`
	AutoRestart  bool    `json:"auto_restart"`
	LastExit     *struct {
		Code  int    `json:"code"`
		Cause string `json:"cause"`
		At    string `json:"at"`
	} `json:"last_exit"`
}

// CreateStatusCmd builds the `status` subcommand, which queries a running
// daemon over its HTTP API.
func CreateStatusCmd() *cobra.Command {
	var (
		addr     string
		username string
		password string
		asJSON   bool
	)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show supervisor status from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, addr+"/api/status", nil)
			if err != nil {
				return err
			}
			if username != "" && password != "" {
				req.SetBasicAuth(username, password)
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("cannot reach daemon at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned %s", resp.Status)
			}

			var status statusPayload
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("cannot decode status response: %w", err)
			}

			if asJSON {
				out, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Field", "Value")
			table.Append("App", status.App)
			table.Append("Phase", status.Phase)
			if status.PID != 0 {
				table.Append("PID", fmt.Sprintf("%d", status.PID))
				table.Append("Uptime", (time.Duration(status.UptimeSec) * time.Second).String())
			}
			table.Append("Launches", fmt.Sprintf("%d", status.Launches))
			table.Append("Restarts", fmt.Sprintf("%d / %d", status.RestartCount, status.MaxRestarts))
			table.Append("Auto Restart", fmt.Sprintf("%t", status.AutoRestart))
			if status.LastExit != nil {
				table.Append("Last Exit", fmt.Sprintf("code %d (%s) at %s",
					status.LastExit.Code, status.LastExit.Cause, status.LastExit.At))
			}
			table.Render()
			return nil
		},
	}

	statusCmd.Flags().StringVar(&addr, "addr", "http://localhost:9820", "Daemon API address")
	statusCmd.Flags().StringVarP(&username, "username", "u", "", "Basic auth username")
	statusCmd.Flags().StringVar(&password, "password", "", "Basic auth password")
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return statusCmd
}
