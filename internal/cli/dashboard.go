package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/switchml/switchio/internal/tui"
)

var dashboardServer string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Launch the interactive TUI dashboard",
	Long: `Launch a terminal dashboard showing the jobs a node is tracking and its
counters, refreshed every 2 seconds from the node HTTP API.

Key bindings:
  Tab / Shift+Tab  Navigate between tabs
  1 / 2            Jump to Jobs / Counters
  r                Force an immediate refresh
  q / Ctrl+C       Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := dashboardServer
		if server == "" {
			server = "http://" + cfg.HTTP.Addr
		}
		p := tea.NewProgram(tui.New(server), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err := p.Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardServer, "server", "", "node API URL (default http://<http.addr>)")
	rootCmd.AddCommand(dashboardCmd)
}
