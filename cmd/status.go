package cmd

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"agentsync/internal/cli"
	"agentsync/internal/tui"
)

var flagWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-session queue state",
	Long: "Summarizes each session's delta ledger: how many records are pending,\n" +
		"synced, or failed. Failed records are never retried automatically; use\n" +
		"`sync --requeue-failed` to resubmit them.",
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Live view, refreshed continuously")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	p, _, err := loadPipeline()
	if err != nil {
		return err
	}

	if flagWatch {
		_, err := tea.NewProgram(tui.NewWatch(p.Queue), tea.WithAltScreen()).Run()
		return err
	}

	sessions, err := p.Queue.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("\n  No queued metrics yet. Run `agentsync sync` first.")
		return nil
	}

	t := cli.Table{
		Title:   "Queue state",
		Headers: []string{"Session", "Pending", "Synced", "Failed", "Last sync"},
	}
	totalFailed := 0
	for _, id := range sessions {
		s, err := p.Queue.Summarize(id)
		if err != nil {
			return err
		}
		totalFailed += s.Failed
		t.Rows = append(t.Rows, []string{
			cli.Truncate(id, 40),
			strconv.Itoa(s.Pending),
			strconv.Itoa(s.Synced),
			strconv.Itoa(s.Failed),
			cli.FormatAge(s.LastSync),
		})
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(t))
	if totalFailed > 0 {
		fmt.Println()
		fmt.Printf("  %d record(s) %s — resubmit with `agentsync sync --requeue-failed <session-id>`\n",
			totalFailed, cli.StatusBadge("failed"))
	}
	fmt.Println()
	return nil
}
