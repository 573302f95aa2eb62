package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agentsync/internal/cli"
	"agentsync/internal/transcript"
)

var (
	flagMaxAgeDays int
	flagCwd        string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List discovered agent sessions",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&flagMaxAgeDays, "max-age-days", 0, "Only sessions updated within this many days")
	sessionsCmd.Flags().StringVar(&flagCwd, "cwd", "", "Only sessions for this working directory")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	p, cfg, err := loadPipeline()
	if err != nil {
		return err
	}

	maxAgeDays := flagMaxAgeDays
	if maxAgeDays == 0 {
		maxAgeDays = cfg.General.MaxAgeDays
	}

	sessions, err := p.DiscoverSessions(transcript.ScanOptions{
		MaxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
		Cwd:    flagCwd,
	})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	t := cli.Table{
		Title:   fmt.Sprintf("Sessions (last %d days)", maxAgeDays),
		Headers: []string{"Session", "Agent", "Directory", "Updated"},
	}
	for _, s := range sessions {
		t.Rows = append(t.Rows, []string{
			cli.Truncate(s.SessionID, 40),
			s.Agent,
			cli.Truncate(s.WorkingDir, 32),
			cli.FormatAge(s.UpdatedAt),
		})
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(t))
	fmt.Println()
	return nil
}
