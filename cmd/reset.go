package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Reset a session's extraction checkpoint",
	Long: "Deletes the session's cursor so the next sync re-reads the transcript\n" +
		"from the beginning. Already-captured deltas are deduplicated by record id,\n" +
		"so resetting never double-reports.",
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(_ *cobra.Command, args []string) error {
	p, _, err := loadPipeline()
	if err != nil {
		return err
	}
	if err := p.Checkpoints.Reset(args[0]); err != nil {
		return err
	}
	fmt.Printf("  Checkpoint for %s removed.\n", args[0])
	return nil
}
