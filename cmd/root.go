package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"agentsync/internal/config"
	"agentsync/internal/pipeline"
)

var (
	flagAgent   string
	flagDryRun  bool
	flagDataDir string
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "agentsync",
	Short: "Sync AI coding-agent usage metrics to a remote endpoint",
	Long: "Extracts usage metrics (tokens, tool calls, file edits, prompts) from\n" +
		"locally stored agent session transcripts, queues them durably, and syncs\n" +
		"them to a remote metrics endpoint.",
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagAgent, "agent", "a", "", "Agent whose sessions to process (opencode, claude)")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "Run the full pipeline without contacting the endpoint")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Override the agentsync state directory")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadPipeline builds the pipeline from config plus command-line overrides.
func loadPipeline() (*pipeline.Pipeline, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	if flagDataDir != "" {
		cfg.General.DataDir = flagDataDir
	}
	if flagDryRun {
		cfg.Endpoint.DryRun = true
	}
	return pipeline.New(cfg), cfg, nil
}
