package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentsync/internal/cli"
	"agentsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	endpoint := config.GetEndpointURL(cfg)
	if endpoint == "" {
		endpoint = "(not configured)"
	}
	token := "(not set)"
	if config.GetToken(cfg) != "" {
		token = "(set)"
	}

	t := cli.Table{
		Title:   "Configuration",
		Headers: []string{"Setting", "Value"},
		Rows: [][]string{
			{"config file", config.ConfigPath()},
			{"data dir", config.DataDir(cfg)},
			{"endpoint", endpoint},
			{"token", token},
			{"default agent", cfg.General.DefaultAgent},
			{"max attempts", fmt.Sprintf("%d", cfg.Endpoint.MaxAttempts)},
			{"dry run", fmt.Sprintf("%t", cfg.Endpoint.DryRun)},
		},
	}
	for name, ac := range cfg.Agents {
		t.Rows = append(t.Rows, []string{"agent " + name, ac.StorageDir})
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(t))
	fmt.Println()
	return nil
}
