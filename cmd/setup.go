package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"agentsync/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	endpoint := cfg.Endpoint.URL
	token := cfg.Endpoint.Token
	defaultAgent := cfg.General.DefaultAgent
	dryRun := cfg.Endpoint.DryRun

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Metrics endpoint URL").
				Description("Where aggregated session metrics are posted.").
				Placeholder("https://metrics.example.com").
				Value(&endpoint),
			huh.NewInput().
				Title("Bearer token").
				Description("Leave empty to use the AGENTSYNC_TOKEN env var.").
				EchoMode(huh.EchoModePassword).
				Value(&token),
			huh.NewSelect[string]().
				Title("Default agent").
				Options(
					huh.NewOption("opencode", "opencode"),
					huh.NewOption("claude", "claude"),
				).
				Value(&defaultAgent),
			huh.NewConfirm().
				Title("Default to dry-run?").
				Description("Dry runs exercise the full pipeline without any network call.").
				Value(&dryRun),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Endpoint.URL = endpoint
	cfg.Endpoint.Token = token
	cfg.General.DefaultAgent = defaultAgent
	cfg.Endpoint.DryRun = dryRun

	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("\n  Saved %s\n\n", config.ConfigPath())
	return nil
}
