package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"agentsync/internal/cli"
	"agentsync/internal/model"
	"agentsync/internal/transcript"
)

var (
	flagSyncAll       bool
	flagRequeueFailed bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [session-id]",
	Short: "Extract new deltas and sync them to the metrics endpoint",
	Long: "Runs the full pipeline for one session: reads the agent transcript,\n" +
		"extracts metric deltas since the last checkpoint, queues them, and posts\n" +
		"the aggregated pending metrics. Without a session id the most recently\n" +
		"active session is used.",
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&flagSyncAll, "all", false, "Sync every discovered session")
	syncCmd.Flags().BoolVar(&flagRequeueFailed, "requeue-failed", false, "Flip failed records back to pending before syncing")
	rootCmd.AddCommand(syncCmd)
}

func runSync(_ *cobra.Command, args []string) error {
	p, cfg, err := loadPipeline()
	if err != nil {
		return err
	}

	dryRun := cfg.Endpoint.DryRun
	maxAge := time.Duration(cfg.General.MaxAgeDays) * 24 * time.Hour
	ctx := context.Background()

	if flagSyncAll {
		result, err := p.SyncAll(ctx, transcript.ScanOptions{MaxAge: maxAge}, dryRun)
		if err != nil {
			return err
		}
		printResult(result)
		if !result.Success {
			os.Exit(1)
		}
		return nil
	}

	var sessionID, agent string
	if len(args) == 1 {
		sessionID = args[0]
		agent = flagAgent
	} else {
		recent, ok := p.MostRecentSession(maxAge)
		if !ok {
			return errors.New("no sessions found; pass a session id or check agent storage configuration")
		}
		sessionID = recent.SessionID
		agent = recent.Agent
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Using most recent session %s (%s)\n", sessionID, agent)
		}
	}

	if flagRequeueFailed {
		n, err := p.Queue.RequeueFailed(sessionID)
		if err != nil {
			return err
		}
		if !flagQuiet && n > 0 {
			fmt.Fprintf(os.Stderr, "  Requeued %d failed record(s)\n", n)
		}
	}

	result, err := p.Sync(ctx, model.SessionContext{
		SessionID: sessionID,
		Agent:     agent,
		DryRun:    dryRun,
	})
	if err != nil {
		return err
	}
	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func printResult(result model.SyncResult) {
	fmt.Println()
	fmt.Println(cli.ResultLine(result.Success, result.Message))
	for name, proc := range result.ProcessorResults {
		if proc.Message == result.Message {
			continue
		}
		fmt.Println(cli.ResultLine(proc.Success, fmt.Sprintf("%s: %s", name, proc.Message)))
	}
	fmt.Println()
}
