package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/shedcal/internal/ingest"
	"github.com/jgoulah/shedcal/internal/logging"
)

var fetchTimeout time.Duration

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download configured sources",
	Long: `Downloads the machine friendly CSV and every calendar listed in config.yaml and
stores them in the local SQLite database. Duplicate records are skipped.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "Per-request timeout")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MachineFriendlyURL == "" && len(cfg.Calendars) == 0 {
		return fmt.Errorf("no sources configured (set machine_friendly_url or calendars in %s)", getConfigPath())
	}

	log := logging.New(cfg.GetLogLevel(), true)
	syncer := ingest.NewSyncer(cfg, db, ingest.NewFetcher(fetchTimeout), log)

	res := syncer.Sync(context.Background())
	fmt.Printf("✓ Stored %d calendars and %d new records\n", res.Calendars, res.Records)
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Printf("  ✗ %v\n", e)
		}
		return fmt.Errorf("%d sources failed", len(res.Errors))
	}
	return nil
}
