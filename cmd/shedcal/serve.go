package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jgoulah/shedcal/internal/api"
	"github.com/jgoulah/shedcal/internal/ingest"
	"github.com/jgoulah/shedcal/internal/logging"
)

var (
	serveListen string
	serveSync   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the calendar API from the local database. When a refresh schedule is
configured, sources are re-fetched in the background on that cron schedule.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
	serveCmd.Flags().BoolVar(&serveSync, "sync", false, "Fetch all sources once before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	log := logging.New(cfg.GetLogLevel(), cfg.Log.Console)

	listen := cfg.GetListen()
	if serveListen != "" {
		listen = serveListen
	}

	log.Info().
		Str("listen", listen).
		Str("dataset", cfg.GetDataset()).
		Str("timezone", cfg.GetLocation().String()).
		Str("area_match", cfg.AreaMatch).
		Str("refresh", cfg.RefreshCron).
		Int("calendar_sources", len(cfg.Calendars)).
		Msg("effective config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncer := ingest.NewSyncer(cfg, db, ingest.NewFetcher(30*time.Second), log.With().Str("component", "sync").Logger())
	if serveSync {
		syncer.Sync(ctx)
	}

	if cfg.RefreshCron != "" {
		c := cron.New(cron.WithLocation(cfg.GetLocation()))
		if _, err := c.AddFunc(cfg.RefreshCron, func() { syncer.Sync(ctx) }); err != nil {
			return fmt.Errorf("parsing refresh schedule %q: %w", cfg.RefreshCron, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	srv := api.NewServer(newEngine(cfg, db), log.With().Str("component", "api").Logger(),
		api.WithLocation(cfg.GetLocation()),
		api.WithRateLimit(cfg.GetRateLimit()))

	if err := srv.Serve(ctx, listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
