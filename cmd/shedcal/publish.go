package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/shedcal/internal/publisher"
)

var (
	publishArea string
	publishDays int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an area's upcoming schedule over MQTT",
	Long: `Looks up the configured area's load-shedding windows from today for the
configured number of days and publishes them as a retained MQTT message.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishArea, "area", "", "Area to publish (default from config)")
	publishCmd.Flags().IntVar(&publishDays, "days", 0, "Days ahead to include (default from config)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	area := publishArea
	if area == "" {
		area = cfg.MQTT.Area
	}
	if area == "" {
		return fmt.Errorf("no area given (use --area or set mqtt.area in config)")
	}
	days := publishDays
	if days <= 0 {
		days = cfg.MQTT.GetDays()
	}

	engine := newEngine(cfg, db)
	today := engine.Today()
	data, err := engine.GetDataByAreaDateTime(context.Background(), area, today, today.AddDate(0, 0, days-1))
	if err != nil {
		return fmt.Errorf("querying schedule for %s: %w", area, err)
	}

	pub, err := publisher.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	payload := publisher.BuildPayload(area, data, time.Now())
	if err := pub.Publish(payload); err != nil {
		return err
	}

	fmt.Printf("✓ Published %d windows for %s to %s\n", len(payload.Windows), area,
		publisher.Topic(cfg.MQTT.GetTopicPrefix(), area))
	return nil
}
