package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored calendars and record counts",
	Long:  `Displays all stored calendars and the number of schedule records in the configured dataset.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	count, err := db.CountRecords(ctx, cfg.GetDataset())
	if err != nil {
		return err
	}
	fmt.Printf("Dataset %s: %s records\n", cfg.GetDataset(), humanize.Comma(int64(count)))

	calendars, err := db.ListCalendars(ctx)
	if err != nil {
		return fmt.Errorf("listing calendars: %w", err)
	}
	if len(calendars) == 0 {
		fmt.Println("No calendars found")
		return nil
	}

	fmt.Println("\nCalendars:")
	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("%-40s  %8s  %6s  %7s  %s\n", "Name", "Size", "Events", "Suburbs", "Updated")
	fmt.Println("------------------------------------------------------------------------")
	for _, c := range calendars {
		suburbs := "-"
		if c.HasSuburbs {
			suburbs = "yes"
		}
		fmt.Printf("%-40s  %8s  %6d  %7s  %s\n", c.Name, humanize.Bytes(uint64(c.Size)), c.EventCount, suburbs, humanize.Time(c.UpdatedAt))
	}
	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("Total: %d calendars\n", len(calendars))

	return nil
}
