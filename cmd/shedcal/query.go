package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/shedcal/internal/schedule"
)

var (
	queryLast  int
	queryCount int
	queryStart string
	queryEnd   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run schedule queries against the local database",
	Long:  `Runs the same queries the HTTP API serves and prints the result as JSON.`,
}

func init() {
	pageCmd := &cobra.Command{
		Use:   "page",
		Short: "Records in store order",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, e *schedule.Engine, args []string) (any, error) {
			return e.GetMachineData(ctx, queryLast, queryCount)
		}),
	}
	areaCmd := &cobra.Command{
		Use:   "area [areaName]",
		Short: "Records for one area",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *schedule.Engine, args []string) (any, error) {
			return e.GetDataByArea(ctx, args[0], queryLast, queryCount)
		}),
	}
	for _, c := range []*cobra.Command{pageCmd, areaCmd} {
		c.Flags().IntVar(&queryLast, "last", 0, "Offset of the first record")
		c.Flags().IntVar(&queryCount, "count", schedule.MaxRecords, "Records to retrieve (1-1000)")
	}

	rangeCmd := &cobra.Command{
		Use:   "range [areaName]",
		Short: "Records for one area within a date range",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *schedule.Engine, args []string) (any, error) {
			start, err := parseDate(queryStart, e.Location())
			if err != nil {
				return nil, fmt.Errorf("parsing --start: %w", err)
			}
			end, err := parseDate(queryEnd, e.Location())
			if err != nil {
				return nil, fmt.Errorf("parsing --end: %w", err)
			}
			return e.GetDataByAreaDateTime(ctx, args[0], start, end)
		}),
	}
	rangeCmd.Flags().StringVar(&queryStart, "start", "", "First day (YYYY-MM-DD or +Nd, default today)")
	rangeCmd.Flags().StringVar(&queryEnd, "end", "", "Last day (YYYY-MM-DD or +Nd, default start)")

	queryCmd.AddCommand(pageCmd, areaCmd, rangeCmd,
		&cobra.Command{
			Use:   "distinct [areaName]",
			Short: "Distinct areas over the next ten days",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(ctx context.Context, e *schedule.Engine, args []string) (any, error) {
				return e.GetDistinctAreas(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "suburbs [calendarName]",
			Short: "Suburbs covered by a calendar",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(ctx context.Context, e *schedule.Engine, args []string) (any, error) {
				return e.GetCalendarSuburbs(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "asset [calendarName]",
			Short: "Calendar metadata",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(ctx context.Context, e *schedule.Engine, args []string) (any, error) {
				return e.GetAssetDataByCalendarName(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "calendar [calendarName]",
			Short: "Write the stored calendar file to stdout",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, db, err := setup()
				if err != nil {
					return err
				}
				defer db.Close()

				payload, err := newEngine(cfg, db).GetCalendarData(context.Background(), args[0])
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(payload.Body)
				return err
			},
		},
	)
	rootCmd.AddCommand(queryCmd)
}

// withEngine opens the database, runs q and prints its result as JSON
func withEngine(q func(ctx context.Context, e *schedule.Engine, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := q(cmd.Context(), newEngine(cfg, db), args)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
}

// parseDate parses a date string in either YYYY-MM-DD format or relative
// format (e.g., "+3d" for three days from now). Empty yields the zero time.
func parseDate(dateStr string, loc *time.Location) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, nil
	}

	// Try absolute date format first
	t, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "+7d" for 7 days from now, "-1d" for yesterday)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(dateStr[:len(dateStr)-1], "%d", &days); err == nil {
			return time.Now().In(loc).AddDate(0, 0, days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or +Nd for N days from now)", dateStr)
}
