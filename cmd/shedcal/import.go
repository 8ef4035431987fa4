package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/shedcal/internal/ingest"
)

var (
	importDataset string
	importName    string
	importURL     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import schedule files from disk",
}

var importCSVCmd = &cobra.Command{
	Use:   "csv [file]",
	Short: "Import machine friendly schedule rows",
	Long: `Imports a machine friendly CSV (area_name,start,finsh,stage,source). Columns
province and block are recognized as well; any other column is stored as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportCSV,
}

var importCalendarCmd = &cobra.Command{
	Use:   "calendar [file.ics]",
	Short: "Import an ICS calendar",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportCalendar,
}

func init() {
	importCSVCmd.Flags().StringVar(&importDataset, "dataset", "", "Dataset to import into (default from config)")
	importCalendarCmd.Flags().StringVar(&importName, "name", "", "Calendar name (default is the file name)")
	importCalendarCmd.Flags().StringVar(&importURL, "url", "", "Source URL to record for the calendar")
	importCmd.AddCommand(importCSVCmd, importCalendarCmd)
	rootCmd.AddCommand(importCmd)
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	dataset := importDataset
	if dataset == "" {
		dataset = cfg.GetDataset()
	}

	res, err := ingest.ImportCSV(context.Background(), db, dataset, f, cfg.GetLocation())
	if err != nil {
		return fmt.Errorf("importing %s: %w", args[0], err)
	}

	fmt.Printf("✓ Read %s rows, inserted %s into %s (duplicates skipped)\n",
		humanize.Comma(int64(res.Rows)), humanize.Comma(int64(res.Inserted)), dataset)
	return nil
}

func runImportCalendar(cmd *cobra.Command, args []string) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	name := importName
	if name == "" {
		name = filepath.Base(args[0])
	}

	asset, err := ingest.ImportCalendar(context.Background(), db, name, importURL, body)
	if err != nil {
		return fmt.Errorf("importing %s: %w", args[0], err)
	}

	suburbs := "no suburb data"
	if asset.HasSuburbs {
		suburbs = "with suburbs"
	}
	fmt.Printf("✓ Stored %s (%s, %d events, %s)\n", asset.Name, humanize.Bytes(uint64(asset.Size)), asset.EventCount, suburbs)
	return nil
}
