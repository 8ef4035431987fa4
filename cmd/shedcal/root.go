package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jgoulah/shedcal/internal/config"
	"github.com/jgoulah/shedcal/internal/database"
	"github.com/jgoulah/shedcal/internal/schedule"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "shedcal",
	Short: "Serve load-shedding schedules and calendars",
	Long: `shedcal stores load-shedding schedules and calendar files in a local SQLite
database and answers read-only queries over them: paginated record windows,
area and date-range lookups, distinct-area listings and calendar downloads.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB(cfg *config.Config) (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path, database.Options{FoldAreaCase: cfg.FoldAreaCase()})
}

// newEngine builds the query engine over db
func newEngine(cfg *config.Config, db *database.DB) *schedule.Engine {
	return schedule.New(db, cfg.GetDataset(), schedule.WithLocation(cfg.GetLocation()))
}

// setup loads the config and opens the database
func setup() (*config.Config, *database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, db, nil
}
