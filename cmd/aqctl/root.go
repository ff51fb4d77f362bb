package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/i474232898/airquality-aggregation/internal/bootstrap"
	"github.com/i474232898/airquality-aggregation/internal/config"
	"github.com/i474232898/airquality-aggregation/internal/database"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "aqctl",
	Short: "Fetch, store and average air-quality sensor history",
	Long: `aqctl talks to the PurpleAir sensor API and a STAC catalog.
It fetches daily-averaged sensor history, averages readings across sensors,
renders charts and a workbook, and keeps readings in a local SQLite database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "analysis YAML file (overrides ANALYSIS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default from DB_PATH or ./airquality.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from LOG_LEVEL)")
}

// getConfigPath returns the analysis YAML path, --config first
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return os.Getenv("ANALYSIS_CONFIG")
}

// loadConfig reads the environment, applies the config file and the
// --db override.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadFile(getConfigPath())
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.AppConfig) logger.Logger {
	return logger.New(cfg.LogLevel, cfg.Env)
}

// setup loads the config and wires the application.
func setup(opts bootstrap.Options) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.Database {
		if err := ensureDir(cfg.DBPath); err != nil {
			return nil, err
		}
	}
	return bootstrap.New(cfg, newLogger(cfg), opts)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := ensureDir(cfg.DBPath); err != nil {
		return nil, err
	}
	return database.New(cfg.DBPath)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	return nil
}
