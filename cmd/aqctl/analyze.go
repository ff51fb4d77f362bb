package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/bootstrap"
)

var (
	analyzeSensors []int
	analyzeStart   string
	analyzeEnd     string
	analyzeFields  string
	analyzeOutDir  string
	analyzeNoDB    bool
	analyzePublish bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Average history across sensors and render charts",
	Long: `Fetches history for every configured sensor, averages the readings per
day, renders the temperature and time scatter charts and writes a workbook.
Readings are stored in the database unless --no-db is given.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntSliceVar(&analyzeSensors, "sensors", nil, "sensor ids (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeStart, "start", "", "start date (YYYY/MM/DD)")
	analyzeCmd.Flags().StringVar(&analyzeEnd, "end", "", "end date (YYYY/MM/DD)")
	analyzeCmd.Flags().StringVar(&analyzeFields, "fields", "", "comma separated fields")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out-dir", "", "directory for charts and workbook")
	analyzeCmd.Flags().BoolVar(&analyzeNoDB, "no-db", false, "do not store readings")
	analyzeCmd.Flags().BoolVar(&analyzePublish, "publish", false, "publish averages over MQTT when configured")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	an := &cfg.Analysis
	if len(analyzeSensors) > 0 {
		an.SensorIDs = analyzeSensors
	}
	an.Start = orDefault(analyzeStart, an.Start)
	an.End = orDefault(analyzeEnd, an.End)
	an.Fields = orDefault(analyzeFields, an.Fields)
	an.OutputDir = orDefault(analyzeOutDir, an.OutputDir)

	opts := bootstrap.Options{Outputs: true, Database: !analyzeNoDB, MQTT: analyzePublish}
	if opts.Database {
		if err := ensureDir(cfg.DBPath); err != nil {
			return err
		}
	}
	app, err := bootstrap.New(cfg, newLogger(cfg), opts)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Service.RunAnalysis(cmd.Context(), an.Plan())
	printOutcomes(report.Sensors)
	if errors.Is(err, airquality.ErrNoSensorData) {
		return err
	}
	if err != nil {
		return fmt.Errorf("running analysis: %w", err)
	}

	fmt.Printf("\nAnalysis %s\n", report.ID)
	printTable(report.Average)
	for _, path := range report.Artifacts {
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}

func printOutcomes(sensors []airquality.SensorOutcome) {
	fmt.Printf("%-10s  %6s  %6s  %s\n", "sensor", "status", "rows", "message")
	for _, s := range sensors {
		msg := s.Message
		if s.Error != "" {
			msg = s.Error
		}
		fmt.Printf("%-10d  %6d  %6d  %s\n", s.SensorID, s.StatusCode, s.Rows, msg)
	}
}
