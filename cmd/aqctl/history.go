package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/bootstrap"
)

var (
	historyFields string
	historyStart  string
	historyEnd    string
	historySave   bool
	historyRaw    bool
)

var historyCmd = &cobra.Command{
	Use:   "history [sensor-id]",
	Short: "Fetch daily-averaged history for one sensor",
	Long: `Requests daily averages for one sensor between two dates (YYYY/MM/DD).
Dates and fields default to the configured analysis window.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFields, "fields", "", "comma separated fields")
	historyCmd.Flags().StringVar(&historyStart, "start", "", "start date (YYYY/MM/DD)")
	historyCmd.Flags().StringVar(&historyEnd, "end", "", "end date (YYYY/MM/DD)")
	historyCmd.Flags().BoolVar(&historySave, "save", false, "store the readings in the database")
	historyCmd.Flags().BoolVar(&historyRaw, "raw", false, "print the response body as received")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	sensorID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid sensor id %q", args[0])
	}

	app, err := setup(bootstrap.Options{Database: historySave})
	if err != nil {
		return err
	}
	defer app.Close()

	an := app.Config.Analysis
	req := airquality.HistoryRequest{
		SensorID: sensorID,
		Fields:   orDefault(historyFields, an.Fields),
		Start:    orDefault(historyStart, an.Start),
		End:      orDefault(historyEnd, an.End),
	}

	res, err := app.Service.History(cmd.Context(), req)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("request failed: status %d: %s", res.StatusCode, res.Message)
	}
	if historyRaw {
		fmt.Println(string(res.Payload))
		return nil
	}

	table, err := res.Table()
	if err != nil {
		return err
	}
	printTable(table)

	if historySave {
		n, err := app.DB.SaveTable(cmd.Context(), sensorID, table)
		if err != nil {
			return fmt.Errorf("saving readings: %w", err)
		}
		fmt.Printf("Stored %d new readings\n", n)
	}
	return nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func printTable(t airquality.Table) {
	header := []string{fmt.Sprintf("%-12s", "date")}
	for _, f := range t.Fields {
		header = append(header, fmt.Sprintf("%12s", f))
	}
	line := strings.Repeat("-", 13*len(header))

	fmt.Println(line)
	fmt.Println(strings.Join(header, " "))
	fmt.Println(line)
	for _, r := range t.Rows {
		cols := []string{fmt.Sprintf("%-12s", time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02"))}
		for _, v := range r.Values {
			if math.IsNaN(v) {
				cols = append(cols, fmt.Sprintf("%12s", "-"))
				continue
			}
			cols = append(cols, fmt.Sprintf("%12.2f", v))
		}
		fmt.Println(strings.Join(cols, " "))
	}
	fmt.Println(line)
	fmt.Printf("%d rows\n", t.Len())
}
