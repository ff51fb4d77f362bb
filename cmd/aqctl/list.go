package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listSensor int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sensor readings",
	Long:  `Summarizes the readings stored in the database, or prints one sensor's rows with --sensor.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listSensor, "sensor", 0, "print the stored rows of one sensor")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if listSensor != 0 {
		table, err := db.LoadTable(cmd.Context(), listSensor, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("loading sensor %d: %w", listSensor, err)
		}
		if table.Len() == 0 {
			fmt.Printf("No data found for sensor %d\n", listSensor)
			return nil
		}
		printTable(table)
		return nil
	}

	sensors, err := db.ListSensors(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sensors: %w", err)
	}
	if len(sensors) == 0 {
		fmt.Println("No data found")
		return nil
	}

	fmt.Println("----------------------------------------------")
	fmt.Printf("%-10s  %6s  %-12s  %-12s\n", "Sensor", "Days", "First", "Last")
	fmt.Println("----------------------------------------------")
	for _, s := range sensors {
		fmt.Printf("%-10d  %6d  %-12s  %-12s\n", s.SensorID, s.Rows, s.First.Format("2006-01-02"), s.Last.Format("2006-01-02"))
	}
	fmt.Println("----------------------------------------------")
	return nil
}
