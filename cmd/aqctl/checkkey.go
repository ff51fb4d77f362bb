package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/airquality-aggregation/internal/bootstrap"
)

var checkKeyValue string

var checkKeyCmd = &cobra.Command{
	Use:   "check-key",
	Short: "Check that the sensor API key is accepted",
	RunE:  runCheckKey,
}

func init() {
	checkKeyCmd.Flags().StringVar(&checkKeyValue, "key", "", "API key to check (default PURPLEAIR_API_KEY)")
	rootCmd.AddCommand(checkKeyCmd)
}

func runCheckKey(cmd *cobra.Command, args []string) error {
	app, err := setup(bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Service.CheckKey(cmd.Context(), checkKeyValue)
	if err != nil {
		return fmt.Errorf("checking key: %w", err)
	}
	if !res.OK {
		return fmt.Errorf("key rejected: status %d: %s", res.StatusCode, res.Message)
	}

	fmt.Printf("Key accepted (type %s)\n", res.KeyType)
	return nil
}
