// Package main provides the entry point for the credit agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	credentialsPath string
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "credit_agent",
	Short: "Apply spreadsheet credits and debits in the portal",
	Long: `credit_agent reads member rows from a Google Sheets worksheet or a CSV export,
applies the listed credits and debits through the portal in a browser, and
clears every applied cell so an interrupted run can be resumed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	rootCmd.PersistentFlags().StringVar(&credentialsPath, "credentials-file", "", "Remembered credentials file (defaults to credentials.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
