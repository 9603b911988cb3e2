package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/config"
	"github.com/jonathan/credit-applier/internal/journal"
	"github.com/jonathan/credit-applier/internal/pipeline"
	"github.com/jonathan/credit-applier/internal/runner"
	"github.com/jonathan/credit-applier/internal/status"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Apply every pending credit and debit once",
	Long: `Logs in to the portal, walks every spreadsheet row, applies the pending categories
and clears them in the sheet. Rows that could not be applied keep their values,
so running again resumes where the previous run stopped.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runCreditsCmd,
}

var (
	runLogin          string
	runPassword       string
	runSpreadsheetURL string
	runWorksheet      string
	runCSV            string
	runGoogleCreds    string
	runRemember       bool
	runHeadless       bool
	runYesToken       string
	runDatabaseURL    string
	runJournalPath    string
	runNotifyEmail    string
)

func init() {
	runCommand.Flags().StringVarP(&runLogin, "login", "l", "", "Portal login")
	runCommand.Flags().StringVarP(&runPassword, "password", "p", "", "Portal password")
	runCommand.Flags().StringVarP(&runSpreadsheetURL, "spreadsheet-url", "s", "", "Google Sheets URL (mutually exclusive with --csv)")
	runCommand.Flags().StringVarP(&runWorksheet, "worksheet", "w", "", "Worksheet name")
	runCommand.Flags().StringVar(&runCSV, "csv", "", "Path to a CSV export (mutually exclusive with --spreadsheet-url)")
	runCommand.Flags().StringVar(&runGoogleCreds, "google-credentials", "", "Service account JSON for Google Sheets")
	runCommand.Flags().BoolVar(&runRemember, "remember", false, "Remember login, password and spreadsheet for the next run")
	runCommand.Flags().BoolVar(&runHeadless, "headless", true, "Hide the browser window")
	runCommand.Flags().StringVar(&runYesToken, "yes-token", "", "Cell value that marks a bonus as granted")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL journal URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().StringVar(&runJournalPath, "journal", "", "SQLite journal file")
	runCommand.Flags().StringVar(&runNotifyEmail, "notify-email", "", "Comma separated summary e-mail recipients")

	rootCmd.AddCommand(runCommand)
}

// applyRunFlags overrides cfg with the flags that were explicitly set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("login") {
		cfg.Login = runLogin
	}
	if flags.Changed("password") {
		cfg.Password = runPassword
	}
	if flags.Changed("spreadsheet-url") {
		cfg.SpreadsheetURL = runSpreadsheetURL
		cfg.CSVPath = ""
	}
	if flags.Changed("worksheet") {
		cfg.WorksheetName = runWorksheet
	}
	if flags.Changed("csv") {
		cfg.CSVPath = runCSV
		cfg.SpreadsheetURL = ""
	}
	if flags.Changed("google-credentials") {
		cfg.GoogleCredentialsFile = runGoogleCreds
	}
	if flags.Changed("remember") {
		cfg.Remember = runRemember
	}
	if flags.Changed("headless") {
		headless := runHeadless
		cfg.Headless = &headless
	}
	if flags.Changed("yes-token") {
		cfg.YesToken = runYesToken
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if flags.Changed("journal") {
		cfg.JournalPath = runJournalPath
	}
	if flags.Changed("notify-email") {
		cfg.NotifyEmail = runNotifyEmail
	}
}

func runCreditsCmd(cmd *cobra.Command, _ []string) error {
	// Step 1: Load config file if provided
	file, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}

	// Step 2: Apply CLI overrides, then environment, remembered fields and defaults
	applyRunFlags(cmd, &file)
	if file.SpreadsheetURL != "" && file.CSVPath != "" {
		return fmt.Errorf("--spreadsheet-url and --csv are mutually exclusive; provide only one")
	}
	cfg := resolve(file, credentialsPath)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Step 3: Validate the run configuration
	rc, err := cfg.RunConfig()
	if err != nil {
		return err
	}

	// Step 4: Remember or forget the form fields
	if cfg.Remember || cmd.Flags().Changed("remember") {
		fields := config.Remembered{
			Login:                 rc.Credentials.Login,
			Password:              rc.Credentials.Password,
			SpreadsheetURL:        rc.SpreadsheetURL,
			WorksheetName:         rc.WorksheetName,
			GoogleCredentialsFile: rc.GoogleCredentialsFile,
		}
		if err := config.SaveCredentials(credentialsPath, fields, cfg.Remember); err != nil {
			logger.Warn("failed to update remembered credentials", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 5: Open the journal
	j, err := journal.Open(ctx, cfg.DatabaseURL, cfg.JournalPath)
	if err != nil {
		logger.Warn("journal unavailable, run is not recorded", zap.Error(err))
		j = journal.Nop{}
	}
	defer func() { _ = j.Close() }()

	console := status.NewConsole(os.Stdout)
	ctrl := runner.New(runner.Options{
		Journal:  j,
		Notifier: buildNotifier(cfg, console, logger),
		Logger:   logger,
	})

	logger.Debug("starting run", zap.String("source", rc.Source()), zap.Bool("headless", rc.Headless))
	_, err = ctrl.Execute(ctx, rc, console)
	if err != nil {
		if pipeline.IsAborted(err) {
			return fmt.Errorf("run aborted: %w", err)
		}
		return err
	}
	return nil
}
