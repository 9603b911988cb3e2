package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/credit-applier/internal/config"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the remembered login and spreadsheet",
}

var (
	credsLogin          string
	credsPassword       string
	credsSpreadsheetURL string
	credsWorksheet      string
	credsGoogleCreds    string
)

var credentialsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Remember login, password and spreadsheet for later runs",
	Long: `Writes the given fields to the credentials file. Fields that are not given keep
their remembered value. The file is stored in plain text with owner-only permissions.`,
	RunE: runCredentialsSave,
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the remembered fields with the password masked",
	RunE:  runCredentialsShow,
}

var credentialsForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove the credentials file",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.SaveCredentials(credentialsPath, config.Remembered{}, false); err != nil {
			return err
		}
		fmt.Println("Remembered credentials removed.")
		return nil
	},
}

func init() {
	credentialsSaveCmd.Flags().StringVarP(&credsLogin, "login", "l", "", "Portal login")
	credentialsSaveCmd.Flags().StringVarP(&credsPassword, "password", "p", "", "Portal password")
	credentialsSaveCmd.Flags().StringVarP(&credsSpreadsheetURL, "spreadsheet-url", "s", "", "Google Sheets URL")
	credentialsSaveCmd.Flags().StringVarP(&credsWorksheet, "worksheet", "w", "", "Worksheet name")
	credentialsSaveCmd.Flags().StringVar(&credsGoogleCreds, "google-credentials", "", "Service account JSON file for Google Sheets")

	credentialsCmd.AddCommand(credentialsSaveCmd, credentialsShowCmd, credentialsForgetCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func runCredentialsSave(cmd *cobra.Command, _ []string) error {
	current, err := config.LoadCredentials(credentialsPath)
	if err != nil {
		return err
	}
	fields := config.Remembered{}
	if current != nil {
		fields = *current
	}

	flags := cmd.Flags()
	if flags.Changed("login") {
		fields.Login = strings.TrimSpace(credsLogin)
	}
	if flags.Changed("password") {
		fields.Password = credsPassword
	}
	if flags.Changed("spreadsheet-url") {
		fields.SpreadsheetURL = strings.TrimSpace(credsSpreadsheetURL)
	}
	if flags.Changed("worksheet") {
		fields.WorksheetName = strings.TrimSpace(credsWorksheet)
	}
	if flags.Changed("google-credentials") {
		fields.GoogleCredentialsFile = strings.TrimSpace(credsGoogleCreds)
	}
	if fields.Login == "" || fields.Password == "" {
		return fmt.Errorf("--login and --password are required (or must already be remembered)")
	}

	if err := config.SaveCredentials(credentialsPath, fields, true); err != nil {
		return err
	}
	fmt.Println("Credentials saved.")
	return nil
}

func runCredentialsShow(cmd *cobra.Command, _ []string) error {
	fields, err := config.LoadCredentials(credentialsPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if fields == nil {
		_, _ = fmt.Fprintln(out, "No credentials are remembered.")
		return nil
	}
	_, _ = fmt.Fprintf(out, "Login:       %s\n", fields.Login)
	_, _ = fmt.Fprintf(out, "Password:    %s\n", maskPassword(fields.Password))
	if fields.SpreadsheetURL != "" {
		_, _ = fmt.Fprintf(out, "Spreadsheet: %s\n", fields.SpreadsheetURL)
		_, _ = fmt.Fprintf(out, "Worksheet:   %s\n", fields.WorksheetName)
	}
	if fields.GoogleCredentialsFile != "" {
		_, _ = fmt.Fprintf(out, "Google key:  %s\n", fields.GoogleCredentialsFile)
	}
	return nil
}

// maskPassword keeps the last two characters of long passwords.
func maskPassword(p string) string {
	runes := []rune(p)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-2:])
}
