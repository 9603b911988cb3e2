// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/credit-applier/internal/schemas"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Portal
	Login     string `json:"login,omitempty"`      // Portal account login
	Password  string `json:"password,omitempty"`   // Portal account password
	PortalURL string `json:"portal_url,omitempty"` // Portal start page

	// Spreadsheet
	SpreadsheetURL        string            `json:"spreadsheet_url,omitempty"`         // Google Sheets sharing URL
	WorksheetName         string            `json:"worksheet_name,omitempty"`          // Worksheet (tab) title
	GoogleCredentialsFile string            `json:"google_credentials_file,omitempty"` // Service account JSON
	CSVPath               string            `json:"csv_path,omitempty"`                // Local CSV export instead of Sheets
	Columns               map[string]string `json:"columns,omitempty"`                 // Header label overrides

	// Behavior
	Remember       bool   `json:"remember,omitempty"`        // Keep form fields in the credentials file
	Headless       *bool  `json:"headless,omitempty"`        // Hide the browser window
	SearchTimeout  string `json:"search_timeout,omitempty"`  // Wait for a unique search hit
	ElementTimeout string `json:"element_timeout,omitempty"` // Wait for any page element
	SettleDelay    string `json:"settle_delay,omitempty"`    // Pause after opening the member list
	YesToken       string `json:"yes_token,omitempty"`       // Marker of flag categories
	Verbose        bool   `json:"verbose,omitempty"`         // Print detailed debug information

	// Infrastructure
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL journal, overrides journal_path
	JournalPath string `json:"journal_path,omitempty"` // SQLite journal file
	NotifyEmail string `json:"notify_email,omitempty"` // Comma separated summary recipients
	ListenAddr  string `json:"listen_addr,omitempty"`  // HTTP address for serve
}

// LoadConfig loads configuration from a JSON file.
// The document is checked against the embedded config schema before parsing.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}

	if err := schemas.Validate(schemas.ConfigSchema, data); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by RunConfig validation after merging.
func (c *Config) Validate() error {
	// Validate mutually exclusive fields
	if c.SpreadsheetURL != "" && c.CSVPath != "" {
		return fmt.Errorf("config error: 'spreadsheet_url' and 'csv_path' are mutually exclusive")
	}

	for name, value := range map[string]string{
		"search_timeout":  c.SearchTimeout,
		"element_timeout": c.ElementTimeout,
		"settle_delay":    c.SettleDelay,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config error: '%s' is not a duration: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}

	if c.YesToken != "" && strings.TrimSpace(c.YesToken) == "" {
		return fmt.Errorf("config error: 'yes_token' must not be blank")
	}

	// Validate file paths exist (if specified)
	if c.CSVPath != "" {
		if _, err := os.Stat(c.CSVPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: csv file not found: %s", c.CSVPath)
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: google credentials file not found: %s", c.GoogleCredentialsFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to layer the config file over the environment and the built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&result.Login, defaults.Login)
	fill(&result.Password, defaults.Password)
	fill(&result.PortalURL, defaults.PortalURL)
	fill(&result.GoogleCredentialsFile, defaults.GoogleCredentialsFile)
	fill(&result.SearchTimeout, defaults.SearchTimeout)
	fill(&result.ElementTimeout, defaults.ElementTimeout)
	fill(&result.SettleDelay, defaults.SettleDelay)
	fill(&result.YesToken, defaults.YesToken)
	fill(&result.DatabaseURL, defaults.DatabaseURL)
	fill(&result.JournalPath, defaults.JournalPath)
	fill(&result.NotifyEmail, defaults.NotifyEmail)
	fill(&result.ListenAddr, defaults.ListenAddr)

	// The store is chosen as a unit so a file naming a CSV export is not
	// combined with a spreadsheet from the environment.
	if result.SpreadsheetURL == "" && result.CSVPath == "" {
		result.SpreadsheetURL = defaults.SpreadsheetURL
		result.CSVPath = defaults.CSVPath
	}
	if result.SpreadsheetURL != "" {
		fill(&result.WorksheetName, defaults.WorksheetName)
	}

	if result.Headless == nil {
		result.Headless = defaults.Headless
	}

	if len(defaults.Columns) > 0 {
		merged := make(map[string]string, len(defaults.Columns)+len(result.Columns))
		for k, v := range defaults.Columns {
			merged[k] = v
		}
		for k, v := range result.Columns {
			merged[k] = v
		}
		result.Columns = merged
	}

	// Remaining bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
