package config

import (
	"os"
	"strconv"
	"time"

	"github.com/jonathan/credit-applier/internal/journal"
	"github.com/jonathan/credit-applier/internal/portal"
	"github.com/jonathan/credit-applier/internal/types"
)

// DefaultListenAddr is where serve listens unless configured otherwise.
const DefaultListenAddr = "127.0.0.1:8080"

// Defaults returns the built-in configuration.
func Defaults() Config {
	headless := true
	return Config{
		PortalURL:      portal.DefaultPortalURL,
		Headless:       &headless,
		SearchTimeout:  portal.DefaultSearchTimeout.String(),
		ElementTimeout: portal.DefaultElementTimeout.String(),
		SettleDelay:    portal.DefaultSettleDelay.String(),
		YesToken:       types.DefaultYesToken,
		JournalPath:    journal.DefaultPath,
		ListenAddr:     DefaultListenAddr,
	}
}

// FromEnv reads configuration from environment variables.
// Variables that are unset leave the field empty.
//
//	CREDIT_LOGIN, CREDIT_PASSWORD, PORTAL_URL, SPREADSHEET_URL, WORKSHEET_NAME,
//	GOOGLE_APPLICATION_CREDENTIALS, CSV_PATH, YES_TOKEN, HEADLESS,
//	SEARCH_TIMEOUT, ELEMENT_TIMEOUT, SETTLE_DELAY,
//	DATABASE_URL, JOURNAL_PATH, NOTIFY_EMAIL, LISTEN_ADDR
func FromEnv() Config {
	cfg := Config{
		Login:                 os.Getenv("CREDIT_LOGIN"),
		Password:              os.Getenv("CREDIT_PASSWORD"),
		PortalURL:             os.Getenv("PORTAL_URL"),
		SpreadsheetURL:        os.Getenv("SPREADSHEET_URL"),
		WorksheetName:         os.Getenv("WORKSHEET_NAME"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		CSVPath:               os.Getenv("CSV_PATH"),
		YesToken:              os.Getenv("YES_TOKEN"),
		SearchTimeout:         envDuration("SEARCH_TIMEOUT"),
		ElementTimeout:        envDuration("ELEMENT_TIMEOUT"),
		SettleDelay:           envDuration("SETTLE_DELAY"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		JournalPath:           os.Getenv("JOURNAL_PATH"),
		NotifyEmail:           os.Getenv("NOTIFY_EMAIL"),
		ListenAddr:            os.Getenv("LISTEN_ADDR"),
	}

	if value := os.Getenv("HEADLESS"); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			cfg.Headless = &b
		}
	}

	return cfg
}

// envDuration returns the variable only when it parses as a duration.
func envDuration(key string) string {
	value := os.Getenv(key)
	if value == "" {
		return ""
	}
	if _, err := time.ParseDuration(value); err != nil {
		return ""
	}
	return value
}
