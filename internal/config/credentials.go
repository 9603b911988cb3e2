package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/credit-applier/internal/schemas"
)

// DefaultCredentialsPath is the remembered form fields file.
const DefaultCredentialsPath = "credentials.json"

// Remembered holds the form fields kept between runs when remember is on.
// The values are stored as entered; nothing is encrypted.
type Remembered struct {
	Login                 string `json:"login"`
	Password              string `json:"password"`
	SpreadsheetURL        string `json:"spreadsheet_url,omitempty"`
	WorksheetName         string `json:"worksheet_name,omitempty"`
	GoogleCredentialsFile string `json:"google_credentials_file,omitempty"`
}

// SaveCredentials writes the fields to path when remember is set and
// removes the file otherwise.
func SaveCredentials(path string, fields Remembered, remember bool) error {
	if path == "" {
		path = DefaultCredentialsPath
	}

	if !remember {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create credentials directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// LoadCredentials reads the remembered fields. A missing file is not an
// error and yields nil.
func LoadCredentials(path string) (*Remembered, error) {
	if path == "" {
		path = DefaultCredentialsPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse credentials file %s", path)
	}
	if err := schemas.Validate(schemas.CredentialsSchema, data); err != nil {
		return nil, fmt.Errorf("credentials file %s: %w", path, err)
	}

	var r Remembered
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return &r, nil
}

// Config returns the remembered fields as a Config layer.
func (r *Remembered) Config() Config {
	if r == nil {
		return Config{}
	}
	return Config{
		Login:                 r.Login,
		Password:              r.Password,
		SpreadsheetURL:        r.SpreadsheetURL,
		WorksheetName:         r.WorksheetName,
		GoogleCredentialsFile: r.GoogleCredentialsFile,
	}
}
