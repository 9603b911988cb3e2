package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/credit-applier/internal/types"
)

// RunConfig is the resolved configuration of a single run.
// It is built from a merged Config and carries parsed values only.
type RunConfig struct {
	Credentials types.Credentials `json:"-"`
	PortalURL   string            `json:"portal_url" validate:"required,url"`

	SpreadsheetURL        string            `json:"spreadsheet_url,omitempty" validate:"required_without=CSVPath,excluded_with=CSVPath"`
	WorksheetName         string            `json:"worksheet_name,omitempty" validate:"required_with=SpreadsheetURL"`
	GoogleCredentialsFile string            `json:"-"`
	CSVPath               string            `json:"csv_path,omitempty" validate:"required_without=SpreadsheetURL"`
	Columns               map[string]string `json:"columns,omitempty"`

	Headless       bool          `json:"headless"`
	SearchTimeout  time.Duration `json:"search_timeout" validate:"gt=0"`
	ElementTimeout time.Duration `json:"element_timeout" validate:"gt=0"`
	SettleDelay    time.Duration `json:"settle_delay" validate:"gte=0"`
	YesToken       string        `json:"yes_token" validate:"required"`
}

// RunConfig parses the merged configuration into a RunConfig and validates it.
func (c *Config) RunConfig() (*RunConfig, error) {
	rc := &RunConfig{
		Credentials: types.Credentials{
			Login:    strings.TrimSpace(c.Login),
			Password: c.Password,
		},
		PortalURL:             strings.TrimSpace(c.PortalURL),
		SpreadsheetURL:        strings.TrimSpace(c.SpreadsheetURL),
		WorksheetName:         strings.TrimSpace(c.WorksheetName),
		GoogleCredentialsFile: c.GoogleCredentialsFile,
		CSVPath:               c.CSVPath,
		Columns:               c.Columns,
		Headless:              c.Headless == nil || *c.Headless,
		YesToken:              c.YesToken,
	}

	var err error
	if rc.SearchTimeout, err = parseDuration("search_timeout", c.SearchTimeout); err != nil {
		return nil, err
	}
	if rc.ElementTimeout, err = parseDuration("element_timeout", c.ElementTimeout); err != nil {
		return nil, err
	}
	if rc.SettleDelay, err = parseDuration("settle_delay", c.SettleDelay); err != nil {
		return nil, err
	}

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

// Validate checks the run configuration with its validate tags.
func (rc *RunConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(rc); err != nil {
		return fmt.Errorf("invalid run configuration: %w", describe(err))
	}
	return nil
}

// Source names the record source for logs and the journal.
func (rc *RunConfig) Source() string {
	if rc.CSVPath != "" {
		return rc.CSVPath
	}
	return rc.SpreadsheetURL + "#" + rc.WorksheetName
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config error: '%s' is not a duration: %w", name, err)
	}
	return d, nil
}

// fieldNames maps struct fields to the names users configure.
var fieldNames = map[string]string{
	"Login":          "login",
	"Password":       "password",
	"PortalURL":      "portal_url",
	"SpreadsheetURL": "spreadsheet_url",
	"WorksheetName":  "worksheet_name",
	"CSVPath":        "csv_path",
	"SearchTimeout":  "search_timeout",
	"ElementTimeout": "element_timeout",
	"SettleDelay":    "settle_delay",
	"YesToken":       "yes_token",
}

// describe turns validator errors into one line per offending field.
func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "required_without":
			msgs = append(msgs, "either spreadsheet_url or csv_path is required")
		case "excluded_with":
			msgs = append(msgs, "spreadsheet_url and csv_path are mutually exclusive")
		case "required_with":
			msgs = append(msgs, name+" is required with spreadsheet_url")
		case "gt":
			msgs = append(msgs, name+" must be positive")
		case "gte":
			msgs = append(msgs, name+" must be non-negative")
		case "url":
			msgs = append(msgs, name+" must be a URL")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return fmt.Errorf("%s: %w", strings.Join(dedupe(msgs), "; "), err)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
