package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))
	return tmpFile
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"login": "manager",
		"spreadsheet_url": "https://docs.google.com/spreadsheets/d/abc123/edit",
		"worksheet_name": "Июнь",
		"headless": false,
		"search_timeout": "2s",
		"columns": {"activity": "Активность"},
		"verbose": true
	}`

	cfg, err := LoadConfig(writeConfig(t, content))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "manager", cfg.Login)
	assert.Equal(t, "Июнь", cfg.WorksheetName)
	require.NotNil(t, cfg.Headless)
	assert.False(t, *cfg.Headless)
	assert.Equal(t, "2s", cfg.SearchTimeout)
	assert.Equal(t, "Активность", cfg.Columns["activity"])
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{ invalid json }`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_SchemaViolation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"headless": "yes", "max_bullets": 3}`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config error")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate_MutuallyExclusive(t *testing.T) {
	cfg := &Config{
		SpreadsheetURL: "https://docs.google.com/spreadsheets/d/abc/edit",
		CSVPath:        "june.csv",
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidate_Durations(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"unparsable", Config{SearchTimeout: "soon"}, "not a duration"},
		{"negative", Config{SettleDelay: "-1s"}, "non-negative"},
		{"valid", Config{ElementTimeout: "10s", SettleDelay: "0s"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_MissingFiles(t *testing.T) {
	err := (&Config{CSVPath: "/nonexistent/june.csv"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv file not found")

	err = (&Config{GoogleCredentialsFile: "/nonexistent/sa.json"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google credentials file not found")
}

func TestValidate_BlankYesToken(t *testing.T) {
	err := (&Config{YesToken: "  "}).Validate()
	assert.Error(t, err)
}

func TestMergeWithDefaults(t *testing.T) {
	headless := false
	cfg := Config{
		Login:   "file-login",
		CSVPath: "june.csv",
		Columns: map[string]string{"activity": "Активность"},
	}
	defaults := Config{
		Login:          "env-login",
		Password:       "env-password",
		SpreadsheetURL: "https://docs.google.com/spreadsheets/d/abc/edit",
		WorksheetName:  "Июнь",
		Headless:       &headless,
		YesToken:       "да",
		Columns:        map[string]string{"activity": "активность", "penalty": "Штраф"},
	}

	merged := cfg.MergeWithDefaults(defaults)

	assert.Equal(t, "file-login", merged.Login)
	assert.Equal(t, "env-password", merged.Password)
	assert.Equal(t, "june.csv", merged.CSVPath)
	assert.Empty(t, merged.SpreadsheetURL, "a configured csv store is not mixed with a spreadsheet")
	assert.Empty(t, merged.WorksheetName)
	require.NotNil(t, merged.Headless)
	assert.False(t, *merged.Headless)
	assert.Equal(t, "да", merged.YesToken)
	assert.Equal(t, "Активность", merged.Columns["activity"])
	assert.Equal(t, "Штраф", merged.Columns["penalty"])

	// Receiver is unchanged
	assert.Equal(t, "Активность", cfg.Columns["activity"])
	assert.Len(t, cfg.Columns, 1)
}

func TestMergeWithDefaults_StoreFromDefaults(t *testing.T) {
	cfg := Config{}
	merged := cfg.MergeWithDefaults(Config{
		SpreadsheetURL: "https://docs.google.com/spreadsheets/d/abc/edit",
		WorksheetName:  "Июнь",
	})
	assert.Equal(t, "Июнь", merged.WorksheetName)
	assert.NotEmpty(t, merged.SpreadsheetURL)
}

func TestMergeWithDefaults_EmptyDefaults(t *testing.T) {
	cfg := Config{Login: "a", Verbose: true}
	merged := cfg.MergeWithDefaults(Config{})
	assert.Equal(t, cfg.Login, merged.Login)
	assert.True(t, merged.Verbose)
	assert.Nil(t, merged.Headless)
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	require.NotNil(t, d.Headless)
	assert.True(t, *d.Headless)
	assert.Equal(t, "1s", d.SearchTimeout)
	assert.Equal(t, "да", d.YesToken)
	assert.Equal(t, "credit_agent.db", d.JournalPath)
	assert.NoError(t, d.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CREDIT_LOGIN", "env-login")
	t.Setenv("CREDIT_PASSWORD", "secret")
	t.Setenv("CSV_PATH", "june.csv")
	t.Setenv("HEADLESS", "false")
	t.Setenv("SEARCH_TIMEOUT", "3s")
	t.Setenv("SETTLE_DELAY", "later")

	cfg := FromEnv()
	assert.Equal(t, "env-login", cfg.Login)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "june.csv", cfg.CSVPath)
	require.NotNil(t, cfg.Headless)
	assert.False(t, *cfg.Headless)
	assert.Equal(t, "3s", cfg.SearchTimeout)
	assert.Empty(t, cfg.SettleDelay, "unparsable durations are ignored")
}
