package runner

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/config"
	"github.com/jonathan/credit-applier/internal/pipeline"
	"github.com/jonathan/credit-applier/internal/portal"
	"github.com/jonathan/credit-applier/internal/store"
)

// SessionFactory starts a portal session for a run.
type SessionFactory func(ctx context.Context, cfg *config.RunConfig, logger *zap.Logger) (pipeline.Session, error)

// StoreFactory opens the record store of a run.
type StoreFactory func(ctx context.Context, cfg *config.RunConfig) (pipeline.RecordStore, error)

var _ pipeline.Session = (*portal.Chrome)(nil)

// ChromeSessions starts a headless Chrome session per run.
// CHROME_PATH selects a browser binary other than the one on PATH.
func ChromeSessions(ctx context.Context, cfg *config.RunConfig, logger *zap.Logger) (pipeline.Session, error) {
	opts := portal.DefaultOptions()
	opts.PortalURL = cfg.PortalURL
	opts.Headless = cfg.Headless
	opts.ExecPath = os.Getenv("CHROME_PATH")
	opts.ElementTimeout = cfg.ElementTimeout
	opts.SearchTimeout = cfg.SearchTimeout
	opts.SettleDelay = cfg.SettleDelay

	chrome, err := portal.NewChrome(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return chrome, nil
}

// FileStores opens a CSV store when a path is configured and a Google Sheets
// store otherwise.
func FileStores(ctx context.Context, cfg *config.RunConfig) (pipeline.RecordStore, error) {
	cols := store.DefaultColumns().WithOverrides(cfg.Columns)

	if cfg.CSVPath != "" {
		return store.NewCSV(cfg.CSVPath, cols), nil
	}

	sheets, err := store.NewSheets(ctx, store.SheetsOptions{
		SpreadsheetURL:  cfg.SpreadsheetURL,
		Worksheet:       cfg.WorksheetName,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Columns:         cols,
	})
	if err != nil {
		return nil, err
	}
	return sheets, nil
}
