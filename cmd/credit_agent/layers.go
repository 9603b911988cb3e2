package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/config"
	"github.com/jonathan/credit-applier/internal/logging"
	"github.com/jonathan/credit-applier/internal/notify"
	"github.com/jonathan/credit-applier/internal/status"
)

// loadFileConfig loads and validates the --config file. No path yields an empty layer.
func loadFileConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	loaded, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return config.Config{}, err
	}
	return *loaded, nil
}

// lowerLayers merges the environment over the remembered credentials over
// the built-in defaults. An unreadable credentials file is reported and skipped.
func lowerLayers(credsPath string, warn io.Writer) config.Config {
	remembered, err := config.LoadCredentials(credsPath)
	if err != nil {
		_, _ = fmt.Fprintf(warn, "Warning: ignoring remembered credentials: %v\n", err)
	}

	base := remembered.Config()
	base = base.MergeWithDefaults(config.Defaults())

	env := config.FromEnv()
	return env.MergeWithDefaults(base)
}

// resolve layers the file config (with flag overrides already applied) over
// the lower layers.
func resolve(file config.Config, credsPath string) config.Config {
	merged := file.MergeWithDefaults(lowerLayers(credsPath, os.Stderr))
	if verbose {
		merged.Verbose = true
	}
	return merged
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// buildNotifier returns the console notifier (when console is set) plus the
// mailer when SMTP and recipients are configured.
func buildNotifier(cfg config.Config, console *status.Console, logger *zap.Logger) notify.Notifier {
	var notifiers notify.Multi
	if console != nil {
		notifiers = append(notifiers, notify.NewConsole(console))
	}

	mc := notify.MailerConfigFromEnv()
	if cfg.NotifyEmail != "" {
		mc.To = notify.SplitRecipients(cfg.NotifyEmail)
	}
	if mc.Enabled() {
		mailer, err := notify.NewMailer(mc)
		if err != nil {
			logger.Warn("e-mail notifications disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, mailer)
		}
	} else if len(mc.To) > 0 {
		logger.Warn("notify_email is set but SMTP_HOST/SMTP_FROM are not; e-mail notifications disabled")
	}
	return notifiers
}
