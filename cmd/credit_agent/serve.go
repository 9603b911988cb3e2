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
	"github.com/jonathan/credit-applier/internal/runner"
	"github.com/jonathan/credit-applier/internal/server"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	Long: `Start an HTTP server that starts runs, streams their status lines and lists the journal.
Request bodies override the configuration the server was started with.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (defaults to LISTEN_ADDR or "+config.DefaultListenAddr+")")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	file, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		file.ListenAddr = serveAddr
	}
	cfg := resolve(file, credentialsPath)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	httpCfg, err := config.NewServerConfig()
	if err != nil {
		return fmt.Errorf("failed to create server config: %w", err)
	}
	if httpCfg.APIToken == "" {
		logger.Warn("API_TOKEN is not set; the API is open to anyone who can reach " + cfg.ListenAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	j, err := journal.Open(ctx, cfg.DatabaseURL, cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = j.Close() }()

	ctrl := runner.New(runner.Options{
		Journal:  j,
		Notifier: buildNotifier(cfg, nil, logger),
		Logger:   logger,
	})

	srv, err := server.New(server.Config{
		Addr:       cfg.ListenAddr,
		Base:       cfg,
		Controller: ctrl,
		HTTP:       httpCfg,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("serving", zap.String("addr", cfg.ListenAddr), zap.Strings("origins", httpCfg.AllowedOrigins))
	return srv.Start(ctx)
}
