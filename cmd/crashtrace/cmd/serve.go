package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/config"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/report"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/store"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the debug HTTP server",
	Long: `Start the crashtrace debug server.

The server exposes live stack captures of its own process under /debug
and the stored crash reports under /api/v1/reports. Fatal conditions in
the server itself run through the termination pipeline and are persisted
before the process exits.

Examples:
  # Start with defaults (127.0.0.1:7457)
  crashtrace serve

  # Custom listen address, CORS off
  crashtrace serve --addr 0.0.0.0:9000 --no-cors`,
	RunE: runServe,
}

var (
	serveAddr   string
	serveNoCORS bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false,
		"disable CORS headers")
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}

	reportStore, err := store.NewSQLiteReportStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer func() {
		if closeErr := reportStore.Close(); closeErr != nil {
			logger.Warn("closing report store", slog.String("error", closeErr.Error()))
		}
	}()

	capturer := newCapturer(cfg)

	// Fatal conditions in the server process are captured and persisted
	// like any other crash, both in the store and as report files.
	fileSink := report.NewWriter(cfg.Report.Dir, cfg.Report.MaxFiles, logger.Logger)
	pipeline := newPipeline(cfg, capturer, logger,
		terminate.Sinks{reportStore, fileSink})
	pipeline.HandleSignals()
	defer pipeline.Recover()

	shutdownTimeout, _ := time.ParseDuration(cfg.Serve.ShutdownTimeout)

	serverCfg := web.DefaultConfig()
	serverCfg.Addr = cfg.Serve.Addr
	if serveAddr != "" {
		serverCfg.Addr = serveAddr
	}
	serverCfg.CORSOrigins = cfg.Serve.AllowedOrigins
	serverCfg.EnableCORS = !serveNoCORS
	if shutdownTimeout > 0 {
		serverCfg.ShutdownTimeout = shutdownTimeout
	}

	server := web.New(serverCfg, capturer, logger.Logger,
		web.WithReportStore(reportStore))

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.Bool("cors", serverCfg.EnableCORS),
	)

	// Pick up config edits while running; serve changes need a restart.
	if loader.ConfigFile() != "" {
		watcher, err := loader.Watch(func(next *config.Config) {
			logger.Info("configuration changed on disk; restart to apply server settings",
				slog.String("scope", next.Capture.Scope))
		}, logger.Logger)
		if err != nil {
			logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	<-sigCh

	logger.Info("shutting down server...")

	ctx := context.Background()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
