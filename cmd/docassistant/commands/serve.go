package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/kernel"
	"github.com/spf13/cobra"

	// Blank import only; the package has no init side effects. Its
	// collectors are constructed by pkg/kernel.
	_ "github.com/docassistant/docassistant/pkg/metrics/prometheus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docassistant server",
	Long: `Start the docassistant HTTP server: chat, file browsing, search and
the document index watcher all run in this process until it receives
SIGINT or SIGTERM.

Examples:
  # Start with the default config location
  docassistant serve

  # Start with a custom config file
  docassistant serve --config /etc/docassistant/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("configuration loaded", "source", configSource(GetConfigFile()))
	fmt.Printf("docassistant %s starting on %s:%d\n", Version, cfg.Server.Host, cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k, err := kernel.New(ctx, cfg, Version)
	if err != nil {
		return fmt.Errorf("failed to start kernel: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- k.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}
