package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marklet/marklet/internal/build"
	"github.com/marklet/marklet/internal/config"
	"github.com/marklet/marklet/internal/errors"
	"github.com/marklet/marklet/internal/ports"
	"github.com/marklet/marklet/internal/server"
	"github.com/marklet/marklet/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the delivery server and rebuild bookmarklets on change",
	Long: `Start the bookmarklet delivery server. Assets are built once at startup
and rebuilt whenever a matching script changes; the served index page lists
one bookmarklet per asset and refreshes itself after each rebuild.

Examples:
  marklet serve
  marklet serve --port 8123 --no-open
  marklet serve --fallback-port=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 3300, "Port to serve on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Bool("fallback-port", true, "Probe subsequent ports when the default is occupied")
	serveCmd.Flags().Bool("no-open", false, "Don't open the browser automatically")
	serveCmd.Flags().String("salt", "", "Filename hash salt")
	serveCmd.Flags().Int("stretch-count", 0, "Filename hash stretching rounds")
	bindFlags(serveCmd.Flags(), map[string]string{
		"server.port":           "port",
		"server.host":           "host",
		"server.fallback_port":  "fallback-port",
		"server.no-open":        "no-open",
		"protect.salt":          "salt",
		"protect.stretch_count": "stretch-count",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.NewEnhancedError("Failed to load configuration", err,
			errors.ConfigSuggestions(cfgFile))
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger)
	if err := srv.Start(ctx); err != nil {
		return startupError(err, cfg)
	}
	defer srv.Close()

	fmt.Printf("Serving bookmarklets at %s\n", srv.Origin())

	pipeline := build.New(cfg, logger, srv)
	if err := pipeline.Run(ctx); err != nil {
		// The server stays up but not ready; the next successful
		// rebuild recovers it.
		logger.Warn(ctx, err, "initial build failed")
	}

	fw, err := watcher.New(300 * time.Millisecond)
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Stop()

	fw.AddFilter(watcher.SuffixFilter(cfg.Assets.Pattern))
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.OnError(func(watchErr error) {
		logger.Warn(ctx, watchErr, "file watcher")
	})
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		logger.Info(ctx, "assets changed, rebuilding", "changes", len(events))
		return pipeline.Run(ctx)
	})
	for _, path := range cfg.Assets.ScanPaths {
		if err := fw.AddRecursive(path); err != nil {
			logger.Warn(ctx, err, "watching path", "path", path)
		}
	}
	fw.Start(ctx)

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	return nil
}

// startupError enriches fatal startup failures with actionable suggestions.
func startupError(err error, cfg *config.Config) error {
	switch {
	case stderrors.Is(err, ports.ErrPortInUse):
		return errors.NewEnhancedError(
			fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
			err, errors.PortConflictSuggestions(cfg.Server.Port))
	case stderrors.Is(err, ports.ErrFallbackExhausted):
		return errors.NewEnhancedError(
			"Failed to find a free port", err,
			errors.FallbackExhaustedSuggestions(cfg.Server.Port, ports.MaxFallbackAttempts))
	default:
		return fmt.Errorf("starting server: %w", err)
	}
}
