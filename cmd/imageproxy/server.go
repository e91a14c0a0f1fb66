package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sofatutor/imagegen-proxy/internal/catalog"
	"github.com/sofatutor/imagegen-proxy/internal/config"
	"github.com/sofatutor/imagegen-proxy/internal/history"
	"github.com/sofatutor/imagegen-proxy/internal/logging"
	"github.com/sofatutor/imagegen-proxy/internal/obfuscate"
	"github.com/sofatutor/imagegen-proxy/internal/server"
	"github.com/sofatutor/imagegen-proxy/internal/upstream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Server command flags
var (
	serverListenAddr     string
	serverLogLevel       string
	serverLogFile        string
	serverHistoryBackend string
	serverCatalogFile    string
	debugMode            bool
)

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the proxy server",
		Long:  `Start the image proxy using configuration from the environment and the optional .env file.`,
		RunE:  runServer,
	}
	cmd.Flags().StringVar(&serverListenAddr, "addr", "", "Address to listen on (overrides LISTEN_ADDR)")
	cmd.Flags().StringVar(&serverLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&serverLogFile, "log-file", "", "Path to log file (overrides LOG_FILE, default: stdout)")
	cmd.Flags().StringVar(&serverHistoryBackend, "history-backend", "", "History backend: file, redis or sqlite (overrides HISTORY_BACKEND)")
	cmd.Flags().StringVar(&serverCatalogFile, "catalog", "", "Model and style catalog file, .yaml or .toml (overrides CATALOG_FILE)")
	cmd.Flags().BoolVarP(&debugMode, "debug", "v", config.EnvBoolOrDefault("DEBUG", false), "Enable debug logging (overrides log-level)")
	return cmd
}

// applyServerFlags copies explicitly set flags into the environment so that
// config.New sees a single source of truth.
func applyServerFlags() error {
	overrides := map[string]string{
		"LISTEN_ADDR":     serverListenAddr,
		"LOG_LEVEL":       serverLogLevel,
		"LOG_FILE":        serverLogFile,
		"HISTORY_BACKEND": serverHistoryBackend,
		"CATALOG_FILE":    serverCatalogFile,
	}
	if debugMode {
		overrides["LOG_LEVEL"] = "debug"
	}
	for k, v := range overrides {
		if v == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := applyServerFlags(); err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil && !strings.Contains(err.Error(), "inappropriate ioctl for device") {
			fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
		}
	}()

	srv, store, err := buildServer(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Error closing history store", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-done:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// buildServer wires catalog, upstream client and history store into the HTTP
// front end. The caller owns the returned store.
func buildServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server.Server, history.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		loaded, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, nil, err
		}
		cat = loaded
		logger.Info("Loaded catalog", zap.String("path", cfg.CatalogFile),
			zap.Int("models", len(cat.Models())), zap.Int("styles", len(cat.Styles())))
	}

	store, err := history.NewStore(ctx, cfg.History)
	if err != nil {
		return nil, nil, err
	}

	client := upstream.NewClient(cfg.Upstream, cat, cfg.RequestTimeout, logger)

	logger.Info("Configuration loaded",
		zap.String("env", cfg.APIEnv),
		zap.String("upstream", obfuscate.URL(cfg.Upstream.BaseURL)),
		zap.String("upstream_key", obfuscate.Secret(cfg.Upstream.APIKey)),
		zap.String("master_key", obfuscate.MasterKey(cfg.MasterKey, config.OpenAccessKey)),
		zap.String("history", store.Backend()),
		zap.Duration("request_timeout", cfg.RequestTimeout))

	return server.New(cfg, cat, client, store, logger), store, nil
}
