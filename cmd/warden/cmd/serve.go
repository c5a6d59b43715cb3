package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/adapter/inbound/httpapi"
	"github.com/wardenhq/warden/internal/adapter/outbound/policyfile"
	"github.com/wardenhq/warden/internal/adapter/outbound/policystore"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain/decisionlog"
	"github.com/wardenhq/warden/internal/domain/evaluator"
	"github.com/wardenhq/warden/internal/domain/ledger"
	"github.com/wardenhq/warden/internal/domain/tooladapter"
	"github.com/wardenhq/warden/internal/service"
	"github.com/wardenhq/warden/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start Warden's HTTP gateway: load the policy corpus, begin
watching it for changes, and serve the tool-call, approval and admin
routes until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	logger, closeLog, err := newLogger(cfg.Server.LogLevel, cfg.Telemetry.LogsDir)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()
	if file := config.ConfigFileUsed(); file != "" {
		logger.Info("loaded config", "file", file)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	telemetryProvider, err := telemetry.New(signalCtx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = telemetryProvider.Shutdown(context.Background()) }()

	store := policystore.New()
	loader := policyfile.NewLoader()
	result, err := loader.LoadDirectory(cfg.Policy.Dir)
	if err != nil {
		return fmt.Errorf("load policy directory: %w", err)
	}
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			logger.Warn("policy load issue", "error", e)
		}
	}
	if err := store.Install(result.Docs, combineLoadErrors(result.Errors)); err != nil {
		return fmt.Errorf("install initial policy set: %w", err)
	}
	logger.Info("policy corpus loaded", "dir", cfg.Policy.Dir, "documents", len(result.Docs), "version", store.Version())

	reloadDebounce, err := time.ParseDuration(cfg.Policy.ReloadDebounce)
	if err != nil {
		reloadDebounce = 100 * time.Millisecond
	}
	watcher, err := policyfile.NewWatcher(policyfile.WatcherConfig{
		Dir:              cfg.Policy.Dir,
		DebounceInterval: reloadDebounce,
		SkipHidden:       true,
	}, logger)
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	watchErrCh := make(chan error, 1)
	go func() {
		watchErrCh <- watcher.Watch(signalCtx, func() { reloadPolicies(loader, store, cfg.Policy.Dir, logger) })
	}()
	defer func() { _ = watcher.Stop() }()

	decisionLog := decisionlog.New()
	ledgerInstance := ledger.New()
	eval := evaluator.New(store, ledgerInstance, decisionLog)
	registry := tooladapter.NewRegistry()

	gateway := service.New(eval, ledgerInstance, store, decisionLog, registry, telemetryProvider.Tracer(), logger)

	tokenTTL, err := time.ParseDuration(cfg.Auth.AdminTokenTTL)
	if err != nil {
		tokenTTL = 15 * time.Minute
	}
	authenticator := httpapi.NewAuthenticator(cfg.Auth.AdminAPIKeyHash, cfg.Auth.AdminTokenSecret, tokenTTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpapi.NewMetrics(reg)

	handler := httpapi.NewHandler(gateway, authenticator, metrics, logger)

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler.Routes(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.HTTPAddr)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
			return
		}
		close(serverErrCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-watchErrCh:
		if err != nil {
			logger.Error("policy watcher stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
		return err
	}
	logger.Info("warden stopped")
	return nil
}

// newLogger builds the process logger. When logsDir is set, log
// records go to both stderr and an append-only file under that
// directory; otherwise stderr only. The returned close func flushes
// nothing (slog has no buffering) but closes the file handle.
func newLogger(level, logsDir string) (*slog.Logger, func(), error) {
	writer := io.Writer(os.Stderr)
	closeFn := func() {}

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create logs directory: %w", err)
		}
		path := filepath.Join(logsDir, "warden.log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		writer = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	return logger, closeFn, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reloadPolicies re-reads cfg.Policy.Dir and installs the result,
// implementing the hot-reload half of the policy store's invariant: a
// directory that fails to parse entirely is rejected, keeping the
// previously installed snapshot live.
func reloadPolicies(loader *policyfile.Loader, store *policystore.Store, dir string, logger *slog.Logger) {
	result, err := loader.LoadDirectory(dir)
	if err != nil {
		logger.Error("policy reload failed", "error", err)
		return
	}
	if err := store.Install(result.Docs, combineLoadErrors(result.Errors)); err != nil {
		logger.Error("policy reload rejected", "error", err)
		return
	}
	logger.Info("policy corpus reloaded", "documents", len(result.Docs), "version", store.Version())
}

func combineLoadErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d file(s) failed to load: %w", len(errs), errs[0])
}
