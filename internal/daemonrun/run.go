package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"scingest/internal/config"
	"scingest/internal/daemon"
	"scingest/internal/deps"
	"scingest/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Logger replaces the config-derived logger (tests).
	Logger *slog.Logger
}

// Run watches the configured beamtime until SIGINT/SIGTERM, cmdCtx ends, or
// the supervisor stops on an index or ledger failure, which is returned.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		if opts.LogLevel != "" {
			cfg.Logging.Level = opts.LogLevel
		}
		built, err := logging.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = built
	}
	logger = logger.With(logging.String(logging.FieldBeamtime, cfg.Beamtime.ID))

	logDependencySnapshot(logger, cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logging.PruneConfiguredLogs(logger, cfg)

	if cfg.Logging.Dir != "" {
		pidPath := filepath.Join(cfg.Logging.Dir, pidFileName(cfg))
		if err := writePIDFile(pidPath); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(pidPath)
	}

	d, err := daemon.Build(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other scingest watches this beamtime"),
		)
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("scingest daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		d.Stop()
		return nil
	case <-d.Done():
		d.Stop()
		return d.Err()
	}
}

func pidFileName(cfg *config.Config) string {
	if cfg.Beamtime.ID == "" {
		return "scingest.pid"
	}
	return "scingest-" + cfg.Beamtime.ID + ".pid"
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("catalog_url", cfg.Catalog.URL),
		logging.Bool("token_file_configured", cfg.Catalog.TokenFile != ""),
		logging.Bool("credential_file_configured", cfg.Catalog.CredentialFile != ""),
		logging.Int("max_request_tries", cfg.Catalog.MaxRequestTriesNumber),
	}
	for _, status := range deps.CheckConfig(cfg) {
		key := deps.Key(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_command", status.Command),
		)
	}
	logger.Info("dependency snapshot", attrs...)
}
