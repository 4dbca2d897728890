package daemon

import (
	"fmt"
	"log/slog"

	"scingest/internal/catalog"
	"scingest/internal/config"
	"scingest/internal/fswatch"
	"scingest/internal/ingest"
	"scingest/internal/logging"
	"scingest/internal/metadata"
	"scingest/internal/metrics"
	"scingest/internal/services"
	"scingest/internal/watcher"
)

// NewLocator builds the artifact locator for cfg, attaching the external
// generator when one is configured.
func NewLocator(cfg *config.Config, logger *slog.Logger) *metadata.Locator {
	opts := []metadata.LocatorOption{metadata.WithLogger(logger)}
	if cfg.Metadata.GeneratorCommand != "" {
		gen := metadata.NewCommandGenerator(cfg.Metadata.GeneratorCommand, cfg.Metadata.GeneratorArgs, cfg.GeneratorTimeout())
		opts = append(opts, metadata.WithGenerator(gen))
	}
	return metadata.NewLocator(cfg.Beamtime.ScanDir, cfg.Metadata.DatasetPostfix, cfg.Metadata.DatablockPostfix, opts...)
}

// NewIngestor wires the catalog client, token source and locator for cfg.
func NewIngestor(cfg *config.Config, logger *slog.Logger, recorder *metrics.Recorder) *ingest.Ingestor {
	client := catalog.NewFromConfig(cfg, catalog.WithLogger(logger), catalog.WithMetrics(recorder))
	tokens := catalog.TokenSourceFromConfig(client, cfg)
	return ingest.New(NewLocator(cfg, logger), client, tokens, cfg.Beamtime.LedgerFile,
		ingest.WithLogger(logger),
		ingest.WithMetrics(recorder),
	)
}

// Build assembles the full daemon for one beamtime: filesystem watch,
// ingestion pipeline, supervisor and metrics.
func Build(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon requires config")
	}
	if err := cfg.ValidateBeamtime(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	fs, err := fswatch.New()
	if err != nil {
		return nil, services.Wrap(services.ErrWatchSetup, "daemon", "init watch backend", "unable to create filesystem watcher", err)
	}

	recorder := metrics.New()
	supervisor := watcher.New(cfg, fs, NewIngestor(cfg, logger, recorder),
		watcher.WithLogger(logger),
		watcher.WithMetrics(recorder),
	)
	d, err := New(cfg, supervisor, logger, WithMetrics(recorder), WithCloser(fs.Close))
	if err != nil {
		_ = fs.Close()
		return nil, err
	}
	return d, nil
}
