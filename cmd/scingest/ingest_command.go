package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scingest/internal/config"
	"scingest/internal/daemon"
	"scingest/internal/metrics"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var model string
	var tokenFile string
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Post metadata JSON files to a catalog model",
		Long: "Posts each file as-is to <catalog url>/<Model>. The ledger is not " +
			"touched; use this for one-off corrections or models the watcher does not handle.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			model = strings.TrimSpace(model)
			if model == "" {
				return errors.New("--model is required")
			}
			if strings.TrimSpace(tokenFile) != "" {
				expanded, err := config.ExpandPath(tokenFile)
				if err != nil {
					return fmt.Errorf("resolve token file: %w", err)
				}
				cfg.Catalog.TokenFile = expanded
			}

			var recorder *metrics.Recorder
			if strings.TrimSpace(metricsFile) != "" {
				recorder = metrics.New()
			}
			ingestor := daemon.NewIngestor(cfg, ctx.commandLogger(cfg), recorder)
			submitted, err := ingestor.IngestFiles(cmd.Context(), model, args)
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d of %d file(s) to %s\n", submitted, len(args), model)
			if recorder != nil {
				if werr := writeMetricsFile(metricsFile, recorder); werr != nil {
					return errors.Join(err, werr)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Catalog model name, e.g. RawDatasets or OrigDatablocks")
	cmd.Flags().StringVarP(&tokenFile, "token-file", "p", "", "Read the access token from this file instead of logging in")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write submission metrics in Prometheus text format to this file (textfile collector)")
	return cmd
}

// writeMetricsFile replaces path atomically so a collector never reads a
// half-written exposition.
func writeMetricsFile(path string, recorder *metrics.Recorder) error {
	path, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve metrics file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".scingest-metrics-*")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := recorder.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}
