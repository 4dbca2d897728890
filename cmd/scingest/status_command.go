package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scingest/internal/config"
	"scingest/internal/daemon"
	"scingest/internal/deps"
	"scingest/internal/ledger"
	"scingest/internal/metadata"
	"scingest/internal/services"
)

type waitingScan struct {
	Scan           string `json:"scan"`
	Dataset        string `json:"dataset_metadata,omitempty"`
	Datablock      string `json:"datablock_metadata,omitempty"`
	DatasetError   string `json:"dataset_error,omitempty"`
	DatablockError string `json:"datablock_error,omitempty"`
}

type beamtimeStatus struct {
	Beamtime     string         `json:"beamtime"`
	IndexFile    string         `json:"index_file"`
	LedgerFile   string         `json:"ledger_file"`
	IndexError   string         `json:"index_error,omitempty"`
	Indexed      int            `json:"indexed"`
	Ingested     int            `json:"ingested"`
	Waiting      []waitingScan  `json:"waiting"`
	Daemon       *daemon.Status `json:"daemon,omitempty"`
	Dependencies []deps.Status  `json:"dependencies"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index, ledger and waiting scans for the beamtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.ValidateBeamtime(); err != nil {
				return err
			}
			status, err := collectStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderBeamtimeStatus(cmd, status, limit)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum waiting scans to list (0 for all)")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config) (beamtimeStatus, error) {
	status := beamtimeStatus{
		Beamtime:     cfg.Beamtime.ID,
		IndexFile:    cfg.Beamtime.IndexFile,
		LedgerFile:   cfg.Beamtime.LedgerFile,
		Waiting:      []waitingScan{},
		Dependencies: deps.CheckConfig(cfg),
	}

	index, err := ledger.ReadIndex(cfg.Beamtime.IndexFile)
	if err != nil {
		if !errors.Is(err, services.ErrIndexRead) {
			return status, err
		}
		status.IndexError = err.Error()
	}
	done, err := ledger.Load(cfg.Beamtime.LedgerFile)
	if err != nil {
		return status, err
	}
	status.Indexed = len(index)
	status.Ingested = len(done)

	locator := metadata.NewLocator(cfg.Beamtime.ScanDir, cfg.Metadata.DatasetPostfix, cfg.Metadata.DatablockPostfix)
	for _, scan := range ledger.Diff(index, done) {
		entry := waitingScan{Scan: scan}
		entry.Dataset, entry.DatasetError = findArtifact(locator, scan, metadata.KindDataset)
		entry.Datablock, entry.DatablockError = findArtifact(locator, scan, metadata.KindDatablock)
		status.Waiting = append(status.Waiting, entry)
	}

	client, err := daemon.NewStatusClient(cfg.Metrics.Bind, cfg.Metrics.Token)
	if err == nil && client != nil {
		if live, err := client.Fetch(ctx); err == nil {
			status.Daemon = &live
		}
	}
	return status, nil
}

func findArtifact(locator *metadata.Locator, scan string, kind metadata.Kind) (string, string) {
	path, err := locator.Find(scan, kind)
	if err != nil {
		return "", err.Error()
	}
	return path, ""
}

func renderBeamtimeStatus(cmd *cobra.Command, status beamtimeStatus, limit int) {
	out := cmd.OutOrStdout()

	title := "Beamtime"
	if status.Beamtime != "" {
		title += " " + status.Beamtime
	}
	block := newStatusBlock(out, title)

	if status.IndexError != "" {
		block.add("Index file", statusError, "%s", status.IndexError)
	} else {
		block.add("Index file", statusOK, "%s (%d scans)", status.IndexFile, status.Indexed)
	}
	block.add("Ledger file", statusOK, "%s (%d ingested)", status.LedgerFile, status.Ingested)

	waitingKind := statusOK
	if len(status.Waiting) > 0 {
		waitingKind = statusWarn
	}
	block.add("Waiting", waitingKind, "%d scan(s)", len(status.Waiting))

	if d := status.Daemon; d != nil {
		w := d.Watcher
		msg := fmt.Sprintf("%s, pid %d, watching %s, %d ingested this run", w.State, d.PID, yesNo(w.Watching), w.Ingested)
		kind := statusOK
		if w.LastError != "" {
			kind = statusWarn
			msg += "; last error: " + w.LastError
		}
		block.add("Daemon", kind, "%s", msg)
	} else {
		block.add("Daemon", statusInfo, "not reachable")
	}

	for _, dep := range status.Dependencies {
		switch {
		case dep.Available:
			block.add(dep.Name, statusOK, "%s", dep.Command)
		case dep.Optional:
			block.add(dep.Name, statusInfo, "%s", dep.Detail)
		default:
			block.add(dep.Name, statusError, "%s", dep.Detail)
		}
	}

	fmt.Fprintln(out, block.String())

	if len(status.Waiting) == 0 {
		return
	}
	rows := waitingRows(status.Waiting, limit)
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Scan", "Dataset metadata", "Datablock metadata"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	))
	if hidden := len(status.Waiting) - len(rows); hidden > 0 {
		fmt.Fprintf(out, "... and %d more (use --limit 0 to list all)\n", hidden)
	}
}

func waitingRows(waiting []waitingScan, limit int) [][]string {
	if limit > 0 && len(waiting) > limit {
		waiting = waiting[:limit]
	}
	rows := make([][]string, 0, len(waiting))
	for i, scan := range waiting {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			scan.Scan,
			artifactLabel(scan.Dataset, scan.DatasetError),
			artifactLabel(scan.Datablock, scan.DatablockError),
		})
	}
	return rows
}

func artifactLabel(path, lookupErr string) string {
	if lookupErr != "" {
		return "error: " + lookupErr
	}
	if path == "" {
		return "missing (generator)"
	}
	return path
}
