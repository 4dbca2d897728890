//go:build linux

package watcher_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"scingest/internal/catalog"
	"scingest/internal/fswatch"
	"scingest/internal/ingest"
	"scingest/internal/metadata"
	"scingest/internal/testsupport"
	"scingest/internal/watcher"
)

func TestWatcherIngestsAppendedScansEndToEnd(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	testsupport.WriteLines(t, cfg.Beamtime.IndexFile, "S1")
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1", "S2")

	fs, err := fswatch.New()
	if err != nil {
		t.Fatalf("fswatch.New: %v", err)
	}
	client := catalog.NewFromConfig(cfg)
	locator := metadata.NewLocator(cfg.Beamtime.ScanDir, cfg.Metadata.DatasetPostfix, cfg.Metadata.DatablockPostfix)
	ing := ingest.New(locator, client, catalog.TokenSourceFromConfig(client, cfg), cfg.Beamtime.LedgerFile)
	w := watcher.New(cfg, fs, ing, watcher.WithPollTimeout(20*time.Millisecond))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	waitLedger(t, cfg.Beamtime.LedgerFile, "S1\n")
	testsupport.AppendLines(t, cfg.Beamtime.IndexFile, "S2")
	waitLedger(t, cfg.Beamtime.LedgerFile, "S1\nS2\n")

	w.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	want := []string{"RawDatasets:S1", "OrigDatablocks:S1", "RawDatasets:S2", "OrigDatablocks:S2"}
	if got := fake.Models(); !reflect.DeepEqual(got, want) {
		t.Fatalf("submissions %v want %v", got, want)
	}
	if fake.Logins() != 1 {
		t.Fatalf("expected a single login per run, got %d", fake.Logins())
	}
}

func waitLedger(t *testing.T, path, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if testsupport.ReadFile(t, path) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ledger never reached %q, have %q", want, testsupport.ReadFile(t, path))
}
