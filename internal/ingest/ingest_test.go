package ingest_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"scingest/internal/catalog"
	"scingest/internal/config"
	"scingest/internal/ingest"
	"scingest/internal/metadata"
	"scingest/internal/services"
	"scingest/internal/testsupport"
)

func newIngestor(t *testing.T, cfg *config.Config) *ingest.Ingestor {
	t.Helper()
	client := catalog.NewFromConfig(cfg)
	tokens := catalog.TokenSourceFromConfig(client, cfg)
	locator := metadata.NewLocator(cfg.Beamtime.ScanDir, cfg.Metadata.DatasetPostfix, cfg.Metadata.DatablockPostfix)
	return ingest.New(locator, client, tokens, cfg.Beamtime.LedgerFile)
}

func TestIngestScanSubmitsDatasetThenDatablock(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1")

	res, err := newIngestor(t, cfg).IngestScan(context.Background(), "S1")
	if err != nil {
		t.Fatalf("IngestScan: %v", err)
	}
	if res.Partial() || len(res.Submitted) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	want := []string{"RawDatasets:S1", "OrigDatablocks:S1"}
	if got := fake.Models(); !reflect.DeepEqual(got, want) {
		t.Fatalf("submissions %v want %v", got, want)
	}
	for _, s := range fake.Submissions() {
		if s.Token != testsupport.FakeToken {
			t.Fatalf("submission without token: %+v", s)
		}
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "S1\n" {
		t.Fatalf("unexpected ledger %q", got)
	}
}

func TestIngestScanLoginRejected(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.RejectLogin(http.StatusUnauthorized)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1")

	_, err := newIngestor(t, cfg).IngestScan(context.Background(), "S1")
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if n := len(fake.Submissions()); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "" {
		t.Fatalf("scan must not be recorded, ledger %q", got)
	}
}

func TestIngestScanServerErrorStillRecordsScan(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.FailModel("RawDatasets", http.StatusInternalServerError, "db down")
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()), testsupport.WithRetry(2))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1")

	res, err := newIngestor(t, cfg).IngestScan(context.Background(), "S1")
	if err != nil {
		t.Fatalf("IngestScan: %v", err)
	}
	if !res.Partial() {
		t.Fatalf("expected partial result, got %+v", res)
	}
	failure := res.Failed[metadata.KindDataset]
	if failure == nil || !strings.Contains(failure.Error(), "db down") {
		t.Fatalf("expected db down failure, got %v", failure)
	}
	if !reflect.DeepEqual(res.Submitted, []metadata.Kind{metadata.KindDatablock}) {
		t.Fatalf("datablock must still be submitted: %+v", res)
	}
	// two dataset attempts then one datablock
	if got := len(fake.Submissions()); got != 3 {
		t.Fatalf("expected 3 submissions, got %d", got)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "S1\n" {
		t.Fatalf("unexpected ledger %q", got)
	}
}

func TestIngestScanLogsServerError(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.FailModel("RawDatasets", http.StatusInternalServerError, "db down")
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := catalog.NewFromConfig(cfg)
	locator := metadata.NewLocator(cfg.Beamtime.ScanDir, cfg.Metadata.DatasetPostfix, cfg.Metadata.DatablockPostfix)
	ing := ingest.New(locator, client, catalog.TokenSourceFromConfig(client, cfg), cfg.Beamtime.LedgerFile, ingest.WithLogger(logger))

	if _, err := ing.IngestScan(context.Background(), "S1"); err != nil {
		t.Fatalf("IngestScan: %v", err)
	}

	found := false
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode log line %q: %v", scanner.Text(), err)
		}
		if record["level"] == "ERROR" && record["component"] == "ingest" && strings.Contains(scanner.Text(), "db down") {
			if record["model"] != "RawDatasets" || record["scan"] != "S1" {
				t.Fatalf("error record lacks model or scan: %v", record)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an ERROR record from ingest mentioning db down, got:\n%s", buf.String())
	}
}

func TestIngestScanCancelledBeforeSubmissionIsNotRecorded(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()), testsupport.WithTokenFile(testsupport.FakeToken))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newIngestor(t, cfg).IngestScan(ctx, "S1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := len(fake.Submissions()); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "" {
		t.Fatalf("scan must not be recorded, ledger %q", got)
	}
}

func TestIngestScanCancelledDuringSubmissionIsNotRecorded(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.StallModel("RawDatasets", 500*time.Millisecond)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()), testsupport.WithTokenFile(testsupport.FakeToken))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := newIngestor(t, cfg).IngestScan(ctx, "S1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "" {
		t.Fatalf("interrupted scan must not be recorded, ledger %q", got)
	}
}

func TestIngestScanWithoutArtifactsIsRecorded(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))

	res, err := newIngestor(t, cfg).IngestScan(context.Background(), "S9")
	if err != nil {
		t.Fatalf("IngestScan: %v", err)
	}
	if len(res.Skipped) != 2 || len(res.Submitted) != 0 {
		t.Fatalf("expected both kinds skipped, got %+v", res)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "S9\n" {
		t.Fatalf("unexpected ledger %q", got)
	}
}

func TestIngestScanUsesGeneratorOutput(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	generated := testsupport.WriteArtifact(t, testsupport.BaseDir(cfg), "generated.json", `{"pid":"S5"}`)

	gen := metadata.GeneratorFunc(func(_ context.Context, req metadata.Request) (string, error) {
		if req.Kind == metadata.KindDataset {
			return generated, nil
		}
		return "", nil
	})
	client := catalog.NewFromConfig(cfg)
	locator := metadata.NewLocator(cfg.Beamtime.ScanDir, ".scan*", ".origindatablock*", metadata.WithGenerator(gen))
	ing := ingest.New(locator, client, catalog.TokenSourceFromConfig(client, cfg), cfg.Beamtime.LedgerFile)

	res, err := ing.IngestScan(context.Background(), "S5")
	if err != nil {
		t.Fatalf("IngestScan: %v", err)
	}
	if !reflect.DeepEqual(res.Submitted, []metadata.Kind{metadata.KindDataset}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := fake.Models(); !reflect.DeepEqual(got, []string{"RawDatasets:S5"}) {
		t.Fatalf("unexpected submissions %v", got)
	}
}

func TestIngestScanLedgerWriteFailurePropagates(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	cfg.Beamtime.LedgerFile = cfg.Beamtime.ScanDir // a directory cannot be appended to

	_, err := newIngestor(t, cfg).IngestScan(context.Background(), "S1")
	if !errors.Is(err, services.ErrLedgerWrite) {
		t.Fatalf("expected ErrLedgerWrite, got %v", err)
	}
}

func TestIngestScanResetsTokenOnUnauthorizedSubmission(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.FailModel("RawDatasets", http.StatusUnauthorized, "token expired")
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()))
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1", "S2")
	ing := newIngestor(t, cfg)

	for _, scan := range []string{"S1", "S2"} {
		if _, err := ing.IngestScan(context.Background(), scan); err != nil {
			t.Fatalf("IngestScan(%s): %v", scan, err)
		}
	}
	if got := fake.Logins(); got != 2 {
		t.Fatalf("expected a fresh login after 401, got %d logins", got)
	}
}

func TestIngestFilesPostsToModel(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()), testsupport.WithTokenFile(testsupport.FakeToken))
	dir := t.TempDir()
	a := testsupport.WriteArtifact(t, dir, "a.json", `{"pid":"A"}`)
	b := testsupport.WriteArtifact(t, dir, "b.json", `{"pid":"B"}`)

	n, err := newIngestor(t, cfg).IngestFiles(context.Background(), "Samples", []string{a, filepath.Join(dir, "missing.json"), b})
	if n != 2 {
		t.Fatalf("expected 2 successes, got %d", n)
	}
	if err == nil || !strings.Contains(err.Error(), "missing.json") {
		t.Fatalf("expected error naming the missing file, got %v", err)
	}
	if got := fake.Models(); !reflect.DeepEqual(got, []string{"Samples:A", "Samples:B"}) {
		t.Fatalf("unexpected submissions %v", got)
	}
	if fake.Logins() != 0 {
		t.Fatal("token file must bypass login")
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "" {
		t.Fatalf("model ingest must not touch the ledger, got %q", got)
	}
}
