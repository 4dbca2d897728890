package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"scingest/internal/daemon"
	"scingest/internal/services"
	"scingest/internal/testsupport"
	"scingest/internal/watcher"
)

type stubSupervisor struct {
	runErr  error
	stopped chan struct{}
	once    sync.Once
	status  watcher.Status
}

func newStubSupervisor(runErr error) *stubSupervisor {
	return &stubSupervisor{
		runErr:  runErr,
		stopped: make(chan struct{}),
		status:  watcher.Status{Beamtime: "99001234", State: watcher.StatePolling, Ingested: 3},
	}
}

func (s *stubSupervisor) Run(ctx context.Context) error {
	if s.runErr != nil {
		return s.runErr
	}
	select {
	case <-ctx.Done():
	case <-s.stopped:
	}
	return nil
}

func (s *stubSupervisor) Stop() { s.once.Do(func() { close(s.stopped) }) }

func (s *stubSupervisor) Status() watcher.Status { return s.status }

func TestDaemonStartStopReleasesLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, newStubSupervisor(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !d.Status().Running {
		t.Fatal("expected running status")
	}

	probe := flock.New(cfg.LockPath())
	if ok, _ := probe.TryLock(); ok {
		_ = probe.Unlock()
		t.Fatal("expected ledger lock to be held")
	}

	d.Stop()
	select {
	case <-d.Done():
	default:
		t.Fatal("expected supervisor to have returned after Stop")
	}
	if d.Status().Running {
		t.Fatal("expected stopped status")
	}
	ok, err := probe.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after Stop: ok=%v err=%v", ok, err)
	}
	_ = probe.Unlock()
}

func TestSecondDaemonOnSameLedgerIsRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, newStubSupervisor(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, newStubSupervisor(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = second.Start(context.Background())
	if err == nil {
		second.Stop()
		t.Fatal("expected lock conflict")
	}
	if !strings.Contains(err.Error(), "already ingesting") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDaemonSurfacesSupervisorFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fatal := services.Wrap(services.ErrIndexRead, "index", "read", "index missing", errors.New("no such file"))
	d, err := daemon.New(cfg, newStubSupervisor(fatal), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not return")
	}
	if !errors.Is(d.Err(), services.ErrIndexRead) {
		t.Fatalf("expected index read error, got %v", d.Err())
	}
	d.Stop()
}

func TestStatusEndpointRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMetricsBind("127.0.0.1:0"))
	cfg.Metrics.Token = "s3cret"
	d, err := daemon.New(cfg, newStubSupervisor(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	addr := d.Status().MetricsAddress
	if addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("expected bound address, got %q", addr)
	}

	anonymous, err := daemon.NewStatusClient(addr, "")
	if err != nil {
		t.Fatalf("NewStatusClient: %v", err)
	}
	if _, err := anonymous.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 without token, got %v", err)
	}

	client, err := daemon.NewStatusClient(addr, "s3cret")
	if err != nil {
		t.Fatalf("NewStatusClient: %v", err)
	}
	status, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !status.Running || status.Watcher.Beamtime != "99001234" || status.Watcher.Ingested != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Watcher.State != watcher.StatePolling {
		t.Fatalf("unexpected state: %q", status.Watcher.State)
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "scingest_") {
		t.Fatalf("expected scingest metrics, got %q", body)
	}
}

func TestStatusClientWithoutBind(t *testing.T) {
	client, err := daemon.NewStatusClient("  ", "")
	if err != nil || client != nil {
		t.Fatalf("expected nil client, got %v %v", client, err)
	}
	if _, err := client.Fetch(context.Background()); !daemon.IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestShutdownLetsInFlightScanFinish(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	fake.StallModel("RawDatasets", 800*time.Millisecond)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()), testsupport.WithTokenFile(testsupport.FakeToken))
	testsupport.WriteLines(t, cfg.Beamtime.IndexFile, "S1", "S2")
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1", "S2")

	d, err := daemon.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.Status().Watcher.State != watcher.StateIngesting {
		if time.Now().After(deadline) {
			t.Fatalf("watcher never started ingesting: %+v", d.Status().Watcher)
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	d.Stop()

	want := []string{"RawDatasets:S1", "OrigDatablocks:S1"}
	if got := fake.Models(); !reflect.DeepEqual(got, want) {
		t.Fatalf("submissions %v want %v", got, want)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "S1\n" {
		t.Fatalf("expected only the finished scan recorded, ledger %q", got)
	}
	if err := d.Err(); err != nil {
		t.Fatalf("supervisor error: %v", err)
	}
}

func TestCancelledBeforeStartIngestsNothing(t *testing.T) {
	fake := testsupport.NewFakeCatalog(t)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(fake.URL()), testsupport.WithTokenFile(testsupport.FakeToken))
	testsupport.WriteLines(t, cfg.Beamtime.IndexFile, "S1", "S2", "S3")
	testsupport.WriteArtifacts(t, cfg.Beamtime.ScanDir, "S1", "S2", "S3")

	d, err := daemon.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not return")
	}
	d.Stop()

	if n := len(fake.Submissions()); n != 0 {
		t.Fatalf("expected no submissions, got %d", n)
	}
	if got := testsupport.ReadFile(t, cfg.Beamtime.LedgerFile); got != "" {
		t.Fatalf("ledger must stay empty, got %q", got)
	}
}

func TestBuildRejectsIncompleteBeamtime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Beamtime.IndexFile = ""
	cfg.Beamtime.ID = ""
	if _, err := daemon.Build(cfg, nil); err == nil {
		t.Fatal("expected beamtime validation error")
	}
}
