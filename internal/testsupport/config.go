package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scingest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config for beamtime "99001234" whose scan directory,
// index, ledger and credential file live in a fresh temp directory. Debounce
// is zero and the poll timeout short so loops turn over quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Beamtime.ID = "99001234"
	cfgVal.Beamtime.ScanDir = filepath.Join(base, "raw")
	cfgVal.Beamtime.IndexFile = filepath.Join(cfgVal.Beamtime.ScanDir, "scicat-datasets-99001234.lst")
	cfgVal.Beamtime.LedgerFile = filepath.Join(cfgVal.Beamtime.ScanDir, "scicat-ingested-datasets-99001234.lst")
	cfgVal.Beamtime.Debounce = 0
	cfgVal.Beamtime.PollTimeout = 1
	cfgVal.Beamtime.StopGraceMS = 10
	cfgVal.Catalog.CredentialFile = filepath.Join(base, "credential")
	cfgVal.Catalog.MaxRequestTriesNumber = 1
	cfgVal.Catalog.RequestRetryInterval = 0
	cfgVal.Logging.Dir = filepath.Join(base, "logs")

	if err := os.MkdirAll(cfgVal.Beamtime.ScanDir, 0o755); err != nil {
		t.Fatalf("mkdir scan dir: %v", err)
	}
	if err := os.WriteFile(cfgVal.Catalog.CredentialFile, []byte(FakePassword+"\n"), 0o600); err != nil {
		t.Fatalf("write credential: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCatalogURL points the config at a (fake) catalog.
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.URL = url
	}
}

// WithRetry sets the submission attempt ceiling; the interval stays zero.
func WithRetry(tries int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.MaxRequestTriesNumber = tries
	}
}

// WithTokenFile writes token to a file and configures it.
func WithTokenFile(token string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "token")
		if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
			b.t.Fatalf("write token: %v", err)
		}
		b.cfg.Catalog.TokenFile = path
	}
}

// WithStubGenerator writes a shell script that prints the path given by
// output and configures it as the metadata generator.
func WithStubGenerator(output string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "generate-metadata")
		script := []byte("#!/bin/sh\necho '" + output + "'\n")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write stub generator: %v", err)
		}
		b.cfg.Metadata.GeneratorCommand = target
	}
}

// WithMetricsBind enables the metrics listener on addr.
func WithMetricsBind(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Bind = addr
	}
}

// BaseDir exposes the temp root for callers that need extra paths.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Beamtime.ScanDir)
}
