package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	if err := c.normalizeBeamtime(); err != nil {
		return err
	}
	c.normalizeMetadata()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeCatalog() error {
	if value, ok := os.LookupEnv("SCINGEST_CATALOG_URL"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.URL = value
	}
	c.Catalog.URL = strings.TrimSpace(c.Catalog.URL)
	if c.Catalog.URL == "" {
		c.Catalog.URL = defaultCatalogURL
	}
	c.Catalog.Username = strings.TrimSpace(c.Catalog.Username)
	if c.Catalog.Username == "" {
		c.Catalog.Username = defaultUsername
	}

	var err error
	if c.Catalog.CredentialFile, err = expandPath(strings.TrimSpace(c.Catalog.CredentialFile)); err != nil {
		return fmt.Errorf("catalog.credential_file: %w", err)
	}
	if c.Catalog.TokenFile == "" {
		if value, ok := os.LookupEnv("SCINGEST_TOKEN_FILE"); ok {
			c.Catalog.TokenFile = value
		}
	}
	if c.Catalog.TokenFile, err = expandPath(strings.TrimSpace(c.Catalog.TokenFile)); err != nil {
		return fmt.Errorf("catalog.token_file: %w", err)
	}

	if len(c.Catalog.RequestHeaders) == 0 {
		c.Catalog.RequestHeaders = DefaultRequestHeaders()
	}
	if c.Catalog.MaxRequestTriesNumber <= 0 {
		c.Catalog.MaxRequestTriesNumber = defaultMaxRequestTriesNumber
	}
	if c.Catalog.RequestRetryInterval < 0 {
		c.Catalog.RequestRetryInterval = 0
	}
	if c.Catalog.RequestTimeout <= 0 {
		c.Catalog.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

func (c *Config) normalizeBeamtime() error {
	c.Beamtime.ID = strings.TrimSpace(c.Beamtime.ID)
	if strings.TrimSpace(c.Beamtime.ScanDir) == "" {
		c.Beamtime.ScanDir = defaultScanDir
	}

	var err error
	if c.Beamtime.ScanDir, err = expandPath(c.Beamtime.ScanDir); err != nil {
		return fmt.Errorf("beamtime.scan_dir: %w", err)
	}
	if strings.TrimSpace(c.Beamtime.IndexFile) == "" && c.Beamtime.ID != "" {
		c.Beamtime.IndexFile = filepath.Join(c.Beamtime.ScanDir, fmt.Sprintf(indexFilePattern, c.Beamtime.ID))
	}
	if strings.TrimSpace(c.Beamtime.LedgerFile) == "" && c.Beamtime.ID != "" {
		c.Beamtime.LedgerFile = filepath.Join(c.Beamtime.ScanDir, fmt.Sprintf(ledgerFilePattern, c.Beamtime.ID))
	}
	if c.Beamtime.IndexFile, err = expandPath(strings.TrimSpace(c.Beamtime.IndexFile)); err != nil {
		return fmt.Errorf("beamtime.index_file: %w", err)
	}
	if c.Beamtime.LedgerFile, err = expandPath(strings.TrimSpace(c.Beamtime.LedgerFile)); err != nil {
		return fmt.Errorf("beamtime.ledger_file: %w", err)
	}

	if c.Beamtime.Debounce < 0 {
		c.Beamtime.Debounce = defaultDebounce
	}
	if c.Beamtime.PollTimeout <= 0 {
		c.Beamtime.PollTimeout = defaultPollTimeout
	}
	if c.Beamtime.StopGraceMS < 0 {
		c.Beamtime.StopGraceMS = defaultStopGraceMS
	}
	return nil
}

func (c *Config) normalizeMetadata() {
	c.Metadata.DatasetPostfix = strings.TrimSpace(c.Metadata.DatasetPostfix)
	if c.Metadata.DatasetPostfix == "" {
		c.Metadata.DatasetPostfix = defaultDatasetPostfix
	}
	c.Metadata.DatablockPostfix = strings.TrimSpace(c.Metadata.DatablockPostfix)
	if c.Metadata.DatablockPostfix == "" {
		c.Metadata.DatablockPostfix = defaultDatablockPostfix
	}
	c.Metadata.GeneratorCommand = strings.TrimSpace(c.Metadata.GeneratorCommand)
	if c.Metadata.GeneratorTimeout <= 0 {
		c.Metadata.GeneratorTimeout = defaultGeneratorTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if dir := strings.TrimSpace(c.Logging.Dir); dir != "" {
		if expanded, err := expandPath(dir); err == nil {
			c.Logging.Dir = expanded
		}
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.Metrics.Token = strings.TrimSpace(c.Metrics.Token)
}
