package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable for catalog access.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	return nil
}

// ValidateBeamtime ensures the beamtime section can drive a watcher.
func (c *Config) ValidateBeamtime() error {
	if strings.TrimSpace(c.Beamtime.IndexFile) == "" {
		return errors.New("beamtime.index_file must be set (or beamtime.id to derive it)")
	}
	if strings.TrimSpace(c.Beamtime.LedgerFile) == "" {
		return errors.New("beamtime.ledger_file must be set (or beamtime.id to derive it)")
	}
	if c.Beamtime.IndexFile == c.Beamtime.LedgerFile {
		return errors.New("beamtime.ledger_file must differ from beamtime.index_file")
	}
	if c.Beamtime.PollTimeout <= 0 {
		return errors.New("beamtime.poll_timeout must be positive")
	}
	if c.Beamtime.Debounce < 0 {
		return errors.New("beamtime.debounce must be >= 0")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	parsed, err := url.Parse(c.Catalog.URL)
	if err != nil {
		return fmt.Errorf("catalog.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("catalog.url must use http or https, got %q", c.Catalog.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("catalog.url must include a host, got %q", c.Catalog.URL)
	}
	if err := ensurePositiveMap(map[string]int{
		"catalog.max_request_tries_number": c.Catalog.MaxRequestTriesNumber,
		"catalog.request_timeout":          c.Catalog.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Catalog.RequestRetryInterval < 0 {
		return errors.New("catalog.request_retry_interval must be >= 0")
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if strings.ContainsAny(c.Metadata.DatasetPostfix, "/\\") {
		return errors.New("metadata.dataset_postfix must not contain path separators")
	}
	if strings.ContainsAny(c.Metadata.DatablockPostfix, "/\\") {
		return errors.New("metadata.datablock_postfix must not contain path separators")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
