package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Catalog contains connection and authentication settings for the catalog API.
type Catalog struct {
	URL                   string            `toml:"url"`
	Username              string            `toml:"username"`
	CredentialFile        string            `toml:"credential_file"`
	TokenFile             string            `toml:"token_file"`
	RequestHeaders        map[string]string `toml:"request_headers"`
	MaxRequestTriesNumber int               `toml:"max_request_tries_number"`
	RequestRetryInterval  int               `toml:"request_retry_interval"`
	RequestTimeout        int               `toml:"request_timeout"`
}

// Beamtime describes the scan directory and bookkeeping files of one beamtime.
type Beamtime struct {
	ID          string `toml:"id"`
	ScanDir     string `toml:"scan_dir"`
	IndexFile   string `toml:"index_file"`
	LedgerFile  string `toml:"ledger_file"`
	Debounce    int    `toml:"debounce"`
	PollTimeout int    `toml:"poll_timeout"`
	StopGraceMS int    `toml:"stop_grace_ms"`
}

// Metadata contains artifact discovery and generation settings.
type Metadata struct {
	DatasetPostfix   string   `toml:"dataset_postfix"`
	DatablockPostfix string   `toml:"datablock_postfix"`
	GeneratorCommand string   `toml:"generator_command"`
	GeneratorArgs    []string `toml:"generator_args"`
	GeneratorTimeout int      `toml:"generator_timeout"`
}

// Metrics contains the optional prometheus and status listener.
type Metrics struct {
	Bind string `toml:"bind"`
	// Token, when set, is required as a bearer token on /api/status.
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
	// RetentionDays prunes scingest-*.log files in Dir older than this; 0 keeps everything.
	RetentionDays int `toml:"retention_days"`
}

// Config encapsulates all configuration values for scingest.
//
// Configuration sections by subsystem:
//   - Catalog: catalog URL, credentials, request headers and retry ceiling
//   - Beamtime: scan directory, index and ledger files, loop timing
//   - Metadata: artifact glob postfixes and the external generator
//   - Metrics: prometheus listener
//   - Logging: log format, level, and optional log directory
type Config struct {
	Catalog  Catalog  `toml:"catalog"`
	Beamtime Beamtime `toml:"beamtime"`
	Metadata Metadata `toml:"metadata"`
	Metrics  Metrics  `toml:"metrics"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scingest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Beamtime.LedgerFile)}
	if c.Logging.Dir != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DebounceDelay returns the pause between detecting new scans and ingesting them.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Beamtime.Debounce) * time.Second
}

// PollTimeout returns the upper bound of a single event poll.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Beamtime.PollTimeout) * time.Second
}

// StopGrace returns how long Stop waits before releasing watches.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Beamtime.StopGraceMS) * time.Millisecond
}

// RetryInterval returns the fixed pause between submission attempts.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Catalog.RequestRetryInterval) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Catalog.RequestTimeout) * time.Second
}

// GeneratorTimeout returns the deadline for one external generator run.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Metadata.GeneratorTimeout) * time.Second
}

// LockPath returns the flock path guarding the beamtime ledger.
func (c *Config) LockPath() string {
	return c.Beamtime.LedgerFile + ".lock"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.Contains(pathValue, homePlaceholder) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = strings.ReplaceAll(pathValue, homePlaceholder, home)
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
// Both "~/" and the "{homepath}" placeholder resolve to the user's home.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Headers returns a copy of the configured request headers.
func (c *Config) Headers() map[string]string {
	out := make(map[string]string, len(c.Catalog.RequestHeaders))
	for k, v := range c.Catalog.RequestHeaders {
		out[k] = v
	}
	return out
}

// OverrideBeamtime retargets the config at beamtime id, optionally in scanDir,
// and re-derives the index and ledger paths from them.
func (c *Config) OverrideBeamtime(id, scanDir string) error {
	id = strings.TrimSpace(id)
	scanDir = strings.TrimSpace(scanDir)
	if id == "" && scanDir == "" {
		return nil
	}
	if id != "" {
		c.Beamtime.ID = id
	}
	if scanDir != "" {
		expanded, err := expandPath(scanDir)
		if err != nil {
			return fmt.Errorf("scan dir: %w", err)
		}
		c.Beamtime.ScanDir = expanded
	}
	if c.Beamtime.ID == "" {
		return nil
	}
	c.Beamtime.IndexFile = filepath.Join(c.Beamtime.ScanDir, fmt.Sprintf(indexFilePattern, c.Beamtime.ID))
	c.Beamtime.LedgerFile = filepath.Join(c.Beamtime.ScanDir, fmt.Sprintf(ledgerFilePattern, c.Beamtime.ID))
	return nil
}
