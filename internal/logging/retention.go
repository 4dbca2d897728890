package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scingest/internal/config"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// PruneConfiguredLogs applies cfg.Logging.RetentionDays to the log directory,
// keeping the file the current beamtime writes to. It returns the number of
// files removed.
func PruneConfiguredLogs(logger *slog.Logger, cfg *config.Config) int {
	if cfg == nil || cfg.Logging.Dir == "" {
		return 0
	}
	current := filepath.Join(cfg.Logging.Dir, "scingest.log")
	if cfg.Beamtime.ID != "" {
		current = filepath.Join(cfg.Logging.Dir, "scingest-"+cfg.Beamtime.ID+".log")
	}
	return CleanupOldLogs(logger, cfg.Logging.RetentionDays, RetentionTarget{
		Dir:     cfg.Logging.Dir,
		Pattern: "scingest*.log",
		Exclude: []string{current},
	})
}

// CleanupOldLogs removes files matching the provided targets whose
// modification time is older than retentionDays. A retentionDays value of 0
// disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	exclusions := exclusionSet(targets)

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !matchesPattern(target.Pattern, entry.Name()) {
				continue
			}
			fullPath := absOrSelf(filepath.Join(dir, entry.Name()))
			if _, skip := exclusions[fullPath]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(fullPath); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", fullPath),
					Error(err),
					String(FieldErrorHint, "check file permissions on the logging dir"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Info("log pruned",
					String("path", fullPath),
					String(FieldEventType, "log_pruned"),
				)
			}
		}
	}
	return removed
}

func exclusionSet(targets []RetentionTarget) map[string]struct{} {
	out := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if trimmed := strings.TrimSpace(path); trimmed != "" {
				out[absOrSelf(trimmed)] = struct{}{}
			}
		}
	}
	return out
}

func matchesPattern(pattern, name string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return true
	}
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
