// Package logging assembles structured slog loggers and formatting helpers used
// across scingest.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so watcher and ingest code can
// tag log lines with the beamtime, pass, scan, and request identifiers. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
