// Package daemon hosts the long-running scingest process for one beamtime.
//
// It wires configuration, the filesystem watch backend, the ingestion
// pipeline and the dataset watcher into a single lifecycle, guarded by a
// flock on "<ledger>.lock" so two processes never append to the same ledger.
// When [metrics] bind is set the daemon also serves /metrics and a JSON
// /api/status snapshot, which StatusClient reads back for the CLI.
//
// Keep orchestration here: scan handling lives in ingest and the loop itself
// in watcher.
package daemon
