// Package watcher runs the per-beamtime ingestion loop.
//
// A DatasetWatcher subscribes to the beamtime's index file, ingests the
// backlog found at startup, and afterwards recomputes the waiting set
// (index minus ledger) whenever the index is closed after writing. Each pass
// sleeps for the debounce delay so companion files can land, then hands the
// waiting scans to the ingester one at a time in index order.
//
// The loop polls with a bounded timeout and checks its running flag once per
// iteration. Stop clears the flag, waits a grace period and releases the
// watch; an in-flight submission is never interrupted.
package watcher
