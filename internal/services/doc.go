// Package services defines shared utilities consumed by the ingestion pipeline
// and the catalog integration.
//
// Key responsibilities:
//   - Context helpers that stamp scan identifiers, beamtime IDs, pass IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is (fatal index/ledger errors vs per-scan
//     submission errors).
//
// Use these helpers when wiring new pipeline code so operational behaviour
// (error handling, observability) stays uniform across components.
package services
