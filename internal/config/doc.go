// Package config loads, normalizes, and validates scingest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde and
// {homepath} shortcuts), reads TOML files, and honours environment fallbacks
// such as SCINGEST_CATALOG_URL. The Config type centralizes every knob the
// daemon and CLI need, deriving the index and ledger file names from the
// beamtime ID when they are not set explicitly.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
