// Command scingest watches a beamtime's scan index and registers every new
// scan with the catalog, and offers one-off helpers around that loop:
//
//	scingest watch                      run the watcher until interrupted
//	scingest status                     index, ledger and waiting scans
//	scingest ingest -m Model files...   post metadata files to any model
//	scingest login [--write PATH]       obtain a catalog token
//	scingest config init|show|validate  manage the configuration file
package main
