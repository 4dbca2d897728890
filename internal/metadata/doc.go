// Package metadata resolves a scan to the JSON files describing it.
//
// A Locator looks for "<scan><postfix>.json" in the scan directory and takes
// the first lexical match. When no file exists it asks a Generator, which in
// production shells out to an external command and only reports the path of
// the file it produced.
package metadata
