// Package ledger persists the scans already submitted for a beamtime and reads
// the acquisition software's scan index.
//
// Both files are newline-delimited UTF-8. The index is owned by the
// acquisition software and only ever read here; the ledger is append-only and
// every append is fsynced before it returns, so a restart never loses a
// recorded scan and never resubmits one.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"scingest/internal/services"
)

const component = "ledger"

// Load returns the scans recorded in the ledger at path in first-seen order.
// A missing file is an empty ledger.
func Load(path string) ([]string, error) {
	ids, err := readLines(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrLedgerRead, component, "load", "read ledger "+path, err)
	}
	return ids, nil
}

// ReadIndex returns the scans listed in the index file at path in
// first-appearance order. Unlike the ledger, a missing index is an error.
func ReadIndex(path string) ([]string, error) {
	ids, err := readLines(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIndexRead, "index", "read", "read index "+path, err)
	}
	return ids, nil
}

// Append records id at the end of the ledger and syncs the file to disk.
func Append(path, id string) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return services.Wrap(services.ErrLedgerWrite, component, "append", "invalid scan identifier", fmt.Errorf("%q", id))
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrLedgerWrite, component, "append", "create ledger directory", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return services.Wrap(services.ErrLedgerWrite, component, "append", "open ledger "+path, err)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		_ = f.Close()
		return services.Wrap(services.ErrLedgerWrite, component, "append", "write ledger "+path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return services.Wrap(services.ErrLedgerWrite, component, "append", "sync ledger "+path, err)
	}
	if err := f.Close(); err != nil {
		return services.Wrap(services.ErrLedgerWrite, component, "append", "close ledger "+path, err)
	}
	return nil
}

// Diff returns the entries of index that are not in ledger, in index order.
func Diff(index, ledger []string) []string {
	done := make(map[string]struct{}, len(ledger))
	for _, id := range ledger {
		done[id] = struct{}{}
	}
	var waiting []string
	for _, id := range index {
		if _, ok := done[id]; ok {
			continue
		}
		done[id] = struct{}{}
		waiting = append(waiting, id)
	}
	return waiting
}

// readLines decodes path as UTF-8 (dropping a leading BOM) and returns the
// trimmed, non-blank, de-duplicated lines. Invalid UTF-8 is an error rather
// than being replaced, since a rewritten scan id would never match its files.
func readLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoder := transform.Chain(encoding.UTF8Validator, unicode.UTF8BOM.NewDecoder())
	data, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	seen := make(map[string]struct{})
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}
