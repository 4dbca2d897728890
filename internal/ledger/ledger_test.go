package ledger_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/text/encoding"

	"scingest/internal/ledger"
	"scingest/internal/services"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	ids, err := ledger.Load(filepath.Join(t.TempDir(), "absent.lst"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty ledger, got %v", ids)
	}
}

func TestLoadUnreadableIsLedgerReadError(t *testing.T) {
	dir := t.TempDir()
	_, err := ledger.Load(dir) // a directory cannot be read as a file
	if !errors.Is(err, services.ErrLedgerRead) {
		t.Fatalf("expected ErrLedgerRead, got %v", err)
	}
}

func TestReadIndexStripsBOMAndBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.lst")
	content := "\ufeffscan_001\n\n  scan_002  \r\nscan_001\nscan_003"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ids, err := ledger.ReadIndex(path)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	want := []string{"scan_001", "scan_002", "scan_003"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("got %v want %v", ids, want)
	}
}

func TestReadIndexMissingIsIndexReadError(t *testing.T) {
	_, err := ledger.ReadIndex(filepath.Join(t.TempDir(), "absent.lst"))
	if !errors.Is(err, services.ErrIndexRead) {
		t.Fatalf("expected ErrIndexRead, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("index read errors must be fatal")
	}
}

func TestInvalidUTF8IsRejected(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.lst")
	led := filepath.Join(dir, "ledger.lst")
	content := []byte("scan_001\nscan_\xff02\n")
	for _, path := range []string{index, led} {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_, err := ledger.ReadIndex(index)
	if !errors.Is(err, services.ErrIndexRead) || !errors.Is(err, encoding.ErrInvalidUTF8) {
		t.Fatalf("expected invalid UTF-8 index error, got %v", err)
	}
	_, err = ledger.Load(led)
	if !errors.Is(err, services.ErrLedgerRead) || !errors.Is(err, encoding.ErrInvalidUTF8) {
		t.Fatalf("expected invalid UTF-8 ledger error, got %v", err)
	}
}

func TestAppendCreatesFileAndParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.lst")
	for _, id := range []string{"S1", "S2"} {
		if err := ledger.Append(path, id); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "S1\nS2\n" {
		t.Fatalf("unexpected ledger content %q", data)
	}
}

func TestAppendRejectsMultilineIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.lst")
	err := ledger.Append(path, "a\nb")
	if !errors.Is(err, services.ErrLedgerWrite) {
		t.Fatalf("expected ErrLedgerWrite, got %v", err)
	}
}

func TestAppendToUnwritablePathFails(t *testing.T) {
	dir := t.TempDir()
	err := ledger.Append(dir, "S1") // dir is a directory
	if !errors.Is(err, services.ErrLedgerWrite) {
		t.Fatalf("expected ErrLedgerWrite, got %v", err)
	}
}

func TestDiffPreservesIndexOrder(t *testing.T) {
	cases := []struct {
		name   string
		index  []string
		ledger []string
		want   []string
	}{
		{"empty index", nil, []string{"S1"}, nil},
		{"nothing done", []string{"S3", "S1", "S2"}, nil, []string{"S3", "S1", "S2"}},
		{"partial", []string{"S1", "S2", "S3"}, []string{"S2"}, []string{"S1", "S3"}},
		{"all done", []string{"S1", "S2"}, []string{"S2", "S1"}, nil},
		{"duplicates", []string{"S1", "S1", "S2"}, nil, []string{"S1", "S2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ledger.Diff(tc.index, tc.ledger)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestLedgerRoundTripAcrossLifetimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.lst")

	// first lifetime
	for _, id := range ledger.Diff([]string{"S1", "S2"}, mustLoad(t, path)) {
		if err := ledger.Append(path, id); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// second lifetime sees a longer index
	for _, id := range ledger.Diff([]string{"S1", "S2", "S3"}, mustLoad(t, path)) {
		if err := ledger.Append(path, id); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got := mustLoad(t, path)
	want := []string{"S1", "S2", "S3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func mustLoad(t *testing.T, path string) []string {
	t.Helper()
	ids, err := ledger.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ids
}
