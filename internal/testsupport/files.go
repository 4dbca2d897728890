package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteLines replaces path with one line per entry.
func WriteLines(t testing.TB, path string, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AppendLines appends entries to path, closing the file afterwards so a
// close-write notification fires.
func AppendLines(t testing.TB, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			_ = f.Close()
			t.Fatalf("append %s: %v", path, err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

// ReadFile returns path's content or "" when it does not exist.
func ReadFile(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// WriteArtifacts creates "<scan>.scan.json" and "<scan>.origindatablock.json"
// in dir for every scan.
func WriteArtifacts(t testing.TB, dir string, scans ...string) {
	t.Helper()
	for _, scan := range scans {
		WriteArtifact(t, dir, scan+".scan.json", `{"pid":"`+scan+`","type":"raw"}`)
		WriteArtifact(t, dir, scan+".origindatablock.json", `{"datasetId":"`+scan+`","size":1}`)
	}
}

// WriteArtifact writes a single metadata file and returns its path.
func WriteArtifact(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
