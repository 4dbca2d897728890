package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scingest/internal/logging"
)

// Kind names the two artifacts each scan carries.
type Kind string

const (
	KindDataset   Kind = "dataset"
	KindDatablock Kind = "datablock"
)

// Model returns the catalog model the artifact is posted to.
func (k Kind) Model() string {
	switch k {
	case KindDatablock:
		return "OrigDatablocks"
	default:
		return "RawDatasets"
	}
}

// Artifact is a located metadata file and its contents.
type Artifact struct {
	Kind Kind
	Path string
	Data []byte
	// Generated is true when the file came from the generator rather than discovery.
	Generated bool
}

// Locator finds or generates artifacts for scans in one directory.
type Locator struct {
	dir       string
	postfixes map[Kind]string
	generator Generator
	logger    *slog.Logger
}

// LocatorOption customizes a Locator.
type LocatorOption func(*Locator)

// WithGenerator sets the fallback used when no file matches.
func WithGenerator(g Generator) LocatorOption {
	return func(l *Locator) {
		if g != nil {
			l.generator = g
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) LocatorOption {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocator builds a Locator for dir. Postfixes are glob fragments placed
// between the scan name and ".json", e.g. ".scan*".
func NewLocator(dir, datasetPostfix, datablockPostfix string, opts ...LocatorOption) *Locator {
	l := &Locator{
		dir: dir,
		postfixes: map[Kind]string{
			KindDataset:   datasetPostfix,
			KindDatablock: datablockPostfix,
		},
		generator: NoopGenerator{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "metadata")
	return l
}

// Dir returns the scan directory.
func (l *Locator) Dir() string { return l.dir }

// Find returns the first file matching scan and kind, or "" when none exists.
func (l *Locator) Find(scan string, kind Kind) (string, error) {
	pattern := filepath.Join(l.dir, escapeGlob(scan)+l.postfixes[kind]+".json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Locate returns the artifact for scan and kind. A nil artifact with a nil
// error means neither discovery nor the generator produced anything.
func (l *Locator) Locate(ctx context.Context, scan string, kind Kind) (*Artifact, error) {
	path, err := l.Find(scan, kind)
	if err != nil {
		return nil, err
	}
	generated := false
	if path == "" {
		path, err = l.generator.Generate(ctx, Request{Scan: scan, Kind: kind, Dir: l.dir})
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, l.logger), "metadata generator failed", "generator_failed",
				logging.String("kind", string(kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run the generator command by hand for this scan"),
				logging.String(logging.FieldImpact, "artifact skipped for this scan"),
			)
			return nil, nil
		}
		if path == "" {
			l.logger.Debug("no metadata artifact",
				logging.String(logging.FieldScan, scan),
				logging.String("kind", string(kind)),
			)
			return nil, nil
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(l.dir, path)
		}
		generated = true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s artifact %s: %w", kind, path, err)
	}
	return &Artifact{Kind: kind, Path: path, Data: data, Generated: generated}, nil
}

func escapeGlob(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
