package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLocateFirstLexicalMatchWins(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "S1.scan_b.json", `{"pid":"b"}`)
	want := write(t, dir, "S1.scan_a.json", `{"pid":"a"}`)
	write(t, dir, "S10.scan.json", `{"pid":"other"}`)

	l := NewLocator(dir, ".scan*", ".origindatablock*")
	art, err := l.Locate(context.Background(), "S1", KindDataset)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if art == nil || art.Path != want {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if string(art.Data) != `{"pid":"a"}` || art.Generated {
		t.Fatalf("unexpected artifact data %+v", art)
	}
}

func TestLocateSeparatesKinds(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "S1.origindatablock.json", `{}`)
	l := NewLocator(dir, ".scan*", ".origindatablock*")

	art, err := l.Locate(context.Background(), "S1", KindDataset)
	if err != nil || art != nil {
		t.Fatalf("expected no dataset artifact, got %+v, %v", art, err)
	}
	art, err = l.Locate(context.Background(), "S1", KindDatablock)
	if err != nil || art == nil {
		t.Fatalf("expected datablock artifact, got %+v, %v", art, err)
	}
	if art.Kind.Model() != "OrigDatablocks" {
		t.Fatalf("unexpected model %q", art.Kind.Model())
	}
}

func TestFindEscapesGlobCharacters(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "Sx.scan.json", `{}`)
	l := NewLocator(dir, ".scan*", ".origindatablock*")
	path, err := l.Find("S?", KindDataset)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if path != "" {
		t.Fatalf("scan name must match literally, got %q", path)
	}
}

func TestLocateFallsBackToGenerator(t *testing.T) {
	dir := t.TempDir()
	var got []Request
	gen := GeneratorFunc(func(_ context.Context, req Request) (string, error) {
		got = append(got, req)
		write(t, dir, req.Scan+".scan.json", `{"generated":true}`)
		return req.Scan + ".scan.json", nil
	})
	l := NewLocator(dir, ".scan*", ".origindatablock*", WithGenerator(gen))

	art, err := l.Locate(context.Background(), "S2", KindDataset)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if art == nil || !art.Generated || art.Path != filepath.Join(dir, "S2.scan.json") {
		t.Fatalf("unexpected artifact %+v", art)
	}
	want := []Request{{Scan: "S2", Kind: KindDataset, Dir: dir}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("generator calls %+v want %+v", got, want)
	}
}

func TestLocateGeneratorFailureSkipsArtifact(t *testing.T) {
	gen := GeneratorFunc(func(context.Context, Request) (string, error) {
		return "", errors.New("boom")
	})
	l := NewLocator(t.TempDir(), ".scan*", ".origindatablock*", WithGenerator(gen))
	art, err := l.Locate(context.Background(), "S3", KindDatablock)
	if err != nil || art != nil {
		t.Fatalf("expected skipped artifact, got %+v, %v", art, err)
	}
}

type fakeExecutor struct {
	out    string
	err    error
	binary string
	args   []string
}

func (f *fakeExecutor) Output(_ context.Context, binary string, args []string) ([]byte, error) {
	f.binary = binary
	f.args = args
	return []byte(f.out), f.err
}

func TestCommandGeneratorContract(t *testing.T) {
	exec := &fakeExecutor{out: "\n  /data/S1.scan.json  \nignored\n"}
	gen := NewCommandGenerator("nxsmeta", []string{"--beamtime", "42"}, 0).WithExecutor(exec)

	path, err := gen.Generate(context.Background(), Request{Scan: "S1", Kind: KindDataset, Dir: "/data"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if path != "/data/S1.scan.json" {
		t.Fatalf("unexpected path %q", path)
	}
	wantArgs := []string{"--beamtime", "42", "--scan", "S1", "--kind", "dataset", "--dir", "/data"}
	if exec.binary != "nxsmeta" || !reflect.DeepEqual(exec.args, wantArgs) {
		t.Fatalf("unexpected invocation %s %v", exec.binary, exec.args)
	}
}

func TestCommandGeneratorEmptyOutputMeansNothing(t *testing.T) {
	gen := NewCommandGenerator("nxsmeta", nil, 0).WithExecutor(&fakeExecutor{out: "  \n"})
	path, err := gen.Generate(context.Background(), Request{Scan: "S1", Kind: KindDatablock})
	if err != nil || path != "" {
		t.Fatalf("expected empty result, got %q, %v", path, err)
	}
}

func TestCommandGeneratorPropagatesFailure(t *testing.T) {
	gen := NewCommandGenerator("nxsmeta", nil, 0).WithExecutor(&fakeExecutor{err: errors.New("exit status 2")})
	if _, err := gen.Generate(context.Background(), Request{Scan: "S1", Kind: KindDataset}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandGeneratorWithoutBinaryIsNoop(t *testing.T) {
	gen := NewCommandGenerator("", nil, 0)
	path, err := gen.Generate(context.Background(), Request{Scan: "S1", Kind: KindDataset})
	if err != nil || path != "" {
		t.Fatalf("expected noop, got %q, %v", path, err)
	}
}
