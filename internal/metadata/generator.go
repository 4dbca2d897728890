package metadata

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Request describes the artifact a Generator is asked for.
type Request struct {
	Scan string
	Kind Kind
	Dir  string
}

// Generator produces a metadata file for a scan and returns its path, or ""
// when it has nothing to offer.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// NoopGenerator never produces anything.
type NoopGenerator struct{}

func (NoopGenerator) Generate(context.Context, Request) (string, error) { return "", nil }

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Executor abstracts command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// CommandGenerator runs an external program as
// "<binary> <args...> --scan S --kind K --dir D" and takes the first
// non-empty stdout line as the produced file path.
type CommandGenerator struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	exec    Executor
}

// NewCommandGenerator returns a generator for binary. A zero timeout means
// the caller's context alone bounds the run.
func NewCommandGenerator(binary string, args []string, timeout time.Duration) *CommandGenerator {
	return &CommandGenerator{
		Binary:  binary,
		Args:    append([]string(nil), args...),
		Timeout: timeout,
		exec:    commandExecutor{},
	}
}

// WithExecutor swaps the command runner (tests).
func (g *CommandGenerator) WithExecutor(e Executor) *CommandGenerator {
	if e != nil {
		g.exec = e
	}
	return g
}

func (g *CommandGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g == nil || strings.TrimSpace(g.Binary) == "" {
		return "", nil
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	args := append([]string(nil), g.Args...)
	args = append(args, "--scan", req.Scan, "--kind", string(req.Kind), "--dir", req.Dir)

	out, err := g.exec.Output(ctx, g.Binary, args)
	if err != nil {
		return "", fmt.Errorf("generator %s for %s/%s: %w", g.Binary, req.Scan, req.Kind, err)
	}
	return firstLine(out), nil
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}
