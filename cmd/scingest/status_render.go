package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// statusBlock collects the "label: [KIND] message" lines of one section.
type statusBlock struct {
	colorize bool
	lines    []string
}

func newStatusBlock(out io.Writer, title string) *statusBlock {
	b := &statusBlock{colorize: shouldColorize(out)}
	header := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	b.lines = append(b.lines, b.paint(statusInfo, header), b.paint(statusInfo, strings.Repeat("-", len(header))))
	return b
}

func (b *statusBlock) add(label string, kind statusKind, format string, args ...any) {
	text := "[" + statusKinds[kind].label + "]"
	if msg := fmt.Sprintf(format, args...); msg != "" {
		text += " " + msg
	}
	b.lines = append(b.lines, b.paint(kind, fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)))
}

func (b *statusBlock) paint(kind statusKind, s string) string {
	if !b.colorize {
		return s
	}
	return statusKinds[kind].color + s + ansiReset
}

func (b *statusBlock) String() string { return strings.Join(b.lines, "\n") }

// shouldColorize is true for terminals unless NO_COLOR is set.
func shouldColorize(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
