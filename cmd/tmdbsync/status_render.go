package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// verdict grades one line of preflight or run-summary output.
type verdict int

const (
	verdictNote verdict = iota
	verdictPass
	verdictSoft
	verdictFail
)

const colorOff = "\x1b[0m"

var verdictStyles = [...]struct{ tag, color string }{
	verdictNote: {"note", "\x1b[36m"},
	verdictPass: {"pass", "\x1b[32m"},
	verdictSoft: {"warn", "\x1b[33m"},
	verdictFail: {"FAIL", "\x1b[31m"},
}

func (v verdict) tag(color bool) string {
	style := verdictStyles[v]
	if !color {
		return style.tag
	}
	return style.color + style.tag + colorOff
}

type summaryLine struct {
	subject string
	verdict verdict
	detail  string
}

// summaryBlock collects lines and pads every subject to the longest one so
// the verdict column lines up.
type summaryBlock struct {
	lines []summaryLine
	width int
}

func (b *summaryBlock) add(subject string, v verdict, detail string) {
	b.lines = append(b.lines, summaryLine{subject: subject, verdict: v, detail: detail})
	b.width = max(b.width, len(subject))
}

func (b *summaryBlock) write(w io.Writer, color bool) {
	for _, line := range b.lines {
		fmt.Fprintln(w, b.render(line, color))
	}
}

func (b *summaryBlock) render(line summaryLine, color bool) string {
	out := fmt.Sprintf("  %-*s  %s", b.width, line.subject, line.verdict.tag(color))
	if line.detail != "" {
		out += "  " + line.detail
	}
	return out
}

// colorEnabled is true for terminals unless NO_COLOR is set.
func colorEnabled(w io.Writer) bool {
	if _, off := os.LookupEnv("NO_COLOR"); off {
		return false
	}
	f, ok := w.(*os.File)
	return ok && interactive(f)
}

func interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
