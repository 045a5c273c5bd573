// source.go: script source bookkeeping: whole-file registration, per
// definition source references, and dedenting of extracted snippets.
package kernelscript

import "strings"

// ScriptFile holds the full text of a loaded script, split into lines. The
// scope-kind classifier reads neighbouring lines from it, and the report
// builder parses it as a unit. Lines are stored without trailing newlines.
type ScriptFile struct {
	Name  string
	Lines []string
}

// NewScriptFile registers src under name. A trailing newline does not
// produce a phantom empty line.
func NewScriptFile(name, src string) *ScriptFile {
	lines := strings.Split(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return &ScriptFile{Name: name, Lines: lines}
}

// Text reassembles the file contents.
func (f *ScriptFile) Text() string { return strings.Join(f.Lines, "\n") + "\n" }

// Line returns the 1-based line n, or false when out of range (or f is nil).
func (f *ScriptFile) Line(n int) (string, bool) {
	if f == nil || n < 1 || n > len(f.Lines) {
		return "", false
	}
	return f.Lines[n-1], true
}

// SourceRef locates a definition inside its script file.
//
// Fields:
//   - File: the containing file (may be nil when the definition was
//     synthesized without retrievable source).
//   - Line: 1-based line of the definition header (`def`/`class` line).
//   - Text: the definition's own snippet as extracted, possibly still
//     carrying the indentation of its original nesting. Dedent before parsing.
type SourceRef struct {
	File *ScriptFile
	Line int
	Text string
}

// Dedent strips the longest common leading whitespace of all non-blank lines,
// so a snippet extracted from a nested position parses as a standalone unit.
// Whitespace-only lines are ignored when computing the margin and come out
// empty. Tabs and spaces are not equivalent: the margin is a literal prefix.
func Dedent(s string) string {
	lines := strings.Split(s, "\n")

	margin := ""
	found := false
	for _, ln := range lines {
		trimmed := strings.TrimLeft(ln, " \t")
		if trimmed == "" {
			continue
		}
		indent := ln[:len(ln)-len(trimmed)]
		if !found {
			margin = indent
			found = true
			continue
		}
		margin = commonPrefix(margin, indent)
	}
	if margin == "" {
		return s
	}

	for i, ln := range lines {
		if strings.TrimLeft(ln, " \t") == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(ln, margin)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
