// classify.go: scope-kind classification: is a definition sitting directly
// inside a class body that a recognized annotator is treating as a named
// scope-level unit?
//
// The embedding layer needs the answer while the class body is still being
// constructed, to pick the function-vs-class capture strategy. When the
// embedding knows the answer (it usually controls the decorator call path),
// it says so with a ScopeHint. The HintNone path falls back to inspecting
// caller-frame source text, mirroring how runtimes without that luxury have
// to sniff for the annotator.
package kernelscript

import "strings"

// ClassMarkers is the default set of substrings recognized in annotator
// lines. A stripped line counts as an annotator when it starts with "@" and
// contains any marker, so "@module", "@ir.module" and "@R.rewriter" all
// match.
var ClassMarkers = []string{"module", "rewriter"}

// ScopeHint is the embedding layer's own knowledge of the definition site.
type ScopeHint int

const (
	HintNone       ScopeHint = iota // unknown; fall back to source sniffing
	HintPlain                       // known plain definition
	HintClassBody                   // known annotated-class body
)

// ClassifyScope decides whether a definition sits directly inside a
// recognized annotated class body. An explicit hint is authoritative;
// HintNone defers to DefinedInClass.
func ClassifyScope(hint ScopeHint, stack Snapshot, src *SourceRef, markers ...string) bool {
	switch hint {
	case HintPlain:
		return false
	case HintClassBody:
		return true
	}
	return DefinedInClass(stack, src, markers...)
}

// DefinedInClass is the text-based fallback. It examines the source line at
// stack[2], the frame that called into the decorator machinery:
//
//   - the line is itself an annotator line → true (the annotator is being
//     applied right there);
//   - the line is a class header → the line immediately above the header is
//     checked for the annotator (the common shape of an annotated class
//     whose body is still executing when a nested definition triggers
//     classification). The header's file comes from src.File.
//
// Markers default to ClassMarkers. Any missing frame, context, or source
// yields false, never an error.
func DefinedInClass(stack Snapshot, src *SourceRef, markers ...string) bool {
	if len(markers) == 0 {
		markers = ClassMarkers
	}
	if len(stack) <= 2 {
		return false
	}
	frame := stack[2]
	if len(frame.Context) == 0 {
		return false
	}
	line := strings.TrimSpace(frame.Context[0])
	if isClassAnnotator(line, markers) {
		return true
	}
	if strings.HasPrefix(line, "class") {
		if src == nil || src.File == nil || frame.Line < 2 {
			return false
		}
		above, ok := src.File.Line(frame.Line - 1)
		if !ok {
			return false
		}
		return isClassAnnotator(strings.TrimSpace(above), markers)
	}
	return false
}

func isClassAnnotator(line string, markers []string) bool {
	if !strings.HasPrefix(line, "@") {
		return false
	}
	for _, m := range markers {
		if m != "" && strings.Contains(line, m) {
			return true
		}
	}
	return false
}
