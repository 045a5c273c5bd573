// errors.go: user-facing error wrapping and caret-snippet rendering
//
// What this file does
// -------------------
// This module turns low-level lexer/parser diagnostics into readable,
// caret-annotated error snippets. The primary entry point is
// `WrapErrorWithSource`, which recognizes `*LexError` (from lexer.go) and
// `*ParseError` (from parser.go), formats them, and returns a new `error`
// containing a multi-line snippet:
//
//	PARSE ERROR at 3:12: unexpected token ')'
//
//	   2 | def f(x: T.Buffer((128,
//	   3 |              )
//	       |            ^
//	   4 |     pass
//
// The snippet includes up to one line of context before and after the error,
// numbers the lines, and places a caret under the 1-based column.
//
// It also defines `*KindError`, the error reported when a capture or
// inspection operation is handed a value of the wrong kind (asking for the
// nonlocals of a string, say).
//
// Dependencies (other files)
// --------------------------
//   - lexer.go: defines `*LexError { Line, Col, Msg }`.
//   - parser.go: defines `*ParseError { Line, Col, Msg }`.
//     Both carry 1-based Line and 0-based Col; rendering converts to 1-based.
//
// Scope of the public API
// -----------------------
// Public:   `WrapErrorWithSource`, `WrapErrorWithName`, `*KindError`.
// Private:  caret-snippet renderer.
//
// Behavior guarantees
// -------------------
//   - If `err` is a `*LexError` or `*ParseError`, the returned error's message
//     is a fully formatted, plain-text snippet (no ANSI colors).
//   - If `err` is anything else, it is returned unchanged.
//   - Line/column are clamped to the source bounds so the caret can always be
//     rendered. Empty/short source strings are handled.
package kernelscript

import (
	"fmt"
	"strings"
)

/* ===========================
   PUBLIC API
   =========================== */

// KindError reports an operation applied to a value of the wrong kind.
type KindError struct {
	Op   string // operation that rejected the value, e.g. "nonlocals"
	Want string // what the operation accepts, e.g. "function"
	Got  ValueTag
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: expected %s value, got %s", e.Op, e.Want, e.Got)
}

// WrapErrorWithSource returns an error augmented with a caret-annotated
// snippet of the provided source. It recognizes lexer/parser errors and
// leaves other errors untouched.
//
// Inputs
//   - err: The original error. If it is a *LexError or *ParseError, the
//     function renders a multi-line snippet describing the error location
//     and message. Otherwise, `err` is returned as-is.
//   - src: The full source text that was being lexed/parsed.
//
// Output
//   - error: For lex/parse errors, a new error whose .Error() string is a
//     human-readable snippet with a header ("LEXICAL ERROR" or "PARSE
//     ERROR"), the 1-based line/column, the original message, up to one
//     previous and one next line of context, and a caret aligned under the
//     column. For all other error kinds, the original `err`.
func WrapErrorWithSource(err error, src string) error {
	// Fall back to a name-less header (won't show "in <name>").
	return WrapErrorWithName(err, "", src)
}

// WrapErrorWithName is WrapErrorWithSource with a source label (usually a
// file name) woven into the header.
func WrapErrorWithName(err error, srcName string, src string) error {
	switch e := err.(type) {
	case *LexError:
		// Lex/parse Col are 0-based; render as 1-based.
		return fmt.Errorf("%s", prettyErrorStringLabeled(src, "LEXICAL ERROR", srcName, e.Line, e.Col+1, e.Msg))
	case *ParseError:
		return fmt.Errorf("%s", prettyErrorStringLabeled(src, "PARSE ERROR", srcName, e.Line, e.Col+1, e.Msg))
	default:
		return err
	}
}

//// END_OF_PUBLIC

/* ===========================
   PRIVATE: rendering
   =========================== */

// prettyErrorStringLabeled builds a snippet with a header and a caret.
// It shows at most one previous and one next line when available.
// Coordinates are treated as 1-based and clamped to the source bounds.
func prettyErrorStringLabeled(src, header, name string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	if line > len(lines) {
		line = len(lines)
	}
	lineTxt := lines[line-1]

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", header, name, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	}
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lineTxt)
	caretPad := col - 1
	if caretPad < 0 {
		caretPad = 0
	}
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", caretPad))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
