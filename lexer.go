// lexer.go: indentation-aware lexer for the KernelScript surface dialect.
//
// The dialect is Python-flavored: statements end at newlines, blocks are
// introduced by a trailing ':' and delimited by indentation, decorators are
// '@' lines. The lexer therefore emits three structural tokens the parser
// relies on: NEWLINE at the end of every logical line, and INDENT/DEDENT as
// the indentation level changes. Newlines inside (), [] and {} are treated as
// plain whitespace, which is what lets multi-line annotation expressions
// parse without explicit continuation markers.
//
// Indentation is measured with tabs advancing to the next multiple of eight
// columns. A dedent must return to an indentation depth already on the stack;
// anything else is a lex error.
package kernelscript

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	NEWLINE
	INDENT
	DEDENT

	// Punctuation
	LPAREN  // "("
	RPAREN  // ")"
	LSQUARE // "["
	RSQUARE // "]"
	LCURLY  // "{"
	RCURLY  // "}"
	COMMA   // ","
	COLON   // ":"
	PERIOD  // "."
	AT      // "@"
	ARROW   // "->"
	ASSIGN  // "="

	// Operators
	PLUS       // "+"
	MINUS      // "-"
	STAR       // "*"
	SLASH      // "/"
	FLOORDIV   // "//"
	PERCENT    // "%"
	POWER      // "**"
	EQ         // "=="
	NEQ        // "!="
	LESS       // "<"
	LESS_EQ    // "<="
	GREATER    // ">"
	GREATER_EQ // ">="
	PIPE       // "|"
	AMP        // "&"

	// Literals & identifiers
	ID
	STRING
	INTEGER
	NUMBER
	BOOLEAN
	NONE

	// Keywords
	DEF
	CLASS
	RETURN
	PASS
	IF
	ELIF
	ELSE
	FOR
	WHILE
	IN
	AND
	OR
	NOT
	LAMBDA
)

// Token is a lexical token with optional literal value.
type Token struct {
	Type    TokenType
	Lexeme  string      // raw text slice
	Literal interface{} // parsed value for literals
	Line    int
	Col     int
}

// keywords map
var keywords = map[string]TokenType{
	"def":    DEF,
	"class":  CLASS,
	"return": RETURN,
	"pass":   PASS,
	"if":     IF,
	"elif":   ELIF,
	"else":   ELSE,
	"for":    FOR,
	"while":  WHILE,
	"in":     IN,
	"and":    AND,
	"or":     OR,
	"not":    NOT,
	"lambda": LAMBDA,
	"True":   BOOLEAN,
	"False":  BOOLEAN,
	"None":   NONE,
}

const tabWidth = 8

// Lexer scans a KernelScript source string into tokens.
type Lexer struct {
	src    string
	start  int // start index of current token
	cur    int // current index
	line   int // 1-based
	col    int // 0-based column within line
	tokens []Token

	indents     []int // indentation stack; always starts with 0
	parens      int   // bracket nesting depth; newlines inside are whitespace
	atLineStart bool

	// precise token start position
	tokStartLine int
	tokStartCol  int
}

// NewLexer creates a new lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{
		src:         src,
		line:        1,
		col:         0,
		indents:     []int{0},
		atLineStart: true,
	}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	return l.src[l.cur], true
}

func (l *Lexer) peekN(n int) (byte, bool) {
	idx := l.cur + n
	if idx >= len(l.src) {
		return 0, false
	}
	return l.src[idx], true
}

func (l *Lexer) advance() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return ch, true
}

func (l *Lexer) match(expect byte) bool {
	if ch, ok := l.peek(); ok && ch == expect {
		l.advance()
		return true
	}
	return false
}

func (l *Lexer) markStart() {
	l.start = l.cur
	l.tokStartLine = l.line
	l.tokStartCol = l.col
}

func (l *Lexer) add(tt TokenType, lit interface{}) {
	l.tokens = append(l.tokens, Token{
		Type:    tt,
		Lexeme:  l.src[l.start:l.cur],
		Literal: lit,
		Line:    l.tokStartLine,
		Col:     l.tokStartCol,
	})
}

// addAt appends a structural token (INDENT/DEDENT/synthesized NEWLINE) that
// has no lexeme of its own.
func (l *Lexer) addAt(tt TokenType, line, col int) {
	l.tokens = append(l.tokens, Token{Type: tt, Line: line, Col: col})
}

// ----- errors -----

type LexError struct {
	Line int
	Col  int
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("LEXICAL ERROR at %d:%d: %s", e.Line, e.Col, e.Msg)
}

func (l *Lexer) err(msg string) error {
	return &LexError{Line: l.line, Col: l.col, Msg: msg}
}

// ----- character classes -----

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_' || b >= utf8.RuneSelf
}
func isAlphaNum(b byte) bool { return isAlpha(b) || isDigit(b) }

// ----- line structure -----

// handleLineStart measures the indentation of the upcoming line and emits
// INDENT/DEDENT tokens as needed. Blank and comment-only lines are consumed
// whole and produce nothing.
func (l *Lexer) handleLineStart() error {
	width := 0
	for {
		ch, ok := l.peek()
		if !ok {
			break
		}
		if ch == ' ' {
			width++
			l.advance()
		} else if ch == '\t' {
			width += tabWidth - width%tabWidth
			l.advance()
		} else if ch == '\r' {
			l.advance()
		} else {
			break
		}
	}

	ch, ok := l.peek()
	if !ok {
		return nil // trailing DEDENTs are emitted by Scan
	}
	if ch == '\n' {
		l.advance()
		return nil // blank line: stays at line start
	}
	if ch == '#' {
		for {
			c, ok := l.peek()
			if !ok || c == '\n' {
				break
			}
			l.advance()
		}
		return nil
	}

	top := l.indents[len(l.indents)-1]
	switch {
	case width > top:
		l.indents = append(l.indents, width)
		l.addAt(INDENT, l.line, 0)
	case width < top:
		for len(l.indents) > 1 && width < l.indents[len(l.indents)-1] {
			l.indents = l.indents[:len(l.indents)-1]
			l.addAt(DEDENT, l.line, 0)
		}
		if width != l.indents[len(l.indents)-1] {
			return l.err("unindent does not match any outer indentation level")
		}
	}
	l.atLineStart = false
	return nil
}

// ----- scanners -----

func (l *Lexer) scanString() error {
	del := l.src[l.start]
	var out []byte
	for {
		ch, ok := l.advance()
		if !ok || ch == '\n' {
			return l.err("unterminated string literal")
		}
		if ch == del {
			l.add(STRING, string(out))
			return nil
		}
		if ch != '\\' {
			out = append(out, ch)
			continue
		}
		esc, ok := l.advance()
		if !ok {
			return l.err("unfinished escape sequence")
		}
		switch esc {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case '\\', '\'', '"':
			out = append(out, esc)
		default:
			return l.err(fmt.Sprintf("unsupported escape sequence \\%c", esc))
		}
	}
}

func (l *Lexer) scanNumber() error {
	for {
		ch, ok := l.peek()
		if !ok || !isDigit(ch) {
			break
		}
		l.advance()
	}

	isFloat := false
	if ch, ok := l.peek(); ok && ch == '.' {
		if next, ok := l.peekN(1); ok && isDigit(next) {
			isFloat = true
			l.advance() // '.'
			for {
				c, ok := l.peek()
				if !ok || !isDigit(c) {
					break
				}
				l.advance()
			}
		}
	}
	if ch, ok := l.peek(); ok && (ch == 'e' || ch == 'E') {
		i := 1
		if sign, ok := l.peekN(1); ok && (sign == '+' || sign == '-') {
			i = 2
		}
		if d, ok := l.peekN(i); ok && isDigit(d) {
			isFloat = true
			for j := 0; j < i; j++ {
				l.advance()
			}
			for {
				c, ok := l.peek()
				if !ok || !isDigit(c) {
					break
				}
				l.advance()
			}
		}
	}

	text := l.src[l.start:l.cur]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return l.err("malformed number literal: " + text)
		}
		l.add(NUMBER, f)
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return l.err("integer literal out of range: " + text)
	}
	l.add(INTEGER, n)
	return nil
}

func (l *Lexer) scanIdentifier() {
	for {
		ch, ok := l.peek()
		if !ok || !isAlphaNum(ch) {
			break
		}
		l.advance()
	}
	lex := l.src[l.start:l.cur]
	if tt, ok := keywords[lex]; ok {
		switch tt {
		case BOOLEAN:
			l.add(BOOLEAN, lex == "True")
		case NONE:
			l.add(NONE, nil)
		default:
			l.add(tt, lex)
		}
		return
	}
	l.add(ID, lex)
}

// scanToken consumes exactly one token (or interior whitespace/comment).
func (l *Lexer) scanToken() error {
	l.markStart()
	ch, ok := l.advance()
	if !ok {
		return nil
	}

	switch ch {
	case ' ', '\t', '\r':
		return nil
	case '\n':
		if l.parens > 0 {
			return nil
		}
		l.add(NEWLINE, nil)
		l.atLineStart = true
		return nil
	case '#':
		for {
			c, ok := l.peek()
			if !ok || c == '\n' {
				break
			}
			l.advance()
		}
		return nil
	case '(':
		l.parens++
		l.add(LPAREN, nil)
	case ')':
		l.parens--
		l.add(RPAREN, nil)
	case '[':
		l.parens++
		l.add(LSQUARE, nil)
	case ']':
		l.parens--
		l.add(RSQUARE, nil)
	case '{':
		l.parens++
		l.add(LCURLY, nil)
	case '}':
		l.parens--
		l.add(RCURLY, nil)
	case ',':
		l.add(COMMA, nil)
	case ':':
		l.add(COLON, nil)
	case '.':
		l.add(PERIOD, nil)
	case '@':
		l.add(AT, nil)
	case '+':
		l.add(PLUS, nil)
	case '-':
		if l.match('>') {
			l.add(ARROW, nil)
		} else {
			l.add(MINUS, nil)
		}
	case '*':
		if l.match('*') {
			l.add(POWER, nil)
		} else {
			l.add(STAR, nil)
		}
	case '/':
		if l.match('/') {
			l.add(FLOORDIV, nil)
		} else {
			l.add(SLASH, nil)
		}
	case '%':
		l.add(PERCENT, nil)
	case '|':
		l.add(PIPE, nil)
	case '&':
		l.add(AMP, nil)
	case '=':
		if l.match('=') {
			l.add(EQ, nil)
		} else {
			l.add(ASSIGN, nil)
		}
	case '!':
		if l.match('=') {
			l.add(NEQ, nil)
		} else {
			return l.err("unexpected character: '!'")
		}
	case '<':
		if l.match('=') {
			l.add(LESS_EQ, nil)
		} else {
			l.add(LESS, nil)
		}
	case '>':
		if l.match('=') {
			l.add(GREATER_EQ, nil)
		} else {
			l.add(GREATER, nil)
		}
	case '"', '\'':
		return l.scanString()
	default:
		if isDigit(ch) {
			return l.scanNumber()
		}
		if isAlpha(ch) {
			l.scanIdentifier()
			return nil
		}
		return l.err(fmt.Sprintf("unexpected character: %q", ch))
	}
	return nil
}

// Scan tokenizes the entire source and returns tokens (EOF included).
// A final NEWLINE is synthesized when the source does not end with one, and
// open indentation levels are closed with DEDENT tokens before EOF.
func (l *Lexer) Scan() ([]Token, error) {
	for !l.isAtEnd() {
		if l.atLineStart && l.parens == 0 {
			if err := l.handleLineStart(); err != nil {
				return nil, err
			}
			continue
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}

	if !l.atLineStart {
		l.addAt(NEWLINE, l.line, l.col)
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.addAt(DEDENT, l.line, l.col)
	}
	l.addAt(EOF, l.line, l.col)
	return l.tokens, nil
}
