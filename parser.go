// parser.go: parser for the KernelScript surface dialect, producing compact
// S-expressions.
//
// OVERVIEW
// --------
// This module consumes the token stream produced by the indentation-aware
// lexer (see lexer.go) and builds a compact, Lisp-style S-expression (AST).
// Statements are recursive descent; expressions are a small Pratt core with
// explicit binding powers.
//
// The AST is a tree of S-expressions: []any whose first element is a string
// tag. **This list is the most important reference.**
//
// Statements:
//
//	("block",  n1, n2, ...)
//	("def",    name, decorators, params, ret, body)
//	("class",  name, decorators, body)
//	("assign", target, value)
//	("return", value)             // value is the empty node for bare 'return'
//	("pass")
//	("if",     ("pair", cond1, blk1), ..., elseBlk?)
//	("while",  cond, body)
//	("for",    target, iter, body)
//
// Definition pieces:
//
//	("array", dec1, dec2, ...)               // decorator expressions, in order
//	("array", ("param", name, annot, default), ...)
//	                                          // annot/default: empty node if absent
//
// Literals & identifiers:
//
//	("id",   string)
//	("int",  int64)
//	("num",  float64)
//	("str",  string)
//	("bool", bool)
//	("null")                                  // from 'None'
//
// Operators / expressions:
//
//	("unop",  op, rhs)                        // prefix "-", "+", "not"
//	("binop", op, lhs, rhs)                   // arithmetic, comparisons, and/or/in, "|", "&"
//	("call",  callee, arg1, ...)              // positional args and ("kw", name, value)
//	("kw",    name, value)
//	("get",   obj, ("str", name))             // obj.name
//	("idx",   obj, indexExpr)                 // obj[expr]; obj[a, b] indexes a tuple
//	("array", e1, e2, ...)                    // [ ... ]
//	("tuple", e1, e2, ...)                    // ( ... , ... ) and subscript tuples
//	("map",   ("pair", keyExpr, value)*)      // { k: v, ... }
//	("lambda", params, bodyExpr)
//
// Empty node: S{} marks an absent syntax slot (no annotation, no default, no
// return annotation, bare return). Walkers must treat len==0 as "nothing".
//
// Dependencies
// ------------
//   - lexer.go
//   - errors.go (caret-snippet wrapping for *ParseError / *LexError)
package kernelscript

import (
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
//                                  PUBLIC API
////////////////////////////////////////////////////////////////////////////////

// S is the S-expression node: a []any whose first element is a string tag.
type S = []any

// L builds an S node from a tag and parts.
func L(tag string, parts ...any) S { return append([]any{tag}, parts...) }

// ParseSource parses a complete KernelScript source string and returns its
// AST as a ("block", ...) node.
func ParseSource(src string) (S, error) {
	lex := NewLexer(src)
	toks, err := lex.Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.program()
}

// ParseError reports a syntactic failure at a 1-based line and 0-based
// column (errors.go renders columns 1-based).
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("PARSE ERROR at %d:%d: %s", e.Line, e.Col, e.Msg)
}

//// END_OF_PUBLIC

////////////////////////////////////////////////////////////////////////////////
///////////////////////////// PRIVATE IMPLEMENTATION ///////////////////////////
////////////////////////////////////////////////////////////////////////////////

type parser struct {
	toks []Token
	i    int
}

// ─────────────────────────── token basics & helpers ─────────────────────────

func (p *parser) atEnd() bool { return p.peek().Type == EOF }

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) check(tt TokenType) bool { return p.peek().Type == tt }

func (p *parser) match(tt ...TokenType) bool {
	for _, t := range tt {
		if p.peek().Type == t {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) need(t TokenType, msg string) (Token, error) {
	if p.match(t) {
		return p.prev(), nil
	}
	return Token{}, p.errAt(p.peek(), msg)
}

func (p *parser) errAt(tok Token, msg string) error {
	return &ParseError{Line: tok.Line, Col: tok.Col, Msg: msg}
}

func (p *parser) skipNewlines() {
	for p.match(NEWLINE) {
	}
}

// emptyNode marks an absent syntax slot.
func emptyNode() S { return S{} }

// isEmptyNode reports whether n marks an absent syntax slot.
func isEmptyNode(n S) bool { return len(n) == 0 }

// nodeTag returns the tag of n, or "" for the empty node.
func nodeTag(n S) string {
	if len(n) == 0 {
		return ""
	}
	tag, _ := n[0].(string)
	return tag
}

// ─────────────────────────────── program & blocks ───────────────────────────

func (p *parser) program() (S, error) {
	out := L("block")
	p.skipNewlines()
	for !p.atEnd() {
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
		p.skipNewlines()
	}
	return out, nil
}

// suite parses ':' NEWLINE INDENT statement+ DEDENT.
func (p *parser) suite() (S, error) {
	if _, err := p.need(COLON, "expected ':'"); err != nil {
		return nil, err
	}
	if _, err := p.need(NEWLINE, "expected newline after ':'"); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.need(INDENT, "expected an indented block"); err != nil {
		return nil, err
	}
	out := L("block")
	p.skipNewlines()
	for !p.check(DEDENT) && !p.atEnd() {
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
		p.skipNewlines()
	}
	if _, err := p.need(DEDENT, "expected dedent to close block"); err != nil {
		return nil, err
	}
	return out, nil
}

// ──────────────────────────────── statements ────────────────────────────────

func (p *parser) statement() (S, error) {
	switch p.peek().Type {
	case AT:
		return p.decorated()
	case DEF:
		return p.funcDef(L("array"))
	case CLASS:
		return p.classDef(L("array"))
	case IF:
		return p.ifStmt()
	case WHILE:
		return p.whileStmt()
	case FOR:
		return p.forStmt()
	case RETURN:
		return p.returnStmt()
	case PASS:
		p.i++
		if _, err := p.need(NEWLINE, "expected newline after 'pass'"); err != nil {
			return nil, err
		}
		return L("pass"), nil
	default:
		return p.exprStmt()
	}
}

// decorated parses one or more '@expr' lines followed by a def or class.
func (p *parser) decorated() (S, error) {
	decs := L("array")
	for p.match(AT) {
		d, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		decs = append(decs, d)
		if _, err := p.need(NEWLINE, "expected newline after decorator"); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
	switch p.peek().Type {
	case DEF:
		return p.funcDef(decs)
	case CLASS:
		return p.classDef(decs)
	}
	return nil, p.errAt(p.peek(), "expected 'def' or 'class' after decorator")
}

func (p *parser) funcDef(decs S) (S, error) {
	if _, err := p.need(DEF, "expected 'def'"); err != nil {
		return nil, err
	}
	nameTok, err := p.need(ID, "expected function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.need(LPAREN, "expected '(' after function name"); err != nil {
		return nil, err
	}
	params, err := p.params()
	if err != nil {
		return nil, err
	}
	ret := emptyNode()
	if p.match(ARROW) {
		ret, err = p.expr(0)
		if err != nil {
			return nil, err
		}
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	return L("def", nameTok.Lexeme, decs, params, ret, body), nil
}

// params parses annotated parameters up to the closing ')'.
func (p *parser) params() (S, error) {
	out := L("array")
	if p.match(RPAREN) {
		return out, nil
	}
	for {
		nameTok, err := p.need(ID, "expected parameter name")
		if err != nil {
			return nil, err
		}
		annot := emptyNode()
		if p.match(COLON) {
			annot, err = p.expr(0)
			if err != nil {
				return nil, err
			}
		}
		def := emptyNode()
		if p.match(ASSIGN) {
			def, err = p.expr(0)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, L("param", nameTok.Lexeme, annot, def))

		if p.match(COMMA) {
			if p.match(RPAREN) { // trailing comma
				return out, nil
			}
			continue
		}
		if _, err := p.need(RPAREN, "expected ')' after parameters"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *parser) classDef(decs S) (S, error) {
	if _, err := p.need(CLASS, "expected 'class'"); err != nil {
		return nil, err
	}
	nameTok, err := p.need(ID, "expected class name")
	if err != nil {
		return nil, err
	}
	if p.check(LPAREN) {
		return nil, p.errAt(p.peek(), "class bases are not supported")
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	return L("class", nameTok.Lexeme, decs, body), nil
}

func (p *parser) ifStmt() (S, error) {
	p.i++ // 'if'
	out := L("if")
	cond, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	blk, err := p.suite()
	if err != nil {
		return nil, err
	}
	out = append(out, L("pair", cond, blk))
	for {
		p.skipNewlines()
		if p.match(ELIF) {
			cond, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			blk, err := p.suite()
			if err != nil {
				return nil, err
			}
			out = append(out, L("pair", cond, blk))
			continue
		}
		if p.match(ELSE) {
			blk, err := p.suite()
			if err != nil {
				return nil, err
			}
			out = append(out, blk)
		}
		return out, nil
	}
}

func (p *parser) whileStmt() (S, error) {
	p.i++ // 'while'
	cond, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	return L("while", cond, body), nil
}

func (p *parser) forStmt() (S, error) {
	p.i++ // 'for'
	target, err := p.forTarget()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(IN, "expected 'in' in for statement"); err != nil {
		return nil, err
	}
	iter, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	return L("for", target, iter, body), nil
}

// forTarget parses an identifier or a comma-separated identifier tuple.
func (p *parser) forTarget() (S, error) {
	nameTok, err := p.need(ID, "expected loop variable")
	if err != nil {
		return nil, err
	}
	first := L("id", nameTok.Lexeme)
	if !p.check(COMMA) {
		return first, nil
	}
	tup := L("tuple", first)
	for p.match(COMMA) {
		tok, err := p.need(ID, "expected loop variable after ','")
		if err != nil {
			return nil, err
		}
		tup = append(tup, L("id", tok.Lexeme))
	}
	return tup, nil
}

func (p *parser) returnStmt() (S, error) {
	p.i++ // 'return'
	if p.match(NEWLINE) {
		return L("return", emptyNode()), nil
	}
	val, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(NEWLINE, "expected newline after return value"); err != nil {
		return nil, err
	}
	return L("return", val), nil
}

// exprStmt parses an expression statement or a single assignment.
func (p *parser) exprStmt() (S, error) {
	left, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.check(ASSIGN) {
		tok := p.peek()
		if !assignable(left) {
			return nil, p.errAt(tok, "invalid assignment target")
		}
		p.i++
		val, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(NEWLINE, "expected newline after assignment"); err != nil {
			return nil, err
		}
		return L("assign", left, val), nil
	}
	if _, err := p.need(NEWLINE, "expected newline after expression"); err != nil {
		return nil, err
	}
	return left, nil
}

func assignable(n S) bool {
	switch nodeTag(n) {
	case "id", "get", "idx":
		return true
	case "tuple":
		for i := 1; i < len(n); i++ {
			sub, ok := n[i].(S)
			if !ok || !assignable(sub) {
				return false
			}
		}
		return len(n) > 1
	}
	return false
}

// ─────────────────────────────── expressions ────────────────────────────────

// Binding powers, loosest to tightest. Comparison is non-chaining; 'not'
// sits between 'and' and the comparisons, as in Python.
const (
	bpOr      = 10
	bpAnd     = 20
	bpNot     = 25
	bpCompare = 30
	bpBitOr   = 40
	bpBitAnd  = 45
	bpTerm    = 50
	bpFactor  = 60
	bpUnary   = 65
	bpPower   = 80
)

func lbp(tt TokenType) (int, bool) {
	switch tt {
	case OR:
		return bpOr, true
	case AND:
		return bpAnd, true
	case EQ, NEQ, LESS, LESS_EQ, GREATER, GREATER_EQ, IN:
		return bpCompare, true
	case PIPE:
		return bpBitOr, true
	case AMP:
		return bpBitAnd, true
	case PLUS, MINUS:
		return bpTerm, true
	case STAR, SLASH, FLOORDIV, PERCENT:
		return bpFactor, true
	case POWER:
		return bpPower, true
	}
	return 0, false
}

func isRightAssoc(tt TokenType) bool { return tt == POWER }

func (p *parser) expr(minBP int) (S, error) {
	t := p.peek()
	p.i++

	var left S

	// ---- prefix ----
	switch t.Type {
	case ID:
		left = L("id", t.Lexeme)
	case INTEGER:
		left = L("int", t.Literal.(int64))
	case NUMBER:
		left = L("num", t.Literal.(float64))
	case STRING:
		left = L("str", t.Literal.(string))
	case BOOLEAN:
		left = L("bool", t.Literal.(bool))
	case NONE:
		left = L("null")
	case MINUS, PLUS:
		r, err := p.expr(bpUnary)
		if err != nil {
			return nil, err
		}
		left = L("unop", t.Lexeme, r)
	case NOT:
		r, err := p.expr(bpNot)
		if err != nil {
			return nil, err
		}
		left = L("unop", t.Lexeme, r)
	case LPAREN:
		inner, err := p.parseGrouping()
		if err != nil {
			return nil, err
		}
		left = inner
	case LSQUARE:
		arr, err := p.parseListUntil(RSQUARE, "expected ']'")
		if err != nil {
			return nil, err
		}
		left = append(L("array"), arr...)
	case LCURLY:
		mp, err := p.mapLiteral()
		if err != nil {
			return nil, err
		}
		left = mp
	case LAMBDA:
		lam, err := p.lambdaExpr()
		if err != nil {
			return nil, err
		}
		left = lam
	default:
		return nil, p.errAt(t, fmt.Sprintf("unexpected token '%s'", tokenLabel(t)))
	}

	// ---- postfix chain: calls, subscripts, attribute access ----
	for {
		switch p.peek().Type {
		case LPAREN:
			p.i++
			args, err := p.callArgs()
			if err != nil {
				return nil, err
			}
			left = append(L("call", left), args...)
			continue
		case LSQUARE:
			p.i++
			items, err := p.parseListUntil(RSQUARE, "expected ']' after subscript")
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, p.errAt(p.prev(), "empty subscript")
			}
			idx := items[0].(S)
			if len(items) > 1 {
				idx = append(L("tuple"), items...)
			}
			left = L("idx", left, idx)
			continue
		case PERIOD:
			p.i++
			nameTok, err := p.need(ID, "expected attribute name after '.'")
			if err != nil {
				return nil, err
			}
			left = L("get", left, L("str", nameTok.Lexeme))
			continue
		}
		break
	}

	// ---- infix ops ----
	for {
		op := p.peek()
		bp, ok := lbp(op.Type)
		if !ok || bp < minBP {
			break
		}
		p.i++
		nextBP := bp + 1
		if isRightAssoc(op.Type) {
			nextBP = bp
		}
		right, err := p.expr(nextBP)
		if err != nil {
			return nil, err
		}
		left = L("binop", op.Lexeme, left, right)
	}
	return left, nil
}

// parseGrouping parses the interior of '(...)': a parenthesized expression,
// a tuple, or the empty tuple.
func (p *parser) parseGrouping() (S, error) {
	if p.match(RPAREN) {
		return L("tuple"), nil
	}
	first, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.match(RPAREN) {
		return first, nil
	}
	tup := L("tuple", first)
	for {
		if p.match(COMMA) {
			if p.match(RPAREN) { // trailing comma: (a,) stays a tuple
				return tup, nil
			}
			e, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			tup = append(tup, e)
			continue
		}
		if _, err := p.need(RPAREN, "expected ')'"); err != nil {
			return nil, err
		}
		return tup, nil
	}
}

// parseListUntil parses a comma-separated expression list terminated by
// close. The opening bracket is already consumed.
func (p *parser) parseListUntil(close TokenType, closeMsg string) ([]any, error) {
	var out []any
	if p.match(close) {
		return out, nil
	}
	for {
		e, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if p.match(COMMA) {
			if p.match(close) { // trailing comma
				return out, nil
			}
			continue
		}
		if _, err := p.need(close, closeMsg); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// callArgs parses call arguments after '('; 'name=value' becomes a kw node.
func (p *parser) callArgs() ([]any, error) {
	var out []any
	if p.match(RPAREN) {
		return out, nil
	}
	for {
		if p.check(ID) && p.i+1 < len(p.toks) && p.toks[p.i+1].Type == ASSIGN {
			nameTok := p.peek()
			p.i += 2
			val, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			out = append(out, L("kw", nameTok.Lexeme, val))
		} else {
			e, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		if p.match(COMMA) {
			if p.match(RPAREN) { // trailing comma
				return out, nil
			}
			continue
		}
		if _, err := p.need(RPAREN, "expected ')' after call arguments"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// mapLiteral parses '{ k: v, ... }' after the opening '{'.
func (p *parser) mapLiteral() (S, error) {
	out := L("map")
	if p.match(RCURLY) {
		return out, nil
	}
	for {
		k, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(COLON, "expected ':' in map literal"); err != nil {
			return nil, err
		}
		v, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		out = append(out, L("pair", k, v))
		if p.match(COMMA) {
			if p.match(RCURLY) { // trailing comma
				return out, nil
			}
			continue
		}
		if _, err := p.need(RCURLY, "expected '}'"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// lambdaExpr parses 'lambda a, b: expr' (parameters are annotation-free).
func (p *parser) lambdaExpr() (S, error) {
	params := L("array")
	for p.check(ID) {
		tok := p.peek()
		p.i++
		params = append(params, L("param", tok.Lexeme, emptyNode(), emptyNode()))
		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.need(COLON, "expected ':' after lambda parameters"); err != nil {
		return nil, err
	}
	body, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	return L("lambda", params, body), nil
}

func tokenLabel(t Token) string {
	switch t.Type {
	case EOF:
		return "end of input"
	case NEWLINE:
		return "newline"
	case INDENT:
		return "indent"
	case DEDENT:
		return "dedent"
	}
	return t.Lexeme
}
