package resolve

import (
	"strconv"
	"strings"

	"github.com/orbyt-dev/orbyt/internal/errs"
)

// Expression AST. The grammar is deliberately small: paths, literals,
// builtin calls, and the infix default operator. There is no arithmetic.
//
//	expr    := primary ( "||" primary )*
//	primary := literal | call | path
//	literal := quoted-string | number | "true" | "false" | "null"
//	call    := ident "()"
//	path    := ident ( "." ident )*

type exprNode interface{ exprNode() }

// pathNode is a namespace-qualified path, e.g. steps.build.artifact.
type pathNode struct {
	parts []string
}

// callNode is a builtin function call, e.g. now().
type callNode struct {
	name string
}

// litNode is a literal value: string, int, float64, bool, or nil.
type litNode struct {
	val any
}

// defaultNode is `left || right`: right is evaluated only when left is
// unset, null, the empty string, or fails with a lookup error.
type defaultNode struct {
	left, right exprNode
}

func (*pathNode) exprNode()    {}
func (*callNode) exprNode()    {}
func (*litNode) exprNode()     {}
func (*defaultNode) exprNode() {}

// parseExpr parses the text between ${ and } into an AST. The entire input
// must be consumed; trailing garbage is an error.
func parseExpr(src string) (exprNode, error) {
	p := &parser{src: src}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return node, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	e := errs.Newf(errs.CodeResolution, "invalid expression %q: "+format,
		append([]any{p.src}, args...)...)
	return e
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) parseExpression() (exprNode, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !strings.HasPrefix(p.src[p.pos:], "||") {
			return left, nil
		}
		p.pos += 2
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &defaultNode{left: left, right: right}
	}
}

func (p *parser) parsePrimary() (exprNode, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("expected a value")
	}

	c := p.src[p.pos]
	switch {
	case c == '\'' || c == '"':
		return p.parseQuoted(c)
	case c >= '0' && c <= '9', c == '-' || c == '+':
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdentifierExpr()
	default:
		return nil, p.errorf("unexpected character %q", string(c))
	}
}

// parseQuoted parses a single- or double-quoted string literal with
// backslash escapes for the quote character and backslash itself.
func (p *parser) parseQuoted(quote byte) (exprNode, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case quote:
			p.pos++
			return &litNode{val: b.String()}, nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, p.errorf("dangling escape")
			}
			p.pos++
			b.WriteByte(p.src[p.pos])
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.errorf("unterminated string literal")
}

// parseNumber parses a signed decimal. Integral values become int so they
// survive round-trips through the exact-expression path without a float
// conversion; values with a fractional part become float64.
func (p *parser) parseNumber() (exprNode, error) {
	start := p.pos
	if c := p.src[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	digits := 0
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
		digits++
	}
	isFloat := false
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		isFloat = true
		p.pos++
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
			digits++
		}
	}
	if digits == 0 {
		return nil, p.errorf("malformed number")
	}

	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("malformed number %q", text)
		}
		return &litNode{val: f}, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return nil, p.errorf("malformed number %q", text)
	}
	return &litNode{val: n}, nil
}

// parseIdentifierExpr parses a bare-word literal (true/false/null), a
// builtin call, or a dotted path.
func (p *parser) parseIdentifierExpr() (exprNode, error) {
	first := p.parseIdent()

	// A trailing "()" makes this a builtin call.
	if strings.HasPrefix(p.src[p.pos:], "()") {
		p.pos += 2
		return &callNode{name: first}, nil
	}

	// Bare-word literals are only recognized when not followed by a dot,
	// so a step named "true" remains addressable as steps.true.x.
	if p.pos >= len(p.src) || p.src[p.pos] != '.' {
		switch first {
		case "true":
			return &litNode{val: true}, nil
		case "false":
			return &litNode{val: false}, nil
		case "null":
			return &litNode{val: nil}, nil
		}
	}

	parts := []string{first}
	for p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		if p.pos >= len(p.src) || !isIdentStart(p.src[p.pos]) {
			return nil, p.errorf("expected identifier after %q", strings.Join(parts, ".")+".")
		}
		parts = append(parts, p.parseIdent())
	}
	return &pathNode{parts: parts}, nil
}

// parseIdent consumes an identifier: [A-Za-z_][A-Za-z0-9_-]*. The caller
// must have verified isIdentStart on the current byte.
func (p *parser) parseIdent() string {
	start := p.pos
	p.pos++
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}
