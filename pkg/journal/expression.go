package journal

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// The expression grammar is deliberately small: addition, subtraction,
// multiplication, division, unary minus, parentheses, decimal literals,
// and bare context-key identifiers. No function calls, no comparisons, no
// strings. Identifiers resolve as context lookups with a zero default.

var ErrInvalidExpression = errors.New("invalid expression")

// Expr is a parsed arithmetic expression ready for repeated evaluation.
type Expr struct {
	root exprNode
	src  string
}

// ParseExpression parses src with standard operator precedence.
func ParseExpression(src string) (*Expr, error) {
	parser := &exprParser{tokens: tokenize(src)}

	root, err := parser.parseSum()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, src, err)
	}

	if !parser.done() {
		return nil, fmt.Errorf("%w: %q: unexpected token %q", ErrInvalidExpression, src, parser.peek())
	}

	return &Expr{root: root, src: src}, nil
}

// Eval evaluates the expression against the run context. The second return
// is true when the result was degraded: a missing or non-numeric context
// key, or a division by zero, both of which resolve to zero instead of
// failing the run.
func (e *Expr) Eval(ctx *Context) (decimal.Decimal, bool) {
	return e.root.eval(ctx)
}

// Source returns the original expression text.
func (e *Expr) Source() string {
	return e.src
}

type exprNode interface {
	eval(ctx *Context) (decimal.Decimal, bool)
}

type literalNode struct {
	value decimal.Decimal
}

func (n literalNode) eval(_ *Context) (decimal.Decimal, bool) {
	return n.value, false
}

type identNode struct {
	key string
}

func (n identNode) eval(ctx *Context) (decimal.Decimal, bool) {
	value, ok := ctx.Decimal(n.key)

	return value, !ok
}

type unaryNode struct {
	operand exprNode
}

func (n unaryNode) eval(ctx *Context) (decimal.Decimal, bool) {
	value, degraded := n.operand.eval(ctx)

	return value.Neg(), degraded
}

type binaryNode struct {
	op          rune
	left, right exprNode
}

func (n binaryNode) eval(ctx *Context) (decimal.Decimal, bool) {
	left, leftDegraded := n.left.eval(ctx)
	right, rightDegraded := n.right.eval(ctx)
	degraded := leftDegraded || rightDegraded

	switch n.op {
	case '+':
		return left.Add(right), degraded
	case '-':
		return left.Sub(right), degraded
	case '*':
		return left.Mul(right), degraded
	case '/':
		if right.IsZero() {
			// Division by zero resolves to zero rather than failing the run.
			return decimal.Zero, true
		}

		return left.Div(right), degraded
	default:
		return decimal.Zero, true
	}
}

type token struct {
	kind rune // one of '+', '-', '*', '/', '(', ')', 'n' (number), 'i' (identifier), 0 (end)
	text string
}

func tokenize(src string) []token {
	tokens := make([]token, 0)
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case strings.ContainsRune("+-*/()", r):
			tokens = append(tokens, token{kind: r, text: string(r)})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}

			tokens = append(tokens, token{kind: 'n', text: string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}

			tokens = append(tokens, token{kind: 'i', text: string(runes[start:i])})
		default:
			tokens = append(tokens, token{kind: '?', text: string(r)})
			i++
		}
	}

	return tokens
}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *exprParser) peek() string {
	if p.done() {
		return ""
	}

	return p.tokens[p.pos].text
}

func (p *exprParser) next() (token, bool) {
	if p.done() {
		return token{}, false
	}

	tok := p.tokens[p.pos]
	p.pos++

	return tok, true
}

func (p *exprParser) accept(kind rune) bool {
	if p.done() || p.tokens[p.pos].kind != kind {
		return false
	}

	p.pos++

	return true
}

func (p *exprParser) parseSum() (exprNode, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}

	for !p.done() {
		op := p.tokens[p.pos].kind
		if op != '+' && op != '-' {
			break
		}

		p.pos++

		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}

		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *exprParser) parseProduct() (exprNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for !p.done() {
		op := p.tokens[p.pos].kind
		if op != '*' && op != '/' {
			break
		}

		p.pos++

		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}

		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *exprParser) parseFactor() (exprNode, error) {
	tok, ok := p.next()
	if !ok {
		return nil, errors.New("unexpected end of expression")
	}

	switch tok.kind {
	case '-':
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}

		return unaryNode{operand: operand}, nil
	case '(':
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}

		if !p.accept(')') {
			return nil, errors.New("missing closing parenthesis")
		}

		return inner, nil
	case 'n':
		value, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", tok.text)
		}

		return literalNode{value: value}, nil
	case 'i':
		return identNode{key: tok.text}, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", tok.text)
	}
}
