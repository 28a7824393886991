package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// Predicate decides whether a request is selected.
type Predicate interface {
	Match(r request.Request) bool
	String() string
}

type andPred struct{ left, right Predicate }

func (p andPred) Match(r request.Request) bool { return p.left.Match(r) && p.right.Match(r) }
func (p andPred) String() string               { return "(" + p.left.String() + " and " + p.right.String() + ")" }

type orPred struct{ left, right Predicate }

func (p orPred) Match(r request.Request) bool { return p.left.Match(r) || p.right.Match(r) }
func (p orPred) String() string               { return "(" + p.left.String() + " or " + p.right.String() + ")" }

type notPred struct{ inner Predicate }

func (p notPred) Match(r request.Request) bool { return !p.inner.Match(r) }
func (p notPred) String() string               { return "not " + p.inner.String() }

type truthy struct{ field Field }

func (p truthy) Match(r request.Request) bool {
	v := Value(r, p.field)
	return v != "" && v != "false" && v != "0"
}

func (p truthy) String() string { return string(p.field) }

type comparison struct {
	field Field
	op    string
	value string
	num   int64
	glob  glob.Glob
}

func newComparison(field Field, op, value string) (*comparison, error) {
	c := &comparison{field: field, op: op, value: value}
	switch {
	case op == "~":
		g, err := glob.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", value, err)
		}
		c.glob = g
	case numeric(field) && op != "^=" && op != "$=":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number, got %q", field, value)
		}
		c.num = n
	}
	return c, nil
}

func (c *comparison) Match(r request.Request) bool {
	v := Value(r, c.field)
	switch c.op {
	case "~":
		return c.glob.Match(v)
	case "^=":
		return strings.HasPrefix(v, c.value)
	case "$=":
		return strings.HasSuffix(v, c.value)
	}
	var cmp int
	if numeric(c.field) {
		n, _ := strconv.ParseInt(v, 10, 64)
		switch {
		case n < c.num:
			cmp = -1
		case n > c.num:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(v, c.value)
	}
	switch c.op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func (c *comparison) String() string {
	return fmt.Sprintf("%s %s %q", c.field, c.op, c.value)
}

// Parse compiles a predicate expression.
func Parse(expr string) (Predicate, error) {
	tokens, err := lex(expr)
	if err != nil {
		return nil, invalid(expr, err)
	}
	p := &parser{tokens: tokens}
	pred, err := p.parseOr()
	if err != nil {
		return nil, invalid(expr, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, invalid(expr, fmt.Errorf("unexpected %q at %d", tok.text, tok.pos))
	}
	return pred, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(expr string) Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func invalid(expr string, err error) error {
	return errors.NewValidationError(err.Error()).WithField("filter").WithValue(expr)
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orPred{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andPred{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	tok := p.next()
	switch tok.kind {
	case tokNot:
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notPred{inner}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at %d", closing.pos)
		}
		return inner, nil
	case tokWord:
		return p.parseComparison(tok)
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at %d", tok.text, tok.pos)
}

func (p *parser) parseComparison(fieldTok token) (Predicate, error) {
	name := strings.ToLower(fieldTok.text)
	if !validField(name) {
		return nil, fmt.Errorf("unknown field %q (valid: %s)", fieldTok.text, strings.Join(Fields(), ", "))
	}
	field := Field(name)
	if p.peek().kind != tokOp {
		return truthy{field}, nil
	}
	op := p.next().text
	value := p.next()
	if value.kind != tokWord && value.kind != tokString {
		return nil, fmt.Errorf("expected value after %s at %d", op, value.pos)
	}
	return newComparison(field, op, value.text)
}
