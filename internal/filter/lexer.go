package filter

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var operators = []string{"!=", "<=", ">=", "^=", "$=", "=", "<", ">", "~"}

func isOpChar(r byte) bool {
	return strings.IndexByte("=!<>^$~", r) >= 0
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(input[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			tokens = append(tokens, token{kind: tokString, text: input[i+1 : i+1+end], pos: i})
			i += end + 2
		case c == '&' && strings.HasPrefix(input[i:], "&&"):
			tokens = append(tokens, token{kind: tokAnd, text: "&&", pos: i})
			i += 2
		case c == '|' && strings.HasPrefix(input[i:], "||"):
			tokens = append(tokens, token{kind: tokOr, text: "||", pos: i})
			i += 2
		case isOpChar(c):
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(input[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				if c == '!' {
					tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
					i++
					continue
				}
				return nil, fmt.Errorf("unexpected %q at %d", c, i)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		default:
			start := i
			for i < len(input) && !unicode.IsSpace(rune(input[i])) && !isOpChar(input[i]) &&
				input[i] != '(' && input[i] != ')' && input[i] != '"' && input[i] != '\'' {
				i++
			}
			word := input[start:i]
			tok := token{kind: tokWord, text: word, pos: start}
			switch strings.ToLower(word) {
			case "and":
				tok.kind = tokAnd
			case "or":
				tok.kind = tokOr
			case "not":
				tok.kind = tokNot
			}
			tokens = append(tokens, tok)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(input)}), nil
}
