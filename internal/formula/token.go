package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// kind is the lexical class of a token.
type kind int

const (
	tEOF kind = iota
	tNumber
	tString
	tIdent
	tOp
	tNewline
)

type token struct {
	kind kind
	text string  // operator or identifier text, decoded string literal
	num  float64 // tNumber only
	pos  int     // byte offset in the source
}

func (t token) String() string {
	switch t.kind {
	case tEOF:
		return "end of formula"
	case tNumber:
		return strconv.FormatFloat(t.num, 'g', -1, 64)
	case tString:
		return strconv.Quote(t.text)
	case tNewline:
		return "newline"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func (t token) is(op string) bool {
	return t.kind == tOp && t.text == op
}

func (t token) isWord(w string) bool {
	return t.kind == tIdent && t.text == w
}

// operators, longest first so that the lexer is greedy.
var operators = []string{
	"===", "!==",
	"**", "==", "!=", "<=", ">=", "&&", "||", "=>",
	"+", "-", "*", "/", "%", "(", ")", "[", "]", ",", ".", "?", ":", "<", ">", "!", "=", ";",
}

// lex splits src into tokens. Newlines are only emitted when keepNewlines is set;
// custom function bodies use them as statement separators.
func lex(src string, keepNewlines bool) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			if keepNewlines {
				toks = append(toks, token{kind: tNewline, pos: i})
			}
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.' || src[i] == '_') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					i = j
					for i < len(src) && isDigit(src[i]) {
						i++
					}
				}
			}
			lit := strings.ReplaceAll(src[start:i], "_", "")
			f, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q at offset %d", ErrSyntax, src[start:i], start)
			}
			toks = append(toks, token{kind: tNumber, num: f, pos: start})
		case c == '\'' || c == '"':
			start := i
			s, n, err := scanString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("%w: %v at offset %d", ErrSyntax, err, start)
			}
			toks = append(toks, token{kind: tString, text: s, pos: start})
			i += n
		case c == '_' || isLetter(c):
			start := i
			for i < len(src) && (src[i] == '_' || isDigit(src[i]) || isLetter(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tIdent, text: src[start:i], pos: start})
		default:
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, c, i)
			}
			if op == ";" {
				toks = append(toks, token{kind: tNewline, pos: i})
			} else {
				toks = append(toks, token{kind: tOp, text: op, pos: i})
			}
			i += len(op)
		}
	}
	toks = append(toks, token{kind: tEOF, pos: len(src)})
	return toks, nil
}

// scanString reads a quoted literal at the start of s and returns its decoded
// value and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	quote := s[0]
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case quote:
			return sb.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated string")
			}
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(s[i])
			}
		case '\n':
			return "", 0, fmt.Errorf("unterminated string")
		default:
			sb.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// IsIdentifier reports whether s is a valid field, constant or function name.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || isLetter(c) || (i > 0 && isDigit(c)) {
			continue
		}
		return false
	}
	return !reserved[s]
}

var reserved = map[string]bool{
	"variables": true, "doc_totals": true, "constants": true, "items": true,
	"custom": true, "math": true, "true": true, "false": true, "True": true, "False": true,
	"and": true, "or": true, "not": true, "if": true, "else": true, "return": true,
}
