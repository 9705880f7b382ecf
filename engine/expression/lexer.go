package expression

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errDisallowedChar  = errors.New("expression: disallowed character")
	errUnexpectedToken = errors.New("expression: unexpected token")
	errUnterminated    = errors.New("expression: unterminated expression")
	errNotComparable   = errors.New("expression: operands not comparable")
	errUnknownOperator = errors.New("expression: unknown operator")
)

// allowedLetters is the exact set of lowercase letters that appear in the
// literals "true" and "false". No other letter may appear anywhere in a
// condition string, which rejects identifiers such as "constructor",
// "process" and "require" before the parser ever runs. A word spelled only
// from these letters (such as "alert") passes this filter and is rejected
// by lexWord, which accepts only "true" and "false".
const allowedLetters = "truefals"

func isAllowedChar(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '-':
		return true
	case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		return true
	case r == '=' || r == '!' || r == '<' || r == '>':
		return true
	case r == '&' || r == '|':
		return true
	case r == '(' || r == ')':
		return true
	case strings.ContainsRune(allowedLetters, r):
		return true
	}
	return false
}

// whitelisted reports whether every rune in expr belongs to the allowed
// character class (spec §4.A). This is a necessary, not sufficient,
// condition — the parser still must recognize only valid grammar.
func whitelisted(expr string) bool {
	for _, r := range expr {
		if !isAllowedChar(r) {
			return false
		}
	}
	return true
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokTrue
	tokFalse
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokEq
	tokNeq
	tokGe
	tokLe
	tokGt
	tokLt
	tokMinus
)

type token struct {
	kind tokenKind
	num  float64
}

type lexer struct {
	src  []rune
	pos  int
	toks []token
}

func lex(expr string) ([]token, error) {
	l := &lexer{src: []rune(expr)}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tokEOF})
			return l.toks, nil
		}
		c := l.src[l.pos]
		switch {
		case c == '(':
			l.toks = append(l.toks, token{kind: tokLParen})
			l.pos++
		case c == ')':
			l.toks = append(l.toks, token{kind: tokRParen})
			l.pos++
		case c == '&':
			if !l.peekSeq("&&") {
				return nil, errUnexpectedToken
			}
			l.toks = append(l.toks, token{kind: tokAnd})
			l.pos += 2
		case c == '|':
			if !l.peekSeq("||") {
				return nil, errUnexpectedToken
			}
			l.toks = append(l.toks, token{kind: tokOr})
			l.pos += 2
		case c == '=':
			if !l.peekSeq("===") {
				return nil, errUnexpectedToken
			}
			l.toks = append(l.toks, token{kind: tokEq})
			l.pos += 3
		case c == '!':
			if !l.peekSeq("!==") {
				return nil, errUnexpectedToken
			}
			l.toks = append(l.toks, token{kind: tokNeq})
			l.pos += 3
		case c == '>':
			if l.peekSeq(">=") {
				l.toks = append(l.toks, token{kind: tokGe})
				l.pos += 2
			} else {
				l.toks = append(l.toks, token{kind: tokGt})
				l.pos++
			}
		case c == '<':
			if l.peekSeq("<=") {
				l.toks = append(l.toks, token{kind: tokLe})
				l.pos += 2
			} else {
				l.toks = append(l.toks, token{kind: tokLt})
				l.pos++
			}
		case c >= '0' && c <= '9':
			n, err := l.lexNumber()
			if err != nil {
				return nil, err
			}
			l.toks = append(l.toks, token{kind: tokNumber, num: n})
		case c == '-':
			// Unary minus; lexed as its own token and applied by the
			// parser's unary production to the atom that follows it.
			l.toks = append(l.toks, token{kind: tokMinus})
			l.pos++
		case isAllowedChar(c):
			word, err := l.lexWord()
			if err != nil {
				return nil, err
			}
			switch word {
			case "true":
				l.toks = append(l.toks, token{kind: tokTrue})
			case "false":
				l.toks = append(l.toks, token{kind: tokFalse})
			default:
				return nil, errUnexpectedToken
			}
		default:
			return nil, errDisallowedChar
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) peekSeq(seq string) bool {
	r := []rune(seq)
	if l.pos+len(r) > len(l.src) {
		return false
	}
	for i, c := range r {
		if l.src[l.pos+i] != c {
			return false
		}
	}
	return true
}

func (l *lexer) lexNumber() (float64, error) {
	start := l.pos
	sawDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		if c == '.' && !sawDot {
			sawDot = true
			l.pos++
			continue
		}
		break
	}
	text := string(l.src[start:l.pos])
	return parseFloatStrict(text)
}

func (l *lexer) lexWord() (string, error) {
	start := l.pos
	for l.pos < len(l.src) && strings.ContainsRune(allowedLetters, l.src[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return "", errUnexpectedToken
	}
	return string(l.src[start:l.pos]), nil
}

// parseFloatStrict parses a digit string the lexer has already restricted
// to [0-9.]+, so it can never see the "Inf"/"NaN"/hex-float forms
// strconv.ParseFloat also accepts.
func parseFloatStrict(text string) (float64, error) {
	if text == "" || text == "." {
		return 0, errUnexpectedToken
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errUnexpectedToken
	}
	return v, nil
}
