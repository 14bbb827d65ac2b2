package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokString
	tokLParen
	tokRParen
	tokComma
	tokNot
	tokMinus
	tokAnd
	tokOr
	tokEq
	tokNeq
	tokLt
	tokLe
	tokGt
	tokGe
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokIdent:  "identifier",
	tokInt:    "integer",
	tokString: "string",
	tokLParen: "'('",
	tokRParen: "')'",
	tokComma:  "','",
	tokNot:    "'!'",
	tokMinus:  "'-'",
	tokAnd:    "'&&'",
	tokOr:     "'||'",
	tokEq:     "'=='",
	tokNeq:    "'!='",
	tokLt:     "'<'",
	tokLe:     "'<='",
	tokGt:     "'>'",
	tokGe:     "'>='",
}

func (k tokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	pos  int
	text string
	// num is the magnitude of an integer literal; the sign is a separate token.
	num uint64
}

// lex splits src into tokens. The final token is always tokEOF.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, pos: i})
			i++
		case c == '-':
			toks = append(toks, token{kind: tokMinus, pos: i})
			i++
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokNeq, pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokNot, pos: i})
				i++
			}
		case c == '=':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokEq, pos: i})
				i += 2
			} else {
				return nil, &SyntaxError{Source: src, Pos: i, Msg: "unexpected '=', did you mean '=='?"}
			}
		case c == '<' || c == '>':
			kind := tokLt
			if c == '>' {
				kind = tokGt
			}
			if i+1 < len(src) && src[i+1] == '=' {
				kind++
				toks = append(toks, token{kind: kind, pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: kind, pos: i})
				i++
			}
		case c == '&' || c == '|':
			if i+1 >= len(src) || src[i+1] != c {
				return nil, &SyntaxError{Source: src, Pos: i, Msg: fmt.Sprintf("unexpected %q, expected %q", c, string([]byte{c, c}))}
			}
			kind := tokAnd
			if c == '|' {
				kind = tokOr
			}
			toks = append(toks, token{kind: kind, pos: i})
			i += 2
		case c == '"':
			s, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, pos: i, text: s})
			i += n
		case isDigit(c):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			n, err := strconv.ParseUint(src[start:i], 10, 64)
			if err != nil {
				return nil, &SyntaxError{Source: src, Pos: start, Msg: "integer literal out of range"}
			}
			toks = append(toks, token{kind: tokInt, pos: start, text: src[start:i], num: n})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, pos: start, text: src[start:i]})
		default:
			return nil, &SyntaxError{Source: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// lexString scans a double-quoted literal starting at src[start] and returns
// the unescaped text plus the number of bytes consumed.
func lexString(src string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch c {
		case '"':
			return sb.String(), i - start + 1, nil
		case '\\':
			if i+1 >= len(src) {
				return "", 0, &SyntaxError{Source: src, Pos: i, Msg: "unterminated escape sequence"}
			}
			switch src[i+1] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return "", 0, &SyntaxError{Source: src, Pos: i, Msg: fmt.Sprintf("unknown escape sequence \\%c", src[i+1])}
			}
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, &SyntaxError{Source: src, Pos: start, Msg: "unterminated string literal"}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
