package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quanta-labs/qprove/internal/diag"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokCaret
	tokAdjoint // ' or †
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokSemi
	tokAssign
	tokEqEq
	tokInvalid
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokCaret:
		return "'^'"
	case tokAdjoint:
		return "adjoint"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokComma:
		return "','"
	case tokSemi:
		return "';'"
	case tokAssign:
		return "'='"
	case tokEqEq:
		return "'=='"
	default:
		return "invalid token"
	}
}

type token struct {
	kind   tokenKind
	lexeme string
	span   diag.Span
}

func (t token) describe() string {
	switch t.kind {
	case tokIdent, tokNumber, tokInvalid:
		return fmt.Sprintf("%s %q", t.kind, t.lexeme)
	default:
		return t.kind.String()
	}
}

type lexer struct {
	file   string
	src    string
	pos    int
	line   int
	col    int
	tokens []token
}

// lex splits the source into spanned tokens. Invalid runes become
// tokInvalid tokens so the parser can report them with a span instead of
// failing globally.
func lex(file, src string) []token {
	l := &lexer{file: file, src: src, line: 1, col: 1}
	for l.pos < len(l.src) {
		l.skipSpaceAndComments()
		if l.pos >= len(l.src) {
			break
		}
		l.next()
	}
	l.emitAt(tokEOF, "", l.line, l.col)
	return l.tokens
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.pos++
			l.line++
			l.col = 1
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
			l.col++
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() {
	startLine, startCol := l.line, l.col
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])

	switch {
	case r == '†':
		l.advance(size)
		l.emitAt(tokAdjoint, "†", startLine, startCol)
	case r == '\'':
		l.advance(1)
		l.emitAt(tokAdjoint, "'", startLine, startCol)
	case unicode.IsLetter(r) || r == '_':
		start := l.pos
		for l.pos < len(l.src) {
			r2, s2 := utf8.DecodeRuneInString(l.src[l.pos:])
			if !unicode.IsLetter(r2) && !unicode.IsDigit(r2) && r2 != '_' {
				break
			}
			l.advance(s2)
		}
		l.emitAt(tokIdent, l.src[start:l.pos], startLine, startCol)
	case unicode.IsDigit(r):
		start := l.pos
		l.scanNumber()
		l.emitAt(tokNumber, l.src[start:l.pos], startLine, startCol)
	default:
		l.advance(size)
		kind := tokInvalid
		switch r {
		case '+':
			kind = tokPlus
		case '-':
			kind = tokMinus
		case '*':
			kind = tokStar
		case '/':
			kind = tokSlash
		case '^':
			kind = tokCaret
		case '(':
			kind = tokLParen
		case ')':
			kind = tokRParen
		case '[':
			kind = tokLBracket
		case ']':
			kind = tokRBracket
		case '{':
			kind = tokLBrace
		case '}':
			kind = tokRBrace
		case ',':
			kind = tokComma
		case ';':
			kind = tokSemi
		case '=':
			if l.pos < len(l.src) && l.src[l.pos] == '=' {
				l.advance(1)
				l.emitAt(tokEqEq, "==", startLine, startCol)
				return
			}
			kind = tokAssign
		}
		l.emitAt(kind, string(r), startLine, startCol)
	}
}

func (l *lexer) scanNumber() {
	digits := func() {
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.advance(1)
		}
	}
	digits()
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.advance(1)
		digits()
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.advance(1)
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.advance(1)
		}
		if l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			digits()
		} else {
			// not an exponent, back off
			l.col -= l.pos - save
			l.pos = save
		}
	}
}

// advance consumes n bytes as a single column (multi-byte runes count once).
func (l *lexer) advance(n int) {
	l.pos += n
	l.col++
}

func (l *lexer) emitAt(kind tokenKind, lexeme string, line, col int) {
	l.tokens = append(l.tokens, token{
		kind:   kind,
		lexeme: lexeme,
		span: diag.Span{
			File:      l.file,
			Line:      line,
			Column:    col,
			EndLine:   l.line,
			EndColumn: l.col,
		},
	})
}

// isKeyword reports whether an identifier is a reserved statement keyword.
func isKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "const", "symbol", "operator", "matrix", "state", "density",
		"unitary", "hamiltonian", "func", "measurement", "assume", "prove", "is":
		return true
	}
	return false
}
