package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Kestrel source
// ---------------------------------------------------------------------------

// Lexer tokenizes Kestrel source code. It never fails: characters that
// start no token become TokenIllegal and are reported by the parser.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
	nextCol int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:   input,
		line:    1,
		nextCol: 1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.nextCol = 1
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col = l.nextCol
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col = l.nextCol
	l.nextCol++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	line, col := l.line, l.col
	tok := func(typ TokenType, lexeme string) Token {
		return Token{Type: typ, Lexeme: lexeme, Power: bindingPowers[typ], Line: line, Column: col}
	}

	if l.atEOF() {
		return tok(TokenEOF, "")
	}

	switch {
	case l.ch == '"':
		return tok(TokenString, l.readString())
	case isDigit(l.ch):
		typ, text := l.readNumber()
		return tok(typ, text)
	case isLetter(l.ch):
		word := l.readWord()
		for _, kw := range keywords {
			if kw.word == word {
				return tok(kw.typ, word)
			}
		}
		return tok(TokenIdentifier, word)
	}

	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			for range op.text {
				l.readChar()
			}
			return tok(op.typ, op.text)
		}
	}

	ch := l.ch
	l.readChar()
	return tok(TokenIllegal, string(ch))
}

// skipWhitespaceAndComments skips whitespace, line comments and block
// comments. An unterminated block comment runs to the end of input.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for !l.atEOF() && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if !l.atEOF() {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// readString reads a double-quoted string and returns its unescaped
// contents. An unterminated string is truncated at end of input.
func (l *Lexer) readString() string {
	var sb strings.Builder
	l.readChar() // skip opening quote
	for !l.atEOF() && l.ch != '"' {
		if l.ch == '\\' {
			l.readChar()
			if l.atEOF() {
				break
			}
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '0':
				sb.WriteRune(0)
			default:
				sb.WriteRune(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	if !l.atEOF() {
		l.readChar() // skip closing quote
	}
	return sb.String()
}

// readNumber reads an integer or float literal. A dot only belongs to the
// number when digits follow it, so "1." lexes as 1 followed by a dot.
func (l *Lexer) readNumber() (TokenType, string) {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return TokenFloat, l.input[start:l.pos]
	}
	return TokenInt, l.input[start:l.pos]
}

func (l *Lexer) readWord() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens in input, ending with TokenEOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
