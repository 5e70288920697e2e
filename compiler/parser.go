package compiler

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Parser: Pratt parser for Kestrel
// ---------------------------------------------------------------------------

// Parser turns a token stream into a tree of Nodes. Syntax errors are
// collected as diagnostics; after each one the parser skips to the next
// statement boundary and carries on.
type Parser struct {
	tokens []Token
	pos    int
	cur    Token
	nodes  *nodeArena
	diags  diagnosticSink
}

// errSyntax is returned up to the enclosing statement after a syntax
// error has been recorded as a diagnostic.
var errSyntax = errors.New("syntax error")

// NewParser creates a parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		tokens: Tokenize(input),
		nodes:  &nodeArena{},
		diags:  diagnosticSink{stage: StageParser},
	}
	p.cur = p.tokens[0]
	return p
}

// Parse parses a whole program. The returned tree is usable even when
// diagnostics are reported; statements that failed to parse are dropped.
func Parse(input string) (*Node, Diagnostics) {
	p := NewParser(input)
	prog := p.ParseProgram()
	return prog, p.Diagnostics()
}

// Diagnostics returns the syntax errors collected so far.
func (p *Parser) Diagnostics() Diagnostics {
	return p.diags.list
}

// advance consumes the current token and returns it.
func (p *Parser) advance() Token {
	tok := p.cur
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.cur = p.tokens[p.pos]
	return tok
}

func (p *Parser) at(t TokenType) bool {
	return p.cur.Type == t
}

// accept consumes the current token if it has type t.
func (p *Parser) accept(t TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of type t or fails the current statement.
func (p *Parser) expect(t TokenType, context string) (Token, error) {
	if !p.at(t) {
		return p.cur, p.fail(MsgExpectedToken, "expected '%s' %s, found %s", t, context, describe(p.cur))
	}
	return p.advance(), nil
}

// fail records a diagnostic at the current token. The returned error
// abandons the statement being parsed.
func (p *Parser) fail(id, format string, args ...any) error {
	p.diags.add(id, p.cur, format, args...)
	return errSyntax
}

func describe(tok Token) string {
	if tok.Type == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("'%s'", tok.Lexeme)
}

// synchronize skips to the next statement boundary: just past a ';' or
// just before a '}' closing the enclosing block. At least one token is
// consumed when the failed statement made no progress.
func (p *Parser) synchronize(start int) {
	if p.pos == start && !p.at(TokenEOF) {
		if p.at(TokenSemicolon) {
			p.advance()
			return
		}
		p.advance()
	}
	depth := 0
	for !p.at(TokenEOF) {
		switch p.cur.Type {
		case TokenLBrace, TokenLParen, TokenLBracket:
			depth++
		case TokenRParen, TokenRBracket:
			if depth > 0 {
				depth--
			}
		case TokenRBrace:
			if depth == 0 {
				return
			}
			depth--
		case TokenSemicolon:
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses statements until end of input and appends the
// implicit final return.
func (p *Parser) ParseProgram() *Node {
	prog := p.nodes.node(KindProgram, p.cur)
	for !p.at(TokenEOF) {
		if stmt := p.parseStatement(); stmt != nil {
			prog.List = append(prog.List, stmt)
		}
	}
	prog.List = append(prog.List, p.nodes.node(KindReturn, p.cur))
	return prog
}

// parseStatement parses one statement. It returns nil for an empty
// statement or one that failed to parse; after a failure the parser has
// skipped to the next statement boundary.
func (p *Parser) parseStatement() *Node {
	start := p.pos
	n, err := p.statement()
	if err != nil {
		p.synchronize(start)
		return nil
	}
	return n
}

func (p *Parser) statement() (*Node, error) {
	switch p.cur.Type {
	case TokenLBrace:
		return p.parseBlock()
	case TokenSemicolon:
		p.advance()
		return nil, nil
	}
	n, err := p.parseExpression(PowerNone)
	if err != nil {
		return nil, err
	}
	if !n.isBlockLike() {
		if _, err := p.expect(TokenSemicolon, "after statement"); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// parseBlock parses { statement* }.
func (p *Parser) parseBlock() (*Node, error) {
	open, err := p.expect(TokenLBrace, "to open block")
	if err != nil {
		return nil, err
	}
	block := p.nodes.node(KindBlock, open)
	for !p.at(TokenRBrace) && !p.at(TokenEOF) {
		if stmt := p.parseStatement(); stmt != nil {
			block.List = append(block.List, stmt)
		}
	}
	if _, err := p.expect(TokenRBrace, "to close block"); err != nil {
		return nil, err
	}
	return block, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpression is the Pratt loop: the current token's null denotation
// yields the left operand, then every following token that has a left
// denotation and binds tighter than minPower is folded in. A block-like
// statement ends at its closing brace; what follows starts a new statement.
func (p *Parser) parseExpression(minPower int) (*Node, error) {
	nud, ok := nuds[p.cur.Type]
	if !ok {
		if p.at(TokenIllegal) {
			return nil, p.fail(MsgIllegalCharacter, "illegal character %s", describe(p.cur))
		}
		return nil, p.fail(MsgUnexpectedToken, "unexpected %s, expected an expression", describe(p.cur))
	}
	left, err := nud(p, p.advance())
	if err != nil || left.isBlockLike() {
		return left, err
	}
	for {
		led, ok := leds[p.cur.Type]
		if !ok || p.cur.Power <= minPower {
			return left, nil
		}
		if left, err = led(p, left, p.advance()); err != nil {
			return nil, err
		}
	}
}

// ---------------------------------------------------------------------------
// Type annotations
// ---------------------------------------------------------------------------

// parseType parses an annotation, including unions joined with '|'.
func (p *Parser) parseType() (*TypeExpr, error) {
	first, err := p.parseTypeAtom()
	if err != nil || !p.at(TokenPipe) {
		return first, err
	}
	union := &TypeExpr{Kind: TypeUnion, Token: first.Token, Params: []*TypeExpr{first}}
	for p.accept(TokenPipe) {
		member, err := p.parseTypeAtom()
		if err != nil {
			return nil, err
		}
		union.Params = append(union.Params, member)
	}
	return union, nil
}

// parseTypeList parses comma-separated annotations up to closing.
func (p *Parser) parseTypeList(closing TokenType, context string) ([]*TypeExpr, error) {
	var list []*TypeExpr
	for !p.at(closing) {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		list = append(list, t)
		if !p.accept(TokenComma) {
			break
		}
	}
	_, err := p.expect(closing, context)
	return list, err
}

func (p *Parser) parseTypeAtom() (*TypeExpr, error) {
	tok := p.cur
	switch tok.Type {
	case TokenIdentifier, TokenNull:
		p.advance()
		return &TypeExpr{Kind: TypeNamed, Token: tok, Name: tok.Lexeme}, nil

	case TokenFunction:
		p.advance()
		if !p.at(TokenLParen) {
			return &TypeExpr{Kind: TypeNamed, Token: tok, Name: tok.Lexeme}, nil
		}
		p.advance()
		t := &TypeExpr{Kind: TypeFunction, Token: tok}
		var err error
		if t.Params, err = p.parseTypeList(TokenRParen, "to close parameter types"); err != nil {
			return nil, err
		}
		if p.accept(TokenColon) {
			if t.Return, err = p.parseType(); err != nil {
				return nil, err
			}
		}
		return t, nil

	case TokenLBrace:
		p.advance()
		t := &TypeExpr{Kind: TypeTable, Token: tok}
		for !p.at(TokenRBrace) {
			name, err := p.expect(TokenIdentifier, "as property name")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenColon, "after property name"); err != nil {
				return nil, err
			}
			ft, err := p.parseType()
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, TypeField{Name: name.Lexeme, Type: ft})
			if !p.accept(TokenComma) {
				break
			}
		}
		if _, err := p.expect(TokenRBrace, "to close table type"); err != nil {
			return nil, err
		}
		return t, nil

	case TokenLBracket:
		p.advance()
		t := &TypeExpr{Kind: TypeArray, Token: tok}
		var err error
		if t.Params, err = p.parseTypeList(TokenRBracket, "to close array type"); err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, p.fail(MsgExpectedToken, "expected a type, found %s", describe(tok))
}
