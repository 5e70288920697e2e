package compiler

import "strconv"

// ---------------------------------------------------------------------------
// Parselets
// ---------------------------------------------------------------------------

// nudFn handles a token that starts an expression.
type nudFn func(p *Parser, tok Token) (*Node, error)

// ledFn handles a token that continues the expression left.
type ledFn func(p *Parser, left *Node, tok Token) (*Node, error)

// powerUnary is the operand power of prefix minus: tighter than '*' but
// looser than '**', so -a ** b is -(a ** b).
const powerUnary = PowerMultiply + 5

var (
	nuds map[TokenType]nudFn
	leds map[TokenType]ledFn
)

var binaryKinds = map[TokenType]Kind{
	TokenPlus:        KindAdd,
	TokenMinus:       KindSubtract,
	TokenStar:        KindMultiply,
	TokenSlash:       KindDivide,
	TokenPercent:     KindModulo,
	TokenPower:       KindPower,
	TokenEqual:       KindEqual,
	TokenNotEqual:    KindNotEqual,
	TokenLess:        KindLess,
	TokenLessEqual:   KindLessEqual,
	TokenGreater:     KindGreater,
	TokenGreaterEq:   KindGreaterEqual,
	TokenAnd:         KindAnd,
	TokenOr:          KindOr,
	TokenAssign:      KindAssign,
	TokenPlusAssign:  KindAddAssign,
	TokenMinusAssign: KindSubtractAssign,
	TokenStarAssign:  KindMultiplyAssign,
	TokenSlashAssign: KindDivideAssign,
}

func init() {
	nuds = map[TokenType]nudFn{
		TokenInt:        parseNumber,
		TokenFloat:      parseNumber,
		TokenString:     parseValue(KindString),
		TokenIdentifier: parseValue(KindIdentifier),
		TokenTrue:       parseTerm(KindTrue),
		TokenFalse:      parseTerm(KindFalse),
		TokenNull:       parseTerm(KindNull),
		TokenThis:       parseTerm(KindThis),
		TokenLParen:     parseGroup,
		TokenMinus:      parsePrefix(KindNegate, powerUnary),
		TokenNot:        parsePrefix(KindNot, PowerNot),
		TokenIncrement:  parsePrefix(KindPreIncrement, PowerIncrement),
		TokenDecrement:  parsePrefix(KindPreDecrement, PowerIncrement),
		TokenLBracket:   parseArray,
		TokenLBrace:     parseTable,
		TokenVar:        parseDeclaration(KindVar),
		TokenConst:      parseDeclaration(KindConst),
		TokenFunction:   parseFunction,
		TokenIf:         parseIf,
		TokenWhile:      parseWhile,
		TokenDo:         parseDoWhile,
		TokenFor:        parseFor,
		TokenReturn:     parseReturn,
		TokenImport:     parseImport,
	}

	leds = map[TokenType]ledFn{
		TokenIncrement: parsePostfix(KindPostIncrement),
		TokenDecrement: parsePostfix(KindPostDecrement),
		TokenLParen:    parseCall,
		TokenLBracket:  parseIndex,
		TokenDot:       parseMember,
	}
	for tt, kind := range binaryKinds {
		switch {
		case tt == TokenPower:
			leds[tt] = parseBinary(kind, true)
		case bindingPowers[tt] == PowerAssign:
			leds[tt] = parseBinary(kind, true)
		default:
			leds[tt] = parseBinary(kind, false)
		}
	}
}

// ---------------------------------------------------------------------------
// Null denotations
// ---------------------------------------------------------------------------

func parseNumber(p *Parser, tok Token) (*Node, error) {
	v, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		p.diags.add(MsgInvalidNumber, tok, "invalid number literal %q", tok.Lexeme)
	}
	n := p.nodes.node(KindNumber, tok)
	n.Num = v
	return n, nil
}

func parseValue(kind Kind) nudFn {
	return func(p *Parser, tok Token) (*Node, error) {
		n := p.nodes.node(kind, tok)
		n.Str = tok.Lexeme
		return n, nil
	}
}

func parseTerm(kind Kind) nudFn {
	return func(p *Parser, tok Token) (*Node, error) {
		return p.nodes.node(kind, tok), nil
	}
}

func parseGroup(p *Parser, tok Token) (*Node, error) {
	inner, err := p.parseExpression(PowerNone)
	if err != nil {
		return nil, err
	}
	_, err = p.expect(TokenRParen, "to close group")
	return inner, err
}

func parsePrefix(kind Kind, power int) nudFn {
	return func(p *Parser, tok Token) (*Node, error) {
		n := p.nodes.node(kind, tok)
		var err error
		n.Left, err = p.parseExpression(power)
		return n, err
	}
}

// parseList parses comma-separated expressions up to the closing token.
func (p *Parser) parseList(closing TokenType, context string) ([]*Node, error) {
	var list []*Node
	for !p.at(closing) {
		e, err := p.parseExpression(PowerComma)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.accept(TokenComma) {
			break
		}
	}
	_, err := p.expect(closing, context)
	return list, err
}

func parseArray(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindArray, tok)
	var err error
	n.List, err = p.parseList(TokenRBracket, "to close array literal")
	return n, err
}

// parseTable parses { name = value, "quoted name" = value }.
func parseTable(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindTable, tok)
	for !p.at(TokenRBrace) {
		name := p.cur
		if !p.at(TokenIdentifier) && !p.at(TokenString) {
			return nil, p.fail(MsgExpectedToken, "expected field name, found %s", describe(p.cur))
		}
		p.advance()
		if _, err := p.expect(TokenAssign, "after field name"); err != nil {
			return nil, err
		}
		field := p.nodes.node(KindField, name)
		field.Str = name.Lexeme
		var err error
		if field.Left, err = p.parseExpression(PowerComma); err != nil {
			return nil, err
		}
		n.List = append(n.List, field)
		if !p.accept(TokenComma) {
			break
		}
	}
	_, err := p.expect(TokenRBrace, "to close table literal")
	return n, err
}

// parseDeclaration parses var/const name [: type]. An initializer is
// folded in afterwards by the assignment parselet.
func parseDeclaration(kind Kind) nudFn {
	return func(p *Parser, tok Token) (*Node, error) {
		name, err := p.expect(TokenIdentifier, "after '"+tok.Lexeme+"'")
		if err != nil {
			return nil, err
		}
		n := p.nodes.node(kind, name)
		n.Str = name.Lexeme
		if p.accept(TokenColon) {
			n.Type, err = p.parseType()
		}
		return n, err
	}
}

// parseFunction parses a function literal or named declaration.
func parseFunction(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindFunction, tok)
	if p.at(TokenIdentifier) {
		n.Token = p.cur
		n.Str = p.advance().Lexeme
	}
	if _, err := p.expect(TokenLParen, "to open parameter list"); err != nil {
		return nil, err
	}
	for !p.at(TokenRParen) {
		name, err := p.expect(TokenIdentifier, "as parameter name")
		if err != nil {
			return nil, err
		}
		param := p.nodes.node(KindVar, name)
		param.Str = name.Lexeme
		if p.accept(TokenColon) {
			if param.Type, err = p.parseType(); err != nil {
				return nil, err
			}
		}
		n.List = append(n.List, param)
		if !p.accept(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRParen, "to close parameter list"); err != nil {
		return nil, err
	}
	var err error
	if p.accept(TokenColon) {
		if n.Type, err = p.parseType(); err != nil {
			return nil, err
		}
	}
	if n.Left, err = p.parseBlock(); err != nil {
		return nil, err
	}
	return n, nil
}

// parseCondition parses ( expression ).
func (p *Parser) parseCondition(keyword string) (*Node, error) {
	if _, err := p.expect(TokenLParen, "after '"+keyword+"'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression(PowerNone)
	if err != nil {
		return nil, err
	}
	_, err = p.expect(TokenRParen, "after condition")
	return cond, err
}

func parseIf(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindIf, tok)
	cond, err := p.parseCondition("if")
	if err != nil {
		return nil, err
	}
	then := p.parseStatement()
	var otherwise *Node
	if p.accept(TokenElse) {
		otherwise = p.parseStatement()
	}
	n.List = []*Node{cond, then, otherwise}
	return n, nil
}

func parseWhile(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindWhile, tok)
	var err error
	if n.Left, err = p.parseCondition("while"); err != nil {
		return nil, err
	}
	n.Right = p.parseStatement()
	return n, nil
}

func parseDoWhile(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindDoWhile, tok)
	n.Left = p.parseStatement()
	if _, err := p.expect(TokenWhile, "after do body"); err != nil {
		return nil, err
	}
	var err error
	n.Right, err = p.parseCondition("while")
	return n, err
}

// parseFor parses for (init; condition; step) body, each clause optional.
func parseFor(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindFor, tok)
	if _, err := p.expect(TokenLParen, "after 'for'"); err != nil {
		return nil, err
	}
	clauses := []struct {
		end     TokenType
		context string
	}{
		{TokenSemicolon, "after loop initializer"},
		{TokenSemicolon, "after loop condition"},
		{TokenRParen, "after loop step"},
	}
	for _, cl := range clauses {
		var c *Node
		if !p.at(cl.end) {
			var err error
			if c, err = p.parseExpression(PowerNone); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(cl.end, cl.context); err != nil {
			return nil, err
		}
		n.List = append(n.List, c)
	}
	n.List = append(n.List, p.parseStatement())
	return n, nil
}

func parseReturn(p *Parser, tok Token) (*Node, error) {
	n := p.nodes.node(KindReturn, tok)
	if !p.at(TokenSemicolon) && !p.at(TokenRBrace) && !p.at(TokenEOF) {
		var err error
		if n.Left, err = p.parseExpression(PowerNone); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func parseImport(p *Parser, tok Token) (*Node, error) {
	name, err := p.expect(TokenIdentifier, "after 'import'")
	if err != nil {
		return nil, err
	}
	n := p.nodes.node(KindImport, name)
	n.Str = name.Lexeme
	return n, nil
}

// ---------------------------------------------------------------------------
// Left denotations
// ---------------------------------------------------------------------------

// parseBinary folds an infix operator. Right-associative operators parse
// their right operand one step looser so the same operator nests right.
func parseBinary(kind Kind, rightAssoc bool) ledFn {
	return func(p *Parser, left *Node, tok Token) (*Node, error) {
		power := tok.Power
		if rightAssoc {
			power--
		}
		n := p.nodes.node(kind, tok)
		n.Left = left
		var err error
		n.Right, err = p.parseExpression(power)
		return n, err
	}
}

func parsePostfix(kind Kind) ledFn {
	return func(p *Parser, left *Node, tok Token) (*Node, error) {
		n := p.nodes.node(kind, tok)
		n.Left = left
		return n, nil
	}
}

func parseCall(p *Parser, left *Node, tok Token) (*Node, error) {
	n := p.nodes.node(KindCall, tok)
	n.Left = left
	var err error
	n.List, err = p.parseList(TokenRParen, "to close argument list")
	return n, err
}

func parseIndex(p *Parser, left *Node, tok Token) (*Node, error) {
	n := p.nodes.node(KindIndex, tok)
	n.Left = left
	var err error
	if n.Right, err = p.parseExpression(PowerNone); err != nil {
		return nil, err
	}
	_, err = p.expect(TokenRBracket, "to close index")
	return n, err
}

func parseMember(p *Parser, left *Node, tok Token) (*Node, error) {
	name, err := p.expect(TokenIdentifier, "after '.'")
	if err != nil {
		return nil, err
	}
	n := p.nodes.node(KindMember, name)
	n.Left = left
	n.Str = name.Lexeme
	return n, nil
}
