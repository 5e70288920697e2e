package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Kestrel lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenInt        // 42
	TokenFloat      // 3.14
	TokenString     // "hello"
	TokenIdentifier // foo

	// Keywords
	TokenVar
	TokenConst
	TokenFunction
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenDo
	TokenFor
	TokenImport
	TokenTrue
	TokenFalse
	TokenNull
	TokenThis

	// Operators
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenPower       // **
	TokenAssign      // =
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenStarAssign  // *=
	TokenSlashAssign // /=
	TokenEqual       // ==
	TokenNotEqual    // !=
	TokenLess        // <
	TokenLessEqual   // <=
	TokenGreater     // >
	TokenGreaterEq   // >=
	TokenNot         // !
	TokenAnd         // &&
	TokenOr          // ||
	TokenIncrement   // ++
	TokenDecrement   // --
	TokenPipe        // |

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenComma     // ,
	TokenSemicolon // ;
	TokenDot       // .
	TokenColon     // :
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenIllegal:     "ILLEGAL",
	TokenInt:         "INT",
	TokenFloat:       "FLOAT",
	TokenString:      "STRING",
	TokenIdentifier:  "IDENTIFIER",
	TokenVar:         "var",
	TokenConst:       "const",
	TokenFunction:    "function",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenDo:          "do",
	TokenFor:         "for",
	TokenImport:      "import",
	TokenTrue:        "true",
	TokenFalse:       "false",
	TokenNull:        "null",
	TokenThis:        "this",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenPower:       "**",
	TokenAssign:      "=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenStarAssign:  "*=",
	TokenSlashAssign: "/=",
	TokenEqual:       "==",
	TokenNotEqual:    "!=",
	TokenLess:        "<",
	TokenLessEqual:   "<=",
	TokenGreater:     ">",
	TokenGreaterEq:   ">=",
	TokenNot:         "!",
	TokenAnd:         "&&",
	TokenOr:          "||",
	TokenIncrement:   "++",
	TokenDecrement:   "--",
	TokenPipe:        "|",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenComma:       ",",
	TokenSemicolon:   ";",
	TokenDot:         ".",
	TokenColon:       ":",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// ---------------------------------------------------------------------------
// Binding powers
// ---------------------------------------------------------------------------

// Binding powers, low to high.
const (
	PowerNone        = 0
	PowerComma       = 10
	PowerAssign      = 20
	PowerNot         = 30
	PowerLogical     = 40
	PowerCompare     = 50
	PowerAdditive    = 60
	PowerMultiply    = 70
	PowerExponent    = 80
	PowerIncrement   = 90
	PowerDeclaration = 100
	PowerCall        = 110
	PowerMember      = 120
)

var bindingPowers = map[TokenType]int{
	TokenComma:       PowerComma,
	TokenAssign:      PowerAssign,
	TokenPlusAssign:  PowerAssign,
	TokenMinusAssign: PowerAssign,
	TokenStarAssign:  PowerAssign,
	TokenSlashAssign: PowerAssign,
	TokenNot:         PowerNot,
	TokenAnd:         PowerLogical,
	TokenOr:          PowerLogical,
	TokenEqual:       PowerCompare,
	TokenNotEqual:    PowerCompare,
	TokenLess:        PowerCompare,
	TokenLessEqual:   PowerCompare,
	TokenGreater:     PowerCompare,
	TokenGreaterEq:   PowerCompare,
	TokenPlus:        PowerAdditive,
	TokenMinus:       PowerAdditive,
	TokenStar:        PowerMultiply,
	TokenSlash:       PowerMultiply,
	TokenPercent:     PowerExponent,
	TokenPower:       PowerExponent,
	TokenIncrement:   PowerIncrement,
	TokenDecrement:   PowerIncrement,
	TokenVar:         PowerDeclaration,
	TokenConst:       PowerDeclaration,
	TokenFunction:    PowerDeclaration,
	TokenLParen:      PowerCall,
	TokenLBracket:    PowerCall,
	TokenDot:         PowerMember,
}

// Token represents a lexical token.
type Token struct {
	Type   TokenType
	Lexeme string // the raw text; unescaped contents for strings
	Power  int    // binding power
	Line   int    // 1-based
	Column int    // 1-based
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if len(t.Lexeme) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Lexeme[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Lexeme)
}

// keywords is sorted longest first so prefixes never shadow longer words.
var keywords = []struct {
	word string
	typ  TokenType
}{
	{"function", TokenFunction},
	{"import", TokenImport},
	{"return", TokenReturn},
	{"const", TokenConst},
	{"false", TokenFalse},
	{"while", TokenWhile},
	{"else", TokenElse},
	{"null", TokenNull},
	{"this", TokenThis},
	{"true", TokenTrue},
	{"for", TokenFor},
	{"var", TokenVar},
	{"do", TokenDo},
	{"if", TokenIf},
}

// operators is sorted longest first for longest-match scanning.
var operators = []struct {
	text string
	typ  TokenType
}{
	{"**", TokenPower},
	{"+=", TokenPlusAssign},
	{"-=", TokenMinusAssign},
	{"*=", TokenStarAssign},
	{"/=", TokenSlashAssign},
	{"==", TokenEqual},
	{"!=", TokenNotEqual},
	{"<=", TokenLessEqual},
	{">=", TokenGreaterEq},
	{"&&", TokenAnd},
	{"||", TokenOr},
	{"++", TokenIncrement},
	{"--", TokenDecrement},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"%", TokenPercent},
	{"=", TokenAssign},
	{"<", TokenLess},
	{">", TokenGreater},
	{"!", TokenNot},
	{"|", TokenPipe},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"{", TokenLBrace},
	{"}", TokenRBrace},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
	{",", TokenComma},
	{";", TokenSemicolon},
	{".", TokenDot},
	{":", TokenColon},
}

// IsKeyword reports whether word is a reserved word.
func IsKeyword(word string) bool {
	for _, kw := range keywords {
		if kw.word == word {
			return true
		}
	}
	return false
}

// Keywords returns every reserved word.
func Keywords() []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = kw.word
	}
	return out
}
