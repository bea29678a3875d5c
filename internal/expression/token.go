package expression

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	TokenIdent
	TokenInt
	TokenFloat
	TokenString
	TokenBool

	TokenEQ // ==
	TokenNE // !=
	TokenLT // <
	TokenGT // >
	TokenLE // <=
	TokenGE // >=

	TokenAND // && or AND
	TokenOR  // || or OR
	TokenNOT // ! or NOT

	TokenLParen
	TokenRParen
	TokenComma
)

// Token is a single lexical unit of an expression.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// IsComparison reports whether the token is a comparison operator.
func (t Token) IsComparison() bool {
	switch t.Type {
	case TokenEQ, TokenNE, TokenLT, TokenGT, TokenLE, TokenGE:
		return true
	}
	return false
}
