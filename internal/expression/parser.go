package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// parser is a recursive-descent parser over the token stream.
type parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
	expr  string
}

// ParseExpression parses an expression string into an AST.
func ParseExpression(expr string) (*ExpressionAST, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, NewParseError(expr, 0, "empty expression")
	}

	p := &parser{lexer: NewLexer(trimmed), expr: trimmed}
	p.next()
	p.next()

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenEOF {
		return nil, NewParseError(expr, p.cur.Pos, fmt.Sprintf("unexpected token %q", p.cur.Literal))
	}

	return &ExpressionAST{Root: root, Source: expr}, nil
}

func (p *parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

// parseOr parses OR chains (lowest precedence).
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenOR {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalNode{Left: left, Operator: "OR", Right: right}
	}
	return left, nil
}

// parseAnd parses AND chains.
func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenAND {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &LogicalNode{Left: left, Operator: "AND", Right: right}
	}
	return left, nil
}

// parseNot parses an optional negation.
func (p *parser) parseNot() (Node, error) {
	if p.cur.Type == TokenNOT {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: operand}, nil
	}
	return p.parseComparison()
}

// parseComparison parses an optional binary comparison.
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.cur.IsComparison() {
		op := p.cur.Literal
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &ComparisonNode{Left: left, Operator: op, Right: right}, nil
	}
	return left, nil
}

// parsePrimary parses literals, variables, function calls, and groups.
func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.Type {
	case TokenString:
		node := &LiteralNode{Value: p.cur.Literal}
		p.next()
		return node, nil

	case TokenInt:
		i, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, NewParseError(p.expr, p.cur.Pos, fmt.Sprintf("invalid integer %q", p.cur.Literal))
		}
		p.next()
		return &LiteralNode{Value: i}, nil

	case TokenFloat:
		f, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, NewParseError(p.expr, p.cur.Pos, fmt.Sprintf("invalid float %q", p.cur.Literal))
		}
		p.next()
		return &LiteralNode{Value: f}, nil

	case TokenBool:
		node := &LiteralNode{Value: strings.EqualFold(p.cur.Literal, "true")}
		p.next()
		return node, nil

	case TokenIdent:
		name := p.cur.Literal
		p.next()
		if p.cur.Type == TokenLParen {
			return p.parseCall(name)
		}
		return &VariableNode{Name: name}, nil

	case TokenLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenRParen {
			return nil, NewParseError(p.expr, p.cur.Pos, "expected ')'")
		}
		p.next()
		return inner, nil

	case TokenEOF:
		return nil, NewParseError(p.expr, p.cur.Pos, "unexpected end of expression")

	default:
		return nil, NewParseError(p.expr, p.cur.Pos, fmt.Sprintf("unexpected token %q", p.cur.Literal))
	}
}

// parseCall parses a function call after its name has been consumed.
func (p *parser) parseCall(name string) (Node, error) {
	p.next() // consume '('

	call := &CallNode{Name: name}
	if p.cur.Type == TokenRParen {
		p.next()
		return call, nil
	}

	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		switch p.cur.Type {
		case TokenComma:
			p.next()
		case TokenRParen:
			p.next()
			return call, nil
		default:
			return nil, NewParseError(p.expr, p.cur.Pos, "expected ',' or ')' in argument list")
		}
	}
}
