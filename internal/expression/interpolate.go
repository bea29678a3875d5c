package expression

import "strings"

const (
	exprOpen  = "${{"
	exprClose = "}}"
)

// HasExpression reports whether the string contains a ${{ }} span.
func HasExpression(s string) bool {
	return strings.Contains(s, exprOpen)
}

// Interpolate resolves every ${{ ... }} span in s against the context
// and splices the rendered values back into the string.
func Interpolate(s string, ctx *Context) (string, error) {
	if !HasExpression(s) {
		return s, nil
	}

	evaluator := NewEvaluator()
	var out strings.Builder

	rest := s
	for {
		start := strings.Index(rest, exprOpen)
		if start == -1 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:start])

		end := strings.Index(rest[start:], exprClose)
		if end == -1 {
			return "", NewParseError(s, start, "unterminated ${{ expression")
		}

		inner := rest[start+len(exprOpen) : start+end]
		val, err := evaluator.EvaluateValue(inner, ctx)
		if err != nil {
			return "", err
		}
		out.WriteString(toString(val))

		rest = rest[start+end+len(exprClose):]
	}
}

// EvaluateCondition evaluates an "if" condition string. The ${{ }}
// wrapper is optional; an empty condition defaults to success().
func EvaluateCondition(cond string, ctx *Context) (bool, error) {
	trimmed := strings.TrimSpace(cond)
	if trimmed == "" {
		return !ctx.Failed && !ctx.Cancelled, nil
	}

	if strings.HasPrefix(trimmed, exprOpen) && strings.HasSuffix(trimmed, exprClose) {
		trimmed = strings.TrimSpace(trimmed[len(exprOpen) : len(trimmed)-len(exprClose)])
	}

	return NewEvaluator().EvaluateString(trimmed, ctx)
}
