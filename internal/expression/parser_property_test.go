// Property-based tests for the expression parser: any string equality
// between a generated literal and itself must evaluate true, and the
// lexer/parser must never panic on arbitrary input.
package expression

import (
	"testing"

	"pgregory.net/rapid"
)

func TestParserNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.String().Draw(t, "input")
		// Errors are fine; panics are not.
		_, _ = ParseExpression(input)
	})
}

func TestLiteralSelfEquality(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Z0-9_/.-]{1,32}`).Draw(t, "lit")

		expr := "'" + s + "' == '" + s + "'"
		got, err := NewEvaluator().EvaluateString(expr, NewContext())
		if err != nil {
			t.Fatalf("evaluate %q: %v", expr, err)
		}
		if !got {
			t.Fatalf("expected %q to be true", expr)
		}
	})
}

func TestNegationInvolution(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Bool().Draw(t, "b")

		expr := "true"
		if !b {
			expr = "false"
		}

		once, err := NewEvaluator().EvaluateString("!("+expr+")", NewContext())
		if err != nil {
			t.Fatal(err)
		}
		twice, err := NewEvaluator().EvaluateString("!!("+expr+")", NewContext())
		if err != nil {
			t.Fatal(err)
		}

		if once != !b || twice != b {
			t.Fatalf("negation mismatch for %v: once=%v twice=%v", b, once, twice)
		}
	})
}
