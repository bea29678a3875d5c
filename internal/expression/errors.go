package expression

import "fmt"

// ParseError represents a syntax error in an expression.
type ParseError struct {
	Expression string
	Pos        int
	Message    string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("expression parse error at position %d: %s", e.Pos, e.Message)
}

// NewParseError creates a new ParseError.
func NewParseError(expr string, pos int, message string) *ParseError {
	return &ParseError{Expression: expr, Pos: pos, Message: message}
}

// EvaluationError represents a runtime evaluation failure.
type EvaluationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("expression evaluation error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates a new EvaluationError.
func NewEvaluationError(message string, cause error) *EvaluationError {
	return &EvaluationError{Message: message, Cause: cause}
}

// VariableNotFoundError indicates an unresolvable context reference.
type VariableNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable not found: %s", e.Name)
}

// NewVariableNotFoundError creates a new VariableNotFoundError.
func NewVariableNotFoundError(name string) *VariableNotFoundError {
	return &VariableNotFoundError{Name: name}
}

// TypeMismatchError indicates a value of an unexpected type.
type TypeMismatchError struct {
	Expected string
	Actual   string
	Value    any
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s (%v)", e.Expected, e.Actual, e.Value)
}

// NewTypeMismatchError creates a new TypeMismatchError.
func NewTypeMismatchError(expected, actual string, value any) *TypeMismatchError {
	return &TypeMismatchError{Expected: expected, Actual: actual, Value: value}
}

// UnknownFunctionError indicates a call to an undefined function.
type UnknownFunctionError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function: %s", e.Name)
}

// NewUnknownFunctionError creates a new UnknownFunctionError.
func NewUnknownFunctionError(name string) *UnknownFunctionError {
	return &UnknownFunctionError{Name: name}
}
