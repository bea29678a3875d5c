package expression

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Context holds the named scopes an expression can reference.
// Scope roots mirror the pipeline surface: event, env, secrets,
// matrix, pipeline, job, steps.
type Context struct {
	Scopes map[string]map[string]any

	// Failed is set once a previous step in the job has failed.
	Failed bool
	// Cancelled is set when the run has been cancelled.
	Cancelled bool
}

// NewContext creates an empty evaluation context.
func NewContext() *Context {
	return &Context{Scopes: make(map[string]map[string]any)}
}

// WithScope sets a named scope and returns the context.
func (c *Context) WithScope(name string, values map[string]any) *Context {
	c.Scopes[name] = values
	return c
}

// Set sets a single value inside a scope, creating it if needed.
func (c *Context) Set(scope, key string, value any) {
	if c.Scopes[scope] == nil {
		c.Scopes[scope] = make(map[string]any)
	}
	c.Scopes[scope][key] = value
}

// Evaluator evaluates parsed expressions against a Context.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates an AST to a boolean result.
func (e *Evaluator) Evaluate(ast *ExpressionAST, ctx *Context) (bool, error) {
	if ast == nil || ast.Root == nil {
		return false, NewEvaluationError("nil AST", nil)
	}
	result, err := e.evaluateNode(ast.Root, ctx)
	if err != nil {
		return false, err
	}
	return toBool(result)
}

// EvaluateString parses and evaluates an expression string to a boolean.
func (e *Evaluator) EvaluateString(expr string, ctx *Context) (bool, error) {
	ast, err := ParseExpression(expr)
	if err != nil {
		return false, err
	}
	return e.Evaluate(ast, ctx)
}

// EvaluateValue parses and evaluates an expression string to its raw value.
func (e *Evaluator) EvaluateValue(expr string, ctx *Context) (any, error) {
	ast, err := ParseExpression(expr)
	if err != nil {
		return nil, err
	}
	return e.evaluateNode(ast.Root, ctx)
}

// evaluateNode evaluates a single AST node.
func (e *Evaluator) evaluateNode(node Node, ctx *Context) (any, error) {
	switch n := node.(type) {
	case *LiteralNode:
		return n.Value, nil

	case *VariableNode:
		return e.resolveVariable(n.Name, ctx)

	case *ComparisonNode:
		return e.evaluateComparison(n, ctx)

	case *LogicalNode:
		return e.evaluateLogical(n, ctx)

	case *NotNode:
		return e.evaluateNot(n, ctx)

	case *CallNode:
		return e.evaluateCall(n, ctx)

	default:
		return nil, NewEvaluationError(fmt.Sprintf("unknown node type: %T", node), nil)
	}
}

// resolveVariable resolves a dotted context reference such as
// "event.branch" or "matrix.python".
func (e *Evaluator) resolveVariable(name string, ctx *Context) (any, error) {
	if ctx == nil {
		return nil, NewVariableNotFoundError(name)
	}

	parts := strings.Split(name, ".")
	scope, ok := ctx.Scopes[parts[0]]
	if !ok {
		return nil, NewVariableNotFoundError(name)
	}
	if len(parts) == 1 {
		return scope, nil
	}

	var current any = scope
	for _, part := range parts[1:] {
		var err error
		current, err = getField(current, part)
		if err != nil {
			return nil, NewEvaluationError(fmt.Sprintf("cannot resolve path '%s': %v", name, err), err)
		}
	}
	return current, nil
}

// getField gets a field from a value (map or struct).
func getField(v any, field string) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot read field '%s' of nil", field)
	}

	if m, ok := v.(map[string]any); ok {
		if val, exists := m[field]; exists {
			return val, nil
		}
		return nil, fmt.Errorf("field '%s' not found", field)
	}
	if m, ok := v.(map[string]string); ok {
		if val, exists := m[field]; exists {
			return val, nil
		}
		return nil, fmt.Errorf("field '%s' not found", field)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		for i := 0; i < rv.NumField(); i++ {
			if strings.EqualFold(rv.Type().Field(i).Name, field) {
				return rv.Field(i).Interface(), nil
			}
		}
		return nil, fmt.Errorf("field '%s' not found in struct", field)
	}

	return nil, fmt.Errorf("cannot read field '%s' of %T", field, v)
}

// evaluateComparison evaluates a comparison expression.
func (e *Evaluator) evaluateComparison(node *ComparisonNode, ctx *Context) (bool, error) {
	left, err := e.evaluateNode(node.Left, ctx)
	if err != nil {
		return false, err
	}
	right, err := e.evaluateNode(node.Right, ctx)
	if err != nil {
		return false, err
	}
	return compare(left, right, node.Operator)
}

// evaluateLogical evaluates AND / OR with short-circuiting.
func (e *Evaluator) evaluateLogical(node *LogicalNode, ctx *Context) (bool, error) {
	leftVal, err := e.evaluateNode(node.Left, ctx)
	if err != nil {
		return false, err
	}
	leftBool, err := toBool(leftVal)
	if err != nil {
		return false, err
	}

	switch node.Operator {
	case "AND":
		if !leftBool {
			return false, nil
		}
	case "OR":
		if leftBool {
			return true, nil
		}
	}

	rightVal, err := e.evaluateNode(node.Right, ctx)
	if err != nil {
		return false, err
	}
	rightBool, err := toBool(rightVal)
	if err != nil {
		return false, err
	}

	switch node.Operator {
	case "AND":
		return leftBool && rightBool, nil
	case "OR":
		return leftBool || rightBool, nil
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown logical operator: %s", node.Operator), nil)
	}
}

// evaluateNot evaluates a negation.
func (e *Evaluator) evaluateNot(node *NotNode, ctx *Context) (bool, error) {
	val, err := e.evaluateNode(node.Operand, ctx)
	if err != nil {
		return false, err
	}
	boolVal, err := toBool(val)
	if err != nil {
		return false, err
	}
	return !boolVal, nil
}

// evaluateCall evaluates a built-in function call.
func (e *Evaluator) evaluateCall(node *CallNode, ctx *Context) (any, error) {
	args := make([]any, len(node.Args))
	for i, argNode := range node.Args {
		val, err := e.evaluateNode(argNode, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}

	switch node.Name {
	case "always":
		return true, nil
	case "success":
		return !ctx.Failed && !ctx.Cancelled, nil
	case "failure":
		return ctx.Failed, nil
	case "cancelled":
		return ctx.Cancelled, nil

	case "contains":
		if len(args) != 2 {
			return nil, NewEvaluationError("contains() takes exactly 2 arguments", nil)
		}
		if list, ok := args[0].([]any); ok {
			needle := toString(args[1])
			for _, item := range list {
				if toString(item) == needle {
					return true, nil
				}
			}
			return false, nil
		}
		return strings.Contains(toString(args[0]), toString(args[1])), nil

	case "startsWith":
		if len(args) != 2 {
			return nil, NewEvaluationError("startsWith() takes exactly 2 arguments", nil)
		}
		return strings.HasPrefix(toString(args[0]), toString(args[1])), nil

	case "endsWith":
		if len(args) != 2 {
			return nil, NewEvaluationError("endsWith() takes exactly 2 arguments", nil)
		}
		return strings.HasSuffix(toString(args[0]), toString(args[1])), nil

	default:
		return nil, NewUnknownFunctionError(node.Name)
	}
}

// compare compares two values with the given operator.
func compare(left, right any, op string) (bool, error) {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == right, nil
		case "!=":
			return left != right, nil
		default:
			return false, NewEvaluationError(fmt.Sprintf("cannot compare nil with operator %s", op), nil)
		}
	}

	leftNum, leftIsNum := toFloat64(left)
	rightNum, rightIsNum := toFloat64(right)
	if leftIsNum && rightIsNum {
		return compareNumbers(leftNum, rightNum, op)
	}

	leftStr := toString(left)
	rightStr := toString(right)

	switch op {
	case "==":
		return leftStr == rightStr, nil
	case "!=":
		return leftStr != rightStr, nil
	case "<":
		return leftStr < rightStr, nil
	case ">":
		return leftStr > rightStr, nil
	case "<=":
		return leftStr <= rightStr, nil
	case ">=":
		return leftStr >= rightStr, nil
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown comparison operator: %s", op), nil)
	}
}

// compareNumbers compares two numbers.
func compareNumbers(left, right float64, op string) (bool, error) {
	switch op {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "<=":
		return left <= right, nil
	case ">=":
		return left >= right, nil
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown comparison operator: %s", op), nil)
	}
}

// toFloat64 converts a value to float64 if possible.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// toBool converts a value to bool.
func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int, int32, int64:
		return reflect.ValueOf(val).Int() != 0, nil
	case uint, uint32, uint64:
		return reflect.ValueOf(val).Uint() != 0, nil
	case float32, float64:
		return reflect.ValueOf(val).Float() != 0, nil
	case string:
		lower := strings.ToLower(val)
		if lower == "true" {
			return true, nil
		}
		if lower == "false" || lower == "" {
			return false, nil
		}
		return true, nil
	case nil:
		return false, nil
	default:
		return false, NewTypeMismatchError("bool", fmt.Sprintf("%T", v), v)
	}
}

// toString renders a value the way interpolation does.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
