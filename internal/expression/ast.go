package expression

// Node is a single node of an expression AST.
type Node interface {
	node()
}

// ExpressionAST is the parsed form of an expression.
type ExpressionAST struct {
	Root Node
	// Source is the original expression text.
	Source string
}

// LiteralNode holds a literal value (string, number, bool).
type LiteralNode struct {
	Value any
}

// VariableNode references a context value by dotted path,
// e.g. "event.branch" or "matrix.python".
type VariableNode struct {
	Name string
}

// ComparisonNode compares two operands (==, !=, <, >, <=, >=).
type ComparisonNode struct {
	Left     Node
	Operator string
	Right    Node
}

// LogicalNode combines two operands with AND / OR.
type LogicalNode struct {
	Left     Node
	Operator string
	Right    Node
}

// NotNode negates its operand.
type NotNode struct {
	Operand Node
}

// CallNode invokes a built-in function such as contains() or success().
type CallNode struct {
	Name string
	Args []Node
}

func (*LiteralNode) node()    {}
func (*VariableNode) node()   {}
func (*ComparisonNode) node() {}
func (*LogicalNode) node()    {}
func (*NotNode) node()        {}
func (*CallNode) node()       {}
