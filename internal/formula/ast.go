package formula

import (
	"strconv"
	"strings"
)

// Namespaces a Ref can read from.
const (
	NSVariables = "variables"
	NSTotals    = "doc_totals"
	NSConstants = "constants"
	NSItem      = "item" // the row bound by a filter predicate
)

// Node is a formula AST node.
type Node interface {
	// String returns a canonical rendering of the node.
	String() string
	node()
}

// NumberLit is a numeric literal.
type NumberLit struct{ Value float64 }

// StringLit is a quoted text literal.
type StringLit struct{ Value string }

// BoolLit is true or false.
type BoolLit struct{ Value bool }

// Ident is a bare name: a parameter or local inside a custom function body.
type Ident struct{ Name string }

// Ref reads a named entry of a namespace, e.g. variables['qty'].
type Ref struct {
	Namespace string
	Name      string
}

// Unary is a prefix operator applied to X. Op is "-", "+" or "!".
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator. Logical operators are normalised to && and ||,
// strict comparisons to == and !=.
type Binary struct {
	Op   string
	X, Y Node
}

// Cond is a conditional: Then if Test is truthy, else Else.
type Cond struct {
	Test, Then, Else Node
}

// Call invokes a builtin (Namespace ""), a math function ("math") or a custom
// function ("custom").
type Call struct {
	Namespace string
	Name      string
	Args      []Node
}

// Reduction names for FilterReduce.
const (
	ReduceSum   = "sum"
	ReduceAvg   = "avg"
	ReduceMin   = "min"
	ReduceMax   = "max"
	ReduceCount = "count"
)

// FilterReduce selects items matching Filter and reduces Field with Reduce.
// Initial is added to a sum reduction.
type FilterReduce struct {
	Filter  Node
	Reduce  string
	Field   string
	Initial float64
}

func (NumberLit) node()    {}
func (StringLit) node()    {}
func (BoolLit) node()      {}
func (Ident) node()        {}
func (Ref) node()          {}
func (Unary) node()        {}
func (Binary) node()       {}
func (Cond) node()         {}
func (Call) node()         {}
func (FilterReduce) node() {}

func (n NumberLit) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }
func (n StringLit) String() string { return strconv.Quote(n.Value) }
func (n BoolLit) String() string   { return strconv.FormatBool(n.Value) }
func (n Ident) String() string     { return n.Name }

func (n Ref) String() string {
	if n.Namespace == NSItem {
		return "item." + n.Name
	}
	return n.Namespace + "[" + strconv.Quote(n.Name) + "]"
}

func (n Unary) String() string { return n.Op + n.X.String() }

func (n Binary) String() string {
	return "(" + n.X.String() + " " + n.Op + " " + n.Y.String() + ")"
}

func (n Cond) String() string {
	return "(" + n.Test.String() + " ? " + n.Then.String() + " : " + n.Else.String() + ")"
}

func (n Call) String() string {
	var sb strings.Builder
	if n.Namespace != "" {
		sb.WriteString(n.Namespace)
		sb.WriteByte('.')
	}
	sb.WriteString(n.Name)
	sb.WriteByte('(')
	for i, a := range n.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (n FilterReduce) String() string {
	var sb strings.Builder
	sb.WriteString("items.filter(item => ")
	sb.WriteString(n.Filter.String())
	sb.WriteString(").")
	switch n.Reduce {
	case ReduceCount:
		sb.WriteString("count()")
	default:
		sb.WriteString(n.Reduce)
		sb.WriteString("(")
		sb.WriteString(strconv.Quote(n.Field))
		sb.WriteString(")")
	}
	if n.Initial != 0 {
		sb.WriteString(" + ")
		sb.WriteString(strconv.FormatFloat(n.Initial, 'g', -1, 64))
	}
	return sb.String()
}

// Walk calls fn for n and every node below it, depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch n := n.(type) {
	case Unary:
		Walk(n.X, fn)
	case Binary:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case Cond:
		Walk(n.Test, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case FilterReduce:
		Walk(n.Filter, fn)
	}
}
