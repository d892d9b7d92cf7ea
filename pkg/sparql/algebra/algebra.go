// Package algebra lowers parsed SPARQL queries into a tree of algebra
// operators. The tree is a pure description; nothing here touches a store.
package algebra

import (
	"fmt"
	"strings"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
)

// Op is a node of the algebra tree
type Op interface {
	opNode()
}

// BGP is a basic graph pattern: triple patterns joined on shared variables
type BGP struct {
	Patterns []*parser.TriplePattern
}

// PathPattern matches a property path between subject and object
type PathPattern struct {
	Subject parser.TermOrVariable
	Path    parser.Path
	Object  parser.TermOrVariable
}

// Join is the natural join of two operands
type Join struct {
	Left, Right Op
}

// LeftJoin keeps every left solution, extending it with compatible right
// solutions for which Filters hold (OPTIONAL).
type LeftJoin struct {
	Left, Right Op
	Filters     []parser.Expression
}

// Filter drops solutions for which any expression is not true
type Filter struct {
	Input       Op
	Expressions []parser.Expression
}

// Union concatenates the solutions of both operands
type Union struct {
	Left, Right Op
}

// Minus removes left solutions compatible with some right solution that
// shares at least one variable.
type Minus struct {
	Left, Right Op
}

// Graph evaluates Input against a named graph. A variable name ranges over
// all named graphs.
type Graph struct {
	Name  parser.TermOrVariable
	Input Op
}

// Extend binds Variable to the value of Expression (BIND, SELECT expressions)
type Extend struct {
	Input      Op
	Variable   string
	Expression parser.Expression
}

// Table is inline data (VALUES). A nil term is unbound.
type Table struct {
	Variables []string
	Rows      [][]rdf.Term
}

// unit is the table with one empty solution, the identity of Join.
func unit() *Table {
	return &Table{Rows: [][]rdf.Term{{}}}
}

// IsUnit reports whether op is the join identity.
func IsUnit(op Op) bool {
	t, ok := op.(*Table)
	return ok && len(t.Variables) == 0 && len(t.Rows) == 1
}

// GroupKey is one partition key, bound to Variable in the output.
type GroupKey struct {
	Variable   string
	Expression parser.Expression
}

// Aggregate is one aggregate computed per group, bound to Variable.
type Aggregate struct {
	Variable   string
	Expression *parser.AggregateExpression
}

// Group partitions solutions by Keys and folds Aggregates per partition.
// Without keys the whole input is one group.
type Group struct {
	Input      Op
	Keys       []GroupKey
	Aggregates []Aggregate
}

// Project restricts solutions to Variables
type Project struct {
	Input     Op
	Variables []string
}

// Distinct removes duplicate solutions
type Distinct struct {
	Input Op
}

// Reduced permits, but does not require, duplicate elimination
type Reduced struct {
	Input Op
}

// OrderBy sorts solutions
type OrderBy struct {
	Input      Op
	Conditions []*parser.OrderCondition
}

// Slice applies OFFSET and LIMIT. Limit < 0 means unbounded.
type Slice struct {
	Input  Op
	Offset int
	Limit  int
}

func (*BGP) opNode()         {}
func (*PathPattern) opNode() {}
func (*Join) opNode()        {}
func (*LeftJoin) opNode()    {}
func (*Filter) opNode()      {}
func (*Union) opNode()       {}
func (*Minus) opNode()       {}
func (*Graph) opNode()       {}
func (*Extend) opNode()      {}
func (*Table) opNode()       {}
func (*Group) opNode()       {}
func (*Project) opNode()     {}
func (*Distinct) opNode()    {}
func (*Reduced) opNode()     {}
func (*OrderBy) opNode()     {}
func (*Slice) opNode()       {}

// String renders the tree as an S-expression.
func String(op Op) string {
	var sb strings.Builder
	write(&sb, op)
	return sb.String()
}

func write(sb *strings.Builder, op Op) {
	switch o := op.(type) {
	case *BGP:
		sb.WriteString("(bgp")
		for _, tp := range o.Patterns {
			fmt.Fprintf(sb, " (%s %s %s)", tp.Subject, tp.Predicate, tp.Object)
		}
		sb.WriteString(")")
	case *PathPattern:
		fmt.Fprintf(sb, "(path %s %T %s)", o.Subject, o.Path, o.Object)
	case *Join:
		writeBinary(sb, "join", o.Left, o.Right)
	case *LeftJoin:
		writeBinary(sb, "leftjoin", o.Left, o.Right)
	case *Union:
		writeBinary(sb, "union", o.Left, o.Right)
	case *Minus:
		writeBinary(sb, "minus", o.Left, o.Right)
	case *Filter:
		fmt.Fprintf(sb, "(filter %d ", len(o.Expressions))
		write(sb, o.Input)
		sb.WriteString(")")
	case *Graph:
		fmt.Fprintf(sb, "(graph %s ", o.Name)
		write(sb, o.Input)
		sb.WriteString(")")
	case *Extend:
		fmt.Fprintf(sb, "(extend ?%s ", o.Variable)
		write(sb, o.Input)
		sb.WriteString(")")
	case *Table:
		if IsUnit(o) {
			sb.WriteString("(table unit)")
		} else {
			fmt.Fprintf(sb, "(table %v %d)", o.Variables, len(o.Rows))
		}
	case *Group:
		keys := make([]string, len(o.Keys))
		for i, k := range o.Keys {
			keys[i] = "?" + k.Variable
		}
		aggs := make([]string, len(o.Aggregates))
		for i, a := range o.Aggregates {
			aggs[i] = a.Expression.Function
		}
		fmt.Fprintf(sb, "(group (%s) (%s) ", strings.Join(keys, " "), strings.Join(aggs, " "))
		write(sb, o.Input)
		sb.WriteString(")")
	case *Project:
		fmt.Fprintf(sb, "(project (%s) ", strings.Join(prefixed(o.Variables), " "))
		write(sb, o.Input)
		sb.WriteString(")")
	case *Distinct:
		sb.WriteString("(distinct ")
		write(sb, o.Input)
		sb.WriteString(")")
	case *Reduced:
		sb.WriteString("(reduced ")
		write(sb, o.Input)
		sb.WriteString(")")
	case *OrderBy:
		fmt.Fprintf(sb, "(order %d ", len(o.Conditions))
		write(sb, o.Input)
		sb.WriteString(")")
	case *Slice:
		fmt.Fprintf(sb, "(slice %d %d ", o.Offset, o.Limit)
		write(sb, o.Input)
		sb.WriteString(")")
	default:
		sb.WriteString("(?)")
	}
}

func writeBinary(sb *strings.Builder, name string, left, right Op) {
	sb.WriteString("(" + name + " ")
	write(sb, left)
	sb.WriteString(" ")
	write(sb, right)
	sb.WriteString(")")
}

func prefixed(vars []string) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = "?" + v
	}
	return out
}
