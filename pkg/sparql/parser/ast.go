package parser

import (
	"strings"

	"github.com/exocortex/exoql/pkg/rdf"
)

// QueryType represents the form of a SPARQL query
type QueryType int

const (
	QueryTypeSelect QueryType = iota
	QueryTypeConstruct
	QueryTypeAsk
	QueryTypeDescribe
)

func (t QueryType) String() string {
	switch t {
	case QueryTypeSelect:
		return "SELECT"
	case QueryTypeConstruct:
		return "CONSTRUCT"
	case QueryTypeAsk:
		return "ASK"
	case QueryTypeDescribe:
		return "DESCRIBE"
	default:
		return "UNKNOWN"
	}
}

// Query is a parsed SPARQL query. Sub-SELECTs use the same type.
type Query struct {
	Type     QueryType
	Prefixes map[string]string
	BaseIRI  string

	// SELECT projection; empty means SELECT *
	Projection []*Projection
	Distinct   bool
	Reduced    bool

	// CONSTRUCT template
	Template []*TriplePattern

	// DESCRIBE targets (IRIs or variables); empty means DESCRIBE *
	DescribeTargets []TermOrVariable

	// Where is nil only for a DESCRIBE without a WHERE clause
	Where *GroupPattern

	GroupBy []*GroupCondition
	Having  []Expression
	OrderBy []*OrderCondition
	Limit   *int
	Offset  *int

	// trailing VALUES block
	Values *InlineData
}

// HasAggregation reports whether the query groups or uses aggregates.
func (q *Query) HasAggregation() bool {
	if len(q.GroupBy) > 0 {
		return true
	}
	for _, p := range q.Projection {
		if p.Expression != nil && ContainsAggregate(p.Expression) {
			return true
		}
	}
	for _, h := range q.Having {
		if ContainsAggregate(h) {
			return true
		}
	}
	return false
}

// Projection is one SELECT item: a variable or (expression AS ?var)
type Projection struct {
	Variable   *Variable
	Expression Expression
}

// GroupCondition is one GROUP BY key, optionally bound with AS
type GroupCondition struct {
	Expression Expression
	Variable   *Variable
}

// OrderCondition represents an ORDER BY condition
type OrderCondition struct {
	Expression Expression
	Ascending  bool
}

// Variable represents a SPARQL variable
type Variable struct {
	Name string
}

// IsAnonymous reports whether the variable stands for a blank node of the
// query pattern and is therefore never projected by SELECT *.
func (v *Variable) IsAnonymous() bool {
	return strings.HasPrefix(v.Name, "_:")
}

// TermOrVariable can be either an RDF term or a variable
type TermOrVariable struct {
	Term     rdf.Term
	Variable *Variable
}

// IsVariable returns true if this is a variable
func (t TermOrVariable) IsVariable() bool {
	return t.Variable != nil
}

func (t TermOrVariable) String() string {
	if t.Variable != nil {
		return "?" + t.Variable.Name
	}
	if t.Term != nil {
		return t.Term.String()
	}
	return "<nil>"
}

// TriplePattern represents a triple pattern with possible variables. Path is
// set instead of Predicate when the predicate is a property path.
type TriplePattern struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Path      Path
	Object    TermOrVariable
}

// Variables returns the variables mentioned by the pattern in S, P, O order.
func (tp *TriplePattern) Variables() []*Variable {
	var vars []*Variable
	for _, t := range []TermOrVariable{tp.Subject, tp.Predicate, tp.Object} {
		if t.Variable != nil {
			vars = append(vars, t.Variable)
		}
	}
	return vars
}

// GroupPattern is a { ... } block; its elements keep source order.
type GroupPattern struct {
	Elements []PatternElement
}

// PatternElement is one member of a group graph pattern
type PatternElement interface {
	patternElement()
}

// TriplesBlock is a run of adjacent triple patterns
type TriplesBlock struct {
	Patterns []*TriplePattern
}

// FilterElement represents a FILTER constraint
type FilterElement struct {
	Expression Expression
}

// OptionalElement represents OPTIONAL { ... }
type OptionalElement struct {
	Pattern *GroupPattern
}

// UnionElement represents { ... } UNION { ... } [UNION ...]
type UnionElement struct {
	Alternatives []*GroupPattern
}

// MinusElement represents MINUS { ... }
type MinusElement struct {
	Pattern *GroupPattern
}

// GraphElement represents GRAPH <iri>|?var { ... }
type GraphElement struct {
	Name    TermOrVariable
	Pattern *GroupPattern
}

// BindElement represents BIND(expr AS ?var)
type BindElement struct {
	Expression Expression
	Variable   *Variable
}

// ValuesElement represents an inline VALUES block
type ValuesElement struct {
	Data *InlineData
}

// SubQueryElement represents a nested { SELECT ... }
type SubQueryElement struct {
	Query *Query
}

// NestedGroup represents a plain nested { ... }
type NestedGroup struct {
	Pattern *GroupPattern
}

func (*TriplesBlock) patternElement()    {}
func (*FilterElement) patternElement()   {}
func (*OptionalElement) patternElement() {}
func (*UnionElement) patternElement()    {}
func (*MinusElement) patternElement()    {}
func (*GraphElement) patternElement()    {}
func (*BindElement) patternElement()     {}
func (*ValuesElement) patternElement()   {}
func (*SubQueryElement) patternElement() {}
func (*NestedGroup) patternElement()     {}

// InlineData holds VALUES rows. A nil term is UNDEF.
type InlineData struct {
	Variables []*Variable
	Rows      [][]rdf.Term
}

// Path is a SPARQL property path
type Path interface {
	pathNode()
}

// LinkPath is a single predicate IRI
type LinkPath struct {
	IRI *rdf.NamedNode
}

// InversePath is ^path
type InversePath struct {
	Path Path
}

// SequencePath is left/right
type SequencePath struct {
	Left, Right Path
}

// AlternativePath is left|right
type AlternativePath struct {
	Left, Right Path
}

// ZeroOrMorePath is path*
type ZeroOrMorePath struct {
	Path Path
}

// OneOrMorePath is path+
type OneOrMorePath struct {
	Path Path
}

// ZeroOrOnePath is path?
type ZeroOrOnePath struct {
	Path Path
}

func (*LinkPath) pathNode()        {}
func (*InversePath) pathNode()     {}
func (*SequencePath) pathNode()    {}
func (*AlternativePath) pathNode() {}
func (*ZeroOrMorePath) pathNode()  {}
func (*OneOrMorePath) pathNode()   {}
func (*ZeroOrOnePath) pathNode()   {}

// Expression represents a SPARQL expression
type Expression interface {
	expressionNode()
}

// BinaryExpression represents a binary operation
type BinaryExpression struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

// UnaryExpression represents a unary operation
type UnaryExpression struct {
	Operator Operator
	Operand  Expression
}

// VariableExpression represents a variable in an expression
type VariableExpression struct {
	Variable *Variable
}

// LiteralExpression is a constant term (literal or IRI) in an expression
type LiteralExpression struct {
	Literal rdf.Term
}

// FunctionCallExpression represents a function call. Built-in names are
// upper case; extension functions use their full IRI.
type FunctionCallExpression struct {
	Function  string
	Arguments []Expression
}

// InExpression represents expr [NOT] IN (list)
type InExpression struct {
	Expression Expression
	List       []Expression
	Not        bool
}

// ExistsExpression represents [NOT] EXISTS { ... }
type ExistsExpression struct {
	Pattern *GroupPattern
	Not     bool
}

// AggregateExpression represents COUNT/SUM/AVG/MIN/MAX/SAMPLE/GROUP_CONCAT
type AggregateExpression struct {
	Function  string
	Distinct  bool
	Star      bool
	Argument  Expression
	Separator string
}

func (*BinaryExpression) expressionNode()       {}
func (*UnaryExpression) expressionNode()        {}
func (*VariableExpression) expressionNode()     {}
func (*LiteralExpression) expressionNode()      {}
func (*FunctionCallExpression) expressionNode() {}
func (*InExpression) expressionNode()           {}
func (*ExistsExpression) expressionNode()       {}
func (*AggregateExpression) expressionNode()    {}

// ContainsAggregate reports whether an aggregate occurs anywhere in expr.
func ContainsAggregate(expr Expression) bool {
	found := false
	WalkExpression(expr, func(e Expression) {
		if _, ok := e.(*AggregateExpression); ok {
			found = true
		}
	})
	return found
}

// WalkExpression calls fn for expr and every sub-expression, parents first.
// EXISTS patterns are not descended into.
func WalkExpression(expr Expression, fn func(Expression)) {
	if expr == nil {
		return
	}
	fn(expr)
	switch e := expr.(type) {
	case *BinaryExpression:
		WalkExpression(e.Left, fn)
		WalkExpression(e.Right, fn)
	case *UnaryExpression:
		WalkExpression(e.Operand, fn)
	case *FunctionCallExpression:
		for _, arg := range e.Arguments {
			WalkExpression(arg, fn)
		}
	case *InExpression:
		WalkExpression(e.Expression, fn)
		for _, item := range e.List {
			WalkExpression(item, fn)
		}
	case *AggregateExpression:
		WalkExpression(e.Argument, fn)
	}
}

// Operator represents an operator in expressions
type Operator int

const (
	OpAnd Operator = iota
	OpOr
	OpNot

	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide

	OpPlus
	OpMinus
)

func (o Operator) String() string {
	switch o {
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpNot:
		return "!"
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpAdd, OpPlus:
		return "+"
	case OpSubtract, OpMinus:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	default:
		return "?"
	}
}
