package algebra

import (
	"fmt"
	"slices"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/parser"
)

// Options controls translation
type Options struct {
	// Optimize reorders the patterns of each basic graph pattern so the most
	// selective ones run first.
	Optimize bool
}

// DefaultOptions enables optimization
func DefaultOptions() Options {
	return Options{Optimize: true}
}

// AggregateVariablePrefix names the internal variables that carry aggregate
// values between Group and the operators above it.
const AggregateVariablePrefix = "__agg"

const groupVariablePrefix = "__group"

// Translate lowers a parsed query into an algebra tree. For SELECT the tree
// ends in the projection; for the other forms it yields the full solutions
// of the WHERE clause after solution modifiers.
func Translate(q *parser.Query, opts Options) (Op, error) {
	t := &translator{opts: opts}
	return t.query(q)
}

// TranslatePattern lowers a group graph pattern alone. EXISTS uses it.
func TranslatePattern(g *parser.GroupPattern, opts Options) (Op, error) {
	t := &translator{opts: opts}
	return t.group(g)
}

type translator struct {
	opts Options
}

func (t *translator) query(q *parser.Query) (Op, error) {
	var op Op = unit()
	if q.Where != nil {
		var err error
		if op, err = t.group(q.Where); err != nil {
			return nil, err
		}
	}
	if q.Values != nil {
		op = join(op, table(q.Values))
	}

	having := q.Having
	orderBy := q.OrderBy
	var extends []*Extend

	if q.HasAggregation() {
		if q.Type == parser.QueryTypeSelect && len(q.Projection) == 0 {
			return nil, errors.New(errors.CodeSPARQLTranslateUnsupported,
				"SELECT * is not allowed with GROUP BY or aggregates")
		}
		group := &Group{Input: op}
		for i, cond := range q.GroupBy {
			key := GroupKey{Expression: cond.Expression}
			switch {
			case cond.Variable != nil:
				key.Variable = cond.Variable.Name
			default:
				if v, ok := cond.Expression.(*parser.VariableExpression); ok {
					key.Variable = v.Variable.Name
				} else {
					key.Variable = fmt.Sprintf("%s%d", groupVariablePrefix, i)
				}
			}
			group.Keys = append(group.Keys, key)
		}

		rw := &aggregateRewriter{group: group}
		having = make([]parser.Expression, len(q.Having))
		for i, h := range q.Having {
			having[i] = rw.rewrite(h)
		}
		for _, p := range q.Projection {
			if p.Expression == nil {
				continue
			}
			extends = append(extends, &Extend{Variable: p.Variable.Name, Expression: rw.rewrite(p.Expression)})
		}
		orderBy = make([]*parser.OrderCondition, len(q.OrderBy))
		for i, c := range q.OrderBy {
			orderBy[i] = &parser.OrderCondition{Expression: rw.rewrite(c.Expression), Ascending: c.Ascending}
		}
		op = group
	} else {
		for _, p := range q.Projection {
			if p.Expression != nil {
				extends = append(extends, &Extend{Variable: p.Variable.Name, Expression: p.Expression})
			}
		}
	}

	if len(having) > 0 {
		op = &Filter{Input: op, Expressions: having}
	}
	for _, e := range extends {
		e.Input = op
		op = e
	}
	if len(orderBy) > 0 {
		op = &OrderBy{Input: op, Conditions: orderBy}
	}
	if q.Type == parser.QueryTypeSelect {
		op = &Project{Input: op, Variables: ProjectedVariables(q)}
		if q.Distinct {
			op = &Distinct{Input: op}
		} else if q.Reduced {
			op = &Reduced{Input: op}
		}
	}
	if q.Limit != nil || q.Offset != nil {
		s := &Slice{Input: op, Limit: -1}
		if q.Limit != nil {
			s.Limit = *q.Limit
		}
		if q.Offset != nil {
			s.Offset = *q.Offset
		}
		op = s
	}
	return op, nil
}

// ProjectedVariables returns the result variables of a SELECT in order. For
// SELECT * these are the visible variables of the WHERE clause.
func ProjectedVariables(q *parser.Query) []string {
	if len(q.Projection) > 0 {
		vars := make([]string, len(q.Projection))
		for i, p := range q.Projection {
			vars[i] = p.Variable.Name
		}
		return vars
	}
	var vars []string
	add := func(v *parser.Variable) {
		if v != nil && !v.IsAnonymous() && !slices.Contains(vars, v.Name) {
			vars = append(vars, v.Name)
		}
	}
	collectVariables(q.Where, add)
	if q.Values != nil {
		for _, v := range q.Values.Variables {
			add(v)
		}
	}
	return vars
}

func collectVariables(g *parser.GroupPattern, add func(*parser.Variable)) {
	if g == nil {
		return
	}
	for _, el := range g.Elements {
		switch e := el.(type) {
		case *parser.TriplesBlock:
			for _, tp := range e.Patterns {
				for _, v := range tp.Variables() {
					add(v)
				}
			}
		case *parser.OptionalElement:
			collectVariables(e.Pattern, add)
		case *parser.UnionElement:
			for _, alt := range e.Alternatives {
				collectVariables(alt, add)
			}
		case *parser.GraphElement:
			add(e.Name.Variable)
			collectVariables(e.Pattern, add)
		case *parser.BindElement:
			add(e.Variable)
		case *parser.ValuesElement:
			for _, v := range e.Data.Variables {
				add(v)
			}
		case *parser.SubQueryElement:
			for _, name := range ProjectedVariables(e.Query) {
				add(&parser.Variable{Name: name})
			}
		case *parser.NestedGroup:
			collectVariables(e.Pattern, add)
		}
	}
}

func (t *translator) group(g *parser.GroupPattern) (Op, error) {
	var op Op = unit()
	var filters []parser.Expression

	for _, el := range g.Elements {
		switch e := el.(type) {
		case *parser.TriplesBlock:
			op = join(op, t.triples(e.Patterns))
		case *parser.FilterElement:
			filters = append(filters, e.Expression)
		case *parser.OptionalElement:
			inner, err := t.group(e.Pattern)
			if err != nil {
				return nil, err
			}
			lj := &LeftJoin{Left: op, Right: inner}
			if f, ok := inner.(*Filter); ok {
				lj.Right = f.Input
				lj.Filters = f.Expressions
			}
			op = lj
		case *parser.MinusElement:
			inner, err := t.group(e.Pattern)
			if err != nil {
				return nil, err
			}
			op = &Minus{Left: op, Right: inner}
		case *parser.UnionElement:
			var u Op
			for _, alt := range e.Alternatives {
				inner, err := t.group(alt)
				if err != nil {
					return nil, err
				}
				if u == nil {
					u = inner
				} else {
					u = &Union{Left: u, Right: inner}
				}
			}
			op = join(op, u)
		case *parser.GraphElement:
			inner, err := t.group(e.Pattern)
			if err != nil {
				return nil, err
			}
			op = join(op, &Graph{Name: e.Name, Input: inner})
		case *parser.BindElement:
			op = &Extend{Input: op, Variable: e.Variable.Name, Expression: e.Expression}
		case *parser.ValuesElement:
			op = join(op, table(e.Data))
		case *parser.SubQueryElement:
			inner, err := t.query(e.Query)
			if err != nil {
				return nil, err
			}
			op = join(op, inner)
		case *parser.NestedGroup:
			inner, err := t.group(e.Pattern)
			if err != nil {
				return nil, err
			}
			op = join(op, inner)
		default:
			return nil, errors.Errorf(errors.CodeSPARQLTranslateUnsupported, "unsupported pattern element %T", el)
		}
	}

	if len(filters) > 0 {
		op = &Filter{Input: op, Expressions: filters}
	}
	return op, nil
}

// triples splits a block into BGPs and path patterns, keeping source order
// between them.
func (t *translator) triples(patterns []*parser.TriplePattern) Op {
	var op Op = unit()
	var run []*parser.TriplePattern
	flush := func() {
		if len(run) == 0 {
			return
		}
		if t.opts.Optimize {
			run = reorderBySelectivity(run)
		}
		op = join(op, &BGP{Patterns: run})
		run = nil
	}
	for _, tp := range patterns {
		if tp.Path == nil {
			run = append(run, tp)
			continue
		}
		flush()
		op = join(op, &PathPattern{Subject: tp.Subject, Path: tp.Path, Object: tp.Object})
	}
	flush()
	return op
}

func join(left, right Op) Op {
	if IsUnit(left) {
		return right
	}
	if IsUnit(right) {
		return left
	}
	return &Join{Left: left, Right: right}
}

func table(data *parser.InlineData) *Table {
	vars := make([]string, len(data.Variables))
	for i, v := range data.Variables {
		vars[i] = v.Name
	}
	return &Table{Variables: vars, Rows: data.Rows}
}

// reorderBySelectivity orders patterns greedily: at each step it picks the
// most selective pattern among those sharing a variable with the patterns
// already placed, so the join never degenerates into a cross product when a
// connected order exists. Ties keep source order.
func reorderBySelectivity(patterns []*parser.TriplePattern) []*parser.TriplePattern {
	remaining := slices.Clone(patterns)
	ordered := make([]*parser.TriplePattern, 0, len(patterns))
	bound := map[string]bool{}

	for len(remaining) > 0 {
		best := -1
		bestConnected := false
		for i, tp := range remaining {
			connected := len(ordered) == 0 || sharesVariable(tp, bound)
			switch {
			case best < 0:
			case connected && !bestConnected:
			case connected == bestConnected && estimateSelectivity(tp, bound) < estimateSelectivity(remaining[best], bound):
			default:
				continue
			}
			best, bestConnected = i, connected
		}
		tp := remaining[best]
		ordered = append(ordered, tp)
		for _, v := range tp.Variables() {
			bound[v.Name] = true
		}
		remaining = slices.Delete(remaining, best, best+1)
	}
	return ordered
}

func sharesVariable(tp *parser.TriplePattern, bound map[string]bool) bool {
	for _, v := range tp.Variables() {
		if bound[v.Name] {
			return true
		}
	}
	return false
}

// estimateSelectivity estimates the fraction of triples a pattern matches.
// Lower is more selective. Variables bound by earlier patterns count as
// bound terms.
func estimateSelectivity(tp *parser.TriplePattern, bound map[string]bool) float64 {
	isBound := func(t parser.TermOrVariable) bool {
		return !t.IsVariable() || bound[t.Variable.Name]
	}
	selectivity := 1.0
	if isBound(tp.Subject) {
		selectivity *= 0.01
	}
	if isBound(tp.Predicate) {
		selectivity *= 0.1
	}
	if isBound(tp.Object) {
		selectivity *= 0.1
	}
	return selectivity
}

// aggregateRewriter moves aggregates into the Group operator and replaces
// them with references to their result variables.
type aggregateRewriter struct {
	group *Group
}

func (r *aggregateRewriter) rewrite(expr parser.Expression) parser.Expression {
	switch e := expr.(type) {
	case *parser.AggregateExpression:
		name := fmt.Sprintf("%s%d", AggregateVariablePrefix, len(r.group.Aggregates))
		r.group.Aggregates = append(r.group.Aggregates, Aggregate{Variable: name, Expression: e})
		return &parser.VariableExpression{Variable: &parser.Variable{Name: name}}
	case *parser.BinaryExpression:
		return &parser.BinaryExpression{Left: r.rewrite(e.Left), Operator: e.Operator, Right: r.rewrite(e.Right)}
	case *parser.UnaryExpression:
		return &parser.UnaryExpression{Operator: e.Operator, Operand: r.rewrite(e.Operand)}
	case *parser.FunctionCallExpression:
		args := make([]parser.Expression, len(e.Arguments))
		for i, a := range e.Arguments {
			args[i] = r.rewrite(a)
		}
		return &parser.FunctionCallExpression{Function: e.Function, Arguments: args}
	case *parser.InExpression:
		list := make([]parser.Expression, len(e.List))
		for i, a := range e.List {
			list[i] = r.rewrite(a)
		}
		return &parser.InExpression{Expression: r.rewrite(e.Expression), List: list, Not: e.Not}
	default:
		return expr
	}
}
