package evaluator

import (
	"strings"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// Accumulator folds one aggregate over the solutions of a group.
type Accumulator struct {
	e    *Evaluator
	agg  *parser.AggregateExpression
	seen map[string]struct{}

	count   int64
	sum     numeric
	invalid bool
	best    rdf.Term
	parts   []string
}

// NewAccumulator starts an empty fold of agg.
func (e *Evaluator) NewAccumulator(agg *parser.AggregateExpression) *Accumulator {
	acc := &Accumulator{e: e, agg: agg, sum: intNumeric(0)}
	if agg.Distinct {
		acc.seen = make(map[string]struct{})
	}
	return acc
}

// Add folds one solution. Solutions where the argument is unbound or fails
// to evaluate are skipped.
func (a *Accumulator) Add(binding *store.Binding) {
	if a.agg.Star {
		if a.seen != nil {
			key := binding.Key()
			if _, dup := a.seen[key]; dup {
				return
			}
			a.seen[key] = struct{}{}
		}
		a.count++
		return
	}

	value, err := a.e.Evaluate(a.agg.Argument, binding)
	if err != nil {
		return
	}
	if a.seen != nil {
		if _, dup := a.seen[value.Key()]; dup {
			return
		}
		a.seen[value.Key()] = struct{}{}
	}
	a.count++

	switch a.agg.Function {
	case "SUM", "AVG":
		// plain literals such as "20" count as numbers here
		n, ok := numericOf(value, true)
		if !ok {
			a.invalid = true
			return
		}
		a.sum = addNumeric(a.sum, n)
	case "MIN":
		if a.best == nil || aggregateCompare(value, a.best) < 0 {
			a.best = value
		}
	case "MAX":
		if a.best == nil || aggregateCompare(value, a.best) > 0 {
			a.best = value
		}
	case "SAMPLE":
		if a.best == nil {
			a.best = value
		}
	case "GROUP_CONCAT":
		switch t := value.(type) {
		case *rdf.Literal:
			a.parts = append(a.parts, t.Value)
		case *rdf.NamedNode:
			a.parts = append(a.parts, t.IRI)
		default:
			a.invalid = true
		}
	}
}

// Result returns the aggregate value, or nil when it is unbound for this
// group (an empty MIN, or a SUM over non-numeric values).
func (a *Accumulator) Result() rdf.Term {
	switch a.agg.Function {
	case "COUNT":
		return rdf.NewIntegerLiteral(a.count)
	case "SUM":
		if a.invalid {
			return nil
		}
		return a.sum.literal()
	case "AVG":
		if a.invalid {
			return nil
		}
		if a.count == 0 {
			return rdf.NewIntegerLiteral(0)
		}
		return divideNumeric(a.sum, intNumeric(a.count)).literal()
	case "MIN", "MAX", "SAMPLE":
		return a.best
	case "GROUP_CONCAT":
		if a.invalid {
			return nil
		}
		return rdf.NewLiteral(strings.Join(a.parts, a.agg.Separator))
	default:
		return nil
	}
}

// aggregateCompare orders MIN/MAX candidates. Numeric-looking plain literals
// compare as numbers, everything else falls back to ORDER BY ordering.
func aggregateCompare(a, b rdf.Term) int {
	if na, ok := numericOf(a, true); ok {
		if nb, ok := numericOf(b, true); ok {
			if c, err := compareNumeric(na, nb); err == nil {
				return c
			}
		}
	}
	return OrderCompare(a, b)
}

func addNumeric(a, b numeric) numeric {
	kind := max(a.kind, b.kind)
	if kind == kindInteger {
		if sum, ok := integerArithmetic(parser.OpAdd, a.i, b.i); ok {
			return intNumeric(sum)
		}
		kind = kindDecimal
	}
	return numeric{kind: kind, f: a.f + b.f}
}

func divideNumeric(a, b numeric) numeric {
	kind := max(a.kind, b.kind, kindDecimal)
	return numeric{kind: kind, f: a.f / b.f}
}
