package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

func fold(e *Evaluator, agg *parser.AggregateExpression, values ...rdf.Term) rdf.Term {
	acc := e.NewAccumulator(agg)
	for _, v := range values {
		b := store.NewBinding()
		if v != nil {
			b.Set("v", v)
		}
		acc.Add(b)
	}
	return acc.Result()
}

func argV() parser.Expression {
	return &parser.VariableExpression{Variable: &parser.Variable{Name: "v"}}
}

func TestAccumulator(t *testing.T) {
	e := NewEvaluator()
	one, two := rdf.NewIntegerLiteral(1), rdf.NewIntegerLiteral(2)

	tests := []struct {
		name   string
		agg    *parser.AggregateExpression
		values []rdf.Term
		want   string
	}{
		{"count skips unbound", &parser.AggregateExpression{Function: "COUNT", Argument: argV()}, []rdf.Term{one, nil, two}, "2"},
		{"count star", &parser.AggregateExpression{Function: "COUNT", Star: true}, []rdf.Term{one, nil, two}, "3"},
		{"count distinct", &parser.AggregateExpression{Function: "COUNT", Distinct: true, Argument: argV()}, []rdf.Term{one, one, two}, "2"},
		{"sum integers", &parser.AggregateExpression{Function: "SUM", Argument: argV()}, []rdf.Term{one, two}, "3"},
		{"sum promotes", &parser.AggregateExpression{Function: "SUM", Argument: argV()}, []rdf.Term{one, rdf.NewDecimalLiteral(0.5)}, "1.5"},
		{"sum empty", &parser.AggregateExpression{Function: "SUM", Argument: argV()}, nil, "0"},
		{"avg plain numbers", &parser.AggregateExpression{Function: "AVG", Argument: argV()}, []rdf.Term{rdf.NewLiteral("20"), rdf.NewLiteral("25")}, "22.5"},
		{"avg empty", &parser.AggregateExpression{Function: "AVG", Argument: argV()}, nil, "0"},
		{"min", &parser.AggregateExpression{Function: "MIN", Argument: argV()}, []rdf.Term{two, one}, "1"},
		{"max", &parser.AggregateExpression{Function: "MAX", Argument: argV()}, []rdf.Term{one, rdf.NewDecimalLiteral(1.5)}, "1.5"},
		{"min plain numbers", &parser.AggregateExpression{Function: "MIN", Argument: argV()}, []rdf.Term{rdf.NewLiteral("5"), rdf.NewLiteral("40"), rdf.NewLiteral("100")}, "5"},
		{"max plain numbers", &parser.AggregateExpression{Function: "MAX", Argument: argV()}, []rdf.Term{rdf.NewLiteral("5"), rdf.NewLiteral("100"), rdf.NewLiteral("40")}, "100"},
		{"max mixed plain and typed", &parser.AggregateExpression{Function: "MAX", Argument: argV()}, []rdf.Term{rdf.NewLiteral("9"), rdf.NewIntegerLiteral(10)}, "10"},
		{"max plain strings", &parser.AggregateExpression{Function: "MAX", Argument: argV()}, []rdf.Term{rdf.NewLiteral("apple"), rdf.NewLiteral("pear")}, "pear"},
		{"sum past int64", &parser.AggregateExpression{Function: "SUM", Argument: argV()}, []rdf.Term{rdf.NewIntegerLiteral(9223372036854775807), one}, "9223372036854775808"},
		{"sample", &parser.AggregateExpression{Function: "SAMPLE", Argument: argV()}, []rdf.Term{nil, two, one}, "2"},
		{"group concat", &parser.AggregateExpression{Function: "GROUP_CONCAT", Argument: argV(), Separator: ", "}, []rdf.Term{rdf.NewLiteral("a"), rdf.NewLiteral("b")}, "a, b"},
		{"group concat distinct", &parser.AggregateExpression{Function: "GROUP_CONCAT", Distinct: true, Argument: argV(), Separator: "|"}, []rdf.Term{rdf.NewLiteral("a"), rdf.NewLiteral("a")}, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fold(e, tt.agg, tt.values...)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.(*rdf.Literal).Value)
		})
	}
}

func TestAccumulator_Unbound(t *testing.T) {
	e := NewEvaluator()
	assert.Nil(t, fold(e, &parser.AggregateExpression{Function: "MIN", Argument: argV()}))
	assert.Nil(t, fold(e, &parser.AggregateExpression{Function: "SUM", Argument: argV()}, rdf.NewLiteral("not a number")))
}

func TestAccumulator_AvgDatatype(t *testing.T) {
	got := fold(NewEvaluator(), &parser.AggregateExpression{Function: "AVG", Argument: argV()},
		rdf.NewIntegerLiteral(30), rdf.NewIntegerLiteral(40))
	lit := got.(*rdf.Literal)
	assert.Equal(t, "35", lit.Value)
	assert.Equal(t, rdf.XSDDecimal.IRI, lit.Datatype.IRI)
}
