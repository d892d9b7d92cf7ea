package algebra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/parser"
)

func translate(t *testing.T, query string, opts Options) Op {
	t.Helper()
	q, err := parser.Parse(query)
	require.NoError(t, err)
	op, err := Translate(q, opts)
	require.NoError(t, err)
	return op
}

func TestTranslate_SimpleSelect(t *testing.T) {
	op := translate(t, `SELECT ?s WHERE { ?s <http://x/p> ?o }`, DefaultOptions())
	assert.Equal(t, "(project (?s) (bgp (?s <http://x/p> ?o)))", String(op))
}

func TestTranslate_Modifiers(t *testing.T) {
	op := translate(t, `SELECT DISTINCT ?s WHERE { ?s <http://x/p> ?o } ORDER BY ?o LIMIT 10 OFFSET 5`, DefaultOptions())
	assert.Equal(t, "(slice 5 10 (distinct (project (?s) (order 1 (bgp (?s <http://x/p> ?o))))))", String(op))

	op = translate(t, `SELECT ?s WHERE { ?s ?p ?o } OFFSET 3`, DefaultOptions())
	slice := op.(*Slice)
	assert.Equal(t, -1, slice.Limit)
	assert.Equal(t, 3, slice.Offset)
}

func TestTranslate_OptionalCarriesFilter(t *testing.T) {
	op := translate(t, `SELECT * WHERE {
		?s <http://x/p> ?o
		OPTIONAL { ?s <http://x/q> ?v FILTER(?v > 1) }
	}`, DefaultOptions())

	lj, ok := op.(*Project).Input.(*LeftJoin)
	require.True(t, ok)
	assert.Len(t, lj.Filters, 1)
	assert.IsType(t, &BGP{}, lj.Right)
}

func TestTranslate_GroupFiltersApplyToWholeGroup(t *testing.T) {
	op := translate(t, `SELECT * WHERE {
		FILTER(?o = 1)
		?s <http://x/p> ?o
		BIND(?o AS ?copy)
	}`, DefaultOptions())

	f, ok := op.(*Project).Input.(*Filter)
	require.True(t, ok)
	assert.IsType(t, &Extend{}, f.Input)
}

func TestTranslate_PatternElements(t *testing.T) {
	op := translate(t, `SELECT * WHERE {
		{ ?s <http://x/a> ?o } UNION { ?s <http://x/b> ?o } UNION { ?s <http://x/c> ?o }
		MINUS { ?s <http://x/hidden> true }
		GRAPH ?g { ?s <http://x/d> ?d }
		VALUES ?o { 1 2 }
	}`, DefaultOptions())

	join, ok := op.(*Project).Input.(*Join)
	require.True(t, ok)
	assert.IsType(t, &Table{}, join.Right)

	graphJoin := join.Left.(*Join)
	g := graphJoin.Right.(*Graph)
	assert.Equal(t, "g", g.Name.Variable.Name)

	minus := graphJoin.Left.(*Minus)
	u := minus.Left.(*Union)
	assert.IsType(t, &Union{}, u.Left, "unions nest to the left")
	assert.IsType(t, &BGP{}, u.Right)
}

func TestTranslate_PathSplitsBlock(t *testing.T) {
	op := translate(t, `SELECT * WHERE { ?s <http://x/p>/<http://x/q> ?o . ?o <http://x/r> ?x }`, DefaultOptions())

	join := op.(*Project).Input.(*Join)
	path, ok := join.Left.(*PathPattern)
	require.True(t, ok)
	assert.IsType(t, &parser.SequencePath{}, path.Path)
	assert.IsType(t, &BGP{}, join.Right)
}

func TestTranslate_Aggregation(t *testing.T) {
	op := translate(t, `
		SELECT ?g (AVG(?d) AS ?avg) WHERE {
			?s <http://x/g> ?g .
			?s <http://x/d> ?d
		}
		GROUP BY ?g
		HAVING (COUNT(?s) > 1)
		ORDER BY DESC(?avg)`, DefaultOptions())

	project := op.(*Project)
	assert.Equal(t, []string{"g", "avg"}, project.Variables)

	order := project.Input.(*OrderBy)
	extend := order.Input.(*Extend)
	assert.Equal(t, "avg", extend.Variable)
	ref := extend.Expression.(*parser.VariableExpression)
	assert.Equal(t, AggregateVariablePrefix+"1", ref.Variable.Name)

	filter := extend.Input.(*Filter)
	group := filter.Input.(*Group)
	require.Len(t, group.Keys, 1)
	assert.Equal(t, "g", group.Keys[0].Variable)
	require.Len(t, group.Aggregates, 2)
	assert.Equal(t, "COUNT", group.Aggregates[0].Expression.Function)
	assert.Equal(t, "AVG", group.Aggregates[1].Expression.Function)
	assert.False(t, parser.ContainsAggregate(filter.Expressions[0]))
}

func TestTranslate_ImplicitGroup(t *testing.T) {
	op := translate(t, `SELECT (COUNT(*) AS ?n) WHERE { ?s ?p ?o }`, DefaultOptions())
	group := op.(*Project).Input.(*Extend).Input.(*Group)
	assert.Empty(t, group.Keys)
	assert.True(t, group.Aggregates[0].Expression.Star)
}

func TestTranslate_GroupByExpressionGetsInternalName(t *testing.T) {
	op := translate(t, `SELECT (COUNT(?s) AS ?n) WHERE { ?s <http://x/p> ?o } GROUP BY (STR(?o)) (LANG(?o) AS ?lang)`, DefaultOptions())
	group := op.(*Project).Input.(*Extend).Input.(*Group)
	require.Len(t, group.Keys, 2)
	assert.Equal(t, groupVariablePrefix+"0", group.Keys[0].Variable)
	assert.Equal(t, "lang", group.Keys[1].Variable)
}

func TestTranslate_SelectStarWithGroupByFails(t *testing.T) {
	q, err := parser.Parse(`SELECT * WHERE { ?s ?p ?o } GROUP BY ?s`)
	require.NoError(t, err)
	_, err = Translate(q, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSPARQLTranslateUnsupported))
}

func TestTranslate_SubQuery(t *testing.T) {
	op := translate(t, `SELECT ?s ?n WHERE {
		?s <http://x/p> ?o .
		{ SELECT ?s (COUNT(?x) AS ?n) WHERE { ?s <http://x/q> ?x } GROUP BY ?s }
	}`, DefaultOptions())

	join := op.(*Project).Input.(*Join)
	inner, ok := join.Right.(*Project)
	require.True(t, ok)
	assert.Equal(t, []string{"s", "n"}, inner.Variables)
}

func TestTranslate_AskAndConstructHaveNoProjection(t *testing.T) {
	op := translate(t, `ASK { ?s ?p ?o }`, DefaultOptions())
	assert.IsType(t, &BGP{}, op)

	op = translate(t, `CONSTRUCT { ?s <http://x/q> ?o } WHERE { ?s <http://x/p> ?o } LIMIT 1`, DefaultOptions())
	assert.IsType(t, &BGP{}, op.(*Slice).Input)
}

func TestTranslate_EmptyWhereIsUnit(t *testing.T) {
	op := translate(t, `SELECT * WHERE { }`, DefaultOptions())
	assert.True(t, IsUnit(op.(*Project).Input))
}

func TestReorderBySelectivity(t *testing.T) {
	query := `SELECT * WHERE {
		?a <http://x/p> ?b .
		?c <http://x/q> <http://x/o> .
		?b <http://x/r> ?c
	}`

	bgp := translate(t, query, DefaultOptions()).(*Project).Input.(*BGP)
	require.Len(t, bgp.Patterns, 3)
	assert.Equal(t, "c", bgp.Patterns[0].Subject.Variable.Name, "most selective first")
	assert.Equal(t, "b", bgp.Patterns[1].Subject.Variable.Name, "then connected to ?c")
	assert.Equal(t, "a", bgp.Patterns[2].Subject.Variable.Name)

	bgp = translate(t, query, Options{}).(*Project).Input.(*BGP)
	assert.Equal(t, "a", bgp.Patterns[0].Subject.Variable.Name, "source order without optimization")
}

func TestEstimateSelectivity(t *testing.T) {
	q, err := parser.Parse(`SELECT * WHERE { <http://x/s> <http://x/p> ?o . ?s ?p ?o }`)
	require.NoError(t, err)
	patterns := q.Where.Elements[0].(*parser.TriplesBlock).Patterns

	assert.InDelta(t, 0.001, estimateSelectivity(patterns[0], nil), 1e-12)
	assert.InDelta(t, 1.0, estimateSelectivity(patterns[1], nil), 1e-12)
	assert.InDelta(t, 0.1, estimateSelectivity(patterns[1], map[string]bool{"o": true}), 1e-12)
}

func TestProjectedVariables_SelectStar(t *testing.T) {
	q, err := parser.Parse(`SELECT * WHERE {
		?s <http://x/p> [ <http://x/q> ?v ] .
		OPTIONAL { ?s <http://x/r> ?opt }
		BIND(1 AS ?one)
		MINUS { ?s <http://x/m> ?hidden }
	}`)
	require.NoError(t, err)

	vars := ProjectedVariables(q)
	assert.ElementsMatch(t, []string{"s", "v", "opt", "one"}, vars)
}
