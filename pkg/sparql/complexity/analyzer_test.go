package complexity

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/errors"
)

const prefix = "PREFIX ex: <http://example.org/>\n"

func analyze(query string) *Report {
	return NewAnalyzer(DefaultThresholds()).Analyze(prefix + query)
}

func TestAnalyze_NoPatternsIsAllowed(t *testing.T) {
	r := analyze(`SELECT (1 AS ?x) WHERE {}`)
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Metrics.TriplePatterns)
	assert.Equal(t, Constant, r.TimeClass)
	assert.Equal(t, RiskLow, r.Risk)
	assert.Empty(t, r.Violations)
}

func TestAnalyze_TooManyTriplePatterns(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("SELECT * WHERE {\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&sb, "  ?s ex:p%d ?o%d .\n", i, i)
	}
	sb.WriteString("}")

	r := analyze(sb.String())
	assert.Equal(t, 60, r.Metrics.TriplePatterns)
	assert.False(t, r.Allowed)
	require.NotEmpty(t, r.Violations)
	assert.Contains(t, r.Violations[0], "60 triple patterns")
	assert.NotEmpty(t, r.Recommendations)
	assert.Contains(t, []RiskLevel{RiskHigh, RiskCritical}, r.Risk)
}

func TestAnalyze_Metrics(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, m Metrics)
	}{
		{
			name:  "shared variable join",
			query: `SELECT * WHERE { ?a ex:p ?b . ?b ex:q ?c }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 2, m.TriplePatterns)
				assert.Equal(t, 1, m.JoinComplexity)
				assert.Equal(t, 3, m.Variables)
			},
		},
		{
			name:  "predicate object lists",
			query: `SELECT * WHERE { ?a ex:p ?b ; ex:q ?c , ?d }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 3, m.TriplePatterns)
				assert.Equal(t, 2, m.JoinComplexity)
			},
		},
		{
			name:  "filter terms are not patterns",
			query: `SELECT ?s WHERE { ?s ex:p ?o FILTER(regex(?o, "x")) ?s ex:q ?z }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 2, m.TriplePatterns)
				assert.Equal(t, 1, m.Filters)
				assert.Equal(t, 1, m.ExpensiveFilters)
			},
		},
		{
			name:  "exists patterns count",
			query: `SELECT ?s WHERE { ?s ex:p ?o FILTER NOT EXISTS { ?s ex:q ?z } }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 2, m.TriplePatterns)
				assert.Equal(t, 1, m.ExpensiveFilters)
			},
		},
		{
			name:  "values and bind are skipped",
			query: `SELECT * WHERE { VALUES ?x { ex:a ex:b ex:c } ?x ex:p ?y BIND(?y + 1 AS ?z) }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 1, m.TriplePatterns)
			},
		},
		{
			name:  "construct template is not matched",
			query: `CONSTRUCT { ?s ex:q ?o . ?o ex:r ?s } WHERE { ?s ex:p ?o }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 1, m.TriplePatterns)
			},
		},
		{
			name:  "property paths",
			query: `SELECT * WHERE { ?a ex:knows+ ?b . ?a ^ex:parent/ex:name ?n . ?a ex:r? ?d }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 3, m.TriplePatterns)
				assert.Equal(t, 3, m.PropertyPaths)
				assert.Equal(t, 1, m.UnboundedPaths)
			},
		},
		{
			name: "nested subqueries",
			query: `SELECT ?x WHERE { { SELECT ?x WHERE { { SELECT ?x WHERE { ?x ex:p ?y } } } } }
				ORDER BY ?x`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 2, m.SubqueryDepth)
				assert.Equal(t, 1, m.TriplePatterns)
				assert.True(t, m.HasOrderBy)
			},
		},
		{
			name:  "sub-select modifiers are not patterns",
			query: `SELECT * WHERE { ?p ex:name ?n { SELECT ?p WHERE { ?p ex:age ?a } ORDER BY DESC(?a) LIMIT 1 } }`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 2, m.TriplePatterns)
				assert.Equal(t, 1, m.SubqueryDepth)
			},
		},
		{
			name: "group structure",
			query: `SELECT DISTINCT ?a (COUNT(DISTINCT ?b) AS ?n) WHERE {
				?a ex:p ?b OPTIONAL { ?b ex:q ?c } { ?a ex:r ?d } UNION { ?a ex:s ?d } MINUS { ?a ex:t ?e }
			} GROUP BY ?a LIMIT 5`,
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 5, m.TriplePatterns)
				assert.Equal(t, 1, m.Optionals)
				assert.Equal(t, 1, m.Unions)
				assert.Equal(t, 1, m.Minus)
				assert.Equal(t, 1, m.Aggregates)
				assert.True(t, m.HasDistinct)
				assert.True(t, m.HasGroupBy)
				assert.True(t, m.HasLimit)
				assert.Equal(t, 0, m.CartesianProducts)
			},
		},
		{
			name:  "comments and strings are ignored",
			query: "SELECT * WHERE { # ?x ex:p ?y .\n ?s ex:label \"a . b { } ?c\"@en }",
			check: func(t *testing.T, m Metrics) {
				assert.Equal(t, 1, m.TriplePatterns)
				assert.Equal(t, 1, m.Variables)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, analyze(tt.query).Metrics)
		})
	}
}

func TestAnalyze_TimeClass(t *testing.T) {
	tests := []struct {
		query string
		want  TimeClass
	}{
		{`ASK {}`, Constant},
		{`SELECT ?o WHERE { ex:a ex:p ?o }`, Logarithmic},
		{`SELECT * WHERE { ?s ex:p ?o }`, Linear},
		{`SELECT * WHERE { ?s ex:p ?o } ORDER BY ?o`, Linearithmic},
		{`SELECT * WHERE { ?a ex:p ?b . ?b ex:q ?c }`, Linearithmic},
		{`SELECT * WHERE { ?a ex:p ?b . ?c ex:q ?d }`, Quadratic},
		{`SELECT * WHERE { ?a ex:knows* ?b }`, Quadratic},
		{`SELECT * WHERE { ?a ex:p ?b . ?c ex:q ?d . ?e ex:r ?f }`, Cubic},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, analyze(tt.query).TimeClass)
		})
	}
}

func TestAnalyze_CartesianProductIsDenied(t *testing.T) {
	r := analyze(`SELECT * WHERE { ?a ex:p ?b . ?c ex:q ?d }`)
	assert.False(t, r.Allowed)
	assert.Equal(t, 1, r.Metrics.CartesianProducts)
	assert.Contains(t, r.Recommendations, "Connect every triple pattern to the others through a shared variable")
}

func TestAnalyze_ChainJoinIsAllowed(t *testing.T) {
	r := analyze(`SELECT * WHERE {
		?a ex:p ?b . ?b ex:p ?c . ?c ex:p ?d . ?d ex:p ?e .
		?e ex:p ?f . ?f ex:p ?g . ?g ex:p ?h
	} ORDER BY ?a`)
	assert.Equal(t, 7, r.Metrics.TriplePatterns)
	assert.Equal(t, 8, r.Metrics.Variables)
	assert.Equal(t, Linearithmic, r.TimeClass)
	assert.Equal(t, uint64(10_000*8*100), r.EstimatedMemoryBytes)
	assert.True(t, r.Allowed, "violations: %v", r.Violations)
}

func TestAnalyze_MemoryViolationUsesBinaryUnits(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, uint64(100<<20), th.MaxMemoryBytes)

	th.MaxMemoryBytes = 1 << 20
	r := NewAnalyzer(th).Analyze(prefix + `SELECT * WHERE { ?a ex:p ?b . ?b ex:q ?c }`)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Violations, "estimated memory 2.9 MiB exceeds limit 1.0 MiB")
}

func TestAnalyze_CustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.MaxTriplePatterns = 1
	th.MaxCost = 15

	r := NewAnalyzer(th).Analyze(prefix + `SELECT * WHERE { ?a ex:p ?b . ?b ex:q ?c }`)
	assert.False(t, r.Allowed)
	assert.Len(t, r.Violations, 2)
	assert.Equal(t, RiskHigh, r.Risk)
}

func TestAnalyze_GoldenReport(t *testing.T) {
	r := analyze(`SELECT ?s ?o WHERE { ?s <http://example.org/p> ?o } LIMIT 10`)
	out, err := r.YAML()
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "simple_select", out)
}

func TestReport_JSON(t *testing.T) {
	out, err := analyze(`SELECT * WHERE { ?s ex:p ?o }`).JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "O(n)", decoded["time_class"])
	assert.Equal(t, true, decoded["allowed"])
	assert.Equal(t, "low", decoded["risk"])
}

func TestParseTimeClass(t *testing.T) {
	for c := Constant; c <= Exponential; c++ {
		parsed, err := ParseTimeClass(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	c, err := ParseTimeClass(" o(n²) ")
	require.NoError(t, err)
	assert.Equal(t, Quadratic, c)

	_, err = ParseTimeClass("O(n!)")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigValidateInvalidValue))
}
