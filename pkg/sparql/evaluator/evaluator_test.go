package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

var fixedNow = time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)

func parseExpr(t *testing.T, expr string) parser.Expression {
	t.Helper()
	q, err := parser.Parse("PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>\nSELECT (" + expr + " AS ?r) WHERE {}")
	require.NoError(t, err)
	return q.Projection[0].Expression
}

func eval(t *testing.T, expr string, binding *store.Binding, opts ...Option) (rdf.Term, error) {
	t.Helper()
	opts = append([]Option{WithNow(fixedNow)}, opts...)
	return NewEvaluator(opts...).Evaluate(parseExpr(t, expr), binding)
}

func mustEval(t *testing.T, expr string) *rdf.Literal {
	t.Helper()
	term, err := eval(t, expr, store.NewBinding())
	require.NoError(t, err, expr)
	lit, ok := term.(*rdf.Literal)
	require.True(t, ok, "%s returned %v", expr, term)
	return lit
}

func TestEvaluate_Table(t *testing.T) {
	tests := []struct {
		expr     string
		value    string
		datatype *rdf.NamedNode
	}{
		// arithmetic and promotion
		{"1 + 2", "3", rdf.XSDInteger},
		{"1 + 2.5", "3.5", rdf.XSDDecimal},
		{"7 / 2", "3.5", rdf.XSDDecimal},
		{"1.5 * 2.0E0", "3", rdf.XSDDouble},
		{"-(3 - 5)", "2", rdf.XSDInteger},

		// integers past the int64 range become decimals
		{"9223372036854775807 - 1", "9223372036854775806", rdf.XSDInteger},
		{"9223372036854775807 + 1", "9223372036854775808", rdf.XSDDecimal},
		{"(0 - 9223372036854775807) - 2", "-9223372036854775808", rdf.XSDDecimal},
		{"3037000499 * 3037000499", "9223372030926249001", rdf.XSDInteger},
		{"4611686018427387904 * 2", "9223372036854775808", rdf.XSDDecimal},
		{"(0 - 4611686018427387904) * 2", "-9223372036854775808", rdf.XSDInteger},
		{`-("-9223372036854775808"^^xsd:integer)`, "9223372036854775808", rdf.XSDDecimal},

		// comparison
		{"2 = 2.0", "true", rdf.XSDBoolean},
		{"1 < 2", "true", rdf.XSDBoolean},
		{`"abc" < "abd"`, "true", rdf.XSDBoolean},
		{`"x" = "x"^^xsd:string`, "true", rdf.XSDBoolean},
		{`"1"^^xsd:integer = "01"^^xsd:integer`, "true", rdf.XSDBoolean},
		{`<http://x/a> = <http://x/a>`, "true", rdf.XSDBoolean},
		{`<http://x/a> != <http://x/b>`, "true", rdf.XSDBoolean},

		// value equality is not term identity
		{"sameTerm(1, 1.0)", "false", rdf.XSDBoolean},
		{"1 = 1.0", "true", rdf.XSDBoolean},
		{`sameTerm("x", "x"^^xsd:string)`, "true", rdf.XSDBoolean},

		// logic
		{"?unbound || true", "true", rdf.XSDBoolean},
		{"?unbound && false", "false", rdf.XSDBoolean},
		{"!(1 > 2)", "true", rdf.XSDBoolean},
		{"1 IN ()", "false", rdf.XSDBoolean},
		{"1 NOT IN ()", "true", rdf.XSDBoolean},
		{"2 IN (1, 2.0, 3)", "true", rdf.XSDBoolean},
		{"2 IN (?unbound, 2)", "true", rdf.XSDBoolean},

		// strings
		{`STRLEN("héllo")`, "5", rdf.XSDInteger},
		{`SUBSTR("foobar", 4)`, "bar", nil},
		{`SUBSTR("foobar", 0, 3)`, "fo", nil},
		{`SUBSTR("foobar", 5, 10)`, "ar", nil},
		{`SUBSTR("foobar", -1, 1)`, "", nil},
		{`UCASE("straße")`, "STRASSE", nil},
		{`LCASE("ABC")`, "abc", nil},
		{`STRBEFORE("abc", "b")`, "a", nil},
		{`STRBEFORE("abc", "")`, "", nil},
		{`STRAFTER("abc", "b")`, "c", nil},
		{`STRAFTER("abc", "")`, "abc", nil},
		{`STRAFTER("abc", "z")`, "", nil},
		{`ENCODE_FOR_URI("Los Angeles")`, "Los%20Angeles", nil},
		{`ENCODE_FOR_URI("~a-b_c.d")`, "~a-b_c.d", nil},
		{`ENCODE_FOR_URI("é")`, "%C3%A9", nil},
		{`CONCAT("a", "b", "c")`, "abc", nil},
		{`CONTAINS("foobar", "oba")`, "true", rdf.XSDBoolean},
		{`STRSTARTS("foobar", "foo")`, "true", rdf.XSDBoolean},
		{`STRENDS("foobar", "foo")`, "false", rdf.XSDBoolean},
		{`REGEX("Hello", "^h", "i")`, "true", rdf.XSDBoolean},
		{`REGEX("a.b", ".", "q")`, "true", rdf.XSDBoolean},
		{`REGEX("axb", "a.b", "q")`, "false", rdf.XSDBoolean},
		{`REGEX("ab", "a b", "x")`, "true", rdf.XSDBoolean},
		{`REPLACE("abcd", "b(c)", "[$1]")`, "a[c]d", nil},
		{`STR(<http://x/a>)`, "http://x/a", nil},
		{`LANG("chat"@fr)`, "fr", nil},

		// language ranges
		{`LANGMATCHES("de-DE", "de")`, "true", rdf.XSDBoolean},
		{`LANGMATCHES("deu", "de")`, "false", rdf.XSDBoolean},
		{`LANGMATCHES("EN", "en")`, "true", rdf.XSDBoolean},
		{`LANGMATCHES("fr", "*")`, "true", rdf.XSDBoolean},
		{`LANGMATCHES("", "*")`, "false", rdf.XSDBoolean},

		// numerics
		{"ROUND(2.5)", "3", rdf.XSDDecimal},
		{"ROUND(-2.5)", "-2", rdf.XSDDecimal},
		{"ROUND(-2.6)", "-3", rdf.XSDDecimal},
		{"ROUND(0.49999999999999994)", "0", rdf.XSDDecimal},
		{"ROUND(9007199254740993)", "9007199254740993", rdf.XSDInteger},
		{"ABS(-9007199254740993)", "9007199254740993", rdf.XSDInteger},
		{`ABS("-9223372036854775808"^^xsd:integer)`, "9223372036854775808", rdf.XSDDecimal},
		{"ABS(-3)", "3", rdf.XSDInteger},
		{"CEIL(1.2)", "2", rdf.XSDDecimal},
		{"FLOOR(-1.2)", "-2", rdf.XSDDecimal},

		// hashes
		{`MD5("abc")`, "900150983cd24fb0d6963f7d28e17f72", nil},
		{`SHA1("abc")`, "a9993e364706816aba3e25717850c26c9cd0d89d", nil},
		{`SHA256("abc")`, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", nil},

		// dates
		{`YEAR("2024-03-05T10:20:30Z"^^xsd:dateTime)`, "2024", rdf.XSDInteger},
		{`MONTH("2024-03-05T10:20:30Z"^^xsd:dateTime)`, "3", rdf.XSDInteger},
		{`DAY("2024-03-05T10:20:30Z"^^xsd:dateTime)`, "5", rdf.XSDInteger},
		{`HOURS("2024-03-05T10:20:30Z"^^xsd:dateTime)`, "10", rdf.XSDInteger},
		{`MINUTES("2024-03-05T10:20:30Z"^^xsd:dateTime)`, "20", rdf.XSDInteger},
		{`SECONDS("2024-03-05T10:20:30.5Z"^^xsd:dateTime)`, "30.5", rdf.XSDDecimal},
		{`TZ("2024-03-05T10:20:30Z"^^xsd:dateTime)`, "Z", nil},
		{`TZ("2024-03-05T10:20:30-05:00"^^xsd:dateTime)`, "-05:00", nil},
		{`TZ("2024-03-05T10:20:30"^^xsd:dateTime)`, "", nil},
		{`"2024-01-01T00:00:01Z"^^xsd:dateTime - "2024-01-01T00:00:00Z"^^xsd:dateTime`, "1000", rdf.XSDInteger},
		{`("2024-01-01T00:00:02Z"^^xsd:dateTime - "2024-01-01T00:00:00Z"^^xsd:dateTime) / 1000`, "2", rdf.XSDDecimal},
		{`"2024-01-02"^^xsd:date > "2024-01-01"^^xsd:date`, "true", rdf.XSDBoolean},

		// conditionals
		{"COALESCE(?unbound, 2)", "2", rdf.XSDInteger},
		{"IF(true, 1, 1/0)", "1", rdf.XSDInteger},
		{"IF(1 > 2, 1, 0)", "0", rdf.XSDInteger},
		{`CASE WHEN 5 > 1 THEN "big" ELSE "small" END`, "big", nil},
		{`CASE WHEN 0 > 1 THEN "big" WHEN 0 = 0 THEN "zero" END`, "zero", nil},
		{"BOUND(?unbound)", "false", rdf.XSDBoolean},

		// casts
		{`xsd:integer("42")`, "42", rdf.XSDInteger},
		{`xsd:integer(3.7)`, "3", rdf.XSDInteger},
		{`xsd:boolean("true")`, "true", rdf.XSDBoolean},
		{`xsd:boolean(0)`, "false", rdf.XSDBoolean},
		{`xsd:double(1)`, "1", rdf.XSDDouble},
		{`xsd:string(<http://x/a>)`, "http://x/a", rdf.XSDString},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			lit := mustEval(t, tt.expr)
			assert.Equal(t, tt.value, lit.Value)
			if tt.datatype == nil {
				assert.True(t, lit.IsSimple(), "expected a simple literal, got %s", lit)
			} else {
				assert.Equal(t, tt.datatype.IRI, lit.EffectiveDatatype().IRI)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	exprs := []string{
		"?unbound",
		"?unbound && true",
		"1 / 0",
		`1 + "a"`,
		`1 < <http://x/a>`,
		`STRLEN(<http://x/a>)`,
		"COALESCE(?unbound)",
		`CASE WHEN 0 > 1 THEN "big" END`,
		`REPLACE("abc", "x*", "y")`,
		`REGEX("abc", "(")`,
		`xsd:integer("abc")`,
		`TIMEZONE("2024-03-05T10:20:30"^^xsd:dateTime)`,
		`STRBEFORE("abc"@en, "b"@fr)`,
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := eval(t, expr, store.NewBinding())
			require.Error(t, err)
			var evalErr *EvalError
			assert.ErrorAs(t, err, &evalErr)
		})
	}
}

func TestEvaluate_LanguageTagsPropagate(t *testing.T) {
	lit := mustEval(t, `UCASE("abc"@en)`)
	assert.Equal(t, "ABC", lit.Value)
	assert.Equal(t, "en", lit.Language)

	lit = mustEval(t, `CONCAT("a"@en, "b"@en)`)
	assert.Equal(t, "en", lit.Language)

	lit = mustEval(t, `CONCAT("a"@en, "b")`)
	assert.Empty(t, lit.Language)

	lit = mustEval(t, `STRBEFORE("abc"@en, "z")`)
	assert.Empty(t, lit.Language, "no match yields a plain empty string")

	lit = mustEval(t, `STRBEFORE("abc"@en, "")`)
	assert.Equal(t, "en", lit.Language)
}

func TestEvaluate_VariablesFromBinding(t *testing.T) {
	b := store.NewBinding()
	b.Set("x", rdf.NewIntegerLiteral(5))
	b.Set("name", rdf.NewLiteralWithLanguage("Alice", "en"))

	term, err := eval(t, "?x * 2", b)
	require.NoError(t, err)
	assert.Equal(t, "10", term.(*rdf.Literal).Value)

	term, err = eval(t, "BOUND(?x) && LANGMATCHES(LANG(?name), \"en\")", b)
	require.NoError(t, err)
	assert.Equal(t, "true", term.(*rdf.Literal).Value)
}

func TestEvaluate_Now(t *testing.T) {
	lit := mustEval(t, "NOW()")
	assert.Equal(t, rdf.NewDateTimeLiteral(fixedNow).Value, lit.Value)
	assert.Equal(t, rdf.XSDDateTime.IRI, lit.Datatype.IRI)
}

func TestEvaluate_Rand(t *testing.T) {
	term, err := eval(t, "RAND()", store.NewBinding(), WithRandom(func() float64 { return 0.25 }))
	require.NoError(t, err)
	assert.Equal(t, "0.25", term.(*rdf.Literal).Value)

	lit := mustEval(t, "RAND()")
	n, ok := numericOf(lit, false)
	require.True(t, ok)
	assert.GreaterOrEqual(t, n.f, 0.0)
	assert.Less(t, n.f, 1.0)
}

func TestEvaluate_UUIDAndBNode(t *testing.T) {
	term, err := eval(t, "UUID()", store.NewBinding())
	require.NoError(t, err)
	iri, ok := term.(*rdf.NamedNode)
	require.True(t, ok)
	assert.Regexp(t, `^urn:uuid:[0-9a-f-]{36}$`, iri.IRI)

	term, err = eval(t, "STRUUID()", store.NewBinding())
	require.NoError(t, err)
	assert.Len(t, term.(*rdf.Literal).Value, 36)

	n := 0
	term, err = eval(t, "BNODE()", store.NewBinding(), WithBlankNodes(func() *rdf.BlankNode {
		n++
		return rdf.NewBlankNode("gen")
	}))
	require.NoError(t, err)
	assert.Equal(t, "gen", term.(*rdf.BlankNode).ID)
	assert.Equal(t, 1, n)
}

func TestEvaluate_Exists(t *testing.T) {
	var seen *store.Binding
	exists := WithExists(func(pattern *parser.GroupPattern, binding *store.Binding) (bool, error) {
		seen = binding
		return true, nil
	})

	b := store.NewBinding()
	b.Set("s", rdf.NewNamedNode("http://x/a"))

	term, err := eval(t, "EXISTS { ?s ?p ?o }", b, exists)
	require.NoError(t, err)
	assert.Equal(t, "true", term.(*rdf.Literal).Value)
	assert.Same(t, b, seen, "the current solution is handed to the pattern")

	term, err = eval(t, "NOT EXISTS { ?s ?p ?o }", b, exists)
	require.NoError(t, err)
	assert.Equal(t, "false", term.(*rdf.Literal).Value)

	_, err = eval(t, "EXISTS { ?s ?p ?o }", b)
	assert.Error(t, err, "no callback installed")
}

func TestTest_ErrorIsFalse(t *testing.T) {
	e := NewEvaluator()
	assert.False(t, e.Test(parseExpr(t, "?unbound > 1"), store.NewBinding()))
	assert.False(t, e.Test(parseExpr(t, `<http://x/a>`), store.NewBinding()))
	assert.True(t, e.Test(parseExpr(t, `"non-empty"`), store.NewBinding()))
	assert.False(t, e.Test(parseExpr(t, `0.0`), store.NewBinding()))
}

func TestEffectiveBooleanValue(t *testing.T) {
	tests := []struct {
		term    rdf.Term
		want    bool
		wantErr bool
	}{
		{rdf.NewBooleanLiteral(true), true, false},
		{rdf.NewLiteral(""), false, false},
		{rdf.NewLiteral("x"), true, false},
		{rdf.NewIntegerLiteral(0), false, false},
		{rdf.NewDoubleLiteral(2), true, false},
		{rdf.NewLiteralWithDatatype("abc", rdf.XSDInteger), false, false},
		{rdf.NewNamedNode("http://x/a"), false, true},
		{rdf.NewLiteralWithDatatype("2024-01-01", rdf.XSDDate), false, true},
	}
	for _, tt := range tests {
		got, err := EffectiveBooleanValue(tt.term)
		if tt.wantErr {
			assert.Error(t, err, tt.term.String())
			continue
		}
		require.NoError(t, err, tt.term.String())
		assert.Equal(t, tt.want, got, tt.term.String())
	}
}

func TestOrderCompare(t *testing.T) {
	terms := []rdf.Term{
		rdf.NewIntegerLiteral(10),
		rdf.NewNamedNode("http://x/a"),
		nil,
		rdf.NewDecimalLiteral(2.5),
		rdf.NewBlankNode("b1"),
	}
	for i := range terms {
		for j := range terms {
			a, b := terms[i], terms[j]
			assert.Equal(t, -OrderCompare(b, a), OrderCompare(a, b), "antisymmetric for %d,%d", i, j)
		}
	}
	assert.Negative(t, OrderCompare(nil, rdf.NewBlankNode("b")))
	assert.Negative(t, OrderCompare(rdf.NewBlankNode("b"), rdf.NewNamedNode("http://x")))
	assert.Negative(t, OrderCompare(rdf.NewNamedNode("http://x"), rdf.NewLiteral("a")))
	assert.Negative(t, OrderCompare(rdf.NewDecimalLiteral(2.5), rdf.NewIntegerLiteral(10)))
}
