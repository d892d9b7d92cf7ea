package results

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/executor"
	"github.com/exocortex/exoql/pkg/store"
)

func sampleSelect() *executor.SelectResult {
	first := store.NewBinding()
	first.Set("s", rdf.NewNamedNode("http://example.org/a"))
	first.Set("label", rdf.NewLiteralWithLanguage("Hallo, \"Welt\"", "de"))
	first.Set("n", rdf.NewIntegerLiteral(42))

	second := store.NewBinding()
	second.Set("s", rdf.NewBlankNode("b1"))
	second.Set("n", rdf.NewLiteralWithDatatype("2024-01-01", rdf.XSDDate))

	return &executor.SelectResult{
		Variables: []string{"s", "label", "n"},
		Bindings:  []*store.Binding{first, second},
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		want   Format
	}{
		{"", FormatJSON},
		{"*/*", FormatJSON},
		{"application/sparql-results+xml", FormatXML},
		{"application/sparql-results+json", FormatJSON},
		{"text/csv", FormatCSV},
		{"text/tab-separated-values", FormatTSV},
		{"application/xml;q=0.9", FormatXML},
		{"application/json", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			assert.Equal(t, tt.want, Negotiate(tt.accept))
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" TSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatTSV, f)

	_, err = ParseFormat("yaml")
	require.Error(t, err)
}

func TestEncode_SelectJSON(t *testing.T) {
	data, contentType, err := Encode(sampleSelect(), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/sparql-results+json; charset=utf-8", contentType)

	var doc SPARQLResultsJSON
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"s", "label", "n"}, doc.Head.Vars)
	require.Len(t, doc.Results.Bindings, 2)

	first := doc.Results.Bindings[0]
	assert.Equal(t, "uri", first["s"].Type)
	require.NotNil(t, first["label"].XMLLang)
	assert.Equal(t, "de", *first["label"].XMLLang)
	require.NotNil(t, first["n"].Datatype)
	assert.Equal(t, rdf.XSDInteger.IRI, *first["n"].Datatype)

	second := doc.Results.Bindings[1]
	assert.Equal(t, "bnode", second["s"].Type)
	assert.NotContains(t, second, "label")
}

func TestEncode_SelectCSV(t *testing.T) {
	data, contentType, err := Encode(sampleSelect(), FormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "text/csv"))
	assert.Equal(t, "s,label,n\r\nhttp://example.org/a,\"Hallo, \"\"Welt\"\"\",42\r\n_:b1,,2024-01-01\r\n", string(data))
}

func TestEncode_SelectTSV(t *testing.T) {
	data, _, err := Encode(sampleSelect(), FormatTSV)
	require.NoError(t, err)
	assert.Equal(t, "?s\t?label\t?n\n"+
		"<http://example.org/a>\t\"Hallo, \\\"Welt\\\"\"@de\t42\n"+
		"_:b1\t\t\"2024-01-01\"^^<http://www.w3.org/2001/XMLSchema#date>\n", string(data))
}

func TestEncode_SelectXML(t *testing.T) {
	data, _, err := Encode(sampleSelect(), FormatXML)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, `<variable name="label"></variable>`)
	assert.Contains(t, out, `<uri>http://example.org/a</uri>`)
	assert.Contains(t, out, `xml:lang="de"`)
	assert.Contains(t, out, `<bnode>b1</bnode>`)

	var doc Results
	require.NoError(t, xml.Unmarshal(data, &doc))
	require.Len(t, doc.Results.Results, 2)
	assert.Len(t, doc.Results.Results[1].Bindings, 2)
}

func TestEncode_Ask(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatCSV, "result\r\ntrue\r\n"},
		{FormatTSV, "?result\ntrue\n"},
	}
	for _, tt := range tests {
		data, _, err := Encode(&executor.AskResult{Result: true}, tt.format)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data))
	}

	data, _, err := Encode(&executor.AskResult{Result: false}, FormatJSON)
	require.NoError(t, err)
	var doc SPARQLResultsJSON
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NotNil(t, doc.Boolean)
	assert.False(t, *doc.Boolean)
	assert.Nil(t, doc.Results)

	data, _, err = Encode(&executor.AskResult{Result: true}, FormatXML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<boolean>true</boolean>")
}

func TestEncode_GraphIsNTriples(t *testing.T) {
	result := &executor.GraphResult{Triples: []*rdf.Triple{
		rdf.NewTriple(rdf.NewNamedNode("http://e/a"), rdf.NewNamedNode("http://e/p"), rdf.NewLiteral("x")),
	}}
	data, contentType, err := Encode(result, FormatXML)
	require.NoError(t, err)
	assert.Equal(t, NTriplesContentType, contentType)
	assert.Equal(t, "<http://e/a> <http://e/p> \"x\" .\n", string(data))
}
