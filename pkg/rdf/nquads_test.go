package rdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/pkg/errors"
)

func TestParseNQuads(t *testing.T) {
	input := `<http://example.org/a> <http://example.org/p> "x" .
<http://example.org/a> <http://example.org/p> "y" <http://example.org/g1> .
# comment
ex:b ex:p ex:c ex:g2 .
`
	quads, err := ParseNQuadsString(input, map[string]string{"ex": "http://example.org/"})
	require.NoError(t, err)
	require.Len(t, quads, 3)

	assert.Equal(t, "", quads[0].Graph)
	assert.Equal(t, "http://example.org/g1", quads[1].Graph)
	assert.Equal(t, "y", quads[1].Object.(*Literal).Value)
	assert.Equal(t, "http://example.org/g2", quads[2].Graph)
	assert.Equal(t, "http://example.org/c", quads[2].Object.(*NamedNode).IRI)
}

func TestParseNQuads_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"blank graph label", `<http://e/a> <http://e/p> "x" _:g .`},
		{"literal graph label", `<http://e/a> <http://e/p> "x" "g" .`},
		{"missing dot", `<http://e/a> <http://e/p> "x" <http://e/g>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNQuadsString(tt.input, nil)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeNTriplesParseInvalidSyntax))
		})
	}
}

func TestParseNTriples_RejectsGraphLabel(t *testing.T) {
	_, err := ParseNTriplesString(`<http://e/a> <http://e/p> "x" <http://e/g> .`, nil)
	require.Error(t, err)
}

func TestSerializeNQuads(t *testing.T) {
	quads := []*Quad{
		{Triple: NewTriple(NewNamedNode("http://e/a"), NewNamedNode("http://e/p"), NewLiteral("x"))},
		{Triple: NewTriple(NewNamedNode("http://e/a"), NewNamedNode("http://e/p"), NewLiteral("y")), Graph: "http://e/g"},
	}
	var buf bytes.Buffer
	require.NoError(t, SerializeNQuads(&buf, quads))
	assert.Equal(t, `<http://e/a> <http://e/p> "x" .
<http://e/a> <http://e/p> "y" <http://e/g> .
`, buf.String())

	back, err := ParseNQuads(&buf, nil)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, "http://e/g", back[1].Graph)
}

func TestNewReader(t *testing.T) {
	r, err := NewReader("application/n-quads; charset=utf-8", nil)
	require.NoError(t, err)
	assert.Equal(t, "application/n-quads", r.ContentType())

	quads, err := r.Read(strings.NewReader(`<http://e/a> <http://e/p> <http://e/b> <http://e/g> .`))
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, "http://e/g", quads[0].Graph)

	r, err = NewReader("text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "application/n-triples", r.ContentType())
	quads, err = r.Read(strings.NewReader(`<http://e/a> <http://e/p> <http://e/b> .`))
	require.NoError(t, err)
	assert.Equal(t, "", quads[0].Graph)

	_, err = NewReader("text/turtle", nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Contains(t, SupportedContentTypes(), "application/n-quads")
}
