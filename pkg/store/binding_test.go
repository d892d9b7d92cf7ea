package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exocortex/exoql/pkg/rdf"
)

func TestBinding_CompatibleAndMerge(t *testing.T) {
	a := NewBinding()
	a.Set("x", iri("1"))
	a.Set("y", rdf.NewLiteral("v"))

	b := NewBinding()
	b.Set("x", iri("1"))
	b.Set("z", iri("2"))

	c := NewBinding()
	c.Set("x", iri("other"))

	assert.True(t, a.Compatible(b))
	assert.False(t, a.Compatible(c))
	assert.True(t, a.SharesVariable(c))

	merged := a.Merge(b)
	assert.Len(t, merged.Vars, 3)
	assert.Len(t, a.Vars, 2, "merge leaves the receiver untouched")
}

func TestBinding_Key(t *testing.T) {
	a := NewBinding()
	a.Set("x", rdf.NewLiteral("v"))
	a.Set("y", iri("1"))

	b := NewBinding()
	b.Set("y", iri("1"))
	b.Set("x", rdf.NewLiteralWithDatatype("v", rdf.XSDString))

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Key("x"), b.Key("x"))
	assert.NotEqual(t, a.Key("x", "z"), a.Key("x"))
	assert.Nil(t, (*Binding)(nil).Get("x"))
}
