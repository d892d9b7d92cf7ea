package rdf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Quad is a triple placed in a graph. Graph is "" for the default graph.
type Quad struct {
	*Triple
	Graph string
}

// ParseNQuads reads N-Triples statements that may carry a fourth graph IRI.
// Statements without one land in the default graph.
func ParseNQuads(r io.Reader, prefixes map[string]string) ([]*Quad, error) {
	var quads []*Quad
	err := scanStatements(r, prefixes, true, func(t *Triple, graph string) {
		quads = append(quads, &Quad{Triple: t, Graph: graph})
	})
	if err != nil {
		return nil, err
	}
	return quads, nil
}

func ParseNQuadsString(input string, prefixes map[string]string) ([]*Quad, error) {
	return ParseNQuads(strings.NewReader(input), prefixes)
}

// SerializeNQuads writes quads one per line, omitting the label for the
// default graph.
func SerializeNQuads(w io.Writer, quads []*Quad) error {
	bw := bufio.NewWriter(w)
	for _, q := range quads {
		line := FormatNTriplesTerm(q.Subject) + " " + FormatNTriplesTerm(q.Predicate) + " " +
			FormatNTriplesTerm(q.Object)
		if q.Graph != "" {
			line += " <" + q.Graph + ">"
		}
		if _, err := fmt.Fprintln(bw, line+" ."); err != nil {
			return err
		}
	}
	return bw.Flush()
}
