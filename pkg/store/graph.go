package store

import (
	"sort"

	"github.com/exocortex/exoql/pkg/rdf"
)

// DefaultGraph is the reserved graph name addressing the store itself.
const DefaultGraph = ""

// graph returns the store holding the named graph, creating it when create
// is set. The default graph is the receiver.
func (s *TripleStore) graph(name string, create bool) *TripleStore {
	if name == DefaultGraph {
		return s
	}
	g, ok := s.graphs[name]
	if !ok && create {
		g = s.newSubStore()
		s.graphs[name] = g
		s.logger.WithField("graph", name).Debug("store: created named graph")
	}
	return g
}

// Graph returns the store backing a graph, or nil when the named graph does
// not exist. The returned store must not be mutated directly.
func (s *TripleStore) Graph(name string) *TripleStore {
	return s.graph(name, false)
}

// AddToGraph adds a triple to the named graph, creating the graph on first write.
func (s *TripleStore) AddToGraph(name string, t *rdf.Triple) error {
	if err := rdf.ValidateTriple(t); err != nil {
		return err
	}
	return s.graph(name, true).Add(t)
}

// RemoveFromGraph removes a triple from the named graph.
func (s *TripleStore) RemoveFromGraph(name string, t *rdf.Triple) bool {
	g := s.graph(name, false)
	if g == nil {
		return false
	}
	return g.Remove(t)
}

// MatchInGraph matches a pattern inside one graph. A missing graph matches nothing.
func (s *TripleStore) MatchInGraph(name string, subject, predicate, object rdf.Term) []*rdf.Triple {
	g := s.graph(name, false)
	if g == nil {
		return nil
	}
	return g.Match(subject, predicate, object)
}

// ClearGraph empties the default graph, or deletes a named graph entirely.
func (s *TripleStore) ClearGraph(name string) {
	if name == DefaultGraph {
		s.Clear()
		return
	}
	delete(s.graphs, name)
}

// CountInGraph returns the number of triples in a graph.
func (s *TripleStore) CountInGraph(name string) int {
	g := s.graph(name, false)
	if g == nil {
		return 0
	}
	return g.Count()
}

// NamedGraphs lists the non-empty named graphs in name order. The default
// graph is never included.
func (s *TripleStore) NamedGraphs() []string {
	names := make([]string, 0, len(s.graphs))
	for name, g := range s.graphs {
		if g.Count() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasGraph reports whether a named graph exists and holds at least one triple.
func (s *TripleStore) HasGraph(name string) bool {
	if name == DefaultGraph {
		return false
	}
	g := s.graph(name, false)
	return g != nil && g.Count() > 0
}

// AddQuads loads quads into their graphs as one transaction. An invalid quad
// leaves the store untouched.
func (s *TripleStore) AddQuads(quads []*rdf.Quad) error {
	tx := s.Begin()
	for _, q := range quads {
		if err := tx.AddToGraph(q.Graph, q.Triple); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
