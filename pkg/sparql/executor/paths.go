package executor

import (
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/algebra"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// evalPath returns the solutions of a property path pattern under seed.
// With a bound end the walk starts there; with both ends free every node
// of the graph is a start.
func (r *run) evalPath(o *algebra.PathPattern, graph string, seed *store.Binding) []*store.Binding {
	subject, object := resolve(o.Subject, seed), resolve(o.Object, seed)

	var out []*store.Binding
	emit := func(s, obj rdf.Term) {
		b := seed.Clone()
		if bindTerm(b, o.Subject, s) && bindTerm(b, o.Object, obj) {
			out = append(out, b)
		}
	}

	switch {
	case subject != nil:
		for _, end := range r.walk(o.Path, graph, subject, false) {
			if object == nil || end.Key() == object.Key() {
				emit(subject, end)
			}
		}
	case object != nil:
		for _, start := range r.walk(o.Path, graph, object, true) {
			emit(start, object)
		}
	default:
		for _, start := range r.nodes(graph) {
			if r.canceled() {
				return nil
			}
			for _, end := range r.walk(o.Path, graph, start, false) {
				emit(start, end)
			}
		}
	}
	return out
}

// nodes lists every subject and object of the graph once.
func (r *run) nodes(graph string) []rdf.Term {
	source := r.store.Graph(graph)
	if source == nil {
		return nil
	}
	set := newTermSet()
	set.addAll(source.Subjects())
	set.addAll(source.Objects())
	return set.terms
}

// walk returns the nodes reachable from start along path, without
// duplicates. inverse walks every step backwards.
func (r *run) walk(path parser.Path, graph string, start rdf.Term, inverse bool) []rdf.Term {
	switch p := path.(type) {
	case *parser.LinkPath:
		var ends []rdf.Term
		if inverse {
			for _, t := range r.match(graph, nil, p.IRI, start) {
				ends = append(ends, t.Subject)
			}
		} else {
			for _, t := range r.match(graph, start, p.IRI, nil) {
				ends = append(ends, t.Object)
			}
		}
		set := newTermSet()
		set.addAll(ends)
		return set.terms
	case *parser.InversePath:
		return r.walk(p.Path, graph, start, !inverse)
	case *parser.SequencePath:
		first, second := p.Left, p.Right
		if inverse {
			first, second = second, first
		}
		set := newTermSet()
		for _, mid := range r.walk(first, graph, start, inverse) {
			set.addAll(r.walk(second, graph, mid, inverse))
		}
		return set.terms
	case *parser.AlternativePath:
		set := newTermSet()
		set.addAll(r.walk(p.Left, graph, start, inverse))
		set.addAll(r.walk(p.Right, graph, start, inverse))
		return set.terms
	case *parser.ZeroOrOnePath:
		set := newTermSet()
		set.add(start)
		set.addAll(r.walk(p.Path, graph, start, inverse))
		return set.terms
	case *parser.ZeroOrMorePath:
		return r.closure(p.Path, graph, start, inverse, true)
	case *parser.OneOrMorePath:
		return r.closure(p.Path, graph, start, inverse, false)
	default:
		return nil
	}
}

// closure is a breadth-first transitive walk. Cycles terminate because each
// node is expanded once.
func (r *run) closure(path parser.Path, graph string, start rdf.Term, inverse, reflexive bool) []rdf.Term {
	result := newTermSet()
	if reflexive {
		result.add(start)
	}
	expanded := map[string]struct{}{start.Key(): {}}
	frontier := []rdf.Term{start}
	for len(frontier) > 0 && !r.canceled() {
		var next []rdf.Term
		for _, node := range frontier {
			for _, end := range r.walk(path, graph, node, inverse) {
				result.add(end)
				if _, done := expanded[end.Key()]; !done {
					expanded[end.Key()] = struct{}{}
					next = append(next, end)
				}
			}
		}
		frontier = next
	}
	return result.terms
}

type termSet struct {
	seen  map[string]struct{}
	terms []rdf.Term
}

func newTermSet() *termSet {
	return &termSet{seen: make(map[string]struct{})}
}

func (s *termSet) add(t rdf.Term) {
	if _, dup := s.seen[t.Key()]; dup {
		return
	}
	s.seen[t.Key()] = struct{}{}
	s.terms = append(s.terms, t)
}

func (s *termSet) addAll(ts []rdf.Term) {
	for _, t := range ts {
		s.add(t)
	}
}
