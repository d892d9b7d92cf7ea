package executor

import (
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/algebra"
	"github.com/exocortex/exoql/pkg/sparql/evaluator"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// iterator builds the pipeline for op inside the active graph. seed holds
// the bindings already fixed by an outer solution; pattern leaves substitute
// them so each lookup is index driven. FILTER and BIND inputs only see the
// variables of their own group unless an EXISTS pattern is being evaluated
// (see scopeSeed). Operators that open a new variable scope (sub-SELECT
// modifiers, the right side of MINUS) start from an empty seed, so every
// consumer merges its results back with Compatible/Merge.
func (r *run) iterator(op algebra.Op, graph string, seed *store.Binding) store.BindingIterator {
	switch o := op.(type) {
	case *algebra.BGP:
		return &bgpIterator{run: r, graph: graph, patterns: o.Patterns, seed: seed}
	case *algebra.PathPattern:
		return &lazyIterator{fill: func() []*store.Binding { return r.evalPath(o, graph, seed) }}
	case *algebra.Join:
		return &joinIterator{run: r, graph: graph, left: r.iterator(o.Left, graph, seed), right: o.Right}
	case *algebra.LeftJoin:
		return &leftJoinIterator{
			joinIterator: joinIterator{run: r, graph: graph, left: r.iterator(o.Left, graph, seed), right: o.Right},
			filters:      o.Filters,
			ev:           r.evaluator(graph),
		}
	case *algebra.Filter:
		return &filterIterator{input: r.iterator(o.Input, graph, r.scopeSeed(seed)), filters: o.Expressions, ev: r.evaluator(graph)}
	case *algebra.Union:
		return &unionIterator{
			iters: []store.BindingIterator{r.iterator(o.Left, graph, seed), r.iterator(o.Right, graph, seed)},
		}
	case *algebra.Minus:
		return &minusIterator{
			input: r.iterator(o.Left, graph, seed),
			right: &lazyIterator{fill: func() []*store.Binding { return r.collect(o.Right, graph) }},
		}
	case *algebra.Graph:
		return r.graphIterator(o, seed)
	case *algebra.Extend:
		return &extendIterator{input: r.iterator(o.Input, graph, r.scopeSeed(seed)), op: o, ev: r.evaluator(graph)}
	case *algebra.Table:
		return &lazyIterator{fill: func() []*store.Binding { return tableRows(o, seed) }}
	case *algebra.Group:
		return &lazyIterator{fill: func() []*store.Binding { return r.group(o, graph) }}
	case *algebra.Project:
		return &projectIterator{input: r.iterator(o.Input, graph, store.NewBinding()), variables: o.Variables}
	case *algebra.Distinct:
		return &distinctIterator{input: r.iterator(o.Input, graph, store.NewBinding()), seen: make(map[xxh3.Uint128]struct{})}
	case *algebra.Reduced:
		return &reducedIterator{input: r.iterator(o.Input, graph, store.NewBinding())}
	case *algebra.OrderBy:
		return &lazyIterator{fill: func() []*store.Binding { return r.orderBy(o, graph) }}
	case *algebra.Slice:
		return &sliceIterator{input: r.iterator(o.Input, graph, store.NewBinding()), offset: o.Offset, limit: o.Limit}
	default:
		return &lazyIterator{fill: func() []*store.Binding { return nil }}
	}
}

// collect drains op in a fresh scope.
func (r *run) collect(op algebra.Op, graph string) []*store.Binding {
	iter := r.iterator(op, graph, store.NewBinding())
	defer iter.Close()
	var out []*store.Binding
	for iter.Next() {
		out = append(out, iter.Binding())
	}
	return out
}

// lazyIterator materializes its solutions on the first call to Next.
type lazyIterator struct {
	fill     func() []*store.Binding
	bindings []*store.Binding
	filled   bool
	pos      int
}

func (it *lazyIterator) Next() bool {
	if !it.filled {
		it.bindings = it.fill()
		it.filled = true
	}
	if it.pos >= len(it.bindings) {
		return false
	}
	it.pos++
	return true
}

func (it *lazyIterator) Binding() *store.Binding {
	return it.bindings[it.pos-1]
}

func (it *lazyIterator) Close() error {
	it.bindings = nil
	return nil
}

// bgpIterator joins triple patterns left to right with nested loops. Each
// frame holds the store matches for one pattern under the bindings of the
// frames before it.
type bgpIterator struct {
	run      *run
	graph    string
	patterns []*parser.TriplePattern
	seed     *store.Binding

	stack   []bgpFrame
	current *store.Binding
	started bool
}

type bgpFrame struct {
	binding *store.Binding
	triples []*rdf.Triple
	pos     int
}

func (it *bgpIterator) Next() bool {
	if !it.started {
		it.started = true
		if len(it.patterns) == 0 {
			it.current = it.seed
			return true
		}
		it.push(it.seed)
	}

	for len(it.stack) > 0 {
		if it.run.canceled() {
			it.stack = nil
			return false
		}
		depth := len(it.stack) - 1
		top := &it.stack[depth]
		if top.pos >= len(top.triples) {
			it.stack = it.stack[:depth]
			continue
		}
		t := top.triples[top.pos]
		top.pos++

		b, ok := bindTriple(it.patterns[depth], t, top.binding)
		if !ok {
			continue
		}
		if depth == len(it.patterns)-1 {
			it.current = b
			return true
		}
		it.push(b)
	}
	return false
}

func (it *bgpIterator) push(b *store.Binding) {
	pattern := it.patterns[len(it.stack)]
	triples := it.run.match(it.graph,
		resolve(pattern.Subject, b),
		resolve(pattern.Predicate, b),
		resolve(pattern.Object, b))
	it.stack = append(it.stack, bgpFrame{binding: b, triples: triples})
}

func (it *bgpIterator) Binding() *store.Binding {
	return it.current
}

func (it *bgpIterator) Close() error {
	it.stack = nil
	return nil
}

// resolve substitutes a bound variable. An unbound variable yields an untyped
// nil, which the store treats as a wildcard.
func resolve(tov parser.TermOrVariable, b *store.Binding) rdf.Term {
	if tov.Variable != nil {
		if t := b.Get(tov.Variable.Name); t != nil {
			return t
		}
		return nil
	}
	return tov.Term
}

// bindTriple extends b with the variables of pattern matched against t. A
// variable repeated inside one pattern must match the same term.
func bindTriple(pattern *parser.TriplePattern, t *rdf.Triple, b *store.Binding) (*store.Binding, bool) {
	out := b.Clone()
	terms := [3]rdf.Term{t.Subject, t.Predicate, t.Object}
	for i, tov := range [3]parser.TermOrVariable{pattern.Subject, pattern.Predicate, pattern.Object} {
		if !bindTerm(out, tov, terms[i]) {
			return nil, false
		}
	}
	return out, true
}

func bindTerm(b *store.Binding, tov parser.TermOrVariable, term rdf.Term) bool {
	if tov.Variable == nil {
		return tov.Term == nil || tov.Term.Key() == term.Key()
	}
	if existing := b.Get(tov.Variable.Name); existing != nil {
		return existing.Key() == term.Key()
	}
	b.Set(tov.Variable.Name, term)
	return true
}

// joinIterator runs the right operand once per left solution, seeded with it.
type joinIterator struct {
	run   *run
	graph string
	left  store.BindingIterator
	right algebra.Op

	currentLeft  *store.Binding
	rightIter    store.BindingIterator
	currentMatch *store.Binding
}

func (it *joinIterator) Next() bool {
	for {
		if it.rightIter == nil {
			if !it.left.Next() {
				return false
			}
			it.currentLeft = it.left.Binding()
			it.rightIter = it.run.iterator(it.right, it.graph, it.currentLeft)
		}
		if merged, ok := it.nextMatch(); ok {
			it.currentMatch = merged
			return true
		}
		it.closeRight()
	}
}

// nextMatch advances the right side to the next solution compatible with
// the current left one.
func (it *joinIterator) nextMatch() (*store.Binding, bool) {
	for it.rightIter.Next() {
		right := it.rightIter.Binding()
		if it.currentLeft.Compatible(right) {
			return it.currentLeft.Merge(right), true
		}
	}
	return nil, false
}

func (it *joinIterator) closeRight() {
	if it.rightIter != nil {
		_ = it.rightIter.Close()
		it.rightIter = nil
	}
}

func (it *joinIterator) Binding() *store.Binding {
	return it.currentMatch
}

func (it *joinIterator) Close() error {
	it.closeRight()
	return it.left.Close()
}

// leftJoinIterator keeps each left solution that found no right partner
// passing the filters.
type leftJoinIterator struct {
	joinIterator
	filters []parser.Expression
	ev      *evaluator.Evaluator
	matched bool
}

func (it *leftJoinIterator) Next() bool {
	for {
		if it.rightIter == nil {
			if !it.left.Next() {
				return false
			}
			it.currentLeft = it.left.Binding()
			it.rightIter = it.run.iterator(it.right, it.graph, it.currentLeft)
			it.matched = false
		}
		for {
			merged, ok := it.nextMatch()
			if !ok {
				break
			}
			if testAll(it.ev, it.filters, merged) {
				it.matched = true
				it.currentMatch = merged
				return true
			}
		}
		it.closeRight()
		if !it.matched {
			it.currentMatch = it.currentLeft
			return true
		}
	}
}

func testAll(ev *evaluator.Evaluator, exprs []parser.Expression, b *store.Binding) bool {
	for _, expr := range exprs {
		if !ev.Test(expr, b) {
			return false
		}
	}
	return true
}

// filterIterator drops solutions for which an expression is false or errors.
type filterIterator struct {
	input   store.BindingIterator
	filters []parser.Expression
	ev      *evaluator.Evaluator
}

func (it *filterIterator) Next() bool {
	for it.input.Next() {
		if testAll(it.ev, it.filters, it.input.Binding()) {
			return true
		}
	}
	return false
}

func (it *filterIterator) Binding() *store.Binding {
	return it.input.Binding()
}

func (it *filterIterator) Close() error {
	return it.input.Close()
}

// unionIterator concatenates its inputs, keeping duplicates.
type unionIterator struct {
	iters []store.BindingIterator
	pos   int
}

func (it *unionIterator) Next() bool {
	for it.pos < len(it.iters) {
		if it.iters[it.pos].Next() {
			return true
		}
		it.pos++
	}
	return false
}

func (it *unionIterator) Binding() *store.Binding {
	return it.iters[it.pos].Binding()
}

func (it *unionIterator) Close() error {
	var firstErr error
	for _, iter := range it.iters {
		if err := iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// minusIterator removes left solutions that are compatible with a right
// solution sharing at least one variable.
type minusIterator struct {
	input store.BindingIterator
	right *lazyIterator
}

func (it *minusIterator) Next() bool {
	if !it.right.filled {
		it.right.bindings = it.right.fill()
		it.right.filled = true
	}
	for it.input.Next() {
		if !it.excluded(it.input.Binding()) {
			return true
		}
	}
	return false
}

func (it *minusIterator) excluded(left *store.Binding) bool {
	for _, right := range it.right.bindings {
		if left.SharesVariable(right) && left.Compatible(right) {
			return true
		}
	}
	return false
}

func (it *minusIterator) Binding() *store.Binding {
	return it.input.Binding()
}

func (it *minusIterator) Close() error {
	_ = it.right.Close()
	return it.input.Close()
}

// graphIterator runs its input once per candidate graph, binding the graph
// variable when there is one.
type graphIterator struct {
	run      *run
	input    algebra.Op
	variable string
	names    []string
	seed     *store.Binding

	pos     int
	iter    store.BindingIterator
	current *store.Binding
}

func (r *run) graphIterator(o *algebra.Graph, seed *store.Binding) store.BindingIterator {
	it := &graphIterator{run: r, input: o.Input, seed: seed}
	switch {
	case o.Name.Variable == nil:
		if iri, ok := o.Name.Term.(*rdf.NamedNode); ok {
			it.names = []string{iri.IRI}
		}
	default:
		it.variable = o.Name.Variable.Name
		switch bound := seed.Get(it.variable).(type) {
		case nil:
			it.names = r.store.NamedGraphs()
		case *rdf.NamedNode:
			if r.store.HasGraph(bound.IRI) {
				it.names = []string{bound.IRI}
			}
		}
	}
	return it
}

func (it *graphIterator) Next() bool {
	for {
		if it.iter == nil {
			if it.pos >= len(it.names) {
				return false
			}
			it.iter = it.run.iterator(it.input, it.names[it.pos], it.seed)
		}
		for it.iter.Next() {
			b := it.iter.Binding()
			if it.variable == "" {
				it.current = b
				return true
			}
			name := rdf.NewNamedNode(it.names[it.pos])
			if existing := b.Get(it.variable); existing != nil {
				if existing.Key() != name.Key() {
					continue
				}
				it.current = b
				return true
			}
			it.current = b.Clone()
			it.current.Set(it.variable, name)
			return true
		}
		_ = it.iter.Close()
		it.iter = nil
		it.pos++
	}
}

func (it *graphIterator) Binding() *store.Binding {
	return it.current
}

func (it *graphIterator) Close() error {
	if it.iter != nil {
		return it.iter.Close()
	}
	return nil
}

// extendIterator binds a variable to an expression value. An evaluation
// error leaves the variable unbound.
type extendIterator struct {
	input   store.BindingIterator
	op      *algebra.Extend
	ev      *evaluator.Evaluator
	current *store.Binding
}

func (it *extendIterator) Next() bool {
	for it.input.Next() {
		b := it.input.Binding()
		value, err := it.ev.Evaluate(it.op.Expression, b)
		if err != nil || value == nil {
			it.current = b
			return true
		}
		if existing := b.Get(it.op.Variable); existing != nil {
			if existing.Key() != value.Key() {
				continue
			}
			it.current = b
			return true
		}
		it.current = b.Clone()
		it.current.Set(it.op.Variable, value)
		return true
	}
	return false
}

func (it *extendIterator) Binding() *store.Binding {
	return it.current
}

func (it *extendIterator) Close() error {
	return it.input.Close()
}

// tableRows yields the VALUES rows compatible with seed, merged into it.
func tableRows(t *algebra.Table, seed *store.Binding) []*store.Binding {
	out := make([]*store.Binding, 0, len(t.Rows))
rows:
	for _, row := range t.Rows {
		b := seed.Clone()
		for i, term := range row {
			if term == nil || i >= len(t.Variables) {
				continue
			}
			name := t.Variables[i]
			if existing := b.Get(name); existing != nil {
				if existing.Key() != term.Key() {
					continue rows
				}
				continue
			}
			b.Set(name, term)
		}
		out = append(out, b)
	}
	return out
}

// projectIterator restricts each solution to the projected variables.
type projectIterator struct {
	input     store.BindingIterator
	variables []string
	current   *store.Binding
}

func (it *projectIterator) Next() bool {
	if !it.input.Next() {
		return false
	}
	in := it.input.Binding()
	it.current = store.NewBinding()
	for _, name := range it.variables {
		if t := in.Get(name); t != nil {
			it.current.Set(name, t)
		}
	}
	return true
}

func (it *projectIterator) Binding() *store.Binding {
	return it.current
}

func (it *projectIterator) Close() error {
	return it.input.Close()
}

// distinctIterator drops solutions already seen, by a 128-bit hash of their
// structural key.
type distinctIterator struct {
	input store.BindingIterator
	seen  map[xxh3.Uint128]struct{}
}

func (it *distinctIterator) Next() bool {
	for it.input.Next() {
		h := xxh3.HashString128(it.input.Binding().Key())
		if _, dup := it.seen[h]; dup {
			continue
		}
		it.seen[h] = struct{}{}
		return true
	}
	return false
}

func (it *distinctIterator) Binding() *store.Binding {
	return it.input.Binding()
}

func (it *distinctIterator) Close() error {
	it.seen = nil
	return it.input.Close()
}

// reducedIterator drops a solution equal to the one just before it.
type reducedIterator struct {
	input   store.BindingIterator
	last    xxh3.Uint128
	hasLast bool
}

func (it *reducedIterator) Next() bool {
	for it.input.Next() {
		h := xxh3.HashString128(it.input.Binding().Key())
		if it.hasLast && h == it.last {
			continue
		}
		it.last, it.hasLast = h, true
		return true
	}
	return false
}

func (it *reducedIterator) Binding() *store.Binding {
	return it.input.Binding()
}

func (it *reducedIterator) Close() error {
	return it.input.Close()
}

// sliceIterator implements OFFSET and LIMIT. A negative limit is unbounded.
type sliceIterator struct {
	input   store.BindingIterator
	offset  int
	limit   int
	skipped int
	count   int
}

func (it *sliceIterator) Next() bool {
	for it.skipped < it.offset {
		if !it.input.Next() {
			return false
		}
		it.skipped++
	}
	if it.limit >= 0 && it.count >= it.limit {
		return false
	}
	if !it.input.Next() {
		return false
	}
	it.count++
	return true
}

func (it *sliceIterator) Binding() *store.Binding {
	return it.input.Binding()
}

func (it *sliceIterator) Close() error {
	return it.input.Close()
}

// orderBy sorts the input solutions. Unbound values and evaluation errors
// sort first; ties keep input order.
func (r *run) orderBy(o *algebra.OrderBy, graph string) []*store.Binding {
	bindings := r.collect(o.Input, graph)
	ev := r.evaluator(graph)

	keys := make([][]rdf.Term, len(bindings))
	for i, b := range bindings {
		keys[i] = make([]rdf.Term, len(o.Conditions))
		for j, cond := range o.Conditions {
			if v, err := ev.Evaluate(cond.Expression, b); err == nil {
				keys[i][j] = v
			}
		}
	}

	idx := make([]int, len(bindings))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		for j, cond := range o.Conditions {
			c := evaluator.OrderCompare(ka[j], kb[j])
			if c == 0 {
				continue
			}
			if !cond.Ascending {
				c = -c
			}
			return c < 0
		}
		return false
	})

	out := make([]*store.Binding, len(bindings))
	for i, j := range idx {
		out[i] = bindings[j]
	}
	return out
}

// sortedNames lists the bound variables of b in name order.
func sortedNames(b *store.Binding) []string {
	names := make([]string, 0, len(b.Vars))
	for name := range b.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
