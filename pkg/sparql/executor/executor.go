package executor

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/algebra"
	"github.com/exocortex/exoql/pkg/sparql/evaluator"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// Executor executes SPARQL queries using the Volcano iterator model
type Executor struct {
	store    *store.TripleStore
	logger   *logrus.Logger
	optimize bool
	clock    func() time.Time
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger for query diagnostics.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithOptimize toggles selectivity-based reordering of basic graph patterns.
func WithOptimize(optimize bool) Option {
	return func(e *Executor) {
		e.optimize = optimize
	}
}

// WithClock sets the source of NOW(). It is read once per query.
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// NewExecutor creates a new query executor
func NewExecutor(s *store.TripleStore, opts ...Option) *Executor {
	e := &Executor{
		store:    s,
		logger:   discardLogger(),
		optimize: true,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Result is the outcome of a query; its concrete type depends on the form.
type Result interface {
	resultType()
}

// SelectResult holds the solutions of a SELECT query. Variables lists the
// projected names in order; a variable missing from a binding is unbound.
type SelectResult struct {
	Variables []string
	Bindings  []*store.Binding
}

func (r *SelectResult) resultType() {}

// AskResult represents the result of an ASK query
type AskResult struct {
	Result bool
}

func (r *AskResult) resultType() {}

// GraphResult holds the triples built by CONSTRUCT or DESCRIBE, without
// duplicates.
type GraphResult struct {
	Triples []*rdf.Triple
}

func (r *GraphResult) resultType() {}

// Execute runs a parsed query. Canceling ctx stops the iterator pipeline at
// the next solution and returns a sparql.execute.canceled error.
func (e *Executor) Execute(ctx context.Context, query *parser.Query) (Result, error) {
	opts := algebra.Options{Optimize: e.optimize}
	var op algebra.Op
	if query.Type != parser.QueryTypeDescribe || query.Where != nil {
		var err error
		if op, err = algebra.Translate(query, opts); err != nil {
			return nil, err
		}
	}

	r := newRun(ctx, e.store, opts, e.clock())
	var (
		result Result
		size   int
		err    error
	)
	switch query.Type {
	case parser.QueryTypeSelect:
		var res *SelectResult
		res, err = r.selectQuery(query, op)
		if res != nil {
			result, size = res, len(res.Bindings)
		}
	case parser.QueryTypeAsk:
		var res *AskResult
		res, err = r.askQuery(op)
		if res != nil {
			result, size = res, 1
		}
	case parser.QueryTypeConstruct:
		var res *GraphResult
		res, err = r.constructQuery(query, op)
		if res != nil {
			result, size = res, len(res.Triples)
		}
	case parser.QueryTypeDescribe:
		var res *GraphResult
		res, err = r.describeQuery(query, op)
		if res != nil {
			result, size = res, len(res.Triples)
		}
	default:
		return nil, errors.Errorf(errors.CodeSPARQLExecuteFailure, "unsupported query type %s", query.Type)
	}
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"form": query.Type.String(),
		"size": size,
	}).Debug("executor: query executed")
	return result, nil
}

func (r *run) selectQuery(query *parser.Query, op algebra.Op) (*SelectResult, error) {
	bindings, err := r.drain(op)
	if err != nil {
		return nil, err
	}
	return &SelectResult{
		Variables: algebra.ProjectedVariables(query),
		Bindings:  bindings,
	}, nil
}

func (r *run) askQuery(op algebra.Op) (*AskResult, error) {
	iter := r.iterator(op, store.DefaultGraph, store.NewBinding())
	defer iter.Close()
	found := iter.Next()
	if r.err != nil {
		return nil, r.err
	}
	return &AskResult{Result: found}, nil
}

// constructQuery instantiates the template once per solution. Blank nodes in
// the template are fresh for every solution; triples with an unbound
// variable or a term in an invalid position are skipped.
func (r *run) constructQuery(query *parser.Query, op algebra.Op) (*GraphResult, error) {
	iter := r.iterator(op, store.DefaultGraph, store.NewBinding())
	defer iter.Close()

	out := newTripleSet()
	for iter.Next() {
		binding := iter.Binding()
		blanks := make(map[string]*rdf.BlankNode)
		for _, pattern := range query.Template {
			if t := r.instantiate(pattern, binding, blanks); t != nil {
				out.add(t)
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &GraphResult{Triples: out.triples}, nil
}

func (r *run) instantiate(pattern *parser.TriplePattern, binding *store.Binding, blanks map[string]*rdf.BlankNode) *rdf.Triple {
	term := func(tov parser.TermOrVariable) rdf.Term {
		if tov.Variable != nil {
			return binding.Get(tov.Variable.Name)
		}
		if b, ok := tov.Term.(*rdf.BlankNode); ok {
			fresh, seen := blanks[b.ID]
			if !seen {
				fresh = r.store.NewBlankNode()
				blanks[b.ID] = fresh
			}
			return fresh
		}
		return tov.Term
	}

	subject, object := term(pattern.Subject), term(pattern.Object)
	predicate, ok := term(pattern.Predicate).(*rdf.NamedNode)
	if !ok || subject == nil || object == nil {
		return nil
	}
	t := &rdf.Triple{Subject: subject, Predicate: predicate, Object: object}
	if rdf.ValidateTriple(t) != nil {
		return nil
	}
	return t
}

// describeQuery collects every triple in which a described resource is the
// subject or the object. Resources come from the IRIs named in the query
// and from the solutions bound to the named variables; DESCRIBE * takes
// every IRI or blank node of every solution.
func (r *run) describeQuery(query *parser.Query, op algebra.Op) (*GraphResult, error) {
	var resources []rdf.Term
	seen := make(map[string]struct{})
	addResource := func(t rdf.Term) {
		if t == nil || t.Type() == rdf.TermTypeLiteral {
			return
		}
		if _, dup := seen[t.Key()]; dup {
			return
		}
		seen[t.Key()] = struct{}{}
		resources = append(resources, t)
	}

	var variables []string
	for _, target := range query.DescribeTargets {
		if target.Variable != nil {
			variables = append(variables, target.Variable.Name)
			continue
		}
		addResource(target.Term)
	}

	if op != nil {
		bindings, err := r.drain(op)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			if len(query.DescribeTargets) == 0 {
				for _, name := range sortedNames(b) {
					addResource(b.Vars[name])
				}
				continue
			}
			for _, name := range variables {
				addResource(b.Get(name))
			}
		}
	}

	out := newTripleSet()
	for _, resource := range resources {
		for _, t := range r.store.Match(resource, nil, nil) {
			out.add(t)
		}
		for _, t := range r.store.Match(nil, nil, resource) {
			out.add(t)
		}
	}
	return &GraphResult{Triples: out.triples}, nil
}

// tripleSet keeps triples in insertion order without duplicates.
type tripleSet struct {
	seen    map[xxh3.Uint128]struct{}
	triples []*rdf.Triple
}

func newTripleSet() *tripleSet {
	return &tripleSet{seen: make(map[xxh3.Uint128]struct{})}
}

func (s *tripleSet) add(t *rdf.Triple) {
	h := xxh3.HashString128(t.Key())
	if _, dup := s.seen[h]; dup {
		return
	}
	s.seen[h] = struct{}{}
	s.triples = append(s.triples, t)
}

// run is the state of one query execution.
type run struct {
	ctx        context.Context
	store      *store.TripleStore
	opts       algebra.Options
	now        time.Time
	evaluators map[string]*evaluator.Evaluator
	err        error

	// substitute is set while evaluating an EXISTS pattern, where the outer
	// solution is visible to every FILTER and BIND inside it.
	substitute bool
}

func newRun(ctx context.Context, s *store.TripleStore, opts algebra.Options, now time.Time) *run {
	return &run{
		ctx:        ctx,
		store:      s,
		opts:       opts,
		now:        now,
		evaluators: make(map[string]*evaluator.Evaluator),
	}
}

// evaluator returns the expression evaluator for an active graph. EXISTS
// patterns run against the graph the filter sits in.
func (r *run) evaluator(graph string) *evaluator.Evaluator {
	if ev, ok := r.evaluators[graph]; ok {
		return ev
	}
	ev := evaluator.NewEvaluator(
		evaluator.WithNow(r.now),
		evaluator.WithBlankNodes(r.store.NewBlankNode),
		evaluator.WithExists(func(pattern *parser.GroupPattern, binding *store.Binding) (bool, error) {
			return r.exists(graph, pattern, binding)
		}),
	)
	r.evaluators[graph] = ev
	return ev
}

func (r *run) exists(graph string, pattern *parser.GroupPattern, binding *store.Binding) (bool, error) {
	op, err := algebra.TranslatePattern(pattern, r.opts)
	if err != nil {
		return false, err
	}
	sub := *r
	sub.substitute = true
	iter := sub.iterator(op, graph, binding)
	defer iter.Close()
	found := iter.Next()
	if sub.err != nil {
		r.err = sub.err
		return false, sub.err
	}
	return found, nil
}

// scopeSeed is the seed handed to the input of a FILTER or BIND. Outside
// EXISTS a group only sees the variables it binds itself.
func (r *run) scopeSeed(seed *store.Binding) *store.Binding {
	if r.substitute {
		return seed
	}
	return store.NewBinding()
}

// canceled records a context error the first time it is seen.
func (r *run) canceled() bool {
	if r.err != nil {
		return true
	}
	if err := r.ctx.Err(); err != nil {
		r.err = errors.Wrap(err, errors.CodeSPARQLExecuteCanceled, "query canceled")
		return true
	}
	return false
}

// drain pulls every solution of op.
func (r *run) drain(op algebra.Op) ([]*store.Binding, error) {
	iter := r.iterator(op, store.DefaultGraph, store.NewBinding())
	defer iter.Close()

	var bindings []*store.Binding
	for iter.Next() {
		bindings = append(bindings, iter.Binding())
	}
	if r.err != nil {
		return nil, r.err
	}
	return bindings, nil
}

// match resolves a triple pattern against the active graph.
func (r *run) match(graph string, subject, predicate, object rdf.Term) []*rdf.Triple {
	if graph == store.DefaultGraph {
		return r.store.Match(subject, predicate, object)
	}
	return r.store.MatchInGraph(graph, subject, predicate, object)
}
