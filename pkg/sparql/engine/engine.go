// Package engine ties the parser, complexity analyzer and executor together
// behind a single text-in, result-out entry point.
package engine

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/complexity"
	"github.com/exocortex/exoql/pkg/sparql/executor"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// Engine answers SPARQL queries over one store. It adds no locking; callers
// serialize writers against it.
type Engine struct {
	store      *store.TripleStore
	logger     *logrus.Logger
	thresholds complexity.Thresholds
	admission  bool
	optimize   bool
	clock      func() time.Time

	analyzer *complexity.Analyzer
	executor *executor.Executor
}

// Option configures an Engine
type Option func(*Engine)

func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithThresholds sets the limits admission control enforces.
func WithThresholds(th complexity.Thresholds) Option {
	return func(e *Engine) {
		e.thresholds = th
	}
}

// WithAdmission turns the pre-flight complexity check on or off.
func WithAdmission(enabled bool) Option {
	return func(e *Engine) {
		e.admission = enabled
	}
}

func WithOptimize(enabled bool) Option {
	return func(e *Engine) {
		e.optimize = enabled
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New creates an engine over s. Admission control is on by default.
func New(s *store.TripleStore, opts ...Option) *Engine {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	e := &Engine{
		store:      s,
		logger:     discard,
		thresholds: complexity.DefaultThresholds(),
		admission:  true,
		optimize:   true,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.analyzer = complexity.NewAnalyzer(e.thresholds)
	e.executor = executor.NewExecutor(s,
		executor.WithLogger(e.logger),
		executor.WithOptimize(e.optimize),
		executor.WithClock(e.clock))
	return e
}

// Store returns the store queries run against.
func (e *Engine) Store() *store.TripleStore {
	return e.store
}

// Analyze runs the complexity analyzer without executing anything.
func (e *Engine) Analyze(text string) *complexity.Report {
	return e.analyzer.Analyze(text)
}

// Response is the outcome of one query.
type Response struct {
	ID     uuid.UUID
	Query  *parser.Query
	Result executor.Result
	// Report is nil when admission control is off.
	Report  *complexity.Report
	Elapsed time.Duration
}

// Query parses, admits and executes text. When admission control denies
// the query the returned Response still carries the report, together with a
// sparql.admission.denied error.
func (e *Engine) Query(ctx context.Context, text string) (*Response, error) {
	resp := &Response{ID: uuid.New()}
	log := e.logger.WithField("query_id", resp.ID.String())

	if e.admission {
		resp.Report = e.analyzer.Analyze(text)
		if !resp.Report.Allowed {
			log.WithFields(logrus.Fields{
				"risk":       resp.Report.Risk,
				"violations": len(resp.Report.Violations),
			}).Info("engine: query denied")
			return resp, errors.New(errors.CodeSPARQLAdmissionDenied, "query denied by complexity analysis",
				errors.Field("query_id", resp.ID.String()),
				errors.Field("violations", resp.Report.Violations))
		}
		log.WithField("cost", resp.Report.Cost).Debug("engine: query admitted")
	}

	q, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	resp.Query = q

	start := time.Now()
	resp.Result, err = e.executor.Execute(ctx, q)
	resp.Elapsed = time.Since(start)
	if err != nil {
		log.WithError(err).Warn("engine: query failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"form":    q.Type.String(),
		"elapsed": resp.Elapsed,
	}).Debug("engine: query answered")
	return resp, nil
}
