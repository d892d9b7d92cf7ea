// Package evaluator evaluates SPARQL expressions against solution bindings.
package evaluator

import (
	"fmt"
	"math/rand"
	"regexp"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// ExistsFunc reports whether pattern has a solution compatible with binding.
// The executor supplies it so EXISTS can run patterns without this package
// depending on the executor.
type ExistsFunc func(pattern *parser.GroupPattern, binding *store.Binding) (bool, error)

// EvalError is an expression evaluation error. FILTER treats it as false and
// BIND leaves the variable unbound.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return e.Msg
}

func typeErrorf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// Evaluator evaluates SPARQL expressions against bindings
type Evaluator struct {
	exists   ExistsFunc
	now      time.Time
	newBlank func() *rdf.BlankNode
	random   func() float64
	blankSeq int
	regexes  *lru.Cache[string, *regexp.Regexp]
}

const regexCacheSize = 128

// Option configures an Evaluator
type Option func(*Evaluator)

// WithExists installs the callback used for EXISTS and NOT EXISTS.
func WithExists(fn ExistsFunc) Option {
	return func(e *Evaluator) {
		e.exists = fn
	}
}

// WithNow fixes the value NOW() returns. A query sees one instant.
func WithNow(t time.Time) Option {
	return func(e *Evaluator) {
		e.now = t
	}
}

// WithBlankNodes sets the generator BNODE() draws from.
func WithBlankNodes(fn func() *rdf.BlankNode) Option {
	return func(e *Evaluator) {
		e.newBlank = fn
	}
}

// WithRandom sets the source RAND() draws from.
func WithRandom(fn func() float64) Option {
	return func(e *Evaluator) {
		e.random = fn
	}
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		now:    time.Now(),
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newBlank == nil {
		e.newBlank = func() *rdf.BlankNode {
			e.blankSeq++
			return rdf.NewBlankNode(fmt.Sprintf("f%d", e.blankSeq))
		}
	}
	return e
}

// regexCache holds compiled REGEX and REPLACE patterns. A FILTER runs the
// same pattern once per solution.
func (e *Evaluator) regexCache() *lru.Cache[string, *regexp.Regexp] {
	if e.regexes == nil {
		e.regexes, _ = lru.New[string, *regexp.Regexp](regexCacheSize)
	}
	return e.regexes
}

// Evaluate evaluates an expression against a binding. An unbound variable,
// a type error or an unknown function yields an *EvalError.
func (e *Evaluator) Evaluate(expr parser.Expression, binding *store.Binding) (rdf.Term, error) {
	switch ex := expr.(type) {
	case *parser.BinaryExpression:
		return e.evaluateBinaryExpression(ex, binding)
	case *parser.UnaryExpression:
		return e.evaluateUnaryExpression(ex, binding)
	case *parser.VariableExpression:
		value := binding.Get(ex.Variable.Name)
		if value == nil {
			return nil, typeErrorf("unbound variable ?%s", ex.Variable.Name)
		}
		return value, nil
	case *parser.LiteralExpression:
		return ex.Literal, nil
	case *parser.FunctionCallExpression:
		return e.evaluateFunctionCall(ex, binding)
	case *parser.ExistsExpression:
		return e.evaluateExists(ex, binding)
	case *parser.InExpression:
		return e.evaluateIn(ex, binding)
	case *parser.AggregateExpression:
		return nil, typeErrorf("aggregate %s outside of a grouped query", ex.Function)
	case nil:
		return nil, typeErrorf("cannot evaluate nil expression")
	default:
		return nil, typeErrorf("unsupported expression type: %T", expr)
	}
}

// Test evaluates expr as a FILTER condition: errors count as false.
func (e *Evaluator) Test(expr parser.Expression, binding *store.Binding) bool {
	term, err := e.Evaluate(expr, binding)
	if err != nil {
		return false
	}
	ok, err := EffectiveBooleanValue(term)
	return err == nil && ok
}

func (e *Evaluator) evaluateExists(expr *parser.ExistsExpression, binding *store.Binding) (rdf.Term, error) {
	if e.exists == nil {
		return nil, typeErrorf("EXISTS is not available in this context")
	}
	found, err := e.exists(expr.Pattern, binding)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(found != expr.Not), nil
}

// evaluateIn treats x IN (a, b) as x = a || x = b. An error on one member
// only matters when no other member matches.
func (e *Evaluator) evaluateIn(expr *parser.InExpression, binding *store.Binding) (rdf.Term, error) {
	left, err := e.Evaluate(expr.Expression, binding)
	if err != nil {
		return nil, err
	}

	var firstErr error
	for _, item := range expr.List {
		right, err := e.Evaluate(item, binding)
		if err == nil {
			var eq bool
			if eq, err = ValueEqual(left, right); err == nil && eq {
				return rdf.NewBooleanLiteral(!expr.Not), nil
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return rdf.NewBooleanLiteral(expr.Not), nil
}

// EffectiveBooleanValue computes the EBV of a term
func EffectiveBooleanValue(term rdf.Term) (bool, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false, typeErrorf("no effective boolean value for %s", termKind(term))
	}
	if lit.Language != "" {
		return lit.Value != "", nil
	}
	if lit.Datatype != nil && lit.Datatype.IRI == rdf.XSDBoolean.IRI {
		switch lit.Value {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, typeErrorf("invalid boolean literal %q", lit.Value)
	}
	if isNumericDatatype(lit.Datatype) {
		n, ok := numericOf(lit, false)
		if !ok {
			return false, nil
		}
		return !n.isZero(), nil
	}
	if lit.IsSimple() {
		return lit.Value != "", nil
	}
	return false, typeErrorf("no effective boolean value for datatype %s", lit.Datatype.IRI)
}

func termKind(term rdf.Term) string {
	if term == nil {
		return "unbound"
	}
	return term.Type().String()
}
