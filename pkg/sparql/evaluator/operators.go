package evaluator

import (
	"cmp"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/parser"
	"github.com/exocortex/exoql/pkg/store"
)

// evaluateBinaryExpression evaluates binary operations
func (e *Evaluator) evaluateBinaryExpression(expr *parser.BinaryExpression, binding *store.Binding) (rdf.Term, error) {
	switch expr.Operator {
	case parser.OpAnd:
		return e.evaluateAnd(expr, binding)
	case parser.OpOr:
		return e.evaluateOr(expr, binding)
	}

	left, err := e.Evaluate(expr.Left, binding)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(expr.Right, binding)
	if err != nil {
		return nil, err
	}

	switch expr.Operator {
	case parser.OpEqual, parser.OpNotEqual:
		eq, err := ValueEqual(left, right)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(eq == (expr.Operator == parser.OpEqual)), nil
	case parser.OpLessThan, parser.OpLessThanOrEqual, parser.OpGreaterThan, parser.OpGreaterThanOrEqual:
		c, err := CompareTerms(left, right)
		if err != nil {
			return nil, err
		}
		var result bool
		switch expr.Operator {
		case parser.OpLessThan:
			result = c < 0
		case parser.OpLessThanOrEqual:
			result = c <= 0
		case parser.OpGreaterThan:
			result = c > 0
		default:
			result = c >= 0
		}
		return rdf.NewBooleanLiteral(result), nil
	case parser.OpAdd, parser.OpSubtract, parser.OpMultiply, parser.OpDivide:
		return arithmetic(expr.Operator, left, right)
	default:
		return nil, typeErrorf("unsupported binary operator: %v", expr.Operator)
	}
}

// evaluateUnaryExpression evaluates unary operations
func (e *Evaluator) evaluateUnaryExpression(expr *parser.UnaryExpression, binding *store.Binding) (rdf.Term, error) {
	operand, err := e.Evaluate(expr.Operand, binding)
	if err != nil {
		return nil, err
	}

	switch expr.Operator {
	case parser.OpNot:
		ebv, err := EffectiveBooleanValue(operand)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!ebv), nil
	case parser.OpMinus, parser.OpPlus:
		n, ok := numericOf(operand, false)
		if !ok {
			return nil, typeErrorf("unary %s requires a numeric operand", expr.Operator)
		}
		if expr.Operator == parser.OpMinus {
			if n.kind == kindInteger && n.i == math.MinInt64 {
				n.kind = kindDecimal
			}
			n.i, n.f = -n.i, -n.f
		}
		return n.literal(), nil
	default:
		return nil, typeErrorf("unsupported unary operator: %v", expr.Operator)
	}
}

// evaluateAnd implements SPARQL's three-valued &&: false wins over an error.
// The right operand is not evaluated when the left is false.
func (e *Evaluator) evaluateAnd(expr *parser.BinaryExpression, binding *store.Binding) (rdf.Term, error) {
	left, leftErr := e.ebv(expr.Left, binding)
	if leftErr == nil && !left {
		return rdf.NewBooleanLiteral(false), nil
	}
	right, rightErr := e.ebv(expr.Right, binding)
	switch {
	case rightErr == nil && !right:
		return rdf.NewBooleanLiteral(false), nil
	case leftErr != nil:
		return nil, leftErr
	case rightErr != nil:
		return nil, rightErr
	}
	return rdf.NewBooleanLiteral(true), nil
}

// evaluateOr implements SPARQL's three-valued ||: true wins over an error.
func (e *Evaluator) evaluateOr(expr *parser.BinaryExpression, binding *store.Binding) (rdf.Term, error) {
	left, leftErr := e.ebv(expr.Left, binding)
	if leftErr == nil && left {
		return rdf.NewBooleanLiteral(true), nil
	}
	right, rightErr := e.ebv(expr.Right, binding)
	switch {
	case rightErr == nil && right:
		return rdf.NewBooleanLiteral(true), nil
	case leftErr != nil:
		return nil, leftErr
	case rightErr != nil:
		return nil, rightErr
	}
	return rdf.NewBooleanLiteral(false), nil
}

func (e *Evaluator) ebv(expr parser.Expression, binding *store.Binding) (bool, error) {
	term, err := e.Evaluate(expr, binding)
	if err != nil {
		return false, err
	}
	return EffectiveBooleanValue(term)
}

// ValueEqual implements "=". Numbers compare by value across numeric
// datatypes, dateTimes by instant and booleans by truth value; every other
// pair is compared as terms.
func ValueEqual(a, b rdf.Term) (bool, error) {
	la, aok := a.(*rdf.Literal)
	lb, bok := b.(*rdf.Literal)
	if aok && bok {
		if na, ok := numericOf(la, false); ok {
			if nb, ok := numericOf(lb, false); ok {
				c, err := compareNumeric(na, nb)
				return c == 0, err
			}
		}
		if ta, ok := dateTimeOf(la, false); ok {
			if tb, ok := dateTimeOf(lb, false); ok {
				return ta.Equal(tb), nil
			}
		}
		if ba, ok := booleanOf(la); ok {
			if bb, ok := booleanOf(lb); ok {
				return ba == bb, nil
			}
		}
	}
	return a.Equals(b), nil
}

// CompareTerms orders two terms for <, <=, > and >=. Numeric literals
// compare numerically and dateTimes chronologically; other literals and IRIs
// compare lexically. Blank nodes and literal/IRI mixes are not comparable.
func CompareTerms(a, b rdf.Term) (int, error) {
	la, aok := a.(*rdf.Literal)
	lb, bok := b.(*rdf.Literal)
	if !aok || !bok {
		ia, aIRI := a.(*rdf.NamedNode)
		ib, bIRI := b.(*rdf.NamedNode)
		if aIRI && bIRI {
			return strings.Compare(ia.IRI, ib.IRI), nil
		}
		return 0, typeErrorf("cannot compare %s with %s", termKind(a), termKind(b))
	}

	if na, ok := numericOf(la, false); ok {
		if nb, ok := numericOf(lb, false); ok {
			return compareNumeric(na, nb)
		}
	}
	if ta, ok := dateTimeOf(la, false); ok {
		if tb, ok := dateTimeOf(lb, false); ok {
			return ta.Compare(tb), nil
		}
	}
	if ba, ok := booleanOf(la); ok {
		if bb, ok := booleanOf(lb); ok {
			return compareBool(ba, bb), nil
		}
	}
	return strings.Compare(la.Value, lb.Value), nil
}

// OrderCompare is the total order used by ORDER BY: unbound, then blank
// nodes, then IRIs, then literals. Literals that CompareTerms cannot order
// fall back to their keys so sorting stays deterministic.
func OrderCompare(a, b rdf.Term) int {
	if c := cmp.Compare(orderRank(a), orderRank(b)); c != 0 {
		return c
	}
	switch ta := a.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return strings.Compare(ta.ID, b.(*rdf.BlankNode).ID)
	case *rdf.NamedNode:
		return strings.Compare(ta.IRI, b.(*rdf.NamedNode).IRI)
	}
	if c, err := CompareTerms(a, b); err == nil && c != 0 {
		return c
	}
	return strings.Compare(a.Key(), b.Key())
}

func orderRank(t rdf.Term) int {
	switch t.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return 1
	case *rdf.NamedNode:
		return 2
	default:
		return 3
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// numKind orders the numeric datatypes by type promotion
type numKind int

const (
	kindInteger numKind = iota
	kindDecimal
	kindFloat
	kindDouble
)

// numeric is a parsed numeric literal. Integers use i, the rest use f.
type numeric struct {
	kind numKind
	i    int64
	f    float64
}

func intNumeric(v int64) numeric {
	return numeric{kind: kindInteger, i: v, f: float64(v)}
}

func (n numeric) isZero() bool {
	if n.kind == kindInteger {
		return n.i == 0
	}
	return n.f == 0 || math.IsNaN(n.f)
}

func (n numeric) literal() *rdf.Literal {
	switch n.kind {
	case kindInteger:
		return rdf.NewIntegerLiteral(n.i)
	case kindDecimal:
		return rdf.NewDecimalLiteral(n.f)
	case kindFloat:
		return rdf.NewLiteralWithDatatype(strconv.FormatFloat(n.f, 'g', -1, 32), rdf.XSDFloat)
	default:
		return rdf.NewDoubleLiteral(n.f)
	}
}

var integerDatatypes = map[string]struct{}{
	"integer": {}, "int": {}, "long": {}, "short": {}, "byte": {},
	"nonNegativeInteger": {}, "positiveInteger": {}, "negativeInteger": {}, "nonPositiveInteger": {},
	"unsignedLong": {}, "unsignedInt": {}, "unsignedShort": {}, "unsignedByte": {},
}

func numericKindOf(dt *rdf.NamedNode) (numKind, bool) {
	if dt == nil || !strings.HasPrefix(dt.IRI, rdf.XSDNamespace) {
		return 0, false
	}
	local := dt.IRI[len(rdf.XSDNamespace):]
	if _, ok := integerDatatypes[local]; ok {
		return kindInteger, true
	}
	switch local {
	case "decimal":
		return kindDecimal, true
	case "float":
		return kindFloat, true
	case "double":
		return kindDouble, true
	}
	return 0, false
}

func isNumericDatatype(dt *rdf.NamedNode) bool {
	_, ok := numericKindOf(dt)
	return ok
}

// numericOf parses a numeric literal. With lenient set, a simple literal
// whose lexical form is a number counts too.
func numericOf(term rdf.Term, lenient bool) (numeric, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return numeric{}, false
	}
	kind, ok := numericKindOf(lit.Datatype)
	if !ok {
		if !lenient || !lit.IsSimple() {
			return numeric{}, false
		}
		value := strings.TrimSpace(lit.Value)
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intNumeric(i), true
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return numeric{kind: kindDecimal, f: f}, true
		}
		return numeric{}, false
	}

	value := strings.TrimSpace(lit.Value)
	if kind == kindInteger {
		i, err := strconv.ParseInt(strings.TrimPrefix(value, "+"), 10, 64)
		if err != nil {
			return numeric{}, false
		}
		return intNumeric(i), true
	}
	switch value {
	case "INF", "+INF":
		return numeric{kind: kind, f: math.Inf(1)}, true
	case "-INF":
		return numeric{kind: kind, f: math.Inf(-1)}, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return numeric{}, false
	}
	return numeric{kind: kind, f: f}, true
}

func compareNumeric(a, b numeric) (int, error) {
	if a.kind == kindInteger && b.kind == kindInteger {
		return cmp.Compare(a.i, b.i), nil
	}
	if math.IsNaN(a.f) || math.IsNaN(b.f) {
		return 0, typeErrorf("NaN is not comparable")
	}
	return cmp.Compare(a.f, b.f), nil
}

// arithmetic applies +, -, * or / with numeric type promotion. Integer
// division yields a decimal. Subtracting two dateTimes yields the difference
// in milliseconds as an integer.
func arithmetic(op parser.Operator, left, right rdf.Term) (rdf.Term, error) {
	if op == parser.OpSubtract {
		if ta, ok := dateTimeOf(left, true); ok {
			if tb, ok := dateTimeOf(right, true); ok {
				return rdf.NewIntegerLiteral(ta.Sub(tb).Milliseconds()), nil
			}
		}
	}

	l, lok := numericOf(left, false)
	r, rok := numericOf(right, false)
	if !lok || !rok {
		return nil, typeErrorf("operator %s requires numeric operands", op)
	}

	kind := max(l.kind, r.kind)
	if kind == kindInteger && op != parser.OpDivide {
		if v, ok := integerArithmetic(op, l.i, r.i); ok {
			return rdf.NewIntegerLiteral(v), nil
		}
		// out of int64 range
		kind = kindDecimal
	}
	if op == parser.OpDivide && kind == kindInteger {
		kind = kindDecimal
	}

	var result float64
	switch op {
	case parser.OpAdd:
		result = l.f + r.f
	case parser.OpSubtract:
		result = l.f - r.f
	case parser.OpMultiply:
		result = l.f * r.f
	default:
		if r.f == 0 && kind == kindDecimal {
			return nil, typeErrorf("division by zero")
		}
		result = l.f / r.f
	}
	return numeric{kind: kind, f: result}.literal(), nil
}

// integerArithmetic applies +, - or * to two int64 values. ok is false when
// the result does not fit in an int64.
func integerArithmetic(op parser.Operator, a, b int64) (int64, bool) {
	switch op {
	case parser.OpAdd:
		sum := a + b
		return sum, (a >= 0) != (b >= 0) || (sum >= 0) == (a >= 0)
	case parser.OpSubtract:
		diff := a - b
		return diff, (a >= 0) == (b >= 0) || (diff >= 0) == (a >= 0)
	default:
		if a == 0 || b == 0 {
			return 0, true
		}
		if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, false
		}
		prod := a * b
		return prod, prod/b == a
	}
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02Z07:00",
	"2006-01-02",
}

// dateTimeOf parses an xsd:dateTime or xsd:date literal. With lenient set,
// a simple literal in ISO 8601 form counts too.
func dateTimeOf(term rdf.Term, lenient bool) (time.Time, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return time.Time{}, false
	}
	switch {
	case lit.Datatype != nil && (lit.Datatype.IRI == rdf.XSDDateTime.IRI || lit.Datatype.IRI == rdf.XSDDate.IRI):
	case lenient && lit.IsSimple():
	default:
		return time.Time{}, false
	}
	value := strings.TrimSpace(lit.Value)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func hasTimezone(lexical string) bool {
	if strings.HasSuffix(lexical, "Z") {
		return true
	}
	if i := strings.IndexByte(lexical, 'T'); i >= 0 {
		rest := lexical[i:]
		return strings.ContainsAny(rest, "+-")
	}
	return false
}

func booleanOf(lit *rdf.Literal) (bool, bool) {
	if lit.Datatype == nil || lit.Datatype.IRI != rdf.XSDBoolean.IRI {
		return false, false
	}
	switch lit.Value {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}
