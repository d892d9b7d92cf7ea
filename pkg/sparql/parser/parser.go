package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
)

// ParseError reports malformed query text at a 1-based line and column.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Parser parses SPARQL queries
type Parser struct {
	input    string
	pos      int
	length   int
	prefixes map[string]string // Maps prefix to IRI
	baseIRI  string            // Base IRI for resolving relative IRIs

	anonCounter int
	inTemplate  bool
	pending     []*TriplePattern // patterns produced by [ ... ] property lists
}

// NewParser creates a new SPARQL parser
func NewParser(input string) *Parser {
	return &Parser{
		input:    input,
		length:   len(input),
		prefixes: make(map[string]string),
	}
}

// Parse parses a complete SPARQL query.
func Parse(input string) (*Query, error) {
	return NewParser(input).Parse()
}

// Parse parses a SPARQL query
func (p *Parser) Parse() (*Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}

	query, err := p.parseQueryBody()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()
	if p.pos < p.length {
		return nil, p.errorf("unexpected input %q", p.snippet())
	}
	return query, nil
}

func (p *Parser) errorf(format string, args ...any) error {
	line, col := 1, 1
	for i := 0; i < p.pos && i < p.length; i++ {
		if p.input[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	perr := &ParseError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
	return errors.Wrap(perr, errors.CodeSPARQLParseInvalidSyntax, "invalid SPARQL query",
		errors.Field("line", line), errors.Field("column", col))
}

func (p *Parser) snippet() string {
	end := min(p.pos+20, p.length)
	return p.input[p.pos:end]
}

// parsePrologue reads PREFIX and BASE declarations
func (p *Parser) parsePrologue() error {
	for {
		switch {
		case p.matchKeyword("PREFIX"):
			p.skipWhitespace()
			name := p.readWhile(isPrefixChar)
			if !p.match(":") {
				return p.errorf("expected ':' after prefix name")
			}
			p.skipWhitespace()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.prefixes[name] = iri
		case p.matchKeyword("BASE"):
			p.skipWhitespace()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.baseIRI = iri
		default:
			return nil
		}
	}
}

func (p *Parser) parseQueryBody() (*Query, error) {
	query := &Query{Prefixes: p.prefixes}

	switch {
	case p.matchKeyword("SELECT"):
		query.Type = QueryTypeSelect
		if err := p.parseSelectClause(query); err != nil {
			return nil, err
		}
		if err := p.parseWhere(query, true); err != nil {
			return nil, err
		}
	case p.matchKeyword("CONSTRUCT"):
		query.Type = QueryTypeConstruct
		if err := p.parseConstruct(query); err != nil {
			return nil, err
		}
	case p.matchKeyword("ASK"):
		query.Type = QueryTypeAsk
		if err := p.parseWhere(query, true); err != nil {
			return nil, err
		}
	case p.matchKeyword("DESCRIBE"):
		query.Type = QueryTypeDescribe
		if err := p.parseDescribe(query); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf("expected SELECT, CONSTRUCT, ASK or DESCRIBE")
	}

	if err := p.parseSolutionModifiers(query); err != nil {
		return nil, err
	}
	if p.matchKeyword("VALUES") {
		data, err := p.parseDataBlock()
		if err != nil {
			return nil, err
		}
		query.Values = data
	}
	query.BaseIRI = p.baseIRI
	return query, nil
}

// parseSelectClause parses the modifiers and projection of SELECT
func (p *Parser) parseSelectClause(query *Query) error {
	if p.matchKeyword("DISTINCT") {
		query.Distinct = true
	} else if p.matchKeyword("REDUCED") {
		query.Reduced = true
	}

	p.skipWhitespace()
	if p.match("*") {
		return nil
	}

	for {
		p.skipWhitespace()
		switch p.peek() {
		case '?', '$':
			v, err := p.parseVariable()
			if err != nil {
				return err
			}
			query.Projection = append(query.Projection, &Projection{Variable: v})
		case '(':
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return err
			}
			if !p.matchKeyword("AS") {
				return p.errorf("expected AS in select expression")
			}
			p.skipWhitespace()
			v, err := p.parseVariable()
			if err != nil {
				return err
			}
			p.skipWhitespace()
			if !p.match(")") {
				return p.errorf("expected ')' after select expression")
			}
			query.Projection = append(query.Projection, &Projection{Variable: v, Expression: expr})
		default:
			if len(query.Projection) == 0 {
				return p.errorf("expected variables or '*' after SELECT")
			}
			return nil
		}
	}
}

func (p *Parser) parseWhere(query *Query, required bool) error {
	if p.matchKeyword("FROM") {
		return p.errorf("FROM dataset clauses are not supported")
	}
	hasKeyword := p.matchKeyword("WHERE")
	p.skipWhitespace()
	if !hasKeyword && p.peek() != '{' {
		if required {
			return p.errorf("expected WHERE clause")
		}
		return nil
	}
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return err
	}
	query.Where = where
	return nil
}

// parseConstruct parses CONSTRUCT { template } WHERE { ... } and the
// CONSTRUCT WHERE { triples } short form.
func (p *Parser) parseConstruct(query *Query) error {
	if p.matchKeyword("WHERE") {
		where, err := p.parseGroupGraphPattern()
		if err != nil {
			return err
		}
		for _, el := range where.Elements {
			block, ok := el.(*TriplesBlock)
			if !ok {
				return p.errorf("CONSTRUCT WHERE allows only triple patterns")
			}
			query.Template = append(query.Template, block.Patterns...)
		}
		query.Where = where
		return nil
	}

	p.skipWhitespace()
	if !p.match("{") {
		return p.errorf("expected '{' to start CONSTRUCT template")
	}
	p.inTemplate = true
	for {
		p.skipWhitespace()
		if p.match("}") {
			break
		}
		if p.pos >= p.length {
			p.inTemplate = false
			return p.errorf("unterminated CONSTRUCT template")
		}
		if p.match(".") {
			continue
		}
		patterns, err := p.parseTriplesSameSubject()
		if err != nil {
			p.inTemplate = false
			return err
		}
		query.Template = append(query.Template, patterns...)
	}
	p.inTemplate = false
	return p.parseWhere(query, true)
}

func (p *Parser) parseDescribe(query *Query) error {
	p.skipWhitespace()
	if !p.match("*") {
		for {
			p.skipWhitespace()
			ch := p.peek()
			if ch == 0 || ch == '{' || p.peekKeyword("WHERE") || p.peekKeyword("FROM") || p.atModifierKeyword() {
				break
			}
			var target TermOrVariable
			if ch == '?' || ch == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return err
				}
				target.Variable = v
			} else {
				iri, err := p.parseIRIOrPrefixedName()
				if err != nil {
					return err
				}
				target.Term = rdf.NewNamedNode(iri)
			}
			query.DescribeTargets = append(query.DescribeTargets, target)
		}
		if len(query.DescribeTargets) == 0 {
			return p.errorf("expected resources or '*' after DESCRIBE")
		}
	}
	return p.parseWhere(query, false)
}

func (p *Parser) atModifierKeyword() bool {
	for _, kw := range []string{"GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "VALUES"} {
		if p.peekKeyword(kw) {
			return true
		}
	}
	return false
}

// parseSolutionModifiers parses GROUP BY, HAVING, ORDER BY, LIMIT and OFFSET
func (p *Parser) parseSolutionModifiers(query *Query) error {
	if p.matchKeyword("GROUP") {
		if !p.matchKeyword("BY") {
			return p.errorf("expected BY after GROUP")
		}
		conditions, err := p.parseGroupBy()
		if err != nil {
			return err
		}
		query.GroupBy = conditions
	}

	if p.matchKeyword("HAVING") {
		for {
			p.skipWhitespace()
			if p.peek() != '(' && !(isAlpha(p.peek()) && !p.atModifierKeyword()) {
				break
			}
			expr, err := p.parseConstraint()
			if err != nil {
				return err
			}
			query.Having = append(query.Having, expr)
		}
		if len(query.Having) == 0 {
			return p.errorf("expected constraint after HAVING")
		}
	}

	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return p.errorf("expected BY after ORDER")
		}
		conditions, err := p.parseOrderBy()
		if err != nil {
			return err
		}
		query.OrderBy = conditions
	}

	for i := 0; i < 2; i++ {
		switch {
		case p.matchKeyword("LIMIT"):
			n, err := p.parseInteger()
			if err != nil {
				return err
			}
			query.Limit = &n
		case p.matchKeyword("OFFSET"):
			n, err := p.parseInteger()
			if err != nil {
				return err
			}
			query.Offset = &n
		}
	}
	return nil
}

func (p *Parser) parseGroupBy() ([]*GroupCondition, error) {
	var conditions []*GroupCondition
	for {
		p.skipWhitespace()
		ch := p.peek()
		switch {
		case ch == '?' || ch == '$':
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &GroupCondition{Expression: &VariableExpression{Variable: v}})
		case ch == '(':
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			cond := &GroupCondition{Expression: expr}
			if p.matchKeyword("AS") {
				p.skipWhitespace()
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				cond.Variable = v
			}
			p.skipWhitespace()
			if !p.match(")") {
				return nil, p.errorf("expected ')' in GROUP BY")
			}
			conditions = append(conditions, cond)
		case isAlpha(ch) && !p.atModifierKeyword():
			expr, err := p.parsePrimaryExpression()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &GroupCondition{Expression: expr})
		default:
			if len(conditions) == 0 {
				return nil, p.errorf("expected GROUP BY condition")
			}
			return conditions, nil
		}
	}
}

func (p *Parser) parseOrderBy() ([]*OrderCondition, error) {
	var conditions []*OrderCondition
	for {
		p.skipWhitespace()
		ch := p.peek()
		switch {
		case p.peekKeyword("ASC") || p.peekKeyword("DESC"):
			ascending := p.matchKeyword("ASC")
			if !ascending {
				p.matchKeyword("DESC")
			}
			expr, err := p.parseBrackettedExpression()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &OrderCondition{Expression: expr, Ascending: ascending})
		case ch == '?' || ch == '$':
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &OrderCondition{Expression: &VariableExpression{Variable: v}, Ascending: true})
		case ch == '(':
			expr, err := p.parseBrackettedExpression()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &OrderCondition{Expression: expr, Ascending: true})
		case isAlpha(ch) && !p.atModifierKeyword():
			expr, err := p.parsePrimaryExpression()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &OrderCondition{Expression: expr, Ascending: true})
		default:
			if len(conditions) == 0 {
				return nil, p.errorf("expected ORDER BY condition")
			}
			return conditions, nil
		}
	}
}

func (p *Parser) parseInteger() (int, error) {
	p.skipWhitespace()
	numStr := p.readWhile(isDigit)
	if numStr == "" {
		return 0, p.errorf("expected integer")
	}
	return strconv.Atoi(numStr)
}

// parseGroupGraphPattern parses { ... } including a nested sub-SELECT
func (p *Parser) parseGroupGraphPattern() (*GroupPattern, error) {
	p.skipWhitespace()
	if !p.match("{") {
		return nil, p.errorf("expected '{'")
	}

	if p.peekKeyword("SELECT") {
		sub, err := p.parseQueryBody()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if !p.match("}") {
			return nil, p.errorf("expected '}' after subquery")
		}
		return &GroupPattern{Elements: []PatternElement{&SubQueryElement{Query: sub}}}, nil
	}

	group := &GroupPattern{}
	for {
		p.skipWhitespace()
		if p.pos >= p.length {
			return nil, p.errorf("unterminated group pattern, expected '}'")
		}
		if p.match("}") {
			return group, nil
		}

		switch {
		case p.match("."):
		case p.matchKeyword("FILTER"):
			expr, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, &FilterElement{Expression: expr})
		case p.matchKeyword("OPTIONAL"):
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, &OptionalElement{Pattern: inner})
		case p.matchKeyword("MINUS"):
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, &MinusElement{Pattern: inner})
		case p.matchKeyword("GRAPH"):
			el, err := p.parseGraphElement()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, el)
		case p.matchKeyword("BIND"):
			el, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, el)
		case p.matchKeyword("VALUES"):
			data, err := p.parseDataBlock()
			if err != nil {
				return nil, err
			}
			group.Elements = append(group.Elements, &ValuesElement{Data: data})
		case p.peekKeyword("SERVICE"):
			return nil, p.errorf("SERVICE is not supported")
		case p.peek() == '{':
			first, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			alternatives := []*GroupPattern{first}
			for p.matchKeyword("UNION") {
				next, err := p.parseGroupGraphPattern()
				if err != nil {
					return nil, err
				}
				alternatives = append(alternatives, next)
			}
			if len(alternatives) > 1 {
				group.Elements = append(group.Elements, &UnionElement{Alternatives: alternatives})
			} else {
				group.Elements = append(group.Elements, &NestedGroup{Pattern: first})
			}
		default:
			patterns, err := p.parseTriplesSameSubject()
			if err != nil {
				return nil, err
			}
			if n := len(group.Elements); n > 0 {
				if block, ok := group.Elements[n-1].(*TriplesBlock); ok {
					block.Patterns = append(block.Patterns, patterns...)
					continue
				}
			}
			group.Elements = append(group.Elements, &TriplesBlock{Patterns: patterns})
		}
	}
}

func (p *Parser) parseGraphElement() (*GraphElement, error) {
	p.skipWhitespace()
	el := &GraphElement{}
	if ch := p.peek(); ch == '?' || ch == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		el.Name.Variable = v
	} else {
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		el.Name.Term = rdf.NewNamedNode(iri)
	}
	inner, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	el.Pattern = inner
	return el, nil
}

// parseBind parses BIND(expression AS ?var)
func (p *Parser) parseBind() (*BindElement, error) {
	p.skipWhitespace()
	if !p.match("(") {
		return nil, p.errorf("expected '(' after BIND")
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.matchKeyword("AS") {
		return nil, p.errorf("expected AS in BIND")
	}
	p.skipWhitespace()
	v, err := p.parseVariable()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if !p.match(")") {
		return nil, p.errorf("expected ')' after BIND")
	}
	return &BindElement{Expression: expr, Variable: v}, nil
}

// parseConstraint parses a FILTER/HAVING constraint: bracketted expression,
// built-in call or function call.
func (p *Parser) parseConstraint() (Expression, error) {
	p.skipWhitespace()
	if p.peek() == '(' {
		return p.parseBrackettedExpression()
	}
	return p.parsePrimaryExpression()
}

func (p *Parser) parseBrackettedExpression() (Expression, error) {
	p.skipWhitespace()
	if !p.match("(") {
		return nil, p.errorf("expected '('")
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if !p.match(")") {
		return nil, p.errorf("expected ')'")
	}
	return expr, nil
}

// parseDataBlock parses the body of VALUES
func (p *Parser) parseDataBlock() (*InlineData, error) {
	p.skipWhitespace()
	data := &InlineData{}

	single := p.peek() != '('
	if single {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		data.Variables = []*Variable{v}
	} else {
		p.advance()
		for {
			p.skipWhitespace()
			if p.match(")") {
				break
			}
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			data.Variables = append(data.Variables, v)
		}
	}

	p.skipWhitespace()
	if !p.match("{") {
		return nil, p.errorf("expected '{' in VALUES")
	}
	for {
		p.skipWhitespace()
		if p.match("}") {
			return data, nil
		}
		if p.pos >= p.length {
			return nil, p.errorf("unterminated VALUES block")
		}
		if single {
			term, err := p.parseDataValue()
			if err != nil {
				return nil, err
			}
			data.Rows = append(data.Rows, []rdf.Term{term})
			continue
		}
		if !p.match("(") {
			return nil, p.errorf("expected '(' for VALUES row")
		}
		row := make([]rdf.Term, 0, len(data.Variables))
		for {
			p.skipWhitespace()
			if p.match(")") {
				break
			}
			term, err := p.parseDataValue()
			if err != nil {
				return nil, err
			}
			row = append(row, term)
		}
		if len(row) != len(data.Variables) {
			return nil, p.errorf("VALUES row has %d values, expected %d", len(row), len(data.Variables))
		}
		data.Rows = append(data.Rows, row)
	}
}

// parseDataValue returns nil for UNDEF
func (p *Parser) parseDataValue() (rdf.Term, error) {
	if p.matchKeyword("UNDEF") {
		return nil, nil
	}
	tv, err := p.parseTermOrVariable()
	if err != nil {
		return nil, err
	}
	if tv.Variable != nil {
		return nil, p.errorf("variables are not allowed in VALUES")
	}
	return tv.Term, nil
}

// parseTriplesSameSubject parses subject followed by a property list
func (p *Parser) parseTriplesSameSubject() ([]*TriplePattern, error) {
	p.pending = nil
	subject, err := p.parseTermOrVariable()
	if err != nil {
		return nil, err
	}
	if _, ok := subject.Term.(*rdf.Literal); ok {
		return nil, p.errorf("literal not allowed as subject")
	}

	p.skipWhitespace()
	var patterns []*TriplePattern
	// [ p o ] may stand alone as a complete triples block
	if p.peek() == '.' || p.peek() == '}' {
		if len(p.pending) == 0 {
			return nil, p.errorf("expected predicate")
		}
	} else {
		patterns, err = p.parsePropertyList(subject)
		if err != nil {
			return nil, err
		}
	}
	patterns = append(patterns, p.pending...)
	p.pending = nil
	return patterns, nil
}

func (p *Parser) parsePropertyList(subject TermOrVariable) ([]*TriplePattern, error) {
	var patterns []*TriplePattern
	for {
		p.skipWhitespace()
		predicate, path, err := p.parseVerb()
		if err != nil {
			return nil, err
		}
		for {
			p.skipWhitespace()
			object, err := p.parseTermOrVariable()
			if err != nil {
				return nil, err
			}
			patterns = append(patterns, &TriplePattern{Subject: subject, Predicate: predicate, Path: path, Object: object})
			p.skipWhitespace()
			if !p.match(",") {
				break
			}
		}
		p.skipWhitespace()
		if !p.match(";") {
			return patterns, nil
		}
		// trailing ';' before '.', ']' or '}'
		p.skipWhitespace()
		for p.match(";") {
			p.skipWhitespace()
		}
		if ch := p.peek(); ch == '.' || ch == ']' || ch == '}' {
			return patterns, nil
		}
	}
}

// parseVerb parses a predicate: variable, 'a', IRI or property path
func (p *Parser) parseVerb() (TermOrVariable, Path, error) {
	if ch := p.peek(); ch == '?' || ch == '$' {
		v, err := p.parseVariable()
		return TermOrVariable{Variable: v}, nil, err
	}
	if p.inTemplate {
		if p.matchKeyword("a") {
			return TermOrVariable{Term: rdf.RDFType}, nil, nil
		}
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return TermOrVariable{}, nil, err
		}
		return TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil, nil
	}

	path, err := p.parsePathAlternative()
	if err != nil {
		return TermOrVariable{}, nil, err
	}
	if link, ok := path.(*LinkPath); ok {
		return TermOrVariable{Term: link.IRI}, nil, nil
	}
	return TermOrVariable{}, path, nil
}

func (p *Parser) parsePathAlternative() (Path, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if !p.match("|") {
			return left, nil
		}
		right, err := p.parsePathSequence()
		if err != nil {
			return nil, err
		}
		left = &AlternativePath{Left: left, Right: right}
	}
}

func (p *Parser) parsePathSequence() (Path, error) {
	left, err := p.parsePathEltOrInverse()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if !p.match("/") {
			return left, nil
		}
		right, err := p.parsePathEltOrInverse()
		if err != nil {
			return nil, err
		}
		left = &SequencePath{Left: left, Right: right}
	}
}

func (p *Parser) parsePathEltOrInverse() (Path, error) {
	p.skipWhitespace()
	if p.match("^") {
		inner, err := p.parsePathElt()
		if err != nil {
			return nil, err
		}
		return &InversePath{Path: inner}, nil
	}
	return p.parsePathElt()
}

func (p *Parser) parsePathElt() (Path, error) {
	p.skipWhitespace()
	var primary Path
	switch {
	case p.match("("):
		inner, err := p.parsePathAlternative()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if !p.match(")") {
			return nil, p.errorf("expected ')' in property path")
		}
		primary = inner
	case p.peek() == '!':
		return nil, p.errorf("negated property sets are not supported")
	case p.matchKeyword("a"):
		primary = &LinkPath{IRI: rdf.RDFType}
	default:
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		primary = &LinkPath{IRI: rdf.NewNamedNode(iri)}
	}

	// modifiers bind tightly; '?' followed by a name is a variable
	switch p.peek() {
	case '*':
		p.advance()
		return &ZeroOrMorePath{Path: primary}, nil
	case '+':
		p.advance()
		return &OneOrMorePath{Path: primary}, nil
	case '?':
		if next := p.peekAt(1); !isVarChar(next) {
			p.advance()
			return &ZeroOrOnePath{Path: primary}, nil
		}
	}
	return primary, nil
}

// parseTermOrVariable parses a variable or RDF term in a triple pattern
func (p *Parser) parseTermOrVariable() (TermOrVariable, error) {
	p.skipWhitespace()
	ch := p.peek()

	switch {
	case ch == '?' || ch == '$':
		v, err := p.parseVariable()
		return TermOrVariable{Variable: v}, err
	case ch == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return TermOrVariable{}, err
		}
		return TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil
	case ch == '"' || ch == '\'':
		lit, err := p.parseStringLiteral()
		return TermOrVariable{Term: lit}, err
	case isDigit(ch) || ch == '+' || ch == '-' || (ch == '.' && isDigit(p.peekAt(1))):
		lit, err := p.parseNumericLiteral()
		return TermOrVariable{Term: lit}, err
	case ch == '_' && p.peekAt(1) == ':':
		p.pos += 2
		start := p.pos
		// a trailing '.' terminates the statement
		label := strings.TrimRight(p.readWhile(isPNChar), ".")
		p.pos = start + len(label)
		if label == "" {
			return TermOrVariable{}, p.errorf("empty blank node label")
		}
		return p.blankNodeTerm(label), nil
	case ch == '[':
		return p.parseAnon()
	case ch == '(':
		return TermOrVariable{}, p.errorf("RDF collections are not supported")
	case p.matchKeyword("true"):
		return TermOrVariable{Term: rdf.NewBooleanLiteral(true)}, nil
	case p.matchKeyword("false"):
		return TermOrVariable{Term: rdf.NewBooleanLiteral(false)}, nil
	case ch == 0:
		return TermOrVariable{}, p.errorf("unexpected end of query")
	default:
		iri, err := p.parsePrefixedName()
		if err != nil {
			return TermOrVariable{}, err
		}
		return TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil
	}
}

// blankNodeTerm maps a labelled blank node: fresh per solution inside a
// CONSTRUCT template, a non-projected variable inside a pattern.
func (p *Parser) blankNodeTerm(label string) TermOrVariable {
	if p.inTemplate {
		return TermOrVariable{Term: rdf.NewBlankNode(label)}
	}
	return TermOrVariable{Variable: &Variable{Name: "_:" + label}}
}

// parseAnon parses [] or [ predicate object ; ... ]
func (p *Parser) parseAnon() (TermOrVariable, error) {
	p.advance() // '['
	p.anonCounter++
	node := p.blankNodeTerm(fmt.Sprintf("anon%d", p.anonCounter))

	p.skipWhitespace()
	if p.match("]") {
		return node, nil
	}

	outer := p.pending
	p.pending = nil
	patterns, err := p.parsePropertyList(node)
	if err != nil {
		return TermOrVariable{}, err
	}
	p.skipWhitespace()
	if !p.match("]") {
		return TermOrVariable{}, p.errorf("expected ']'")
	}
	p.pending = append(append(outer, patterns...), p.pending...)
	return node, nil
}

// parseVariable parses ?name or $name
func (p *Parser) parseVariable() (*Variable, error) {
	p.skipWhitespace()
	if ch := p.peek(); ch != '?' && ch != '$' {
		return nil, p.errorf("expected variable")
	}
	p.advance()
	name := p.readWhile(isVarChar)
	if name == "" {
		return nil, p.errorf("empty variable name")
	}
	return &Variable{Name: name}, nil
}

// parseIRIRef parses <iri> and resolves it against BASE
func (p *Parser) parseIRIRef() (string, error) {
	if !p.match("<") {
		return "", p.errorf("expected '<'")
	}
	start := p.pos
	for p.pos < p.length && p.input[p.pos] != '>' {
		switch p.input[p.pos] {
		case ' ', '\n', '\t', '<', '"', '{', '}', '|', '^', '`':
			return "", p.errorf("invalid character in IRI")
		}
		p.pos++
	}
	if p.pos >= p.length {
		return "", p.errorf("unterminated IRI")
	}
	iri := p.input[start:p.pos]
	p.advance()
	return p.resolveIRI(iri), nil
}

func (p *Parser) parseIRIOrPrefixedName() (string, error) {
	p.skipWhitespace()
	if p.peek() == '<' {
		return p.parseIRIRef()
	}
	return p.parsePrefixedName()
}

// parsePrefixedName parses prefix:local and expands it
func (p *Parser) parsePrefixedName() (string, error) {
	start := p.pos
	prefix := p.readWhile(isPrefixChar)
	if !p.match(":") {
		p.pos = start
		if p.pos >= p.length {
			return "", p.errorf("unexpected end of query")
		}
		return "", p.errorf("unexpected token %q", p.snippet())
	}
	ns, ok := p.prefixes[prefix]
	if !ok {
		p.pos = start
		return "", p.errorf("undefined prefix %q", prefix)
	}

	var local strings.Builder
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == '\\' && p.pos+1 < p.length {
			local.WriteByte(p.input[p.pos+1])
			p.pos += 2
			continue
		}
		if !isPNChar(ch) && ch != ':' && ch != '%' {
			break
		}
		local.WriteByte(ch)
		p.pos++
	}
	name := local.String()
	for strings.HasSuffix(name, ".") {
		name = name[:len(name)-1]
		p.pos--
	}
	return ns + name, nil
}

// parseStringLiteral parses quoted strings with language tag or datatype
func (p *Parser) parseStringLiteral() (*rdf.Literal, error) {
	quote := p.peek()
	long := strings.HasPrefix(p.input[p.pos:], strings.Repeat(string(quote), 3))
	if long {
		p.pos += 3
	} else {
		p.pos++
	}

	var sb strings.Builder
	closed := false
	for p.pos < p.length {
		ch := p.input[p.pos]
		if long && strings.HasPrefix(p.input[p.pos:], strings.Repeat(string(quote), 3)) {
			p.pos += 3
			closed = true
			break
		}
		if !long && ch == quote {
			p.pos++
			closed = true
			break
		}
		if !long && (ch == '\n' || ch == '\r') {
			break
		}
		if ch != '\\' {
			sb.WriteByte(ch)
			p.pos++
			continue
		}
		if p.pos+1 >= p.length {
			break
		}
		esc := p.input[p.pos+1]
		p.pos += 2
		switch esc {
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 'f':
			sb.WriteByte('\f')
		case '"', '\'', '\\':
			sb.WriteByte(esc)
		case 'u', 'U':
			width := 4
			if esc == 'U' {
				width = 8
			}
			if p.pos+width > p.length {
				return nil, p.errorf("truncated unicode escape")
			}
			code, err := strconv.ParseUint(p.input[p.pos:p.pos+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				return nil, p.errorf("invalid unicode escape")
			}
			sb.WriteRune(rune(code))
			p.pos += width
		default:
			return nil, p.errorf("invalid escape sequence \\%c", esc)
		}
	}
	if !closed {
		return nil, p.errorf("unterminated string literal")
	}
	value := sb.String()

	if p.match("@") {
		tag := p.readWhile(func(ch byte) bool { return isAlpha(ch) || isDigit(ch) || ch == '-' })
		if tag == "" {
			return nil, p.errorf("empty language tag")
		}
		return rdf.NewLiteralWithLanguage(value, tag), nil
	}
	if p.match("^^") {
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(iri)), nil
	}
	return rdf.NewLiteral(value), nil
}

// parseNumericLiteral parses integer, decimal and double literals
func (p *Parser) parseNumericLiteral() (*rdf.Literal, error) {
	start := p.pos
	if ch := p.peek(); ch == '+' || ch == '-' {
		p.advance()
	}
	digits := p.readWhile(isDigit)
	datatype := rdf.XSDInteger
	if p.peek() == '.' && isDigit(p.peekAt(1)) {
		p.advance()
		digits += p.readWhile(isDigit)
		datatype = rdf.XSDDecimal
	}
	if ch := p.peek(); (ch == 'e' || ch == 'E') && digits != "" {
		save := p.pos
		p.advance()
		if ch := p.peek(); ch == '+' || ch == '-' {
			p.advance()
		}
		if exp := p.readWhile(isDigit); exp == "" {
			p.pos = save
		} else {
			datatype = rdf.XSDDouble
		}
	}
	if digits == "" {
		p.pos = start
		return nil, p.errorf("invalid numeric literal")
	}
	return rdf.NewLiteralWithDatatype(p.input[start:p.pos], datatype), nil
}

// Expression parsing
//
// Grammar:
// Expression → LogicalOrExpression
// LogicalOrExpression → LogicalAndExpression ( '||' LogicalAndExpression )*
// LogicalAndExpression → ComparisonExpression ( '&&' ComparisonExpression )*
// ComparisonExpression → AdditiveExpression ( CompareOp AdditiveExpression | [NOT] IN List )?
// AdditiveExpression → MultiplicativeExpression ( ('+' | '-') MultiplicativeExpression )*
// MultiplicativeExpression → UnaryExpression ( ('*' | '/') UnaryExpression )*
// UnaryExpression → ('!' | '-' | '+')? PrimaryExpression
// PrimaryExpression → Variable | Literal | IRI | FunctionCall | BuiltIn | Aggregate | '(' Expression ')'

func (p *Parser) parseExpression() (Expression, error) {
	return p.parseLogicalOrExpression()
}

func (p *Parser) parseLogicalOrExpression() (Expression, error) {
	left, err := p.parseLogicalAndExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if !p.match("||") {
			return left, nil
		}
		right, err := p.parseLogicalAndExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: OpOr, Right: right}
	}
}

func (p *Parser) parseLogicalAndExpression() (Expression, error) {
	left, err := p.parseComparisonExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if !p.match("&&") {
			return left, nil
		}
		right, err := p.parseComparisonExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: OpAnd, Right: right}
	}
}

func (p *Parser) parseComparisonExpression() (Expression, error) {
	left, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()

	savedPos := p.pos
	notIn := false
	if p.matchKeyword("NOT") {
		if !p.peekKeyword("IN") {
			p.pos = savedPos
		} else {
			notIn = true
		}
	}
	if p.matchKeyword("IN") {
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &InExpression{Expression: left, List: list, Not: notIn}, nil
	}

	var op Operator
	switch {
	case p.match("<="):
		op = OpLessThanOrEqual
	case p.match(">="):
		op = OpGreaterThanOrEqual
	case p.match("!="):
		op = OpNotEqual
	case p.match("="):
		op = OpEqual
	case p.match("<"):
		op = OpLessThan
	case p.match(">"):
		op = OpGreaterThan
	default:
		return left, nil
	}
	right, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}
	return &BinaryExpression{Left: left, Operator: op, Right: right}, nil
}

func (p *Parser) parseAdditiveExpression() (Expression, error) {
	left, err := p.parseMultiplicativeExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		var op Operator
		switch {
		case p.match("+"):
			op = OpAdd
		case p.match("-"):
			op = OpSubtract
		default:
			return left, nil
		}
		right, err := p.parseMultiplicativeExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: op, Right: right}
	}
}

func (p *Parser) parseMultiplicativeExpression() (Expression, error) {
	left, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		var op Operator
		switch {
		case p.match("*"):
			op = OpMultiply
		case p.match("/"):
			op = OpDivide
		default:
			return left, nil
		}
		right, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: op, Right: right}
	}
}

func (p *Parser) parseUnaryExpression() (Expression, error) {
	p.skipWhitespace()
	var op Operator
	switch {
	case p.peek() == '!' && p.peekAt(1) != '=':
		p.advance()
		op = OpNot
	case p.match("-"):
		op = OpMinus
	case p.match("+"):
		op = OpPlus
	default:
		return p.parsePrimaryExpression()
	}
	operand, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}
	return &UnaryExpression{Operator: op, Operand: operand}, nil
}

func (p *Parser) parsePrimaryExpression() (Expression, error) {
	p.skipWhitespace()
	ch := p.peek()

	switch {
	case ch == '(':
		return p.parseBrackettedExpression()
	case ch == '?' || ch == '$':
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &VariableExpression{Variable: v}, nil
	case ch == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		return p.iriOrFunctionCall(iri)
	case ch == '"' || ch == '\'':
		lit, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Literal: lit}, nil
	case isDigit(ch) || (ch == '.' && isDigit(p.peekAt(1))):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Literal: lit}, nil
	case ch == 0:
		return nil, p.errorf("unexpected end of expression")
	}

	// keyword, built-in call or prefixed name
	start := p.pos
	word := p.readWhile(isPrefixChar)
	if p.peek() == ':' {
		p.pos = start
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return p.iriOrFunctionCall(iri)
	}
	if word == "" {
		return nil, p.errorf("unexpected token %q", p.snippet())
	}

	name := strings.ToUpper(word)
	switch name {
	case "TRUE":
		return &LiteralExpression{Literal: rdf.NewBooleanLiteral(true)}, nil
	case "FALSE":
		return &LiteralExpression{Literal: rdf.NewBooleanLiteral(false)}, nil
	case "NOT":
		if !p.matchKeyword("EXISTS") {
			return nil, p.errorf("expected EXISTS after NOT")
		}
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &ExistsExpression{Pattern: pattern, Not: true}, nil
	case "EXISTS":
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &ExistsExpression{Pattern: pattern}, nil
	case "CASE":
		return p.parseCase()
	case "COUNT", "SUM", "AVG", "MIN", "MAX", "SAMPLE", "GROUP_CONCAT":
		return p.parseAggregate(name)
	}

	if canonical, ok := builtinAliases[name]; ok {
		name = canonical
	}
	if _, ok := builtinFunctions[name]; !ok {
		p.pos = start
		return nil, p.errorf("unknown function %q", word)
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	return &FunctionCallExpression{Function: name, Arguments: args}, nil
}

func (p *Parser) iriOrFunctionCall(iri string) (Expression, error) {
	p.skipWhitespace()
	if p.peek() != '(' {
		return &LiteralExpression{Literal: rdf.NewNamedNode(iri)}, nil
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	return &FunctionCallExpression{Function: iri, Arguments: args}, nil
}

// parseArgList parses '(' [expr (',' expr)*] ')'
func (p *Parser) parseArgList() ([]Expression, error) {
	p.skipWhitespace()
	if !p.match("(") {
		return nil, p.errorf("expected '(' for function arguments")
	}
	return p.parseExpressionsUntilClose()
}

// parseExpressionList parses the list of IN / NOT IN
func (p *Parser) parseExpressionList() ([]Expression, error) {
	p.skipWhitespace()
	if !p.match("(") {
		return nil, p.errorf("expected '(' after IN")
	}
	return p.parseExpressionsUntilClose()
}

func (p *Parser) parseExpressionsUntilClose() ([]Expression, error) {
	var args []Expression
	p.skipWhitespace()
	if p.match(")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipWhitespace()
		if p.match(")") {
			return args, nil
		}
		if !p.match(",") {
			return nil, p.errorf("expected ',' or ')' in argument list")
		}
	}
}

// parseCase rewrites CASE ... END into nested IF calls. Without ELSE the
// innermost branch is an argument-less COALESCE, which leaves the result
// unbound.
func (p *Parser) parseCase() (Expression, error) {
	var operand Expression
	if !p.peekKeyword("WHEN") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		operand = expr
	}

	type branch struct{ when, then Expression }
	var branches []branch
	for p.matchKeyword("WHEN") {
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if operand != nil {
			cond = &BinaryExpression{Left: operand, Operator: OpEqual, Right: cond}
		}
		if !p.matchKeyword("THEN") {
			return nil, p.errorf("expected THEN in CASE")
		}
		result, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch{cond, result})
	}
	if len(branches) == 0 {
		return nil, p.errorf("expected WHEN in CASE")
	}

	var elseExpr Expression = &FunctionCallExpression{Function: "COALESCE"}
	if p.matchKeyword("ELSE") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elseExpr = expr
	}
	if !p.matchKeyword("END") {
		return nil, p.errorf("expected END to close CASE")
	}

	result := elseExpr
	for i := len(branches) - 1; i >= 0; i-- {
		result = &FunctionCallExpression{
			Function:  "IF",
			Arguments: []Expression{branches[i].when, branches[i].then, result},
		}
	}
	return result, nil
}

func (p *Parser) parseAggregate(name string) (Expression, error) {
	p.skipWhitespace()
	if !p.match("(") {
		return nil, p.errorf("expected '(' after %s", name)
	}
	agg := &AggregateExpression{Function: name}
	if p.matchKeyword("DISTINCT") {
		agg.Distinct = true
	}
	p.skipWhitespace()
	if name == "COUNT" && p.match("*") {
		agg.Star = true
	} else {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		agg.Argument = arg
	}

	if name == "GROUP_CONCAT" {
		agg.Separator = " "
		p.skipWhitespace()
		if p.match(";") {
			if !p.matchKeyword("SEPARATOR") {
				return nil, p.errorf("expected SEPARATOR in GROUP_CONCAT")
			}
			p.skipWhitespace()
			if !p.match("=") {
				return nil, p.errorf("expected '=' after SEPARATOR")
			}
			p.skipWhitespace()
			sep, err := p.parseStringLiteral()
			if err != nil {
				return nil, err
			}
			agg.Separator = sep.Value
		}
	}

	p.skipWhitespace()
	if !p.match(")") {
		return nil, p.errorf("expected ')' to close %s", name)
	}
	return agg, nil
}

// builtinFunctions lists the built-in calls accepted by name.
var builtinFunctions = map[string]struct{}{
	"STR": {}, "LANG": {}, "LANGMATCHES": {}, "DATATYPE": {}, "BOUND": {}, "IRI": {},
	"BNODE": {}, "RAND": {}, "ABS": {}, "CEIL": {}, "FLOOR": {}, "ROUND": {}, "CONCAT": {},
	"SUBSTR": {}, "STRLEN": {}, "REPLACE": {}, "UCASE": {}, "LCASE": {}, "ENCODE_FOR_URI": {},
	"CONTAINS": {}, "STRSTARTS": {}, "STRENDS": {}, "STRBEFORE": {}, "STRAFTER": {},
	"YEAR": {}, "MONTH": {}, "DAY": {}, "HOURS": {}, "MINUTES": {}, "SECONDS": {},
	"TIMEZONE": {}, "TZ": {}, "NOW": {}, "UUID": {}, "STRUUID": {}, "MD5": {}, "SHA1": {},
	"SHA256": {}, "SHA384": {}, "SHA512": {}, "COALESCE": {}, "IF": {}, "STRLANG": {},
	"STRDT": {}, "SAMETERM": {}, "ISIRI": {}, "ISBLANK": {}, "ISLITERAL": {},
	"ISNUMERIC": {}, "REGEX": {},
}

var builtinAliases = map[string]string{
	"URI":   "IRI",
	"ISURI": "ISIRI",
}

// Helper methods

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) peekAt(offset int) byte {
	if p.pos+offset >= p.length {
		return 0
	}
	return p.input[p.pos+offset]
}

func (p *Parser) advance() {
	if p.pos < p.length {
		p.pos++
	}
}

func (p *Parser) skipWhitespace() {
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			p.pos++
			continue
		}
		// comments run to end of line
		if ch == '#' {
			for p.pos < p.length && p.input[p.pos] != '\n' && p.input[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *Parser) readWhile(predicate func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && predicate(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// peekKeyword reports whether the next token is keyword, case-insensitively.
func (p *Parser) peekKeyword(keyword string) bool {
	p.skipWhitespace()
	end := p.pos + len(keyword)
	if end > p.length || !strings.EqualFold(p.input[p.pos:end], keyword) {
		return false
	}
	if end < p.length {
		next := p.input[end]
		if isVarChar(next) || next == ':' {
			return false
		}
	}
	return true
}

func (p *Parser) matchKeyword(keyword string) bool {
	if !p.peekKeyword(keyword) {
		return false
	}
	p.pos += len(keyword)
	return true
}

func (p *Parser) match(s string) bool {
	if strings.HasPrefix(p.input[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *Parser) resolveIRI(iri string) string {
	if p.baseIRI == "" || isAbsoluteIRI(iri) {
		return iri
	}
	if strings.HasPrefix(iri, "#") {
		base, _, _ := strings.Cut(p.baseIRI, "#")
		return base + iri
	}
	if idx := strings.LastIndex(p.baseIRI, "/"); idx >= 0 {
		return p.baseIRI[:idx+1] + iri
	}
	return p.baseIRI + iri
}

func isAbsoluteIRI(iri string) bool {
	scheme, _, found := strings.Cut(iri, ":")
	if !found || scheme == "" || !isAlpha(scheme[0]) {
		return false
	}
	for i := 1; i < len(scheme); i++ {
		ch := scheme[i]
		if !isAlpha(ch) && !isDigit(ch) && ch != '+' && ch != '-' && ch != '.' {
			return false
		}
	}
	return true
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isVarChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '_' || ch >= 0x80
}

func isPrefixChar(ch byte) bool {
	return isVarChar(ch) || ch == '-' || ch == '.'
}

func isPNChar(ch byte) bool {
	return isVarChar(ch) || ch == '-' || ch == '.'
}
