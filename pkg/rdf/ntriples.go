package rdf

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/exocortex/exoql/pkg/errors"
)

// Application vocabularies resolved by default in prefixed names.
const (
	ExoNamespace = "https://exocortex.my/ontology/exo#"
	EMSNamespace = "https://exocortex.my/ontology/ems#"
)

// DefaultPrefixes are the prefixes every N-Triples parse starts from.
var DefaultPrefixes = map[string]string{
	"rdf":  RDFNamespace,
	"rdfs": RDFSNamespace,
	"owl":  OWLNamespace,
	"xsd":  XSDNamespace,
	"exo":  ExoNamespace,
	"ems":  EMSNamespace,
}

// ParseError reports a malformed N-Triples statement.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// ParseNTriples reads one statement per line. Blank lines and '#' comments are
// skipped, prefixed names are resolved against prefixes merged over
// DefaultPrefixes. The first malformed line fails the whole parse.
func ParseNTriples(r io.Reader, prefixes map[string]string) ([]*Triple, error) {
	var triples []*Triple
	err := scanStatements(r, prefixes, false, func(t *Triple, _ string) {
		triples = append(triples, t)
	})
	if err != nil {
		return nil, err
	}
	return triples, nil
}

func scanStatements(r io.Reader, prefixes map[string]string, withGraph bool, emit func(*Triple, string)) error {
	merged := maps.Clone(DefaultPrefixes)
	maps.Copy(merged, prefixes)

	format := "N-Triples"
	if withGraph {
		format = "N-Quads"
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		p := &lineParser{input: scanner.Text(), line: lineNo, prefixes: merged}
		triple, graph, err := p.parseStatement(withGraph)
		if err != nil {
			return errors.Wrap(err, errors.CodeNTriplesParseInvalidSyntax, "invalid "+format,
				errors.Field("line", lineNo))
		}
		if triple != nil {
			emit(triple, graph)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.CodeNTriplesParseInvalidSyntax, "read "+format)
	}
	return nil
}

// ParseNTriplesString is ParseNTriples over an in-memory document.
func ParseNTriplesString(input string, prefixes map[string]string) ([]*Triple, error) {
	return ParseNTriples(strings.NewReader(input), prefixes)
}

type lineParser struct {
	input    string
	pos      int
	line     int
	prefixes map[string]string
}

func (p *lineParser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Column: p.pos + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *lineParser) skipWhitespace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *lineParser) atEnd() bool {
	return p.pos >= len(p.input)
}

// parseStatement returns nil for blank and comment lines. With withGraph an
// optional graph IRI may follow the object.
func (p *lineParser) parseStatement(withGraph bool) (*Triple, string, error) {
	p.skipWhitespace()
	if p.atEnd() || p.input[p.pos] == '#' {
		return nil, "", nil
	}

	subject, err := p.parseTerm()
	if err != nil {
		return nil, "", err
	}
	if _, ok := subject.(*Literal); ok {
		return nil, "", p.errorf("literal not allowed as subject")
	}

	p.skipWhitespace()
	predTerm, err := p.parseTerm()
	if err != nil {
		return nil, "", err
	}
	predicate, ok := predTerm.(*NamedNode)
	if !ok {
		return nil, "", p.errorf("predicate must be an IRI")
	}

	p.skipWhitespace()
	object, err := p.parseTerm()
	if err != nil {
		return nil, "", err
	}

	p.skipWhitespace()
	var graph string
	if withGraph && !p.atEnd() && p.input[p.pos] != '.' {
		label, err := p.parseTerm()
		if err != nil {
			return nil, "", err
		}
		named, ok := label.(*NamedNode)
		if !ok {
			return nil, "", p.errorf("graph label must be an IRI")
		}
		graph = named.IRI
		p.skipWhitespace()
	}
	if p.atEnd() || p.input[p.pos] != '.' {
		return nil, "", p.errorf("expected '.' at end of statement")
	}
	p.pos++
	p.skipWhitespace()
	if !p.atEnd() && p.input[p.pos] != '#' {
		return nil, "", p.errorf("unexpected content after '.'")
	}

	return &Triple{Subject: subject, Predicate: predicate, Object: object}, graph, nil
}

func (p *lineParser) parseTerm() (Term, error) {
	if p.atEnd() {
		return nil, p.errorf("unexpected end of line")
	}
	switch ch := p.input[p.pos]; {
	case ch == '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case ch == '_':
		return p.parseBlankNode()
	case ch == '"':
		return p.parseLiteral()
	case ch == '.':
		return nil, p.errorf("missing term")
	default:
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	}
}

func (p *lineParser) parseIRI() (string, error) {
	p.pos++ // '<'
	start := p.pos
	for !p.atEnd() && p.input[p.pos] != '>' {
		switch p.input[p.pos] {
		case ' ', '<', '"', '{', '}', '|', '^', '`':
			return "", p.errorf("invalid character %q in IRI", p.input[p.pos])
		}
		p.pos++
	}
	if p.atEnd() {
		return "", p.errorf("unbalanced '<' in IRI")
	}
	iri := p.input[start:p.pos]
	p.pos++ // '>'
	return iri, nil
}

func (p *lineParser) parseBlankNode() (Term, error) {
	if p.pos+1 >= len(p.input) || p.input[p.pos+1] != ':' {
		return nil, p.errorf("expected '_:' blank node")
	}
	p.pos += 2
	start := p.pos
	for !p.atEnd() && isNameChar(p.input[p.pos]) {
		p.pos++
	}
	// a trailing '.' belongs to the statement terminator
	for p.pos > start && p.input[p.pos-1] == '.' {
		p.pos--
	}
	if p.pos == start {
		return nil, p.errorf("empty blank node label")
	}
	return NewBlankNode(p.input[start:p.pos]), nil
}

func (p *lineParser) parsePrefixedName() (string, error) {
	start := p.pos
	for !p.atEnd() && p.input[p.pos] != ':' && isNameChar(p.input[p.pos]) {
		p.pos++
	}
	if p.atEnd() || p.input[p.pos] != ':' {
		return "", p.errorf("unexpected token %q", p.input[start:min(p.pos+1, len(p.input))])
	}
	prefix := p.input[start:p.pos]
	p.pos++
	localStart := p.pos
	for !p.atEnd() && isNameChar(p.input[p.pos]) {
		p.pos++
	}
	for p.pos > localStart && p.input[p.pos-1] == '.' {
		p.pos--
	}
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", p.errorf("unknown prefix %q", prefix)
	}
	return ns + p.input[localStart:p.pos], nil
}

func (p *lineParser) parseLiteral() (Term, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	closed := false
	for !p.atEnd() {
		ch := p.input[p.pos]
		if ch == '"' {
			p.pos++
			closed = true
			break
		}
		if ch != '\\' {
			sb.WriteByte(ch)
			p.pos++
			continue
		}
		if p.pos+1 >= len(p.input) {
			break
		}
		p.pos++
		esc := p.input[p.pos]
		p.pos++
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
		case '"':
			sb.WriteByte('"')
		case '\'':
			sb.WriteByte('\'')
		case '\\':
			sb.WriteByte('\\')
		case 'u', 'U':
			width := 4
			if esc == 'U' {
				width = 8
			}
			if p.pos+width > len(p.input) {
				return nil, p.errorf("truncated \\%c escape", esc)
			}
			code, err := strconv.ParseUint(p.input[p.pos:p.pos+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				return nil, p.errorf("invalid \\%c escape", esc)
			}
			sb.WriteRune(rune(code))
			p.pos += width
		default:
			return nil, p.errorf("invalid escape \\%c", esc)
		}
	}
	if !closed {
		return nil, p.errorf("unterminated string literal")
	}
	value := sb.String()

	if !p.atEnd() && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		for !p.atEnd() && (isAlnum(p.input[p.pos]) || p.input[p.pos] == '-') {
			p.pos++
		}
		if p.pos == start {
			return nil, p.errorf("empty language tag")
		}
		return NewLiteralWithLanguage(value, p.input[start:p.pos]), nil
	}
	if strings.HasPrefix(p.input[p.pos:], "^^") {
		p.pos += 2
		if p.atEnd() {
			return nil, p.errorf("missing datatype")
		}
		var iri string
		var err error
		if p.input[p.pos] == '<' {
			iri, err = p.parseIRI()
		} else {
			iri, err = p.parsePrefixedName()
		}
		if err != nil {
			return nil, err
		}
		return NewLiteralWithDatatype(value, NewNamedNode(iri)), nil
	}
	return NewLiteral(value), nil
}

func isAlnum(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func isNameChar(ch byte) bool {
	return isAlnum(ch) || ch == '_' || ch == '-' || ch == '.' || ch >= 0x80
}

// SerializeNTriples writes triples in canonical N-Triples form, one per line.
func SerializeNTriples(w io.Writer, triples []*Triple) error {
	bw := bufio.NewWriter(w)
	for _, t := range triples {
		if _, err := fmt.Fprintf(bw, "%s %s %s .\n", FormatNTriplesTerm(t.Subject),
			FormatNTriplesTerm(t.Predicate), FormatNTriplesTerm(t.Object)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FormatNTriplesTerm renders a term with N-Triples escaping.
func FormatNTriplesTerm(term Term) string {
	switch t := term.(type) {
	case *NamedNode:
		return "<" + t.IRI + ">"
	case *BlankNode:
		return "_:" + t.ID
	case *Literal:
		s := `"` + escapeString(t.Value) + `"`
		if t.Language != "" {
			return s + "@" + t.Language
		}
		if t.Datatype != nil && t.Datatype.IRI != XSDString.IRI {
			return s + "^^<" + t.Datatype.IRI + ">"
		}
		return s
	default:
		return ""
	}
}

func escapeString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
