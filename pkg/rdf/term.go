package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/exocortex/exoql/pkg/errors"
)

// TermType represents the kind of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "iri"
	case TermTypeBlankNode:
		return "bnode"
	case TermTypeLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Term represents an RDF term (IRI, blank node, or literal).
//
// The set of implementations is closed: only *NamedNode, *BlankNode and
// *Literal satisfy it, so a type switch over those three is exhaustive.
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
	// Key is the structural identity used by indexes and hashing.
	Key() string

	term()
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return "<" + n.IRI + ">"
}

func (n *NamedNode) Key() string {
	return "<" + n.IRI + ">"
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

func (*NamedNode) term() {}

// BlankNode represents a blank node, scoped to one store
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return "_:" + b.ID
}

func (b *BlankNode) Key() string {
	return "_:" + b.ID
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

func (*BlankNode) term() {}

// Literal represents an RDF literal. Language and Datatype are mutually
// exclusive; a language-tagged literal carries no explicit datatype.
type Literal struct {
	Value    string
	Language string     // lowercased language tag
	Datatype *NamedNode // nil for simple and language-tagged literals
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: strings.ToLower(language)}
}

func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

func (l *Literal) String() string {
	result := strconv.Quote(l.Value)
	if l.Language != "" {
		result += "@" + l.Language
	} else if l.Datatype != nil {
		result += "^^" + l.Datatype.String()
	}
	return result
}

// Key folds a simple literal and an xsd:string literal of the same lexical
// form onto one key. Every other datatype is significant.
func (l *Literal) Key() string {
	key := strconv.Quote(l.Value)
	switch {
	case l.Language != "":
		return key + "@" + l.Language
	case l.Datatype != nil && l.Datatype.IRI != XSDString.IRI:
		return key + "^^" + l.Datatype.Key()
	default:
		return key
	}
}

func (l *Literal) Equals(other Term) bool {
	if ol, ok := other.(*Literal); ok {
		return l.Key() == ol.Key()
	}
	return false
}

// EffectiveDatatype returns the datatype IRI implied by the literal form.
func (l *Literal) EffectiveDatatype() *NamedNode {
	switch {
	case l.Language != "":
		return RDFLangString
	case l.Datatype != nil:
		return l.Datatype
	default:
		return XSDString
	}
}

// IsSimple reports whether the literal is a plain or xsd:string literal.
func (l *Literal) IsSimple() bool {
	return l.Language == "" && (l.Datatype == nil || l.Datatype.IRI == XSDString.IRI)
}

func (*Literal) term() {}

// Triple represents an RDF triple (subject, predicate, object)
type Triple struct {
	Subject   Term
	Predicate *NamedNode
	Object    Term
}

// NewTriple builds a triple and panics when a term sits in a position it may
// not occupy. Use ValidateTriple for input that has not been checked yet.
func NewTriple(subject Term, predicate *NamedNode, object Term) *Triple {
	t := &Triple{Subject: subject, Predicate: predicate, Object: object}
	if err := ValidateTriple(t); err != nil {
		panic(err)
	}
	return t
}

// ValidateTriple checks the position constraints of a triple.
func ValidateTriple(t *Triple) error {
	if t == nil {
		return errors.New(errors.CodeTermInvalidPosition, "nil triple")
	}
	switch t.Subject.(type) {
	case *NamedNode, *BlankNode:
	default:
		return errors.New(errors.CodeTermInvalidPosition, "subject must be an IRI or blank node",
			errors.Field("subject", fmt.Sprint(t.Subject)))
	}
	if t.Predicate == nil {
		return errors.New(errors.CodeTermInvalidPosition, "predicate must be an IRI")
	}
	switch t.Object.(type) {
	case *NamedNode, *BlankNode, *Literal:
	default:
		return errors.New(errors.CodeTermInvalidPosition, "object must be an RDF term",
			errors.Field("object", fmt.Sprint(t.Object)))
	}
	return nil
}

// Key is the structural identity of the triple.
func (t *Triple) Key() string {
	return t.Subject.Key() + "\x00" + t.Predicate.Key() + "\x00" + t.Object.Key()
}

func (t *Triple) Equals(other *Triple) bool {
	return other != nil && t.Key() == other.Key()
}

func (t *Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}

// Well-known vocabulary
const (
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"
)

var (
	XSDString   = NewNamedNode(XSDNamespace + "string")
	XSDInteger  = NewNamedNode(XSDNamespace + "integer")
	XSDDecimal  = NewNamedNode(XSDNamespace + "decimal")
	XSDDouble   = NewNamedNode(XSDNamespace + "double")
	XSDFloat    = NewNamedNode(XSDNamespace + "float")
	XSDBoolean  = NewNamedNode(XSDNamespace + "boolean")
	XSDDateTime = NewNamedNode(XSDNamespace + "dateTime")
	XSDDate     = NewNamedNode(XSDNamespace + "date")
	XSDTime     = NewNamedNode(XSDNamespace + "time")
	XSDDuration = NewNamedNode(XSDNamespace + "duration")

	RDFType       = NewNamedNode(RDFNamespace + "type")
	RDFLangString = NewNamedNode(RDFNamespace + "langString")
)

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatInt(value, 10), XSDInteger)
}

func NewDecimalLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'f', -1, 64), XSDDecimal)
}

func NewDoubleLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'g', -1, 64), XSDDouble)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(strconv.FormatBool(value), XSDBoolean)
}

func NewDateTimeLiteral(value time.Time) *Literal {
	return NewLiteralWithDatatype(value.Format(time.RFC3339Nano), XSDDateTime)
}
