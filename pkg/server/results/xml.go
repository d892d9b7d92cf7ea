package results

import (
	"bytes"
	"encoding/xml"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/executor"
)

// SPARQL XML Results Format
// https://www.w3.org/TR/rdf-sparql-XMLres/

const sparqlResultsNamespace = "http://www.w3.org/2005/sparql-results#"

// Results is the sparql document element.
type Results struct {
	XMLName xml.Name        `xml:"sparql"`
	Xmlns   string          `xml:"xmlns,attr"`
	Head    Head            `xml:"head"`
	Results *ResultsElement `xml:"results,omitempty"`
	Boolean *bool           `xml:"boolean,omitempty"`
}

type Head struct {
	Variables []Variable `xml:"variable"`
}

type Variable struct {
	Name string `xml:"name,attr"`
}

type ResultsElement struct {
	Results []Result `xml:"result"`
}

// Result is one solution; unbound variables have no binding element.
type Result struct {
	Bindings []Binding `xml:"binding"`
}

type Binding struct {
	Name    string   `xml:"name,attr"`
	URI     *string  `xml:"uri,omitempty"`
	Literal *Literal `xml:"literal,omitempty"`
	BNode   *string  `xml:"bnode,omitempty"`
}

type Literal struct {
	Value    string `xml:",chardata"`
	Lang     string `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Datatype string `xml:"datatype,attr,omitempty"`
}

// FormatSelectResultsXML converts a SELECT result to SPARQL XML format
func FormatSelectResultsXML(result *executor.SelectResult) ([]byte, error) {
	doc := Results{Xmlns: sparqlResultsNamespace, Results: &ResultsElement{}}
	for _, name := range result.Variables {
		doc.Head.Variables = append(doc.Head.Variables, Variable{Name: name})
	}
	for _, binding := range result.Bindings {
		var row Result
		for _, name := range result.Variables {
			if term := binding.Get(name); term != nil {
				row.Bindings = append(row.Bindings, termToXMLBinding(name, term))
			}
		}
		doc.Results.Results = append(doc.Results.Results, row)
	}
	return marshalXML(doc)
}

// FormatAskResultXML converts an ASK result to SPARQL XML format
func FormatAskResultXML(result *executor.AskResult) ([]byte, error) {
	answer := result.Result
	return marshalXML(Results{Xmlns: sparqlResultsNamespace, Boolean: &answer})
}

func marshalXML(doc Results) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func termToXMLBinding(name string, term rdf.Term) Binding {
	b := Binding{Name: name}
	switch t := term.(type) {
	case *rdf.NamedNode:
		iri := t.IRI
		b.URI = &iri
	case *rdf.BlankNode:
		id := t.ID
		b.BNode = &id
	case *rdf.Literal:
		lit := &Literal{Value: t.Value, Lang: t.Language}
		if t.Language == "" && t.Datatype != nil && t.Datatype.IRI != rdf.XSDString.IRI {
			lit.Datatype = t.Datatype.IRI
		}
		b.Literal = lit
	}
	return b
}
