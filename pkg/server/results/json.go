package results

import (
	"encoding/json"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/executor"
)

// SPARQL JSON Results Format
// https://www.w3.org/TR/sparql11-results-json/

// SPARQLResultsJSON represents the JSON format for SPARQL query results
type SPARQLResultsJSON struct {
	Head    ResultHead      `json:"head"`
	Results *ResultBindings `json:"results,omitempty"`
	Boolean *bool           `json:"boolean,omitempty"`
}

// ResultHead contains the variable names
type ResultHead struct {
	Vars []string `json:"vars"`
}

type ResultBindings struct {
	Bindings []map[string]BindingValue `json:"bindings"`
}

// BindingValue represents a single bound value
type BindingValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	XMLLang  *string `json:"xml:lang,omitempty"`
}

// FormatSelectResultsJSON converts a SELECT result to SPARQL JSON format.
// Unbound variables are left out of their row.
func FormatSelectResultsJSON(result *executor.SelectResult) ([]byte, error) {
	rows := make([]map[string]BindingValue, 0, len(result.Bindings))
	for _, binding := range result.Bindings {
		row := make(map[string]BindingValue)
		for _, name := range result.Variables {
			if term := binding.Get(name); term != nil {
				row[name] = termToBindingValue(term)
			}
		}
		rows = append(rows, row)
	}

	vars := result.Variables
	if vars == nil {
		vars = []string{}
	}
	return json.MarshalIndent(SPARQLResultsJSON{
		Head:    ResultHead{Vars: vars},
		Results: &ResultBindings{Bindings: rows},
	}, "", "  ")
}

// FormatAskResultJSON converts an ASK result to SPARQL JSON format
func FormatAskResultJSON(result *executor.AskResult) ([]byte, error) {
	answer := result.Result
	return json.MarshalIndent(SPARQLResultsJSON{
		Head:    ResultHead{Vars: []string{}},
		Boolean: &answer,
	}, "", "  ")
}

func termToBindingValue(term rdf.Term) BindingValue {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return BindingValue{Type: "uri", Value: t.IRI}
	case *rdf.BlankNode:
		return BindingValue{Type: "bnode", Value: t.ID}
	case *rdf.Literal:
		bv := BindingValue{Type: "literal", Value: t.Value}
		if t.Language != "" {
			lang := t.Language
			bv.XMLLang = &lang
		} else if t.Datatype != nil && t.Datatype.IRI != rdf.XSDString.IRI {
			datatype := t.Datatype.IRI
			bv.Datatype = &datatype
		}
		return bv
	default:
		return BindingValue{Type: "literal", Value: term.String()}
	}
}
