package results

import (
	"bytes"
	"encoding/csv"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/executor"
)

// SPARQL CSV Results Format
// https://www.w3.org/TR/sparql11-results-csv-tsv/

// FormatSelectResultsCSV converts a SELECT result to SPARQL CSV format.
// Unbound variables are written as empty fields.
func FormatSelectResultsCSV(result *executor.SelectResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(result.Variables); err != nil {
		return nil, err
	}
	for _, binding := range result.Bindings {
		row := make([]string, len(result.Variables))
		for i, name := range result.Variables {
			if term := binding.Get(name); term != nil {
				row[i] = termToCSVValue(term)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatAskResultCSV converts an ASK result to SPARQL CSV format
func FormatAskResultCSV(result *executor.AskResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	value := "false"
	if result.Result {
		value = "true"
	}
	if err := w.WriteAll([][]string{{"result"}, {value}}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// termToCSVValue drops datatypes and language tags, as the CSV format does.
func termToCSVValue(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return t.IRI
	case *rdf.BlankNode:
		return "_:" + t.ID
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}
