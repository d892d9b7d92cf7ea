package results

import (
	"strings"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/executor"
)

// SPARQL TSV Results Format
// https://www.w3.org/TR/sparql11-results-csv-tsv/

// FormatSelectResultsTSV converts a SELECT result to SPARQL TSV format
func FormatSelectResultsTSV(result *executor.SelectResult) ([]byte, error) {
	var builder strings.Builder

	for i, name := range result.Variables {
		if i > 0 {
			builder.WriteByte('\t')
		}
		builder.WriteString("?" + name)
	}
	builder.WriteByte('\n')

	for _, binding := range result.Bindings {
		for i, name := range result.Variables {
			if i > 0 {
				builder.WriteByte('\t')
			}
			if term := binding.Get(name); term != nil {
				builder.WriteString(termToTSVValue(term))
			}
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// FormatAskResultTSV converts an ASK result to SPARQL TSV format
func FormatAskResultTSV(result *executor.AskResult) ([]byte, error) {
	if result.Result {
		return []byte("?result\ntrue\n"), nil
	}
	return []byte("?result\nfalse\n"), nil
}

var bareNumerics = map[string]bool{
	rdf.XSDInteger.IRI: true,
	rdf.XSDDecimal.IRI: true,
	rdf.XSDDouble.IRI:  true,
}

// termToTSVValue writes terms in their N-Triples form, except integers,
// decimals and doubles which go out bare.
func termToTSVValue(term rdf.Term) string {
	if lit, ok := term.(*rdf.Literal); ok && lit.Datatype != nil && bareNumerics[lit.Datatype.IRI] {
		return lit.Value
	}
	return rdf.FormatNTriplesTerm(term)
}
