// Package results serializes query results in the SPARQL 1.1 result formats.
package results

import (
	"bytes"
	"strings"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/executor"
)

// Format is a result serialization.
type Format int

const (
	FormatJSON Format = iota
	FormatXML
	FormatCSV
	FormatTSV
)

var formatNames = map[string]Format{
	"json": FormatJSON,
	"xml":  FormatXML,
	"csv":  FormatCSV,
	"tsv":  FormatTSV,
}

// ParseFormat maps a short name (json, xml, csv, tsv) to a Format.
func ParseFormat(name string) (Format, error) {
	f, ok := formatNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.New(errors.CodeServerRequestInvalid, "unknown result format",
			errors.Field("format", name))
	}
	return f, nil
}

// Negotiate picks a format from an Accept header. JSON is the fallback.
func Negotiate(acceptHeader string) Format {
	accept := strings.ToLower(acceptHeader)

	switch {
	case strings.Contains(accept, "application/sparql-results+xml"):
		return FormatXML
	case strings.Contains(accept, "application/sparql-results+json"):
		return FormatJSON
	case strings.Contains(accept, "text/csv"):
		return FormatCSV
	case strings.Contains(accept, "text/tab-separated-values"):
		return FormatTSV
	case strings.Contains(accept, "application/json"):
		return FormatJSON
	case strings.Contains(accept, "text/xml") || strings.Contains(accept, "application/xml"):
		return FormatXML
	default:
		return FormatJSON
	}
}

// NTriplesContentType is used for CONSTRUCT and DESCRIBE results whatever
// format was negotiated.
const NTriplesContentType = "application/n-triples; charset=utf-8"

func (f Format) ContentType() string {
	switch f {
	case FormatXML:
		return "application/sparql-results+xml; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	default:
		return "application/sparql-results+json; charset=utf-8"
	}
}

// Encode serializes result and returns the body with its content type.
// Graph results are always N-Triples.
func Encode(result executor.Result, format Format) ([]byte, string, error) {
	switch r := result.(type) {
	case *executor.GraphResult:
		var buf bytes.Buffer
		if err := rdf.SerializeNTriples(&buf, r.Triples); err != nil {
			return nil, "", errors.Wrap(err, errors.CodeServerInternalFailure, "serialize triples")
		}
		return buf.Bytes(), NTriplesContentType, nil
	case *executor.SelectResult:
		data, err := encodeSelect(r, format)
		return data, format.ContentType(), err
	case *executor.AskResult:
		data, err := encodeAsk(r, format)
		return data, format.ContentType(), err
	default:
		return nil, "", errors.New(errors.CodeServerInternalFailure, "unknown result type")
	}
}

func encodeSelect(r *executor.SelectResult, format Format) ([]byte, error) {
	switch format {
	case FormatXML:
		return FormatSelectResultsXML(r)
	case FormatCSV:
		return FormatSelectResultsCSV(r)
	case FormatTSV:
		return FormatSelectResultsTSV(r)
	default:
		return FormatSelectResultsJSON(r)
	}
}

func encodeAsk(r *executor.AskResult, format Format) ([]byte, error) {
	switch format {
	case FormatXML:
		return FormatAskResultXML(r)
	case FormatCSV:
		return FormatAskResultCSV(r)
	case FormatTSV:
		return FormatAskResultTSV(r)
	default:
		return FormatAskResultJSON(r)
	}
}
