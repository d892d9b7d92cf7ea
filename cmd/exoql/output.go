package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/server/results"
	"github.com/exocortex/exoql/pkg/sparql/executor"
)

// writeResult prints result as a table, or in one of the SPARQL result
// formats when format names one.
func writeResult(w io.Writer, result executor.Result, format string) error {
	if format != "" && format != "table" {
		f, err := results.ParseFormat(format)
		if err != nil {
			return err
		}
		data, _, err := results.Encode(result, f)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	switch r := result.(type) {
	case *executor.SelectResult:
		return writeTable(w, r)
	case *executor.AskResult:
		_, err := fmt.Fprintln(w, r.Result)
		return err
	case *executor.GraphResult:
		return rdf.SerializeNTriples(w, r.Triples)
	}
	return nil
}

func writeTable(w io.Writer, r *executor.SelectResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := make([]string, len(r.Variables))
	for i, name := range r.Variables {
		header[i] = "?" + name
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, b := range r.Bindings {
		row := make([]string, len(r.Variables))
		for i, name := range r.Variables {
			if term := b.Get(name); term != nil {
				row[i] = displayTerm(term)
			}
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d result(s)\n", len(r.Bindings))
	return err
}

// displayTerm shortens IRIs in a known namespace to prefixed names and shows
// plain literals without quotes.
func displayTerm(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		for prefix, ns := range rdf.DefaultPrefixes {
			if local, ok := strings.CutPrefix(t.IRI, ns); ok && local != "" {
				return prefix + ":" + local
			}
		}
		return "<" + t.IRI + ">"
	case *rdf.Literal:
		if t.Language == "" && t.Datatype == nil {
			return t.Value
		}
		if t.Language == "" && t.Datatype != nil && (t.Datatype.IRI == rdf.XSDInteger.IRI ||
			t.Datatype.IRI == rdf.XSDDecimal.IRI || t.Datatype.IRI == rdf.XSDDouble.IRI) {
			return t.Value
		}
		return rdf.FormatNTriplesTerm(t)
	default:
		return rdf.FormatNTriplesTerm(term)
	}
}
