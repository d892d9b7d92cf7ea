package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/store"
)

const demoPrefixes = "PREFIX exo: <" + rdf.ExoNamespace + ">\nPREFIX ems: <" + rdf.EMSNamespace + ">\n"

// demoData is a small task log: prototypes, the tasks instantiated from them
// and how long each took.
const demoData = `
<https://exocortex.my/demo/proto-shower> exo:Asset_label "Morning Shower" .
<https://exocortex.my/demo/proto-shower> rdf:type ems:TaskPrototype .
<https://exocortex.my/demo/proto-walk> exo:Asset_label "Evening Walk" .
<https://exocortex.my/demo/proto-walk> rdf:type ems:TaskPrototype .
<https://exocortex.my/demo/task-1> rdf:type ems:Task .
<https://exocortex.my/demo/task-1> ems:Effort_prototype <https://exocortex.my/demo/proto-shower> .
<https://exocortex.my/demo/task-1> ems:Effort_duration "20" .
<https://exocortex.my/demo/task-2> rdf:type ems:Task .
<https://exocortex.my/demo/task-2> ems:Effort_prototype <https://exocortex.my/demo/proto-shower> .
<https://exocortex.my/demo/task-2> ems:Effort_duration "25" .
<https://exocortex.my/demo/task-3> rdf:type ems:Task .
<https://exocortex.my/demo/task-3> ems:Effort_prototype <https://exocortex.my/demo/proto-walk> .
<https://exocortex.my/demo/task-3> ems:Effort_duration "30" .
<https://exocortex.my/demo/task-4> rdf:type ems:Task .
<https://exocortex.my/demo/task-4> ems:Effort_prototype <https://exocortex.my/demo/proto-walk> .
<https://exocortex.my/demo/task-4> ems:Effort_duration "40" .
<https://exocortex.my/demo/task-4> ems:Effort_parent <https://exocortex.my/demo/task-3> .
`

const demoArchiveGraph = "https://exocortex.my/demo/archive"

const demoArchive = `
<https://exocortex.my/demo/task-0> rdf:type ems:Task .
<https://exocortex.my/demo/task-0> ems:Effort_prototype <https://exocortex.my/demo/proto-walk> .
<https://exocortex.my/demo/task-0> ems:Effort_duration "55" .
`

var demoQueries = []struct {
	title string
	query string
}{
	{
		title: "Average duration per prototype",
		query: `SELECT ?label (AVG(?duration) AS ?avg) (COUNT(?task) AS ?tasks) WHERE {
	?task ems:Effort_prototype ?proto .
	?proto exo:Asset_label ?label .
	?task ems:Effort_duration ?duration
} GROUP BY ?label ORDER BY ?label`,
	},
	{
		title: "Tasks with an optional parent",
		query: `SELECT ?task ?parent WHERE {
	?task a ems:Task .
	OPTIONAL { ?task ems:Effort_parent ?parent }
} ORDER BY ?task`,
	},
	{
		title: "Archived tasks by graph",
		query: `SELECT ?g ?task ?duration WHERE {
	GRAPH ?g { ?task ems:Effort_duration ?duration }
}`,
	},
	{
		title: "Is there a task longer than 35 minutes?",
		query: `ASK { ?task ems:Effort_duration ?d FILTER(xsd:integer(?d) > 35) }`,
	},
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Load a sample task log and run a few queries over it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			s, err := a.newStore()
			if err != nil {
				return err
			}
			if err := loadDemo(s); err != nil {
				return err
			}
			fmt.Fprintf(out, "Loaded %d triples into the default graph and %d into <%s>\n",
				s.Count(), s.CountInGraph(demoArchiveGraph), demoArchiveGraph)

			e := a.newEngine(s)
			for _, q := range demoQueries {
				fmt.Fprintf(out, "\n== %s ==\n%s\n\n", q.title, q.query)
				resp, err := e.Query(cmd.Context(), demoPrefixes+"PREFIX xsd: <"+rdf.XSDNamespace+">\n"+q.query)
				if err != nil {
					return err
				}
				if err := writeResult(out, resp.Result, "table"); err != nil {
					return err
				}
			}

			unbounded := `SELECT * WHERE { ?a ems:Effort_parent* ?b . ?c exo:Asset_label ?d }`
			fmt.Fprintf(out, "\n== Admission control ==\n%s\n\n", unbounded)
			_, err = e.Query(cmd.Context(), demoPrefixes+unbounded)
			switch {
			case errors.IsDenied(err):
				fmt.Fprintln(out, "denied:", err)
			case err != nil:
				return err
			default:
				fmt.Fprintln(out, "admitted (admission control is disabled)")
			}
			return nil
		},
	}
}

func loadDemo(s *store.TripleStore) error {
	triples, err := rdf.ParseNTriplesString(demoData, nil)
	if err != nil {
		return err
	}
	if err := s.AddAll(triples); err != nil {
		return err
	}

	archive, err := rdf.ParseNTriplesString(demoArchive, nil)
	if err != nil {
		return err
	}
	tx := s.Begin()
	for _, t := range archive {
		if err := tx.AddToGraph(demoArchiveGraph, t); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
