package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/exocortex/exoql/pkg/store"
)

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>...",
		Short: "Parse data files and report what they contain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s := store.New(store.WithLogger(a.logger))

			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				start := time.Now()
				quads, err := readFile(path)
				if err != nil {
					return err
				}
				if err := s.AddQuads(quads); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s statements, %s, parsed in %s\n", path,
					humanize.Comma(int64(len(quads))), humanize.Bytes(uint64(info.Size())),
					time.Since(start).Round(time.Microsecond))
			}

			stats := s.Stats()
			fmt.Fprintf(out, "default graph: %s triples, %d subjects, %d predicates, %d objects\n",
				humanize.Comma(int64(stats.Triples)), stats.Subjects, stats.Predicates, stats.Objects)
			for _, g := range s.NamedGraphs() {
				fmt.Fprintf(out, "graph <%s>: %s triples\n", g, humanize.Comma(int64(s.CountInGraph(g))))
			}
			return nil
		},
	}
}
